package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0bArc/Vault/internal/inspect"
	"github.com/0bArc/Vault/internal/store"
)

// reportFor runs a one-vault program and returns its result.
func reportFor(t *testing.T) *Result {
	t.Helper()
	scenario := mustParse(t, `
name: fixture
description: assertion fixture
program: |
  vault app
    registry env
    store "mode" = "prod"
    store "port" = 8080
    note "n1"
assertions:
  - type: vaults
    vaults: [app]
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)
	return result
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestEvaluateAssertions_Pass(t *testing.T) {
	result := reportFor(t)

	failures := EvaluateAssertions(context.Background(), result, []Assertion{
		{Type: AssertValue, Vault: "app", Registry: "env", Key: "mode", Value: "prod"},
		{Type: AssertValue, Vault: "app", Registry: "env", Key: "port", Value: 8080},
		{Type: AssertAbsent, Vault: "app", Registry: "env", Key: "missing"},
		{Type: AssertNotes, Vault: "app", Notes: []string{"n1"}},
		{Type: AssertSecure, Vault: "app", Secure: boolPtr(false)},
		{Type: AssertVaults, Vaults: []string{"app"}},
		{Type: AssertQuery, Query: ".vaults[0].registries[0].keys | length", Expect: 2},
		{Type: AssertLedger, Vault: "app", Keys: intPtr(2)},
	})
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	result := reportFor(t)

	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "wrong value",
			assertion: Assertion{Type: AssertValue, Vault: "app", Registry: "env", Key: "mode", Value: "dev"},
			want:      `Actual: "prod"`,
		},
		{
			name:      "wrong kind",
			assertion: Assertion{Type: AssertValue, Vault: "app", Registry: "env", Key: "port", Value: "8080"},
			want:      "Actual: 8080",
		},
		{
			name:      "missing key",
			assertion: Assertion{Type: AssertValue, Vault: "app", Registry: "env", Key: "nope", Value: 1},
			want:      "key not found",
		},
		{
			name:      "present key",
			assertion: Assertion{Type: AssertAbsent, Vault: "app", Registry: "env", Key: "mode"},
			want:      "env:mode absent",
		},
		{
			name:      "missing vault",
			assertion: Assertion{Type: AssertNotes, Vault: "ghost"},
			want:      "vault not in archive",
		},
		{
			name:      "notes",
			assertion: Assertion{Type: AssertNotes, Vault: "app", Notes: []string{"other"}},
			want:      `notes ["other"]`,
		},
		{
			name:      "secure",
			assertion: Assertion{Type: AssertSecure, Vault: "app", Secure: boolPtr(true)},
			want:      "secure=true",
		},
		{
			name:      "vault order",
			assertion: Assertion{Type: AssertVaults, Vaults: []string{"other", "app"}},
			want:      "vaults [other app]",
		},
		{
			name:      "query output",
			assertion: Assertion{Type: AssertQuery, Query: ".vaults | length", Expect: 2},
			want:      "Actual: 1",
		},
		{
			name:      "query output count",
			assertion: Assertion{Type: AssertQuery, Query: ".vaults[].name, .vaults[].name", Expect: "app"},
			want:      "2 outputs",
		},
		{
			name:      "ledger keys",
			assertion: Assertion{Type: AssertLedger, Vault: "app", Keys: intPtr(5)},
			want:      "5 keys recorded",
		},
		{
			name:      "ledger vault",
			assertion: Assertion{Type: AssertLedger, Vault: "ghost", Keys: intPtr(0)},
			want:      "vault not recorded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := EvaluateAssertions(context.Background(), result, []Assertion{tt.assertion})
			require.Len(t, failures, 1)
			assert.Contains(t, failures[0], tt.want)
			assert.Contains(t, failures[0], "assertions[0]")
		})
	}
}

func TestEvaluateAssertions_NoReport(t *testing.T) {
	failures := EvaluateAssertions(context.Background(), NewResult(), []Assertion{
		{Type: AssertVaults, Vaults: []string{}},
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "no archive to assert on")
}

func TestEvaluateAssertions_NoBuild(t *testing.T) {
	result := &Result{Report: &inspect.Report{}}
	failures := EvaluateAssertions(context.Background(), result, []Assertion{
		{Type: AssertLedger, Vault: "a", Keys: intPtr(0)},
	})
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "no build recorded")

	result.Build = &store.Build{}
	failures = EvaluateAssertions(context.Background(), result, []Assertion{
		{Type: AssertLedger, Vault: "a", Keys: intPtr(0)},
	})
	assert.Len(t, failures, 1)
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertValue, Expected: "a", Actual: "b", Vaults: []string{"x", "y"}}
	assert.Equal(t, "Assertion failed: value\n  Expected: a\n  Actual: b\n  Vaults: x, y\n", err.Error())

	var ae *AssertionError
	assert.True(t, errors.As(error(err), &ae))
}
