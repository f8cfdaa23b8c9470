package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/0bArc/Vault/internal/inspect"
	"github.com/0bArc/Vault/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	// Vaults lists the vault names in the archive for context.
	Vaults []string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Vaults) > 0 {
		fmt.Fprintf(&buf, "  Vaults: %s\n", strings.Join(e.Vaults, ", "))
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(ctx, result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(ctx context.Context, result *Result, a Assertion) error {
	report := result.Report
	if report == nil {
		return fmt.Errorf("no archive to assert on")
	}

	fail := func(expected, actual string) error {
		names := make([]string, len(report.Vaults))
		for i, v := range report.Vaults {
			names[i] = v.Name
		}
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Vaults: names}
	}

	switch a.Type {
	case AssertVaults:
		var got []string
		for _, v := range report.Vaults {
			got = append(got, v.Name)
		}
		if !slices.Equal(got, a.Vaults) {
			return fail(fmt.Sprintf("vaults %v", a.Vaults), fmt.Sprintf("vaults %v", got))
		}
		return nil
	case AssertQuery:
		return assertQuery(ctx, report, a, fail)
	case AssertLedger:
		return assertLedger(result, a, fail)
	}

	vault := report.Vault(a.Vault)
	if vault == nil {
		return fail(fmt.Sprintf("vault %q", a.Vault), "vault not in archive")
	}

	switch a.Type {
	case AssertValue:
		want, err := ir.FromNative(a.Value)
		if err != nil {
			return fmt.Errorf("expected value: %w", err)
		}
		got, ok := vault.Lookup(a.Registry, a.Key)
		if !ok {
			return fail(fmt.Sprintf("%s:%s = %s", a.Registry, a.Key, ir.Format(want)), "key not found")
		}
		if !ir.Equal(got, want) {
			return fail(fmt.Sprintf("%s:%s = %s", a.Registry, a.Key, ir.Format(want)), ir.Format(got))
		}
	case AssertAbsent:
		if got, ok := vault.Lookup(a.Registry, a.Key); ok {
			return fail(fmt.Sprintf("%s:%s absent", a.Registry, a.Key), ir.Format(got))
		}
	case AssertNotes:
		want := a.Notes
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(vault.Notes, want) {
			return fail(fmt.Sprintf("notes %q", want), fmt.Sprintf("notes %q", vault.Notes))
		}
	case AssertSecure:
		if vault.Secure != *a.Secure {
			return fail(fmt.Sprintf("secure=%t", *a.Secure), fmt.Sprintf("secure=%t", vault.Secure))
		}
	}
	return nil
}

func assertQuery(ctx context.Context, report *inspect.Report, a Assertion, fail func(string, string) error) error {
	results, err := inspect.Query(ctx, report, a.Query)
	if err != nil {
		return err
	}
	want, err := json.Marshal(a.Expect)
	if err != nil {
		return fmt.Errorf("expected query output: %w", err)
	}
	if len(results) != 1 {
		return fail(fmt.Sprintf("%s => %s", a.Query, want), fmt.Sprintf("%d outputs", len(results)))
	}
	got, err := json.Marshal(results[0])
	if err != nil {
		return fmt.Errorf("query output: %w", err)
	}
	if string(got) != string(want) {
		return fail(fmt.Sprintf("%s => %s", a.Query, want), string(got))
	}
	return nil
}

func assertLedger(result *Result, a Assertion, fail func(string, string) error) error {
	if result.Build == nil {
		return fail("ledger record", "no build recorded")
	}
	for _, v := range result.Build.Vaults {
		if v.Name != a.Vault {
			continue
		}
		if v.Keys != *a.Keys {
			return fail(fmt.Sprintf("%d keys recorded for %q", *a.Keys, a.Vault), fmt.Sprintf("%d keys", v.Keys))
		}
		return nil
	}
	return fail(fmt.Sprintf("ledger entry for %q", a.Vault), "vault not recorded")
}
