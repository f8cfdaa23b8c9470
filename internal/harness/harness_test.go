package harness

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".yaml"), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestScenariosGolden(t *testing.T) {
	for _, name := range []string{"basic_roundtrip", "conditional_guards", "optional_vaults"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRunDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "basic_roundtrip.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := Snapshot(first)
	require.NoError(t, err)
	b, err := Snapshot(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.Build.ArchiveDigest, second.Build.ArchiveDigest)
	assert.Equal(t, first.Build.SourceDigest, second.Build.SourceDigest)
}

func TestRunRecordsLedger(t *testing.T) {
	scenario := mustParse(t, `
name: ledger
description: compile is recorded
program: |
  vault a
    registry r
    store "k" = 1
  vault b
    registry r
    registry s
    store r -> "x" = 1
    store s -> "y" = 2
    secure
assertions:
  - type: ledger
    vault: b
    keys: 2
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, result.Errors)

	require.NotNil(t, result.Build)
	assert.Equal(t, int64(1), result.Build.Seq)
	require.Len(t, result.Build.Vaults, 2)
	assert.Equal(t, "b", result.Build.Vaults[1].Name)
	assert.True(t, result.Build.Vaults[1].Secure)
	assert.Equal(t, 2, result.Build.Vaults[1].Registries)
}

func TestRunUnexpectedSuccess(t *testing.T) {
	scenario := mustParse(t, `
name: unexpected
description: program is valid but a failure is expected
program: |
  vault a
    registry r
    store "k" = 1
expect:
  codes: [E105]
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected failure codes [E105]")
}

func TestRunWrongCodes(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_codes
description: reported codes differ from the expectation
program: |
  vault a
    store "k" = 1
expect:
  codes: [E105]
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"E106"}, result.Codes)
	assert.Contains(t, result.Errors[0], "expected semantic errors [E105]")
}

func TestRunUnexpectedFailure(t *testing.T) {
	scenario := mustParse(t, `
name: unexpected_failure
description: program fails validation but assertions were given
program: |
  vault a
    store "k" = 1
assertions:
  - type: vaults
    vaults: [a]
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Nil(t, result.Report)
	assert.Contains(t, result.Errors[0], "unexpected validate failure")
	assert.Contains(t, result.Failure, "E106")
}

func TestRunBrokenDependency(t *testing.T) {
	scenario := mustParse(t, `
name: broken_dep
description: a dependency that does not compile is a harness error
dependencies:
  - name: bad.svau
    source: |
      vault bad
        store "k" = 1
program: |
  vault a
    registry r
    store "k" = 1
assertions:
  - type: vaults
    vaults: [a]
`)
	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency bad.svau")
}

func TestSnapshotFailure(t *testing.T) {
	result := NewResult()
	result.Codes = []string{"E105", "E107"}
	result.Failure = "2 semantic errors"

	out, err := Snapshot(result)
	require.NoError(t, err)
	assert.Equal(t, "codes: E105 E107\nfailure: 2 semantic errors\n", string(out))
}

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(strings.TrimPrefix(src, "\n")))
	require.NoError(t, err)
	return s
}
