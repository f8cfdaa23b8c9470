package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/0bArc/Vault/internal/inspect"
)

// RunWithGolden executes a scenario and compares its decrypted view against
// testdata/golden/{scenario.Name}.golden. Failing scenarios are compared
// by their failure text instead.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}

// Snapshot renders the comparable form of a result: the text report with
// MACs hidden, or the failure.
func Snapshot(result *Result) ([]byte, error) {
	if result.Report == nil {
		var buf strings.Builder
		if len(result.Codes) > 0 {
			fmt.Fprintf(&buf, "codes: %s\n", strings.Join(result.Codes, " "))
		}
		fmt.Fprintf(&buf, "failure: %s\n", result.Failure)
		return []byte(buf.String()), nil
	}

	var buf bytes.Buffer
	if err := inspect.WriteText(&buf, result.Report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
