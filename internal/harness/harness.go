package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/compiler"
	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/inspect"
	"github.com/0bArc/Vault/internal/loader"
	"github.com/0bArc/Vault/internal/logging"
	"github.com/0bArc/Vault/internal/store"
	"github.com/0bArc/Vault/internal/testutil"
)

// Harness runs scenarios with fixed keys and deterministic builtins.
type Harness struct {
	keyring  *archive.Keyring
	builtins compiler.Builtins
	store    *store.Store
	dir      string
}

// Run executes a scenario and returns its result.
//
// Each scenario gets a fresh temp directory for dependency archives and a
// fresh in-memory ledger. The returned error reports harness failures
// (a dependency that does not compile, I/O); expectation and assertion
// failures are recorded in the Result.
//
// Execution flow:
//  1. Compile and write every dependency archive
//  2. Load them with the dependency loader
//  3. Parse, validate and compile the program
//  4. Compare failures against Expect, or inspect the archive, record it
//     in the ledger and evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	kr, err := archive.ParseKeyring(testutil.MasterKeyHex, testutil.Token)
	if err != nil {
		return nil, fmt.Errorf("test keyring: %w", err)
	}

	dir, err := os.MkdirTemp("", "vault-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("create in-memory ledger: %w", err)
	}
	defer st.Close()

	h := &Harness{
		keyring:  kr,
		builtins: compiler.NewBuiltins(testutil.NewFixedRandom(0), testutil.NewDeterministicClock()),
		store:    st,
		dir:      dir,
	}
	return h.run(ctx, scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := logging.FromContext(ctx).With("scenario", scenario.Name)

	paths := make([]string, 0, len(scenario.Dependencies))
	for _, dep := range scenario.Dependencies {
		path, err := h.buildDependency(ctx, dep)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", dep.Name, err)
		}
		logger.Debug("dependency built", "name", dep.Name)
		paths = append(paths, path)
	}

	deps, err := loader.Load(ctx, paths, h.keyring)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}

	result := NewResult()
	source := []byte(scenario.Program)
	a, stage, err := h.compile(ctx, scenario.Name+".vau", source, deps, scenario.Options, result)
	if err != nil {
		checkFailure(result, scenario.Expect, stage, err)
		return result, nil
	}
	if scenario.Expect != nil {
		result.AddError(fmt.Sprintf("expected failure %s, but the program compiled", describeExpect(scenario.Expect)))
		return result, nil
	}

	encoded, err := archive.Encode(a, h.keyring)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	result.Report, err = inspect.InspectBytes(encoded, h.keyring, inspect.Options{HideMAC: true})
	if err != nil {
		return nil, fmt.Errorf("inspect archive: %w", err)
	}

	output := filepath.Join(h.dir, scenario.Name+".svau")
	build, err := store.NewBuild(scenario.Name+".vau", source, output, encoded, a, h.keyring)
	if err != nil {
		return nil, fmt.Errorf("summarize build: %w", err)
	}
	if err := h.store.RecordBuild(ctx, build); err != nil {
		return nil, err
	}
	if result.Build, err = h.store.LatestForOutput(ctx, output); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions) {
		result.AddError(msg)
	}
	logger.Debug("scenario finished", "pass", result.Pass)
	return result, nil
}

// Failure stages reported by compile.
const (
	stageParse    = "parse"
	stageValidate = "validate"
	stageCompile  = "compile"
)

func (h *Harness) compile(ctx context.Context, name string, src []byte, deps *loader.Set, opts ScenarioOptions, result *Result) (*archive.Archive, string, error) {
	prog, err := dsl.Parse(name, src)
	if err != nil {
		return nil, stageParse, err
	}

	validated, errs := compiler.Validate(prog, deps, compiler.ValidateOptions{
		StrictNames: opts.StrictNames,
		Builtins:    h.builtins,
	})
	if len(errs) > 0 {
		if result != nil {
			for _, e := range errs {
				result.Codes = append(result.Codes, e.Code)
			}
		}
		return nil, stageValidate, compiler.SemanticErrors(errs)
	}

	a, err := compiler.Compile(ctx, validated, deps, compiler.Options{
		Keyring:              h.keyring,
		MaterializeOptionals: opts.MaterializeOptionals,
		Builtins:             h.builtins,
	})
	if err != nil {
		return nil, stageCompile, err
	}
	return a, "", nil
}

func (h *Harness) buildDependency(ctx context.Context, dep DependencySource) (string, error) {
	a, _, err := h.compile(ctx, dep.Name, []byte(dep.Source), nil, ScenarioOptions{}, nil)
	if err != nil {
		return "", err
	}
	data, err := archive.Encode(a, h.keyring)
	if err != nil {
		return "", err
	}
	path := filepath.Join(h.dir, dep.Name)
	if err := archive.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func checkFailure(result *Result, expect *ExpectClause, stage string, err error) {
	result.Failure = err.Error()
	if expect == nil {
		result.AddError(fmt.Sprintf("unexpected %s failure: %v", stage, err))
		return
	}

	switch {
	case expect.Parse != "":
		var pe *dsl.ParseError
		if !errors.As(err, &pe) || !strings.Contains(err.Error(), expect.Parse) {
			result.AddError(fmt.Sprintf("expected parse error containing %q, got %s failure: %v", expect.Parse, stage, err))
		}
	case len(expect.Codes) > 0:
		if stage != stageValidate || !slices.Equal(result.Codes, expect.Codes) {
			result.AddError(fmt.Sprintf("expected semantic errors %v, got %s failure: %v", expect.Codes, stage, err))
		}
	case expect.Compile != "":
		var ce *compiler.CompileError
		if !errors.As(err, &ce) || !strings.Contains(err.Error(), expect.Compile) {
			result.AddError(fmt.Sprintf("expected compile error containing %q, got %s failure: %v", expect.Compile, stage, err))
		}
	}
}

func describeExpect(e *ExpectClause) string {
	switch {
	case e.Parse != "":
		return fmt.Sprintf("parse %q", e.Parse)
	case len(e.Codes) > 0:
		return fmt.Sprintf("codes %v", e.Codes)
	default:
		return fmt.Sprintf("compile %q", e.Compile)
	}
}
