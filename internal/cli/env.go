package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/compiler"
	"github.com/0bArc/Vault/internal/config"
	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/loader"
	"github.com/0bArc/Vault/internal/logging"
	"github.com/0bArc/Vault/internal/store"
)

// env is the resolved configuration of one command run.
type env struct {
	cfg *config.Config
	kr  *archive.Keyring
}

// errConfig marks settings that could not be loaded or are invalid.
var errConfig = errors.New("config")

// loadSettings reads settings without requiring keys.
func loadSettings(ctx context.Context, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.LoadOptions{Path: opts.ConfigPath})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if cfg.Path != "" {
		logging.FromContext(ctx).Debug("config loaded", "path", cfg.Path)
	}
	return cfg, nil
}

// loadEnv reads settings and derives the keyring.
func loadEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg, err := loadSettings(ctx, opts)
	if err != nil {
		return nil, err
	}
	kr, err := cfg.Keyring()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return &env{cfg: cfg, kr: kr}, nil
}

// ledgerPath is --ledger, else LEDGER from settings.
func ledgerPath(cfg *config.Config, opts *RootOptions) string {
	if opts.LedgerPath != "" {
		return opts.LedgerPath
	}
	return cfg.Ledger
}

// openLedger opens the build ledger at path. It returns nil for an empty
// path.
func openLedger(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	return store.Open(path)
}

// unit is one source file to compile.
type unit struct {
	Input  string
	Output string
	Loads  []string

	MaterializeOptionals bool
	StrictNames          bool
}

// compiled is a successful compile, written to disk.
type compiled struct {
	Source  []byte
	Archive *archive.Archive
	Encoded []byte
	Build   *store.Build
}

// compileUnit runs parse, load, validate and compile for u, writes the
// archive and records it in the ledger when one is open. A failed ledger
// write is logged and leaves Build nil.
func (e *env) compileUnit(ctx context.Context, u unit, cache *loader.Cache, ledger *store.Store) (*compiled, error) {
	logger := logging.FromContext(ctx).With("input", u.Input)

	source, err := os.ReadFile(u.Input)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	prog, err := dsl.Parse(u.Input, source)
	if err != nil {
		return nil, err
	}

	var loadOpts []loader.Option
	if cache != nil {
		loadOpts = append(loadOpts, loader.WithCache(cache))
	}
	deps, err := loader.Load(ctx, u.Loads, e.kr, loadOpts...)
	if err != nil {
		return nil, err
	}

	validated, errs := compiler.Validate(prog, deps, compiler.ValidateOptions{
		StrictNames: u.StrictNames || e.cfg.StrictNames,
	})
	if len(errs) > 0 {
		return nil, compiler.SemanticErrors(errs)
	}

	a, err := compiler.Compile(ctx, validated, deps, compiler.Options{
		Keyring:              e.kr,
		MaterializeOptionals: u.MaterializeOptionals || e.cfg.MaterializeOptionals,
	})
	if err != nil {
		return nil, err
	}

	encoded, err := archive.Encode(a, e.kr)
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}

	// Everything that can fail with the compile happens before the write.
	var build *store.Build
	if ledger != nil {
		if build, err = store.NewBuild(u.Input, source, u.Output, encoded, a, e.kr); err != nil {
			return nil, err
		}
	}

	if err := archive.WriteFile(u.Output, encoded); err != nil {
		return nil, err
	}
	logger.Info("archive written", "output", u.Output, "vaults", len(a.Entries), "bytes", len(encoded))

	out := &compiled{Source: source, Archive: a, Encoded: encoded}
	if build == nil {
		return out, nil
	}
	// The archive is complete on disk; a ledger failure does not undo it.
	if err := ledger.RecordBuild(ctx, build); err != nil {
		logger.Warn("build not recorded", "output", u.Output, "err", err)
		return out, nil
	}
	logger.Debug("build recorded", "id", build.ID, "seq", build.Seq)
	out.Build = build
	return out, nil
}
