package compiler

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/ir"
	"github.com/0bArc/Vault/internal/loader"
	"github.com/0bArc/Vault/internal/logging"
)

// Options configures Compile.
type Options struct {
	// Keyring seals secure vaults and the archive trailer. Required.
	Keyring *archive.Keyring

	// MaterializeOptionals compiles `vault?` blocks that no dependency
	// provides instead of skipping them.
	MaterializeOptionals bool

	// Builtins evaluates calls. Nil means DefaultBuiltins.
	Builtins Builtins
}

// Compile replays every vault of v and seals the results into an archive.
// Vaults keep their declaration order; skipped optional vaults are left out.
func Compile(ctx context.Context, v *Validated, deps *loader.Set, opts Options) (*archive.Archive, error) {
	if v == nil || v.Program == nil {
		return nil, errors.New("compile: nil program")
	}
	if opts.Keyring == nil {
		return nil, errors.New("compile: keyring is required")
	}
	builtins := opts.Builtins
	if builtins == nil {
		builtins = DefaultBuiltins()
	}
	logger := logging.FromContext(ctx)

	out := &archive.Archive{Version: archive.Version, Dependencies: deps.Names()}
	for _, vault := range v.Program.Vaults {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, err := replayVault(ctx, logger, vault, deps, builtins, opts.MaterializeOptionals)
		if err != nil {
			return nil, err
		}
		if state == nil {
			continue
		}

		entry, err := archive.Seal(opts.Keyring, state)
		if err != nil {
			return nil, &CompileError{Vault: vault.Name, Line: vault.Pos.Line, Cause: err}
		}
		out.Entries = append(out.Entries, entry)
		logger.Debug("vault sealed", "vault", vault.Name, "secure", state.Secure,
			"registries", len(state.Registries), "bytes", len(entry.Payload))
	}
	return out, nil
}

// replayVault builds the final state of one vault. It returns nil when an
// optional vault is skipped.
func replayVault(ctx context.Context, logger *log.Logger, vault *dsl.Vault, deps *loader.Set, builtins Builtins, materialize bool) (*archive.Vault, error) {
	seed, found, err := deps.Vault(vault.Name)
	if err != nil {
		return nil, &CompileError{Vault: vault.Name, Line: vault.Pos.Line, Cause: fmt.Errorf("%w: %w", ErrDependency, err)}
	}

	if vault.Optional && !found && !materialize {
		logger.Info("optional vault skipped", "vault", vault.Name)
		return nil, nil
	}

	var state *archive.Vault
	var seeded []string
	if found {
		state = seed.Clone()
		state.Notes = nil
		state.Secure = false
		seeded = state.RegistryNames()
		src, _ := deps.Source(vault.Name)
		logger.Debug("vault seeded from dependency", "vault", vault.Name, "source", src)
	} else {
		state = archive.NewVault(vault.Name)
	}
	state.Optional = vault.Optional

	r := &replayer{ctx: ctx, logger: logger, vault: vault, state: state, builtins: builtins}
	if err := r.run(vault.Body, newScope(seeded)); err != nil {
		return nil, err
	}
	return state, nil
}

type replayer struct {
	ctx      context.Context
	logger   *log.Logger
	vault    *dsl.Vault
	state    *archive.Vault
	builtins Builtins
}

func (r *replayer) fail(pos dsl.Pos, err error) error {
	return &CompileError{Vault: r.vault.Name, Line: pos.Line, Cause: err}
}

func (r *replayer) run(ops []dsl.Operation, sc *scope) error {
	for _, op := range ops {
		switch o := op.(type) {
		case *dsl.RegistryDecl:
			sc.declare(o.Name)
			r.state.Declare(o.Name)
			r.logger.Debug("registry", "vault", r.vault.Name, "registry", o.Name)

		case *dsl.Assign:
			reg, err := sc.resolve(o.Target)
			if err != nil {
				return r.fail(o.Pos, err)
			}
			val, err := r.eval(o.Value)
			if err != nil {
				return r.fail(o.Pos, err)
			}
			r.state.Set(reg, o.Target.Key, val)
			r.logger.Debug(o.Kind.Keyword(), "vault", r.vault.Name, "registry", reg, "key", o.Target.Key)

		case *dsl.Conditional:
			reg, err := sc.resolve(o.Target)
			if err != nil {
				return r.fail(o.Pos, fmt.Errorf("guard: %w", err))
			}
			// Evaluated once, against the state before the body runs.
			_, present := r.state.Get(reg, o.Target.Key)
			holds := present
			if o.When == dsl.IfMissing {
				holds = !present
			}
			r.logger.Debug("guard", "vault", r.vault.Name, "if", o.When.Keyword(),
				"registry", reg, "key", o.Target.Key, "holds", holds)
			if !holds {
				continue
			}
			if err := r.run(o.Body, sc.child()); err != nil {
				return err
			}

		case *dsl.Note:
			r.state.Notes = append(r.state.Notes, o.Text)

		case *dsl.Secure:
			r.state.Secure = true
			r.logger.Debug("secure", "vault", r.vault.Name)
		}
	}
	return nil
}

func (r *replayer) eval(e dsl.Expr) (ir.Value, error) {
	switch x := e.(type) {
	case *dsl.Literal:
		return x.Value, nil
	case *dsl.Call:
		fn, ok := r.builtins[x.Name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown builtin %s()", ErrBuiltin, x.Name)
		}
		val, err := fn(r.ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s(): %w", ErrBuiltin, x.Name, err)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}
