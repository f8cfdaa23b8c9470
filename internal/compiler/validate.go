package compiler

import (
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/loader"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ValidateOptions configures Validate.
type ValidateOptions struct {
	// StrictNames rejects vaults that share a name with a dependency
	// instead of seeding them from it.
	StrictNames bool

	// Builtins lists the callable builtins. Nil means DefaultBuiltins.
	Builtins Builtins
}

// Validated is a program that passed Validate. Only a Validated program
// can be compiled.
type Validated struct {
	Program *dsl.Program
}

// Validate checks prog against the structural rules.
// Returns all errors found (does not fail-fast).
func Validate(prog *dsl.Program, deps *loader.Set, opts ValidateOptions) (*Validated, []SemanticError) {
	builtins := opts.Builtins
	if builtins == nil {
		builtins = DefaultBuiltins()
	}
	v := &validator{deps: deps, opts: opts, builtins: builtins}

	seen := make(map[string]dsl.Pos)
	for _, vault := range prog.Vaults {
		// E101: duplicate vault name
		if first, ok := seen[vault.Name]; ok {
			v.add(vault, vault.Pos, ErrDuplicateVault,
				fmt.Sprintf("duplicate vault name (first declared on line %d)", first.Line))
		} else {
			seen[vault.Name] = vault.Pos
		}
		v.vault(vault)
	}

	if len(v.errs) > 0 {
		return nil, v.errs
	}
	return &Validated{Program: prog}, nil
}

type validator struct {
	deps     *loader.Set
	opts     ValidateOptions
	builtins Builtins
	errs     []SemanticError
}

func (v *validator) add(vault *dsl.Vault, pos dsl.Pos, code, msg string) {
	v.errs = append(v.errs, SemanticError{
		Code:    code,
		Vault:   vault.Name,
		Message: msg,
		Line:    pos.Line,
		Column:  pos.Column,
	})
}

func (v *validator) vault(vault *dsl.Vault) {
	// E103: malformed vault name
	if !namePattern.MatchString(vault.Name) {
		v.add(vault, vault.Pos, ErrInvalidName, fmt.Sprintf("invalid vault name %q", vault.Name))
	}

	// E102: collision with a dependency
	if v.opts.StrictNames && v.deps.Has(vault.Name) {
		src, _ := v.deps.Source(vault.Name)
		v.add(vault, vault.Pos, ErrDependencyCollision,
			fmt.Sprintf("vault name collides with dependency %s", src))
	}

	v.body(vault, vault.Body, newScope(v.seededRegistries(vault.Name)), false)
}

// seededRegistries returns the registries of the same-named dependency
// vault. A dependency that fails to open contributes nothing here; Compile
// reports it.
func (v *validator) seededRegistries(name string) []string {
	seed, ok, err := v.deps.Vault(name)
	if !ok || err != nil {
		return nil
	}
	return seed.RegistryNames()
}

func (v *validator) body(vault *dsl.Vault, ops []dsl.Operation, sc *scope, inConditional bool) {
	var securedAt *dsl.Secure
	for _, op := range ops {
		// E107: nothing may follow secure
		if securedAt != nil {
			v.add(vault, op.Position(), ErrAfterSecure,
				fmt.Sprintf("operation after secure (line %d)", securedAt.Pos.Line))
		}

		switch o := op.(type) {
		case *dsl.RegistryDecl:
			if !namePattern.MatchString(o.Name) {
				v.add(vault, o.Pos, ErrInvalidName, fmt.Sprintf("invalid registry name %q", o.Name))
			}
			sc.declare(o.Name)

		case *dsl.Assign:
			v.target(vault, o.Pos, o.Target, sc)
			if call, ok := o.Value.(*dsl.Call); ok {
				// E110: unknown builtin
				if _, known := v.builtins[call.Name]; !known {
					v.add(vault, call.Pos, ErrUnknownBuiltin,
						fmt.Sprintf("unknown builtin %s() (known: %v)", call.Name, v.builtins.Names()))
				}
			}

		case *dsl.Conditional:
			v.target(vault, o.Pos, o.Target, sc)
			// E108: empty conditional body
			if len(o.Body) == 0 {
				v.add(vault, o.Pos, ErrEmptyConditional,
					fmt.Sprintf("if %s %s has an empty body", o.When.Keyword(), dsl.FormatTarget(o.Target)))
			}
			v.body(vault, o.Body, sc.child(), true)

		case *dsl.Secure:
			// E109: secure inside a conditional
			if inConditional {
				v.add(vault, o.Pos, ErrSecureInConditional, "secure is not allowed inside a conditional body")
				continue
			}
			if securedAt == nil {
				securedAt = o
			}

		case *dsl.Note:
		}
	}
}

func (v *validator) target(vault *dsl.Vault, pos dsl.Pos, t dsl.Target, sc *scope) {
	// E104: malformed key
	if msg := checkKey(t.Key); msg != "" {
		v.add(vault, pos, ErrInvalidKey, msg)
	}

	if t.Registry == "" {
		// E106: no current registry
		if sc.current == "" {
			v.add(vault, pos, ErrNoCurrentRegistry,
				fmt.Sprintf("key %q has no registry and no registry is declared before it", t.Key))
		}
		return
	}

	// E105: undeclared registry
	if !sc.has(t.Registry) {
		v.add(vault, pos, ErrUndeclaredRegistry,
			fmt.Sprintf("registry %q is not declared", t.Registry))
	}
}

func checkKey(key string) string {
	if key == "" {
		return "key must not be empty"
	}
	if !utf8.ValidString(key) {
		return fmt.Sprintf("key %q is not valid UTF-8", key)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Sprintf("key %q contains control character %U", key, r)
		}
	}
	// Keys are matched byte for byte, so two spellings of one key would
	// be two cells.
	if !norm.NFC.IsNormalString(key) {
		return fmt.Sprintf("key %q is not in Unicode NFC form (use %q)", key, norm.NFC.String(key))
	}
	return ""
}
