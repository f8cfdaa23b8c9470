package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/dsl"
	"github.com/0bArc/Vault/internal/ir"
	"github.com/0bArc/Vault/internal/loader"
	"github.com/0bArc/Vault/internal/testutil"
)

func parse(t *testing.T, src string) *dsl.Program {
	t.Helper()
	prog, err := dsl.Parse("test.vau", []byte(src))
	require.NoError(t, err)
	return prog
}

func validate(t *testing.T, src string, deps *loader.Set, opts ValidateOptions) []SemanticError {
	t.Helper()
	_, errs := Validate(parse(t, src), deps, opts)
	return errs
}

func codes(errs []SemanticError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

// =============================================================================
// Valid programs
// =============================================================================

func TestValidateValidProgram(t *testing.T) {
	src := `vault payments
  registry creds
  store creds -> "api_key" = "k"
  store -> "retries" = 3
  if missing -> "rotated_at"
    store -> "rotated_at" = now()
  if present creds -> "api_key"
    registry audit
    store audit -> "seen" = true
  note "ok"
  secure

vault? extras
  registry misc
  store -> "token" = generate()
`
	validated, errs := Validate(parse(t, src), nil, ValidateOptions{})
	assert.Empty(t, errs)
	require.NotNil(t, validated)
	assert.Len(t, validated.Program.Vaults, 2)
}

// =============================================================================
// Individual rules
// =============================================================================

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		line int
	}{
		{
			name: "E101 duplicate vault",
			src:  "vault a\n  registry r\nvault a\n  registry r\n",
			code: ErrDuplicateVault,
			line: 3,
		},
		{
			name: "E103 bad vault name",
			src:  "vault 9lives\n  registry r\n",
			code: ErrInvalidName,
			line: 1,
		},
		{
			name: "E103 bad registry name",
			src:  "vault a\n  registry bad name\n",
			code: ErrInvalidName,
			line: 2,
		},
		{
			name: "E104 empty key",
			src:  "vault a\n  registry r\n  store r -> \"\" = 1\n",
			code: ErrInvalidKey,
			line: 3,
		},
		{
			name: "E104 control character",
			src:  "vault a\n  registry r\n  store r -> \"a\\tb\" = 1\n",
			code: ErrInvalidKey,
			line: 3,
		},
		{
			name: "E104 decomposed key",
			src:  "vault a\n  registry r\n  store r -> \"e\\u0301\" = 1\n",
			code: ErrInvalidKey,
			line: 3,
		},
		{
			name: "E104 invalid utf-8 key",
			src:  "vault a\n  registry r\n  store r -> \"\\xff\" = 1\n",
			code: ErrInvalidKey,
			line: 3,
		},
		{
			name: "E105 undeclared registry",
			src:  "vault a\n  registry r\n  store other -> \"k\" = 1\n",
			code: ErrUndeclaredRegistry,
			line: 3,
		},
		{
			name: "E105 guard on undeclared registry",
			src:  "vault a\n  registry r\n  if missing other -> \"k\"\n    note \"x\"\n",
			code: ErrUndeclaredRegistry,
			line: 3,
		},
		{
			name: "E106 no current registry",
			src:  "vault a\n  store -> \"k\" = 1\n",
			code: ErrNoCurrentRegistry,
			line: 2,
		},
		{
			name: "E107 store after secure",
			src:  "vault a\n  registry r\n  secure\n  store -> \"k\" = 1\n",
			code: ErrAfterSecure,
			line: 4,
		},
		{
			name: "E107 replace after secure",
			src:  "vault a\n  registry r\n  secure\n  replace -> \"k\" = 1\n",
			code: ErrAfterSecure,
			line: 4,
		},
		{
			name: "E107 double secure",
			src:  "vault a\n  secure\n  secure\n",
			code: ErrAfterSecure,
			line: 3,
		},
		{
			name: "E108 empty conditional",
			src:  "vault a\n  registry r\n  if missing -> \"k\"\n  store -> \"k\" = 1\n",
			code: ErrEmptyConditional,
			line: 3,
		},
		{
			name: "E109 secure in conditional",
			src:  "vault a\n  registry r\n  if missing -> \"k\"\n    secure\n",
			code: ErrSecureInConditional,
			line: 4,
		},
		{
			name: "E110 unknown builtin",
			src:  "vault a\n  registry r\n  store -> \"k\" = uuid()\n",
			code: ErrUnknownBuiltin,
			line: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validate(t, tt.src, nil, ValidateOptions{})
			require.Len(t, errs, 1, "errors: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.line, errs[0].Line)
			assert.NotEmpty(t, errs[0].Vault)
		})
	}
}

func TestValidateUndeclaredRegistryNamesIt(t *testing.T) {
	errs := validate(t, "vault V\n  store R -> \"a\" = 1\n", nil, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUndeclaredRegistry, errs[0].Code)
	assert.Contains(t, errs[0].Message, `"R"`)
	assert.Contains(t, errs[0].Error(), "[E105] line 2:3:")
}

func TestValidateSecureThenMutationNeverValid(t *testing.T) {
	for _, op := range []string{`store r -> "k" = 1`, `replace r -> "k" = 1`} {
		validated, errs := Validate(parse(t, "vault a\n  registry r\n  secure\n  "+op+"\n"), nil, ValidateOptions{})
		assert.Nil(t, validated)
		assert.Equal(t, []string{ErrAfterSecure}, codes(errs))
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	src := `vault a
  store -> "k" = 1
  registry r
  store missing -> "k" = 1
  if present r -> ""
  secure
  note "late"

vault a
  registry r
  store r -> "x" = nope()
`
	errs := validate(t, src, nil, ValidateOptions{})
	assert.Equal(t, []string{
		ErrNoCurrentRegistry,
		ErrUndeclaredRegistry,
		ErrInvalidKey,
		ErrEmptyConditional,
		ErrAfterSecure,
		ErrDuplicateVault,
		ErrUnknownBuiltin,
	}, codes(errs))
}

func TestValidateConditionalScopesRegistries(t *testing.T) {
	src := `vault a
  registry r
  if missing r -> "k"
    registry inner
    store inner -> "x" = 1
  store inner -> "y" = 2
`
	errs := validate(t, src, nil, ValidateOptions{})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUndeclaredRegistry, errs[0].Code)
	assert.Equal(t, 6, errs[0].Line)
}

func TestValidateCurrentRegistryRestoredAfterConditional(t *testing.T) {
	src := `vault a
  registry outer
  if missing -> "k"
    registry inner
    store -> "x" = 1
  store -> "y" = 2
`
	assert.Empty(t, validate(t, src, nil, ValidateOptions{}))
}

// =============================================================================
// Dependencies
// =============================================================================

func loadDeps(t *testing.T, paths ...string) *loader.Set {
	t.Helper()
	set, err := loader.Load(context.Background(), paths, testutil.Keyring(t))
	require.NoError(t, err)
	return set
}

func depVault(name string, regs map[string]map[string]ir.Value) *archive.Vault {
	v := archive.NewVault(name)
	v.Secure = true
	for reg, keys := range regs {
		v.Declare(reg)
		for k, val := range keys {
			v.Set(reg, k, val)
		}
	}
	return v
}

func TestValidateDependencyRegistries(t *testing.T) {
	kr := testutil.Keyring(t)
	path := testutil.WriteArchive(t, kr, t.TempDir(), "dep.svau",
		depVault("V", map[string]map[string]ir.Value{"creds": {"a": ir.Int(1)}}))
	deps := loadDeps(t, path)

	// Registry from the same-named dependency vault counts as declared.
	assert.Empty(t, validate(t, "vault V\n  store creds -> \"b\" = 2\n", deps, ValidateOptions{}))

	// But does not become the current registry.
	errs := validate(t, "vault V\n  store -> \"b\" = 2\n", deps, ValidateOptions{})
	assert.Equal(t, []string{ErrNoCurrentRegistry}, codes(errs))

	// Other vaults do not see it.
	errs = validate(t, "vault W\n  store creds -> \"b\" = 2\n", deps, ValidateOptions{})
	assert.Equal(t, []string{ErrUndeclaredRegistry}, codes(errs))
}

func TestValidateStrictNames(t *testing.T) {
	kr := testutil.Keyring(t)
	path := testutil.WriteArchive(t, kr, t.TempDir(), "dep.svau", depVault("V", nil))
	deps := loadDeps(t, path)
	src := "vault V\n  registry r\n"

	assert.Empty(t, validate(t, src, deps, ValidateOptions{}))

	errs := validate(t, src, deps, ValidateOptions{StrictNames: true})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDependencyCollision, errs[0].Code)
	assert.Contains(t, errs[0].Message, "dep.svau")
}

func TestValidateCustomBuiltins(t *testing.T) {
	builtins := Builtins{"hostname": func(context.Context) (ir.Value, error) { return ir.String("h"), nil }}
	src := "vault a\n  registry r\n  store -> \"h\" = hostname()\n"
	assert.Empty(t, validate(t, src, nil, ValidateOptions{Builtins: builtins}))

	errs := validate(t, "vault a\n  registry r\n  store -> \"t\" = now()\n", nil, ValidateOptions{Builtins: builtins})
	assert.Equal(t, []string{ErrUnknownBuiltin}, codes(errs))
}

func TestSemanticErrorsError(t *testing.T) {
	errs := SemanticErrors{
		{Code: ErrDuplicateVault, Vault: "a", Message: "duplicate vault name", Line: 3, Column: 1},
		{Code: ErrAfterSecure, Vault: "b", Message: "operation after secure", Line: 9, Column: 3},
	}
	assert.Equal(t, "2 semantic errors:\n"+
		"[E101] line 3:1: vault \"a\": duplicate vault name\n"+
		"[E107] line 9:3: vault \"b\": operation after secure", errs.Error())
	assert.Equal(t, "[E101] line 3:1: vault \"a\": duplicate vault name", errs[:1].Error())
}
