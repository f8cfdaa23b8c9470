package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/testutil"
)

const appSource = `vault app
  registry env
  store -> "mode" = "prod"
  store -> "port" = 8080
  note "primary"

vault keys
  registry api
  store -> "token" = "s3cr3t"
  secure
`

// setKeys configures the test keyring through the environment.
func setKeys(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_MASTER_KEY", testutil.MasterKeyHex)
	t.Setenv("VAULT_TOKEN", testutil.Token)
	t.Setenv("VAULT_LEDGER", "")
	t.Setenv("VAULT_MATERIALIZE_OPTIONALS", "")
	t.Setenv("VAULT_STRICT_NAMES", "")
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// compileApp compiles appSource into dir and returns the archive path.
func compileApp(t *testing.T, dir string) string {
	t.Helper()
	in := testutil.WriteSource(t, dir, "app.vau", appSource)
	out := filepath.Join(dir, "app.svau")
	_, _, err := execute(t, "compile", in, out)
	require.NoError(t, err)
	return out
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRootInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "deps", "x.svau")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --format")
}

func TestRootCommandTree(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"compile", "inspect", "validate", "fmt", "deps", "query", "build", "history"}, names)
}

func TestCompileAndInspect(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	in := testutil.WriteSource(t, dir, "app.vau", appSource)
	out := filepath.Join(dir, "app.svau")

	stdout, _, err := execute(t, "compile", in, out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Compiled 2 vault(s)")
	assert.FileExists(t, out)

	stdout, _, err = execute(t, "inspect", out, "--hide-mac")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# Vault Archive (decrypted view)")
	assert.Contains(t, stdout, `"mode" = "prod"`)
	assert.Contains(t, stdout, `"token" = "s3cr3t"`)
	assert.Contains(t, stdout, "vault keys secure")
	assert.NotContains(t, stdout, "mac=")

	stdout, _, err = execute(t, "inspect", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "mac=")
	assert.Contains(t, stdout, "trailer ")
}

func TestCompileJSON(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	in := testutil.WriteSource(t, dir, "app.vau", appSource)
	out := filepath.Join(dir, "app.svau")

	stdout, _, err := execute(t, "--format", "json", "compile", in, out)
	require.NoError(t, err)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"app", "keys"}, data["vaults"])
	assert.Equal(t, out, data["output"])
	assert.NotContains(t, data, "build_id", "no ledger configured")
}

func TestCompileSemanticErrors(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	in := testutil.WriteSource(t, dir, "bad.vau", "vault a\n  store \"k\" = 1\n  store other -> \"x\" = 2\n")
	out := filepath.Join(dir, "bad.svau")

	stdout, _, err := execute(t, "--format", "json", "compile", in, out)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.NoFileExists(t, out)

	resp := decodeResponse(t, stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeSemantic, resp.Error.Code)
	details, ok := resp.Error.Details.([]any)
	require.True(t, ok)
	assert.Len(t, details, 2)
}

func TestCompileParseError(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	in := testutil.WriteSource(t, dir, "bad.vau", "vault a\n  registry r\n  store \"k = 1\n")

	_, _, err := execute(t, "compile", in, filepath.Join(dir, "bad.svau"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad.vau:3")
}

func TestCompileMissingKeys(t *testing.T) {
	setKeys(t)
	t.Setenv("VAULT_MASTER_KEY", "")
	dir := t.TempDir()
	in := testutil.WriteSource(t, dir, "app.vau", appSource)

	stdout, _, err := execute(t, "--format", "json", "compile", in, filepath.Join(dir, "app.svau"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "MASTER_KEY is required")

	resp := decodeResponse(t, stdout)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
}

func TestCompileMissingSource(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	_, _, err := execute(t, "compile", filepath.Join(dir, "nope.vau"), filepath.Join(dir, "out.svau"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCompileWithDependency(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	base := compileApp(t, dir)

	in := testutil.WriteSource(t, dir, "local.vau", "vault app\n  replace env -> \"mode\" = \"local\"\n")
	out := filepath.Join(dir, "local.svau")
	stdout, _, err := execute(t, "compile", in, out, "--load", base)
	require.NoError(t, err)
	assert.Contains(t, stdout, "depends on [app.svau]")

	stdout, _, err = execute(t, "query", out, `.vaults[0].registries[0].keys | map(.value)`)
	require.NoError(t, err)
	assert.Equal(t, "[\"local\",8080]\n", stdout)

	stdout, _, err = execute(t, "deps", out)
	require.NoError(t, err)
	assert.Equal(t, "app.svau\n", stdout)
}

func TestCompileMissingDependency(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	in := testutil.WriteSource(t, dir, "app.vau", appSource)

	_, _, err := execute(t, "compile", in, filepath.Join(dir, "app.svau"), "--load", filepath.Join(dir, "missing.svau"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "file not found")
}

func TestInspectTampered(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	path := compileApp(t, dir)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	i := bytes.Index(data, []byte(`"primary"`))
	require.Positive(t, i)
	data[i+1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o644))

	stdout, _, err := execute(t, "--format", "json", "inspect", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, stdout)
	assert.Equal(t, ErrCodeIntegrity, resp.Error.Code)

	stdout, _, err = execute(t, "inspect", path, "--lenient")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "# archive integrity: failed")
	assert.Contains(t, err.Error(), "integrity check failed")
}

func TestInspectWrongKey(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	path := compileApp(t, dir)

	t.Setenv("VAULT_MASTER_KEY", testutil.OtherKeyHex)
	_, _, err := execute(t, "inspect", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "integrity violation")
}

func TestInspectYAML(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	path := compileApp(t, dir)

	stdout, _, err := execute(t, "--format", "yaml", "inspect", path, "--hide-mac")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "status: ok\n"), stdout)
	assert.Contains(t, stdout, "integrity: ok")
	assert.Contains(t, stdout, "name: keys")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	good := testutil.WriteSource(t, dir, "good.vau", appSource)
	stdout, _, err := execute(t, "validate", good)
	require.NoError(t, err, "validate needs no keys without --load")
	assert.Contains(t, stdout, "is valid (2 vault(s))")

	bad := testutil.WriteSource(t, dir, "bad.vau", "vault a\n  store \"k\" = 1\n  registry r\n  secure\n  note \"late\"\n")
	stdout, _, err = execute(t, "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "[E106]")
	assert.Contains(t, stdout, "[E107]")
}

func TestValidateWithDependency(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	base := compileApp(t, dir)

	in := testutil.WriteSource(t, dir, "local.vau", "vault app\n  store env -> \"x\" = 1\n")
	stdout, _, err := execute(t, "validate", in, "--load", base)
	require.NoError(t, err)
	assert.Contains(t, stdout, "app seeded from dependency")

	_, _, err = execute(t, "validate", in, "--load", base, "--strict-names")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestFmt(t *testing.T) {
	dir := t.TempDir()
	messy := "vault app\n    registry env\n    store env->\"mode\" = \"prod\"\n"
	want := "vault app\n  registry env\n  store env -> \"mode\" = \"prod\"\n"
	path := testutil.WriteSource(t, dir, "app.vau", messy)

	stdout, _, err := execute(t, "fmt", path)
	require.NoError(t, err)
	assert.Equal(t, want, stdout)

	_, _, err = execute(t, "fmt", path, "--check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "is not formatted")

	stdout, _, err = execute(t, "fmt", path, "-w")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Formatted")
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(written))

	_, _, err = execute(t, "fmt", path, "--check")
	require.NoError(t, err)
}

func TestFmtParseError(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteSource(t, dir, "bad.vau", "\tvault a\n")

	_, _, err := execute(t, "fmt", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestDepsWithoutKeys(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	path := compileApp(t, dir)

	t.Setenv("VAULT_MASTER_KEY", "")
	stdout, _, err := execute(t, "--format", "json", "deps", path)
	require.NoError(t, err)
	resp := decodeResponse(t, stdout)
	data := resp.Data.(map[string]any)
	assert.Equal(t, []any{}, data["dependencies"])
}

func TestDepsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "junk.svau")
	require.NoError(t, os.WriteFile(path, []byte("not an archive"), 0o644))

	_, _, err := execute(t, "deps", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, archive.ErrMalformed)
}

func TestQuery(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	path := compileApp(t, dir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"names", []string{".vaults[].name"}, "\"app\"\n\"keys\"\n"},
		{"raw", []string{".vaults[].name", "--raw"}, "app\nkeys\n"},
		{"secure flag", []string{`.vaults[] | select(.name == "keys") | .secure`}, "true\n"},
		{"number", []string{`.vaults[0].registries[0].keys[] | select(.key == "port") | .value`}, "8080\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, append([]string{"query", path}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestQueryBadExpression(t *testing.T) {
	setKeys(t)
	dir := t.TempDir()
	path := compileApp(t, dir)

	_, _, err := execute(t, "query", path, ".vaults[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "parse query")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestInspectWriteFailure(t *testing.T) {
	setKeys(t)
	path := compileApp(t, t.TempDir())

	cmd := NewRootCommand()
	cmd.SetOut(failingWriter{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"inspect", path})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "disk full")
}
