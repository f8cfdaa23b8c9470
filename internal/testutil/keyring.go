// Package testutil holds fixtures shared by package tests: fixed keys,
// deterministic builtin sources and archive files.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0bArc/Vault/internal/archive"
)

// Fixed credentials for tests. Never use them outside tests.
const (
	MasterKeyHex = "4242424242424242424242424242424242424242424242424242424242424242"
	OtherKeyHex  = "0707070707070707070707070707070707070707070707070707070707070707"
	Token        = "test-token"
)

// Keyring returns the keyring for MasterKeyHex and Token.
func Keyring(t testing.TB) *archive.Keyring {
	t.Helper()
	kr, err := archive.ParseKeyring(MasterKeyHex, Token)
	require.NoError(t, err)
	return kr
}

// OtherKeyring returns a keyring that cannot open archives sealed by Keyring.
func OtherKeyring(t testing.TB) *archive.Keyring {
	t.Helper()
	kr, err := archive.ParseKeyring(OtherKeyHex, Token)
	require.NoError(t, err)
	return kr
}

// WriteSource writes DSL source into dir and returns its path.
func WriteSource(t testing.TB, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// WriteArchive seals vaults with kr into dir/name and returns the path.
func WriteArchive(t testing.TB, kr *archive.Keyring, dir, name string, vaults ...*archive.Vault) string {
	t.Helper()
	a := &archive.Archive{}
	for _, v := range vaults {
		e, err := archive.Seal(kr, v)
		require.NoError(t, err)
		a.Entries = append(a.Entries, e)
	}
	data, err := archive.Encode(a, kr)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, archive.WriteFile(path, data))
	return path
}
