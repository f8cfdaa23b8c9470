package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/ir"
	"github.com/0bArc/Vault/internal/testutil"
)

func sampleBuild(t *testing.T, output string) *Build {
	t.Helper()
	kr := testutil.Keyring(t)

	app := archive.NewVault("app")
	app.Set("env", "mode", ir.String("prod"))
	app.Set("env", "port", ir.Int(8080))
	app.Set("flags", "beta", ir.Bool(true))

	keys := archive.NewVault("keys")
	keys.Secure = true
	keys.Set("api", "token", ir.String("s3cr3t"))

	a := &archive.Archive{Dependencies: []string{"base.vau", "base.vau"}}
	for _, v := range []*archive.Vault{app, keys} {
		e, err := archive.Seal(kr, v)
		require.NoError(t, err)
		a.Entries = append(a.Entries, e)
	}
	encoded, err := archive.Encode(a, kr)
	require.NoError(t, err)

	b, err := NewBuild("app.vs", []byte("vault app\n"), output, encoded, a, kr)
	require.NoError(t, err)
	return b
}

func TestNewBuild_Summaries(t *testing.T) {
	b := sampleBuild(t, "app.vau")

	assert.Equal(t, ir.Digest(ir.DomainSource, []byte("vault app\n")), b.SourceDigest)
	assert.Len(t, b.ArchiveDigest, 64)
	assert.Equal(t, []string{"base.vau"}, b.Dependencies)
	assert.Equal(t, ir.EngineVersion, b.EngineVersion)
	assert.Equal(t, 1, b.FormatVersion)
	assert.Equal(t, []BuildVault{
		{Name: "app", Registries: 2, Keys: 3},
		{Name: "keys", Secure: true, Registries: 1, Keys: 1},
	}, b.Vaults)
}

func TestNewBuild_WrongKeyring(t *testing.T) {
	kr := testutil.Keyring(t)
	v := archive.NewVault("locked")
	v.Secure = true
	e, err := archive.Seal(kr, v)
	require.NoError(t, err)
	a := &archive.Archive{Entries: []*archive.Entry{e}}
	encoded, err := archive.Encode(a, kr)
	require.NoError(t, err)

	_, err = NewBuild("s", nil, "o", encoded, a, testutil.OtherKeyring(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrMACMismatch))
}

func TestRecordBuild_AssignsIdentity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := sampleBuild(t, "app.vau")
	require.NoError(t, s.RecordBuild(ctx, b))

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, int64(1), b.Seq)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := s.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	// time.Time compares with its Equal method, so the UTC round trip is fine.
	if diff := cmp.Diff(b, got); diff != "" {
		t.Errorf("GetBuild mismatch (-recorded +read):\n%s", diff)
	}
}

func TestRecordBuild_SeqMonotonic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		b := sampleBuild(t, "app.vau")
		require.NoError(t, s.RecordBuild(ctx, b))
		assert.Equal(t, int64(i), b.Seq)
	}
}

func TestRecordBuild_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := sampleBuild(t, "app.vau")
	b.ID = "fixed"
	require.NoError(t, s.RecordBuild(ctx, b))

	dup := sampleBuild(t, "app.vau")
	dup.ID = "fixed"
	require.Error(t, s.RecordBuild(ctx, dup))

	builds, err := s.ListBuilds(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, builds, 1, "failed transaction must not leave a partial record")
}

func TestListBuilds_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, out := range []string{"a.vau", "b.vau", "c.vau"} {
		b := sampleBuild(t, out)
		// Wall time runs backwards; order must follow seq.
		b.CreatedAt = base.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, s.RecordBuild(ctx, b))
	}

	builds, err := s.ListBuilds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "c.vau", builds[0].OutputPath)
	assert.Equal(t, "b.vau", builds[1].OutputPath)
	assert.Len(t, builds[0].Vaults, 2)

	all, err := s.ListBuilds(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListBuilds_Empty(t *testing.T) {
	s := createTestStore(t)

	builds, err := s.ListBuilds(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, builds)
	assert.Empty(t, builds)
}

func TestGetBuild_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetBuild(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestForOutput(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := sampleBuild(t, "app.vau")
	require.NoError(t, s.RecordBuild(ctx, first))
	require.NoError(t, s.RecordBuild(ctx, sampleBuild(t, "other.vau")))
	second := sampleBuild(t, "app.vau")
	require.NoError(t, s.RecordBuild(ctx, second))

	got, err := s.LatestForOutput(ctx, "app.vau")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = s.LatestForOutput(ctx, "missing.vau")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDependencies_EmptyRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	b := sampleBuild(t, "app.vau")
	b.Dependencies = nil
	require.NoError(t, s.RecordBuild(ctx, b))

	got, err := s.GetBuild(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Dependencies)
}
