package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const buildColumns = `
	id, seq, source_path, source_digest, output_path, archive_digest,
	dependencies, engine_version, format_version, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

// ListBuilds returns the most recent builds, newest first.
// A non-positive limit returns every build.
// Returns an empty slice (not nil) when the ledger is empty.
func (s *Store) ListBuilds(ctx context.Context, limit int) ([]Build, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}

	for i := range builds {
		vaults, err := s.buildVaults(ctx, builds[i].ID)
		if err != nil {
			return nil, err
		}
		builds[i].Vaults = vaults
	}
	return builds, nil
}

// GetBuild returns the build with the given ID, or ErrNotFound.
func (s *Store) GetBuild(ctx context.Context, id string) (*Build, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	return s.finishBuild(ctx, row, id)
}

// LatestForOutput returns the most recent build written to outputPath,
// or ErrNotFound.
func (s *Store) LatestForOutput(ctx context.Context, outputPath string) (*Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE output_path = ?
		ORDER BY seq DESC
		LIMIT 1
	`, outputPath)
	return s.finishBuild(ctx, row, outputPath)
}

func (s *Store) finishBuild(ctx context.Context, row *sql.Row, what string) (*Build, error) {
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if err != nil {
		return nil, err
	}
	b.Vaults, err = s.buildVaults(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) buildVaults(ctx context.Context, buildID string) ([]BuildVault, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, optional, secure, registries, keys
		FROM build_vaults
		WHERE build_id = ?
		ORDER BY position ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query build vaults %s: %w", buildID, err)
	}
	defer rows.Close()

	vaults := []BuildVault{}
	for rows.Next() {
		var v BuildVault
		if err := rows.Scan(&v.Name, &v.Optional, &v.Secure, &v.Registries, &v.Keys); err != nil {
			return nil, fmt.Errorf("scan build vault: %w", err)
		}
		vaults = append(vaults, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate build vaults: %w", err)
	}
	return vaults, nil
}

func scanBuild(row rowScanner) (*Build, error) {
	var (
		b         Build
		deps      string
		createdAt string
	)
	err := row.Scan(
		&b.ID,
		&b.Seq,
		&b.SourcePath,
		&b.SourceDigest,
		&b.OutputPath,
		&b.ArchiveDigest,
		&deps,
		&b.EngineVersion,
		&b.FormatVersion,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan build: %w", err)
	}

	if b.Dependencies, err = unmarshalDependencies(deps); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &b, nil
}
