package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordBuild appends b to the ledger.
//
// ID is generated when empty, Seq is always assigned as the next value of
// the ledger's logical clock, and CreatedAt defaults to now. The build and
// its vault summaries are written in one transaction.
func (s *Store) RecordBuild(ctx context.Context, b *Build) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	deps, err := marshalDependencies(b.Dependencies)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin build %s: %w", b.ID, err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM builds`).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO builds (
			id, seq, source_path, source_digest, output_path, archive_digest,
			dependencies, engine_version, format_version, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		seq,
		b.SourcePath,
		b.SourceDigest,
		b.OutputPath,
		b.ArchiveDigest,
		deps,
		b.EngineVersion,
		b.FormatVersion,
		formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("write build %s: %w", b.ID, err)
	}

	for i, v := range b.Vaults {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO build_vaults (build_id, position, name, optional, secure, registries, keys)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, b.ID, i, v.Name, boolInt(v.Optional), boolInt(v.Secure), v.Registries, v.Keys)
		if err != nil {
			return fmt.Errorf("write build vault %s/%s: %w", b.ID, v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit build %s: %w", b.ID, err)
	}
	b.Seq = seq
	return nil
}
