package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// MarkProcessing moves an entity to processing and clears any previous error.
// An entity that already succeeded is left untouched so a stale retry cannot
// downgrade it.
func (db *DB) MarkProcessing(ctx context.Context, kind types.EntityKind, id uuid.UUID) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE `+table+`
		 SET analysis_status = 'processing', analysis_error = NULL, updated_at = NOW()
		 WHERE id = $1 AND analysis_status <> 'success'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s processing: %w", kind, id, err)
	}
	return nil
}

// SaveAnalysis stores a summary and embedding together and marks the entity successful.
func (db *DB) SaveAnalysis(ctx context.Context, kind types.EntityKind, id uuid.UUID, summary string, embedding []float32) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if summary == "" || len(embedding) == 0 {
		return fmt.Errorf("summary and embedding must both be set")
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE `+table+`
		 SET analysis_status = 'success', summary = $2, embedding = $3,
		     analysis_error = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id, summary, encodeEmbedding(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s %s analysis: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, types.ErrNotFound)
	}
	return nil
}

// FailAnalysis records a failure. It never overwrites an existing summary, so a
// late failing retry cannot corrupt a success written by another attempt.
func (db *DB) FailAnalysis(ctx context.Context, kind types.EntityKind, id uuid.UUID, message string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE `+table+`
		 SET analysis_status = 'failed', analysis_error = $2, updated_at = NOW()
		 WHERE id = $1 AND summary IS NULL`,
		id, message,
	)
	if err != nil {
		return fmt.Errorf("failed to record %s %s failure: %w", kind, id, err)
	}
	return nil
}
