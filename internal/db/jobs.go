package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// CreateJob inserts a new analysis job
func (db *DB) CreateJob(ctx context.Context, job *types.AnalysisJob) error {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO analysis_jobs (id, target_kind, target_id, status, progress, status_message)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		job.ID, string(job.Target.Kind), job.Target.ID, string(job.Status), job.Progress, job.StatusMessage,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves an analysis job by ID
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.AnalysisJob, error) {
	var job types.AnalysisJob
	var kind, status string
	err := db.pool.QueryRow(ctx,
		`SELECT id, target_kind, target_id, status, progress, status_message,
		        created_at, updated_at, completed_at
		 FROM analysis_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &kind, &job.Target.ID, &status, &job.Progress, &job.StatusMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if err != nil {
		return nil, notFound(err, "job "+id.String())
	}
	job.Target.Kind = types.EntityKind(kind)
	job.Status = types.JobStatus(status)
	return &job, nil
}

// UpdateJob writes status, progress and message. Progress is clamped so it
// never decreases, and terminal jobs are never modified.
func (db *DB) UpdateJob(ctx context.Context, job *types.AnalysisJob) error {
	err := db.pool.QueryRow(ctx,
		`UPDATE analysis_jobs
		 SET status = $2, progress = GREATEST(progress, $3), status_message = $4,
		     completed_at = $5, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')
		 RETURNING progress, updated_at`,
		job.ID, string(job.Status), job.Progress, job.StatusMessage, job.CompletedAt,
	).Scan(&job.Progress, &job.UpdatedAt)
	if err != nil {
		return notFound(err, "active job "+job.ID.String())
	}
	return nil
}
