// Package jobs records user-visible progress of top-level analysis requests.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/types"
)

var (
	// ErrJobTerminal is returned when updating a completed or failed job.
	ErrJobTerminal = errors.New("job is already terminal")
	// ErrInvalidTransition is returned when a status change breaks
	// pending -> processing -> {completed | failed}.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store persists analysis jobs.
type Store interface {
	CreateJob(ctx context.Context, job *types.AnalysisJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.AnalysisJob, error)
	UpdateJob(ctx context.Context, job *types.AnalysisJob) error
}

// StatusCache mirrors job records for fast status reads. Get returns nil, nil on a miss.
type StatusCache interface {
	Set(ctx context.Context, job *types.AnalysisJob) error
	Get(ctx context.Context, id uuid.UUID) (*types.AnalysisJob, error)
}

// JobUpdate describes a partial update. Zero fields keep their current value.
type JobUpdate struct {
	Status   types.JobStatus
	Progress *int
	Message  *string
}

// Ptr returns a pointer to v, for filling JobUpdate fields.
func Ptr[T any](v T) *T {
	return &v
}

// Tracker creates and updates jobs. Updates are serialized so the
// read-modify-write of progress cannot interleave.
type Tracker struct {
	store  Store
	cache  StatusCache
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCache mirrors every job write to cache.
func WithCache(cache StatusCache) Option {
	return func(t *Tracker) {
		t.cache = cache
	}
}

// NewTracker creates a tracker backed by store.
func NewTracker(store Store, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create records a new pending job for target.
func (t *Tracker) Create(ctx context.Context, target types.JobTarget) (*types.AnalysisJob, error) {
	job := &types.AnalysisJob{
		ID:     uuid.New(),
		Target: target,
		Status: types.JobPending,
	}
	if err := t.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	t.mirror(ctx, job)

	t.logger.Info("job created", "job_id", job.ID, "target_kind", target.Kind, "target_id", target.ID)
	return job, nil
}

// Update applies upd to the job. Progress never decreases and stays below 100
// until the job completes; completing always sets 100.
func (t *Tracker) Update(ctx context.Context, id uuid.UUID, upd JobUpdate) (*types.AnalysisJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %s is %s: %w", id, job.Status, ErrJobTerminal)
	}

	if upd.Status != "" {
		if !job.Status.CanTransitionTo(upd.Status) {
			return nil, fmt.Errorf("%s -> %s: %w", job.Status, upd.Status, ErrInvalidTransition)
		}
		job.Status = upd.Status
	}

	if upd.Progress != nil && *upd.Progress > job.Progress {
		job.Progress = *upd.Progress
	}
	switch {
	case job.Status == types.JobCompleted:
		job.Progress = 100
	case job.Progress > 99:
		job.Progress = 99
	}

	if upd.Message != nil {
		job.StatusMessage = upd.Message
	}
	if job.Status.IsTerminal() {
		completedAt := t.now()
		job.CompletedAt = &completedAt
	}

	if err := t.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	t.mirror(ctx, job)

	t.logger.Debug("job updated",
		"job_id", id, "status", job.Status, "progress", job.Progress, "message", job.Message())
	return job, nil
}

// Get returns the job, preferring the cache when one is configured.
func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (*types.AnalysisJob, error) {
	if t.cache != nil {
		job, err := t.cache.Get(ctx, id)
		if err != nil {
			t.logger.Warn("job cache read failed", "job_id", id, "error", err)
		} else if job != nil {
			return job, nil
		}
	}

	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	t.mirror(ctx, job)
	return job, nil
}

// mirror copies job to the cache. Cache failures are logged, never returned.
func (t *Tracker) mirror(ctx context.Context, job *types.AnalysisJob) {
	if t.cache == nil {
		return
	}
	if err := t.cache.Set(ctx, job); err != nil {
		t.logger.Warn("job cache write failed", "job_id", job.ID, "error", err)
	}
}

// Progress converts completed of total steps into a percentage in [0, 100].
func Progress(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return completed * 100 / total
}
