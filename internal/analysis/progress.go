package analysis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/jobs"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// ProgressCallback receives every job state written by the pipeline.
type ProgressCallback func(job *types.AnalysisJob)

// JobReporter writes job updates through the tracker and forwards the stored
// state to an optional callback.
type JobReporter struct {
	tracker    *jobs.Tracker
	onProgress ProgressCallback
	logger     *slog.Logger
}

// NewJobReporter creates a reporter. onProgress may be nil.
func NewJobReporter(tracker *jobs.Tracker, onProgress ProgressCallback, logger *slog.Logger) *JobReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobReporter{tracker: tracker, onProgress: onProgress, logger: logger}
}

// Update applies upd. Rejected updates are logged; they never stop the pipeline.
func (r *JobReporter) Update(ctx context.Context, jobID uuid.UUID, upd jobs.JobUpdate) {
	job, err := r.tracker.Update(ctx, jobID, upd)
	if err != nil {
		r.logger.Warn("job update rejected", "job_id", jobID, "error", err)
		return
	}
	if r.onProgress != nil {
		r.onProgress(job)
	}
}

// Message updates only the status message.
func (r *JobReporter) Message(ctx context.Context, jobID uuid.UUID, msg string) {
	r.Update(ctx, jobID, jobs.JobUpdate{Message: jobs.Ptr(msg)})
}

// Complete marks the job completed with msg.
func (r *JobReporter) Complete(ctx context.Context, jobID uuid.UUID, msg string) {
	r.Update(ctx, jobID, jobs.JobUpdate{Status: types.JobCompleted, Message: jobs.Ptr(msg)})
}

// Fail marks the job failed with cause as its message.
func (r *JobReporter) Fail(ctx context.Context, jobID uuid.UUID, cause error) {
	if cause == nil {
		cause = errors.New("analysis failed")
	}
	r.Update(ctx, jobID, jobs.JobUpdate{Status: types.JobFailed, Message: jobs.Ptr(cause.Error())})
}
