package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an AnalysisJob.
type JobStatus string

// JobStatus values
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo reports whether moving from s to next follows
// pending -> processing -> {completed | failed}. Staying in the same
// non-terminal status is allowed so progress can be updated.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case JobPending:
		return next == JobPending || next == JobProcessing || next == JobFailed
	case JobProcessing:
		return next == JobProcessing || next == JobCompleted || next == JobFailed
	}
	return false
}

// JobTarget names the entity an analysis job drives.
type JobTarget struct {
	Kind EntityKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

// AnalysisJob is the user-visible progress record of one top-level analysis request.
type AnalysisJob struct {
	ID            uuid.UUID  `json:"id"`
	Target        JobTarget  `json:"target"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	StatusMessage *string    `json:"status_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Message returns the status message or an empty string.
func (j *AnalysisJob) Message() string {
	if j.StatusMessage == nil {
		return ""
	}
	return *j.StatusMessage
}
