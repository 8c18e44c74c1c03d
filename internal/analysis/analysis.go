// Package analysis orchestrates hierarchical content analysis: media items are
// analyzed under per-class admission limits, projects are synthesized from
// their media, and portfolios from their projects.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/fetch"
	"github.com/jonathan/portfolio-analyzer/internal/llm"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

var (
	// ErrNoAnalyzableMedia is recorded when a project has no media summaries to synthesize from.
	ErrNoAnalyzableMedia = errors.New("no analyzable media")
	// ErrNoProjectsAnalyzed is recorded when no project in a portfolio produced a summary.
	ErrNoProjectsAnalyzed = errors.New("no projects were successfully analyzed")
	// ErrCancelled is recorded on a job whose caller stopped waiting for it.
	ErrCancelled = errors.New("analysis cancelled")
)

// Store is the persistence the pipeline reads and writes.
type Store interface {
	GetMedia(ctx context.Context, id uuid.UUID) (*types.Media, error)
	ListMediaByProject(ctx context.Context, projectID uuid.UUID) ([]types.Media, error)
	GetProject(ctx context.Context, id uuid.UUID) (*types.Project, error)
	ListProjectsByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]types.Project, error)
	ListAnalyzedProjects(ctx context.Context, portfolioID uuid.UUID) ([]types.Project, error)
	GetPortfolio(ctx context.Context, id uuid.UUID) (*types.Portfolio, error)
	GetCreator(ctx context.Context, id uuid.UUID) (*types.Creator, error)

	MarkProcessing(ctx context.Context, kind types.EntityKind, id uuid.UUID) error
	SaveAnalysis(ctx context.Context, kind types.EntityKind, id uuid.UUID, summary string, embedding []float32) error
	FailAnalysis(ctx context.Context, kind types.EntityKind, id uuid.UUID, message string) error
}

// Provider is the content-analysis and embedding capability. llm.Client satisfies it.
type Provider interface {
	Analyze(ctx context.Context, tier llm.ModelTier, prompt string, parts ...llm.Part) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// FetchFunc downloads media bytes.
type FetchFunc func(ctx context.Context, url string) (*fetch.Result, error)

// Config tunes waiting, retry and completion policy.
type Config struct {
	// MediaWaitTimeout bounds how long a project waits for its media units.
	MediaWaitTimeout time.Duration
	// ProjectWaitTimeout bounds how long a portfolio waits for its projects.
	ProjectWaitTimeout time.Duration
	// CompletionThreshold is the fraction of projects that lets a portfolio
	// proceed before every project has finished.
	CompletionThreshold float64
	// MediaRetries is how many times a failed media item is re-analyzed.
	MediaRetries int
	// SettleDelay is slept before the final re-read of analyzed projects.
	SettleDelay time.Duration
	// SlotTimeout caps a single wait for an admission slot.
	SlotTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MediaWaitTimeout:    5 * time.Minute,
		ProjectWaitTimeout:  10 * time.Minute,
		CompletionThreshold: 0.70,
		MediaRetries:        1,
		SettleDelay:         2 * time.Second,
		SlotTimeout:         2 * time.Minute,
	}
}

// withDefaults replaces unset or out-of-range fields with the production
// defaults. A zero SettleDelay and zero MediaRetries are valid settings.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MediaWaitTimeout <= 0 {
		c.MediaWaitTimeout = d.MediaWaitTimeout
	}
	if c.ProjectWaitTimeout <= 0 {
		c.ProjectWaitTimeout = d.ProjectWaitTimeout
	}
	if c.CompletionThreshold <= 0 || c.CompletionThreshold > 1 {
		c.CompletionThreshold = d.CompletionThreshold
	}
	if c.MediaRetries < 0 {
		c.MediaRetries = 0
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.SlotTimeout <= 0 {
		c.SlotTimeout = d.SlotTimeout
	}
	return c
}

// MediaResult is the terminal outcome of one media unit.
type MediaResult struct {
	MediaID uuid.UUID
	Status  types.AnalysisStatus
	// Cached is true when the item was already analyzed and no provider call was made.
	Cached   bool
	Attempts int
	Err      error
}

// ProjectResult is the terminal outcome of one project unit.
type ProjectResult struct {
	ProjectID     uuid.UUID
	Status        types.AnalysisStatus
	Summary       string
	MediaTotal    int
	MediaAnalyzed int
	// TimedOut is true when synthesis ran before every media unit reported.
	TimedOut bool
	Err      error
}

// ExitReason explains why a portfolio stopped waiting for its projects.
type ExitReason string

// ExitReason values
const (
	ExitComplete   ExitReason = "complete"
	ExitSufficient ExitReason = "sufficient"
	ExitForced     ExitReason = "forced"
	ExitEmpty      ExitReason = "empty"
)

// PortfolioResult is the outcome of one portfolio run.
type PortfolioResult struct {
	PortfolioID      uuid.UUID
	JobID            uuid.UUID
	JobStatus        types.JobStatus
	Exit             ExitReason
	ProjectsTotal    int
	ProjectsAnalyzed int
	Summary          string
	Err              error
}

// maxErrorLength caps the error text recorded on an entity.
const maxErrorLength = 500

func errorText(err error) string {
	return llm.Truncate(err.Error(), maxErrorLength)
}

// meetsThreshold reports whether succeeded out of total reaches threshold.
func meetsThreshold(succeeded, total int, threshold float64) bool {
	if total <= 0 {
		return false
	}
	return float64(succeeded) >= threshold*float64(total)-1e-9
}

// detach keeps ctx values but drops its cancellation, so spawned units finish
// and persist their own results after a caller gives up waiting.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
