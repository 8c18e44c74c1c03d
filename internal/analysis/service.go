package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/admission"
	"github.com/jonathan/portfolio-analyzer/internal/jobs"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	JobID    uuid.UUID       `json:"job_id"`
	Target   types.JobTarget `json:"target"`
	Status   types.JobStatus `json:"status"`
	Progress int             `json:"progress"`
	Message  string          `json:"message,omitempty"`
}

// ServiceOptions holds optional collaborators for NewService.
type ServiceOptions struct {
	Fetcher    FetchFunc
	OnProgress ProgressCallback
	Logger     *slog.Logger
}

// Service starts analysis jobs in the background and reports their status.
type Service struct {
	store      Store
	tracker    *jobs.Tracker
	reporter   *JobReporter
	media      *MediaAnalyzer
	projects   *ProjectAggregator
	portfolios *PortfolioAggregator
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewService wires the analyzer, both aggregators and the job tracker.
func NewService(store Store, tracker *jobs.Tracker, provider Provider, limiter *admission.Limiter, cfg Config, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reporter := NewJobReporter(tracker, opts.OnProgress, logger)
	media := NewMediaAnalyzer(store, provider, limiter, opts.Fetcher, cfg, logger)
	projects := NewProjectAggregator(store, provider, media, cfg, logger)
	portfolios := NewPortfolioAggregator(store, provider, projects, reporter, cfg, logger)

	return &Service{
		store:      store,
		tracker:    tracker,
		reporter:   reporter,
		media:      media,
		projects:   projects,
		portfolios: portfolios,
		logger:     logger,
	}
}

// Media returns the media analyzer.
func (s *Service) Media() *MediaAnalyzer {
	return s.media
}

// StartPortfolioAnalysis creates a job and analyzes the portfolio in the background.
func (s *Service) StartPortfolioAnalysis(ctx context.Context, portfolioID uuid.UUID) (uuid.UUID, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to load portfolio: %w", err)
	}

	job, err := s.tracker.Create(ctx, types.JobTarget{Kind: types.EntityPortfolio, ID: portfolioID})
	if err != nil {
		return uuid.Nil, err
	}

	s.background(ctx, func(ctx context.Context) {
		s.portfolios.Run(ctx, job.ID, portfolioID)
	})
	return job.ID, nil
}

// StartProjectAnalysis creates a job and analyzes one project in the background.
func (s *Service) StartProjectAnalysis(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to load project: %w", err)
	}

	job, err := s.tracker.Create(ctx, types.JobTarget{Kind: types.EntityProject, ID: projectID})
	if err != nil {
		return uuid.Nil, err
	}

	s.background(ctx, func(ctx context.Context) {
		s.RunProjectJob(ctx, job.ID, projectID)
	})
	return job.ID, nil
}

// RunPortfolioJob runs a portfolio analysis synchronously for an existing job.
func (s *Service) RunPortfolioJob(ctx context.Context, jobID, portfolioID uuid.UUID) PortfolioResult {
	return s.portfolios.Run(ctx, jobID, portfolioID)
}

// RunProjectJob runs a project analysis synchronously for an existing job.
// Progress counts dispatched media plus one step for synthesis.
func (s *Service) RunProjectJob(ctx context.Context, jobID, projectID uuid.UUID) ProjectResult {
	work := detach(ctx)
	s.reporter.Update(work, jobID, jobs.JobUpdate{
		Status:  types.JobProcessing,
		Message: jobs.Ptr("Dispatching media"),
	})

	run, err := s.projects.Start(work, projectID)
	if err != nil {
		s.reporter.Fail(work, jobID, err)
		return ProjectResult{ProjectID: projectID, Status: types.AnalysisFailed, Err: err}
	}

	s.reporter.Update(work, jobID, jobs.JobUpdate{
		Progress: jobs.Ptr(jobs.Progress(run.Dispatched, run.Dispatched+1)),
		Message:  jobs.Ptr(fmt.Sprintf("Analyzing %d of %d media", run.Dispatched, run.MediaTotal)),
	})

	result, err := run.Wait(ctx)
	if err != nil {
		// Media units still finish and persist; only the job stops here.
		result.Err = fmt.Errorf("%w while waiting for media: %w", ErrCancelled, err)
		s.reporter.Fail(work, jobID, result.Err)
		return result
	}

	if result.Status != types.AnalysisSuccess {
		s.reporter.Fail(work, jobID, result.Err)
		return result
	}

	msg := fmt.Sprintf("Project analyzed from all %d media", result.MediaTotal)
	if result.MediaAnalyzed < result.MediaTotal {
		msg = fmt.Sprintf("Project analyzed from %d of %d media; coverage is partial", result.MediaAnalyzed, result.MediaTotal)
	}
	s.reporter.Complete(work, jobID, msg)
	return result
}

// CreateJob records a pending job for target without starting it.
func (s *Service) CreateJob(ctx context.Context, target types.JobTarget) (uuid.UUID, error) {
	job, err := s.tracker.Create(ctx, target)
	if err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

// GetJobStatus returns the current status, progress and message of a job.
func (s *Service) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	job, err := s.tracker.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobStatus{
		JobID:    job.ID,
		Target:   job.Target,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  job.Message(),
	}, nil
}

// Wait blocks until every background job has returned and every media and
// project unit they dispatched has persisted its result.
func (s *Service) Wait() {
	s.wg.Wait()
	s.projects.Wait()
}

func (s *Service) background(ctx context.Context, fn func(context.Context)) {
	bg := detach(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("analysis job panicked", "panic", r)
			}
		}()
		fn(bg)
	}()
}
