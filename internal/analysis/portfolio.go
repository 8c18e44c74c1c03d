package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/portfolio-analyzer/internal/jobs"
	"github.com/jonathan/portfolio-analyzer/internal/prompts"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// maxConcurrentDispatch bounds how many projects list and dispatch their media at once.
const maxConcurrentDispatch = 8

// PortfolioAggregator analyzes a portfolio's projects and synthesizes a portfolio summary.
type PortfolioAggregator struct {
	store    Store
	provider Provider
	projects *ProjectAggregator
	reporter *JobReporter
	cfg      Config
	logger   *slog.Logger
}

// NewPortfolioAggregator creates an aggregator that reports through reporter.
func NewPortfolioAggregator(store Store, provider Provider, projects *ProjectAggregator, reporter *JobReporter, cfg Config, logger *slog.Logger) *PortfolioAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortfolioAggregator{
		store:    store,
		provider: provider,
		projects: projects,
		reporter: reporter,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// Run drives job jobID through a full portfolio analysis. Cancelling ctx stops
// the wait for projects early; store and job writes still complete.
func (p *PortfolioAggregator) Run(ctx context.Context, jobID, portfolioID uuid.UUID) PortfolioResult {
	work := detach(ctx)
	result := PortfolioResult{PortfolioID: portfolioID, JobID: jobID}
	logger := p.logger.With("job_id", jobID, "portfolio_id", portfolioID)

	p.reporter.Update(work, jobID, jobs.JobUpdate{
		Status:  types.JobProcessing,
		Message: jobs.Ptr("Listing projects"),
	})

	portfolio, err := p.store.GetPortfolio(work, portfolioID)
	if err != nil {
		return p.failJob(work, result, fmt.Errorf("failed to load portfolio: %w", err))
	}
	projects, err := p.store.ListProjectsByPortfolio(work, portfolioID)
	if err != nil {
		return p.failJob(work, result, fmt.Errorf("failed to list projects: %w", err))
	}

	n := len(projects)
	result.ProjectsTotal = n
	if n == 0 {
		result.Exit = ExitEmpty
		result.JobStatus = types.JobCompleted
		p.reporter.Complete(work, jobID, "Portfolio has no projects to analyze")
		logger.Info("portfolio has no projects")
		return result
	}

	if err := p.store.MarkProcessing(work, types.EntityPortfolio, portfolioID); err != nil {
		return p.failJob(work, result, err)
	}

	results := p.dispatch(work, jobID, projects)
	result.Exit = p.await(ctx, work, jobID, results, n)
	logger.Info("project wait finished", "exit", result.Exit)

	p.settle(ctx)

	analyzed, err := p.store.ListAnalyzedProjects(work, portfolioID)
	if err != nil {
		return p.failJob(work, result, fmt.Errorf("failed to list analyzed projects: %w", err))
	}
	result.ProjectsAnalyzed = len(analyzed)
	if len(analyzed) == 0 {
		p.failPortfolio(work, portfolioID, ErrNoProjectsAnalyzed)
		return p.failJob(work, result, ErrNoProjectsAnalyzed)
	}

	p.reporter.Message(work, jobID, fmt.Sprintf("Synthesizing portfolio from %d of %d projects", len(analyzed), n))

	summary, err := p.synthesize(work, portfolio, analyzed)
	if err != nil {
		p.failPortfolio(work, portfolioID, err)
		return p.failJob(work, result, err)
	}
	result.Summary = summary

	msg := fmt.Sprintf("Portfolio analyzed from all %d projects", n)
	if len(analyzed) < n {
		msg = fmt.Sprintf("Portfolio analyzed from %d of %d projects; coverage is partial", len(analyzed), n)
	}
	result.JobStatus = types.JobCompleted
	p.reporter.Complete(work, jobID, msg)
	logger.Info("portfolio analyzed", "projects_analyzed", len(analyzed), "projects_total", n)
	return result
}

// dispatch starts every project concurrently. Each dispatch advances job
// progress by one step; the final step is synthesis. Project results arrive
// on the returned channel, which is buffered for every project.
func (p *PortfolioAggregator) dispatch(ctx context.Context, jobID uuid.UUID, projects []types.Project) <-chan ProjectResult {
	n := len(projects)
	totalSteps := n + 1
	results := make(chan ProjectResult, n)
	var dispatched atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentDispatch)
	for _, project := range projects {
		g.Go(func() error {
			run, err := p.projects.Start(ctx, project.ID)
			if err != nil {
				p.logger.Warn("project dispatch failed", "project_id", project.ID, "error", err)
				p.failProject(ctx, project.ID, err)
				results <- ProjectResult{ProjectID: project.ID, Status: types.AnalysisFailed, Err: err}
			} else {
				go func() { results <- run.Result() }()
			}

			done := int(dispatched.Add(1))
			p.reporter.Update(ctx, jobID, jobs.JobUpdate{
				Progress: jobs.Ptr(jobs.Progress(done, totalSteps)),
				Message:  jobs.Ptr(fmt.Sprintf("Dispatched %d of %d projects", done, n)),
			})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// await applies the exit policy: complete when every project succeeded,
// sufficient once the threshold is met, forced when all results are in, the
// deadline passes, or ctx is cancelled.
func (p *PortfolioAggregator) await(ctx, work context.Context, jobID uuid.UUID, results <-chan ProjectResult, n int) ExitReason {
	timeout := p.cfg.ProjectWaitTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	received, succeeded := 0, 0
	for {
		select {
		case r := <-results:
			received++
			if r.Status == types.AnalysisSuccess {
				succeeded++
			}
			p.reporter.Message(work, jobID, fmt.Sprintf("%d of %d projects analyzed", succeeded, n))

			switch {
			case succeeded == n:
				return ExitComplete
			case meetsThreshold(succeeded, n, p.cfg.CompletionThreshold):
				return ExitSufficient
			case received == n:
				return ExitForced
			}
		case <-timer.C:
			p.logger.Warn("project wait timed out", "job_id", jobID, "reported", received, "total", n)
			return ExitForced
		case <-ctx.Done():
			return ExitForced
		}
	}
}

// settle gives the last project writes time to land before the re-read.
func (p *PortfolioAggregator) settle(ctx context.Context) {
	if p.cfg.SettleDelay <= 0 {
		return
	}
	timer := time.NewTimer(p.cfg.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (p *PortfolioAggregator) synthesize(ctx context.Context, portfolio *types.Portfolio, analyzed []types.Project) (string, error) {
	role, bio := "", ""
	creator, err := p.store.GetCreator(ctx, portfolio.CreatorID)
	if err != nil {
		p.logger.Warn("creator unavailable for synthesis", "portfolio_id", portfolio.ID, "error", err)
	} else {
		role, bio = creator.Role, creator.Bio
	}

	entries := make([]string, 0, len(analyzed))
	for _, project := range analyzed {
		entries = append(entries, fmt.Sprintf("%s: %s", project.Title, project.SummaryText()))
	}

	prompt, err := prompts.Render(prompts.AnalysisFile, prompts.KeySynthesizePortfolio, map[string]string{
		"Role":    role,
		"Bio":     bio,
		"Context": numberedContext("Project", entries),
	})
	if err != nil {
		return "", fmt.Errorf("failed to load prompt: %w", err)
	}

	summary, embedding, err := synthesizeAndEmbed(ctx, p.provider, prompt)
	if err != nil {
		return "", err
	}
	if err := p.store.SaveAnalysis(ctx, types.EntityPortfolio, portfolio.ID, summary, embedding); err != nil {
		return "", fmt.Errorf("failed to save analysis: %w", err)
	}
	return summary, nil
}

func (p *PortfolioAggregator) failJob(ctx context.Context, result PortfolioResult, cause error) PortfolioResult {
	result.JobStatus = types.JobFailed
	result.Err = cause
	p.reporter.Fail(ctx, result.JobID, cause)
	p.logger.Error("portfolio analysis failed", "job_id", result.JobID, "portfolio_id", result.PortfolioID, "error", cause)
	return result
}

func (p *PortfolioAggregator) failPortfolio(ctx context.Context, portfolioID uuid.UUID, cause error) {
	if err := p.store.FailAnalysis(ctx, types.EntityPortfolio, portfolioID, errorText(cause)); err != nil {
		p.logger.Error("failed to record portfolio failure", "portfolio_id", portfolioID, "error", err)
	}
}

func (p *PortfolioAggregator) failProject(ctx context.Context, projectID uuid.UUID, cause error) {
	if errors.Is(cause, types.ErrNotFound) {
		return
	}
	if err := p.store.FailAnalysis(ctx, types.EntityProject, projectID, errorText(cause)); err != nil {
		p.logger.Error("failed to record project failure", "project_id", projectID, "error", err)
	}
}
