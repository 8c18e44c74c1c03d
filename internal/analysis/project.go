package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/llm"
	"github.com/jonathan/portfolio-analyzer/internal/prompts"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// ProjectAggregator analyzes a project's media and synthesizes a project summary.
type ProjectAggregator struct {
	store    Store
	provider Provider
	media    *MediaAnalyzer
	cfg      Config
	logger   *slog.Logger

	// units tracks every goroutine Start spawns.
	units sync.WaitGroup
}

// NewProjectAggregator creates an aggregator that dispatches to media.
func NewProjectAggregator(store Store, provider Provider, media *MediaAnalyzer, cfg Config, logger *slog.Logger) *ProjectAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectAggregator{
		store:    store,
		provider: provider,
		media:    media,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// ProjectRun is a handle to a dispatched project analysis.
type ProjectRun struct {
	ProjectID uuid.UUID
	// Dispatched is the number of media units started for this run.
	Dispatched int
	// MediaTotal is the number of media items in the project.
	MediaTotal int

	done   chan struct{}
	result ProjectResult
}

// Done is closed once the project has reached a terminal state.
func (r *ProjectRun) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (r *ProjectRun) Result() ProjectResult {
	<-r.done
	return r.result
}

// Wait blocks until the run finishes or ctx is done.
func (r *ProjectRun) Wait(ctx context.Context) (ProjectResult, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return ProjectResult{ProjectID: r.ProjectID, Status: types.AnalysisProcessing}, ctx.Err()
	}
}

// Start lists the project's media, dispatches a unit for every item that is not
// yet analyzed, and returns without waiting for them. The returned run finishes
// on its own even if ctx is cancelled.
func (p *ProjectAggregator) Start(ctx context.Context, projectID uuid.UUID) (*ProjectRun, error) {
	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	media, err := p.store.ListMediaByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	if err := p.store.MarkProcessing(ctx, types.EntityProject, projectID); err != nil {
		return nil, err
	}

	var pending []uuid.UUID
	for _, m := range media {
		if !m.IsAnalyzed() {
			pending = append(pending, m.ID)
		}
	}

	run := &ProjectRun{
		ProjectID:  projectID,
		Dispatched: len(pending),
		MediaTotal: len(media),
		done:       make(chan struct{}),
	}

	unitCtx := detach(ctx)
	// Buffered so units that finish after a timed-out wait never block.
	results := make(chan MediaResult, len(pending))
	p.units.Add(len(pending) + 1)
	for _, id := range pending {
		go func(id uuid.UUID) {
			defer p.units.Done()
			results <- p.media.AnalyzeWithRetry(unitCtx, id, p.cfg.MediaRetries)
		}(id)
	}

	p.logger.Info("project dispatched",
		"project_id", projectID, "media_total", len(media), "media_dispatched", len(pending))

	go func() {
		defer p.units.Done()
		defer close(run.done)
		timedOut := p.await(projectID, results, len(pending))
		run.result = p.synthesize(unitCtx, project)
		run.result.MediaTotal = len(media)
		run.result.TimedOut = timedOut
	}()

	return run, nil
}

// Analyze starts the project and waits for its result. If ctx ends first the
// project keeps running in the background and a processing result is returned.
func (p *ProjectAggregator) Analyze(ctx context.Context, projectID uuid.UUID) ProjectResult {
	run, err := p.Start(ctx, projectID)
	if err != nil {
		return ProjectResult{ProjectID: projectID, Status: types.AnalysisFailed, Err: err}
	}
	result, err := run.Wait(ctx)
	if err != nil {
		result.Err = err
	}
	return result
}

// Wait blocks until every media unit and project synthesis started so far
// has finished, including ones whose callers stopped waiting.
func (p *ProjectAggregator) Wait() {
	p.units.Wait()
}

// await collects n media results or gives up at the media deadline. It reports
// whether the deadline was hit.
func (p *ProjectAggregator) await(projectID uuid.UUID, results <-chan MediaResult, n int) bool {
	if n == 0 {
		return false
	}
	timeout := p.cfg.MediaWaitTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	failed := 0
	for received := 0; received < n; received++ {
		select {
		case r := <-results:
			if r.Status == types.AnalysisFailed {
				failed++
			}
		case <-timer.C:
			p.logger.Warn("media wait timed out",
				"project_id", projectID, "reported", received, "dispatched", n, "timeout", timeout)
			return true
		}
	}
	if failed > 0 {
		p.logger.Info("media finished with failures", "project_id", projectID, "failed", failed, "dispatched", n)
	}
	return false
}

// synthesize builds the project summary from every media summary available
// in the store, including ones produced by earlier runs.
func (p *ProjectAggregator) synthesize(ctx context.Context, project *types.Project) ProjectResult {
	result := ProjectResult{ProjectID: project.ID}

	media, err := p.store.ListMediaByProject(ctx, project.ID)
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("failed to list media: %w", err))
	}

	var summaries []string
	for _, m := range media {
		if m.IsAnalyzed() {
			summaries = append(summaries, m.SummaryText())
		}
	}
	result.MediaAnalyzed = len(summaries)
	if len(summaries) == 0 {
		return p.fail(ctx, result, ErrNoAnalyzableMedia)
	}

	prompt, err := prompts.Render(prompts.AnalysisFile, prompts.KeySynthesizeProject, map[string]string{
		"Title":       project.Title,
		"Description": project.Description,
		"Context":     numberedContext("Media", summaries),
	})
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("failed to load prompt: %w", err))
	}

	summary, embedding, err := synthesizeAndEmbed(ctx, p.provider, prompt)
	if err != nil {
		return p.fail(ctx, result, err)
	}

	if err := p.store.SaveAnalysis(ctx, types.EntityProject, project.ID, summary, embedding); err != nil {
		return p.fail(ctx, result, fmt.Errorf("failed to save analysis: %w", err))
	}

	p.logger.Info("project analyzed",
		"project_id", project.ID, "media_analyzed", len(summaries), "media_total", len(media))
	result.Status = types.AnalysisSuccess
	result.Summary = summary
	return result
}

func (p *ProjectAggregator) fail(ctx context.Context, result ProjectResult, cause error) ProjectResult {
	result.Status = types.AnalysisFailed
	result.Err = cause

	if err := p.store.FailAnalysis(ctx, types.EntityProject, result.ProjectID, errorText(cause)); err != nil {
		p.logger.Error("failed to record project failure", "project_id", result.ProjectID, "error", err)
	}
	p.logger.Warn("project analysis failed", "project_id", result.ProjectID, "error", cause)
	return result
}

// synthesizeAndEmbed runs a synthesis prompt and embeds the resulting summary.
func synthesizeAndEmbed(ctx context.Context, provider Provider, prompt string) (string, []float32, error) {
	summary, err := provider.Analyze(ctx, llm.TierSynthesis, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("synthesis call failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", nil, fmt.Errorf("synthesis call returned an empty summary")
	}

	embedding, err := provider.Embed(ctx, summary)
	if err != nil {
		return "", nil, fmt.Errorf("embedding call failed: %w", err)
	}
	return summary, embedding, nil
}

// numberedContext formats summaries as "<label> N: summary" lines in input order.
func numberedContext(label string, summaries []string) string {
	var sb strings.Builder
	for i, s := range summaries {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %d: %s", label, i+1, s)
	}
	return sb.String()
}
