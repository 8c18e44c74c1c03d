package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/admission"
	"github.com/jonathan/portfolio-analyzer/internal/fetch"
	"github.com/jonathan/portfolio-analyzer/internal/llm"
	"github.com/jonathan/portfolio-analyzer/internal/prompts"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// MediaAnalyzer produces a summary and embedding for one media item.
type MediaAnalyzer struct {
	store       Store
	provider    Provider
	limiter     *admission.Limiter
	fetch       FetchFunc
	slotTimeout time.Duration
	logger      *slog.Logger
}

// NewMediaAnalyzer creates an analyzer. A nil fetcher downloads with fetch.Bytes
// and default options.
func NewMediaAnalyzer(store Store, provider Provider, limiter *admission.Limiter, fetcher FetchFunc, cfg Config, logger *slog.Logger) *MediaAnalyzer {
	if fetcher == nil {
		fetcher = HTTPFetcher(fetch.DefaultOptions())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaAnalyzer{
		store:       store,
		provider:    provider,
		limiter:     limiter,
		fetch:       fetcher,
		slotTimeout: cfg.withDefaults().SlotTimeout,
		logger:      logger,
	}
}

// HTTPFetcher adapts fetch.Bytes to a FetchFunc.
func HTTPFetcher(opts *fetch.Options) FetchFunc {
	return func(ctx context.Context, url string) (*fetch.Result, error) {
		return fetch.Bytes(ctx, url, opts)
	}
}

// Analyze runs one attempt for mediaID. An item that already has a summary and
// embedding returns immediately without taking a slot or calling the provider.
// Every failure is recorded on the item and reported in the result.
func (a *MediaAnalyzer) Analyze(ctx context.Context, mediaID uuid.UUID) MediaResult {
	result := MediaResult{MediaID: mediaID, Attempts: 1}

	m, err := a.store.GetMedia(ctx, mediaID)
	if err != nil {
		result.Status = types.AnalysisFailed
		result.Err = fmt.Errorf("failed to load media: %w", err)
		return result
	}
	if m.IsAnalyzed() {
		result.Status = types.AnalysisSuccess
		result.Cached = true
		result.Attempts = 0
		return result
	}

	if err := a.store.MarkProcessing(ctx, types.EntityMedia, mediaID); err != nil {
		return a.fail(ctx, result, err)
	}

	summary, embedding, err := a.describe(ctx, m)
	if err != nil {
		return a.fail(ctx, result, err)
	}

	if err := a.store.SaveAnalysis(ctx, types.EntityMedia, mediaID, summary, embedding); err != nil {
		return a.fail(ctx, result, fmt.Errorf("failed to save analysis: %w", err))
	}

	a.logger.Debug("media analyzed", "media_id", mediaID, "class", m.Kind)
	result.Status = types.AnalysisSuccess
	return result
}

// AnalyzeWithRetry runs Analyze and re-runs it up to retries more times while it fails.
func (a *MediaAnalyzer) AnalyzeWithRetry(ctx context.Context, mediaID uuid.UUID, retries int) MediaResult {
	result := a.Analyze(ctx, mediaID)
	attempts := result.Attempts
	for i := 0; i < retries && result.Status == types.AnalysisFailed; i++ {
		a.logger.Info("retrying media analysis", "media_id", mediaID, "error", result.Err)
		result = a.Analyze(ctx, mediaID)
		attempts += result.Attempts
	}
	result.Attempts = attempts
	return result
}

// describe holds the class slot for the whole provider exchange and always releases it.
func (a *MediaAnalyzer) describe(ctx context.Context, m *types.Media) (string, []float32, error) {
	slotCtx, cancel := context.WithTimeout(ctx, a.slotTimeout)
	err := a.limiter.WaitForSlot(slotCtx, m.Kind)
	cancel()
	if err != nil {
		return "", nil, err
	}
	defer a.limiter.CompleteTask(m.Kind)

	src, err := ResolveSource(m)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve source: %w", err)
	}

	part, err := a.contentPart(ctx, src)
	if err != nil {
		return "", nil, err
	}

	prompt, err := a.prompt(ctx, m)
	if err != nil {
		return "", nil, err
	}

	summary, err := a.provider.Analyze(ctx, llm.TierMedia, prompt, part)
	if err != nil {
		return "", nil, fmt.Errorf("analysis call failed: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", nil, fmt.Errorf("analysis call returned an empty summary")
	}

	embedding, err := a.provider.Embed(ctx, summary)
	if err != nil {
		return "", nil, fmt.Errorf("embedding call failed: %w", err)
	}
	return summary, embedding, nil
}

func (a *MediaAnalyzer) contentPart(ctx context.Context, src Source) (llm.Part, error) {
	if src.Remote {
		return llm.Part{URI: src.URL, MIMEType: src.MIMEType}, nil
	}

	res, err := a.fetch(ctx, src.URL)
	if err != nil {
		return llm.Part{}, fmt.Errorf("failed to download media: %w", err)
	}
	mimeType := src.MIMEType
	if mimeType == "" {
		mimeType = res.ContentType
	}
	return llm.Part{Data: res.Data, MIMEType: mimeType}, nil
}

func (a *MediaAnalyzer) prompt(ctx context.Context, m *types.Media) (string, error) {
	key := prompts.KeyDescribeImage
	if m.Kind == types.ClassVideo {
		key = prompts.KeyDescribeVideo
	}

	title := ""
	if project, err := a.store.GetProject(ctx, m.ProjectID); err == nil {
		title = project.Title
	}

	prompt, err := prompts.Render(prompts.AnalysisFile, key, map[string]string{"ProjectTitle": title})
	if err != nil {
		return "", fmt.Errorf("failed to load prompt: %w", err)
	}
	return prompt, nil
}

func (a *MediaAnalyzer) fail(ctx context.Context, result MediaResult, cause error) MediaResult {
	result.Status = types.AnalysisFailed
	result.Err = cause

	if err := a.store.FailAnalysis(ctx, types.EntityMedia, result.MediaID, errorText(cause)); err != nil {
		a.logger.Error("failed to record media failure", "media_id", result.MediaID, "error", err)
	}
	a.logger.Warn("media analysis failed", "media_id", result.MediaID, "error", cause)
	return result
}
