package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/portfolio-analyzer/internal/admission"
	"github.com/jonathan/portfolio-analyzer/internal/analysis"
	"github.com/jonathan/portfolio-analyzer/internal/config"
	"github.com/jonathan/portfolio-analyzer/internal/db"
	"github.com/jonathan/portfolio-analyzer/internal/fetch"
	"github.com/jonathan/portfolio-analyzer/internal/jobs"
	"github.com/jonathan/portfolio-analyzer/internal/llm"
	"github.com/jonathan/portfolio-analyzer/internal/logging"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// app holds the wired dependencies shared by commands.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	db      *db.DB
	llm     llm.Client
	cache   *jobs.RedisCache
	tracker *jobs.Tracker
	service *analysis.Service
}

// loadConfig reads and validates configuration. Commands that never call the
// provider pass storageOnly so a missing API key is not fatal.
func loadConfig(storageOnly bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storageOnly {
		err = cfg.ValidateStorage()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp connects to every backing service. The provider client is created
// only when withProvider is set; onProgress may be nil.
func newApp(ctx context.Context, cfg *config.Config, withProvider bool, onProgress analysis.ProgressCallback) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.db = database

	var trackerOpts []jobs.Option
	if cfg.RedisAddr != "" {
		cache, err := jobs.NewRedisCache(ctx, jobs.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.cache = cache
		trackerOpts = append(trackerOpts, jobs.WithCache(cache))
	}
	a.tracker = jobs.NewTracker(database, a.logger.Logger, trackerOpts...)

	if !withProvider {
		return a, nil
	}

	client, err := llm.NewClient(ctx, llmConfig(cfg), cfg.GeminiAPIKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	a.llm = client

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.MaxBytes = cfg.FetchMaxBytes

	a.service = analysis.NewService(database, a.tracker, client, admission.NewLimiter(admissionConfig(cfg)), analysisConfig(cfg), analysis.ServiceOptions{
		Fetcher:    analysis.HTTPFetcher(fetchOpts),
		OnProgress: onProgress,
		Logger:     a.logger.Logger,
	})
	return a, nil
}

// Close waits for background jobs and the units they dispatched, then
// releases connections.
func (a *app) Close() {
	if a.service != nil {
		a.service.Wait()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func llmConfig(cfg *config.Config) *llm.Config {
	c := llm.DefaultConfig().
		WithModel(llm.TierMedia, cfg.MediaModel).
		WithModel(llm.TierSynthesis, cfg.SynthesisModel)
	c.EmbeddingModel = cfg.EmbeddingModel
	c.EmbeddingDimensions = cfg.EmbeddingDimensions
	return c
}

func admissionConfig(cfg *config.Config) admission.Config {
	return admission.Config{
		Capacities: map[types.ContentClass]int{
			types.ClassImage: cfg.ImageConcurrency,
			types.ClassVideo: cfg.VideoConcurrency,
		},
	}
}

func analysisConfig(cfg *config.Config) analysis.Config {
	return analysis.Config{
		MediaWaitTimeout:    cfg.MediaWaitTimeout,
		ProjectWaitTimeout:  cfg.ProjectWaitTimeout,
		CompletionThreshold: cfg.CompletionThreshold,
		MediaRetries:        cfg.MediaRetries,
		SettleDelay:         cfg.SettleDelay,
		SlotTimeout:         cfg.SlotTimeout,
	}
}

// parseID parses a command argument as a UUID.
func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", what, raw, err)
	}
	return id, nil
}
