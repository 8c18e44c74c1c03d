package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-analyzer/internal/config"
	"github.com/jonathan/portfolio-analyzer/internal/llm"
	"github.com/jonathan/portfolio-analyzer/internal/observability"
	"github.com/jonathan/portfolio-analyzer/internal/types"
)

// execute runs the root command in-process and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	paths := []string{
		"serve",
		"analyze portfolio",
		"analyze project",
		"status",
		"migrate up",
		"migrate down",
		"migrate version",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			args := strings.Fields(path)
			cmd, _, err := rootCmd.Find(args)
			require.NoError(t, err)
			assert.Equal(t, args[len(args)-1], cmd.Name())
		})
	}
}

func TestInvalidIDs(t *testing.T) {
	tests := []struct {
		args    []string
		message string
	}{
		{[]string{"status", "nope"}, `invalid job ID "nope"`},
		{[]string{"analyze", "portfolio", "123"}, `invalid portfolio ID "123"`},
		{[]string{"analyze", "project", "abc"}, `invalid project ID "abc"`},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestMissingArgs(t *testing.T) {
	_, err := execute(t, "status")
	assert.Error(t, err)
}

func TestMigrateDown_InvalidSteps(t *testing.T) {
	t.Cleanup(func() { migrateSteps = 1 })

	_, err := execute(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps must be at least 1")
}

func TestLoadConfig_RequiresAPIKeyOnlyForProvider(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/portfolio_test")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := loadConfig(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GeminiAPIKey")

	cfg, err := loadConfig(true)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432/portfolio_test", cfg.DatabaseURL)
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := loadConfig(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL")
}

func TestConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.ImageConcurrency = 4
	cfg.VideoConcurrency = 1
	cfg.MediaModel = "media-model"
	cfg.SynthesisModel = "synthesis-model"
	cfg.CompletionThreshold = 0.5
	cfg.MediaRetries = 2
	cfg.SettleDelay = time.Second

	adm := admissionConfig(cfg)
	assert.Equal(t, 4, adm.Capacities[types.ClassImage])
	assert.Equal(t, 1, adm.Capacities[types.ClassVideo])

	ac := analysisConfig(cfg)
	assert.Equal(t, 0.5, ac.CompletionThreshold)
	assert.Equal(t, 2, ac.MediaRetries)
	assert.Equal(t, time.Second, ac.SettleDelay)
	assert.Equal(t, cfg.MediaWaitTimeout, ac.MediaWaitTimeout)
	assert.Equal(t, cfg.ProjectWaitTimeout, ac.ProjectWaitTimeout)
	assert.Equal(t, cfg.SlotTimeout, ac.SlotTimeout)

	lc := llmConfig(cfg)
	assert.Equal(t, "media-model", lc.GetModel(llm.TierMedia))
	assert.Equal(t, "synthesis-model", lc.GetModel(llm.TierSynthesis))
	assert.Equal(t, cfg.EmbeddingModel, lc.EmbeddingModel)
	assert.Equal(t, cfg.EmbeddingDimensions, lc.EmbeddingDimensions)
}

func TestProgressPrinter(t *testing.T) {
	t.Cleanup(func() { analyzeQuiet = false })
	printer := observability.NewPrinter(io.Discard)

	analyzeQuiet = false
	assert.NotNil(t, progressPrinter(printer))

	analyzeQuiet = true
	assert.Nil(t, progressPrinter(printer))
}
