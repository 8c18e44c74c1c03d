// Package llm provides the content-analysis and embedding provider used by the
// analysis pipeline, behind a small Client interface.
package llm

import "github.com/jonathan/portfolio-analyzer/internal/types"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierMedia is used to describe a single image or video
	TierMedia ModelTier = "media"
	// TierSynthesis is used to merge many summaries into one
	TierSynthesis ModelTier = "synthesis"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Config holds the model configuration for the application
type Config struct {
	Provider            Provider
	Models              map[ModelTier]string
	EmbeddingModel      string
	EmbeddingDimensions int
	Temperature         float32
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierMedia:     "gemini-2.5-flash",
			TierSynthesis: "gemini-2.5-pro",
		},
		EmbeddingModel:      "text-embedding-004",
		EmbeddingDimensions: types.EmbeddingDimensions,
		Temperature:         0.2,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback: media tier handles anything unconfigured
	if model, ok := c.Models[TierMedia]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := *c
	newConfig.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return &newConfig
}
