package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrMissingAPIKey is returned when the provider has no credentials.
var ErrMissingAPIKey = errors.New("API key is required")

// Part is one piece of model input: text, inline bytes, or a remote reference.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
	URI      string
}

// TextPart wraps plain text as a Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// Client is an abstraction over the analysis and embedding provider
type Client interface {
	// Analyze sends the prompt plus any media parts and returns the model's text
	Analyze(ctx context.Context, tier ModelTier, prompt string, parts ...Part) (string, error)
	// Embed returns a fixed-length vector for text
	Embed(ctx context.Context, text string) ([]float32, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q", config.Provider)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Analyze generates text from a prompt and optional media parts
func (c *GeminiClient) Analyze(ctx context.Context, tier ModelTier, prompt string, parts ...Part) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(c.config.Temperature)

	input := make([]genai.Part, 0, len(parts)+1)
	for _, p := range parts {
		gp, err := toGenaiPart(p)
		if err != nil {
			return "", err
		}
		input = append(input, gp)
	}
	input = append(input, genai.Text(prompt))

	resp, err := model.GenerateContent(ctx, input...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(resp)
}

// Embed embeds text with the configured embedding model
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	em := c.client.EmbeddingModel(c.config.EmbeddingModel)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp == nil || resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	values := resp.Embedding.Values
	if c.config.EmbeddingDimensions > 0 && len(values) != c.config.EmbeddingDimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(values), c.config.EmbeddingDimensions)
	}
	return values, nil
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// toGenaiPart converts a Part into the Gemini representation
func toGenaiPart(p Part) (genai.Part, error) {
	switch {
	case len(p.Data) > 0:
		if p.MIMEType == "" {
			return nil, fmt.Errorf("inline data requires a MIME type")
		}
		return genai.Blob{MIMEType: p.MIMEType, Data: p.Data}, nil
	case p.URI != "":
		return genai.FileData{MIMEType: p.MIMEType, URI: p.URI}, nil
	case p.Text != "":
		return genai.Text(p.Text), nil
	default:
		return nil, fmt.Errorf("empty part")
	}
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return CleanSummary(strings.Join(parts, "")), nil
}
