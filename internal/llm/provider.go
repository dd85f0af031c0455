package llm

import (
	"context"
	"strings"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends one prompt and returns the model's reply
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest contains the input for one completion
type CompletionRequest struct {
	// System is the role the model is asked to play
	System string

	// Prompt is the user message
	Prompt string

	// Images are data URLs attached to the prompt (document scans, photos)
	Images []string

	// JSON asks the provider for a JSON object reply where it supports it
	JSON bool

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse contains the model's reply
type CompletionResponse struct {
	// Text is the raw reply
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Model:     "gpt-4o",
		Timeout:   120,
		MaxTokens: 4000,
	}
}

func (c Config) maxTokens(override int) int {
	if override > 0 {
		return override
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 4000
}

// splitDataURL returns the media type and base64 payload of a data URL. A bare
// base64 string is returned as image/png.
func splitDataURL(dataURL string) (mediaType, payload string) {
	if !strings.HasPrefix(dataURL, "data:") {
		return "image/png", dataURL
	}
	head, body, ok := strings.Cut(dataURL, ",")
	if !ok {
		return "", ""
	}
	mediaType = strings.TrimPrefix(head, "data:")
	mediaType, _, _ = strings.Cut(mediaType, ";")
	if mediaType == "" {
		mediaType = "image/png"
	}
	return mediaType, body
}
