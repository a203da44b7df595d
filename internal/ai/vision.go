package ai

import (
	"context"
	"time"

	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
)

const (
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
)

// Provider is a remote image understanding service. One call per analysis,
// no retries.
type Provider interface {
	Analyze(ctx context.Context, imageData []byte) (*ImageAnalysis, error)
}

type ImageAnalysis struct {
	Caption  models.Caption    `json:"caption"`
	ReadText []models.TextLine `json:"read_text,omitempty"`
}

type Config struct {
	Provider       string
	Endpoint       string
	APIKey         string
	GeminiAPIKey   string
	GeminiProject  string
	GeminiLocation string
	GeminiModel    string
	Timeout        time.Duration
}

func NewConfig() *Config {
	return &Config{
		Provider:       ProviderAzure,
		GeminiLocation: "us-central1",
		GeminiModel:    defaultGeminiModel,
		Timeout:        30 * time.Second,
	}
}

// Configured reports whether the selected provider has the credentials it needs.
func (c *Config) Configured() bool {
	switch c.Provider {
	case ProviderAzure:
		return c.Endpoint != "" && c.APIKey != ""
	case ProviderGemini:
		return c.GeminiAPIKey != "" || c.GeminiProject != ""
	default:
		return false
	}
}

func NewProvider(ctx context.Context, config *Config) (Provider, error) {
	if !config.Configured() {
		return nil, goerr.New("vision provider is not configured", goerr.V("provider", config.Provider))
	}

	switch config.Provider {
	case ProviderAzure:
		return NewAzureVisionClient(config.Endpoint, config.APIKey, WithTimeout(config.Timeout)), nil
	case ProviderGemini:
		return NewGeminiVisionClient(ctx, config)
	default:
		return nil, goerr.New("unknown vision provider", goerr.V("provider", config.Provider))
	}
}

// validate rejects provider output the record store cannot hold.
func validate(analysis *ImageAnalysis) error {
	if c := analysis.Caption.Confidence; c != nil && (*c < 0 || *c > 1) {
		return goerr.New("caption confidence out of range", goerr.V("confidence", *c))
	}
	return nil
}
