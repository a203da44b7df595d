package ai

import (
	"context"
	"testing"
)

func TestConfigConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{"azure complete", Config{Provider: ProviderAzure, Endpoint: "https://x", APIKey: "k"}, true},
		{"azure missing key", Config{Provider: ProviderAzure, Endpoint: "https://x"}, false},
		{"azure missing endpoint", Config{Provider: ProviderAzure, APIKey: "k"}, false},
		{"gemini api key", Config{Provider: ProviderGemini, GeminiAPIKey: "k"}, true},
		{"gemini vertex", Config{Provider: ProviderGemini, GeminiProject: "p"}, true},
		{"gemini nothing", Config{Provider: ProviderGemini}, false},
		{"unknown provider", Config{Provider: "openai", APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Configured(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	config := NewConfig()
	if _, err := NewProvider(context.Background(), config); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}

	config.Endpoint = "https://example.cognitiveservices.azure.com"
	config.APIKey = "key"
	provider, err := NewProvider(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := provider.(*AzureVisionClient); !ok {
		t.Errorf("expected *AzureVisionClient, got %T", provider)
	}
}
