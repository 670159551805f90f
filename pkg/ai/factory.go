package ai

import (
	"clientlens-backend/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama" or "auto"

	// Gemini config
	GeminiAPIKey string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// NewCompletionService creates a CompletionService based on the config.
// This is the factory function - switch AI provider by changing config.Provider
func NewCompletionService(cfg Config) CompletionService {
	switch cfg.Provider {
	case ProviderGemini:
		return gemini.NewGeminiService(cfg.GeminiAPIKey)

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)

	default:
		// "auto": Gemini primary with Ollama fallback when both are
		// configured, otherwise whichever is available.
		if cfg.GeminiAPIKey != "" {
			return NewFallbackService(
				gemini.NewGeminiService(cfg.GeminiAPIKey),
				NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel),
			)
		}
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
	}
}
