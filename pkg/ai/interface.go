package ai

import "context"

// CompletionService is the interface for LLM text completion.
// Implement this interface to add new AI providers (Gemini, Ollama, etc.)
type CompletionService interface {
	// Complete submits a single prompt and returns the model's free-form
	// text output, bounded by maxTokens.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
