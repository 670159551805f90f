package ai

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog/log"
)

// FallbackService routes completions to Gemini first (better quality) and
// falls back to the local Ollama provider on quota or connection failures.
type FallbackService struct {
	gemini CompletionService
	ollama *OllamaService
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(gemini CompletionService, ollama *OllamaService) *FallbackService {
	return &FallbackService{
		gemini: gemini,
		ollama: ollama,
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	}

	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// Complete tries Gemini first, falls back to Ollama on quota/connection errors
func (f *FallbackService) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if f.gemini != nil {
		result, err := f.gemini.Complete(ctx, prompt, maxTokens)
		if err == nil {
			return result, nil
		}

		if isQuotaError(err) {
			log.Warn().Err(err).Msg("gemini quota exhausted, falling back to ollama")
		} else {
			log.Warn().Err(err).Msg("gemini completion failed, falling back to ollama")
		}
	}

	if f.ollama != nil {
		result, err := f.ollama.Complete(ctx, prompt, maxTokens)
		if err == nil {
			return result, nil
		}

		// If Ollama also fails with a connection error, retry Gemini once
		// (the quota window may have passed).
		if isConnectionError(err) && f.gemini != nil {
			log.Warn().Err(err).Msg("ollama unreachable, retrying gemini")
			return f.gemini.Complete(ctx, prompt, maxTokens)
		}

		return "", fmt.Errorf("ollama completion failed: %w", err)
	}

	return "", fmt.Errorf("no AI provider available")
}
