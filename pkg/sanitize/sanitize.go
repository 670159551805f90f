package sanitize

import (
	"regexp"
	"strings"
)

const (
	// MaxContentLength bounds sanitized content kept in storage.
	MaxContentLength = 50000
	// MaxLLMInputLength bounds text handed to an LLM prompt.
	MaxLLMInputLength = 10000
)

var (
	angleBrackets = regexp.MustCompile(`[<>]`)
	jsProtocol    = regexp.MustCompile(`(?i)javascript:`)
	eventHandlers = regexp.MustCompile(`(?i)on\w+=`)
	codeFences    = regexp.MustCompile("```")

	// Role markers and instruction tokens that could steer the model.
	promptMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\[INST\]`),
		regexp.MustCompile(`(?i)\[/INST\]`),
		regexp.MustCompile(`(?i)SYSTEM:`),
		regexp.MustCompile(`(?i)USER:`),
		regexp.MustCompile(`(?i)ASSISTANT:`),
		regexp.MustCompile(`(?i)Human:`),
		regexp.MustCompile(`(?i)AI:`),
	}
)

// Content strips markup and script vectors from raw communication text and
// bounds it for storage. Pure and idempotent; empty input yields empty output.
func Content(text string) string {
	if text == "" {
		return ""
	}

	sanitized := angleBrackets.ReplaceAllString(text, "")
	sanitized = jsProtocol.ReplaceAllString(sanitized, "")
	sanitized = eventHandlers.ReplaceAllString(sanitized, "")
	sanitized = strings.ReplaceAll(sanitized, "\x00", "")
	sanitized = strings.TrimSpace(sanitized)

	return truncate(sanitized, MaxContentLength)
}

// ForLLM applies the storage transform plus prompt-injection hardening before
// text is embedded in a model prompt, with a much smaller length ceiling.
func ForLLM(text string) string {
	if text == "" {
		return ""
	}

	sanitized := angleBrackets.ReplaceAllString(text, "")
	sanitized = strings.ReplaceAll(sanitized, "\x00", "")
	sanitized = jsProtocol.ReplaceAllString(sanitized, "")
	sanitized = eventHandlers.ReplaceAllString(sanitized, "")
	sanitized = codeFences.ReplaceAllString(sanitized, "")
	for _, marker := range promptMarkers {
		sanitized = marker.ReplaceAllString(sanitized, "")
	}
	sanitized = strings.TrimSpace(sanitized)

	return truncate(sanitized, MaxLLMInputLength)
}

// Text strips markup and bounds free-form text to maxLength.
func Text(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	sanitized := strings.TrimSpace(angleBrackets.ReplaceAllString(text, ""))
	return truncate(sanitized, maxLength)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
