package attribution

import (
	"regexp"
	"strings"
)

// Sender address patterns for automated/system mailers.
var automatedSenderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no-?reply`),
	regexp.MustCompile(`(?i)noreply`),
	regexp.MustCompile(`(?i)notifications?@`),
	regexp.MustCompile(`(?i)alerts?@`),
	regexp.MustCompile(`(?i)do-?not-?reply`),
	regexp.MustCompile(`(?i)automated?@`),
	regexp.MustCompile(`(?i)system@`),
	regexp.MustCompile(`(?i)admin@`),
	regexp.MustCompile(`(?i)support@.*\.(atlassian|jira|confluence|slack|github|gitlab)`),
	regexp.MustCompile(`(?i).*@.*\.(calendar|cal)\.google\.com`),
	regexp.MustCompile(`(?i)@calendly\.`),
	regexp.MustCompile(`(?i)@zoom\.us`),
	regexp.MustCompile(`(?i)@.*\.zoom\.us`),
	regexp.MustCompile(`(?i)calendar-notification`),
	regexp.MustCompile(`(?i)meeting-reminder`),
}

// Subject patterns typical of machine-generated mail.
var automatedSubjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(re: )?(fwd: )?(calendar|meeting|event|appointment)`),
	regexp.MustCompile(`(?i)reminder`),
	regexp.MustCompile(`(?i)notification`),
	regexp.MustCompile(`(?i)automated`),
	regexp.MustCompile(`(?i)out of office`),
	regexp.MustCompile(`(?i)delivery (status|report)`),
	regexp.MustCompile(`(?i)unsubscribe`),
	regexp.MustCompile(`(?i)newsletter`),
}

// Literal disclosure phrases automated senders put in message bodies.
var automatedBodyPhrases = []string{
	"This is an automated message",
	"Do not reply to this email",
	"Please do not reply",
	"unsubscribe",
	"automatically generated",
}

// IsAutomated reports whether a communication looks machine-generated, so it
// can be excluded from attribution and insight extraction. Deterministic,
// no side effects.
func IsAutomated(fromAddress, subject, body string) bool {
	for _, pattern := range automatedSenderPatterns {
		if pattern.MatchString(fromAddress) {
			return true
		}
	}

	for _, pattern := range automatedSubjectPatterns {
		if pattern.MatchString(subject) {
			return true
		}
	}

	lowerBody := strings.ToLower(body)
	for _, phrase := range automatedBodyPhrases {
		if strings.Contains(lowerBody, strings.ToLower(phrase)) {
			return true
		}
	}

	return false
}
