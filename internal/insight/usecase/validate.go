package usecase

import (
	"strconv"

	insightdomain "clientlens-backend/internal/insight/domain"

	"github.com/rs/zerolog"
)

const (
	summaryMaxLen   = 500
	summaryMinLen   = 10
	evidenceMaxLen  = 1000
	evidenceMinLen  = 5
	actionMaxLen    = 500
	actionMinLen    = 5
)

// candidateInsight is one element of the JSON array the model returns,
// before validation. Confidence is loosely typed because models sometimes
// emit it as a quoted string.
type candidateInsight struct {
	Category        string      `json:"category"`
	Summary         string      `json:"summary"`
	Evidence        string      `json:"evidence"`
	SuggestedAction string      `json:"suggested_action"`
	Confidence      interface{} `json:"confidence"`
}

// ValidatedInsight is a candidate that passed schema validation.
type ValidatedInsight struct {
	Category        insightdomain.Category `json:"category"`
	Summary         string                 `json:"summary"`
	Evidence        string                 `json:"evidence"`
	SuggestedAction string                 `json:"suggested_action"`
	Confidence      float64                `json:"confidence"`
}

// validateCandidate checks one candidate against the insight schema.
// Over-long text fields are truncated rather than rejected; confidence
// strings are coerced. Returns false when the candidate must be dropped.
func validateCandidate(raw candidateInsight) (ValidatedInsight, bool) {
	if !insightdomain.IsValidCategory(raw.Category) {
		return ValidatedInsight{}, false
	}

	confidence, ok := coerceConfidence(raw.Confidence)
	if !ok || confidence < 0 || confidence > 1 {
		return ValidatedInsight{}, false
	}

	summary := truncateField(raw.Summary, summaryMaxLen)
	evidence := truncateField(raw.Evidence, evidenceMaxLen)
	action := truncateField(raw.SuggestedAction, actionMaxLen)

	if len(summary) < summaryMinLen || len(evidence) < evidenceMinLen || len(action) < actionMinLen {
		return ValidatedInsight{}, false
	}

	return ValidatedInsight{
		Category:        insightdomain.Category(raw.Category),
		Summary:         summary,
		Evidence:        evidence,
		SuggestedAction: action,
		Confidence:      confidence,
	}, true
}

// validateCandidates filters a parsed array down to the schema-valid
// insights. Dropped candidates are logged, never surfaced as errors;
// partial success is the normal case.
func validateCandidates(raw []candidateInsight, log zerolog.Logger) []ValidatedInsight {
	valid := make([]ValidatedInsight, 0, len(raw))
	for _, candidate := range raw {
		validated, ok := validateCandidate(candidate)
		if !ok {
			log.Warn().
				Str("category", candidate.Category).
				Msg("dropping schema-invalid insight from model output")
			continue
		}
		valid = append(valid, validated)
	}
	return valid
}

// truncateField caps s at max characters, replacing the tail with an
// ellipsis when it overflows.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func coerceConfidence(v interface{}) (float64, bool) {
	switch c := v.(type) {
	case float64:
		return c, true
	case string:
		parsed, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
