package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	commdomain "clientlens-backend/internal/communication/domain"
	insightdomain "clientlens-backend/internal/insight/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompletionService struct {
	response string
	err      error
	calls    int
	prompts  []string
}

func (f *fakeCompletionService) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestExtractor(ai *fakeCompletionService) *Extractor {
	e := NewExtractor(ai, zerolog.Nop())
	e.retryOpts.InitialDelay = 1
	e.retryOpts.MaxDelay = 1
	return e
}

func commContext(id, clientName string) CommunicationContext {
	return CommunicationContext{
		Communication: &commdomain.Communication{
			ID:          id,
			UserID:      "user-1",
			FromAddress: "anna@acme.com",
			ToAddress:   "me@consultancy.com",
			Subject:     "Q3 budget",
			Body:        "We are worried about the invoice.",
			Timestamp:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		},
		ClientName: clientName,
	}
}

const validInsightArray = `Here are the insights:
[
  {"category": "Risk", "summary": "Client is worried about invoice costs this quarter.", "evidence": "We are worried about the invoice.", "suggested_action": "Schedule a budget review call.", "confidence": 0.8}
]
Hope that helps!`

func TestExtractLeavesSharedRetryOptionsUntouched(t *testing.T) {
	e := newTestExtractor(&fakeCompletionService{response: validInsightArray})

	_, err := e.Extract(context.Background(), []CommunicationContext{commContext("c1", "Anna")})

	require.NoError(t, err)
	assert.Nil(t, e.retryOpts.OnRetry, "per-call retry hook must not leak into shared options")
}

func TestExtractParsesArraySurroundedByProse(t *testing.T) {
	ai := &fakeCompletionService{response: validInsightArray}
	e := newTestExtractor(ai)

	result, err := e.Extract(context.Background(), []CommunicationContext{commContext("c1", "Anna")})

	require.NoError(t, err)
	require.Len(t, result.Insights, 1)
	assert.Equal(t, insightdomain.CategoryRisk, result.Insights[0].Category)
	assert.Equal(t, 0.8, result.Insights[0].Confidence)
	assert.Equal(t, validInsightArray, result.RawOutput)
}

func TestExtractNoArrayKeepsRawOutput(t *testing.T) {
	ai := &fakeCompletionService{response: "I found nothing actionable in these messages."}
	e := newTestExtractor(ai)

	result, err := e.Extract(context.Background(), []CommunicationContext{commContext("c1", "Anna")})

	require.NoError(t, err)
	assert.Empty(t, result.Insights)
	assert.Equal(t, "I found nothing actionable in these messages.", result.RawOutput)
}

func TestExtractMalformedJSONKeepsRawOutput(t *testing.T) {
	ai := &fakeCompletionService{response: `[ {"category": "Risk", broken ]`}
	e := newTestExtractor(ai)

	result, err := e.Extract(context.Background(), []CommunicationContext{commContext("c1", "Anna")})

	require.NoError(t, err)
	assert.Empty(t, result.Insights)
	assert.NotEmpty(t, result.RawOutput)
}

func TestExtractEmptyInputSkipsModel(t *testing.T) {
	ai := &fakeCompletionService{}
	e := newTestExtractor(ai)

	result, err := e.Extract(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, result.Insights)
	assert.Zero(t, ai.calls)
}

func TestExtractCapsCommunicationsPerPrompt(t *testing.T) {
	ai := &fakeCompletionService{response: "[]"}
	e := newTestExtractor(ai)

	contexts := make([]CommunicationContext, 0, 15)
	for i := 0; i < 15; i++ {
		cc := commContext("c"+string(rune('a'+i)), "Anna")
		cc.Communication.Subject = "Subject-" + string(rune('a'+i))
		contexts = append(contexts, cc)
	}

	_, err := e.Extract(context.Background(), contexts)
	require.NoError(t, err)
	require.Len(t, ai.prompts, 1)

	assert.Contains(t, ai.prompts[0], "Subject-j")
	assert.NotContains(t, ai.prompts[0], "Subject-k", "only the first ten communications go into the prompt")
}

func TestExtractErrorAfterRetries(t *testing.T) {
	ai := &fakeCompletionService{err: errors.New("request timeout")}
	e := newTestExtractor(ai)

	result, err := e.Extract(context.Background(), []CommunicationContext{commContext("c1", "Anna")})

	require.Error(t, err)
	assert.Empty(t, result.Insights)
	assert.Equal(t, 3, ai.calls, "transient errors use the full retry budget")
}

func TestPromptGroupsByClientWithUnknownBucket(t *testing.T) {
	known := commContext("c1", "Anna Larsson")
	known.ClientCompany = "Acme"
	unknown := commContext("c2", "")

	prompt := buildExtractionPrompt([]CommunicationContext{known, unknown})

	assert.Contains(t, prompt, "CLIENT: Anna Larsson (Acme)")
	assert.Contains(t, prompt, "CLIENT: "+unknownClientLabel)
	assert.Contains(t, prompt, "=== NEW CLIENT ===")
	assert.Contains(t, prompt, `"Risk", "Upsell", "Alignment", "Note"`)
}

func TestValidateCandidateCategories(t *testing.T) {
	base := candidateInsight{
		Summary:         "A sufficiently long summary of the situation.",
		Evidence:        "Quote from the email.",
		SuggestedAction: "Follow up with the client.",
		Confidence:      0.7,
	}

	for _, category := range insightdomain.Categories {
		c := base
		c.Category = string(category)
		_, ok := validateCandidate(c)
		assert.True(t, ok, "category %s", category)
	}

	for _, category := range []string{"risk", "Churn", "Opportunity", ""} {
		c := base
		c.Category = category
		_, ok := validateCandidate(c)
		assert.False(t, ok, "category %q", category)
	}
}

func TestValidateCandidateTruncation(t *testing.T) {
	c := candidateInsight{
		Category:        "Note",
		Summary:         strings.Repeat("s", 600),
		Evidence:        strings.Repeat("e", 1200),
		SuggestedAction: strings.Repeat("a", 600),
		Confidence:      0.5,
	}

	v, ok := validateCandidate(c)
	require.True(t, ok)

	assert.Len(t, v.Summary, 500)
	assert.True(t, strings.HasSuffix(v.Summary, "..."))
	assert.Len(t, v.Evidence, 1000)
	assert.True(t, strings.HasSuffix(v.Evidence, "..."))
	assert.Len(t, v.SuggestedAction, 500)
	assert.True(t, strings.HasSuffix(v.SuggestedAction, "..."))
}

func TestValidateCandidateMinimumLengths(t *testing.T) {
	c := candidateInsight{
		Category:        "Note",
		Summary:         "too short",
		Evidence:        "ok evidence",
		SuggestedAction: "do a thing",
		Confidence:      0.5,
	}
	_, ok := validateCandidate(c)
	assert.False(t, ok, "summary below ten characters is rejected")

	c.Summary = "long enough summary"
	c.Evidence = "hm"
	_, ok = validateCandidate(c)
	assert.False(t, ok, "evidence below five characters is rejected")
}

func TestValidateCandidateConfidence(t *testing.T) {
	base := candidateInsight{
		Category:        "Alignment",
		Summary:         "Client confirmed the proposed milestones.",
		Evidence:        "Sounds good to us.",
		SuggestedAction: "Send the updated statement of work.",
	}

	c := base
	c.Confidence = "0.85"
	v, ok := validateCandidate(c)
	require.True(t, ok, "string confidence is coerced")
	assert.Equal(t, 0.85, v.Confidence)

	for _, bad := range []interface{}{1.5, -0.1, "not-a-number", nil, true} {
		c := base
		c.Confidence = bad
		_, ok := validateCandidate(c)
		assert.False(t, ok, "confidence %v", bad)
	}
}

func TestValidateCandidatesDropsInvalidKeepsValid(t *testing.T) {
	candidates := []candidateInsight{
		{Category: "Risk", Summary: "Client may cancel the engagement soon.", Evidence: "thinking of pausing", SuggestedAction: "Call them today.", Confidence: 0.9},
		{Category: "Churn", Summary: "Invalid category entry.", Evidence: "irrelevant", SuggestedAction: "ignore this", Confidence: 0.9},
	}

	valid := validateCandidates(candidates, zerolog.Nop())
	require.Len(t, valid, 1)
	assert.Equal(t, insightdomain.CategoryRisk, valid[0].Category)
}
