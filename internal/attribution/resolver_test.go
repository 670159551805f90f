package attribution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	clientdomain "clientlens-backend/internal/client/domain"
	commdomain "clientlens-backend/internal/communication/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletionService returns a canned response or error.
type fakeCompletionService struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompletionService) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testClients() []*clientdomain.Client {
	return []*clientdomain.Client{
		{
			ID:     "client-1",
			UserID: "user-1",
			Name:   "Anna Larsson",
			Email:  "anna@acme.com",
			Domain: "acme.com",
		},
		{
			ID:     "client-2",
			UserID: "user-1",
			Name:   "Bo Chen",
			Email:  "bo@widgets.io",
		},
	}
}

func newTestResolver(ai *fakeCompletionService) *Resolver {
	r := NewResolver(ai, zerolog.Nop())
	// Keep test retries instant.
	r.retryOpts.InitialDelay = 1
	r.retryOpts.MaxDelay = 1
	return r
}

func comm(from, to string) *commdomain.Communication {
	return &commdomain.Communication{
		ID:          "comm-1",
		UserID:      "user-1",
		FromAddress: from,
		ToAddress:   to,
		Subject:     "Project update",
		Body:        "Latest numbers attached.",
	}
}

func TestResolveDirectMatch(t *testing.T) {
	ai := &fakeCompletionService{}
	r := newTestResolver(ai)

	result := r.Resolve(context.Background(), comm("Anna@Acme.com", "me@consultancy.com"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, "client-1", result.Client.ID)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Zero(t, ai.calls, "direct match must not call the model")
}

func TestResolveDirectMatchOnRecipient(t *testing.T) {
	r := newTestResolver(&fakeCompletionService{})

	result := r.Resolve(context.Background(), comm("me@consultancy.com", "bo@widgets.io"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, "client-2", result.Client.ID)
	assert.Equal(t, 0.95, result.Confidence)
}

func TestResolveDomainMatch(t *testing.T) {
	r := newTestResolver(&fakeCompletionService{})

	result := r.Resolve(context.Background(), comm("someone-else@acme.com", "me@consultancy.com"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, "client-1", result.Client.ID)
	assert.Equal(t, 0.85, result.Confidence)
}

func TestResolveClientEmailDomainMatch(t *testing.T) {
	r := newTestResolver(&fakeCompletionService{})

	// client-2 has no explicit domain; the domain of its email matches.
	result := r.Resolve(context.Background(), comm("colleague@widgets.io", "me@consultancy.com"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, "client-2", result.Client.ID)
	assert.Equal(t, 0.80, result.Confidence)
}

func TestResolveSemanticMatchAccepted(t *testing.T) {
	ai := &fakeCompletionService{
		response: `Sure, here is my analysis: {"client_id": "client-1", "confidence": 0.8, "reasoning": "mentions the Acme rollout"}`,
	}
	r := newTestResolver(ai)

	result := r.Resolve(context.Background(), comm("stranger@elsewhere.org", "me@consultancy.com"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, "client-1", result.Client.ID)
	assert.Equal(t, 0.8, result.Confidence)
	assert.Equal(t, 1, ai.calls)
}

func TestResolveSemanticConfidenceClamped(t *testing.T) {
	ai := &fakeCompletionService{
		response: `{"client_id": "client-1", "confidence": 0.99, "reasoning": "very sure"}`,
	}
	r := newTestResolver(ai)

	result := r.Resolve(context.Background(), comm("stranger@elsewhere.org", "me@consultancy.com"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, 0.85, result.Confidence, "semantic confidence must not exceed the ceiling")
}

func TestResolveSemanticStringConfidence(t *testing.T) {
	ai := &fakeCompletionService{
		response: `{"client_id": "client-2", "confidence": "0.75", "reasoning": "quoted number"}`,
	}
	r := newTestResolver(ai)

	result := r.Resolve(context.Background(), comm("stranger@elsewhere.org", "me@consultancy.com"), testClients())

	require.NotNil(t, result.Client)
	assert.Equal(t, 0.75, result.Confidence)
}

func TestResolveSemanticRejections(t *testing.T) {
	cases := map[string]string{
		"low confidence":    `{"client_id": "client-1", "confidence": 0.5, "reasoning": "weak"}`,
		"floor confidence":  `{"client_id": "client-1", "confidence": 0.6, "reasoning": "not above threshold"}`,
		"unknown client id": `{"client_id": "client-99", "confidence": 0.9, "reasoning": "made up"}`,
		"empty client id":   `{"client_id": "", "confidence": 0.9, "reasoning": "null match"}`,
		"no JSON at all":    `I could not determine the client.`,
	}

	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			r := newTestResolver(&fakeCompletionService{response: response})
			result := r.Resolve(context.Background(), comm("stranger@elsewhere.org", "me@consultancy.com"), testClients())
			assert.Nil(t, result.Client)
			assert.Equal(t, "no client match found", result.Reasoning)
		})
	}
}

func TestResolveNeverErrors(t *testing.T) {
	r := newTestResolver(&fakeCompletionService{err: errors.New("model exploded")})

	result := r.Resolve(context.Background(), comm("stranger@elsewhere.org", "me@consultancy.com"), testClients())

	assert.Nil(t, result.Client)
	assert.Equal(t, float64(0), result.Confidence)
}

func TestResolveEmptyClientList(t *testing.T) {
	ai := &fakeCompletionService{}
	r := newTestResolver(ai)

	result := r.Resolve(context.Background(), comm("anna@acme.com", "me@consultancy.com"), nil)

	assert.Nil(t, result.Client)
	assert.Equal(t, "no clients found", result.Reasoning)
	assert.Zero(t, ai.calls)
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "acme.com", emailDomain("Anna@Acme.com"))
	assert.Equal(t, "b.com", emailDomain(`"weird@quote"@b.com`))
	assert.Equal(t, "", emailDomain("not-an-address"))
	assert.Equal(t, "", emailDomain("trailing@"))
}

func TestSemanticPromptListsAllClients(t *testing.T) {
	r := newTestResolver(&fakeCompletionService{})
	prompt := r.buildSemanticPrompt(comm("x@y.com", "me@consultancy.com"), testClients())

	for i, c := range testClients() {
		assert.Contains(t, prompt, fmt.Sprintf("%d. %s", i+1, c.Name))
		assert.Contains(t, prompt, c.ID)
	}
}
