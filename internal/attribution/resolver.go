package attribution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	clientdomain "clientlens-backend/internal/client/domain"
	commdomain "clientlens-backend/internal/communication/domain"
	"clientlens-backend/pkg/ai"
	"clientlens-backend/pkg/retry"
	"clientlens-backend/pkg/sanitize"

	"github.com/rs/zerolog"
)

// Confidence levels per matching tier. Direct address matches always beat
// domain matches, which always beat what the model is allowed to claim.
const (
	directMatchConfidence      = 0.95
	domainMatchConfidence      = 0.85
	emailDomainMatchConfidence = 0.80
	semanticConfidenceFloor    = 0.6
	semanticConfidenceCeiling  = 0.85
)

// Result is the outcome of resolving a communication against the owner's
// clients. Client is nil when nothing matched; that is an expected outcome,
// not an error.
type Result struct {
	Client     *clientdomain.Client
	Confidence float64
	Reasoning  string
}

// Resolver attributes communications to clients using direct address match,
// domain match, then LLM-assisted semantic match, in that order.
type Resolver struct {
	aiService ai.CompletionService
	retryOpts retry.Options
	log       zerolog.Logger
}

// NewResolver creates a new Resolver
func NewResolver(aiService ai.CompletionService, log zerolog.Logger) *Resolver {
	return &Resolver{
		aiService: aiService,
		retryOpts: retry.DefaultOptions(),
		log:       log.With().Str("component", "attribution").Logger(),
	}
}

// Resolve determines which client a communication relates to. It never
// returns an error for business outcomes; semantic-tier failures degrade to
// a no-match result.
func (r *Resolver) Resolve(ctx context.Context, comm *commdomain.Communication, clients []*clientdomain.Client) Result {
	if len(clients) == 0 {
		return Result{Confidence: 0, Reasoning: "no clients found"}
	}

	if result := r.findDirectMatch(comm, clients); result != nil {
		return *result
	}

	if result := r.findDomainMatch(comm, clients); result != nil {
		return *result
	}

	if result := r.findSemanticMatch(ctx, comm, clients); result != nil {
		return *result
	}

	return Result{Confidence: 0, Reasoning: "no client match found"}
}

// findDirectMatch checks the client's canonical email against both addresses.
func (r *Resolver) findDirectMatch(comm *commdomain.Communication, clients []*clientdomain.Client) *Result {
	for _, client := range clients {
		if client.Email == "" {
			continue
		}
		if strings.EqualFold(comm.FromAddress, client.Email) || strings.EqualFold(comm.ToAddress, client.Email) {
			return &Result{
				Client:     client,
				Confidence: directMatchConfidence,
				Reasoning:  fmt.Sprintf("direct email match: %s", client.Email),
			}
		}
	}
	return nil
}

// findDomainMatch compares address domains against the client's explicit
// domain, then against the domain of the client's canonical email.
func (r *Resolver) findDomainMatch(comm *commdomain.Communication, clients []*clientdomain.Client) *Result {
	fromDomain := emailDomain(comm.FromAddress)
	toDomain := emailDomain(comm.ToAddress)

	for _, client := range clients {
		if client.Domain != "" {
			clientDomain := strings.ToLower(client.Domain)
			if (fromDomain != "" && fromDomain == clientDomain) ||
				(toDomain != "" && toDomain == clientDomain) {
				return &Result{
					Client:     client,
					Confidence: domainMatchConfidence,
					Reasoning:  fmt.Sprintf("domain match: %s", clientDomain),
				}
			}
		}

		if client.Email != "" {
			clientEmailDomain := emailDomain(client.Email)
			if clientEmailDomain != "" &&
				((fromDomain != "" && fromDomain == clientEmailDomain) ||
					(toDomain != "" && toDomain == clientEmailDomain)) {
				return &Result{
					Client:     client,
					Confidence: emailDomainMatchConfidence,
					Reasoning:  fmt.Sprintf("client email domain match: %s", clientEmailDomain),
				}
			}
		}
	}

	return nil
}

// semanticResponse is the JSON object the model is asked to return.
type semanticResponse struct {
	ClientID   string      `json:"client_id"`
	Confidence json.Number `json:"confidence"`
	Reasoning  string      `json:"reasoning"`
}

// findSemanticMatch asks the LLM to pick the best-matching client. Any
// failure (transport after retries, unparsable output, unknown id, low
// confidence) is treated as no match.
func (r *Resolver) findSemanticMatch(ctx context.Context, comm *commdomain.Communication, clients []*clientdomain.Client) *Result {
	prompt := r.buildSemanticPrompt(comm, clients)

	text, err := retry.DoWithResult(ctx, r.retryOpts, func(ctx context.Context) (string, error) {
		return r.aiService.Complete(ctx, prompt, 500)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("communication_id", comm.ID).Msg("semantic match failed")
		return nil
	}

	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		r.log.Warn().Str("communication_id", comm.ID).Msg("no JSON object in semantic match response")
		return nil
	}

	var parsed semanticResponse
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &parsed); err != nil {
		r.log.Warn().Err(err).Str("communication_id", comm.ID).Msg("failed to parse semantic match response")
		return nil
	}

	confidence, err := parsed.Confidence.Float64()
	if err != nil || parsed.ClientID == "" || confidence <= semanticConfidenceFloor {
		return nil
	}

	// Only accept ids that correspond to an actual candidate.
	for _, client := range clients {
		if client.ID == parsed.ClientID {
			return &Result{
				Client:     client,
				Confidence: clampConfidence(confidence),
				Reasoning:  fmt.Sprintf("AI analysis: %s", parsed.Reasoning),
			}
		}
	}

	r.log.Warn().Str("communication_id", comm.ID).Str("client_id", parsed.ClientID).Msg("semantic match returned unknown client id")
	return nil
}

func (r *Resolver) buildSemanticPrompt(comm *commdomain.Communication, clients []*clientdomain.Client) string {
	var sb strings.Builder
	sb.WriteString("You are an AI that helps identify which client an email relates to. Analyze the email content and determine which client it's most likely about.\n\n")
	sb.WriteString("EMAIL TO ANALYZE:\n")
	fmt.Fprintf(&sb, "From: %s\n", sanitize.ForLLM(comm.FromAddress))
	fmt.Fprintf(&sb, "To: %s\n", sanitize.ForLLM(comm.ToAddress))
	fmt.Fprintf(&sb, "Subject: %s\n", sanitize.ForLLM(comm.Subject))
	body := sanitize.ForLLM(comm.Body)
	if len(body) > 1000 {
		body = body[:1000]
	}
	fmt.Fprintf(&sb, "Body: %s\n\n", body)

	sb.WriteString("AVAILABLE CLIENTS:\n")
	for i, client := range clients {
		company := client.Company
		if company == "" {
			company = "Unknown"
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, client.Name, company)
		fmt.Fprintf(&sb, "   ID: %s\n", client.ID)
		fmt.Fprintf(&sb, "   Email: %s\n", orDefault(client.Email, "Not provided"))
		fmt.Fprintf(&sb, "   Domain: %s\n", orDefault(client.Domain, "Not provided"))
		fmt.Fprintf(&sb, "   Current Project: %s\n\n", orDefault(client.CurrentProject, "Not specified"))
	}

	sb.WriteString(`Analyze the email and determine which client it relates to based on:
- Email addresses and domains
- Names mentioned in the content
- Company names referenced
- Project details discussed
- Context clues in the conversation

Respond with a JSON object:
{
  "client_id": "client_id_here_or_null",
  "confidence": 0.0-1.0,
  "reasoning": "brief explanation of why this client was selected"
}

Only return high-confidence matches (>0.6). If uncertain, return null for client_id.`)

	return sb.String()
}

// clampConfidence bounds accepted semantic confidence so the model can never
// outrank the deterministic tiers.
func clampConfidence(c float64) float64 {
	if c < semanticConfidenceFloor {
		return semanticConfidenceFloor
	}
	if c > semanticConfidenceCeiling {
		return semanticConfidenceCeiling
	}
	return c
}

// emailDomain extracts the lowercased domain portion of an address.
func emailDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at == -1 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
