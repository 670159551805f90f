package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"clientlens-backend/pkg/ai"
	"clientlens-backend/pkg/retry"
	"clientlens-backend/pkg/sanitize"

	commdomain "clientlens-backend/internal/communication/domain"
	insightdomain "clientlens-backend/internal/insight/domain"

	"github.com/rs/zerolog"
)

// maxCommunicationsPerPrompt caps how much of a thread goes into a single
// extraction prompt so the context stays inside model limits.
const maxCommunicationsPerPrompt = 10

const extractionMaxTokens = 2000

const unknownClientLabel = "Unknown Client"

// CommunicationContext pairs a communication with whatever client
// attribution resolved for it. Client fields are empty for
// unattributed messages.
type CommunicationContext struct {
	Communication *commdomain.Communication
	ClientName    string
	ClientCompany string
	ClientProject string
}

// ExtractionResult is what one extraction run produces. RawOutput always
// carries the model's unparsed text, even when no insight validated, so
// callers can persist it for auditing.
type ExtractionResult struct {
	Insights  []ValidatedInsight
	RawOutput string
}

// Extractor turns a batch of communications into structured client
// insights via a single LLM completion.
type Extractor struct {
	aiService ai.CompletionService
	retryOpts retry.Options
	log       zerolog.Logger
}

func NewExtractor(aiService ai.CompletionService, log zerolog.Logger) *Extractor {
	return &Extractor{
		aiService: aiService,
		retryOpts: retry.DefaultOptions(),
		log:       log.With().Str("component", "insight-extractor").Logger(),
	}
}

// Extract runs one completion over the given communications and returns
// the validated insights alongside the raw model output. An empty input
// yields an empty result without calling the model.
func (e *Extractor) Extract(ctx context.Context, comms []CommunicationContext) (ExtractionResult, error) {
	if len(comms) == 0 {
		return ExtractionResult{Insights: []ValidatedInsight{}}, nil
	}
	if len(comms) > maxCommunicationsPerPrompt {
		comms = comms[:maxCommunicationsPerPrompt]
	}

	prompt := buildExtractionPrompt(comms)

	// Copy before attaching the hook; the shared options stay untouched so
	// concurrent Extract calls do not race on them.
	opts := e.retryOpts
	opts.OnRetry = func(err error, attempt int) {
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("retrying insight extraction")
	}

	raw, err := retry.DoWithResult(ctx, opts, func(ctx context.Context) (string, error) {
		return e.aiService.Complete(ctx, prompt, extractionMaxTokens)
	})
	if err != nil {
		return ExtractionResult{Insights: []ValidatedInsight{}}, fmt.Errorf("insight completion failed: %w", err)
	}

	result := ExtractionResult{Insights: []ValidatedInsight{}, RawOutput: raw}

	candidates, err := parseInsightArray(raw)
	if err != nil {
		e.log.Warn().Err(err).Msg("model output did not contain a parseable insight array")
		return result, nil
	}

	result.Insights = validateCandidates(candidates, e.log)
	return result, nil
}

// parseInsightArray locates the JSON array inside free-form model text by
// slicing from the first '[' to the last ']' and unmarshalling that span.
func parseInsightArray(raw string) ([]candidateInsight, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON array found in output")
	}

	var candidates []candidateInsight
	if err := json.Unmarshal([]byte(raw[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("failed to parse insight array: %w", err)
	}
	return candidates, nil
}

// buildExtractionPrompt groups communications by client so the model sees
// each relationship as one block, with unattributed messages collected
// under a shared unknown-client bucket.
func buildExtractionPrompt(comms []CommunicationContext) string {
	groups := make(map[string][]CommunicationContext)
	order := make([]string, 0)
	for _, c := range comms {
		name := c.ClientName
		if name == "" {
			name = unknownClientLabel
		}
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], c)
	}
	// Stable ordering keeps prompts deterministic for identical inputs.
	sort.Strings(order)

	blocks := make([]string, 0, len(order))
	for _, name := range order {
		blocks = append(blocks, renderClientBlock(name, groups[name]))
	}

	var b strings.Builder
	b.WriteString("You are an assistant that analyzes client communications for a professional services firm.\n")
	b.WriteString("Review the communications below and extract actionable insights about each client relationship.\n\n")
	b.WriteString(strings.Join(blocks, "\n\n=== NEW CLIENT ===\n\n"))
	b.WriteString("\n\nReturn ONLY a JSON array. Each element must have exactly these fields:\n")
	b.WriteString(`- "category": must be exactly one of ` + categoryList() + "\n")
	b.WriteString(`- "summary": one or two sentences describing the insight` + "\n")
	b.WriteString(`- "evidence": a quote or paraphrase from the communication supporting it` + "\n")
	b.WriteString(`- "suggested_action": a concrete next step` + "\n")
	b.WriteString(`- "confidence": a number between 0 and 1` + "\n")
	b.WriteString("\nOnly include insights you can support with evidence. Return [] if there is nothing actionable.")
	return b.String()
}

func categoryList() string {
	quoted := make([]string, len(insightdomain.Categories))
	for i, c := range insightdomain.Categories {
		quoted[i] = `"` + string(c) + `"`
	}
	return strings.Join(quoted, ", ")
}

func renderClientBlock(name string, comms []CommunicationContext) string {
	var b strings.Builder
	b.WriteString("CLIENT: " + name)
	if len(comms) > 0 {
		if company := comms[0].ClientCompany; company != "" {
			b.WriteString(" (" + company + ")")
		}
		if project := comms[0].ClientProject; project != "" {
			b.WriteString("\nCurrent project: " + project)
		}
	}
	b.WriteString("\n")

	for i, c := range comms {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		comm := c.Communication
		b.WriteString(fmt.Sprintf("\nFrom: %s\nTo: %s\nSubject: %s\nDate: %s\n%s\n",
			comm.FromAddress,
			comm.ToAddress,
			comm.Subject,
			comm.Timestamp.Format("2006-01-02 15:04"),
			sanitize.ForLLM(comm.Body),
		))
	}
	return b.String()
}
