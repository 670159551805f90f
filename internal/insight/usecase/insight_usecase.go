package usecase

import (
	"context"
	"fmt"

	"clientlens-backend/internal/attribution"
	clientdomain "clientlens-backend/internal/client/domain"
	clientrepo "clientlens-backend/internal/client/repository"
	commdomain "clientlens-backend/internal/communication/domain"
	commrepo "clientlens-backend/internal/communication/repository"
	insightdomain "clientlens-backend/internal/insight/domain"
	insightrepo "clientlens-backend/internal/insight/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// recentCommunicationWindow is how many of the newest communications one
// pipeline run considers.
const recentCommunicationWindow = 50

// Summary aggregates what a pipeline run did across all threads.
type Summary struct {
	CommunicationsProcessed int `json:"communications_processed"`
	ThreadsAnalyzed         int `json:"threads_analyzed"`
	InsightsWritten         int `json:"insights_written"`
	AttributionHits         int `json:"attribution_hits"`
}

// InsightUsecase defines methods for generating and managing client insights
type InsightUsecase interface {
	// GenerateInsights runs the full pipeline over the user's recent
	// communications: classify, attribute, extract, persist.
	GenerateInsights(ctx context.Context, userID string) (*Summary, error)
	// ListInsights returns a page of the user's insights
	ListInsights(userID string, category, clientID *string, limit, offset int) ([]*insightdomain.Insight, int64, error)
	// GetInsight returns one insight scoped to its owner
	GetInsight(userID, insightID string) (*insightdomain.Insight, error)
	// SubmitFeedback records the owner's verdict on an insight
	SubmitFeedback(userID, insightID, feedback string) (*insightdomain.Insight, error)
}

type insightUsecase struct {
	insightRepo insightrepo.InsightRepository
	commRepo    commrepo.CommunicationRepository
	clientRepo  clientrepo.ClientRepository
	resolver    *attribution.Resolver
	extractor   *Extractor
	log         zerolog.Logger
}

func NewInsightUsecase(
	insightRepo insightrepo.InsightRepository,
	commRepo commrepo.CommunicationRepository,
	clientRepo clientrepo.ClientRepository,
	resolver *attribution.Resolver,
	extractor *Extractor,
	log zerolog.Logger,
) InsightUsecase {
	return &insightUsecase{
		insightRepo: insightRepo,
		commRepo:    commRepo,
		clientRepo:  clientRepo,
		resolver:    resolver,
		extractor:   extractor,
		log:         log.With().Str("component", "insight-pipeline").Logger(),
	}
}

func (u *insightUsecase) GenerateInsights(ctx context.Context, userID string) (*Summary, error) {
	comms, err := u.commRepo.FindRecent(userID, recentCommunicationWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent communications: %w", err)
	}

	clients, err := u.clientRepo.FindByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	clientsByID := make(map[string]*clientdomain.Client, len(clients))
	for _, c := range clients {
		clientsByID[c.ID] = c
	}

	summary := &Summary{}
	threads := groupByThread(comms)
	for _, thread := range threads {
		u.processThread(ctx, userID, thread, clients, clientsByID, summary)
	}
	summary.ThreadsAnalyzed = len(threads)

	u.log.Info().
		Str("user_id", userID).
		Int("communications", summary.CommunicationsProcessed).
		Int("threads", summary.ThreadsAnalyzed).
		Int("insights", summary.InsightsWritten).
		Int("attributions", summary.AttributionHits).
		Msg("insight pipeline run complete")

	return summary, nil
}

// processThread attributes, extracts and persists for one thread. Failures
// inside a thread are logged and absorbed so one bad thread cannot sink the
// whole run.
func (u *insightUsecase) processThread(
	ctx context.Context,
	userID string,
	thread []*commdomain.Communication,
	clients []*clientdomain.Client,
	clientsByID map[string]*clientdomain.Client,
	summary *Summary,
) {
	contexts := make([]CommunicationContext, 0, len(thread))
	for _, comm := range thread {
		if comm.IsAutomated {
			continue
		}
		summary.CommunicationsProcessed++

		client := u.attributeCommunication(ctx, userID, comm, clients, clientsByID, summary)
		cc := CommunicationContext{Communication: comm}
		if client != nil {
			cc.ClientName = client.Name
			cc.ClientCompany = client.Company
			cc.ClientProject = client.CurrentProject
		}
		contexts = append(contexts, cc)
	}
	if len(contexts) == 0 {
		return
	}

	result, err := u.extractor.Extract(ctx, contexts)
	if err != nil {
		u.log.Warn().Err(err).
			Str("thread_id", thread[0].ThreadID).
			Msg("insight extraction failed for thread")
		return
	}

	lead := contexts[0].Communication
	if len(result.Insights) == 0 {
		if result.RawOutput != "" {
			u.persistRawFallback(userID, lead, result.RawOutput)
		}
		return
	}

	for _, validated := range result.Insights {
		category := validated.Category
		insight := &insightdomain.Insight{
			ID:              uuid.New().String(),
			UserID:          userID,
			CommunicationID: lead.ID,
			ClientID:        lead.ClientID,
			Category:        &category,
			Summary:         validated.Summary,
			Evidence:        validated.Evidence,
			SuggestedAction: validated.SuggestedAction,
			Confidence:      validated.Confidence,
			RawOutput:       result.RawOutput,
		}
		if err := u.insightRepo.UpsertStructured(insight); err != nil {
			// One failed write must not discard the rest of the batch.
			u.log.Warn().Err(err).
				Str("communication_id", lead.ID).
				Str("category", string(category)).
				Msg("failed to persist insight")
			continue
		}
		summary.InsightsWritten++
	}
}

// attributeCommunication resolves the client for a communication that has
// none yet, persisting the outcome so later runs skip the work.
func (u *insightUsecase) attributeCommunication(
	ctx context.Context,
	userID string,
	comm *commdomain.Communication,
	clients []*clientdomain.Client,
	clientsByID map[string]*clientdomain.Client,
	summary *Summary,
) *clientdomain.Client {
	if comm.ClientID != nil {
		return clientsByID[*comm.ClientID]
	}

	result := u.resolver.Resolve(ctx, comm, clients)
	if result.Client == nil {
		return nil
	}
	summary.AttributionHits++

	clientID := result.Client.ID
	comm.ClientID = &clientID
	if err := u.commRepo.UpdateClassification(userID, comm.ID, &clientID, comm.IsAutomated); err != nil {
		u.log.Warn().Err(err).
			Str("communication_id", comm.ID).
			Msg("failed to persist attribution")
	}
	return result.Client
}

// persistRawFallback stores unparseable model output so a run that produced
// no structured insights still leaves an auditable trace. An existing record
// for the communication is updated in place rather than duplicated.
func (u *insightUsecase) persistRawFallback(userID string, lead *commdomain.Communication, rawOutput string) {
	existing, err := u.insightRepo.FindAnyForCommunication(userID, lead.ID)
	if err != nil {
		u.log.Warn().Err(err).Str("communication_id", lead.ID).Msg("raw fallback lookup failed")
		return
	}
	if existing != nil {
		if err := u.insightRepo.UpdateRawOutput(userID, existing.ID, rawOutput); err != nil {
			u.log.Warn().Err(err).Str("insight_id", existing.ID).Msg("failed to update raw output")
		}
		return
	}

	raw := &insightdomain.Insight{
		ID:              uuid.New().String(),
		UserID:          userID,
		CommunicationID: lead.ID,
		ClientID:        lead.ClientID,
		RawOutput:       rawOutput,
	}
	if err := u.insightRepo.InsertRaw(raw); err != nil {
		u.log.Warn().Err(err).Str("communication_id", lead.ID).Msg("failed to store raw output")
	}
}

func (u *insightUsecase) ListInsights(userID string, category, clientID *string, limit, offset int) ([]*insightdomain.Insight, int64, error) {
	if category != nil && !insightdomain.IsValidCategory(*category) {
		return nil, 0, fmt.Errorf("invalid category: %s", *category)
	}
	return u.insightRepo.FindByUserID(userID, category, clientID, limit, offset)
}

func (u *insightUsecase) GetInsight(userID, insightID string) (*insightdomain.Insight, error) {
	return u.insightRepo.FindByID(userID, insightID)
}

func (u *insightUsecase) SubmitFeedback(userID, insightID, feedback string) (*insightdomain.Insight, error) {
	if !insightdomain.IsValidFeedback(feedback) {
		return nil, fmt.Errorf("invalid feedback value: %s", feedback)
	}

	err := u.insightRepo.UpdateFeedback(userID, insightID, insightdomain.Feedback(feedback))
	if err == gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("insight not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}
	return u.insightRepo.FindByID(userID, insightID)
}

// groupByThread buckets communications by thread, preserving the input order
// of first appearance. Messages without a thread form singleton groups.
func groupByThread(comms []*commdomain.Communication) [][]*commdomain.Communication {
	groups := make([][]*commdomain.Communication, 0)
	index := make(map[string]int)
	for _, comm := range comms {
		key := comm.ThreadID
		if key == "" {
			key = comm.ID
		}
		if i, seen := index[key]; seen {
			groups[i] = append(groups[i], comm)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []*commdomain.Communication{comm})
	}
	return groups
}
