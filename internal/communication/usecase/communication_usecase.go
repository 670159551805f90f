package usecase

import (
	"context"
	"fmt"
	"strings"

	"clientlens-backend/internal/attribution"
	authrepo "clientlens-backend/internal/auth/repository"
	clientrepo "clientlens-backend/internal/client/repository"
	commdomain "clientlens-backend/internal/communication/domain"
	commrepo "clientlens-backend/internal/communication/repository"
	"clientlens-backend/pkg/config"
	"clientlens-backend/pkg/gmail"
	"clientlens-backend/pkg/sanitize"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// MailSource fetches recent messages from the user's mail provider.
type MailSource interface {
	FetchMessages(ctx context.Context, accessToken, refreshToken string, windowDays, maxResults int, onTokenRefresh gmail.TokenUpdateFunc) ([]*gmail.Message, error)
}

// VectorIndex stores communication embeddings for semantic search. Optional;
// a nil index disables search without affecting ingestion.
type VectorIndex interface {
	UpsertCommunication(ctx context.Context, commID, userID, subject, body string) error
	SemanticSearch(ctx context.Context, userID, query string, limit int) ([]string, []float64, error)
}

// SyncResult summarizes one ingestion run.
type SyncResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// CommunicationUsecase defines methods for ingesting and querying
// communications
type CommunicationUsecase interface {
	// Sync pulls recent messages from the mail provider, sanitizes and
	// classifies them, and upserts them idempotently.
	Sync(ctx context.Context, userID string) (*SyncResult, error)
	// ListRecent returns the newest communications for a user
	ListRecent(userID string, limit int) ([]*commdomain.Communication, error)
	// SemanticSearch returns the communications closest to the query
	SemanticSearch(ctx context.Context, userID, query string, limit int) ([]*commdomain.Communication, error)
	// LatestSyncHistory returns the most recent sync record, nil if none
	LatestSyncHistory(userID string) (*commdomain.SyncHistory, error)
}

type communicationUsecase struct {
	commRepo    commrepo.CommunicationRepository
	historyRepo commrepo.SyncHistoryRepository
	clientRepo  clientrepo.ClientRepository
	userRepo    authrepo.UserRepository
	mailSource  MailSource
	resolver    *attribution.Resolver
	vectorIndex VectorIndex
	config      *config.Config
	log         zerolog.Logger
}

func NewCommunicationUsecase(
	commRepo commrepo.CommunicationRepository,
	historyRepo commrepo.SyncHistoryRepository,
	clientRepo clientrepo.ClientRepository,
	userRepo authrepo.UserRepository,
	mailSource MailSource,
	resolver *attribution.Resolver,
	vectorIndex VectorIndex,
	cfg *config.Config,
	log zerolog.Logger,
) CommunicationUsecase {
	return &communicationUsecase{
		commRepo:    commRepo,
		historyRepo: historyRepo,
		clientRepo:  clientRepo,
		userRepo:    userRepo,
		mailSource:  mailSource,
		resolver:    resolver,
		vectorIndex: vectorIndex,
		config:      cfg,
		log:         log.With().Str("component", "communication-sync").Logger(),
	}
}

func (u *communicationUsecase) Sync(ctx context.Context, userID string) (*SyncResult, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}
	if user.AccessToken == "" {
		return nil, fmt.Errorf("no mail account connected")
	}

	messages, err := u.mailSource.FetchMessages(
		ctx,
		user.AccessToken,
		user.RefreshToken,
		u.config.SyncWindowDays,
		u.config.SyncMaxResults,
		u.makeTokenUpdateCallback(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	clients, err := u.clientRepo.FindByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}

	result := &SyncResult{Fetched: len(messages)}
	for _, msg := range messages {
		if !isIngestable(msg) {
			result.Skipped++
			continue
		}

		comm := &commdomain.Communication{
			UserID:      userID,
			ProviderID:  msg.ProviderID,
			ThreadID:    msg.ThreadID,
			FromAddress: msg.FromAddress,
			ToAddress:   msg.ToAddress,
			Subject:     sanitize.Text(msg.Subject, 500),
			Body:        sanitize.Content(msg.Body),
			Timestamp:   msg.Timestamp,
		}
		comm.IsAutomated = attribution.IsAutomated(comm.FromAddress, comm.Subject, comm.Body)

		if !comm.IsAutomated {
			if match := u.resolver.Resolve(ctx, comm, clients); match.Client != nil {
				clientID := match.Client.ID
				comm.ClientID = &clientID
			}
		}

		if err := u.commRepo.Upsert(comm); err != nil {
			u.log.Warn().Err(err).Str("provider_id", msg.ProviderID).Msg("failed to store communication")
			result.Skipped++
			continue
		}
		result.Inserted++

		u.indexCommunication(ctx, userID, comm)
	}

	if err := u.historyRepo.Record(userID, result.Fetched, result.Inserted, result.Skipped); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record sync history")
	}

	u.log.Info().
		Str("user_id", userID).
		Int("fetched", result.Fetched).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Msg("communication sync complete")

	return result, nil
}

// indexCommunication embeds the stored row into the vector index. Best
// effort: index failures never fail the sync.
func (u *communicationUsecase) indexCommunication(ctx context.Context, userID string, comm *commdomain.Communication) {
	if u.vectorIndex == nil {
		return
	}

	// Re-read by provider identity: on upsert conflict the in-memory id is
	// not the row that was kept.
	stored, err := u.commRepo.FindByProviderID(userID, comm.ProviderID)
	if err != nil || stored == nil {
		u.log.Warn().Err(err).Str("provider_id", comm.ProviderID).Msg("failed to load stored communication for indexing")
		return
	}

	if err := u.vectorIndex.UpsertCommunication(ctx, stored.ID, userID, stored.Subject, stored.Body); err != nil {
		u.log.Warn().Err(err).Str("communication_id", stored.ID).Msg("failed to index communication")
	}
}

func (u *communicationUsecase) ListRecent(userID string, limit int) ([]*commdomain.Communication, error) {
	return u.commRepo.FindRecent(userID, limit)
}

func (u *communicationUsecase) SemanticSearch(ctx context.Context, userID, query string, limit int) ([]*commdomain.Communication, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*commdomain.Communication{}, nil
	}
	if u.vectorIndex == nil {
		return nil, fmt.Errorf("semantic search not available")
	}

	ids, _, err := u.vectorIndex.SemanticSearch(ctx, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	if len(ids) == 0 {
		return []*commdomain.Communication{}, nil
	}

	comms, err := u.commRepo.FindByIDs(userID, ids)
	if err != nil {
		return nil, err
	}

	// Preserve relevance order from the index.
	byID := make(map[string]*commdomain.Communication, len(comms))
	for _, c := range comms {
		byID[c.ID] = c
	}
	ordered := make([]*commdomain.Communication, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

func (u *communicationUsecase) LatestSyncHistory(userID string) (*commdomain.SyncHistory, error) {
	return u.historyRepo.FindLatest(userID)
}

func (u *communicationUsecase) makeTokenUpdateCallback(userID string) gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		user, err := u.userRepo.FindByID(userID)
		if err != nil {
			return err
		}
		if user == nil {
			return nil
		}

		user.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			user.RefreshToken = token.RefreshToken
		}
		user.TokenExpiry = token.Expiry

		return u.userRepo.Update(user)
	}
}

// isIngestable rejects messages missing a provider identity or a plausible
// sender address.
func isIngestable(msg *gmail.Message) bool {
	if msg.ProviderID == "" {
		return false
	}
	at := strings.Index(msg.FromAddress, "@")
	return at > 0 && at < len(msg.FromAddress)-1
}
