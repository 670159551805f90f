package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"clientlens-backend/internal/attribution"
	clientdomain "clientlens-backend/internal/client/domain"
	commdomain "clientlens-backend/internal/communication/domain"
	insightdomain "clientlens-backend/internal/insight/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeInsightRepo struct {
	structured      []*insightdomain.Insight
	raw             []*insightdomain.Insight
	rawUpdates      map[string]string
	feedback        map[string]insightdomain.Feedback
	failCategory    insightdomain.Category
	existingForComm *insightdomain.Insight
}

func newFakeInsightRepo() *fakeInsightRepo {
	return &fakeInsightRepo{
		rawUpdates: make(map[string]string),
		feedback:   make(map[string]insightdomain.Feedback),
	}
}

func (r *fakeInsightRepo) UpsertStructured(insight *insightdomain.Insight) error {
	if insight.Category != nil && *insight.Category == r.failCategory {
		return errors.New("constraint violation")
	}
	// Emulate the conflict target: replace any existing row for the same
	// (communication, category) pair.
	for i, existing := range r.structured {
		if existing.CommunicationID == insight.CommunicationID && *existing.Category == *insight.Category {
			r.structured[i] = insight
			return nil
		}
	}
	r.structured = append(r.structured, insight)
	return nil
}

func (r *fakeInsightRepo) FindAnyForCommunication(userID, commID string) (*insightdomain.Insight, error) {
	return r.existingForComm, nil
}

func (r *fakeInsightRepo) UpdateRawOutput(userID, insightID, rawOutput string) error {
	r.rawUpdates[insightID] = rawOutput
	return nil
}

func (r *fakeInsightRepo) InsertRaw(insight *insightdomain.Insight) error {
	r.raw = append(r.raw, insight)
	return nil
}

func (r *fakeInsightRepo) FindByID(userID, insightID string) (*insightdomain.Insight, error) {
	for _, in := range r.structured {
		if in.ID == insightID && in.UserID == userID {
			return in, nil
		}
	}
	return nil, nil
}

func (r *fakeInsightRepo) FindByUserID(userID string, category, clientID *string, limit, offset int) ([]*insightdomain.Insight, int64, error) {
	return r.structured, int64(len(r.structured)), nil
}

func (r *fakeInsightRepo) UpdateFeedback(userID, insightID string, feedback insightdomain.Feedback) error {
	for _, in := range r.structured {
		if in.ID == insightID && in.UserID == userID {
			r.feedback[insightID] = feedback
			in.Feedback = &feedback
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeCommRepo struct {
	comms           []*commdomain.Communication
	classifications map[string]*string
}

func newFakeCommRepo(comms ...*commdomain.Communication) *fakeCommRepo {
	return &fakeCommRepo{comms: comms, classifications: make(map[string]*string)}
}

func (r *fakeCommRepo) Upsert(comm *commdomain.Communication) error { return nil }

func (r *fakeCommRepo) FindByProviderID(userID, providerID string) (*commdomain.Communication, error) {
	return nil, nil
}

func (r *fakeCommRepo) FindRecent(userID string, limit int) ([]*commdomain.Communication, error) {
	return r.comms, nil
}

func (r *fakeCommRepo) FindByIDs(userID string, ids []string) ([]*commdomain.Communication, error) {
	return nil, nil
}

func (r *fakeCommRepo) UpdateClassification(userID, commID string, clientID *string, isAutomated bool) error {
	r.classifications[commID] = clientID
	return nil
}

type fakeClientRepo struct {
	clients []*clientdomain.Client
}

func (r *fakeClientRepo) FindByUserID(userID string) ([]*clientdomain.Client, error) {
	return r.clients, nil
}

func (r *fakeClientRepo) FindByID(userID, clientID string) (*clientdomain.Client, error) {
	for _, c := range r.clients {
		if c.ID == clientID {
			return c, nil
		}
	}
	return nil, nil
}

func testClient() *clientdomain.Client {
	return &clientdomain.Client{
		ID:     "client-1",
		UserID: "user-1",
		Name:   "Anna Larsson",
		Email:  "anna@acme.com",
		Domain: "acme.com",
	}
}

func humanComm(id, threadID, from string) *commdomain.Communication {
	return &commdomain.Communication{
		ID:          id,
		UserID:      "user-1",
		ProviderID:  "prov-" + id,
		ThreadID:    threadID,
		FromAddress: from,
		ToAddress:   "me@consultancy.com",
		Subject:     "Q3 scope discussion",
		Body:        "We should revisit the scope before the next invoice.",
		Timestamp:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newPipeline(
	insightRepo *fakeInsightRepo,
	commRepo *fakeCommRepo,
	clients []*clientdomain.Client,
	extractorAI *fakeCompletionService,
) InsightUsecase {
	resolver := attribution.NewResolver(&fakeCompletionService{response: "no match"}, zerolog.Nop())
	extractor := newTestExtractor(extractorAI)
	return NewInsightUsecase(
		insightRepo, commRepo, &fakeClientRepo{clients: clients},
		resolver, extractor, zerolog.Nop(),
	)
}

func TestGenerateInsightsEndToEnd(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	commRepo := newFakeCommRepo(
		humanComm("c1", "thread-1", "anna@acme.com"),
		humanComm("c2", "thread-1", "me@consultancy.com"),
		&commdomain.Communication{
			ID: "c3", UserID: "user-1", ProviderID: "prov-c3", ThreadID: "thread-2",
			FromAddress: "noreply@billing.com", Subject: "Receipt", Body: "x",
			IsAutomated: true,
		},
	)

	uc := newPipeline(insightRepo, commRepo, []*clientdomain.Client{testClient()}, &fakeCompletionService{response: validInsightArray})

	summary, err := uc.GenerateInsights(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.CommunicationsProcessed, "automated message is excluded")
	assert.Equal(t, 2, summary.ThreadsAnalyzed)
	assert.Equal(t, 1, summary.InsightsWritten)
	assert.Equal(t, 1, summary.AttributionHits, "only the message from the client address resolves")

	// Attribution persisted post-hoc.
	require.Contains(t, commRepo.classifications, "c1")
	assert.Equal(t, "client-1", *commRepo.classifications["c1"])
	assert.NotContains(t, commRepo.classifications, "c2")

	require.Len(t, insightRepo.structured, 1)
	written := insightRepo.structured[0]
	assert.Equal(t, "user-1", written.UserID)
	assert.Equal(t, "c1", written.CommunicationID, "insight attaches to the thread lead")
	require.NotNil(t, written.ClientID)
	assert.Equal(t, "client-1", *written.ClientID)
	assert.Equal(t, insightdomain.CategoryRisk, *written.Category)
	assert.NotEmpty(t, written.RawOutput)
}

func TestGenerateInsightsRawFallbackInsert(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	commRepo := newFakeCommRepo(humanComm("c1", "thread-1", "anna@acme.com"))

	uc := newPipeline(insightRepo, commRepo, []*clientdomain.Client{testClient()},
		&fakeCompletionService{response: "Nothing actionable here, sorry."})

	summary, err := uc.GenerateInsights(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Zero(t, summary.InsightsWritten)
	require.Len(t, insightRepo.raw, 1)
	assert.Nil(t, insightRepo.raw[0].Category)
	assert.Equal(t, "Nothing actionable here, sorry.", insightRepo.raw[0].RawOutput)
}

func TestGenerateInsightsRawFallbackUpdatesExisting(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	insightRepo.existingForComm = &insightdomain.Insight{ID: "existing-1", UserID: "user-1", CommunicationID: "c1"}
	commRepo := newFakeCommRepo(humanComm("c1", "thread-1", "anna@acme.com"))

	uc := newPipeline(insightRepo, commRepo, []*clientdomain.Client{testClient()},
		&fakeCompletionService{response: "Still nothing actionable."})

	_, err := uc.GenerateInsights(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Empty(t, insightRepo.raw, "no duplicate raw record")
	assert.Equal(t, "Still nothing actionable.", insightRepo.rawUpdates["existing-1"])
}

const twoInsightArray = `[
  {"category": "Risk", "summary": "Client is worried about invoice costs this quarter.", "evidence": "revisit the scope", "suggested_action": "Schedule a scope call.", "confidence": 0.8},
  {"category": "Note", "summary": "Client communicates primarily over email threads.", "evidence": "thread history", "suggested_action": "Keep responses on the thread.", "confidence": 0.7}
]`

func TestGenerateInsightsPartialWriteFailure(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	insightRepo.failCategory = insightdomain.CategoryRisk
	commRepo := newFakeCommRepo(humanComm("c1", "thread-1", "anna@acme.com"))

	uc := newPipeline(insightRepo, commRepo, []*clientdomain.Client{testClient()},
		&fakeCompletionService{response: twoInsightArray})

	summary, err := uc.GenerateInsights(context.Background(), "user-1")
	require.NoError(t, err, "one failed write must not fail the run")

	assert.Equal(t, 1, summary.InsightsWritten)
	require.Len(t, insightRepo.structured, 1)
	assert.Equal(t, insightdomain.CategoryNote, *insightRepo.structured[0].Category)
}

func TestGenerateInsightsIdempotentPerCategory(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	commRepo := newFakeCommRepo(humanComm("c1", "thread-1", "anna@acme.com"))

	uc := newPipeline(insightRepo, commRepo, []*clientdomain.Client{testClient()},
		&fakeCompletionService{response: twoInsightArray})

	_, err := uc.GenerateInsights(context.Background(), "user-1")
	require.NoError(t, err)
	_, err = uc.GenerateInsights(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Len(t, insightRepo.structured, 2, "re-running the pipeline replaces, not duplicates")
}

func TestSubmitFeedback(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	category := insightdomain.CategoryRisk
	insightRepo.structured = append(insightRepo.structured, &insightdomain.Insight{
		ID: "ins-1", UserID: "user-1", CommunicationID: "c1", Category: &category,
	})

	uc := newPipeline(insightRepo, newFakeCommRepo(), nil, &fakeCompletionService{})

	updated, err := uc.SubmitFeedback("user-1", "ins-1", "positive")
	require.NoError(t, err)
	require.NotNil(t, updated.Feedback)
	assert.Equal(t, insightdomain.FeedbackPositive, *updated.Feedback)
}

func TestSubmitFeedbackInvalidValue(t *testing.T) {
	uc := newPipeline(newFakeInsightRepo(), newFakeCommRepo(), nil, &fakeCompletionService{})

	_, err := uc.SubmitFeedback("user-1", "ins-1", "meh")
	assert.ErrorContains(t, err, "invalid feedback value")
}

func TestSubmitFeedbackOwnerScoped(t *testing.T) {
	insightRepo := newFakeInsightRepo()
	category := insightdomain.CategoryNote
	insightRepo.structured = append(insightRepo.structured, &insightdomain.Insight{
		ID: "ins-1", UserID: "user-1", CommunicationID: "c1", Category: &category,
	})

	uc := newPipeline(insightRepo, newFakeCommRepo(), nil, &fakeCompletionService{})

	_, err := uc.SubmitFeedback("someone-else", "ins-1", "negative")
	assert.ErrorContains(t, err, "insight not found")
	assert.Empty(t, insightRepo.feedback)
}

func TestListInsightsRejectsUnknownCategory(t *testing.T) {
	uc := newPipeline(newFakeInsightRepo(), newFakeCommRepo(), nil, &fakeCompletionService{})

	bad := "Churn"
	_, _, err := uc.ListInsights("user-1", &bad, nil, 50, 0)
	assert.ErrorContains(t, err, "invalid category")
}

func TestGroupByThread(t *testing.T) {
	a1 := humanComm("a1", "thread-a", "x@y.com")
	b1 := humanComm("b1", "thread-b", "x@y.com")
	a2 := humanComm("a2", "thread-a", "x@y.com")
	solo := humanComm("solo", "", "x@y.com")

	groups := groupByThread([]*commdomain.Communication{a1, b1, a2, solo})

	require.Len(t, groups, 3)
	assert.Equal(t, []*commdomain.Communication{a1, a2}, groups[0])
	assert.Equal(t, []*commdomain.Communication{b1}, groups[1])
	assert.Equal(t, []*commdomain.Communication{solo}, groups[2])
}
