package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	authrepo "clientlens-backend/internal/auth/repository"
	commusecase "clientlens-backend/internal/communication/usecase"
	insightusecase "clientlens-backend/internal/insight/usecase"
	"clientlens-backend/pkg/fcm"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// MailboxNotification is the payload Gmail publishes on the watch topic.
type MailboxNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service consumes mailbox push notifications and reacts by syncing the
// user's communications, running the insight pipeline, and pushing a summary
// to the user's devices.
type Service struct {
	pubsubClient   *pubsub.Client
	userRepo       authrepo.UserRepository
	fcmRepo        authrepo.FCMTokenRepository
	fcmClient      *fcm.Client
	commUsecase    commusecase.CommunicationUsecase
	insightUsecase insightusecase.InsightUsecase
	topicName      string
	subName        string
	log            zerolog.Logger
}

func NewService(
	projectID, topicName, subName, credentialsFile string,
	userRepo authrepo.UserRepository,
	fcmRepo authrepo.FCMTokenRepository,
	fcmClient *fcm.Client,
	commUsecase commusecase.CommunicationUsecase,
	insightUsecase insightusecase.InsightUsecase,
	log zerolog.Logger,
) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Service{
		pubsubClient:   client,
		userRepo:       userRepo,
		fcmRepo:        fcmRepo,
		fcmClient:      fcmClient,
		commUsecase:    commUsecase,
		insightUsecase: insightUsecase,
		topicName:      topicName,
		subName:        subName,
		log:            log.With().Str("component", "notification").Logger(),
	}, nil
}

// Start blocks, receiving mailbox notifications until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.log.Info().Str("topic", s.topicName).Str("subscription", s.subName).Msg("starting notification service")

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to check subscription existence")
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to check topic existence")
			return
		}
		if !topicExists {
			s.log.Error().Str("topic", s.topicName).Msg("topic does not exist, cannot create subscription")
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			s.log.Error().Err(err).Msg("failed to create subscription")
			return
		}
		s.log.Info().Str("subscription", s.subName).Msg("created subscription")
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		s.log.Error().Err(err).Msg("error receiving messages")
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification MailboxNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		s.log.Warn().Err(err).Msg("failed to unmarshal notification")
		return
	}

	user, err := s.userRepo.FindByEmail(notification.EmailAddress)
	if err != nil {
		s.log.Warn().Err(err).Str("email", notification.EmailAddress).Msg("error finding user")
		return
	}
	if user == nil {
		s.log.Debug().Str("email", notification.EmailAddress).Msg("no user for notification address")
		return
	}

	// Gmail re-delivers aggressively; history ids are monotonic per user, so
	// anything at or below the last processed id is a duplicate.
	if notification.HistoryID <= user.LastHistoryID {
		s.log.Debug().
			Str("user_id", user.ID).
			Uint64("history_id", notification.HistoryID).
			Msg("skipping duplicate notification")
		return
	}
	user.LastHistoryID = notification.HistoryID
	if err := s.userRepo.Update(user); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to persist history id")
	}

	syncResult, err := s.commUsecase.Sync(ctx, user.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("notification-triggered sync failed")
		return
	}
	if syncResult.Inserted == 0 {
		return
	}

	summary, err := s.insightUsecase.GenerateInsights(ctx, user.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("notification-triggered insight run failed")
		return
	}

	s.pushSummary(ctx, user.ID, syncResult.Inserted, summary.InsightsWritten)
}

// pushSummary notifies the user's devices about new communications and any
// insights generated from them.
func (s *Service) pushSummary(ctx context.Context, userID string, newComms, newInsights int) {
	if s.fcmClient == nil || s.fcmRepo == nil {
		return
	}

	tokens, err := s.fcmRepo.FindByUserID(userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to load FCM tokens")
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	body := fmt.Sprintf("%d new communications synced", newComms)
	if newInsights > 0 {
		body = fmt.Sprintf("%d new communications, %d new insights", newComms, newInsights)
	}

	failedTokens, err := s.fcmClient.SendToDevices(ctx, tokenStrings, fcm.NotificationData{
		Title: "Client activity",
		Body:  body,
		Data: map[string]string{
			"type":         "communication_update",
			"new_comms":    fmt.Sprintf("%d", newComms),
			"new_insights": fmt.Sprintf("%d", newInsights),
		},
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to send push notifications")
		return
	}

	// Prune tokens the provider rejected.
	for _, token := range failedTokens {
		if err := s.fcmRepo.Delete(token); err != nil {
			s.log.Warn().Err(err).Msg("failed to delete stale FCM token")
		}
	}
}
