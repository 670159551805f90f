package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "clientlens-backend/internal/auth/domain"
	authdto "clientlens-backend/internal/auth/dto"
	"clientlens-backend/internal/auth/repository"
	"clientlens-backend/pkg/config"
	"clientlens-backend/pkg/gmail"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// MailboxWatcher registers and cancels push notifications for a mailbox.
type MailboxWatcher interface {
	Watch(ctx context.Context, accessToken, refreshToken, topicName string, onTokenRefresh gmail.TokenUpdateFunc) (uint64, error)
	Stop(ctx context.Context, accessToken, refreshToken string, onTokenRefresh gmail.TokenUpdateFunc) error
}

// AuthUsecase defines authentication and account operations
type AuthUsecase interface {
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(refreshToken string) error
	// ConnectGmail exchanges an OAuth authorization code for mailbox tokens,
	// stores them on the user, and registers the inbox push watch.
	ConnectGmail(ctx context.Context, userID, code string) error
	// DisconnectGmail cancels the push watch and drops the stored tokens.
	DisconnectGmail(ctx context.Context, userID string) error
	ValidateToken(tokenString string) (*authdomain.User, error)
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo     repository.UserRepository
	watcher      MailboxWatcher
	config       *config.Config
	log          zerolog.Logger
	exchangeCode func(ctx context.Context, code string) (*oauth2.Token, error)
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, watcher MailboxWatcher, cfg *config.Config, log zerolog.Logger) AuthUsecase {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Endpoint:     google.Endpoint,
	}
	return &authUsecase{
		userRepo: userRepo,
		watcher:  watcher,
		config:   cfg,
		log:      log.With().Str("component", "auth").Logger(),
		exchangeCode: func(ctx context.Context, code string) (*oauth2.Token, error) {
			return oauthConfig.Exchange(ctx, code)
		},
	}
}

func (u *authUsecase) Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error) {
	user, err := u.userRepo.FindByEmail(req.Email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, errors.New("invalid email or password")
	}

	if !repository.CheckPasswordHash(req.Password, user.Password) {
		return nil, errors.New("invalid email or password")
	}

	return u.generateTokens(user)
}

func (u *authUsecase) Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error) {
	existing, err := u.userRepo.FindByEmail(req.Email)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return nil, errors.New("email already registered")
	}

	hashedPassword, err := repository.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &authdomain.User{
		Email:    req.Email,
		Password: hashedPassword,
		Name:     req.Name,
		Provider: "email",
	}

	if err := u.userRepo.Create(user); err != nil {
		return nil, err
	}

	return u.generateTokens(user)
}

// ConnectGmail exchanges the consent-screen authorization code for access and
// refresh tokens scoped to the user's mailbox, persists them, and points the
// Gmail push watch at the configured Pub/Sub topic. A failed watch
// registration is logged but does not undo the connection; polling sync still
// works without push.
func (u *authUsecase) ConnectGmail(ctx context.Context, userID, code string) error {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("user not found")
	}

	token, err := u.exchangeCode(ctx, code)
	if err != nil {
		return errors.New("failed to exchange authorization code: " + err.Error())
	}

	user.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.RefreshToken = token.RefreshToken
	}
	user.TokenExpiry = token.Expiry
	user.Provider = "google"

	if topic := u.pushTopicName(); u.watcher != nil && topic != "" {
		historyID, err := u.watcher.Watch(ctx, user.AccessToken, user.RefreshToken, topic, applyTokenTo(user))
		if err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("failed to register mailbox watch")
		} else {
			user.LastHistoryID = historyID
		}
	}

	return u.userRepo.Update(user)
}

// DisconnectGmail cancels the mailbox watch and clears the stored provider
// tokens. The watch stop is best effort; tokens are dropped either way.
func (u *authUsecase) DisconnectGmail(ctx context.Context, userID string) error {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("user not found")
	}
	if user.AccessToken == "" {
		return errors.New("no mail account connected")
	}

	if u.watcher != nil {
		if err := u.watcher.Stop(ctx, user.AccessToken, user.RefreshToken, nil); err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("failed to stop mailbox watch")
		}
	}

	user.AccessToken = ""
	user.RefreshToken = ""
	user.TokenExpiry = time.Time{}
	user.LastHistoryID = 0

	return u.userRepo.Update(user)
}

// pushTopicName returns the fully qualified Pub/Sub topic for Gmail push, or
// empty when push is not configured.
func (u *authUsecase) pushTopicName() string {
	if u.config.GoogleProjectID == "" || u.config.GooglePubSubTopic == "" {
		return ""
	}
	if strings.Contains(u.config.GooglePubSubTopic, "/") {
		return u.config.GooglePubSubTopic
	}
	return fmt.Sprintf("projects/%s/topics/%s", u.config.GoogleProjectID, u.config.GooglePubSubTopic)
}

// applyTokenTo folds a refreshed OAuth token into the user record about to be
// persisted.
func applyTokenTo(user *authdomain.User) gmail.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		user.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			user.RefreshToken = token.RefreshToken
		}
		user.TokenExpiry = token.Expiry
		return nil
	}
}

func (u *authUsecase) RefreshToken(refreshToken string) (*authdto.TokenResponse, error) {
	// Verify refresh token
	token, err := jwt.Parse(refreshToken, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	})

	if err != nil || !token.Valid {
		return nil, errors.New("invalid refresh token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	// Check if token exists in repository
	storedToken, err := u.userRepo.FindRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	if storedToken == nil || storedToken.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("refresh token expired")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, errors.New("user not found")
	}

	return u.generateTokens(user)
}

func (u *authUsecase) Logout(refreshToken string) error {
	return u.userRepo.DeleteRefreshToken(refreshToken)
}

func (u *authUsecase) generateTokens(user *authdomain.User) (*authdto.TokenResponse, error) {
	accessToken, err := u.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := u.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	refreshTokenEntity := &authdomain.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(u.config.JWTRefreshExpiry),
	}
	if err := u.userRepo.SaveRefreshToken(refreshTokenEntity); err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (u *authUsecase) generateAccessToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(u.config.JWTAccessExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) generateRefreshToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"token_id": uuid.New().String(),
		"exp":      time.Now().Add(u.config.JWTRefreshExpiry).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	})

	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, errors.New("user not found")
	}

	return user, nil
}
