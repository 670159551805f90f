package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback invoked when the OAuth access token is
// refreshed, so the caller can persist the new token.
type TokenUpdateFunc func(token *oauth2.Token) error

// Message is one fetched mail message, reduced to the fields the ingestion
// pipeline cares about. Body is raw; sanitization happens downstream.
type Message struct {
	ProviderID  string
	ThreadID    string
	FromAddress string
	ToAddress   string
	Subject     string
	Body        string
	Timestamp   time.Time
}

type Service struct {
	clientID     string
	clientSecret string
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// getGmailService creates a Gmail client with the user's tokens, wrapping the
// token source so refreshes are reported back through onTokenRefresh.
func (s *Service) getGmailService(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh if we have a refresh token
	if refreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	return srv, nil
}

// FetchMessages returns inbox messages newer than windowDays, capped at
// maxResults, newest first.
func (s *Service) FetchMessages(ctx context.Context, accessToken, refreshToken string, windowDays, maxResults int, onTokenRefresh TokenUpdateFunc) ([]*Message, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("in:inbox newer_than:%dd", windowDays)
	listResp, err := srv.Users.Messages.List("me").
		Q(query).
		MaxResults(int64(maxResults)).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	messages := make([]*Message, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		msg, err := srv.Users.Messages.Get("me", ref.Id).Format("full").Do()
		if err != nil {
			return nil, fmt.Errorf("unable to fetch message %s: %w", ref.Id, err)
		}
		messages = append(messages, convertMessage(msg))
	}

	return messages, nil
}

// Watch sets up push notifications for the user's inbox on a Pub/Sub topic.
func (s *Service) Watch(ctx context.Context, accessToken, refreshToken, topicName string, onTokenRefresh TokenUpdateFunc) (uint64, error) {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return 0, err
	}

	// Clear any existing watch; Gmail allows only one per user.
	_ = srv.Users.Stop("me").Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := srv.Users.Watch("me", req).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to watch mailbox: %w", err)
	}

	return resp.HistoryId, nil
}

// Stop stops push notifications for the user's mailbox
func (s *Service) Stop(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) error {
	srv, err := s.getGmailService(ctx, accessToken, refreshToken, onTokenRefresh)
	if err != nil {
		return err
	}

	if err := srv.Users.Stop("me").Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}

	return nil
}

func convertMessage(msg *gmail.Message) *Message {
	headers := msg.Payload.Headers
	body, isHTML := getMessageBody(msg.Payload)
	if isHTML {
		body = stripHTML(body)
	}

	return &Message{
		ProviderID:  msg.Id,
		ThreadID:    msg.ThreadId,
		FromAddress: ExtractAddress(getHeader(headers, "From")),
		ToAddress:   ExtractAddress(getHeader(headers, "To")),
		Subject:     getHeader(headers, "Subject"),
		Body:        body,
		Timestamp:   time.Unix(msg.InternalDate/1000, 0),
	}
}

// ExtractAddress reduces a "Name <user@example.com>" header to the bare
// address, lowercased. A header without angle brackets is returned as-is.
func ExtractAddress(header string) string {
	header = strings.TrimSpace(header)
	start := strings.LastIndex(header, "<")
	end := strings.LastIndex(header, ">")
	if start != -1 && end > start {
		header = header[start+1 : end]
	}
	return strings.ToLower(strings.TrimSpace(header))
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getMessageBody walks the MIME tree preferring text/plain over text/html.
func getMessageBody(payload *gmail.MessagePart) (string, bool) {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			return string(data), payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				data, err := base64.URLEncoding.DecodeString(part.Body.Data)
				if err == nil {
					switch part.MimeType {
					case "text/plain":
						plainBody = string(data)
					case "text/html":
						htmlBody = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, true
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	return strings.Join(strings.Fields(s), " ")
}
