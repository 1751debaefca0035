package notifier

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/gmailapi"
)

// GmailAPINotifier sends notifications with users.messages.send
type GmailAPINotifier struct {
	service     *gmail.Service
	userID      string
	from        string
	maxAttempts int
	backoff     time.Duration
}

// NewGmailAPINotifier creates a notifier that sends as the configured Gmail user
func NewGmailAPINotifier(ctx context.Context, cfg *config.GmailConfig, maxAttempts int) (*GmailAPINotifier, error) {
	service, err := gmailapi.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newGmailAPINotifier(service, gmailapi.UserID(cfg), cfg.UserEmail, maxAttempts, time.Second), nil
}

func newGmailAPINotifier(service *gmail.Service, userID, from string, maxAttempts int, backoff time.Duration) *GmailAPINotifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &GmailAPINotifier{
		service:     service,
		userID:      userID,
		from:        from,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Send delivers n, retrying rate limited requests with quadratic backoff
func (g *GmailAPINotifier) Send(ctx context.Context, n Notification) error {
	raw, err := Compose(g.from, n, time.Now())
	if err != nil {
		return err
	}
	return g.SendRaw(ctx, n.To, raw)
}

// SendRaw sends a composed message, with the same retry policy as Send
func (g *GmailAPINotifier) SendRaw(ctx context.Context, to string, raw []byte) error {
	message := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		_, err := g.service.Users.Messages.Send(g.userID, message).Context(ctx).Do()
		if err == nil {
			logrus.WithField("to", to).Info("Sent notification")
			return nil
		}

		lastErr = err
		logrus.Warnf("Failed to send notification (attempt %d/%d): %v", attempt, g.maxAttempts, err)

		if !isRateLimited(err) || attempt == g.maxAttempts {
			break
		}

		waitTime := time.Duration(attempt*attempt) * g.backoff
		logrus.Infof("Rate limited, waiting %v before retry", waitTime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}

	return fmt.Errorf("failed to send notification: %w", lastErr)
}

// Verify tests that the credentials can reach the account
func (g *GmailAPINotifier) Verify(ctx context.Context) error {
	if _, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to test Gmail API connection: %w", err)
	}
	return nil
}

// Close is a no-op for the Gmail API
func (g *GmailAPINotifier) Close() error {
	return nil
}

func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
