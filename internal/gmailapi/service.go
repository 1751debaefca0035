package gmailapi

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"label-notifier-go/internal/config"
)

// Scopes needed by the label sweep: reading threads, removing labels and sending.
var Scopes = []string{gmail.GmailModifyScope, gmail.GmailSendScope}

// OAuthConfig returns the OAuth2 client configuration for the Gmail account
func OAuthConfig(cfg *config.GmailConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
	}
}

// NewService creates a Gmail service authenticated with the configured refresh token
func NewService(ctx context.Context, cfg *config.GmailConfig) (*gmail.Service, error) {
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}
	tokenSource := OAuthConfig(cfg, "").TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return service, nil
}

// UserID returns the Gmail API user id, defaulting to the authenticated user
func UserID(cfg *config.GmailConfig) string {
	if cfg.UserEmail == "" {
		return "me"
	}
	return cfg.UserEmail
}
