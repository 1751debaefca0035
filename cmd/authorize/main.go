// Command authorize obtains a Gmail refresh token for the label sweep, or
// issues an admin token for the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/gmailapi"
	"label-notifier-go/internal/middleware"
)

func main() {
	adminToken := flag.String("admin-token", "", "issue an API token for the given subject instead of running the OAuth flow")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the API token")
	redirectURL := flag.String("redirect-url", "http://localhost:8080/callback", "OAuth redirect URL registered for the client")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	if *adminToken != "" {
		if cfg.Server.JWTSecret == "" {
			logrus.Fatal("server.jwt_secret is not set; the API is not protected")
		}
		token, err := middleware.GenerateToken(cfg.Server.JWTSecret, *adminToken, *ttl)
		if err != nil {
			logrus.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
		logrus.Fatal("Please set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET environment variables")
	}

	oauthCfg := gmailapi.OAuthConfig(&cfg.Gmail, *redirectURL)
	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Printf("Go to the following link in your browser: %v\n", authURL)
	fmt.Println("\nAfter authorization, you'll be redirected to a URL. Copy the 'code' parameter from that URL.")

	var authCode string
	fmt.Print("\nEnter the authorization code: ")
	if _, err := fmt.Fscan(os.Stdin, &authCode); err != nil {
		logrus.Fatalf("Failed to read authorization code: %v", err)
	}

	tok, err := oauthCfg.Exchange(context.Background(), authCode)
	if err != nil {
		logrus.Fatalf("Unable to retrieve token from web: %v", err)
	}

	fmt.Printf("\nRefresh Token: %s\n", tok.RefreshToken)
	fmt.Printf("Expiry: %v\n", tok.Expiry)

	fmt.Println("\nAdd the refresh token to your environment variables:")
	fmt.Printf("export GMAIL_REFRESH_TOKEN=\"%s\"\n", tok.RefreshToken)
}
