// Package auth mints messaging-scoped bearer tokens from a service credential.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// MessagingScope is the OAuth2 scope required by the FCM HTTP v1 API.
const MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// Minter performs the signed JWT assertion exchange (RFC 7523) against the
// identity token endpoint. Every call mints a fresh token.
type Minter struct {
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customises a Minter.
type Option func(*Minter)

// WithTokenURL points the minter at a different token endpoint.
func WithTokenURL(url string) Option {
	return func(m *Minter) { m.tokenURL = url }
}

// WithHTTPClient replaces the client used for the exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Minter) { m.httpClient = c }
}

// NewMinter creates a Minter whose exchange is bounded by timeout.
func NewMinter(timeout time.Duration, logger *slog.Logger, opts ...Option) *Minter {
	m := &Minter{
		tokenURL:   google.JWTTokenURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "TokenMinter"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint expects cred.PrivateKeyPEM to be normalized already.
func (m *Minter) Mint(ctx context.Context, cred push.ServiceCredential) (push.BearerToken, error) {
	cfg := &jwt.Config{
		Email:      cred.ClientEmail,
		PrivateKey: []byte(cred.PrivateKeyPEM),
		Scopes:     []string{MessagingScope},
		TokenURL:   m.tokenURL,
	}

	// x/oauth2 picks the HTTP client up from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)

	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		m.logger.Error("Token exchange failed", "client_email", cred.ClientEmail, "err", err)
		return push.BearerToken{}, fmt.Errorf("%w: %v", push.ErrTokenAcquisition, err)
	}
	if tok.AccessToken == "" {
		return push.BearerToken{}, fmt.Errorf("%w: token endpoint returned no access token", push.ErrTokenAcquisition)
	}

	m.logger.Debug("Bearer token minted", "client_email", cred.ClientEmail, "expiry", tok.Expiry)
	return push.BearerToken{
		Value:  tok.AccessToken,
		Scope:  push.ScopeMessaging,
		Expiry: tok.Expiry,
	}, nil
}
