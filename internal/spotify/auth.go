package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/playlift/playlift/internal/config"
	"github.com/playlift/playlift/internal/metrics"
)

// ErrNoCredential marks an identity, or the shared pool, without a usable
// refresh credential. Callers skip rather than fail on it.
var ErrNoCredential = errors.New("no usable provider credential")

// Authenticator turns stored refresh credentials into short-lived access
// tokens via the provider's OAuth token endpoint.
type Authenticator struct {
	conf    *oauth2.Config
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewAuthenticator creates an authenticator for the configured provider app.
func NewAuthenticator(cfg config.ProviderConfig, logger *zap.Logger, m *metrics.Metrics) *Authenticator {
	endpoint := endpoints.Spotify
	if cfg.AuthURL != "" || cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Authenticator{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
		},
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: m,
	}
}

// Refresh exchanges a refresh credential for a fresh access token.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, ErrNoCredential
	}

	// The token exchange inherits the bounded client instead of
	// http.DefaultClient.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.http)

	token, err := a.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if a.metrics != nil {
		a.metrics.RecordTokenRefresh(err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	return token, nil
}
