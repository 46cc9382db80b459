package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/playlift/playlift/internal/storage"
)

// tokenExpiryMargin forces a refresh shortly before the provider's stated
// expiry so a borrowed token never dies mid-request.
const tokenExpiryMargin = 30 * time.Second

// TokenPool lends a provider access token for calls that are not tied to a
// particular listener, such as playlist snapshots. It borrows the refresh
// credential of whichever pollable identity can still produce a token and
// caches the result until near expiry.
type TokenPool struct {
	identities storage.IdentityStore
	cipher     *TokenCipher
	auth       *Authenticator
	logger     *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
	now   func() time.Time
}

// NewTokenPool creates a token pool over the identity store.
func NewTokenPool(identities storage.IdentityStore, cipher *TokenCipher, auth *Authenticator, logger *zap.Logger) *TokenPool {
	return &TokenPool{
		identities: identities,
		cipher:     cipher,
		auth:       auth,
		logger:     logger,
		now:        time.Now,
	}
}

// AccessToken returns the cached access token, refreshing one from the first
// workable identity credential when the cache is cold or near expiry.
// Returns ErrNoCredential when no identity can produce a token.
func (p *TokenPool) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokenUsable() {
		return p.token.AccessToken, nil
	}

	// Without a credential secret no stored credential can be decrypted.
	if p.cipher == nil {
		return "", ErrNoCredential
	}

	identities, err := p.identities.ListPollable(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list pollable identities: %w", err)
	}

	for _, identity := range identities {
		refresh, err := p.cipher.Decrypt(identity.RefreshTokenEnc)
		if err != nil {
			p.logger.Warn("skipping identity with unusable credential",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
			continue
		}

		token, err := p.auth.Refresh(ctx, refresh)
		if err != nil {
			p.logger.Warn("pool token refresh failed, trying next identity",
				zap.String("identity_id", identity.ID),
				zap.Error(err),
			)
			continue
		}

		p.token = token
		return token.AccessToken, nil
	}

	return "", ErrNoCredential
}

func (p *TokenPool) tokenUsable() bool {
	if p.token == nil || p.token.AccessToken == "" {
		return false
	}
	if p.token.Expiry.IsZero() {
		return true
	}
	return p.token.Expiry.After(p.now().Add(tokenExpiryMargin))
}
