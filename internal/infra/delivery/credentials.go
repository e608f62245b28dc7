package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenStore persists the one shared credential.
type TokenStore interface {
	// Load returns nil, nil when nothing has been stored.
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
	Clear(ctx context.Context) error
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuth2Refresher refreshes through a standard OAuth2 token endpoint.
type OAuth2Refresher struct {
	Config *oauth2.Config
}

func (r OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// A token without an access token is never valid, which forces the
	// token source to hit the endpoint.
	return r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}

// reauthCodes are OAuth2 error codes that no amount of retrying will fix.
var reauthCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
}

// CredentialManager hands out a valid access token to concurrent senders.
// Refresh is single-writer: one goroutine refreshes and persists while the
// others wait for its result.
type CredentialManager struct {
	store     TokenStore
	refresher Refresher
	skew      time.Duration
	now       func() time.Time
	logger    logrus.FieldLogger

	mu    sync.RWMutex
	token *oauth2.Token
	group singleflight.Group
}

// NewCredentialManager builds a manager; skew is how early before expiry a
// token is treated as expired.
func NewCredentialManager(store TokenStore, refresher Refresher, skew time.Duration, logger logrus.FieldLogger) *CredentialManager {
	return &CredentialManager{
		store:     store,
		refresher: refresher,
		skew:      skew,
		now:       time.Now,
		logger:    logger,
	}
}

func (m *CredentialManager) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	return tok.Expiry.IsZero() || tok.Expiry.After(m.now().Add(m.skew))
}

// AccessToken returns a token valid for at least the configured skew.
func (m *CredentialManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	tok := m.token
	m.mu.RUnlock()
	if m.fresh(tok) {
		return tok.AccessToken, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *CredentialManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fresh(m.token) {
		return m.token.AccessToken, nil
	}

	current := m.token
	if current == nil || current.RefreshToken == "" {
		stored, err := m.store.Load(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to load delivery credential: %w", err)
		}
		if stored == nil || stored.RefreshToken == "" {
			return "", ErrNoCredential
		}
		current = stored
		if m.fresh(current) {
			m.token = current
			return current.AccessToken, nil
		}
	}

	next, err := m.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		err = classifyRefreshError(err)
		if errors.Is(err, ErrReauthorizationRequired) {
			m.forget(ctx, err)
		}
		return "", err
	}
	if next.RefreshToken == "" {
		// Providers usually return the refresh token only on first consent.
		next.RefreshToken = current.RefreshToken
	}
	m.token = next

	if err := m.store.Save(ctx, next); err != nil {
		// The refreshed token is still usable in this process.
		m.logger.WithError(err).Warn("Failed to persist refreshed delivery credential")
	} else {
		m.logger.WithField("expiry", next.Expiry).Info("Delivery credential refreshed")
	}
	return next.AccessToken, nil
}

func classifyRefreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if reauthCodes[re.ErrorCode] {
			return fmt.Errorf("%w: %v", ErrReauthorizationRequired, err)
		}
		if re.Response != nil {
			return &ProviderError{StatusCode: re.Response.StatusCode, Reason: re.ErrorCode, Err: err}
		}
	}
	return fmt.Errorf("failed to refresh delivery credential: %w", err)
}

// Invalidate drops the cached access token but keeps the refresh token, so
// the next AccessToken call refreshes.
func (m *CredentialManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != nil {
		m.token = &oauth2.Token{RefreshToken: m.token.RefreshToken, TokenType: m.token.TokenType}
	}
}

// forget drops the credential in memory and in the store after the token
// endpoint refused the refresh token. Every later AccessToken call fails with
// ErrNoCredential until Authorize. Callers hold mu.
func (m *CredentialManager) forget(ctx context.Context, cause error) {
	m.token = nil
	if err := m.store.Clear(ctx); err != nil {
		m.logger.WithError(err).Warn("Failed to clear refused delivery credential")
	}
	m.logger.WithError(cause).Error("Refresh token refused, run authorize to restore delivery")
}

// Authorize stores a refresh token obtained out of band (consent flow).
func (m *CredentialManager) Authorize(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return errors.New("refresh token is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tok := &oauth2.Token{RefreshToken: refreshToken, TokenType: "Bearer"}
	if err := m.store.Save(ctx, tok); err != nil {
		return err
	}
	m.token = tok
	return nil
}
