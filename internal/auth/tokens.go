package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jun/scandrive/internal/kv"
	"github.com/jun/scandrive/internal/model"
)

// Keys the access token and its expiry (epoch milliseconds) are persisted under.
const (
	AccessTokenKey = "googleDrivePickerAccessToken"
	TokenExpiryKey = "googleDrivePickerTokenExpiry"
)

// DefaultRevokeURL is Google's token revocation endpoint.
const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// TokenManager owns the Drive access token: acquiring it from a token source,
// persisting it, checking its validity and revoking it on sign-out.
// It implements oauth2.TokenSource over the cached token.
type TokenManager struct {
	store      kv.Store
	now        func() time.Time
	httpClient *http.Client
	revokeURL  string

	mu     sync.RWMutex
	source oauth2.TokenSource
	token  model.OAuthToken

	group singleflight.Group
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenManager) { t.now = now }
}

// WithHTTPClient sets the client used for revocation.
func WithHTTPClient(c *http.Client) TokenOption {
	return func(t *TokenManager) { t.httpClient = c }
}

// WithRevokeURL overrides DefaultRevokeURL.
func WithRevokeURL(u string) TokenOption {
	return func(t *TokenManager) { t.revokeURL = u }
}

// NewTokenManager creates a TokenManager and loads any token persisted in store.
func NewTokenManager(ctx context.Context, store kv.Store, opts ...TokenOption) *TokenManager {
	t := &TokenManager{
		store:      store,
		now:        time.Now,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		revokeURL:  DefaultRevokeURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.load(ctx)
	return t
}

func (t *TokenManager) load(ctx context.Context) {
	access, err := t.store.Get(ctx, AccessTokenKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("WARNING: failed to load cached access token: %v", err)
		}
		return
	}
	tok := model.OAuthToken{AccessToken: access}
	if raw, err := t.store.Get(ctx, TokenExpiryKey); err == nil {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			tok.ExpiresAt = time.UnixMilli(ms)
		}
	}
	t.mu.Lock()
	t.token = tok
	t.mu.Unlock()
}

// SetTokenSource installs the source RequestAccessToken draws from.
func (t *TokenManager) SetTokenSource(src oauth2.TokenSource) {
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()
}

// Initialized reports whether a token source is installed.
func (t *TokenManager) Initialized() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.source != nil
}

// Current returns the cached token, which may be empty or stale.
func (t *TokenManager) Current() model.OAuthToken {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// IsTokenValid reports whether the cached token exists and stays valid for at least model.ExpiryThreshold.
func (t *TokenManager) IsTokenValid(ctx context.Context) bool {
	return t.Current().ValidAt(t.now())
}

// RequestAccessToken obtains a token from the installed source and persists it.
// Concurrent callers share one in-flight request.
func (t *TokenManager) RequestAccessToken(ctx context.Context) (model.OAuthToken, error) {
	t.mu.RLock()
	src := t.source
	t.mu.RUnlock()
	if src == nil {
		return model.OAuthToken{}, ErrNotInitialized
	}

	ch := t.group.DoChan("token", func() (interface{}, error) {
		return t.fetch(context.WithoutCancel(ctx), src)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return model.OAuthToken{}, res.Err
		}
		return res.Val.(model.OAuthToken), nil
	case <-ctx.Done():
		return model.OAuthToken{}, ctx.Err()
	}
}

func (t *TokenManager) fetch(ctx context.Context, src oauth2.TokenSource) (model.OAuthToken, error) {
	raw, err := src.Token()
	if err != nil {
		return model.OAuthToken{}, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return t.StoreToken(ctx, raw)
}

// StoreToken validates and persists a token obtained outside RequestAccessToken,
// such as one returned by a code exchange.
func (t *TokenManager) StoreToken(ctx context.Context, raw *oauth2.Token) (model.OAuthToken, error) {
	if raw == nil || raw.AccessToken == "" {
		return model.OAuthToken{}, fmt.Errorf("%w: no access token in response", ErrAuth)
	}
	expiresAt := raw.Expiry
	if expiresAt.IsZero() && raw.ExpiresIn > 0 {
		expiresAt = t.now().Add(time.Duration(raw.ExpiresIn) * time.Second)
	}
	if expiresAt.IsZero() {
		return model.OAuthToken{}, fmt.Errorf("%w: no expiry in response", ErrAuth)
	}

	tok := model.OAuthToken{AccessToken: raw.AccessToken, ExpiresAt: expiresAt}
	if err := t.store.Set(ctx, AccessTokenKey, tok.AccessToken); err != nil {
		return model.OAuthToken{}, fmt.Errorf("failed to persist access token: %w", err)
	}
	if err := t.store.Set(ctx, TokenExpiryKey, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
		return model.OAuthToken{}, fmt.Errorf("failed to persist token expiry: %w", err)
	}

	t.mu.Lock()
	t.token = tok
	t.mu.Unlock()
	return tok, nil
}

// Token implements oauth2.TokenSource for authenticated Drive clients.
func (t *TokenManager) Token() (*oauth2.Token, error) {
	tok := t.Current()
	if tok.AccessToken == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		Expiry:      tok.ExpiresAt,
	}, nil
}

// SignOut clears the persisted token and revokes it with Google.
// Revocation is best effort; failures are logged only.
func (t *TokenManager) SignOut(ctx context.Context) error {
	t.mu.Lock()
	access := t.token.AccessToken
	t.token = model.OAuthToken{}
	t.mu.Unlock()
	if access == "" {
		return nil
	}

	var errs []error
	for _, key := range []string{AccessTokenKey, TokenExpiryKey} {
		if err := t.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear %s: %w", key, err))
		}
	}

	if err := t.revoke(ctx, access); err != nil {
		log.Printf("WARNING: token revocation failed: %v", err)
	}
	return errors.Join(errs...)
}

func (t *TokenManager) revoke(ctx context.Context, access string) error {
	form := url.Values{"token": {access}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}
