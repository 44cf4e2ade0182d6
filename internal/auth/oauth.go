package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/jun/scandrive/internal/crypto"
	"github.com/jun/scandrive/internal/kv"
)

// RefreshTokenKey is where the encrypted refresh token is persisted.
const RefreshTokenKey = "googleDriveRefreshToken"

// Scopes requested for the picker and sync flows.
var Scopes = []string{
	drive.DriveReadonlyScope,
	drive.DriveFileScope,
}

// NewOAuthConfig builds the Google OAuth2 config for an installed or web client.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// AuthService handles the OAuth2 code flow and refresh-token persistence.
type AuthService struct {
	oauthConfig *oauth2.Config
	store       kv.Store
	encryptor   crypto.Encryptor
}

// NewAuthService creates a new AuthService.
// The oauthConfig should be constructed by the caller (e.g., from environment variables).
func NewAuthService(oauthConfig *oauth2.Config, store kv.Store, encryptor crypto.Encryptor) *AuthService {
	return &AuthService{
		oauthConfig: oauthConfig,
		store:       store,
		encryptor:   encryptor,
	}
}

// Config returns the OAuth2 config.
func (s *AuthService) Config() *oauth2.Config {
	return s.oauthConfig
}

// GenerateAuthURL returns the URL to redirect the user to for Google consent.
func (s *AuthService) GenerateAuthURL(state string) string {
	return s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for a token.
func (s *AuthService) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %v", ErrAuth, err)
	}
	return tok, nil
}

// SaveRefreshToken encrypts the refresh token and stores it.
func (s *AuthService) SaveRefreshToken(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.RefreshToken == "" {
		return fmt.Errorf("no refresh token in response")
	}
	encrypted, err := s.encryptor.Encrypt(ctx, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	if err := s.store.Set(ctx, RefreshTokenKey, encrypted); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// ForgetRefreshToken removes the stored refresh token.
func (s *AuthService) ForgetRefreshToken(ctx context.Context) error {
	return s.store.Delete(ctx, RefreshTokenKey)
}

// HasRefreshToken reports whether silent refresh is possible.
func (s *AuthService) HasRefreshToken(ctx context.Context) bool {
	_, err := s.store.Get(ctx, RefreshTokenKey)
	return err == nil
}

// TokenSource returns a source that silently refreshes from the stored refresh token.
func (s *AuthService) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	encrypted, err := s.store.Get(ctx, RefreshTokenKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	refreshToken, err := s.encryptor.Decrypt(ctx, encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-1 * time.Hour), // Force refresh
	}
	return s.oauthConfig.TokenSource(ctx, token), nil
}

// PromptFunc shows authURL to the user and returns the authorization code they paste back.
type PromptFunc func(authURL string) (string, error)

// InteractiveSource refreshes silently when a refresh token is stored and
// otherwise runs the consent flow through prompt once.
func (s *AuthService) InteractiveSource(ctx context.Context, state string, prompt PromptFunc) oauth2.TokenSource {
	return &interactiveSource{ctx: ctx, svc: s, state: state, prompt: prompt}
}

type interactiveSource struct {
	ctx    context.Context
	svc    *AuthService
	state  string
	prompt PromptFunc

	mu    sync.Mutex
	inner oauth2.TokenSource
}

func (i *interactiveSource) Token() (*oauth2.Token, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.inner == nil {
		src, err := i.svc.TokenSource(i.ctx)
		switch {
		case err == nil:
			i.inner = src
		case errors.Is(err, ErrNoRefreshToken):
			code, err := i.prompt(i.svc.GenerateAuthURL(i.state))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrAuth, err)
			}
			tok, err := i.svc.ExchangeCode(i.ctx, code)
			if err != nil {
				return nil, err
			}
			if err := i.svc.SaveRefreshToken(i.ctx, tok); err != nil {
				return nil, err
			}
			i.inner = oauth2.ReuseTokenSource(tok, i.svc.oauthConfig.TokenSource(i.ctx, tok))
		default:
			return nil, err
		}
	}
	return i.inner.Token()
}

// ServiceAccountSource builds a token source from a service-account JSON key,
// scoped to files the account creates.
func ServiceAccountSource(ctx context.Context, jsonKey []byte) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(jsonKey, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return cfg.TokenSource(ctx), nil
}
