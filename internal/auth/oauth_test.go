package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/jun/scandrive/internal/crypto"
	"github.com/jun/scandrive/internal/kv"
)

func testAuthService(store kv.Store, tokenURL string) *AuthService {
	cfg := NewOAuthConfig("test-client-id", "test-client-secret", "http://localhost:8080/auth/callback")
	if tokenURL != "" {
		cfg.Endpoint = oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL}
	}
	return NewAuthService(cfg, store, crypto.NewMockEncryptor())
}

// tokenServer answers both code exchange and refresh grants.
func tokenServer(t *testing.T) (*httptest.Server, *[]string) {
	var grants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		grant := r.Form.Get("grant_type")
		grants = append(grants, grant)
		w.Header().Set("Content-Type", "application/json")
		switch grant {
		case "authorization_code":
			fmt.Fprint(w, `{"access_token":"from-code","refresh_token":"refresh-1","expires_in":3600,"token_type":"Bearer"}`)
		case "refresh_token":
			fmt.Fprint(w, `{"access_token":"from-refresh","expires_in":3600,"token_type":"Bearer"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &grants
}

func TestAuthService_GenerateAuthURL(t *testing.T) {
	s := testAuthService(kv.NewMemoryStore(), "")
	u := s.GenerateAuthURL("state-123")
	for _, want := range []string{"access_type=offline", "client_id=test-client-id", "state=state-123", "drive.file"} {
		if !strings.Contains(u, want) {
			t.Errorf("Expected auth URL to contain %q, got %s", want, u)
		}
	}
}

func TestAuthService_SaveRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := testAuthService(store, "")

	if err := s.SaveRefreshToken(ctx, &oauth2.Token{RefreshToken: "refresh-456"}); err != nil {
		t.Fatalf("SaveRefreshToken failed: %v", err)
	}
	// MockEncryptor prefixes with "mock:"
	saved, _ := store.Get(ctx, RefreshTokenKey)
	if saved != "mock:refresh-456" {
		t.Errorf("Expected encrypted token 'mock:refresh-456', got '%s'", saved)
	}
	if !s.HasRefreshToken(ctx) {
		t.Error("Expected HasRefreshToken to be true")
	}

	if err := s.SaveRefreshToken(ctx, &oauth2.Token{AccessToken: "only-access"}); err == nil {
		t.Error("Expected error when no refresh token is present")
	}

	s.ForgetRefreshToken(ctx)
	if s.HasRefreshToken(ctx) {
		t.Error("Expected refresh token to be forgotten")
	}
}

func TestAuthService_TokenSource_NoRefreshToken(t *testing.T) {
	s := testAuthService(kv.NewMemoryStore(), "")
	_, err := s.TokenSource(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Expected ErrNoRefreshToken, got %v", err)
	}
}

func TestAuthService_InteractiveSource_Consent(t *testing.T) {
	srv, grants := tokenServer(t)
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := testAuthService(store, srv.URL)

	var shownURL string
	src := s.InteractiveSource(ctx, "st", func(authURL string) (string, error) {
		shownURL = authURL
		return "the-code", nil
	})

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.AccessToken != "from-code" {
		t.Errorf("Expected from-code, got %s", tok.AccessToken)
	}
	if !strings.Contains(shownURL, "state=st") {
		t.Errorf("Expected prompt to receive the auth URL, got %q", shownURL)
	}
	if saved, _ := store.Get(ctx, RefreshTokenKey); saved != "mock:refresh-1" {
		t.Errorf("Expected refresh token persisted, got %q", saved)
	}
	if len(*grants) != 1 || (*grants)[0] != "authorization_code" {
		t.Errorf("Expected one code exchange, got %v", *grants)
	}
}

func TestAuthService_InteractiveSource_Silent(t *testing.T) {
	srv, grants := tokenServer(t)
	ctx := context.Background()
	store := kv.NewMemoryStore()
	store.Set(ctx, RefreshTokenKey, "mock:refresh-1")
	s := testAuthService(store, srv.URL)

	src := s.InteractiveSource(ctx, "st", func(string) (string, error) {
		t.Fatal("prompt should not be shown when a refresh token is stored")
		return "", nil
	})

	tok, err := src.Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.AccessToken != "from-refresh" {
		t.Errorf("Expected from-refresh, got %s", tok.AccessToken)
	}
	if len(*grants) != 1 || (*grants)[0] != "refresh_token" {
		t.Errorf("Expected one refresh grant, got %v", *grants)
	}
}

func TestAuthService_InteractiveSource_PromptError(t *testing.T) {
	s := testAuthService(kv.NewMemoryStore(), "")
	src := s.InteractiveSource(context.Background(), "st", func(string) (string, error) {
		return "", errors.New("user cancelled")
	})
	if _, err := src.Token(); !errors.Is(err, ErrAuth) {
		t.Errorf("Expected ErrAuth, got %v", err)
	}
}

func TestServiceAccountSource_InvalidKey(t *testing.T) {
	if _, err := ServiceAccountSource(context.Background(), []byte("{}")); err == nil {
		t.Error("Expected error for invalid service account key")
	}
}
