package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/oauth2"

	"github.com/jun/scandrive/internal/adapter/memory"
	"github.com/jun/scandrive/internal/auth"
	"github.com/jun/scandrive/internal/crypto"
	"github.com/jun/scandrive/internal/drivesync"
	"github.com/jun/scandrive/internal/handler"
	"github.com/jun/scandrive/internal/kv"
)

type authFixture struct {
	handler *handler.AuthHandler
	service *auth.AuthService
	tokens  *auth.TokenManager
	store   *kv.MemoryStore

	mu      sync.Mutex
	revoked []string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{store: kv.NewMemoryStore()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.URL.Path {
		case "/token":
			if r.Form.Get("code") != "good-code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
		case "/revoke":
			f.mu.Lock()
			f.revoked = append(f.revoked, r.Form.Get("token"))
			f.mu.Unlock()
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scopes:       auth.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	f.service = auth.NewAuthService(cfg, f.store, crypto.NewMockEncryptor())
	f.tokens = auth.NewTokenManager(context.Background(), f.store, auth.WithRevokeURL(srv.URL+"/revoke"))
	drive := drivesync.NewService(drivesync.Config{}, f.tokens, memory.NewStore(nil), nil)

	userInfo := func(ctx context.Context, token *oauth2.Token) (*handler.UserInfo, error) {
		if token.AccessToken != "at-1" {
			t.Errorf("Expected access token 'at-1' for userinfo, got '%s'", token.AccessToken)
		}
		return &handler.UserInfo{ID: "google-1", Email: "a@example.com", Name: "A"}, nil
	}
	f.handler = handler.NewAuthHandler(f.service, f.tokens, drive, testJWTSecret,
		handler.WithUserInfo(userInfo),
		handler.WithFrontendURL("http://app.test"),
		handler.WithDevMode(true),
	)
	return f
}

func setCookieValue(resp events.APIGatewayProxyResponse, name string) (string, bool) {
	for _, c := range resp.MultiValueHeaders["Set-Cookie"] {
		if strings.HasPrefix(c, name+"=") {
			v := strings.TrimPrefix(c, name+"=")
			return v[:strings.Index(v, ";")], true
		}
	}
	return "", false
}

func TestAuthHandler_Login(t *testing.T) {
	f := newAuthFixture(t)

	resp, err := f.handler.Login(context.Background(), events.APIGatewayProxyRequest{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}

	loc, err := url.Parse(resp.Headers["Location"])
	if err != nil {
		t.Fatalf("bad Location: %v", err)
	}
	state, ok := setCookieValue(resp, "oauth_state")
	if !ok || state == "" {
		t.Fatal("Expected oauth_state cookie")
	}
	if got := loc.Query().Get("state"); got != state {
		t.Errorf("Expected state '%s' in auth URL, got '%s'", state, got)
	}
	if got := loc.Query().Get("access_type"); got != "offline" {
		t.Errorf("Expected access_type 'offline', got '%s'", got)
	}
}

func callbackRequest(code, state, cookieState string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"code": code, "state": state},
		Headers:               map[string]string{"Cookie": "oauth_state=" + cookieState},
	}
}

func TestAuthHandler_Callback(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, err := f.handler.Callback(ctx, callbackRequest("good-code", "s1", "s1"))
	if err != nil {
		t.Fatalf("Callback returned error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", resp.StatusCode, resp.Body)
	}
	if resp.Headers["Location"] != "http://app.test/?success=true" {
		t.Errorf("Unexpected Location: %s", resp.Headers["Location"])
	}

	session, ok := setCookieValue(resp, "session_token")
	if !ok {
		t.Fatal("Expected session_token cookie")
	}
	userID, err := handler.GetUserID(events.APIGatewayProxyRequest{
		Headers: map[string]string{"Authorization": "Bearer " + session},
	}, testJWTSecret)
	if err != nil || userID != "google-1" {
		t.Errorf("Expected session for 'google-1', got '%s' (%v)", userID, err)
	}

	if got := f.tokens.Current().AccessToken; got != "at-1" {
		t.Errorf("Expected cached access token 'at-1', got '%s'", got)
	}
	if v, _ := f.store.Get(ctx, auth.AccessTokenKey); v != "at-1" {
		t.Errorf("Expected persisted access token 'at-1', got '%s'", v)
	}
	if !f.service.HasRefreshToken(ctx) {
		t.Error("Expected refresh token to be saved")
	}
	if !f.tokens.Initialized() {
		t.Error("Expected silent refresh source to be installed")
	}
}

func TestAuthHandler_CallbackRejected(t *testing.T) {
	tests := []struct {
		name string
		req  events.APIGatewayProxyRequest
		want int
	}{
		{"missing code", callbackRequest("", "s1", "s1"), http.StatusBadRequest},
		{"state mismatch", callbackRequest("good-code", "s1", "s2"), http.StatusBadRequest},
		{"missing state cookie", callbackRequest("good-code", "", ""), http.StatusBadRequest},
		{"exchange fails", callbackRequest("bad-code", "s1", "s1"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t)
			resp, _ := f.handler.Callback(context.Background(), tt.req)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
			if f.tokens.Current().AccessToken != "" {
				t.Error("Expected no token to be cached")
			}
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.handler.Callback(ctx, callbackRequest("good-code", "s1", "s1"))

	resp, err := f.handler.Logout(ctx, makeRequest("POST", "/auth/logout", ""))
	if err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if v, ok := setCookieValue(resp, "session_token"); !ok || v != "" {
		t.Errorf("Expected cleared session cookie, got '%s'", v)
	}
	if f.tokens.Current().AccessToken != "" {
		t.Error("Expected token to be cleared")
	}
	if f.service.HasRefreshToken(ctx) {
		t.Error("Expected refresh token to be forgotten")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.revoked) != 1 || f.revoked[0] != "at-1" {
		t.Errorf("Expected revoke of 'at-1', got %v", f.revoked)
	}
}

func TestAuthHandler_Status(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	resp, _ := f.handler.Status(ctx, events.APIGatewayProxyRequest{Headers: map[string]string{}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}

	f.handler.Callback(ctx, callbackRequest("good-code", "s1", "s1"))
	resp, _ = f.handler.Status(ctx, makeRequest("GET", "/auth/status", ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var status handler.StatusResponse
	if err := json.Unmarshal([]byte(resp.Body), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.UserID != testUserID {
		t.Errorf("Expected user '%s', got '%s'", testUserID, status.UserID)
	}
	if status.Configured {
		t.Error("Expected drive to be unconfigured")
	}
	if !status.SignedIn || status.ExpiresAt == nil {
		t.Error("Expected signed in with an expiry")
	}
	if status.State != drivesync.Uninitialized.String() {
		t.Errorf("Expected state '%s', got '%s'", drivesync.Uninitialized, status.State)
	}
}
