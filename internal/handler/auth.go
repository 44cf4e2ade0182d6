package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/jun/scandrive/internal/auth"
	"github.com/jun/scandrive/internal/drivesync"
)

// UserInfo is the Google profile the session JWT is issued for.
type UserInfo struct {
	ID    string
	Email string
	Name  string
}

// UserInfoFunc fetches the profile of the account that owns token.
type UserInfoFunc func(ctx context.Context, token *oauth2.Token) (*UserInfo, error)

// GoogleUserInfo queries the oauth2/v2 userinfo endpoint.
func GoogleUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	svc, err := googleoauth2.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return nil, fmt.Errorf("create oauth2 service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	return &UserInfo{ID: info.Id, Email: info.Email, Name: info.Name}, nil
}

// DriveStatus reports Drive availability; implemented by drivesync.Service.
type DriveStatus interface {
	Configured() bool
	State() drivesync.State
}

// AuthHandler handles the Google sign-in flow and the session cookie.
type AuthHandler struct {
	authService *auth.AuthService
	tokens      *auth.TokenManager
	drive       DriveStatus
	jwtSecret   string
	frontendURL string
	devMode     bool
	userInfo    UserInfoFunc
	now         func() time.Time
}

type AuthOption func(*AuthHandler)

func WithFrontendURL(u string) AuthOption {
	return func(h *AuthHandler) { h.frontendURL = u }
}

func WithDevMode(dev bool) AuthOption {
	return func(h *AuthHandler) { h.devMode = dev }
}

func WithUserInfo(fn UserInfoFunc) AuthOption {
	return func(h *AuthHandler) { h.userInfo = fn }
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *auth.AuthService, tokens *auth.TokenManager, drive DriveStatus, jwtSecret string, opts ...AuthOption) *AuthHandler {
	h := &AuthHandler{
		authService: s,
		tokens:      tokens,
		drive:       drive,
		jwtSecret:   jwtSecret,
		frontendURL: "http://localhost:3000",
		userInfo:    GoogleUserInfo,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Login redirects to Google consent with a random state bound to a short-lived cookie.
func (h *AuthHandler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	state := uuid.NewString()
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": h.authService.GenerateAuthURL(state)},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {cookieHeader(stateCookie, state, 600, h.devMode)},
		},
	}, nil
}

// Callback exchanges the code, installs the Drive token and issues the session cookie.
func (h *AuthHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	code := req.QueryStringParameters["code"]
	if code == "" {
		return textResponse(http.StatusBadRequest, "Missing code"), nil
	}
	if state := cookie(req, stateCookie); state == "" || state != req.QueryStringParameters["state"] {
		return textResponse(http.StatusBadRequest, "Invalid state"), nil
	}

	token, err := h.authService.ExchangeCode(ctx, code)
	if err != nil {
		log.Printf("ExchangeCode error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to exchange code"), nil
	}

	// Google only returns a refresh token on first consent.
	if err := h.authService.SaveRefreshToken(ctx, token); err != nil {
		log.Printf("SaveRefreshToken skipped: %v", err)
	}
	if _, err := h.tokens.StoreToken(ctx, token); err != nil {
		log.Printf("StoreToken error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to store token"), nil
	}
	if src, err := h.authService.TokenSource(context.WithoutCancel(ctx)); err == nil {
		h.tokens.SetTokenSource(src)
	}

	info, err := h.userInfo(ctx, token)
	if err != nil {
		log.Printf("Userinfo error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to get user info"), nil
	}

	signed, err := SignSession(h.jwtSecret, info.ID, info.Email, info.Name, h.now())
	if err != nil {
		return textResponse(http.StatusInternalServerError, "Failed to sign token"), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": h.frontendURL + "/?success=true"},
		MultiValueHeaders: map[string][]string{
			"Set-Cookie": {
				cookieHeader(sessionCookie, signed, int(sessionTTL.Seconds()), h.devMode),
				cookieHeader(stateCookie, "", 0, h.devMode),
			},
		},
	}, nil
}

// Logout revokes the Drive token, forgets the refresh token and clears the session cookie.
func (h *AuthHandler) Logout(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.tokens.SignOut(ctx); err != nil {
		log.Printf("SignOut error: %v", err)
	}
	if err := h.authService.ForgetRefreshToken(ctx); err != nil {
		log.Printf("ForgetRefreshToken error: %v", err)
	}

	resp := jsonResponse(http.StatusOK, map[string]bool{"success": true})
	resp.MultiValueHeaders = map[string][]string{
		"Set-Cookie": {cookieHeader(sessionCookie, "", 0, h.devMode)},
	}
	return resp, nil
}

// StatusResponse describes the Drive connection for the signed-in user.
type StatusResponse struct {
	UserID     string     `json:"user_id"`
	Configured bool       `json:"configured"`
	SignedIn   bool       `json:"signed_in"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	State      string     `json:"state"`
}

// Status reports whether Drive is configured and the cached token is usable.
func (h *AuthHandler) Status(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	resp := StatusResponse{
		UserID:     userID,
		Configured: h.drive.Configured(),
		SignedIn:   h.tokens.IsTokenValid(ctx),
		State:      h.drive.State().String(),
	}
	if tok := h.tokens.Current(); resp.SignedIn {
		resp.ExpiresAt = &tok.ExpiresAt
	}
	return jsonResponse(http.StatusOK, resp), nil
}
