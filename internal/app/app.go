package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/scandrive/internal/config"
	"github.com/jun/scandrive/internal/handler"
	"github.com/jun/scandrive/internal/paper"
)

// App holds the dependencies for the Lambda function.
type App struct {
	services      *Services
	authHandler   *handler.AuthHandler
	filesHandler  *handler.FilesHandler
	scanHandler   *handler.ScanHandler
	effectHandler *handler.EffectHandler
	driveHandler  *handler.DriveHandler
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	s, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &App{
		services: s,
		authHandler: handler.NewAuthHandler(s.Auth, s.Tokens, s.Drive, s.JWTSecret,
			handler.WithFrontendURL(cfg.FrontendURL),
			handler.WithDevMode(cfg.DevMode),
		),
		filesHandler:  handler.NewFilesHandler(s.Gallery, s.JWTSecret),
		scanHandler:   handler.NewScanHandler(s.Files, paper.Detector{}, paper.Bridge{}, s.JWTSecret),
		effectHandler: handler.NewEffectHandler(s.Effect, s.Files, s.JWTSecret),
		driveHandler:  handler.NewDriveHandler(s.Drive, s.Files, s.Locker, s.JWTSecret),
	}, nil
}

// Close releases background connections.
func (app *App) Close() error {
	return app.services.Close()
}

type route func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func (app *App) routes() map[string]route {
	return map[string]route{
		"GET /auth/login":      app.authHandler.Login,
		"GET /auth/callback":   app.authHandler.Callback,
		"POST /auth/logout":    app.authHandler.Logout,
		"GET /auth/status":     app.authHandler.Status,
		"GET /files":           app.filesHandler.List,
		"GET /files/search":    app.filesHandler.Search,
		"POST /files/delete":   app.filesHandler.Delete,
		"POST /files/pdf":      app.filesHandler.PDF,
		"POST /scans":          app.scanHandler.Create,
		"POST /scanner-effect": app.effectHandler.Process,
		"POST /drive/sync":     app.driveHandler.Sync,
		"POST /drive/import":   app.driveHandler.Import,
	}
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	log.Printf("Request: %s %s", method, path)

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Only CloudFront knows the origin secret.
	cfg := app.services.Config
	if !cfg.DevMode && app.services.APIGatewaySecret != "" {
		if req.Headers["X-Origin-Verify"] != app.services.APIGatewaySecret && req.Headers["x-origin-verify"] != app.services.APIGatewaySecret {
			log.Printf("Security Block: Missing or invalid X-Origin-Verify header")
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusForbidden,
				Body:       "Forbidden: Access denied",
			}, nil
		}
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path = strings.TrimPrefix(path, "/api")
	path = strings.TrimSuffix(path, "/")
	if req.QueryStringParameters == nil {
		req.QueryStringParameters = make(map[string]string)
	}

	if h, ok := app.routes()[method+" "+path]; ok {
		return app.corsResponse(must(h(ctx, req))), nil
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.services.Config.FrontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must unwraps a handler response, ignoring the error.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		log.Printf("Handler error: %v", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
