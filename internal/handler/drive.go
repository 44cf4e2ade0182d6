package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/adapter/googledrive"
	"github.com/jun/scandrive/internal/auth"
	"github.com/jun/scandrive/internal/drivesync"
	"github.com/jun/scandrive/internal/lease"
)

const defaultImportFolder = "Google Drive"

// DriveSyncer is implemented by drivesync.Service.
type DriveSyncer interface {
	Initialize(ctx context.Context) error
	SyncAll(ctx context.Context, stubs []adapter.FileStub) (drivesync.Outcome, error)
	ImportPicked(ctx context.Context, docs []googledrive.PickedDocument, folder string) ([]*adapter.FileStub, error)
}

// DriveHandler exposes Drive sync and picker import.
type DriveHandler struct {
	sync      DriveSyncer
	files     adapter.FileStore
	locker    lease.Locker
	jwtSecret string
}

// NewDriveHandler creates a new DriveHandler.
func NewDriveHandler(sync DriveSyncer, files adapter.FileStore, locker lease.Locker, jwtSecret string) *DriveHandler {
	return &DriveHandler{sync: sync, files: files, locker: locker, jwtSecret: jwtSecret}
}

func driveError(err error) events.APIGatewayProxyResponse {
	switch {
	case errors.Is(err, lease.ErrHeld):
		return textResponse(http.StatusConflict, err.Error())
	case errors.Is(err, drivesync.ErrNotConfigured):
		return textResponse(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, auth.ErrAuth), errors.Is(err, auth.ErrNotInitialized):
		return textResponse(http.StatusUnauthorized, "Google Drive sign-in required")
	case errors.Is(err, drivesync.ErrSyncFailed):
		return textResponse(http.StatusBadGateway, err.Error())
	default:
		log.Printf("Drive error: %v", err)
		return textResponse(http.StatusInternalServerError, "Drive request failed")
	}
}

// Sync handles POST /drive/sync. An optional {"ids": [...]} body limits the run
// to those files; otherwise every stored file is considered. Only one sync per
// user runs at a time.
func (h *DriveHandler) Sync(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID, err := GetUserID(req, h.jwtSecret)
	if err != nil {
		return unauthorized(), nil
	}

	var body selectionRequest
	if strings.TrimSpace(req.Body) != "" {
		if err := decodeBody(req, &body); err != nil {
			return textResponse(http.StatusBadRequest, "Invalid request body"), nil
		}
	}

	stubs, err := h.files.ListStubs(ctx)
	if err != nil {
		log.Printf("ListStubs error: %v", err)
		return textResponse(http.StatusInternalServerError, "Failed to list files"), nil
	}
	if len(body.IDs) > 0 {
		stubs = filterByID(stubs, body.IDs)
	}

	var out drivesync.Outcome
	err = lease.Run(ctx, h.locker, lease.SyncResource(userID), func(ctx context.Context) error {
		var err error
		out, err = h.sync.SyncAll(ctx, stubs)
		return err
	})
	if err != nil {
		return driveError(err), nil
	}
	return jsonResponse(http.StatusOK, out), nil
}

func filterByID(stubs []adapter.FileStub, ids []string) []adapter.FileStub {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []adapter.FileStub
	for _, s := range stubs {
		if _, ok := want[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ImportRequest is a picker selection.
type ImportRequest struct {
	Docs   []googledrive.PickedDocument `json:"docs"`
	Folder string                       `json:"folder"`
}

// Import handles POST /drive/import.
func (h *DriveHandler) Import(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if _, err := GetUserID(req, h.jwtSecret); err != nil {
		return unauthorized(), nil
	}

	var body ImportRequest
	if err := decodeBody(req, &body); err != nil || len(body.Docs) == 0 {
		return textResponse(http.StatusBadRequest, "No documents picked"), nil
	}
	folder := strings.TrimSpace(body.Folder)
	if folder == "" {
		folder = defaultImportFolder
	}

	if err := h.sync.Initialize(ctx); err != nil {
		return driveError(err), nil
	}
	stubs, err := h.sync.ImportPicked(ctx, body.Docs, folder)
	if err != nil {
		return driveError(err), nil
	}
	return jsonResponse(http.StatusOK, stubs), nil
}
