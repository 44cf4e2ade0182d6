// Package drivesync pushes locally stored scans into a Google Drive folder.
package drivesync

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/adapter/googledrive"
	"github.com/jun/scandrive/internal/model"
	"github.com/jun/scandrive/internal/syncplan"
)

// Drive is the subset of the Drive REST surface the service needs.
type Drive interface {
	EnsureFolder(ctx context.Context, name string) (string, error)
	ListFileNames(ctx context.Context, folderID string) (map[string]struct{}, error)
	UploadFile(ctx context.Context, name, mimeType string, content []byte, folderID string) (string, error)
	DownloadPicked(ctx context.Context, docs []googledrive.PickedDocument) ([]adapter.File, error)
}

// DriveFactory builds an authenticated Drive client.
type DriveFactory func(ctx context.Context) (Drive, error)

// Tokens is implemented by auth.TokenManager.
type Tokens interface {
	IsTokenValid(ctx context.Context) bool
	RequestAccessToken(ctx context.Context) (model.OAuthToken, error)
}

type Logger interface {
	Printf(format string, v ...any)
}

// Config carries the credentials that decide whether Drive sync is available.
type Config struct {
	ClientID string
	APIKey   string
	AppID    string
	// FolderName is looked up or created on every sync.
	FolderName string
	// TargetFolderID skips the folder lookup when set.
	TargetFolderID string
}

// Configured reports whether client ID, API key and app ID are all set.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.APIKey != "" && c.AppID != ""
}

type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Outcome counts what happened to each file of one sync.
type Outcome struct {
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// Service syncs files from a FileStore into Drive.
type Service struct {
	cfg      Config
	tokens   Tokens
	files    adapter.FileStore
	newDrive DriveFactory
	logger   Logger

	mu    sync.Mutex
	state State
	drive Drive

	// serializes syncs so two runs never race on folder creation
	syncMu sync.Mutex
}

type ServiceOption func(*Service)

func WithLogger(l Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

func NewService(cfg Config, tokens Tokens, files adapter.FileStore, newDrive DriveFactory, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:      cfg,
		tokens:   tokens,
		files:    files,
		newDrive: newDrive,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether Drive credentials are present.
func (s *Service) Configured() bool {
	return s.cfg.Configured()
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize builds the Drive client. Calls after the first success are no-ops.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.cfg.Configured() {
		return ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ready {
		return nil
	}

	s.state = Initializing
	d, err := s.newDrive(ctx)
	if err != nil {
		s.state = Uninitialized
		return fmt.Errorf("initialize drive client: %w", err)
	}
	s.drive = d
	s.state = Ready
	return nil
}

func (s *Service) client() (Drive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return nil, ErrNotInitialized
	}
	return s.drive, nil
}

// EnsureToken requests a new access token only when the cached one is missing or about to expire.
func (s *Service) EnsureToken(ctx context.Context) error {
	if s.tokens.IsTokenValid(ctx) {
		return nil
	}
	_, err := s.tokens.RequestAccessToken(ctx)
	return err
}

func (s *Service) folder(ctx context.Context, d Drive) (string, error) {
	if s.cfg.TargetFolderID != "" {
		return s.cfg.TargetFolderID, nil
	}
	return d.EnsureFolder(ctx, s.cfg.FolderName)
}

// SyncAll uploads every stub whose name is not already in the target folder.
// Files are processed one at a time in input order; a failing file is logged
// and counted without stopping the run. Token, folder and listing failures
// abort the run with an error wrapping ErrSyncFailed.
func (s *Service) SyncAll(ctx context.Context, stubs []adapter.FileStub) (Outcome, error) {
	if !s.cfg.Configured() {
		return Outcome{}, ErrNotConfigured
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	// Always ask for a token, the source refreshes silently when it can.
	if _, err := s.tokens.RequestAccessToken(ctx); err != nil {
		return Outcome{}, fmt.Errorf("%w: request access token: %w", ErrSyncFailed, err)
	}
	if err := s.Initialize(ctx); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	d, err := s.client()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	folderID, err := s.folder(ctx, d)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: ensure folder %q: %w", ErrSyncFailed, s.cfg.FolderName, err)
	}
	existing, err := d.ListFileNames(ctx, folderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: list folder: %w", ErrSyncFailed, err)
	}

	var out Outcome
	for _, decision := range syncplan.Plan(existing, stubs) {
		if decision.Skip {
			out.Skipped++
			continue
		}
		if err := s.upload(ctx, d, decision.Stub, folderID); err != nil {
			s.logger.Printf("Failed to sync %s: %v", decision.Stub.Name, err)
			out.Errored++
			continue
		}
		out.Uploaded++
	}
	s.logger.Printf("Drive sync finished: %d uploaded, %d skipped, %d failed", out.Uploaded, out.Skipped, out.Errored)
	return out, nil
}

func (s *Service) upload(ctx context.Context, d Drive, stub adapter.FileStub, folderID string) error {
	f, err := s.files.GetFile(ctx, stub.ID)
	if err != nil {
		return fmt.Errorf("load %s: %w", stub.ID, err)
	}
	mimeType := stub.MIMEType
	if mimeType == "" {
		mimeType = f.MIMEType
	}
	_, err = d.UploadFile(ctx, stub.Name, mimeType, f.Content, folderID)
	return err
}

// SyncFile syncs a single stored file by ID.
func (s *Service) SyncFile(ctx context.Context, fileID string) (Outcome, error) {
	f, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		return Outcome{}, err
	}
	return s.SyncAll(ctx, []adapter.FileStub{f.FileStub})
}

// ImportPicked downloads documents chosen in the Drive picker and stores them
// locally under folder. The service must be initialized.
func (s *Service) ImportPicked(ctx context.Context, docs []googledrive.PickedDocument, folder string) ([]*adapter.FileStub, error) {
	d, err := s.client()
	if err != nil {
		return nil, err
	}
	if err := s.EnsureToken(ctx); err != nil {
		return nil, err
	}

	files, err := d.DownloadPicked(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("download picked files: %w", err)
	}

	stubs := make([]*adapter.FileStub, 0, len(files))
	for i := range files {
		f := &files[i]
		f.Folder = folder
		f.Tags = append(f.Tags, "drive")
		stub, err := s.files.StoreFile(ctx, f)
		if err != nil {
			return stubs, fmt.Errorf("store %s: %w", f.Name, err)
		}
		stubs = append(stubs, stub)
	}
	return stubs, nil
}
