package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jun/scandrive/internal/adapter"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"
)

// DriveAdapter talks to the Google Drive v3 API on behalf of one authenticated user.
type DriveAdapter struct {
	service    *drive.Service
	client     *http.Client
	uploadURL  string
	limiter    *rate.Limiter
	svcOptions []option.ClientOption
}

// Option configures a DriveAdapter.
type Option func(*DriveAdapter)

// WithUploadURL overrides DefaultUploadURL.
func WithUploadURL(u string) Option {
	return func(d *DriveAdapter) { d.uploadURL = u }
}

// WithUploadRate caps multipart uploads at perSecond. Zero disables the limit.
func WithUploadRate(perSecond float64) Option {
	return func(d *DriveAdapter) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithServiceOptions passes extra client options to drive.NewService, e.g. option.WithEndpoint.
func WithServiceOptions(opts ...option.ClientOption) Option {
	return func(d *DriveAdapter) { d.svcOptions = append(d.svcOptions, opts...) }
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client carrying the user's bearer token.
func NewDriveAdapter(ctx context.Context, client *http.Client, opts ...Option) (*DriveAdapter, error) {
	d := &DriveAdapter{client: client, uploadURL: DefaultUploadURL}
	for _, opt := range opts {
		opt(d)
	}
	svcOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, d.svcOptions...)
	srv, err := drive.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %v", err)
	}
	d.service = srv
	return d, nil
}

// escapeQuery escapes a value for use inside a single-quoted Drive query literal.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// EnsureFolder returns the ID of the non-trashed folder called name, creating it if none exists.
func (d *DriveAdapter) EnsureFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("mimeType='%s' and name='%s' and trashed=false", folderMimeType, escapeQuery(name))
	r, err := d.service.Files.List().
		Q(q).
		Fields("files(id, name)").
		Spaces("drive").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder %q: %w", name, err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	id, err := d.CreateFolder(ctx, name, nil)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CreateFolder creates a folder and returns its ID. Empty parents means the Drive root.
func (d *DriveAdapter) CreateFolder(ctx context.Context, name string, parents []string) (string, error) {
	f := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  parents,
	}
	res, err := d.service.Files.Create(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder %q: %w", name, err)
	}
	return res.Id, nil
}

// ListFileNames returns the names of every non-trashed child of folderID, following all result pages.
func (d *DriveAdapter) ListFileNames(ctx context.Context, folderID string) (map[string]struct{}, error) {
	names := make(map[string]struct{})
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))

	pageToken := ""
	for {
		call := d.service.Files.List().
			Q(q).
			Fields("nextPageToken, files(id, name)").
			Spaces("drive").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		r, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list folder %s: %w", folderID, err)
		}
		for _, f := range r.Files {
			if f.Name != "" {
				names[f.Name] = struct{}{}
			}
		}
		if r.NextPageToken == "" {
			return names, nil
		}
		pageToken = r.NextPageToken
	}
}

// DownloadFile fetches a file's binary content.
func (d *DriveAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("unable to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read file %s: %w", fileID, err)
	}
	return content, nil
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}
