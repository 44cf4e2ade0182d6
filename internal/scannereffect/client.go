package scannereffect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/jun/scandrive/internal/adapter"
)

const (
	EndpointPath  = "/api/v1/misc/scanner-effect"
	ProcessedTag  = "processed"
	maxResultSize = 100 << 20
)

var (
	ErrInvalidPDF   = errors.New("scanner effect returned an unreadable pdf")
	ErrDriveHandoff = errors.New("processed file could not be handed to drive")

	// ErrResultTooLarge is returned when the response body exceeds the client's size limit.
	ErrResultTooLarge = errors.New("scanner effect result too large")
)

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scanner effect failed: %d %s - %s", e.Status, http.StatusText(e.Status), e.Body)
}

// DriveUploader sends a stored file to Google Drive, either inline or through a queue.
type DriveUploader interface {
	UploadToDrive(ctx context.Context, fileID string) error
}

// DriveUploaderFunc adapts a function to DriveUploader.
type DriveUploaderFunc func(ctx context.Context, fileID string) error

func (f DriveUploaderFunc) UploadToDrive(ctx context.Context, fileID string) error {
	return f(ctx, fileID)
}

type Logger interface {
	Printf(format string, v ...any)
}

// Result is the processed document.
type Result struct {
	FileName string
	MIMEType string
	Content  []byte
	// Pages is set for PDF results.
	Pages int
	// Stored is set when the result was kept for Drive sync.
	Stored *adapter.FileStub
}

type Client struct {
	baseURL  string
	http     *http.Client
	files    adapter.FileStore
	uploader DriveUploader
	logger   Logger
	maxSize  int64
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithDriveSync enables the googleDriveSync parameter: results are stored in
// files and passed to uploader.
func WithDriveSync(files adapter.FileStore, uploader DriveUploader) Option {
	return func(cl *Client) {
		cl.files = files
		cl.uploader = uploader
	}
}

// WithMaxResultSize caps the response body Process accepts.
func WithMaxResultSize(n int64) Option {
	return func(cl *Client) { cl.maxSize = n }
}

func WithLogger(l Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log.Default(),
		maxSize: maxResultSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process sends one file through the scanner effect. When p.GoogleDriveSync is
// set the result is also stored and handed to Drive; a handoff failure returns
// the result together with an error wrapping ErrDriveHandoff.
func (c *Client) Process(ctx context.Context, fileName string, content []byte, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	contentType, err := BuildForm(&body, fileName, content, p)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scanner effect request: %w", err)
	}
	defer resp.Body.Close()

	// one byte past the limit tells a full body from a cut one
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read scanner effect response: %w", err)
	}
	tooLarge := int64(len(data)) > c.maxSize
	if tooLarge {
		data = data[:c.maxSize]
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(data)}
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResultTooLarge, c.maxSize)
	}

	res := &Result{
		FileName: resultName(resp.Header.Get("Content-Disposition"), fileName),
		MIMEType: resultType(resp.Header.Get("Content-Type"), data),
		Content:  data,
	}
	if res.MIMEType == "application/pdf" {
		pages, err := CountPages(data)
		if err != nil {
			return nil, err
		}
		res.Pages = pages
	}

	if !p.GoogleDriveSync {
		return res, nil
	}
	if c.files == nil || c.uploader == nil {
		return res, fmt.Errorf("%w: drive sync is not set up", ErrDriveHandoff)
	}
	stub, err := c.files.StoreFile(ctx, &adapter.File{
		FileStub: adapter.FileStub{
			Name:     res.FileName,
			MIMEType: res.MIMEType,
			Tags:     []string{ProcessedTag},
		},
		Content: data,
	})
	if err != nil {
		return res, fmt.Errorf("%w: store result: %w", ErrDriveHandoff, err)
	}
	res.Stored = stub
	if err := c.uploader.UploadToDrive(ctx, stub.ID); err != nil {
		return res, fmt.Errorf("%w: %w", ErrDriveHandoff, err)
	}
	c.logger.Printf("Handed %s to Drive", stub.Name)
	return res, nil
}

func resultName(disposition, fallback string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return fallback
}

func resultType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	return http.DetectContentType(data)
}

// CountPages parses a PDF and returns its page count.
func CountPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	n := r.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrInvalidPDF)
	}
	return n, nil
}
