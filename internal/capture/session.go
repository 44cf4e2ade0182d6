package capture

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/imaging"
)

const (
	DefaultFolder = "Scans"
	ScanTag       = "scan"
)

// Session is one camera scan: open the camera, capture, then retake or confirm.
type Session struct {
	camera Camera
	loop   *Loop
	files  adapter.FileStore
	now    func() time.Time
	logger Logger

	AutoCrop bool

	mu       sync.Mutex
	src      FrameSource
	captured *CapturedImage
}

type SessionOption func(*Session)

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithSessionLogger(l Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

func NewSession(camera Camera, loop *Loop, files adapter.FileStore, opts ...SessionOption) *Session {
	s := &Session{
		camera:   camera,
		loop:     loop,
		files:    files,
		now:      time.Now,
		logger:   log.Default(),
		AutoCrop: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts the rear camera and live detection. A camera left open by an
// earlier call is released first.
func (s *Session) Open(ctx context.Context) error {
	s.loop.Stop()
	stream, src, err := s.camera.Open(ctx, DefaultConstraints)
	if err != nil {
		s.mu.Lock()
		s.src = nil
		s.mu.Unlock()
		return fmt.Errorf("camera access denied or not available: %w", err)
	}
	s.mu.Lock()
	s.src = src
	s.captured = nil
	s.mu.Unlock()

	s.loop.Attach(stream)
	s.loop.Start(src, s.AutoCrop)
	return nil
}

// Capture takes a still and releases the camera.
func (s *Session) Capture() (CapturedImage, error) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return CapturedImage{}, ErrNoFrame
	}

	img, err := s.loop.Capture(src, s.AutoCrop)
	if err != nil {
		return CapturedImage{}, err
	}
	s.loop.Stop()

	s.mu.Lock()
	s.captured = &img
	s.src = nil
	s.mu.Unlock()
	return img, nil
}

// Retake discards the capture and reopens the camera.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	s.captured = nil
	s.mu.Unlock()
	return s.Open(ctx)
}

// Confirm stores the captured image as scan-<unix ms>.jpg in folder, or in
// DefaultFolder when folder is blank.
func (s *Session) Confirm(ctx context.Context, folder string) (*adapter.FileStub, error) {
	s.mu.Lock()
	captured := s.captured
	s.mu.Unlock()
	if captured == nil {
		return nil, ErrNothingCaptured
	}

	stub, err := StoreScan(ctx, s.files, captured.Image, folder, s.now(), s.logger)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.captured = nil
	s.mu.Unlock()
	return stub, nil
}

// StoreScan encodes img as a JPEG scan with a thumbnail and stores it as
// scan-<unix ms>.jpg in folder, or in DefaultFolder when folder is blank.
func StoreScan(ctx context.Context, files adapter.FileStore, img image.Image, folder string, now time.Time, logger Logger) (*adapter.FileStub, error) {
	content, err := imaging.EncodeJPEG(img, imaging.CaptureQuality)
	if err != nil {
		return nil, err
	}
	thumb, err := imaging.ThumbnailDataURL(img)
	if err != nil {
		logger.Printf("Failed to generate thumbnail: %v", err)
		thumb = ""
	}

	folder = strings.TrimSpace(folder)
	if folder == "" {
		folder = DefaultFolder
	}
	stub, err := files.StoreFile(ctx, &adapter.File{
		FileStub: adapter.FileStub{
			Name:         fmt.Sprintf("scan-%d.jpg", now.UnixMilli()),
			MIMEType:     "image/jpeg",
			Size:         int64(len(content)),
			Folder:       folder,
			Tags:         []string{ScanTag},
			ThumbnailURL: thumb,
			CreatedAt:    now,
		},
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist scan: %w", err)
	}
	return stub, nil
}

// Close stops the camera and detection.
func (s *Session) Close() {
	s.loop.Stop()
}
