package capture

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/jun/scandrive/internal/imaging"
)

// Loop draws the detected page outline over a live feed and takes captures.
type Loop struct {
	detector  Detector
	bridge    MatrixBridge
	overlay   Overlay
	scheduler Scheduler
	logger    Logger

	mu      sync.Mutex
	running bool
	gen     uint64
	cancel  func()
	src     FrameSource
	stream  Stream

	// held for the duration of one detection cycle
	cycleMu sync.Mutex
}

type LoopOption func(*Loop)

func WithScheduler(s Scheduler) LoopOption {
	return func(l *Loop) { l.scheduler = s }
}

func WithLogger(lg Logger) LoopOption {
	return func(l *Loop) { l.logger = lg }
}

// NewLoop creates a Loop. detector and bridge may be nil when detection is unavailable.
func NewLoop(detector Detector, bridge MatrixBridge, overlay Overlay, opts ...LoopOption) *Loop {
	l := &Loop{
		detector:  detector,
		bridge:    bridge,
		overlay:   overlay,
		scheduler: TickerScheduler{Interval: DefaultInterval},
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DetectionAvailable reports whether a detector is installed.
func (l *Loop) DetectionAvailable() bool {
	return l.detector != nil && l.bridge != nil
}

// Attach records the stream whose tracks Stop releases and whose torch SetTorch drives.
// A previously attached stream is stopped.
func (l *Loop) Attach(stream Stream) {
	l.mu.Lock()
	prev := l.stream
	l.stream = stream
	l.mu.Unlock()

	if prev != nil && prev != stream {
		for _, t := range prev.Tracks() {
			t.Stop()
		}
	}
}

// Start begins detection cycles over src. It does nothing when enabled is false
// or no detector is available. Calling Start again restarts the loop.
func (l *Loop) Start(src FrameSource, enabled bool) {
	if !enabled {
		return
	}
	if !l.DetectionAvailable() {
		l.logger.Printf("Live detection skipped: %v", ErrCapabilityUnavailable)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	l.running = true
	l.src = src
	gen := l.gen
	l.cancel = l.scheduler.Schedule(func() { l.cycle(gen) })
}

func (l *Loop) active(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running && l.gen == gen
}

func (l *Loop) cycle(gen uint64) {
	l.cycleMu.Lock()
	if !l.active(gen) {
		l.cycleMu.Unlock()
		return
	}
	l.mu.Lock()
	src := l.src
	l.mu.Unlock()

	l.detect(src)
	l.cycleMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running && l.gen == gen {
		l.cancel = l.scheduler.Schedule(func() { l.cycle(gen) })
	}
}

// detect runs one detection pass. Failures are logged and never escape.
func (l *Loop) detect(src FrameSource) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("Detection error: %v", fmt.Errorf("%w: %v", ErrDetection, r))
		}
	}()

	w, h := src.Dimensions()
	if w == 0 {
		return
	}
	frame, err := src.Frame()
	if err != nil {
		l.logger.Printf("Detection error: %v", fmt.Errorf("%w: read frame: %v", ErrDetection, err))
		return
	}
	small, err := imaging.Downsample(frame, DetectionWidth)
	if err != nil {
		l.logger.Printf("Detection error: %v", fmt.Errorf("%w: %v", ErrDetection, err))
		return
	}

	m, err := l.bridge.FromImage(small)
	if err != nil {
		l.logger.Printf("Detection error: %v", fmt.Errorf("%w: %v", ErrDetection, err))
		return
	}
	defer m.Release()

	contour, err := l.detector.FindPaperContour(m)
	if err != nil {
		l.logger.Printf("Detection error: %v", fmt.Errorf("%w: %v", ErrDetection, err))
		return
	}

	l.overlay.Resize(w, h)
	if contour == nil {
		l.overlay.Clear()
		return
	}
	corners, ok := l.detector.GetCornerPoints(contour)
	if !ok {
		l.overlay.Clear()
		return
	}
	scale := float64(w) / float64(DetectionWidth)
	l.overlay.Clear()
	l.overlay.DrawPolygon(corners.Scale(scale).Polygon(), PaperStroke)
}

// Capture takes a still from src. With autoCrop it tries to straighten the page
// and falls back to the raw frame when detection or extraction fails.
func (l *Loop) Capture(src FrameSource, autoCrop bool) (CapturedImage, error) {
	if w, _ := src.Dimensions(); w == 0 {
		return CapturedImage{}, ErrNoFrame
	}
	frame, err := src.Frame()
	if err != nil {
		return CapturedImage{}, fmt.Errorf("read frame: %w", err)
	}
	raw := CapturedImage{Image: frame}
	if !autoCrop {
		return raw, nil
	}
	if !l.DetectionAvailable() {
		l.logger.Printf("Auto crop skipped: %v", ErrCapabilityUnavailable)
		return raw, nil
	}

	page, err := l.extract(frame)
	if err != nil {
		l.logger.Printf("Auto crop fell back to raw frame: %v", err)
		return raw, nil
	}
	if page == nil {
		return raw, nil
	}
	return CapturedImage{Image: page, Corrected: true}, nil
}

// extract returns nil without error when no page is visible.
func (l *Loop) extract(frame image.Image) (image.Image, error) {
	return Straighten(l.detector, l.bridge, frame)
}

// Straighten finds the page in frame and warps it to ExtractWidth x ExtractHeight.
// A nil image with a nil error means no page was found.
func Straighten(detector Detector, bridge MatrixBridge, frame image.Image) (page image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			page, err = nil, fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	m, err := bridge.FromImage(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	defer m.Release()

	contour, err := detector.FindPaperContour(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	if contour == nil {
		return nil, nil
	}
	page, err = detector.ExtractPaper(frame, contour, ExtractWidth, ExtractHeight)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return page, nil
}

// Stop cancels the pending cycle, waits for a running one and stops every track
// of the attached stream. It is safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.running = false
	l.gen++
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	stream := l.stream
	l.stream = nil
	l.src = nil
	l.mu.Unlock()

	// wait out a cycle that was already past its liveness check
	l.cycleMu.Lock()
	l.cycleMu.Unlock()

	if stream != nil {
		for _, t := range stream.Tracks() {
			t.Stop()
		}
	}
}

func (l *Loop) videoTrack() Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stream == nil {
		return nil
	}
	tracks := l.stream.VideoTracks()
	if len(tracks) == 0 {
		return nil
	}
	return tracks[0]
}

// TorchSupported reports whether the attached camera has a controllable torch.
func (l *Loop) TorchSupported() bool {
	t := l.videoTrack()
	return t != nil && t.Capabilities().Torch
}

// SetTorch switches the torch. Failures are logged and leave the state unchanged.
func (l *Loop) SetTorch(ctx context.Context, on bool) bool {
	t := l.videoTrack()
	if t == nil || !t.Capabilities().Torch {
		return false
	}
	if err := t.ApplyConstraints(ctx, TorchConstraint(on)); err != nil {
		l.logger.Printf("Torch error: %v", err)
		return false
	}
	return true
}
