package capture

import (
	"context"
	"errors"
	"image"
	"sync"
)

type task struct {
	fn        func()
	cancelled bool
}

// manualScheduler runs scheduled callbacks only when the test asks.
type manualScheduler struct {
	mu      sync.Mutex
	pending []*task
}

func (m *manualScheduler) Schedule(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &task{fn: fn}
	m.pending = append(m.pending, t)
	return func() {
		m.mu.Lock()
		t.cancelled = true
		m.mu.Unlock()
	}
}

// RunNext runs the oldest live callback and reports whether one ran.
func (m *manualScheduler) RunNext() bool {
	m.mu.Lock()
	for len(m.pending) > 0 {
		t := m.pending[0]
		m.pending = m.pending[1:]
		if t.cancelled {
			continue
		}
		m.mu.Unlock()
		t.fn()
		return true
	}
	m.mu.Unlock()
	return false
}

func (m *manualScheduler) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.cancelled {
			n++
		}
	}
	return n
}

type fakeSource struct {
	w, h int
	err  error
}

func (f *fakeSource) Dimensions() (int, int) { return f.w, f.h }

func (f *fakeSource) Frame() (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, f.w, f.h)), nil
}

type fakeMatrix struct {
	bridge *fakeBridge
	w      int
}

func (m *fakeMatrix) Release() {
	m.bridge.mu.Lock()
	m.bridge.released++
	m.bridge.mu.Unlock()
}

type fakeBridge struct {
	mu       sync.Mutex
	created  int
	released int
	err      error
}

func (b *fakeBridge) FromImage(img image.Image) (Matrix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.created++
	return &fakeMatrix{bridge: b, w: img.Bounds().Dx()}, nil
}

type fakeDetector struct {
	contour    *Contour
	corners    Corners
	findErr    error
	panicMsg   string
	extractErr error
	seenWidths []int
	extractW   int
	extractH   int
}

func (d *fakeDetector) FindPaperContour(m Matrix) (*Contour, error) {
	d.seenWidths = append(d.seenWidths, m.(*fakeMatrix).w)
	if d.panicMsg != "" {
		panic(d.panicMsg)
	}
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.contour, nil
}

func (d *fakeDetector) GetCornerPoints(c *Contour) (Corners, bool) {
	return d.corners, c != nil
}

func (d *fakeDetector) ExtractPaper(img image.Image, c *Contour, width, height int) (image.Image, error) {
	d.extractW, d.extractH = width, height
	if d.extractErr != nil {
		return nil, d.extractErr
	}
	return image.NewRGBA(image.Rect(0, 0, width, height)), nil
}

type fakeOverlay struct {
	w, h     int
	clears   int
	polygons [][]Point
	strokes  []Stroke
}

func (o *fakeOverlay) Resize(w, h int) { o.w, o.h = w, h }
func (o *fakeOverlay) Clear()          { o.clears++ }
func (o *fakeOverlay) DrawPolygon(p []Point, s Stroke) {
	o.polygons = append(o.polygons, p)
	o.strokes = append(o.strokes, s)
}

type fakeTrack struct {
	mu       sync.Mutex
	torch    bool
	applyErr error
	applied  []Constraints
	stopped  int
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped++
	t.mu.Unlock()
}

func (t *fakeTrack) Capabilities() Capabilities { return Capabilities{Torch: t.torch} }

func (t *fakeTrack) ApplyConstraints(_ context.Context, c Constraints) error {
	t.applied = append(t.applied, c)
	return t.applyErr
}

type fakeStream struct {
	video []*fakeTrack
	audio []*fakeTrack
}

func (s *fakeStream) VideoTracks() []Track {
	out := make([]Track, len(s.video))
	for i, t := range s.video {
		out[i] = t
	}
	return out
}

func (s *fakeStream) Tracks() []Track {
	out := s.VideoTracks()
	for _, t := range s.audio {
		out = append(out, t)
	}
	return out
}

type fakeCamera struct {
	opens   int
	last    Constraints
	streams []*fakeStream
	src     *fakeSource
	err     error
}

func (c *fakeCamera) Open(_ context.Context, cons Constraints) (Stream, FrameSource, error) {
	c.opens++
	c.last = cons
	if c.err != nil {
		return nil, nil, c.err
	}
	s := &fakeStream{video: []*fakeTrack{{}}}
	c.streams = append(c.streams, s)
	return s, c.src, nil
}

type recordLogger struct {
	mu    sync.Mutex
	lines int
}

func (l *recordLogger) Printf(string, ...any) {
	l.mu.Lock()
	l.lines++
	l.mu.Unlock()
}

var errBoom = errors.New("boom")
