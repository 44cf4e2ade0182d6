// Package capture runs live paper detection over a camera feed and takes scans.
package capture

import (
	"context"
	"image"
	"image/color"
)

const (
	// DetectionWidth is the width frames are downsampled to before detection.
	DetectionWidth = 320

	ExtractWidth  = 1080
	ExtractHeight = 1528
)

type Point struct {
	X, Y float64
}

// Corners of a detected page, clockwise from the top left.
type Corners struct {
	TopLeft     Point
	TopRight    Point
	BottomRight Point
	BottomLeft  Point
}

// Scale multiplies every coordinate by f.
func (c Corners) Scale(f float64) Corners {
	s := func(p Point) Point { return Point{X: p.X * f, Y: p.Y * f} }
	return Corners{
		TopLeft:     s(c.TopLeft),
		TopRight:    s(c.TopRight),
		BottomRight: s(c.BottomRight),
		BottomLeft:  s(c.BottomLeft),
	}
}

// Polygon returns the corners in drawing order.
func (c Corners) Polygon() []Point {
	return []Point{c.TopLeft, c.TopRight, c.BottomRight, c.BottomLeft}
}

// Contour is the outline of a candidate page in the matrix it was found in.
type Contour struct {
	Points []Point
	Area   float64
}

// Matrix is a detector-owned image buffer. Release must be called exactly once.
type Matrix interface {
	Release()
}

// MatrixBridge converts frames into detector matrices.
type MatrixBridge interface {
	FromImage(img image.Image) (Matrix, error)
}

// Detector finds and straightens pages.
type Detector interface {
	// FindPaperContour returns nil when no page is visible.
	FindPaperContour(m Matrix) (*Contour, error)
	GetCornerPoints(c *Contour) (Corners, bool)
	ExtractPaper(img image.Image, c *Contour, width, height int) (image.Image, error)
}

// FrameSource is a live video feed.
type FrameSource interface {
	// Dimensions reports the native frame size, zero until the feed is ready.
	Dimensions() (w, h int)
	Frame() (image.Image, error)
}

type Stroke struct {
	Color  color.RGBA
	Width  float64
	Closed bool
}

// PaperStroke outlines a detected page.
var PaperStroke = Stroke{Color: color.RGBA{G: 0xFF, A: 0xFF}, Width: 6, Closed: true}

// Overlay is the surface drawn on top of the preview.
type Overlay interface {
	Resize(w, h int)
	Clear()
	DrawPolygon(points []Point, stroke Stroke)
}

type Capabilities struct {
	Torch bool
}

// Constraints are requested camera settings. Zero values are left unset.
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
	Torch      *bool
}

// DefaultConstraints asks for the rear camera at 1080p.
var DefaultConstraints = Constraints{FacingMode: "environment", Width: 1920, Height: 1080}

// TorchConstraint builds the constraint that switches the torch.
func TorchConstraint(on bool) Constraints {
	return Constraints{Torch: &on}
}

type Track interface {
	Stop()
	Capabilities() Capabilities
	ApplyConstraints(ctx context.Context, c Constraints) error
}

type Stream interface {
	VideoTracks() []Track
	Tracks() []Track
}

type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, FrameSource, error)
}

// CapturedImage is a still taken from the feed.
type CapturedImage struct {
	Image image.Image
	// Corrected is set when the page was found and straightened.
	Corrected bool
}

type Logger interface {
	Printf(format string, v ...any)
}
