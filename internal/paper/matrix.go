// Package paper finds a sheet of paper in a frame and straightens it.
package paper

import (
	"errors"
	"image"
	"sync"

	"github.com/jun/scandrive/internal/capture"
)

var ErrForeignMatrix = errors.New("matrix was not created by this bridge")

// Gray is an 8-bit luminance matrix backed by a pooled buffer.
type Gray struct {
	W, H     int
	Pix      []uint8
	released bool
}

var grayPool = sync.Pool{New: func() any { return &Gray{} }}

func newGray(w, h int) *Gray {
	g := grayPool.Get().(*Gray)
	n := w * h
	if cap(g.Pix) < n {
		g.Pix = make([]uint8, n)
	}
	g.Pix = g.Pix[:n]
	g.W, g.H = w, h
	g.released = false
	return g
}

// Release returns the buffer to the pool. Later calls are ignored.
func (g *Gray) Release() {
	if g.released {
		return
	}
	g.released = true
	grayPool.Put(g)
}

// Bridge converts images to Gray matrices.
type Bridge struct{}

func (Bridge) FromImage(img image.Image) (capture.Matrix, error) {
	return ToGray(img), nil
}

// ToGray converts img using Rec. 601 luma weights.
func ToGray(img image.Image) *Gray {
	b := img.Bounds()
	g := newGray(b.Dx(), b.Dy())

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < g.H; y++ {
			row := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride:]
			for x := 0; x < g.W; x++ {
				i := (x + b.Min.X - rgba.Rect.Min.X) * 4
				r, gg, bl := uint32(row[i]), uint32(row[i+1]), uint32(row[i+2])
				g.Pix[y*g.W+x] = uint8((299*r + 587*gg + 114*bl) / 1000)
			}
		}
		return g
	}

	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			r, gg, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.Pix[y*g.W+x] = uint8((299*(r>>8) + 587*(gg>>8) + 114*(bl>>8)) / 1000)
		}
	}
	return g
}
