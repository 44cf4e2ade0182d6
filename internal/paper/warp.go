package paper

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/jun/scandrive/internal/capture"
)

var ErrSingular = errors.New("corners do not define a perspective transform")

// OutputSize returns the natural size of the straightened page: the longer of
// each pair of opposing edges.
func OutputSize(c capture.Corners) (w, h int) {
	width := math.Max(dist(c.BottomRight, c.BottomLeft), dist(c.TopRight, c.TopLeft))
	height := math.Max(dist(c.TopRight, c.BottomRight), dist(c.TopLeft, c.BottomLeft))
	return int(math.Round(width)), int(math.Round(height))
}

func dist(a, b capture.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// homography maps destination pixel coordinates to source coordinates.
type homography [9]float64

func (m homography) apply(u, v float64) (float64, float64) {
	d := m[6]*u + m[7]*v + m[8]
	return (m[0]*u + m[1]*v + m[2]) / d, (m[3]*u + m[4]*v + m[5]) / d
}

// solveHomography finds the transform taking each dst point to the matching src point.
func solveHomography(dst, src [4]capture.Point) (homography, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		u, v := dst[i].X, dst[i].Y
		x, y := src[i].X, src[i].Y
		a[2*i] = [9]float64{u, v, 1, 0, 0, 0, -u * x, -v * x, x}
		a[2*i+1] = [9]float64{0, 0, 0, u, v, 1, -u * y, -v * y, y}
	}

	// Gaussian elimination with partial pivoting.
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return homography{}, ErrSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for k := col; k < 9; k++ {
				a[r][k] -= f * a[col][k]
			}
		}
	}

	var h homography
	for i := 0; i < 8; i++ {
		h[i] = a[i][8] / a[i][i]
	}
	h[8] = 1
	return h, nil
}

// Extract warps the quadrilateral given by corners in img onto a width x height image.
func Extract(img image.Image, corners capture.Corners, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid output size")
	}
	dstPts := [4]capture.Point{
		{X: 0, Y: 0},
		{X: float64(width - 1), Y: 0},
		{X: float64(width - 1), Y: float64(height - 1)},
		{X: 0, Y: float64(height - 1)},
	}
	srcPts := [4]capture.Point{corners.TopLeft, corners.TopRight, corners.BottomRight, corners.BottomLeft}
	h, err := solveHomography(dstPts, srcPts)
	if err != nil {
		return nil, err
	}

	src := toRGBA(img)
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			x, y := h.apply(float64(u), float64(v))
			r, g, b, a := bilinear(src, x, y)
			i := out.PixOffset(u, v)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = r, g, b, a
		}
	}
	return out, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// bilinear samples src at (x, y), clamping to the edge.
func bilinear(src *image.RGBA, x, y float64) (r, g, b, a uint8) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	p00 := src.PixOffset(x0, y0)
	p10 := src.PixOffset(x1, y0)
	p01 := src.PixOffset(x0, y1)
	p11 := src.PixOffset(x1, y1)
	var out [4]uint8
	for c := 0; c < 4; c++ {
		top := float64(src.Pix[p00+c])*(1-fx) + float64(src.Pix[p10+c])*fx
		bot := float64(src.Pix[p01+c])*(1-fx) + float64(src.Pix[p11+c])*fx
		out[c] = uint8(math.Round(top*(1-fy) + bot*fy))
	}
	return out[0], out[1], out[2], out[3]
}
