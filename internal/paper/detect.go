package paper

import (
	"fmt"
	"image"
	"math"

	"github.com/jun/scandrive/internal/capture"
)

// MinAreaRatio is the smallest share of the frame a page may cover.
const MinAreaRatio = 0.10

// Detector implements capture.Detector.
type Detector struct{}

// otsu returns the threshold maximizing between-class variance, or false for a flat image.
func otsu(pix []uint8) (uint8, bool) {
	var hist [256]int
	for _, p := range pix {
		hist[p]++
	}
	total := float64(len(pix))
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB, wB, best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold, best > 0
}

// FindPaperContour thresholds the matrix and returns the boundary of the
// largest bright 4-connected region, or nil when it covers less than MinAreaRatio.
func (Detector) FindPaperContour(m capture.Matrix) (*capture.Contour, error) {
	g, ok := m.(*Gray)
	if !ok {
		return nil, ErrForeignMatrix
	}
	if g.released {
		return nil, fmt.Errorf("matrix already released")
	}
	n := g.W * g.H
	if n == 0 {
		return nil, nil
	}
	t, ok := otsu(g.Pix)
	if !ok {
		return nil, nil
	}

	labels := make([]int32, n)
	var (
		queue     []int
		bestLabel int32
		bestArea  int
		label     int32
	)
	visit := func(j int) {
		if labels[j] == 0 && g.Pix[j] > t {
			labels[j] = label
			queue = append(queue, j)
		}
	}
	for start := 0; start < n; start++ {
		if labels[start] != 0 || g.Pix[start] <= t {
			continue
		}
		label++
		area := 0
		queue = append(queue[:0], start)
		labels[start] = label
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			area++
			x, y := i%g.W, i/g.W
			if x > 0 {
				visit(i - 1)
			}
			if x < g.W-1 {
				visit(i + 1)
			}
			if y > 0 {
				visit(i - g.W)
			}
			if y < g.H-1 {
				visit(i + g.W)
			}
		}
		if area > bestArea {
			bestArea, bestLabel = area, label
		}
	}
	if bestLabel == 0 || float64(bestArea) < MinAreaRatio*float64(n) {
		return nil, nil
	}

	in := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < g.W && y < g.H && labels[y*g.W+x] == bestLabel
	}
	c := &capture.Contour{Area: float64(bestArea)}
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if !in(x, y) {
				continue
			}
			if !in(x-1, y) || !in(x+1, y) || !in(x, y-1) || !in(x, y+1) {
				c.Points = append(c.Points, capture.Point{X: float64(x), Y: float64(y)})
			}
		}
	}
	return c, nil
}

// GetCornerPoints picks the extreme boundary points along the diagonals.
// It returns false when the contour is empty or the quadrilateral is degenerate.
func (Detector) GetCornerPoints(c *capture.Contour) (capture.Corners, bool) {
	if c == nil || len(c.Points) == 0 {
		return capture.Corners{}, false
	}
	p0 := c.Points[0]
	tl, tr, br, bl := p0, p0, p0, p0
	for _, p := range c.Points[1:] {
		if p.X+p.Y < tl.X+tl.Y {
			tl = p
		}
		if p.X+p.Y > br.X+br.Y {
			br = p
		}
		if p.Y-p.X < tr.Y-tr.X {
			tr = p
		}
		if p.Y-p.X > bl.Y-bl.X {
			bl = p
		}
	}
	corners := capture.Corners{TopLeft: tl, TopRight: tr, BottomRight: br, BottomLeft: bl}
	if quadArea(corners) < 1 {
		return capture.Corners{}, false
	}
	return corners, true
}

// quadArea is the shoelace area of the corner polygon.
func quadArea(c capture.Corners) float64 {
	p := c.Polygon()
	var s float64
	for i := range p {
		j := (i + 1) % len(p)
		s += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(s) / 2
}

// ExtractPaper straightens the page outlined by c into a width x height image.
func (d Detector) ExtractPaper(img image.Image, c *capture.Contour, width, height int) (image.Image, error) {
	corners, ok := d.GetCornerPoints(c)
	if !ok {
		return nil, fmt.Errorf("no usable corners")
	}
	return Extract(img, corners, width, height)
}
