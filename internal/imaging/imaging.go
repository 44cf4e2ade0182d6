// Package imaging holds the raster helpers shared by capture, thumbnails and PDF export.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	ThumbnailMaxSide = 200
	ThumbnailQuality = 70
	CaptureQuality   = 90
)

var ErrEmptyImage = errors.New("image has no pixels")

// Downsample scales img to width, keeping the aspect ratio. Images already
// narrower than width are scaled up so detection always sees the same width.
func Downsample(img image.Image, width int) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, ErrEmptyImage
	}
	if width <= 0 {
		return nil, fmt.Errorf("invalid target width %d", width)
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, nil
}

// Thumbnail fits img inside a maxSide square. Small images are returned as is.
func Thumbnail(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ToBase64 returns content as a data URL.
func ToBase64(content []byte, mimeType string) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content)
}

// Decode reads a JPEG, PNG or WebP image.
func Decode(content []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// ThumbnailDataURL returns a JPEG thumbnail of img as a data URL.
func ThumbnailDataURL(img image.Image) (string, error) {
	data, err := EncodeJPEG(Thumbnail(img, ThumbnailMaxSide), ThumbnailQuality)
	if err != nil {
		return "", err
	}
	return ToBase64(data, "image/jpeg"), nil
}
