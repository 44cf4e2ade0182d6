// Package scannereffect calls the backend endpoint that makes a document look scanned.
package scannereffect

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strconv"
)

type Colorspace string

const (
	ColorspaceColor      Colorspace = "color"
	ColorspaceGrayscale  Colorspace = "grayscale"
	ColorspaceBlackWhite Colorspace = "black_white"
)

type ScannyFilter string

const (
	FilterNone       ScannyFilter = "none"
	FilterMagicColor ScannyFilter = "magic_color"
	FilterBlackWhite ScannyFilter = "black_white"
)

// Params are the tunables sent with each request.
type Params struct {
	Brightness       float64      `json:"brightness" yaml:"brightness"`
	Contrast         float64      `json:"contrast" yaml:"contrast"`
	Blur             float64      `json:"blur" yaml:"blur"`
	Noise            float64      `json:"noise" yaml:"noise"`
	Yellowish        bool         `json:"yellowish" yaml:"yellowish"`
	RenderResolution int          `json:"renderResolution" yaml:"render_resolution"`
	Colorspace       Colorspace   `json:"colorspace" yaml:"colorspace"`
	AutoCrop         bool         `json:"autoCrop" yaml:"auto_crop"`
	ScannyFilter     ScannyFilter `json:"scannyFilter" yaml:"scanny_filter"`
	GoogleDriveSync  bool         `json:"googleDriveSync" yaml:"google_drive_sync"`
}

// Defaults returns the initial parameter set.
func Defaults() Params {
	return Params{
		Brightness:       0,
		Contrast:         1,
		Blur:             0.5,
		Noise:            0.2,
		Yellowish:        false,
		RenderResolution: 200,
		Colorspace:       ColorspaceColor,
		AutoCrop:         false,
		ScannyFilter:     FilterNone,
		GoogleDriveSync:  false,
	}
}

var ErrInvalidParams = errors.New("invalid scanner effect parameters")

func (p Params) Validate() error {
	switch p.Colorspace {
	case ColorspaceColor, ColorspaceGrayscale, ColorspaceBlackWhite:
	default:
		return fmt.Errorf("%w: colorspace %q", ErrInvalidParams, p.Colorspace)
	}
	switch p.ScannyFilter {
	case FilterNone, FilterMagicColor, FilterBlackWhite:
	default:
		return fmt.Errorf("%w: scannyFilter %q", ErrInvalidParams, p.ScannyFilter)
	}
	if p.RenderResolution <= 0 {
		return fmt.Errorf("%w: renderResolution must be positive", ErrInvalidParams)
	}
	if p.Contrast < 0 || p.Blur < 0 || p.Noise < 0 {
		return fmt.Errorf("%w: contrast, blur and noise must not be negative", ErrInvalidParams)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildForm writes the file and parameters as multipart/form-data and
// returns the content type to send.
func BuildForm(w io.Writer, fileName string, content []byte, p Params) (string, error) {
	mw := multipart.NewWriter(w)
	part, err := mw.CreateFormFile("fileInput", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}

	fields := []struct{ name, value string }{
		{"brightness", formatFloat(p.Brightness)},
		{"contrast", formatFloat(p.Contrast)},
		{"blur", formatFloat(p.Blur)},
		{"noise", formatFloat(p.Noise)},
		{"yellowish", strconv.FormatBool(p.Yellowish)},
		{"renderResolution", strconv.Itoa(p.RenderResolution)},
		{"colorspace", string(p.Colorspace)},
		{"autoCrop", strconv.FormatBool(p.AutoCrop)},
		{"scannyFilter", string(p.ScannyFilter)},
		{"googleDriveSync", strconv.FormatBool(p.GoogleDriveSync)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}
