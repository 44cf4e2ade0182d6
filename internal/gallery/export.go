package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

var ErrNoImages = errors.New("selection contains no images")

var disablePDFConfig sync.Once

// ExportSelected writes the selected files into dir and returns the written paths.
// Existing files are never overwritten; a numeric suffix is added instead.
func (g *Gallery) ExportSelected(ctx context.Context, sel *Selection, dir string) ([]string, error) {
	stubs, err := g.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var paths []string
	for _, s := range stubs {
		f, err := g.files.GetFile(ctx, s.ID)
		if err != nil {
			return paths, fmt.Errorf("load %s: %w", s.Name, err)
		}
		path := uniquePath(dir, filepath.Base(s.Name))
		if err := os.WriteFile(path, f.Content, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	g.logger.Printf("Exported %d files to %s", len(paths), dir)
	return paths, nil
}

func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, i, ext))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
	}
}

func isImage(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/png", "image/webp", "image/tiff":
		return true
	}
	return false
}

// ConvertToPDF merges the selected images, one per page, into a PDF written to w.
// Non-image files are skipped. It returns the page count.
func (g *Gallery) ConvertToPDF(ctx context.Context, sel *Selection, w io.Writer) (int, error) {
	stubs, err := g.resolve(ctx, sel)
	if err != nil {
		return 0, err
	}

	var imgs []io.Reader
	for _, s := range stubs {
		if !isImage(s.MIMEType) {
			g.logger.Printf("Skipping %s: not an image", s.Name)
			continue
		}
		f, err := g.files.GetFile(ctx, s.ID)
		if err != nil {
			return 0, fmt.Errorf("load %s: %w", s.Name, err)
		}
		imgs = append(imgs, bytes.NewReader(f.Content))
	}
	if len(imgs) == 0 {
		return 0, ErrNoImages
	}

	disablePDFConfig.Do(api.DisableConfigDir)
	if err := api.ImportImages(nil, w, imgs, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return 0, fmt.Errorf("build pdf: %w", err)
	}
	return len(imgs), nil
}
