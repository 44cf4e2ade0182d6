package googledrive

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jun/scandrive/internal/adapter"
)

var expandableMimeTypes = map[string][]string{
	"image/*": {"image/jpeg", "image/png", "image/svg+xml"},
}

// PickerMimeTypes converts a file input accept attribute into the comma separated
// list the Drive picker expects. ok is false when every type is accepted.
func PickerMimeTypes(accept string) (mimeTypes string, ok bool) {
	if strings.TrimSpace(accept) == "" || strings.Contains(accept, "*/*") {
		return "", false
	}
	var out []string
	for _, part := range strings.Split(accept, ",") {
		part = strings.TrimSpace(part)
		if expanded, found := expandableMimeTypes[part]; found {
			out = append(out, expanded...)
			continue
		}
		out = append(out, part)
	}
	return strings.Join(strings.Fields(strings.Join(out, ",")), ""), true
}

// PickedDocument is one entry of a picker selection.
type PickedDocument struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MIMEType     string    `json:"mimeType"`
	LastModified time.Time `json:"lastModified"`
}

const maxParallelDownloads = 4

// DownloadPicked downloads every picked document. Results keep the selection order;
// any failure aborts the whole batch.
func (d *DriveAdapter) DownloadPicked(ctx context.Context, docs []PickedDocument) ([]adapter.File, error) {
	files := make([]adapter.File, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)

	for i, doc := range docs {
		g.Go(func() error {
			content, err := d.DownloadFile(gctx, doc.ID)
			if err != nil {
				return err
			}
			files[i] = adapter.File{
				FileStub: adapter.FileStub{
					Name:      doc.Name,
					MIMEType:  doc.MIMEType,
					Size:      int64(len(content)),
					CreatedAt: doc.LastModified,
				},
				Content: content,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
