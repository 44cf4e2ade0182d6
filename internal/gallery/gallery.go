// Package gallery backs the My Files view: browsing scans, selecting them and
// running bulk actions.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/drivesync"
)

const (
	ScanTag             = "scan"
	UncategorizedFolder = "Uncategorized"
)

var ErrEmptySelection = errors.New("no files selected")

// Group is the scans stored under one folder.
type Group struct {
	Folder string             `json:"folder"`
	Files  []adapter.FileStub `json:"files"`
}

// Scans keeps only stubs tagged as camera scans.
func Scans(stubs []adapter.FileStub) []adapter.FileStub {
	var out []adapter.FileStub
	for _, s := range stubs {
		if s.HasTag(ScanTag) {
			out = append(out, s)
		}
	}
	return out
}

// Search filters by a case-insensitive name substring. An empty query matches everything.
func Search(stubs []adapter.FileStub, query string) []adapter.FileStub {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return stubs
	}
	var out []adapter.FileStub
	for _, s := range stubs {
		if strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	return out
}

// GroupByFolder groups stubs in the order folders are first seen.
func GroupByFolder(stubs []adapter.FileStub) []Group {
	var groups []Group
	index := map[string]int{}
	for _, s := range stubs {
		folder := s.Folder
		if folder == "" {
			folder = UncategorizedFolder
		}
		i, ok := index[folder]
		if !ok {
			i = len(groups)
			index[folder] = i
			groups = append(groups, Group{Folder: folder})
		}
		groups[i].Files = append(groups[i].Files, s)
	}
	return groups
}

// Syncer uploads stubs to Drive. It is implemented by drivesync.Service.
type Syncer interface {
	SyncAll(ctx context.Context, stubs []adapter.FileStub) (drivesync.Outcome, error)
}

type Logger interface {
	Printf(format string, v ...any)
}

// Gallery runs bulk actions against a FileStore.
type Gallery struct {
	files  adapter.FileStore
	syncer Syncer
	logger Logger
}

func New(files adapter.FileStore, syncer Syncer) *Gallery {
	return &Gallery{files: files, syncer: syncer, logger: log.Default()}
}

// WithLogger replaces the default logger.
func (g *Gallery) WithLogger(l Logger) *Gallery {
	g.logger = l
	return g
}

// Workbench lists scans matching query, grouped by folder.
func (g *Gallery) Workbench(ctx context.Context, query string) ([]Group, error) {
	stubs, err := g.files.ListStubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return GroupByFolder(Search(Scans(stubs), query)), nil
}

// resolve returns the selected stubs in store order.
func (g *Gallery) resolve(ctx context.Context, sel *Selection) ([]adapter.FileStub, error) {
	if sel.Len() == 0 {
		return nil, ErrEmptySelection
	}
	stubs, err := g.files.ListStubs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	var out []adapter.FileStub
	for _, s := range stubs {
		if sel.Selected(s.ID) {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeleteSelected deletes each selected file in turn. It returns how many were
// deleted and the joined errors of the rest; deleted IDs leave the selection.
func (g *Gallery) DeleteSelected(ctx context.Context, sel *Selection) (int, error) {
	if sel.Len() == 0 {
		return 0, ErrEmptySelection
	}
	var (
		deleted int
		errs    []error
	)
	for _, id := range sel.IDs() {
		if err := g.files.DeleteFile(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		sel.Remove(id)
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// SyncSelected uploads the selected files to Drive.
func (g *Gallery) SyncSelected(ctx context.Context, sel *Selection) (drivesync.Outcome, error) {
	if g.syncer == nil {
		return drivesync.Outcome{}, drivesync.ErrNotConfigured
	}
	stubs, err := g.resolve(ctx, sel)
	if err != nil {
		return drivesync.Outcome{}, err
	}
	return g.syncer.SyncAll(ctx, stubs)
}
