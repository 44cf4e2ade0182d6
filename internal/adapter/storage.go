package adapter

import (
	"context"
	"time"
)

// FileStub describes a locally stored file without its content.
type FileStub struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MIMEType     string    `json:"mimeType"`
	Folder       string    `json:"folder,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasTag reports whether the stub carries tag.
func (s FileStub) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// File represents a file with its content.
type File struct {
	FileStub
	Content []byte `json:"content"`
}

// FileStore is the local file storage the scan workflows read from and write to.
// Implementations key files by an opaque identifier.
type FileStore interface {
	// ListStubs returns every stored file without content, oldest first.
	ListStubs(ctx context.Context) ([]FileStub, error)

	// GetFile retrieves a file's content and metadata by its ID.
	GetFile(ctx context.Context, fileID string) (*File, error)

	// StoreFile persists f. An empty ID is assigned by the store.
	// Size and CreatedAt are filled in when zero.
	StoreFile(ctx context.Context, f *File) (*FileStub, error)

	// DeleteFile deletes a file by its ID.
	DeleteFile(ctx context.Context, fileID string) error
}
