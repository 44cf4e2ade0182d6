package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/jun/scandrive/internal/adapter"
	"github.com/jun/scandrive/internal/drivesync"
	"github.com/jun/scandrive/internal/queue"
)

// FileSyncer is implemented by drivesync.Service.
type FileSyncer interface {
	SyncFile(ctx context.Context, fileID string) (drivesync.Outcome, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	syncer FileSyncer
}

// NewProcessor constructs a worker processor.
func NewProcessor(syncer FileSyncer) *Processor {
	return &Processor{syncer: syncer}
}

// Handler registers the drive upload job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.DriveUploadTask, p.handleDriveUpload)
	return mux
}

func (p *Processor) handleDriveUpload(ctx context.Context, task *asynq.Task) error {
	var payload queue.DriveUploadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	out, err := p.syncer.SyncFile(ctx, payload.FileID)
	switch {
	case errors.Is(err, drivesync.ErrNotConfigured), errors.Is(err, adapter.ErrNotFound):
		log.Printf("drive upload dropped for %s: %v", payload.FileID, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		log.Printf("drive upload failed for %s: %v", payload.FileID, err)
		return err
	case out.Errored > 0:
		return fmt.Errorf("drive upload failed for %s", payload.FileID)
	}
	log.Printf("file %s synced (uploaded %d, skipped %d)", payload.FileID, out.Uploaded, out.Skipped)
	return nil
}
