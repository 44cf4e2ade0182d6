package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// DriveUploadTask is scheduled for each processed file that should reach Google Drive.
	DriveUploadTask = "drive:upload"
)

// DriveUploadPayload tells the worker which stored file to sync.
type DriveUploadPayload struct {
	FileID string `json:"file_id"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueDriveUpload enqueues a Drive upload job.
func EnqueueDriveUpload(ctx context.Context, client Enqueuer, payload DriveUploadPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(DriveUploadTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue drive upload task: %w", err)
	}
	return nil
}

// DriveUploader hands files to the worker through the queue.
type DriveUploader struct {
	client Enqueuer
}

func NewDriveUploader(client Enqueuer) *DriveUploader {
	return &DriveUploader{client: client}
}

func (u *DriveUploader) UploadToDrive(ctx context.Context, fileID string) error {
	return EnqueueDriveUpload(ctx, u.client, DriveUploadPayload{FileID: fileID})
}
