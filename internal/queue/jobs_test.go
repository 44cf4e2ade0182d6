package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestEnqueueDriveUpload(t *testing.T) {
	enq := &fakeEnqueuer{}
	if err := NewDriveUploader(enq).UploadToDrive(context.Background(), "file-1"); err != nil {
		t.Fatalf("UploadToDrive failed: %v", err)
	}
	if len(enq.tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(enq.tasks))
	}
	task := enq.tasks[0]
	if task.Type() != DriveUploadTask {
		t.Errorf("Expected %s, got %s", DriveUploadTask, task.Type())
	}
	var p DriveUploadPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		t.Fatal(err)
	}
	if p.FileID != "file-1" {
		t.Errorf("Expected file-1, got %s", p.FileID)
	}
	if len(enq.opts[0]) != 1 {
		t.Errorf("Expected retry option, got %v", enq.opts[0])
	}
}

func TestEnqueueDriveUpload_Error(t *testing.T) {
	boom := errors.New("redis down")
	err := EnqueueDriveUpload(context.Background(), &fakeEnqueuer{err: boom}, DriveUploadPayload{FileID: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped redis error, got %v", err)
	}
}
