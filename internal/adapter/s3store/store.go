// Package s3store keeps scans in an S3-compatible bucket (MinIO in development).
// Each file is two objects: the content under files/<id> and a JSON stub under stubs/<id>.json.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jun/scandrive/internal/adapter"
)

const (
	contentPrefix = "files/"
	stubPrefix    = "stubs/"
)

// Options configures the bucket connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Store implements adapter.FileStore on top of MinIO/S3.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from opts.
func New(opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{client: client, bucket: opts.Bucket, region: opts.Region}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

func contentKey(id string) string { return contentPrefix + id }
func stubKey(id string) string    { return stubPrefix + id + ".json" }

func idFromStubKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, stubPrefix), ".json")
}

func (s *Store) ListStubs(ctx context.Context) ([]adapter.FileStub, error) {
	var stubs []adapter.FileStub
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: stubPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list stubs: %w", obj.Err)
		}
		stub, err := s.readStub(ctx, idFromStubKey(obj.Key))
		if err != nil {
			return nil, err
		}
		stubs = append(stubs, *stub)
	}
	sort.SliceStable(stubs, func(i, j int) bool {
		return stubs[i].CreatedAt.Before(stubs[j].CreatedAt)
	})
	return stubs, nil
}

func (s *Store) readStub(ctx context.Context, id string) (*adapter.FileStub, error) {
	data, err := s.readObject(ctx, stubKey(id))
	if err != nil {
		return nil, err
	}
	var stub adapter.FileStub
	if err := json.Unmarshal(data, &stub); err != nil {
		return nil, fmt.Errorf("decode stub %s: %w", id, err)
	}
	return &stub, nil
}

func (s *Store) readObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, adapter.ErrNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf, nil
}

func (s *Store) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	stub, err := s.readStub(ctx, fileID)
	if err != nil {
		return nil, err
	}
	content, err := s.readObject(ctx, contentKey(fileID))
	if err != nil {
		return nil, err
	}
	return &adapter.File{FileStub: *stub, Content: content}, nil
}

func (s *Store) StoreFile(ctx context.Context, f *adapter.File) (*adapter.FileStub, error) {
	if f == nil || f.Name == "" {
		return nil, adapter.ErrInvalidFile
	}
	stub := f.FileStub
	if stub.ID == "" {
		stub.ID = uuid.New().String()
	}
	if stub.Size == 0 {
		stub.Size = int64(len(f.Content))
	}
	if stub.CreatedAt.IsZero() {
		stub.CreatedAt = time.Now()
	}
	contentType := stub.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, contentKey(stub.ID), bytes.NewReader(f.Content), int64(len(f.Content)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("upload content: %w", err)
	}

	data, err := json.Marshal(stub)
	if err != nil {
		return nil, fmt.Errorf("encode stub: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, stubKey(stub.ID), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return nil, fmt.Errorf("upload stub: %w", err)
	}
	return &stub, nil
}

func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, stubKey(fileID), minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return adapter.ErrNotFound
		}
		return fmt.Errorf("stat stub: %w", err)
	}
	for _, key := range []string{stubKey(fileID), contentKey(fileID)} {
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return false
}
