package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/jun/scandrive/internal/adapter"
)

// DynamoClient is the subset of *dynamodb.Client used by Store.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

const (
	// DynamoDB caps items at 400KB; leave room for the stub attributes.
	maxItemContentSize = 350 * 1024
	maxNameLength      = 255
)

func getTableName() *string {
	name := os.Getenv("FILE_STORE_TABLE")
	if name == "" {
		name = "ScanFiles"
	}
	return aws.String(name)
}

// FileItem is the DynamoDB row for one stored file.
type FileItem struct {
	PK           string    `dynamodbav:"pk"`
	Name         string    `dynamodbav:"name"`
	Size         int64     `dynamodbav:"size"`
	MIMEType     string    `dynamodbav:"mime_type"`
	Folder       string    `dynamodbav:"folder"`
	Tags         []string  `dynamodbav:"tags"`
	ThumbnailURL string    `dynamodbav:"thumbnail_url"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	Content      []byte    `dynamodbav:"content"`
}

func (i FileItem) stub() adapter.FileStub {
	return adapter.FileStub{
		ID:           i.PK,
		Name:         i.Name,
		Size:         i.Size,
		MIMEType:     i.MIMEType,
		Folder:       i.Folder,
		Tags:         i.Tags,
		ThumbnailURL: i.ThumbnailURL,
		CreatedAt:    i.CreatedAt,
	}
}

// Store implements adapter.FileStore.
// If client is nil, it uses an in-memory map (for tests and the CLI).
// If client is set, it persists to DynamoDB.
type Store struct {
	client DynamoClient

	files map[string]*adapter.File
	mu    sync.RWMutex
}

// NewStore creates a Store. Pass a nil client for a process-local store.
func NewStore(client DynamoClient) *Store {
	return &Store{
		client: client,
		files:  make(map[string]*adapter.File),
	}
}

func (s *Store) ListStubs(ctx context.Context) ([]adapter.FileStub, error) {
	var stubs []adapter.FileStub
	if s.client == nil {
		s.mu.RLock()
		for _, f := range s.files {
			stubs = append(stubs, f.FileStub)
		}
		s.mu.RUnlock()
	} else {
		var startKey map[string]types.AttributeValue
		for {
			out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
				TableName:            getTableName(),
				ProjectionExpression: aws.String("pk, #n, size, mime_type, folder, tags, thumbnail_url, created_at"),
				ExpressionAttributeNames: map[string]string{
					"#n": "name",
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to scan files: %w", err)
			}
			var items []FileItem
			if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal files: %w", err)
			}
			for _, item := range items {
				stubs = append(stubs, item.stub())
			}
			if len(out.LastEvaluatedKey) == 0 {
				break
			}
			startKey = out.LastEvaluatedKey
		}
	}

	sort.SliceStable(stubs, func(i, j int) bool {
		if stubs[i].CreatedAt.Equal(stubs[j].CreatedAt) {
			return stubs[i].ID < stubs[j].ID
		}
		return stubs[i].CreatedAt.Before(stubs[j].CreatedAt)
	})
	return stubs, nil
}

func (s *Store) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	if s.client == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		f, ok := s.files[fileID]
		if !ok {
			return nil, adapter.ErrNotFound
		}
		cp := *f
		cp.Content = append([]byte(nil), f.Content...)
		return &cp, nil
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: getTableName(),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: fileID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	if out.Item == nil {
		return nil, adapter.ErrNotFound
	}

	var item FileItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return &adapter.File{FileStub: item.stub(), Content: item.Content}, nil
}

func (s *Store) StoreFile(ctx context.Context, f *adapter.File) (*adapter.FileStub, error) {
	if f == nil || f.Name == "" {
		return nil, adapter.ErrInvalidFile
	}
	if len(f.Name) > maxNameLength {
		return nil, fmt.Errorf("%w: name too long (max %d characters)", adapter.ErrInvalidFile, maxNameLength)
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

	if s.client == nil {
		s.mu.Lock()
		s.files[stub.ID] = &adapter.File{FileStub: stub, Content: append([]byte(nil), f.Content...)}
		s.mu.Unlock()
		return &stub, nil
	}

	if len(f.Content) > maxItemContentSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", adapter.ErrTooLarge, len(f.Content), maxItemContentSize)
	}

	item := FileItem{
		PK:           stub.ID,
		Name:         stub.Name,
		Size:         stub.Size,
		MIMEType:     stub.MIMEType,
		Folder:       stub.Folder,
		Tags:         stub.Tags,
		ThumbnailURL: stub.ThumbnailURL,
		CreatedAt:    stub.CreatedAt,
		Content:      f.Content,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: getTableName(),
		Item:      av,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put file: %w", err)
	}
	return &stub, nil
}

func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	if s.client == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.files[fileID]; !ok {
			return adapter.ErrNotFound
		}
		delete(s.files, fileID)
		return nil
	}

	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: getTableName(),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: fileID},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if len(out.Attributes) == 0 {
		return adapter.ErrNotFound
	}
	return nil
}
