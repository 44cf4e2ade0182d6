package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/scandrive/internal/model"
)

// DynamoClient is the subset of *dynamodb.Client used by DynamoStore.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps values in a DynamoDB table keyed by state_key.
// A non-empty namespace is prefixed to every key so one table can serve many users.
type DynamoStore struct {
	client    DynamoClient
	tableName string
	namespace string
}

func NewDynamoStore(client DynamoClient, tableName, namespace string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, namespace: namespace}
}

func (s *DynamoStore) key(k string) map[string]types.AttributeValue {
	if s.namespace != "" {
		k = s.namespace + "#" + k
	}
	return map[string]types.AttributeValue{
		"state_key": &types.AttributeValueMemberS{Value: k},
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get state item: %w", err)
	}
	if out.Item == nil {
		return "", ErrNotFound
	}
	var item model.StateItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal state item: %w", err)
	}
	return item.Value, nil
}

func (s *DynamoStore) Set(ctx context.Context, key, value string) error {
	item := model.StateItem{Value: value, UpdatedAt: time.Now()}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal state item: %w", err)
	}
	for k, v := range s.key(key) {
		av[k] = v
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save state item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete state item: %w", err)
	}
	return nil
}
