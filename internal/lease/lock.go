package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jun/scandrive/internal/model"
)

// DynamoClient is the subset of *dynamodb.Client used by LockManager.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// LockManager handles sync leases using DynamoDB TTL.
type LockManager struct {
	client      DynamoClient
	tableName   string
	ttlDuration time.Duration
	now         func() time.Time
}

// NewLockManager creates a new LockManager.
func NewLockManager(client DynamoClient, tableName string) *LockManager {
	return &LockManager{
		client:      client,
		tableName:   tableName,
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func (m *LockManager) key(resourceID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"resource_id": &types.AttributeValueMemberS{Value: resourceID},
	}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// Acquire attempts to take the lease on a resource for the given owner.
// It succeeds if:
// 1. No lease exists for the resource.
// 2. The existing lease has expired (TTL < now).
// 3. The existing lease belongs to the same owner (refresh).
func (m *LockManager) Acquire(ctx context.Context, resourceID, ownerID string) (*model.SyncLease, error) {
	now := m.now().Unix()
	l := model.SyncLease{
		ResourceID: resourceID,
		OwnerID:    ownerID,
		ExpiresAt:  now + int64(m.ttlDuration.Seconds()),
	}

	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lease: %w", err)
	}

	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.tableName),
		Item:      item,
		ConditionExpression: aws.String(
			"attribute_not_exists(resource_id) OR expires_at < :now OR owner_id = :owner_id",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":owner_id": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return &l, nil
}

// Heartbeat extends the lease TTL if the owner holds it.
func (m *LockManager) Heartbeat(ctx context.Context, resourceID, ownerID string) (*model.SyncLease, error) {
	expiresAt := m.now().Unix() + int64(m.ttlDuration.Seconds())

	out, err := m.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(m.tableName),
		Key:                 m.key(resourceID),
		UpdateExpression:    aws.String("SET expires_at = :expires_at"),
		ConditionExpression: aws.String("owner_id = :owner_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expires_at": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt)},
			":owner_id":   &types.AttributeValueMemberS{Value: ownerID},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotOwner
		}
		return nil, fmt.Errorf("failed to send heartbeat: %w", err)
	}

	var l model.SyncLease
	if err := attributevalue.UnmarshalMap(out.Attributes, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease: %w", err)
	}
	return &l, nil
}

// Release removes the lease if the owner holds it.
func (m *LockManager) Release(ctx context.Context, resourceID, ownerID string) error {
	_, err := m.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(m.tableName),
		Key:                 m.key(resourceID),
		ConditionExpression: aws.String("owner_id = :owner_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner_id": &types.AttributeValueMemberS{Value: ownerID},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotOwner
		}
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Status retrieves the current lease.
func (m *LockManager) Status(ctx context.Context, resourceID string) (*model.SyncLease, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.tableName),
		Key:       m.key(resourceID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lease status: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var l model.SyncLease
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lease: %w", err)
	}
	// DynamoDB TTL deletion is lazy
	if l.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	return &l, nil
}
