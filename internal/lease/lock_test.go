package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jun/scandrive/internal/model"
)

var _ Locker = (*LockManager)(nil)
var _ Locker = (*MemoryLocker)(nil)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestMemoryLocker() (*MemoryLocker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemoryLocker()
	m.now = clock.now
	return m, clock
}

func TestMemoryLocker_AcquireAndRelease(t *testing.T) {
	m, _ := newTestMemoryLocker()
	ctx := context.Background()

	l, err := m.Acquire(ctx, "sync#u1", "run1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.ResourceID != "sync#u1" || l.OwnerID != "run1" {
		t.Errorf("Lease mismatch: got %+v", l)
	}

	if err := m.Release(ctx, "sync#u1", "run1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	status, _ := m.Status(ctx, "sync#u1")
	if status != nil {
		t.Error("Expected nil lease status after release")
	}
}

func TestMemoryLocker_DoubleAcquire(t *testing.T) {
	tests := []struct {
		name    string
		second  string
		wantErr error
	}{
		{"same owner refreshes", "run1", nil},
		{"other owner is refused", "run2", ErrHeld},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMemoryLocker()
			ctx := context.Background()
			if _, err := m.Acquire(ctx, "r", "run1"); err != nil {
				t.Fatalf("First acquire failed: %v", err)
			}
			_, err := m.Acquire(ctx, "r", tt.second)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMemoryLocker_Heartbeat(t *testing.T) {
	m, clock := newTestMemoryLocker()
	ctx := context.Background()

	l, _ := m.Acquire(ctx, "r", "run1")
	clock.t = clock.t.Add(time.Minute)

	updated, err := m.Heartbeat(ctx, "r", "run1")
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if updated.ExpiresAt != l.ExpiresAt+60 {
		t.Errorf("Expected expiry %d, got %d", l.ExpiresAt+60, updated.ExpiresAt)
	}
	if _, err := m.Heartbeat(ctx, "r", "run2"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
}

func TestMemoryLocker_ExpiredLease(t *testing.T) {
	m, clock := newTestMemoryLocker()
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "r", "run1"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	clock.t = clock.t.Add(DefaultTTL + time.Second)

	if status, _ := m.Status(ctx, "r"); status != nil {
		t.Errorf("Expected expired lease to be hidden, got %+v", status)
	}
	if _, err := m.Acquire(ctx, "r", "run2"); err != nil {
		t.Errorf("Should acquire expired lease: %v", err)
	}
}

func TestMemoryLocker_Release_WrongOwner(t *testing.T) {
	m, _ := newTestMemoryLocker()
	ctx := context.Background()
	m.Acquire(ctx, "r", "run1")

	if err := m.Release(ctx, "r", "run2"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
}

// fakeDynamo evaluates the lease condition expressions against a single map.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]model.SyncLease
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]model.SyncLease{}}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key["resource_id"].(*types.AttributeValueMemberS).Value
}

func strVal(v map[string]types.AttributeValue, k string) string {
	return v[k].(*types.AttributeValueMemberS).Value
}

func numVal(v map[string]types.AttributeValue, k string) int64 {
	var n int64
	attributevalue.Unmarshal(v[k], &n)
	return n
}

func condFailed() error {
	return &types.ConditionalCheckFailedException{Message: new(string)}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	item, _ := attributevalue.MarshalMap(l)
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var l model.SyncLease
	if err := attributevalue.UnmarshalMap(in.Item, &l); err != nil {
		return nil, err
	}
	if existing, ok := f.items[l.ResourceID]; ok {
		now := numVal(in.ExpressionAttributeValues, ":now")
		owner := strVal(in.ExpressionAttributeValues, ":owner_id")
		if !(existing.ExpiresAt < now || existing.OwnerID == owner) {
			return nil, condFailed()
		}
	}
	f.items[l.ResourceID] = l
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	existing, ok := f.items[k]
	if !ok || existing.OwnerID != strVal(in.ExpressionAttributeValues, ":owner_id") {
		return nil, condFailed()
	}
	existing.ExpiresAt = numVal(in.ExpressionAttributeValues, ":expires_at")
	f.items[k] = existing
	attrs, _ := attributevalue.MarshalMap(existing)
	return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := keyOf(in.Key)
	existing, ok := f.items[k]
	if !ok || existing.OwnerID != strVal(in.ExpressionAttributeValues, ":owner_id") {
		return nil, condFailed()
	}
	delete(f.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

func newTestLockManager() (*LockManager, *fakeDynamo, *fakeClock) {
	db := newFakeDynamo()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	m := NewLockManager(db, "SyncLeases")
	m.now = clock.now
	return m, db, clock
}

func TestLockManager_Lifecycle(t *testing.T) {
	m, db, clock := newTestLockManager()
	ctx := context.Background()

	l, err := m.Acquire(ctx, "r", "run1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.ExpiresAt != clock.t.Unix()+int64(DefaultTTL.Seconds()) {
		t.Errorf("Unexpected expiry %d", l.ExpiresAt)
	}
	if _, err := m.Acquire(ctx, "r", "run2"); !errors.Is(err, ErrHeld) {
		t.Errorf("Expected ErrHeld, got %v", err)
	}

	clock.t = clock.t.Add(time.Minute)
	hb, err := m.Heartbeat(ctx, "r", "run1")
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if hb.ExpiresAt != l.ExpiresAt+60 || hb.OwnerID != "run1" {
		t.Errorf("Unexpected heartbeat result %+v", hb)
	}

	status, err := m.Status(ctx, "r")
	if err != nil || status == nil || status.OwnerID != "run1" {
		t.Errorf("Expected live lease for run1, got %+v, %v", status, err)
	}

	if err := m.Release(ctx, "r", "run2"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := m.Release(ctx, "r", "run1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if len(db.items) != 0 {
		t.Errorf("Expected lease deleted, got %v", db.items)
	}
}

func TestLockManager_ExpiredLease(t *testing.T) {
	m, _, clock := newTestLockManager()
	ctx := context.Background()
	m.Acquire(ctx, "r", "run1")
	clock.t = clock.t.Add(DefaultTTL + time.Second)

	if status, _ := m.Status(ctx, "r"); status != nil {
		t.Errorf("Expected expired lease to read as free, got %+v", status)
	}
	if _, err := m.Acquire(ctx, "r", "run2"); err != nil {
		t.Errorf("Should acquire expired lease: %v", err)
	}
}

func TestLockManager_ClientError(t *testing.T) {
	m, db, _ := newTestLockManager()
	db.err = errors.New("throttled")
	_, err := m.Acquire(context.Background(), "r", "run1")
	if err == nil || errors.Is(err, ErrHeld) {
		t.Errorf("Expected plain client error, got %v", err)
	}
}

func TestRun(t *testing.T) {
	m, _ := newTestMemoryLocker()
	ctx := context.Background()

	inner := make(chan error, 1)
	err := Run(ctx, m, "r", func(ctx context.Context) error {
		inner <- Run(ctx, m, "r", func(context.Context) error {
			t.Error("Expected nested run to be refused")
			return nil
		})
		return errors.New("sync result")
	})
	if err == nil || err.Error() != "sync result" {
		t.Errorf("Expected fn error to pass through, got %v", err)
	}
	if got := <-inner; !errors.Is(got, ErrHeld) {
		t.Errorf("Expected ErrHeld for concurrent run, got %v", got)
	}
	if status, _ := m.Status(ctx, "r"); status != nil {
		t.Errorf("Expected lease released, got %+v", status)
	}
}

func TestSyncResource(t *testing.T) {
	if got := SyncResource("u1"); got != "drive-sync#u1" {
		t.Errorf("Expected drive-sync#u1, got %s", got)
	}
}
