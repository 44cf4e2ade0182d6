package lease

import (
	"context"
	"sync"
	"time"

	"github.com/jun/scandrive/internal/model"
)

// MemoryLocker implements Locker using an in-memory map, for tests and single-process runs.
type MemoryLocker struct {
	leases      map[string]*model.SyncLease
	mu          sync.Mutex
	ttlDuration time.Duration
	now         func() time.Time
}

// NewMemoryLocker creates a new MemoryLocker with the default TTL.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		leases:      make(map[string]*model.SyncLease),
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func (m *MemoryLocker) Acquire(ctx context.Context, resourceID, ownerID string) (*model.SyncLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().Unix()
	if existing, ok := m.leases[resourceID]; ok {
		if existing.ExpiresAt > now && existing.OwnerID != ownerID {
			return nil, ErrHeld
		}
	}

	l := &model.SyncLease{
		ResourceID: resourceID,
		OwnerID:    ownerID,
		ExpiresAt:  now + int64(m.ttlDuration.Seconds()),
	}
	m.leases[resourceID] = l
	copied := *l
	return &copied, nil
}

func (m *MemoryLocker) Heartbeat(ctx context.Context, resourceID, ownerID string) (*model.SyncLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[resourceID]
	if !ok || existing.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	existing.ExpiresAt = m.now().Unix() + int64(m.ttlDuration.Seconds())
	copied := *existing
	return &copied, nil
}

func (m *MemoryLocker) Release(ctx context.Context, resourceID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[resourceID]
	if !ok || existing.OwnerID != ownerID {
		return ErrNotOwner
	}
	delete(m.leases, resourceID)
	return nil
}

func (m *MemoryLocker) Status(ctx context.Context, resourceID string) (*model.SyncLease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.leases[resourceID]
	if !ok || existing.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	copied := *existing
	return &copied, nil
}
