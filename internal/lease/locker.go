package lease

import (
	"context"
	"errors"
	"time"

	"github.com/jun/scandrive/internal/model"
)

const DefaultTTL = 5 * time.Minute

var (
	ErrHeld     = errors.New("a sync is already running")
	ErrNotOwner = errors.New("lease not found or not owned by caller")
)

// Locker defines the interface for sync lease management.
// Implementations make sure only one owner runs a sync for a resource at a time.
type Locker interface {
	// Acquire takes the lease on resourceID for ownerID.
	Acquire(ctx context.Context, resourceID, ownerID string) (*model.SyncLease, error)

	// Heartbeat extends the lease TTL if ownerID holds it.
	Heartbeat(ctx context.Context, resourceID, ownerID string) (*model.SyncLease, error)

	// Release removes the lease if ownerID holds it.
	Release(ctx context.Context, resourceID, ownerID string) error

	// Status returns the live lease, or nil.
	Status(ctx context.Context, resourceID string) (*model.SyncLease, error)
}

// SyncResource names the lease guarding Drive syncs for one user.
func SyncResource(userID string) string {
	return "drive-sync#" + userID
}
