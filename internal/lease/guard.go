package lease

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Run holds the lease on resourceID while fn runs, heartbeating at half the TTL.
// It returns ErrHeld without calling fn when another run holds the lease.
func Run(ctx context.Context, l Locker, resourceID string, fn func(ctx context.Context) error) error {
	owner := uuid.NewString()
	if _, err := l.Acquire(ctx, resourceID, owner); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		t := time.NewTicker(DefaultTTL / 2)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if _, err := l.Heartbeat(ctx, resourceID, owner); err != nil {
					log.Printf("lease heartbeat for %s failed: %v", resourceID, err)
				}
			}
		}
	}()

	err := fn(ctx)
	close(done)
	if rerr := l.Release(context.WithoutCancel(ctx), resourceID, owner); rerr != nil {
		log.Printf("lease release for %s failed: %v", resourceID, rerr)
	}
	return err
}
