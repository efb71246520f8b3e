package leasestore

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemLeaseStore holds leases in process memory. Expired entries are
// reclaimed lazily on the next Acquire for the same key.
type MemLeaseStore struct {
	Leases *xsync.MapOf[string, time.Time]
}

func NewMemLeaseStore() *MemLeaseStore {
	return &MemLeaseStore{
		Leases: xsync.NewMapOf[string, time.Time](),
	}
}

func (s *MemLeaseStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired := false
	now := time.Now()
	s.Leases.Compute(key, func(expiry time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Before(expiry) {
			return expiry, false
		}
		acquired = true
		return now.Add(ttl), false
	})
	return acquired, nil
}

func (s *MemLeaseStore) Release(ctx context.Context, key string) error {
	s.Leases.Delete(key)
	return nil
}
