// TTL-bounded mutual-exclusion leases, used to guard irreversible
// remediation actions (eg, domain blocking) against concurrent workers.
//
// Includes an interface and implementations using redis and in-process
// memory. Leases always carry a TTL so a crashed worker cannot wedge a
// key permanently.
package leasestore

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrLeaseHeld is a semantic no-op skip, not a failure: another worker
// currently holds the lease for this key.
var ErrLeaseHeld = errors.New("lease already held")

type LeaseStore interface {
	// Acquire attempts a set-if-absent with expiry. Returns true only for
	// the single caller which took the lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// WithLease runs fn while holding the named lease, and guarantees release
// on every exit path out of the locked state, including a panic inside
// fn. Returns ErrLeaseHeld (without running fn) when the lease is taken.
func WithLease(ctx context.Context, ls LeaseStore, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	ok, err := ls.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}
	defer func() {
		if err := ls.Release(ctx, key); err != nil {
			slog.Warn("failed to release lease", "key", key, "err", err)
		}
	}()
	return fn(ctx)
}
