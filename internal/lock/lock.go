// Package lock implements the distributed mutual-exclusion service the
// Reservation Engine layers above the Ledger Store's version check. It is
// advisory only: conditional_update_inventory's version predicate remains
// the sole arbiter of a lost update. The lock exists to cut contention on
// the version column under hot keys and to serialize the read-then-write
// window so the engine reports InsufficientStock against the value actually
// in effect.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the caller never held the key (or
// the key already expired). It is informational only — Release never
// propagates it to the caller's control flow.
var ErrNotHeld = errors.New("lock: key not held by this token")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Service is a Redis-backed, single-holder, TTL-bounded lock keyed by an
// arbitrary string. Acquisition never blocks: a held key fails immediately.
// Keys are used verbatim against Redis — callers pass the fully-qualified
// key (see InventoryKey) so an operator inspecting or pre-seeding Redis
// sees exactly the key convention the spec names.
type Service struct {
	client *redis.Client
}

// New creates a lock Service.
func New(client *redis.Client) *Service {
	return &Service{client: client}
}

// InventoryKey builds the canonical lock key for a (product, store) pair.
func InventoryKey(productID, storeID string) string {
	return fmt.Sprintf("inventory_lock:%s:%s", productID, storeID)
}

// Acquire attempts to take exclusive possession of key for at most ttl. It
// returns a token identifying this holder and true on success; on failure
// (key already held, or a Redis error) it returns false and the caller
// surfaces LOCK_UNAVAILABLE rather than retrying internally.
func (s *Service) Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.New().String()

	acquired, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Release releases key unconditionally from this caller's perspective: it
// deletes the key only if it still holds the token this caller was given,
// so a holder whose TTL already expired (and whose key another caller has
// since acquired) cannot delete someone else's lock. Errors are for the
// caller to log; they are never propagated into request-path control flow,
// because the lock will expire on its own.
func (s *Service) Release(ctx context.Context, key, token string) error {
	res, err := s.client.Eval(ctx, releaseScript, []string{key}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n, _ := res.(int64); n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Ping verifies connectivity for readiness checks without opening or closing
// a dedicated connection — it reuses the long-lived client.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
