package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestService_Acquire_FirstCallerSucceeds(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	token, ok, err := svc.Acquire(ctx, InventoryKey("prod-1", "store-1"), 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)
}

func TestService_Acquire_SecondCallerFailsWhileHeld(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	key := InventoryKey("prod-1", "store-1")

	_, ok1, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok1)

	_, ok2, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok2, "second acquire must fail immediately, not block")
}

func TestService_Release_FreesKeyForNextCaller(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	key := InventoryKey("prod-1", "store-1")

	token, ok, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.Release(ctx, key, token))

	_, ok2, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok2)
}

func TestService_Release_DoesNotDeleteAnotherHoldersLock(t *testing.T) {
	svc, mr := setupTestService(t)
	ctx := context.Background()
	key := InventoryKey("prod-1", "store-1")

	token, ok, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate the original holder's key expiring and a new holder taking it.
	mr.FastForward(31 * time.Second)
	newToken, ok2, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok2)

	// The stale holder's release must not evict the new holder's lock.
	err = svc.Release(ctx, key, token)
	assert.ErrorIs(t, err, ErrNotHeld)

	_, ok3, err := svc.Acquire(ctx, key, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok3, "new holder's lock must still be in place")
	_ = newToken
}

func TestService_Release_IdempotentWhenAlreadyGone(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()
	key := InventoryKey("prod-1", "store-1")

	err := svc.Release(ctx, key, "some-token-never-acquired")
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestService_Ping(t *testing.T) {
	svc, _ := setupTestService(t)
	assert.NoError(t, svc.Ping(context.Background()))
}
