package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/resource-desk/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingKV fails every operation
type failingKV struct{}

var errDisk = errors.New("disk unavailable")

func (failingKV) Get(context.Context, string) (string, error) { return "", errDisk }
func (failingKV) Set(context.Context, string, string) error   { return errDisk }
func (failingKV) Delete(context.Context, string) error        { return errDisk }
func (failingKV) Close() error                                { return nil }

func TestStoreSetExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	kv := storage.NewMemoryStorage()
	store := NewStore(kv, clock)

	expiresAt, err := store.SetExpiry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), expiresAt)
	assert.True(t, store.IsValid(ctx))

	raw, err := kv.Get(ctx, KeyExpiresAt)
	require.NoError(t, err)
	assert.Equal(t, "1700000060000", raw)

	raw, err = kv.Get(ctx, KeyTTLMinutes)
	require.NoError(t, err)
	assert.Equal(t, "1", raw)

	clock.Advance(61 * time.Second)
	assert.False(t, store.IsValid(ctx))

	// still present, just in the past
	_, ok := store.GetExpiry(ctx)
	assert.True(t, ok)
}

func TestStoreExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(storage.NewMemoryStorage(), clock)

	_, err := store.SetExpiry(ctx, 0.5)
	require.NoError(t, err)

	clock.Advance(30*time.Second - time.Millisecond)
	assert.True(t, store.IsValid(ctx))

	clock.Advance(time.Millisecond)
	assert.False(t, store.IsValid(ctx), "now == expiry is expired")
}

func TestStoreClearKeepsTTL(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStorage(), newFakeClock())

	_, err := store.SetExpiry(ctx, 30)
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	_, ok := store.GetExpiry(ctx)
	assert.False(t, ok)
	assert.False(t, store.IsValid(ctx))

	ttl, ok := store.TTL(ctx)
	assert.True(t, ok)
	assert.Equal(t, 30.0, ttl)
}

func TestStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStorage(), newFakeClock())

	_, ok := store.TTL(ctx)
	assert.False(t, ok)

	require.NoError(t, store.SetTTL(ctx, 2.5))
	ttl, ok := store.TTL(ctx)
	assert.True(t, ok)
	assert.Equal(t, 2.5, ttl)

	assert.ErrorIs(t, store.SetTTL(ctx, 0), ErrInvalidTTL)
	assert.ErrorIs(t, store.SetTTL(ctx, -1), ErrInvalidTTL)
	_, err := store.SetExpiry(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestStoreRejectsTTLBeyondOneYear(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewStore(storage.NewMemoryStorage(), clock)

	for _, minutes := range []float64{MaxTTLMinutes + 1, 1e15, math.Inf(1), math.NaN()} {
		assert.ErrorIs(t, store.SetTTL(ctx, minutes), ErrInvalidTTL, "%v", minutes)
		_, err := store.SetExpiry(ctx, minutes)
		assert.ErrorIs(t, err, ErrInvalidTTL, "%v", minutes)
	}
	_, ok := store.GetExpiry(ctx)
	assert.False(t, ok)

	// a persisted out-of-range value is ignored
	require.NoError(t, store.kv.Set(ctx, KeyTTLMinutes, "1e15"))
	_, ok = store.TTL(ctx)
	assert.False(t, ok)

	expiresAt, err := store.SetExpiry(ctx, MaxTTLMinutes)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(MaxTTLMinutes*time.Minute), expiresAt)
	assert.True(t, store.IsValid(ctx))
}

func TestStoreMalformedExpiry(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStorage()
	store := NewStore(kv, newFakeClock())

	require.NoError(t, kv.Set(ctx, KeyExpiresAt, "soon"))
	_, ok := store.GetExpiry(ctx)
	assert.False(t, ok)
	assert.False(t, store.IsValid(ctx))
}

func TestStoreDegradesOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingKV{}, newFakeClock())

	assert.NotPanics(t, func() {
		assert.False(t, store.IsValid(ctx))
		_, ok := store.GetExpiry(ctx)
		assert.False(t, ok)
		_, ok = store.TTL(ctx)
		assert.False(t, ok)
	})

	_, err := store.SetExpiry(ctx, 5)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "set", storageErr.Op)
	assert.Equal(t, KeyExpiresAt, storageErr.Key)
	assert.ErrorIs(t, err, errDisk)

	err = store.Clear(ctx)
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "delete", storageErr.Op)
}
