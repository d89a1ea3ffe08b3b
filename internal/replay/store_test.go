package replay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recaptcha-gate/internal/common/config"
)

// ==========================
// Memory Store Tests
// ==========================

func TestMemoryStore_MarkUsed(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	fresh, err := store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "first use must be fresh")

	fresh, err = store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh, "second use must be a replay")

	fresh, err = store.MarkUsed(ctx, "token-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "distinct tokens are independent")
}

func TestMemoryStore_ExpiredEntryIsFreshAgain(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	fresh, err := store.MarkUsed(ctx, "token-a", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, fresh)

	time.Sleep(20 * time.Millisecond)

	fresh, err = store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "expired entry must not count as replay")
}

// ==========================
// Redis Store Tests
// ==========================

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_MarkUsed(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	fresh, err := store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	fresh, err := store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	mr.FastForward(2 * time.Minute)

	fresh, err = store.MarkUsed(ctx, "token-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "entry must expire with its TTL")
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.MarkUsed(context.Background(), "token-a", time.Minute)
	assert.Error(t, err)
}

func TestRedisStore_Ping(t *testing.T) {
	store, _ := newRedisStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
