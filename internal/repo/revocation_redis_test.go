package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisList(t *testing.T) (RevocationRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocationRepo(client), mr
}

func TestRedisRevocation_addAndContains(t *testing.T) {
	list, _ := newRedisList(t)
	ctx := context.Background()

	ok, err := list.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, list.Add(ctx, "k1", time.Hour))

	ok, err = list.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRevocation_addIsIdempotent(t *testing.T) {
	list, _ := newRedisList(t)
	ctx := context.Background()

	require.NoError(t, list.Add(ctx, "k1", time.Hour))
	require.NoError(t, list.Add(ctx, "k1", time.Hour))

	ok, err := list.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRevocation_entryExpiresWithToken(t *testing.T) {
	list, mr := newRedisList(t)
	ctx := context.Background()

	require.NoError(t, list.Add(ctx, "k1", time.Minute))
	mr.FastForward(2 * time.Minute)

	// The token is past its own expiry by now, so the entry is irrelevant.
	ok, err := list.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRevocation_expiredTokenIsNoop(t *testing.T) {
	list, _ := newRedisList(t)
	ctx := context.Background()

	require.NoError(t, list.Add(ctx, "k1", -time.Minute))

	ok, err := list.Contains(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}
