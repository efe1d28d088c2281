package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "review_ledger/internal/adapters/redis"
	"review_ledger/internal/domain"
)

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisad.NewWithClient(client, "test:"), mr
}

func TestCache_SetGetDel(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	var rv domain.Review
	ok, err := c.Get(ctx, "review:0", &rv)
	require.NoError(t, err)
	assert.False(t, ok)

	in := domain.Review{ID: 0, Author: "ST1TEST", LocationID: 1, Text: "Great place!", Rating: 4, IsActive: true}
	in.Fingerprint[0] = 0xab
	require.NoError(t, c.Set(ctx, "review:0", in, 60))
	assert.True(t, mr.Exists("test:review:0"))

	ok, err = c.Get(ctx, "review:0", &rv)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, rv)

	require.NoError(t, c.Del(ctx, "review:0"))
	ok, _ = c.Get(ctx, "review:0", &rv)
	assert.False(t, ok)
}

func TestCache_TTL(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "count", 3, 10))
	mr.FastForward(11 * time.Second)

	var n int
	ok, err := c.Get(ctx, "count", &n)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set("test:review:9", "{not json"))

	var rv domain.Review
	ok, err := c.Get(context.Background(), "review:9", &rv)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:review:9"))
}

func TestCache_ServerDown(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()

	var n int
	_, err := c.Get(context.Background(), "count", &n)
	assert.Error(t, err)
}
