package cache

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	defer c.Close()
	assert.False(t, c.Redis())

	ctx := context.Background()
	var got payload
	assert.False(t, c.Get(ctx, SnapshotKey, &got))

	require.NoError(t, c.Set(ctx, SnapshotKey, payload{ID: "a", Count: 3}, time.Minute))
	require.True(t, c.Get(ctx, SnapshotKey, &got))
	assert.Equal(t, payload{ID: "a", Count: 3}, got)
	assert.NoError(t, c.Ping(ctx))
}

func TestMemoryCacheExpires(t *testing.T) {
	c, err := New(Config{DefaultTTL: time.Minute})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", payload{ID: "x"}, 0))

	now = now.Add(59 * time.Second)
	var got payload
	assert.True(t, c.Get(ctx, "k", &got))

	now = now.Add(2 * time.Second)
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestGetRejectsMismatchedShape(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []int{1, 2}, time.Minute))

	var got payload
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	_, err := New(Config{RedisURL: "mysql://nope"})
	assert.Error(t, err)
}

func TestRedisUnavailableIsAMiss(t *testing.T) {
	// grab a free port and release it so nothing is listening
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c, err := New(Config{RedisURL: "redis://" + addr + "/0"})
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.Redis())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got payload
	assert.False(t, c.Get(ctx, SnapshotKey, &got))
	assert.Error(t, c.Set(ctx, SnapshotKey, payload{ID: "x"}, time.Minute))
	assert.Error(t, c.Ping(ctx))
}
