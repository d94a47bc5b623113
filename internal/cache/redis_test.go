package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceKey(t *testing.T) {
	assert.Equal(t, "steamguard:deviceid:76561198000000000", deviceKey("76561198000000000"))
}

func TestNewClient(t *testing.T) {
	c, err := newClient("redis://:secret@localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	assert.Equal(t, "secret", c.Options().Password)

	c, err = newClient("127.0.0.1:6379")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", c.Options().Addr)

	_, err = newClient("")
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}

func newTestStore(t *testing.T) (*RedisDeviceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeviceStore(client), mr
}

func TestRedisDeviceStore_LoadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.Load(context.Background(), "76561198000000000")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestRedisDeviceStore_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Save(ctx, "76561198000000000", "android:first"))
	require.NoError(t, s.Save(ctx, "76561198000000000", "android:first"))
	require.NoError(t, s.Save(ctx, "76561198000000000", "android:second"))

	id, err := s.Load(ctx, "76561198000000000")
	require.NoError(t, err)
	assert.Equal(t, "android:first", id)

	stored, err := mr.Get("steamguard:deviceid:76561198000000000")
	require.NoError(t, err)
	assert.Equal(t, "android:first", stored)
	assert.Zero(t, mr.TTL("steamguard:deviceid:76561198000000000"))
}

func TestRedisDeviceStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Save(ctx, "76561198000000000", "android:first"))
	require.NoError(t, s.Save(ctx, "76561198000000001", "android:other"))
	require.NoError(t, s.Delete(ctx, "76561198000000000"))
	require.NoError(t, s.Delete(ctx, "76561198000000000"))
	assert.False(t, mr.Exists("steamguard:deviceid:76561198000000000"))

	id, err := s.Load(ctx, "76561198000000001")
	require.NoError(t, err)
	assert.Equal(t, "android:other", id)

	require.NoError(t, s.Save(ctx, "76561198000000000", "android:new"))
	id, err = s.Load(ctx, "76561198000000000")
	require.NoError(t, err)
	assert.Equal(t, "android:new", id)
}

func TestRedisDeviceStore_ServerDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()
	_, err := s.Load(context.Background(), "76561198000000000")
	assert.Error(t, err)
}
