package leads

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &Session{Step: 1, Answers: map[string]string{"full_name": "Олена"}}
	require.NoError(t, store.Put(ctx, 1, s))
	s.Answers["phone"] = "mutated"

	got, ok, err := store.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, got.Answers, "phone")

	got.Step = 9
	again, _, _ := store.Get(ctx, 1)
	assert.Equal(t, 1, again.Step)

	require.NoError(t, store.Delete(ctx, 1))
	_, ok, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, time.Hour)

	_, ok, err := store.Get(ctx, 77)
	require.NoError(t, err)
	assert.False(t, ok)

	started := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, 77, &Session{Step: 1, Answers: map[string]string{"full_name": "Олена"}, StartedAt: started}))

	got, ok, err := store.Get(ctx, 77)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, got.Step)
	assert.Equal(t, "Олена", got.Answers["full_name"])
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, time.Hour, mr.TTL("cozybot:lead:77"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = store.Get(ctx, 77)
	require.NoError(t, err)
	assert.False(t, ok, "session expires after the ttl")

	require.NoError(t, store.Put(ctx, 77, &Session{}))
	require.NoError(t, store.Delete(ctx, 77))
	assert.False(t, mr.Exists("cozybot:lead:77"))
}

func TestRedisStoreErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, 0)

	require.NoError(t, mr.Set("cozybot:lead:5", "{not json"))
	_, _, err := store.Get(context.Background(), 5)
	assert.ErrorContains(t, err, "decode session")

	mr.Close()
	_, _, err = store.Get(context.Background(), 5)
	assert.ErrorContains(t, err, "get session")
}
