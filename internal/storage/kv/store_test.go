package kv

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the shared Store contract against s
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	col := "test:" + uuid.NewString()

	require.NoError(t, s.Ping(ctx))

	_, err := s.Get(ctx, col, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, s.Delete(ctx, col, "a"), ErrKeyNotFound)

	vals, err := s.List(ctx, col)
	require.NoError(t, err)
	assert.Empty(t, vals)

	require.NoError(t, s.Put(ctx, col, "a", []byte("one")))
	require.NoError(t, s.Put(ctx, col, "b", []byte("two")))
	require.NoError(t, s.Put(ctx, col, "a", []byte("uno")))

	v, err := s.Get(ctx, col, "a")
	require.NoError(t, err)
	assert.Equal(t, "uno", string(v))

	vals, err = s.List(ctx, col)
	require.NoError(t, err)
	got := make([]string, len(vals))
	for i, v := range vals {
		got[i] = string(v)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"two", "uno"}, got)

	// collections are isolated
	other, err := s.List(ctx, col+":other")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, s.Delete(ctx, col, "a"))
	_, err = s.Get(ctx, col, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, s.Delete(ctx, col, "b"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	buf := []byte("abc")
	require.NoError(t, s.Put(ctx, "c", "k", buf))
	buf[0] = 'x'

	v, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))

	v[0] = 'y'
	again, _ := s.Get(ctx, "c", "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStore_ConcurrentWritersLastWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Put(ctx, "c", "k", []byte(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	v, err := s.Get(ctx, "c", "k")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestMemoryStore_PingHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewMemoryStore().Ping(ctx))
}

// Runs only when a redis instance is available
func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	exerciseStore(t, NewRedisStore(client, "crm-test:"))
}
