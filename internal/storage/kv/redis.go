package kv

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
)

// RedisStore maps each collection to one redis hash
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. prefix is prepended to every
// collection name.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hashKey(collection string) string {
	return s.prefix + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	v, err := s.client.HGet(ctx, s.hashKey(collection), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return v, err
}

func (s *RedisStore) Put(ctx context.Context, collection, key string, value []byte) error {
	return s.client.HSet(ctx, s.hashKey(collection), key, value).Err()
}

func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	n, err := s.client.HDel(ctx, s.hashKey(collection), key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, collection string) ([][]byte, error) {
	vals, err := s.client.HVals(ctx, s.hashKey(collection)).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
