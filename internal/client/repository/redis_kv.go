package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	shared "github.com/charadev96/wtclient/internal/shared/domain"
)

const redisKeyPrefix = "wtclient"

// RedisKVStore stores each blob as a string value and tracks the keys of a
// namespace in a companion set so List does not need SCAN.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func OpenRedisKVStore(ctx context.Context, addr string, db int) (*RedisKVStore, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisKVStore{client: client}, nil
}

func (s *RedisKVStore) Close() error {
	return s.client.Close()
}

func (s *RedisKVStore) Read(ctx context.Context, primaryNS, secondaryNS, key string) ([]byte, error) {
	buf, err := s.client.Get(ctx, redisValueKey(primaryNS, secondaryNS, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = shared.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read '%s': %w", key, err)
	}
	return buf, nil
}

func (s *RedisKVStore) Write(ctx context.Context, primaryNS, secondaryNS, key string, buf []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisValueKey(primaryNS, secondaryNS, key), buf, 0)
		pipe.SAdd(ctx, redisIndexKey(primaryNS, secondaryNS), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return nil
}

func (s *RedisKVStore) WriteIfAbsent(ctx context.Context, primaryNS, secondaryNS, key string, buf []byte) (bool, error) {
	var created *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, redisValueKey(primaryNS, secondaryNS, key), buf, 0)
		pipe.SAdd(ctx, redisIndexKey(primaryNS, secondaryNS), key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to write '%s': %w", key, err)
	}
	return created.Val(), nil
}

func (s *RedisKVStore) Remove(ctx context.Context, primaryNS, secondaryNS, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisValueKey(primaryNS, secondaryNS, key))
		pipe.SRem(ctx, redisIndexKey(primaryNS, secondaryNS), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove '%s': %w", key, err)
	}
	return nil
}

func (s *RedisKVStore) List(ctx context.Context, primaryNS, secondaryNS string) ([]string, error) {
	keys, err := s.client.SMembers(ctx, redisIndexKey(primaryNS, secondaryNS)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func redisValueKey(primaryNS, secondaryNS, key string) string {
	return fmt.Sprintf("%s:%s:%s:v:%s", redisKeyPrefix, primaryNS, secondaryNS, key)
}

func redisIndexKey(primaryNS, secondaryNS string) string {
	return fmt.Sprintf("%s:%s:%s:keys", redisKeyPrefix, primaryNS, secondaryNS)
}
