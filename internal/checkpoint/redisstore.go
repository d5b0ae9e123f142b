package checkpoint

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "exportsched:checkpoint:"

// RedisStore keeps one set per run key.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to the redis:// or rediss:// URL and pings it.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Completed(ctx context.Context, runKey string) ([]string, error) {
	if err := checkKey(runKey); err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, redisKeyPrefix+runKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *RedisStore) MarkCompleted(ctx context.Context, runKey, id string) error {
	if err := checkKey(runKey); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, redisKeyPrefix+runKey, id).Err(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, runKey string) error {
	if err := checkKey(runKey); err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisKeyPrefix+runKey).Err(); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
