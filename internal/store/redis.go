package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
)

// RedisStore keeps snapshots as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    Clock
}

func NewRedis(ctx context.Context, cfg config.RedisStoreConfig, now Clock) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 36 * time.Hour
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: ttl, now: now}, nil
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) key(name string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, name, r.now().Format("2006-01-02"))
}

func (r *RedisStore) Save(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	key := r.key(name)
	slog.Info("saving snapshot", "key", key)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, name string, v any) (bool, error) {
	key := r.key(name)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	slog.Info("reading snapshot", "key", key)
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
