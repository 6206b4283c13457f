package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ Repo = (*RedisRepo)(nil)

// RedisRepo stores values in Redis under a common key prefix.
type RedisRepo struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisRepo)

// WithKeyPrefix namespaces every key, e.g. "apiclient:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisRepo) {
		r.prefix = prefix
	}
}

// WithTTL expires stored values after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepo) {
		r.ttl = ttl
	}
}

func NewRedisRepo(client redis.Cmdable, options ...RedisOption) *RedisRepo {
	r := &RedisRepo{client: client}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// DialRedis connects to addr and checks the connection with a ping.
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisRepo) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		log.Err(err).Str("key", key).Msg("Redis GET failed")
		return "", err
	}
	return val, nil
}

func (r *RedisRepo) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		log.Err(err).Str("key", key).Dur("ttl", r.ttl).Msg("Redis SET failed")
		return err
	}
	return nil
}

func (r *RedisRepo) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
