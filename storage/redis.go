package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/guardian-recovery/interfaces"
)

const defaultRedisPrefix = "recovery:"

// RedisBackend stores records as plain Redis strings under a key prefix.
type RedisBackend struct {
	client      *redis.Client
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewRedisBackend connects to addr and verifies the connection with PING.
func NewRedisBackend(addr, password string, db int, prefix string, log *slog.Logger) (*RedisBackend, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis storage backend initialized",
		slog.String("addr", addr),
		slog.Int("db", db),
		slog.String("key_prefix", prefix))

	return NewRedisBackendWithClient(client, prefix, log), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client, prefix string, log *slog.Logger) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	opts := client.Options()
	return &RedisBackend{
		client:      client,
		prefix:      prefix,
		log:         log,
		locationURI: fmt.Sprintf("redis://%s/%d?prefix=%s", opts.Addr, opts.DB, prefix),
	}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (b *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Available(ctx context.Context) bool {
	if err := b.client.Ping(ctx).Err(); err != nil {
		b.log.Warn("Redis backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *RedisBackend) Name() string {
	return fmt.Sprintf("redis-%s", b.client.Options().Addr)
}

func (b *RedisBackend) LocationURI() string {
	return b.locationURI
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
