package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// KeyValueStore - плоское хранилище ключ-значение, поверх которого лежит коллекция отчетов.
// Get возвращает nil, nil, если ключ еще ни разу не записывался.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RedisKV хранит значения в Redis. Нулевой ttl - без срока жизни.
type RedisKV struct {
	redisClient *redis.Client
	ttl         time.Duration
}

func NewRedisKV(redisClient *redis.Client) *RedisKV {
	return &RedisKV{redisClient: redisClient}
}

// NewExpiringRedisKV - то же хранилище, но каждая запись живет ttl (кэш адресов)
func NewExpiringRedisKV(redisClient *redis.Client, ttl time.Duration) *RedisKV {
	return &RedisKV{redisClient: redisClient, ttl: ttl}
}

func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %q from redis: %w", key, err)
	}
	return val, nil
}

func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redisClient.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %q in redis: %w", key, err)
	}
	return nil
}

// PostgresKV хранит значения в таблице kv_store (см. migrations/)
type PostgresKV struct {
	db *pgxpool.Pool
}

func NewPostgresKV(db *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{db: db}
}

func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1;`, key).Scan(&val)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %q from postgres: %w", key, err)
	}
	return val, nil
}

func (s *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW();
	`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set key %q in postgres: %w", key, err)
	}
	return nil
}
