package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abushana-oss/mithran-sub003/internal/domain/entity"
	"github.com/abushana-oss/mithran-sub003/internal/domain/repository"
)

const keyPrefix = "calculator:"

// redisCache implements repository.CalculatorCache on Redis, storing each
// definition as JSON under calculator:<id>.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisCache creates a Redis-backed calculator cache
func NewRedisCache(client *redis.Client, ttl time.Duration) repository.CalculatorCache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, id uuid.UUID) (*entity.Calculator, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached calculator: %w", err)
	}

	var calc entity.Calculator
	if err := sonic.Unmarshal(data, &calc); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached calculator: %w", err)
	}
	return &calc, true, nil
}

func (c *redisCache) Set(ctx context.Context, calc *entity.Calculator) error {
	data, err := sonic.Marshal(calc)
	if err != nil {
		return fmt.Errorf("failed to encode calculator: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+calc.ID.String(), data, c.ttl).Err()
}

func (c *redisCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, keyPrefix+id.String()).Err()
}
