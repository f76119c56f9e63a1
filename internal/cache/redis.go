package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/models"
)

// keyPrefix scopes Clear to this service's keys on a shared Redis.
const keyPrefix = "newsletter:"

type RedisCache struct {
	client redis.UniversalClient
	tracer trace.Tracer
}

func NewRedisCache(client redis.UniversalClient, tp trace.TracerProvider) *RedisCache {
	return &RedisCache{
		client: client,
		tracer: tp.Tracer("cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.Subscriber, error) {
	ctx, span := c.tracer.Start(ctx, "cache.get",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("operation", "cache.read"),
			attribute.String("cache.backend", "redis"),
		))
	defer span.End()

	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("cache.result", "miss"),
		)
		return nil, ErrCacheMiss
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var subscriber models.Subscriber
	if err := json.Unmarshal(raw, &subscriber); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("decode cached subscriber: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.String("cache.result", "hit"),
		attribute.String("subscriber.id", subscriber.ID.String()),
	)
	return &subscriber, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, subscriber *models.Subscriber, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "cache.set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("operation", "cache.write"),
			attribute.String("cache.backend", "redis"),
			attribute.String("ttl", ttl.String()),
		))
	defer span.End()

	data, err := json.Marshal(subscriber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode subscriber: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.tracer.Start(ctx, "cache.delete",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("operation", "cache.write"),
			attribute.String("cache.backend", "redis"),
		))
	defer span.End()

	n, err := c.client.Del(ctx, keyPrefix+key).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	span.SetAttributes(
		attribute.Bool("key.existed", n > 0),
		attribute.Bool("success", true),
	)
	return nil
}

// Clear removes every key under keyPrefix using SCAN, never KEYS.
func (c *RedisCache) Clear(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "cache.clear",
		trace.WithAttributes(
			attribute.String("operation", "cache.write"),
			attribute.String("cache.backend", "redis"),
		))
	defer span.End()

	var cleared int
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
		cleared++
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis scan: %w", err)
	}

	span.SetAttributes(
		attribute.Int("items.cleared", cleared),
		attribute.Bool("success", true),
	)
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
