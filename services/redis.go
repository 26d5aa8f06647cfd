package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"blogview/config"
)

const SESSION_KEY_PREFIX = "blogview:session:"

var RedisClient *redis.Client

func InitRedis() error {
	if config.AppConfig == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}

	redisConfig := config.AppConfig.Redis
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	_, err := RedisClient.Ping(context.Background()).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// RedisSessionBackend keeps view states as JSON strings with a sliding TTL.
type RedisSessionBackend struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionBackend(client *redis.Client, ttl time.Duration) *RedisSessionBackend {
	return &RedisSessionBackend{client: client, ttl: ttl}
}

func (b *RedisSessionBackend) key(id string) string {
	return SESSION_KEY_PREFIX + id
}

func (b *RedisSessionBackend) Load(ctx context.Context, id string) (*ViewState, error) {
	val, err := b.client.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var state ViewState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if state.Posts == nil {
		state.Posts = NewViewState().Posts
	}
	return &state, nil
}

func (b *RedisSessionBackend) Save(ctx context.Context, id string, state ViewState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return b.client.Set(ctx, b.key(id), data, b.ttl).Err()
}

func (b *RedisSessionBackend) Delete(ctx context.Context, id string) error {
	return b.client.Del(ctx, b.key(id)).Err()
}
