package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding identity -> last request seconds.
const DefaultRedisKey = "catbot:rate_limits"

// RedisConfig describes how to reach the Redis server backing RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisStore keeps the limits in a single Redis hash.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

func (rs *RedisStore) key() string {
	if rs.Key == "" {
		return DefaultRedisKey
	}
	return rs.Key
}

func (rs *RedisStore) Load(ctx context.Context) (map[string]float64, error) {
	raw, err := rs.Client.HGetAll(ctx, rs.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", rs.key(), err)
	}
	limits := make(map[string]float64, len(raw))
	for id, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse rate limit %s=%q: %w", id, v, err)
		}
		limits[id] = f
	}
	return limits, nil
}

// Save replaces the hash atomically with MULTI/EXEC.
func (rs *RedisStore) Save(ctx context.Context, limits map[string]float64) error {
	_, err := rs.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rs.key())
		if len(limits) > 0 {
			values := make(map[string]any, len(limits))
			for id, last := range limits {
				values[id] = strconv.FormatFloat(last, 'f', -1, 64)
			}
			pipe.HSet(ctx, rs.key(), values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save rate limits: %w", err)
	}
	return nil
}

func (rs *RedisStore) Ping(ctx context.Context) error { return rs.Client.Ping(ctx).Err() }
