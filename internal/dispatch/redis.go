package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis stream sink. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Stream   string `mapstructure:"stream" yaml:"stream"`
	MaxLen   int64  `mapstructure:"max_len" yaml:"max_len"`
}

// DefaultRedisConfig returns a disabled sink config with the default stream.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Stream: "limbic:chains",
		MaxLen: 1000,
	}
}

// Enabled reports whether an address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// Validate checks the stream settings.
func (c RedisConfig) Validate() error {
	if c.Enabled() && c.Stream == "" {
		return fmt.Errorf("dispatch: redis stream name is required")
	}
	if c.MaxLen < 0 {
		return fmt.Errorf("dispatch: redis max_len must not be negative")
	}
	return nil
}

// RedisSink publishes descriptors to a Redis Stream with XADD.
type RedisSink struct {
	rdb *redis.Client
	cfg RedisConfig
}

// NewRedisSink connects and pings the server.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisSink{rdb: rdb, cfg: cfg}, nil
}

// Publish appends d to the stream, trimming it to roughly MaxLen entries.
func (s *RedisSink) Publish(ctx context.Context, d Descriptor) error {
	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: d.Values(),
	}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *RedisSink) Close() error { return s.rdb.Close() }
