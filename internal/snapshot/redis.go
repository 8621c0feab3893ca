package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string        `yaml:"addr" validate:"required"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"tradegate"`
	TTL      time.Duration `yaml:"ttl"`
}

// RedisStore keeps the snapshot JSON under <prefix>:snapshot:<instance>.
type RedisStore struct {
	cli *redis.Client
	key string
	ttl time.Duration
}

func NewRedisStore(cfg RedisConfig, instance string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &RedisStore{cli: rdb, key: Key(cfg.Prefix, instance), ttl: cfg.TTL}
}

func Key(prefix, instance string) string {
	if prefix == "" {
		prefix = "tradegate"
	}
	return prefix + ":snapshot:" + instance
}

func (r *RedisStore) Save(ctx context.Context, s *Snapshot) error {
	bs, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.cli.Set(ctx, r.key, bs, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	bs, err := r.cli.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return load(bs, r.key)
}

func (r *RedisStore) Close() error {
	return r.cli.Close()
}
