package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const statKeyPrefix = "lms:objstat:"

// KV: то немногое из redis, что нужно кэшу метаданных.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

var errCacheMiss = errors.New("cache miss")

type RedisKV struct{ rdb *redis.Client }

func NewRedisKV(rdb *redis.Client) *RedisKV { return &RedisKV{rdb: rdb} }

func (k *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := k.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return b, err
}

func (k *RedisKV) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return k.rdb.Set(ctx, key, val, ttl).Err()
}

func (k *RedisKV) Del(ctx context.Context, key string) error {
	return k.rdb.Del(ctx, key).Err()
}

// CachedObjects кэширует Stat в redis. Ошибки кэша не ломают запрос:
// пишем в лог и идём в хранилище.
type CachedObjects struct {
	Objects
	kv  KV
	ttl time.Duration
	log *zap.Logger
}

func WithStatCache(next Objects, kv KV, ttl time.Duration, log *zap.Logger) *CachedObjects {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedObjects{Objects: next, kv: kv, ttl: ttl, log: log}
}

func (c *CachedObjects) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	ck := statKeyPrefix + key
	if b, err := c.kv.Get(ctx, ck); err == nil {
		var info ObjectInfo
		if err := json.Unmarshal(b, &info); err == nil {
			return info, nil
		}
	} else if !errors.Is(err, errCacheMiss) {
		c.log.Warn("stat cache get failed", zap.String("key", key), zap.Error(err))
	}

	info, err := c.Objects.Stat(ctx, key)
	if err != nil {
		return info, err
	}
	if b, err := json.Marshal(info); err == nil {
		if err := c.kv.Set(ctx, ck, b, c.ttl); err != nil {
			c.log.Warn("stat cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return info, nil
}

func (c *CachedObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := c.Objects.Put(ctx, key, r, size, contentType); err != nil {
		return err
	}
	if err := c.kv.Del(ctx, statKeyPrefix+key); err != nil {
		c.log.Warn("stat cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}
