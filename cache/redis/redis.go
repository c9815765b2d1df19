// Package redis implements a cache.Cache on Redis.
//
// Each entry is a hash holding the value and its write time, stored under
// "<prefix>:<key>". RemoveAll scans the prefix, so several clients can share
// one database.
//
//	c, err := redis.New(redis.Config{Addr: "localhost:6379"}, log)
//	defer c.Close()
package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/restkit/cache"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/module"
)

const (
	fieldValue    = "v"
	fieldStoredAt = "t"
	scanBatch     = 256
)

func init() {
	cache.RegisterFactory(cache.ProviderRedis, func(cfg cache.Config, deps cache.Deps) (cache.Cache, error) {
		return New(Config{
			Addr:      cfg.Addr,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		}, deps.Logger)
	})
}

// Cache is a Redis-backed cache.Cache.
type Cache struct {
	rdb    *goredis.Client
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
	mu     sync.Mutex
	closed bool
}

var (
	_ cache.Cache   = (*Cache)(nil)
	_ module.Module = (*Cache)(nil)
)

// New creates a cache connected to cfg.Addr. The connection is established
// lazily; Start verifies it.
func New(cfg Config, log *logger.Logger) (*Cache, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return NewFromClient(rdb, cfg, log), nil
}

// NewFromClient wraps an existing go-redis client. The cache takes ownership
// of rdb and closes it on Close.
func NewFromClient(rdb *goredis.Client, cfg Config, log *logger.Logger) *Cache {
	cfg.ApplyDefaults()
	c := &Cache{
		rdb: rdb,
		cfg: cfg,
		log: logger.OrGlobal(log).WithComponent("cache.redis"),
		now: time.Now,
	}
	c.log.Info("Redis cache created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"prefix", cfg.KeyPrefix,
	))
	return c
}

func (c *Cache) key(k string) string {
	return c.cfg.KeyPrefix + ":" + k
}

// Get returns the entry of key.
func (c *Cache) Get(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool, error) {
	vals, err := c.rdb.HMGet(ctx, c.key(key), fieldValue, fieldStoredAt).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, false, nil
	}
	value, _ := vals[0].(string)
	storedRaw, _ := vals[1].(string)
	nanos, err := strconv.ParseInt(storedRaw, 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: bad timestamp: %w", key, err)
	}
	if cache.Expired(time.Unix(0, nanos), c.now(), maxAge) {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

// Set stores the entry of key, applying the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	k := c.key(key)
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, k, fieldValue, value, fieldStoredAt, strconv.FormatInt(c.now().UnixNano(), 10))
		if c.cfg.TTL > 0 {
			pipe.Expire(ctx, k, c.cfg.TTL)
		} else {
			pipe.Persist(ctx, k)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Remove deletes the entry of key.
func (c *Cache) Remove(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	return nil
}

// RemoveAll deletes every key under the prefix.
func (c *Cache) RemoveAll(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, c.cfg.KeyPrefix+":*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	var removed int
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear: %w", err)
			}
			removed += len(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	if len(batch) > 0 {
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
		removed += len(batch)
	}
	c.log.Debug("redis cache cleared", logger.Fields("removed", removed))
	return nil
}

// Ping verifies the Redis connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", pong)
	}
	return nil
}

// Close closes the Redis connection. Safe to call multiple times.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.log.Info("Closing Redis connection")
	c.closed = true
	if err := c.rdb.Close(); err != nil && !stderrors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

// Unwrap returns the underlying go-redis client for advanced operations.
func (c *Cache) Unwrap() *goredis.Client {
	return c.rdb
}

// Name implements module.Module.
func (c *Cache) Name() string { return "cache.redis" }

// Start verifies connectivity.
func (c *Cache) Start(ctx context.Context) error {
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	c.log.Info("Redis cache started")
	return nil
}

// Stop closes the connection.
func (c *Cache) Stop(context.Context) error {
	return c.Close()
}

// Health returns the current health status of the Redis connection.
func (c *Cache) Health(ctx context.Context) module.Health {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return module.Health{Name: c.Name(), Status: module.StatusUnhealthy, Message: "redis connection closed"}
	}
	if err := c.Ping(ctx); err != nil {
		return module.Health{Name: c.Name(), Status: module.StatusUnhealthy, Message: err.Error()}
	}
	return module.Health{Name: c.Name(), Status: module.StatusHealthy}
}
