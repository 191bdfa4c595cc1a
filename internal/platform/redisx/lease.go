// Package redisx holds the redis client and the lease used to keep scheduled
// sweeps single-flight across replicas.
package redisx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Lease grants exclusive, expiring ownership of a key.
type Lease interface {
	// Acquire returns ok=false when another holder owns key. release is safe to
	// call more than once and never removes a lease taken over by someone else.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// LocalLease always grants; used when redis is not configured.
type LocalLease struct{}

func (LocalLease) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

type redisLease struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewClient dials redis and pings it. An empty Addr returns (nil, nil).
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewLease returns a redis-backed lease, or LocalLease when rdb is nil.
func NewLease(log *logger.Logger, rdb *goredis.Client, prefix string) Lease {
	if rdb == nil {
		return LocalLease{}
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "sc:lease:"
	}
	return &redisLease{log: log.With("service", "RedisLease"), rdb: rdb, prefix: prefix}
}

func (l *redisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease acquire %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.release(full, key, token) })
	}, true, nil
}

func (l *redisLease) release(full, key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Err(); err != nil && err != goredis.Nil {
		l.log.Warn("lease release failed", "key", key, "error", err)
	}
}
