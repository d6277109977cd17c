package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reserve-snapshot/internal/config"
	"github.com/reserve-snapshot/internal/errors"
)

// NewRedisClient creates a Redis client and confirms it answers
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewConnectionError("redis "+addr, fmt.Errorf("failed to connect to Redis: %w", err))
	}

	return client, nil
}

// releaseScript deletes the lock only if this owner still holds it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock prevents two generator processes from producing the same report date
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRunLock creates a run lock. The ttl bounds how long a crashed run can
// block the date.
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{client: client, ttl: ttl, prefix: "por:run-lock:"}
}

// Acquire takes the lock for reportDate or returns a lock error if another
// run holds it. The returned release func is safe to call more than once.
func (l *RunLock) Acquire(ctx context.Context, reportDate string) (func(context.Context) error, error) {
	key := l.prefix + reportDate
	owner := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, errors.NewConnectionError("redis run lock", err)
	}
	if !ok {
		return nil, errors.NewLockHeldError(reportDate)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil {
			return fmt.Errorf("failed to release run lock: %w", err)
		}
		return nil
	}
	return release, nil
}
