package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "booklending:lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every instance connected to the same Redis.
type RedisLocker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLocker connects to Redis and verifies the connection
func NewRedisLocker(ctx context.Context, addr, password string, logger *zap.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisLocker{client: client, logger: logger}, nil
}

// Acquire implements Locker using SET NX PX with a random token
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	var setErr error
	release, err := poll(ctx, key, func() (func(), bool) {
		ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			setErr = err
			return nil, true
		}
		if !ok {
			return nil, false
		}

		var once sync.Once
		return func() {
			once.Do(func() {
				// release must work even when the caller's context is already done
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
					l.logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
				}
			})
		}, true
	})
	if err != nil {
		return nil, err
	}
	if setErr != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, setErr)
	}
	return release, nil
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
