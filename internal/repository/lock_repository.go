package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// LockRepository hands out short-lived exclusive locks. With Redis they are shared across
// replicas; without it they only cover this process.
type LockRepository struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]localLock
	now   func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

// NewLockRepository constructs the repository; client may be nil.
func NewLockRepository(client *redis.Client) *LockRepository {
	return &LockRepository{client: client, local: make(map[string]localLock), now: time.Now}
}

// Acquire takes key for ttl. ok is false when someone else holds it.
func (r *LockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	if r.client != nil {
		ok, err = r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if !ok {
			return "", false, nil
		}
		return token, true, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if held, exists := r.local[key]; exists && now.Before(held.expires) {
		return "", false, nil
	}
	r.local[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

// Release frees key if token still owns it.
func (r *LockRepository) Release(ctx context.Context, key, token string) error {
	if r.client != nil {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if held, exists := r.local[key]; exists && held.token == token {
		delete(r.local, key)
	}
	return nil
}
