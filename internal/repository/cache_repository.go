package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

// CacheRepository keeps JSON payloads, such as theme caption links, under namespaced keys.
// Without a Redis client values live in process memory.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]cachedValue
	now   func() time.Time
}

type cachedValue struct {
	payload []byte
	expires time.Time
}

// NewCacheRepository constructs the repository; client may be nil.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger, local: make(map[string]cachedValue), now: time.Now}
}

// Get decodes the value under key into dest, or returns ErrCacheMiss.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.load(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Debug("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value under key for ttl.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if r.client != nil {
		if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", key, err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[key] = cachedValue{payload: payload, expires: r.now().Add(ttl)}
	return nil
}

func (r *CacheRepository) load(ctx context.Context, key string) ([]byte, error) {
	if r.client != nil {
		raw, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", key, err)
		}
		return raw, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.local[key]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	if !r.now().Before(v.expires) {
		delete(r.local, key)
		return nil, appErrors.ErrCacheMiss
	}
	return v.payload, nil
}
