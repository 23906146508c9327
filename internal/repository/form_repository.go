package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/cache"
)

// FormRepository keeps the add-student form of each chat for a limited time.
type FormRepository struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[int64]localForm
	now   func() time.Time
}

type localForm struct {
	state   models.FormState
	expires time.Time
}

// NewFormRepository constructs the repository; client may be nil.
func NewFormRepository(client *redis.Client, ttl time.Duration) *FormRepository {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &FormRepository{client: client, ttl: ttl, local: make(map[int64]localForm), now: time.Now}
}

func formKey(chatID int64) string {
	return cache.Key("form", fmt.Sprintf("%d", chatID))
}

// Get returns the chat's form, or nil when there is none.
func (r *FormRepository) Get(ctx context.Context, chatID int64) (*models.FormState, error) {
	if r.client != nil {
		raw, err := r.client.Get(ctx, formKey(chatID)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, fmt.Errorf("redis get form: %w", err)
		}
		var state models.FormState
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("unmarshal form: %w", err)
		}
		return &state, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.local[chatID]
	if !ok {
		return nil, nil
	}
	if !r.now().Before(f.expires) {
		delete(r.local, chatID)
		return nil, nil
	}
	state := f.state
	return &state, nil
}

// Save stores the form and restarts its TTL.
func (r *FormRepository) Save(ctx context.Context, state models.FormState) error {
	if r.client != nil {
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshal form: %w", err)
		}
		if err := r.client.Set(ctx, formKey(state.ChatID), payload, r.ttl).Err(); err != nil {
			return fmt.Errorf("redis set form: %w", err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[state.ChatID] = localForm{state: state, expires: r.now().Add(r.ttl)}
	return nil
}

// Delete drops the chat's form.
func (r *FormRepository) Delete(ctx context.Context, chatID int64) error {
	if r.client != nil {
		if err := r.client.Del(ctx, formKey(chatID)).Err(); err != nil {
			return fmt.Errorf("redis delete form: %w", err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.local, chatID)
	return nil
}
