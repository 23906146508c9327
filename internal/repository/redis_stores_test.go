package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/models"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

func TestLockRepositoryLocalExclusive(t *testing.T) {
	repo := NewLockRepository(nil)
	ctx := context.Background()

	token, ok, err := repo.Acquire(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = repo.Acquire(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Release(ctx, "lock:a", "someone-else"))
	_, ok, _ = repo.Acquire(ctx, "lock:a", time.Minute)
	assert.False(t, ok)

	require.NoError(t, repo.Release(ctx, "lock:a", token))
	_, ok, _ = repo.Acquire(ctx, "lock:a", time.Minute)
	assert.True(t, ok)
}

func TestLockRepositoryLocalExpiry(t *testing.T) {
	repo := NewLockRepository(nil)
	now := time.Now()
	repo.now = func() time.Time { return now }

	_, ok, _ := repo.Acquire(context.Background(), "lock:b", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = repo.Acquire(context.Background(), "lock:b", time.Second)
	assert.True(t, ok)
}

func TestFormRepositoryLocalLifecycle(t *testing.T) {
	repo := NewFormRepository(nil, time.Minute)
	now := time.Now()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	state, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, repo.Save(ctx, models.FormState{ChatID: 5, Step: models.FormStepName, Mode: models.ModeFirstPass}))
	state, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.FormStepName, state.Step)

	now = now.Add(2 * time.Minute)
	state, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, repo.Save(ctx, models.FormState{ChatID: 6}))
	require.NoError(t, repo.Delete(ctx, 6))
	state, _ = repo.Get(ctx, 6)
	assert.Nil(t, state)
}

func TestCacheRepositoryLocalExpiry(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	now := time.Now()
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	var links models.CaptionLinks
	require.ErrorIs(t, repo.Get(ctx, "roster:links:m1:Осень", &links), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "roster:links:m1:Осень", models.CaptionLinks{Message: "https://m", Image: "https://p"}, time.Hour))
	require.NoError(t, repo.Get(ctx, "roster:links:m1:Осень", &links))
	assert.Equal(t, "https://m", links.Message)

	now = now.Add(2 * time.Hour)
	assert.ErrorIs(t, repo.Get(ctx, "roster:links:m1:Осень", &links), appErrors.ErrCacheMiss)
}
