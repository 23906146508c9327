package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/internal/repository"
)

func TestCacheServiceRememberLoadsOnce(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(repository.NewCacheRepository(nil, nil), metrics, time.Minute, nil, true)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (interface{}, error) {
		calls++
		return models.CaptionLinks{Message: "https://mass"}, nil
	}

	var first, second models.CaptionLinks
	require.NoError(t, svc.Remember(ctx, "links:a", 0, &first, load))
	require.NoError(t, svc.Remember(ctx, "links:a", 0, &second, load))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "https://mass", second.Message)
	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
}

func TestCacheServiceDoesNotCacheFailures(t *testing.T) {
	svc := NewCacheService(repository.NewCacheRepository(nil, nil), nil, time.Minute, nil, true)
	ctx := context.Background()

	boom := errors.New("hook down")
	var links models.CaptionLinks
	err := svc.Remember(ctx, "links:b", 0, &links, func(context.Context) (interface{}, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	require.NoError(t, svc.Remember(ctx, "links:b", 0, &links, func(context.Context) (interface{}, error) {
		return models.CaptionLinks{Image: "https://img"}, nil
	}))
	assert.Equal(t, "https://img", links.Image)
}

func TestCacheServiceDisabledCallsThrough(t *testing.T) {
	svc := NewCacheService(repository.NewCacheRepository(nil, nil), nil, time.Minute, nil, false)

	calls := 0
	var links models.CaptionLinks
	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Remember(context.Background(), "links:c", 0, &links, func(context.Context) (interface{}, error) {
			calls++
			return models.CaptionLinks{}, nil
		}))
	}
	assert.Equal(t, 2, calls)
}
