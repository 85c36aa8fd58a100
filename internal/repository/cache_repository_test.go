package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/models"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheRepositoryRoundTrip(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	profile := &models.Profile{ID: "u1", Email: "a@example.com", Tier: models.TierPremium}
	require.NoError(t, repo.Set(ctx, "eduplan:profile:u1", profile, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("eduplan:profile:u1"))

	var cached models.Profile
	require.NoError(t, repo.Get(ctx, "eduplan:profile:u1", &cached))
	assert.Equal(t, models.TierPremium, cached.Tier)

	mr.FastForward(time.Minute + time.Second)
	assert.ErrorIs(t, repo.Get(ctx, "eduplan:profile:u1", &cached), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDropsUndecodableSnapshot(t *testing.T) {
	repo, mr := newCacheRepo(t)
	require.NoError(t, mr.Set("eduplan:profile:u1", "not-json"))

	var cached models.Profile
	err := repo.Get(context.Background(), "eduplan:profile:u1", &cached)
	assert.ErrorIs(t, err, appErrors.ErrCacheMiss)
	assert.False(t, mr.Exists("eduplan:profile:u1"))
}

func TestCacheRepositoryReportsOutage(t *testing.T) {
	repo, mr := newCacheRepo(t)
	mr.Close()

	var cached models.Profile
	err := repo.Get(context.Background(), "eduplan:profile:u1", &cached)
	require.Error(t, err)
	assert.NotErrorIs(t, err, appErrors.ErrCacheMiss)
}
