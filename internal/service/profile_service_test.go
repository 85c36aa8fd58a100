package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/models"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	m.ttls[key] = ttl
	return nil
}

type profileRepoStub struct {
	profiles map[string]*models.Profile
	err      error
	calls    int
}

func (r *profileRepoStub) FindByID(_ context.Context, id string) (*models.Profile, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	profile, ok := r.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *profile
	return &copied, nil
}

func TestProfileServiceCachesLookups(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.Profile{"u1": freeProfile()}}
	store := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cacheSvc := NewCacheService(store, metrics, 0, nil, true)
	svc := NewProfileService(repo, cacheSvc, 30*time.Second, nil)

	first, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 30*time.Second, store.ttls[profileKey("u1")])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheMisses))

	delete(store.entries, profileKey("u1"))
	_, err = svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestProfileServiceFallsBackWhenCacheFails(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.Profile{"u1": freeProfile()}}
	store := newMemoryCacheRepo()
	store.getErr = errors.New("redis down")
	svc := NewProfileService(repo, NewCacheService(store, nil, 0, nil, true), 0, nil)

	profile, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.ID)
}

func TestProfileServiceWithoutCache(t *testing.T) {
	repo := &profileRepoStub{profiles: map[string]*models.Profile{"u1": freeProfile()}}
	svc := NewProfileService(repo, nil, 0, nil)

	_, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestProfileServiceErrors(t *testing.T) {
	svc := NewProfileService(&profileRepoStub{profiles: map[string]*models.Profile{}}, nil, 0, nil)
	_, err := svc.Get(context.Background(), "ghost")
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)

	svc = NewProfileService(&profileRepoStub{err: errors.New("db down")}, nil, 0, nil)
	_, err = svc.Get(context.Background(), "u1")
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCacheServiceDisabled(t *testing.T) {
	store := newMemoryCacheRepo()
	svc := NewCacheService(store, nil, 0, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	hit, err := svc.Get(context.Background(), "k", new(string))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, store.entries)
}
