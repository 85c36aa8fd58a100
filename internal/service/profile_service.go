package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/pkg/cache"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

type profileCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ProfileService resolves the caller's profile (role, school, tier) with a short-lived cache.
type ProfileService struct {
	repo   profileRepository
	cache  profileCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewProfileService constructs a ProfileService. cache may be nil.
func NewProfileService(repo profileRepository, cache profileCache, ttl time.Duration, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ProfileService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Get returns the profile of userID.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	key := profileKey(userID)
	if s.cache != nil {
		var cached models.Profile
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, nil
		}
	}

	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "profile not provisioned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, profile, s.ttl); err != nil {
			s.logger.Debug("profile cache write skipped", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return profile, nil
}

func profileKey(userID string) string {
	return cache.Key("profile", userID)
}
