package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

type usageRepository interface {
	CountSuccessful(ctx context.Context, userID string, kinds []models.GenerationKind, from, to time.Time) (int64, error)
	CountByKind(ctx context.Context, userID string, from, to time.Time) ([]models.KindCount, error)
	Record(ctx context.Context, event *models.UsageEvent) error
}

type thresholdEvaluator interface {
	Evaluate(ctx context.Context, profile *models.Profile, result usage.LimitCheckResult)
}

// UsageLookupError wraps a failure to count the ledger. Callers decide whether it fails
// open or closed.
type UsageLookupError struct {
	Err error
}

func (e *UsageLookupError) Error() string {
	return fmt.Sprintf("usage lookup failed: %v", e.Err)
}

func (e *UsageLookupError) Unwrap() error {
	return e.Err
}

// LimitExceededError is returned by Guard when the caller's allowance is used up.
type LimitExceededError struct {
	Result usage.LimitCheckResult
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("usage limit exceeded for %s (%d/%s, tier %s)", e.Result.Category, e.Result.CurrentUsage, e.Result.Limit, e.Result.Tier)
}

// Operation is a metered unit of work. The returned metadata is stored on the usage event.
type Operation func(ctx context.Context) (map[string]interface{}, error)

// UsageConfig tunes the usage service.
type UsageConfig struct {
	FailOpen bool
}

// UsageService meters billable operations against the tier table.
type UsageService struct {
	repo    usageRepository
	gate    *usage.Gate
	alerts  thresholdEvaluator
	metrics *MetricsService
	logger  *zap.Logger
	cfg     UsageConfig
	now     func() time.Time
}

// NewUsageService constructs a UsageService. alerts and metrics may be nil.
func NewUsageService(repo usageRepository, gate *usage.Gate, alerts thresholdEvaluator, metrics *MetricsService, logger *zap.Logger, cfg UsageConfig) *UsageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = usage.NewGate(nil)
	}
	return &UsageService{repo: repo, gate: gate, alerts: alerts, metrics: metrics, logger: logger, cfg: cfg, now: time.Now}
}

// Limits returns the tier limits of profile.
func (s *UsageService) Limits(profile *models.Profile) usage.TierLimits {
	return s.gate.Table().Limits(profile.Tier)
}

// CheckLimit counts the caller's successful events of category in the current month and
// asks the gate whether one more fits. Unlimited categories skip the count.
func (s *UsageService) CheckLimit(ctx context.Context, profile *models.Profile, category models.UsageCategory) (usage.LimitCheckResult, error) {
	tier := usage.ResolveTier(string(profile.Tier))
	if s.gate.Table().Limit(tier, category).IsUnlimited() {
		return s.gate.Check(tier, category, 0), nil
	}

	now := s.now().UTC()
	start, _ := usage.PeriodBounds(now)
	began := time.Now()
	count, err := s.repo.CountSuccessful(ctx, profile.ID, usage.KindsOf(category), start, now)
	s.metrics.ObserveDBQuery("usage_count", time.Since(began))
	if err != nil {
		return usage.LimitCheckResult{
			Limit:    s.gate.Table().Limit(tier, category),
			Tier:     tier,
			Category: category,
		}, &UsageLookupError{Err: err}
	}
	return s.gate.Check(tier, category, count), nil
}

// Authorize applies the failure policy on top of CheckLimit. A lookup failure is allowed
// through when fail-open is on and rejected with 503 otherwise. A denial is reported
// through result.Allowed, not as an error.
func (s *UsageService) Authorize(ctx context.Context, profile *models.Profile, category models.UsageCategory) (usage.LimitCheckResult, error) {
	result, err := s.CheckLimit(ctx, profile, category)
	var lookupErr *UsageLookupError
	if errors.As(err, &lookupErr) {
		if !s.cfg.FailOpen {
			s.logger.Error("usage lookup failed, denying request",
				zap.String("user_id", profile.ID),
				zap.String("category", string(category)),
				zap.Error(err),
			)
			return result, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "usage tracking unavailable")
		}
		s.logger.Warn("usage lookup failed, allowing request",
			zap.String("user_id", profile.ID),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		s.metrics.RecordFailOpen("usage")
		result.Allowed = true
		result.CountUnknown = true
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if !result.Allowed {
		s.metrics.RecordLimitDenied(category, result.Tier)
	}
	return result, nil
}

// RecordUsage appends a successful event for kind. Write failures are logged and counted
// but never surface to the caller: the operation has already succeeded.
func (s *UsageService) RecordUsage(ctx context.Context, profile *models.Profile, kind models.GenerationKind, metadata map[string]interface{}) {
	event := &models.UsageEvent{
		UserID:   profile.ID,
		Kind:     kind,
		Category: usage.CategoryOf(kind),
		Tier:     usage.ResolveTier(string(profile.Tier)),
		Success:  true,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Warn("usage metadata dropped", zap.Error(err))
		} else {
			event.Metadata = raw
		}
	}
	if err := s.repo.Record(ctx, event); err != nil {
		s.logger.Error("failed to record usage",
			zap.String("user_id", profile.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		s.metrics.RecordUsageWriteFailure(kind)
	}
}

// Guard runs op when the caller's allowance for kind has room and records exactly one
// event when op succeeds. A denial returns *LimitExceededError without running op; an op
// error is returned as is and nothing is recorded. The returned result reflects usage
// after the operation.
//
// The count and the record are not atomic: concurrent requests may each pass the check
// and overshoot the limit by the number of in-flight requests.
func (s *UsageService) Guard(ctx context.Context, profile *models.Profile, kind models.GenerationKind, op Operation) (usage.LimitCheckResult, error) {
	category := usage.CategoryOf(kind)
	result, err := s.Authorize(ctx, profile, category)
	if err != nil {
		return result, err
	}
	if !result.Allowed {
		s.metrics.RecordGeneration(category, OutcomeDenied)
		return result, &LimitExceededError{Result: result}
	}

	metadata, err := op(ctx)
	if err != nil {
		s.metrics.RecordGeneration(category, OutcomeFailed)
		return result, err
	}

	s.RecordUsage(ctx, profile, kind, metadata)
	s.metrics.RecordGeneration(category, OutcomeSuccess)

	after := result
	if after.CountUnknown {
		return after, nil
	}
	after.CurrentUsage++
	s.evaluate(ctx, profile, after)
	return after, nil
}

// Settle records a successful event for work that was authorized earlier and finished
// asynchronously, then evaluates thresholds against a fresh count.
func (s *UsageService) Settle(ctx context.Context, profile *models.Profile, kind models.GenerationKind, metadata map[string]interface{}) {
	category := usage.CategoryOf(kind)
	s.RecordUsage(ctx, profile, kind, metadata)
	s.metrics.RecordGeneration(category, OutcomeSuccess)

	result, err := s.CheckLimit(ctx, profile, category)
	if err != nil {
		s.logger.Warn("threshold evaluation skipped", zap.String("user_id", profile.ID), zap.Error(err))
		return
	}
	s.evaluate(ctx, profile, result)
}

// Summary reports the caller's usage for every category in the current month.
func (s *UsageService) Summary(ctx context.Context, profile *models.Profile) (*dto.UsageSummaryResponse, error) {
	now := s.now().UTC()
	start, end := usage.PeriodBounds(now)
	counts, err := s.repo.CountByKind(ctx, profile.ID, start, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load usage")
	}

	used := make(map[models.UsageCategory]int64, len(usage.Categories))
	for _, kc := range counts {
		category := usage.CategoryOf(kc.Kind)
		if category == "" {
			continue
		}
		used[category] += kc.Count
	}

	tier := usage.ResolveTier(string(profile.Tier))
	summary := &dto.UsageSummaryResponse{Tier: string(tier), PeriodStart: start, ResetsAt: end}
	for _, category := range usage.Categories {
		result := s.gate.Check(tier, category, used[category])
		row := dto.CategoryUsage{Category: string(category), Used: used[category]}
		if result.Unlimited() {
			row.Unlimited = true
		} else {
			limit := int64(result.Limit)
			remaining := result.Remaining()
			row.Limit = &limit
			row.Remaining = &remaining
			row.UsagePercent = usage.CheckThresholds(used[category], result.Limit).UsagePercent
		}
		summary.Categories = append(summary.Categories, row)
	}
	return summary, nil
}

func (s *UsageService) evaluate(ctx context.Context, profile *models.Profile, result usage.LimitCheckResult) {
	if s.alerts == nil {
		return
	}
	s.alerts.Evaluate(ctx, profile, result)
}

// UsageStatus converts a check result into its response shape.
func UsageStatus(result usage.LimitCheckResult) dto.UsageStatus {
	status := dto.UsageStatus{
		Category:     string(result.Category),
		CurrentUsage: result.CurrentUsage,
		Unlimited:    result.Unlimited(),
	}
	if !status.Unlimited {
		limit := int64(result.Limit)
		status.Limit = &limit
		if !result.CountUnknown {
			remaining := result.Remaining()
			status.Remaining = &remaining
		}
	}
	return status
}
