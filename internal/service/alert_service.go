package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	"github.com/noah-isme/eduplan-api/pkg/jobs"
)

// JobTypeUsageAlert identifies threshold alert jobs.
const JobTypeUsageAlert = "usage_alert"

type cooldownStore interface {
	Claim(ctx context.Context, userID, template string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID, template string) error
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// AlertService watches free-tier usage for the 80% and 100% thresholds and queues at most
// one notification per user and template per cooldown window.
type AlertService struct {
	cooldown    cooldownStore
	queue       jobEnqueuer
	metrics     *MetricsService
	logger      *zap.Logger
	cooldownTTL time.Duration
	now         func() time.Time
}

// NewAlertService constructs an AlertService.
func NewAlertService(cooldown cooldownStore, queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger, cooldownTTL time.Duration) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cooldownTTL <= 0 {
		cooldownTTL = 7 * 24 * time.Hour
	}
	return &AlertService{cooldown: cooldown, queue: queue, metrics: metrics, logger: logger, cooldownTTL: cooldownTTL, now: time.Now}
}

// Evaluate checks result, which must reflect usage after the operation, and queues an
// alert when a threshold was reached. Paid tiers and unlimited categories are ignored.
// Nothing here can fail the caller.
func (s *AlertService) Evaluate(ctx context.Context, profile *models.Profile, result usage.LimitCheckResult) {
	if profile == nil || usage.ResolveTier(string(profile.Tier)) != models.TierFree || result.Unlimited() {
		return
	}
	threshold := usage.CheckThresholds(result.CurrentUsage, result.Limit)
	if threshold.Reached == usage.ThresholdNone {
		return
	}

	template := threshold.Reached.Template()
	if !s.ShouldAlert(ctx, profile.ID, template) {
		return
	}

	payload := models.UsageAlertJob{
		Trigger: models.NotificationTrigger{
			Event:     threshold.Reached.Event(),
			UserID:    profile.ID,
			Timestamp: s.now().UTC(),
			Payload: models.ThresholdPayload{
				UsagePercent: threshold.UsagePercent,
				CurrentUsage: result.CurrentUsage,
				Limit:        int64(result.Limit),
				Tier:         result.Tier,
				Category:     result.Category,
			},
		},
		Template: template,
		Email:    profile.Email,
		FullName: profile.FullName,
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeUsageAlert, Payload: payload}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("usage alert dropped",
			zap.String("user_id", profile.ID),
			zap.String("template", template),
			zap.Error(err),
		)
		s.metrics.RecordAlert(template, "dropped")
		s.Release(ctx, profile.ID, template)
		return
	}
	s.logger.Info("usage alert queued",
		zap.String("user_id", profile.ID),
		zap.String("template", template),
		zap.Int("usage_percent", threshold.UsagePercent),
	)
}

// ShouldAlert claims the cooldown slot for (userID, template). A failing cooldown store
// lets the alert through.
func (s *AlertService) ShouldAlert(ctx context.Context, userID, template string) bool {
	claimed, err := s.cooldown.Claim(ctx, userID, template, s.cooldownTTL)
	if err != nil {
		s.logger.Warn("alert cooldown lookup failed, sending anyway",
			zap.String("user_id", userID),
			zap.String("template", template),
			zap.Error(err),
		)
		s.metrics.RecordFailOpen("cooldown")
		return true
	}
	return claimed
}

// Release frees the cooldown slot of an alert that was never delivered, so the next
// crossing of the threshold can alert again.
func (s *AlertService) Release(ctx context.Context, userID, template string) {
	if err := s.cooldown.Release(ctx, userID, template); err != nil {
		s.logger.Warn("failed to release alert cooldown",
			zap.String("user_id", userID),
			zap.String("template", template),
			zap.Error(err),
		)
	}
}
