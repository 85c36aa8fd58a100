package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/pkg/email"
	"github.com/noah-isme/eduplan-api/pkg/jobs"
	"github.com/noah-isme/eduplan-api/pkg/retry"
)

type webhookPoster interface {
	Enabled() bool
	Post(ctx context.Context, payload interface{}) error
}

type cooldownReleaser interface {
	Release(ctx context.Context, userID, template string)
}

type alertLog interface {
	Record(ctx context.Context, alert *models.UsageAlert) error
}

var categoryLabels = map[models.UsageCategory]string{
	models.CategoryLessonPlans: "lesson plans",
	models.CategoryActivities:  "activities",
	models.CategoryAssessments: "assessments",
	models.CategoryFileUploads: "file uploads",
}

// NotificationService delivers queued usage alerts to the automation webhook and by e-mail.
type NotificationService struct {
	webhook  webhookPoster
	mailer   email.Sender
	alerts   alertLog
	cooldown cooldownReleaser
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(webhook webhookPoster, mailer email.Sender, alerts alertLog, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = email.NoopSender{}
	}
	return &NotificationService{webhook: webhook, mailer: mailer, alerts: alerts, metrics: metrics, logger: logger}
}

// SetCooldown attaches the alert service whose cooldown slot is freed when an alert could
// not be delivered on any channel.
func (s *NotificationService) SetCooldown(cooldown cooldownReleaser) {
	s.cooldown = cooldown
}

// Handle is the queue handler for usage alert jobs. Each channel already retries on its
// own; the job fails only when every channel failed.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	alert, ok := job.Payload.(models.UsageAlertJob)
	if !ok {
		return retry.Permanent(fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID))
	}
	log := s.logger.With(
		zap.String("job_id", job.ID),
		zap.String("user_id", alert.Trigger.UserID),
		zap.String("template", alert.Template),
	)

	delivered := false
	var lastErr error

	if s.webhook != nil && s.webhook.Enabled() {
		if err := s.webhook.Post(ctx, alert.Trigger); err != nil {
			log.Warn("usage alert webhook failed", zap.Error(err))
			lastErr = err
		} else {
			delivered = true
		}
	}

	if alert.Email != "" {
		if err := s.mailer.Send(ctx, alertEmail(alert)); err != nil {
			log.Warn("usage alert email failed", zap.Error(err))
			lastErr = err
		} else {
			delivered = true
		}
	}

	if !delivered {
		s.metrics.RecordAlert(alert.Template, "failed")
		if s.cooldown != nil {
			s.cooldown.Release(ctx, alert.Trigger.UserID, alert.Template)
		}
		if lastErr == nil {
			return retry.Permanent(fmt.Errorf("no delivery channel for alert %s", job.ID))
		}
		return retry.Permanent(fmt.Errorf("deliver usage alert: %w", lastErr))
	}

	s.metrics.RecordAlert(alert.Template, "sent")
	if s.alerts != nil {
		record := &models.UsageAlert{
			UserID:       alert.Trigger.UserID,
			Template:     alert.Template,
			Category:     alert.Trigger.Payload.Category,
			UsagePercent: alert.Trigger.Payload.UsagePercent,
			SentAt:       alert.Trigger.Timestamp,
		}
		if err := s.alerts.Record(ctx, record); err != nil {
			log.Warn("failed to record usage alert", zap.Error(err))
		}
	}
	log.Info("usage alert delivered")
	return nil
}

func alertEmail(alert models.UsageAlertJob) email.Message {
	p := alert.Trigger.Payload
	label := categoryLabels[p.Category]
	if label == "" {
		label = "generations"
	}

	subject := fmt.Sprintf("You've used %d%% of your monthly %s", p.UsagePercent, label)
	if alert.Trigger.Event == models.EventUsageThreshold100 {
		subject = fmt.Sprintf("You've reached your monthly %s limit", label)
	}

	name := alert.FullName
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s,\n\nYou have used %d of %d %s included in the %s plan this month (%d%%).\n"+
		"Your allowance resets at the start of next month. Upgrade to Premium for higher limits.\n",
		name, p.CurrentUsage, p.Limit, label, p.Tier, p.UsagePercent)

	return email.Message{
		ToName:   alert.FullName,
		ToEmail:  alert.Email,
		Subject:  subject,
		Text:     text,
		Template: alert.Template,
	}
}
