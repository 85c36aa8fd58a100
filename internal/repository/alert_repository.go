package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// AlertRepository keeps the threshold alert log and, when Redis is not available, the
// per-template cooldown slots.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new instance of AlertRepository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Claim takes the cooldown slot for (userID, template) when it is free or expired. The
// upsert only rewrites an expired row, so concurrent claims yield a single winner.
func (r *AlertRepository) Claim(ctx context.Context, userID, template string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO usage_alert_cooldowns (user_id, template, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id, template) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE usage_alert_cooldowns.expires_at <= $4`
	res, err := r.db.ExecContext(ctx, query, userID, template, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("claim alert cooldown: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim alert cooldown rows: %w", err)
	}
	return affected == 1, nil
}

// Release drops the cooldown slot for (userID, template).
func (r *AlertRepository) Release(ctx context.Context, userID, template string) error {
	const query = `DELETE FROM usage_alert_cooldowns WHERE user_id = $1 AND template = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, template); err != nil {
		return fmt.Errorf("release alert cooldown: %w", err)
	}
	return nil
}

// Record stores a delivered alert.
func (r *AlertRepository) Record(ctx context.Context, alert *models.UsageAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.SentAt.IsZero() {
		alert.SentAt = time.Now().UTC()
	}
	const query = `INSERT INTO usage_alerts (id, user_id, template, category, usage_percent, sent_at) VALUES (:id, :user_id, :template, :category, :usage_percent, :sent_at)`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("record usage alert: %w", err)
	}
	return nil
}
