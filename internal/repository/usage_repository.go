package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// UsageRepository is the append-only usage ledger.
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new instance of UsageRepository.
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// CountSuccessful counts successful events of the given kinds in [from, to).
func (r *UsageRepository) CountSuccessful(ctx context.Context, userID string, kinds []models.GenerationKind, from, to time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM usage_events WHERE user_id = $1 AND success = TRUE AND generation_kind = ANY($2) AND created_at >= $3 AND created_at < $4`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, userID, pq.Array(kindStrings(kinds)), from, to); err != nil {
		return 0, fmt.Errorf("count usage events: %w", err)
	}
	return count, nil
}

// CountByKind aggregates successful events per kind in [from, to).
func (r *UsageRepository) CountByKind(ctx context.Context, userID string, from, to time.Time) ([]models.KindCount, error) {
	const query = `SELECT generation_kind, COUNT(*) AS count FROM usage_events WHERE user_id = $1 AND success = TRUE AND created_at >= $2 AND created_at < $3 GROUP BY generation_kind`
	var counts []models.KindCount
	if err := r.db.SelectContext(ctx, &counts, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("count usage by kind: %w", err)
	}
	return counts, nil
}

// Record appends a usage event. Events are never updated or deleted.
func (r *UsageRepository) Record(ctx context.Context, event *models.UsageEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Metadata) == 0 {
		event.Metadata = []byte(`{}`)
	}
	const query = `INSERT INTO usage_events (id, user_id, generation_kind, category, tier, success, metadata, created_at) VALUES (:id, :user_id, :generation_kind, :category, :tier, :success, :metadata, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("record usage event: %w", err)
	}
	return nil
}

func kindStrings(kinds []models.GenerationKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
