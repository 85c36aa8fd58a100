package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// GradingRepository stores grading results and the override history.
type GradingRepository struct {
	db *sqlx.DB
}

// NewGradingRepository creates a new instance of GradingRepository.
func NewGradingRepository(db *sqlx.DB) *GradingRepository {
	return &GradingRepository{db: db}
}

// SaveResult stores the grading result of a submission, replacing an earlier attempt.
func (r *GradingRepository) SaveResult(ctx context.Context, record *models.GradingRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grading_results (id, submission_id, result, model, created_at) VALUES (:id, :submission_id, :result, :model, :created_at)
ON CONFLICT (submission_id) DO UPDATE SET result = EXCLUDED.result, model = EXCLUDED.model, created_at = EXCLUDED.created_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("save grading result: %w", err)
	}
	return nil
}

// FindResult returns the stored grading result of a submission.
func (r *GradingRepository) FindResult(ctx context.Context, submissionID string) (*models.GradingRecord, error) {
	const query = `SELECT id, submission_id, result, model, created_at FROM grading_results WHERE submission_id = $1 LIMIT 1`
	var record models.GradingRecord
	if err := r.db.GetContext(ctx, &record, query, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grading result: %w", err)
	}
	return &record, nil
}

// CreateOverride appends an override row. Existing rows are never modified.
func (r *GradingRepository) CreateOverride(ctx context.Context, submissionID string, override *models.QuestionOverride) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	if override.CreatedAt.IsZero() {
		override.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grading_overrides (id, submission_id, question_number, original_score, override_score, reason, created_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, query, override.ID, submissionID, override.QuestionNumber, override.OriginalScore, override.OverrideScore, override.Reason, override.CreatedBy, override.CreatedAt); err != nil {
		return fmt.Errorf("create grading override: %w", err)
	}
	return nil
}

// ListOverrides returns every override of a submission, oldest first.
func (r *GradingRepository) ListOverrides(ctx context.Context, submissionID string) ([]models.QuestionOverride, error) {
	const query = `SELECT id, question_number, original_score, override_score, reason, created_by, created_at FROM grading_overrides WHERE submission_id = $1 ORDER BY created_at ASC, id ASC`
	var overrides []models.QuestionOverride
	if err := r.db.SelectContext(ctx, &overrides, query, submissionID); err != nil {
		return nil, fmt.Errorf("list grading overrides: %w", err)
	}
	return overrides, nil
}
