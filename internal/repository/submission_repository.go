package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/eduplan-api/internal/models"
)

const submissionSelect = `SELECT s.id, s.exam_id, e.owner_id, e.school_id, s.student_name, s.file_name, s.file_path, s.content_type, s.size_bytes, s.status, s.error_message, s.created_at, s.updated_at, s.graded_at FROM submissions s JOIN exams e ON e.id = s.exam_id`

// SubmissionRepository provides database access for submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new instance of SubmissionRepository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// FindByID returns a submission together with the owner and school of its exam.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := submissionSelect + ` WHERE s.id = $1 LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find submission by id: %w", err)
	}
	return &submission, nil
}

// ListByExam returns the submissions of an exam, newest first.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID string) ([]models.Submission, error) {
	query := submissionSelect + ` WHERE s.exam_id = $1 ORDER BY s.created_at DESC`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, examID); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// Create inserts a new submission in pending state.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	if submission.Status == "" {
		submission.Status = models.SubmissionPending
	}

	const query = `INSERT INTO submissions (id, exam_id, student_name, file_name, file_path, content_type, size_bytes, status, created_at, updated_at) VALUES (:id, :exam_id, :student_name, :file_name, :file_path, :content_type, :size_bytes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// Transition moves a submission to status `to` only when its current status is one of
// `from`. It reports whether the row was updated.
func (r *SubmissionRepository) Transition(ctx context.Context, id string, from []models.SubmissionStatus, to models.SubmissionStatus, errorMessage *string) (bool, error) {
	now := time.Now().UTC()
	var gradedAt *time.Time
	if to == models.SubmissionGraded {
		gradedAt = &now
	}
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	const query = `UPDATE submissions SET status = $2, error_message = $3, graded_at = COALESCE($4, graded_at), updated_at = $5 WHERE id = $1 AND status = ANY($6)`
	res, err := r.db.ExecContext(ctx, query, id, to, errorMessage, gradedAt, now, pq.Array(states))
	if err != nil {
		return false, fmt.Errorf("transition submission: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition submission rows: %w", err)
	}
	return affected == 1, nil
}
