package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/models"
)

func TestSubmissionFindByIDJoinsExam(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "exam_id", "owner_id", "school_id", "student_name", "file_name", "file_path", "content_type", "size_bytes", "status", "error_message", "created_at", "updated_at", "graded_at"}).
		AddRow("s1", "e1", "u1", "school-1", "Ana", "ana.png", "submissions/s1.png", "image/png", 1024, "pending", nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions s JOIN exams e ON e.id = s.exam_id WHERE s.id = $1 LIMIT 1")).
		WithArgs("s1").
		WillReturnRows(rows)

	submission, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", submission.OwnerID)
	assert.Equal(t, models.SubmissionPending, submission.Status)
	assert.Nil(t, submission.GradedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionCreateDefaultsToPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec("INSERT INTO submissions").WillReturnResult(sqlmock.NewResult(1, 1))

	submission := &models.Submission{ExamID: "e1", FileName: "ana.png"}
	require.NoError(t, repo.Create(context.Background(), submission))
	assert.Equal(t, models.SubmissionPending, submission.Status)
	assert.NotEmpty(t, submission.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionTransitionGuardsState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $2")).
		WithArgs("s1", models.SubmissionProcessing, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET status = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Transition(context.Background(), "s1", []models.SubmissionStatus{models.SubmissionPending}, models.SubmissionProcessing, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(context.Background(), "s1", []models.SubmissionStatus{models.SubmissionPending}, models.SubmissionProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
