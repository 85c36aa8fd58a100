package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/models"
)

func TestCountSuccessful(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageRepository(db)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(10 * 24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM usage_events WHERE user_id = $1 AND success = TRUE AND generation_kind = ANY($2) AND created_at >= $3 AND created_at < $4")).
		WithArgs("u1", sqlmock.AnyArg(), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountSuccessful(context.Background(), "u1", []models.GenerationKind{models.KindQuiz, models.KindActivity}, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountSuccessfulError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageRepository(db)

	mock.ExpectQuery("FROM usage_events").WillReturnError(errors.New("connection reset"))

	_, err := repo.CountSuccessful(context.Background(), "u1", []models.GenerationKind{models.KindQuiz}, time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count usage events")
}

func TestCountByKind(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageRepository(db)

	rows := sqlmock.NewRows([]string{"generation_kind", "count"}).
		AddRow("quiz", 2).
		AddRow("lesson-plan", 1)
	mock.ExpectQuery("GROUP BY generation_kind").WillReturnRows(rows)

	counts, err := repo.CountByKind(context.Background(), "u1", time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.KindQuiz, counts[0].Kind)
	assert.Equal(t, int64(2), counts[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUsageEvent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUsageRepository(db)

	mock.ExpectExec("INSERT INTO usage_events").WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.UsageEvent{UserID: "u1", Kind: models.KindQuiz, Category: models.CategoryActivities, Tier: models.TierFree, Success: true}
	require.NoError(t, repo.Record(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.JSONEq(t, `{}`, string(event.Metadata))
	assert.NoError(t, mock.ExpectationsWereMet())
}
