package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/models"
)

func TestAlertClaimWins(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlertRepository(db)

	mock.ExpectExec("INSERT INTO usage_alert_cooldowns").
		WithArgs("u1", "usage_threshold_80", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Claim(context.Background(), "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertClaimHeld(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlertRepository(db)

	mock.ExpectExec("INSERT INTO usage_alert_cooldowns").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Claim(context.Background(), "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordAlert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlertRepository(db)

	mock.ExpectExec("INSERT INTO usage_alerts").WillReturnResult(sqlmock.NewResult(1, 1))

	alert := &models.UsageAlert{UserID: "u1", Template: "usage_threshold_100", UsagePercent: 100}
	require.NoError(t, repo.Record(context.Background(), alert))
	assert.NotEmpty(t, alert.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCooldownClaimIsExclusivePerTemplate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewCooldownRepository(client)
	ctx := context.Background()

	ok, err := repo.Claim(ctx, "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Claim(ctx, "u1", "usage_threshold_100", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = repo.Claim(ctx, "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCooldownClaimRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	repo := NewCooldownRepository(client)
	mr.Close()

	_, err := repo.Claim(context.Background(), "u1", "usage_threshold_80", time.Hour)
	assert.Error(t, err)
}

func TestAlertReleaseDeletesSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlertRepository(db)

	mock.ExpectExec("DELETE FROM usage_alert_cooldowns").
		WithArgs("u1", "usage_threshold_80").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Release(context.Background(), "u1", "usage_threshold_80"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCooldownReleaseReopensSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewCooldownRepository(client)
	ctx := context.Background()

	ok, err := repo.Claim(ctx, "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Release(ctx, "u1", "usage_threshold_80"))
	assert.False(t, mr.Exists("eduplan:alert-cooldown:u1:usage_threshold_80"))

	ok, err = repo.Claim(ctx, "u1", "usage_threshold_80", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
