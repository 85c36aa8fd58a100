package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

type usageServiceStub struct {
	summary *dto.UsageSummaryResponse
	err     error
	table   *usage.Table
}

func (s *usageServiceStub) Summary(ctx context.Context, profile *models.Profile) (*dto.UsageSummaryResponse, error) {
	return s.summary, s.err
}

func (s *usageServiceStub) Limits(profile *models.Profile) usage.TierLimits {
	return s.table.Limits(profile.Tier)
}

func TestUsageHandlerSummary(t *testing.T) {
	limit, remaining := int64(10), int64(2)
	stub := &usageServiceStub{summary: &dto.UsageSummaryResponse{
		Tier:        "free",
		PeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ResetsAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Categories: []dto.CategoryUsage{
			{Category: "activities", Used: 8, Limit: &limit, Remaining: &remaining, UsagePercent: 80},
		},
	}}
	c, rec := newTestContext(http.MethodGet, "/usage", nil)
	withProfile(c, educator(models.TierFree))

	NewUsageHandler(stub).Summary(c)

	assertStatus(t, rec, http.StatusOK)
	envelope := decode(t, rec)
	assert.Equal(t, "free", envelope.Data["tier"])
	assert.Equal(t, "2024-06-01T00:00:00Z", envelope.Data["resets_at"])
	categories := envelope.Data["categories"].([]interface{})
	require.Len(t, categories, 1)
	assert.EqualValues(t, 80, categories[0].(map[string]interface{})["usage_percent"])
}

func TestUsageHandlerSummaryLookupFailure(t *testing.T) {
	stub := &usageServiceStub{err: appErrors.Wrap(errors.New("db down"), appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "usage lookup failed")}
	c, rec := newTestContext(http.MethodGet, "/usage", nil)
	withProfile(c, educator(models.TierFree))

	NewUsageHandler(stub).Summary(c)

	assertStatus(t, rec, http.StatusServiceUnavailable)
}

func TestUsageHandlerMe(t *testing.T) {
	stub := &usageServiceStub{table: usage.DefaultTable()}
	c, rec := newTestContext(http.MethodGet, "/me", nil)
	withProfile(c, educator(models.TierPremium))

	NewUsageHandler(stub).Me(c)

	assertStatus(t, rec, http.StatusOK)
	envelope := decode(t, rec)
	assert.Equal(t, "u1", envelope.Data["id"])
	assert.Equal(t, "educator", envelope.Data["role"])
	assert.Equal(t, "school-1", envelope.Data["school_id"])
	plan := envelope.Data["plan"].(map[string]interface{})
	assert.Equal(t, "premium", plan["tier"])
	assert.Equal(t, "advanced", plan["model_class"])
	assert.Contains(t, plan["export_formats"], "csv")
}

func TestUsageHandlerMeUnknownTierFallsBackToFree(t *testing.T) {
	profile := educator("platinum")
	stub := &usageServiceStub{table: usage.DefaultTable()}
	c, rec := newTestContext(http.MethodGet, "/me", nil)
	withProfile(c, profile)

	NewUsageHandler(stub).Me(c)

	assertStatus(t, rec, http.StatusOK)
	plan := decode(t, rec).Data["plan"].(map[string]interface{})
	assert.Equal(t, "free", plan["tier"])
	assert.Equal(t, "standard", plan["model_class"])
}

func TestUsageHandlerRequiresProfile(t *testing.T) {
	handler := NewUsageHandler(&usageServiceStub{table: usage.DefaultTable()})

	c, rec := newTestContext(http.MethodGet, "/me", nil)
	handler.Me(c)
	assertStatus(t, rec, http.StatusUnauthorized)

	c, rec = newTestContext(http.MethodGet, "/usage", nil)
	handler.Summary(c)
	assertStatus(t, rec, http.StatusUnauthorized)
}

func TestUsageHandlerSummaryCategoryFilter(t *testing.T) {
	stub := &usageServiceStub{summary: &dto.UsageSummaryResponse{
		Tier: "free",
		Categories: []dto.CategoryUsage{
			{Category: "activities", Used: 8},
			{Category: "assessments", Used: 1},
		},
	}}
	c, rec := newTestContext(http.MethodGet, "/usage?category=Assessments", nil)
	withProfile(c, educator(models.TierFree))

	NewUsageHandler(stub).Summary(c)

	assertStatus(t, rec, http.StatusOK)
	categories := decode(t, rec).Data["categories"].([]interface{})
	require.Len(t, categories, 1)
	assert.Equal(t, "assessments", categories[0].(map[string]interface{})["category"])
	assert.Len(t, stub.summary.Categories, 2)
}

func TestUsageHandlerSummaryRejectsUnknownCategory(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/usage?category=videos", nil)
	withProfile(c, educator(models.TierFree))

	NewUsageHandler(&usageServiceStub{}).Summary(c)

	assertStatus(t, rec, http.StatusBadRequest)
	envelope := decode(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
}
