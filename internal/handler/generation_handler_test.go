package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type generationServiceStub struct {
	result   usage.LimitCheckResult
	out      *service.GenerationResult
	err      error
	lastKind models.GenerationKind
	lastReq  dto.GenerateRequest
	called   bool
}

func (s *generationServiceStub) Generate(ctx context.Context, profile *models.Profile, kind models.GenerationKind, req dto.GenerateRequest) (*service.GenerationResult, usage.LimitCheckResult, error) {
	s.called = true
	s.lastKind = kind
	s.lastReq = req
	return s.out, s.result, s.err
}

func activitiesResult(current int64, limit usage.Limit) usage.LimitCheckResult {
	return usage.LimitCheckResult{
		Allowed:      int64(limit) > current || limit.IsUnlimited(),
		CurrentUsage: current,
		Limit:        limit,
		Tier:         models.TierFree,
		Category:     models.CategoryActivities,
	}
}

func TestGenerationHandlerSuccess(t *testing.T) {
	stub := &generationServiceStub{
		result: activitiesResult(4, 10),
		out:    &service.GenerationResult{Kind: models.KindQuiz, Model: "standard-model", Content: "1. What is 2+2?"},
	}
	handler := NewGenerationHandler(stub)

	c, rec := newTestContext(http.MethodPost, "/generate/quiz", strings.NewReader(`{"topic":"fractions"}`))
	c.Params = gin.Params{{Key: "kind", Value: "quiz"}}
	withProfile(c, educator(models.TierFree))

	handler.Generate(c)

	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, models.KindQuiz, stub.lastKind)
	assert.Equal(t, "fractions", stub.lastReq.Topic)
	assert.Equal(t, "10", rec.Header().Get(response.HeaderRateLimitLimit))
	assert.Equal(t, "6", rec.Header().Get(response.HeaderRateLimitRemaining))
	assert.NotEmpty(t, rec.Header().Get(response.HeaderRateLimitReset))

	envelope := decode(t, rec)
	assert.Equal(t, "quiz", envelope.Data["kind"])
	assert.Equal(t, "1. What is 2+2?", envelope.Data["content"])
	assert.Equal(t, "standard-model", envelope.Meta["model"])
	usageView := envelope.Data["usage"].(map[string]interface{})
	assert.Equal(t, "activities", usageView["category"])
	assert.EqualValues(t, 6, usageView["remaining"])
}

func TestGenerationHandlerUnlimitedHeaders(t *testing.T) {
	result := activitiesResult(40, usage.Unlimited)
	result.Tier = models.TierEnterprise
	stub := &generationServiceStub{
		result: result,
		out:    &service.GenerationResult{Kind: models.KindActivity, Model: "advanced-model", Content: "ok"},
	}
	c, rec := newTestContext(http.MethodPost, "/generate/activity", strings.NewReader(`{"topic":"rivers"}`))
	c.Params = gin.Params{{Key: "kind", Value: "activity"}}
	withProfile(c, educator(models.TierEnterprise))

	NewGenerationHandler(stub).Generate(c)

	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "unlimited", rec.Header().Get(response.HeaderRateLimitLimit))
	assert.Equal(t, "unlimited", rec.Header().Get(response.HeaderRateLimitRemaining))
	usageView := decode(t, rec).Data["usage"].(map[string]interface{})
	assert.Equal(t, true, usageView["unlimited"])
	assert.Nil(t, usageView["limit"])
}

func TestGenerationHandlerLimitExceeded(t *testing.T) {
	denied := activitiesResult(10, 10)
	stub := &generationServiceStub{result: denied, err: &service.LimitExceededError{Result: denied}}

	c, rec := newTestContext(http.MethodPost, "/generate/worksheet", strings.NewReader(`{"topic":"maps"}`))
	c.Params = gin.Params{{Key: "kind", Value: "worksheet"}}
	withProfile(c, educator(models.TierFree))

	NewGenerationHandler(stub).Generate(c)

	assertStatus(t, rec, http.StatusPaymentRequired)
	assert.Equal(t, "0", rec.Header().Get(response.HeaderRateLimitRemaining))

	var payload response.LimitPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "Usage limit exceeded", payload.Error)
	assert.Equal(t, "activities", payload.LimitType)
	assert.Equal(t, int64(10), payload.CurrentUsage)
	assert.Equal(t, int64(10), payload.Limit)
	assert.Equal(t, "free", payload.Tier)
}

func TestGenerationHandlerUpstreamFailure(t *testing.T) {
	stub := &generationServiceStub{
		result: activitiesResult(2, 10),
		err:    appErrors.Wrap(errors.New("529 overloaded"), appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "content generation failed"),
	}
	c, rec := newTestContext(http.MethodPost, "/generate/reading", strings.NewReader(`{"topic":"tides"}`))
	c.Params = gin.Params{{Key: "kind", Value: "reading"}}
	withProfile(c, educator(models.TierFree))

	NewGenerationHandler(stub).Generate(c)

	assertStatus(t, rec, http.StatusBadGateway)
	envelope := decode(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "content generation failed", envelope.Error.Message)
}

func TestGenerationHandlerRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		kind string
		body string
	}{
		{name: "unknown kind", kind: "poem", body: `{"topic":"x"}`},
		{name: "malformed body", kind: "quiz", body: `{"topic":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &generationServiceStub{}
			c, rec := newTestContext(http.MethodPost, "/generate/"+tc.kind, strings.NewReader(tc.body))
			c.Params = gin.Params{{Key: "kind", Value: tc.kind}}
			withProfile(c, educator(models.TierFree))

			NewGenerationHandler(stub).Generate(c)

			assertStatus(t, rec, http.StatusBadRequest)
			assert.False(t, stub.called)
		})
	}
}

func TestGenerationHandlerRequiresProfile(t *testing.T) {
	stub := &generationServiceStub{}
	c, rec := newTestContext(http.MethodPost, "/generate/quiz", strings.NewReader(`{"topic":"x"}`))
	c.Params = gin.Params{{Key: "kind", Value: "quiz"}}

	NewGenerationHandler(stub).Generate(c)

	assertStatus(t, rec, http.StatusUnauthorized)
	assert.False(t, stub.called)
}
