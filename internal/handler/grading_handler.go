package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type gradingService interface {
	RequestGrading(ctx context.Context, profile *models.Profile, submissionID string) (*models.Submission, usage.LimitCheckResult, error)
	Result(ctx context.Context, profile *models.Profile, submissionID string) (*dto.GradingResultResponse, error)
	Override(ctx context.Context, profile *models.Profile, submissionID string, req dto.OverrideRequest) (*models.QuestionOverride, error)
}

// GradingHandler triggers AI grading and records teacher overrides.
type GradingHandler struct {
	service gradingService
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service gradingService) *GradingHandler {
	return &GradingHandler{service: service}
}

// Grade godoc
// @Summary Queue a submission for grading
// @Description Grading runs asynchronously; poll the result endpoint. Counts against the assessment allowance once graded.
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 202 {object} response.Envelope
// @Failure 402 {object} response.LimitPayload
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *GradingHandler) Grade(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	submission, result, err := h.service.RequestGrading(c.Request.Context(), profile, c.Param("id"))
	if err != nil {
		meteredError(c, result, err)
		return
	}
	setRateLimit(c, result)
	response.Accepted(c, dto.GradingAcceptedResponse{
		SubmissionID: submission.ID,
		Status:       string(submission.Status),
		Usage:        service.UsageStatus(result),
	})
}

// Result godoc
// @Summary Graded result with effective scores
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/result [get]
func (h *GradingHandler) Result(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Result(c.Request.Context(), profile, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Override godoc
// @Summary Override the score of one question
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.OverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /submissions/{id}/overrides [post]
func (h *GradingHandler) Override(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid override payload"))
		return
	}
	override, err := h.service.Override(c.Request.Context(), profile, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, override)
}
