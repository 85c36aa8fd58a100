package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/middleware"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type generationService interface {
	Generate(ctx context.Context, profile *models.Profile, kind models.GenerationKind, req dto.GenerateRequest) (*service.GenerationResult, usage.LimitCheckResult, error)
}

// GenerationHandler exposes metered content generation.
type GenerationHandler struct {
	service generationService
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(service generationService) *GenerationHandler {
	return &GenerationHandler{service: service}
}

// Generate godoc
// @Summary Generate teaching material
// @Description Runs one metered generation. Responds 402 with the limit payload when the monthly allowance of the kind's category is used up.
// @Tags Generation
// @Accept json
// @Produce json
// @Param kind path string true "Generation kind" Enums(lesson-plan, activity, worksheet, quiz, reading, slides, assessment)
// @Param payload body dto.GenerateRequest true "Generation request"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.LimitPayload
// @Router /generate/{kind} [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	kind, err := usage.ParseKind(c.Param("kind"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid generation payload"))
		return
	}

	out, result, err := h.service.Generate(c.Request.Context(), profile, kind, req)
	if err != nil {
		meteredError(c, result, err)
		return
	}
	setRateLimit(c, result)
	middleware.SetMeta(c, "model", out.Model)
	response.JSON(c, http.StatusOK, dto.GenerateResponse{
		Kind:    string(out.Kind),
		Model:   out.Model,
		Content: out.Content,
		Usage:   service.UsageStatus(result),
	}, nil, middleware.ExtractMeta(c))
}
