package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type usageService interface {
	Summary(ctx context.Context, profile *models.Profile) (*dto.UsageSummaryResponse, error)
	Limits(profile *models.Profile) usage.TierLimits
}

// UsageHandler reports the caller's plan and monthly consumption.
type UsageHandler struct {
	service usageService
}

// NewUsageHandler constructs the handler.
func NewUsageHandler(service usageService) *UsageHandler {
	return &UsageHandler{service: service}
}

// Summary godoc
// @Summary Monthly usage per category
// @Tags Usage
// @Produce json
// @Param category query string false "Restrict the summary to one category"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /usage [get]
func (h *UsageHandler) Summary(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var only models.UsageCategory
	if raw := c.Query("category"); raw != "" {
		category, err := usage.ParseCategory(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown usage category"))
			return
		}
		only = category
	}
	summary, err := h.service.Summary(c.Request.Context(), profile)
	if err != nil {
		response.Error(c, err)
		return
	}
	if only != "" {
		filtered := *summary
		filtered.Categories = nil
		for _, entry := range summary.Categories {
			if entry.Category == string(only) {
				filtered.Categories = append(filtered.Categories, entry)
			}
		}
		summary = &filtered
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Me godoc
// @Summary Current profile and plan
// @Tags Usage
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me [get]
func (h *UsageHandler) Me(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	limits := h.service.Limits(profile)
	response.JSON(c, http.StatusOK, dto.MeResponse{
		ID:       profile.ID,
		Email:    profile.Email,
		FullName: profile.FullName,
		Role:     string(profile.Role),
		SchoolID: profile.SchoolID,
		Plan: dto.PlanView{
			Tier:           string(usage.ResolveTier(string(profile.Tier))),
			ModelClass:     string(limits.ModelClass),
			MaxUploadBytes: limits.MaxUploadBytes,
			ExportFormats:  limits.ExportFormats,
		},
	}, nil)
}
