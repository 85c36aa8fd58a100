package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type examService interface {
	Create(ctx context.Context, profile *models.Profile, req dto.CreateExamRequest) (*models.Exam, error)
	Get(ctx context.Context, profile *models.Profile, id string) (*models.Exam, error)
	List(ctx context.Context, profile *models.Profile, query dto.ListExamsQuery) ([]models.Exam, *models.Pagination, error)
	Delete(ctx context.Context, profile *models.Profile, id string) error
}

// ExamHandler manages exams.
type ExamHandler struct {
	service examService
}

// NewExamHandler constructs the handler.
func NewExamHandler(service examService) *ExamHandler {
	return &ExamHandler{service: service}
}

// Create godoc
// @Summary Create exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body dto.CreateExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid exam payload"))
		return
	}
	exam, err := h.service.Create(c.Request.Context(), profile, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// List godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var query dto.ListExamsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid pagination"))
		return
	}
	exams, pagination, err := h.service.List(c.Request.Context(), profile, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// Get godoc
// @Summary Get exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	exam, err := h.service.Get(c.Request.Context(), profile, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Delete godoc
// @Summary Delete exam
// @Tags Exams
// @Param id path string true "Exam ID"
// @Success 204
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), profile, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
