package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

// multipartOverhead leaves room for form fields and boundaries on top of the file itself.
const multipartOverhead = 1 << 20

type submissionService interface {
	Upload(ctx context.Context, profile *models.Profile, examID string, upload dto.SubmissionUpload) (*models.Submission, usage.LimitCheckResult, error)
	Get(ctx context.Context, profile *models.Profile, id string) (*models.Submission, error)
	ListByExam(ctx context.Context, profile *models.Profile, examID string) ([]models.Submission, error)
}

type submissionCreated struct {
	*models.Submission
	Usage dto.UsageStatus `json:"usage"`
}

// SubmissionHandler accepts answer sheet uploads.
type SubmissionHandler struct {
	service   submissionService
	maxUpload int64
}

// NewSubmissionHandler constructs the handler. maxUpload caps the request body for every
// tier; the caller's own tier limit is enforced by the service.
func NewSubmissionHandler(service submissionService, maxUpload int64) *SubmissionHandler {
	return &SubmissionHandler{service: service, maxUpload: maxUpload}
}

// Upload godoc
// @Summary Upload an answer sheet
// @Description Stores a student's answer sheet for the exam. Counts against the file upload allowance.
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Exam ID"
// @Param student_name formData string false "Student name"
// @Param file formData file true "Answer sheet (image or plain text)"
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.LimitPayload
// @Failure 413 {object} response.Envelope
// @Router /exams/{id}/submissions [post]
func (h *SubmissionHandler) Upload(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "upload exceeds the maximum request size"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	submission, result, err := h.service.Upload(c.Request.Context(), profile, c.Param("id"), dto.SubmissionUpload{
		StudentName: c.PostForm("student_name"),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        src,
	})
	if err != nil {
		meteredError(c, result, err)
		return
	}
	setRateLimit(c, result)
	response.Created(c, submissionCreated{Submission: submission, Usage: service.UsageStatus(result)})
}

// Get godoc
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	submission, err := h.service.Get(c.Request.Context(), profile, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ListByExam godoc
// @Summary List submissions of an exam
// @Tags Submissions
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/submissions [get]
func (h *SubmissionHandler) ListByExam(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	submissions, err := h.service.ListByExam(c.Request.Context(), profile, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}
