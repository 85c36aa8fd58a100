package handler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/service"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/export"
	"github.com/noah-isme/eduplan-api/pkg/response"
)

type exportService interface {
	Export(ctx context.Context, profile *models.Profile, submissionID, format string) (*service.ExportResult, error)
	ParseToken(token string, allowExpired bool) (submissionID, relPath string, expiresAt time.Time, err error)
	Open(relPath string) (*os.File, error)
}

// ExportHandler renders graded results and serves the signed downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Create godoc
// @Summary Export a graded result
// @Tags Exports
// @Produce json
// @Param id path string true "Submission ID"
// @Param format query string false "pdf or csv" default(pdf)
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id}/export [post]
func (h *ExportHandler) Create(c *gin.Context) {
	profile := profileFromContext(c)
	if profile == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Export(c.Request.Context(), profile, c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ExportResponse{
		URL:       result.URL,
		Format:    result.Format,
		ExpiresAt: result.ExpiresAt,
	}, nil)
}

// Download godoc
// @Summary Download an export through its signed link
// @Tags Exports
// @Produce application/pdf,text/csv
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	submissionID, relPath, _, err := h.service.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired"))
		return
	}
	file, err := h.service.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export no longer available"))
			return
		}
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	format := strings.TrimPrefix(filepath.Ext(relPath), ".")
	contentType := "application/octet-stream"
	if renderer, err := export.ForFormat(format); err == nil {
		contentType = renderer.ContentType()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("result-%s.%s", submissionID, format)))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
