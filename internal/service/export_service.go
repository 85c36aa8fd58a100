package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/export"
	"github.com/noah-isme/eduplan-api/pkg/storage"
)

type resultSource interface {
	Result(ctx context.Context, profile *models.Profile, submissionID string) (*dto.GradingResultResponse, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type tierLimits interface {
	Limits(profile *models.Profile) usage.TierLimits
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// ExportService renders graded results to PDF or CSV and hands out signed download links.
type ExportService struct {
	results resultSource
	limits  tierLimits
	storage fileStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(results resultSource, limits tierLimits, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		results: results,
		limits:  limits,
		storage: storage,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Export renders the graded result of submissionID in format, which must be included in
// the caller's tier.
func (s *ExportService) Export(ctx context.Context, profile *models.Profile, submissionID, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = export.FormatPDF
	}
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if !s.limits.Limits(profile).AllowsExport(format) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s export is not included in the %s plan", format, usage.ResolveTier(string(profile.Tier))))
	}

	view, err := s.results.Result(ctx, profile, submissionID)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(buildResultReport(view))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("results/%s_%s.%s", sanitizeFilename(submissionID), time.Now().UTC().Format("20060102_150405"), renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(submissionID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (submissionID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// RunCleanup removes expired exports every interval until ctx is done.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Cleanup(0)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func buildResultReport(view *dto.GradingResultResponse) export.Report {
	student := view.Student.Name
	if student == "" {
		student = "Unknown student"
	}
	summary := []export.Field{
		{Label: "Student", Value: student},
		{Label: "Final score", Value: fmt.Sprintf("%s / %s", formatScore(view.FinalScore), formatScore(view.MaxScore))},
		{Label: "AI score", Value: formatScore(view.AITotal)},
	}
	if view.Student.Class != "" {
		summary = append(summary, export.Field{Label: "Class", Value: view.Student.Class})
	}
	if view.ConfidenceScore != nil {
		summary = append(summary, export.Field{Label: "Confidence", Value: fmt.Sprintf("%.0f%%", *view.ConfidenceScore)})
	}
	if view.GradedAt != nil {
		summary = append(summary, export.Field{Label: "Graded at", Value: view.GradedAt.UTC().Format(time.RFC3339)})
	}

	headers := []string{"Question", "Topic", "AI Score", "Final Score", "Max", "Overridden", "Feedback"}
	rows := make([]map[string]string, 0, len(view.Questions))
	var notes []string
	for _, q := range view.Questions {
		overridden := "no"
		if q.Overridden {
			overridden = "yes"
			if n := len(q.History); n > 0 && q.History[n-1].Reason != nil {
				notes = append(notes, fmt.Sprintf("Question %s: %s", q.QuestionNumber, *q.History[n-1].Reason))
			}
		}
		rows = append(rows, map[string]string{
			"Question":    q.QuestionNumber,
			"Topic":       q.Topic,
			"AI Score":    formatScore(q.PointsAwarded),
			"Final Score": formatScore(q.EffectiveScore),
			"Max":         formatScore(q.MaxPoints),
			"Overridden":  overridden,
			"Feedback":    q.Feedback,
		})
	}
	if view.SummaryComment != "" {
		notes = append([]string{view.SummaryComment}, notes...)
	}

	return export.Report{
		Title:   fmt.Sprintf("Grading Result %s", student),
		Summary: summary,
		Table:   export.Dataset{Headers: headers, Rows: rows},
		Notes:   notes,
	}
}

func formatScore(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
