package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/access"
	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	"github.com/noah-isme/eduplan-api/pkg/ai"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/storage"
)

type submissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	ListByExam(ctx context.Context, examID string) ([]models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Transition(ctx context.Context, id string, from []models.SubmissionStatus, to models.SubmissionStatus, errorMessage *string) (bool, error)
}

type uploadStorage interface {
	SaveStream(filename string, r io.Reader, maxBytes int64) (int64, error)
	ReadAll(filename string) ([]byte, error)
	Delete(filename string) error
}

type examFinder interface {
	Get(ctx context.Context, profile *models.Profile, id string) (*models.Exam, error)
}

// SubmissionService stores uploaded answer sheets. Every upload is metered as a file upload.
type SubmissionService struct {
	repo      submissionRepository
	exams     examFinder
	storage   uploadStorage
	usage     usageGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubmissionService constructs a SubmissionService.
func NewSubmissionService(repo submissionRepository, exams examFinder, store uploadStorage, usage usageGuard, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{repo: repo, exams: exams, storage: store, usage: usage, validator: validate, logger: logger}
}

// Upload stores an answer sheet for examID. The caller must own the exam; the file must be
// an image or plain text within the tier's upload size.
func (s *SubmissionService) Upload(ctx context.Context, profile *models.Profile, examID string, upload dto.SubmissionUpload) (*models.Submission, usage.LimitCheckResult, error) {
	if err := s.validator.Struct(upload); err != nil {
		return nil, usage.LimitCheckResult{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload")
	}
	mediaType, _, err := mime.ParseMediaType(upload.ContentType)
	if err != nil || !(ai.IsImage(mediaType) || mediaType == "text/plain") {
		return nil, usage.LimitCheckResult{}, appErrors.Clone(appErrors.ErrValidation, "answer sheets must be PNG, JPEG, GIF, WebP images or plain text")
	}

	exam, err := s.exams.Get(ctx, profile, examID)
	if err != nil {
		return nil, usage.LimitCheckResult{}, err
	}
	submission := &models.Submission{
		ID:          uuid.NewString(),
		ExamID:      exam.ID,
		OwnerID:     exam.OwnerID,
		SchoolID:    exam.SchoolID,
		StudentName: strings.TrimSpace(upload.StudentName),
		FileName:    filepath.Base(upload.FileName),
		ContentType: mediaType,
		Status:      models.SubmissionPending,
	}
	if !access.CanCreate(access.SubjectFromProfile(profile), submissionResource(access.KindSubmission, submission)) {
		return nil, usage.LimitCheckResult{}, appErrors.Clone(appErrors.ErrForbidden, "only the exam owner can add submissions")
	}

	maxBytes := s.usage.Limits(profile).MaxUploadBytes
	if upload.Size > maxBytes {
		return nil, usage.LimitCheckResult{}, tooLarge(maxBytes)
	}

	submission.FilePath = fmt.Sprintf("submissions/%s/%s%s", exam.ID, submission.ID, strings.ToLower(filepath.Ext(submission.FileName)))
	result, err := s.usage.Guard(ctx, profile, models.KindFileUpload, func(ctx context.Context) (map[string]interface{}, error) {
		size, err := s.storage.SaveStream(submission.FilePath, upload.Body, maxBytes)
		if err != nil {
			if errors.Is(err, storage.ErrTooLarge) {
				return nil, tooLarge(maxBytes)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
		}
		submission.SizeBytes = size
		if err := s.repo.Create(ctx, submission); err != nil {
			if rmErr := s.storage.Delete(submission.FilePath); rmErr != nil {
				s.logger.Warn("orphaned upload", zap.String("path", submission.FilePath), zap.Error(rmErr))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
		}
		return map[string]interface{}{
			"submission_id": submission.ID,
			"exam_id":       exam.ID,
			"size_bytes":    size,
			"content_type":  mediaType,
		}, nil
	})
	if err != nil {
		return nil, result, err
	}
	return submission, result, nil
}

// Get returns a submission visible to the caller.
func (s *SubmissionService) Get(ctx context.Context, profile *models.Profile, id string) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if !access.CanView(access.SubjectFromProfile(profile), submissionResource(access.KindSubmission, submission)) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return submission, nil
}

// ListByExam returns the submissions of an exam visible to the caller.
func (s *SubmissionService) ListByExam(ctx context.Context, profile *models.Profile, examID string) ([]models.Submission, error) {
	if _, err := s.exams.Get(ctx, profile, examID); err != nil {
		return nil, err
	}
	submissions, err := s.repo.ListByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	resources := make([]access.Resource, len(submissions))
	for i := range submissions {
		resources[i] = submissionResource(access.KindSubmission, &submissions[i])
	}
	visible := make(map[string]struct{}, len(submissions))
	for _, r := range access.Visible(access.SubjectFromProfile(profile), resources) {
		visible[r.ID] = struct{}{}
	}
	out := make([]models.Submission, 0, len(visible))
	for _, sub := range submissions {
		if _, ok := visible[sub.ID]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func tooLarge(maxBytes int64) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds the %d MB upload limit of your plan", maxBytes>>20))
}
