package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/access"
	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

type examRepository interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	Create(ctx context.Context, exam *models.Exam) error
	Delete(ctx context.Context, id string) error
}

// ExamService manages exams under the ownership and school rules.
type ExamService struct {
	repo      examRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(repo examRepository, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExamService{repo: repo, validator: validate, logger: logger}
}

// Create stores a new exam owned by the caller. Exams are tagged with the caller's school;
// naming a different school is rejected.
func (s *ExamService) Create(ctx context.Context, profile *models.Profile, req dto.CreateExamRequest) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	exam := &models.Exam{
		OwnerID:     profile.ID,
		SchoolID:    profile.SchoolID,
		Title:       strings.TrimSpace(req.Title),
		Subject:     strings.TrimSpace(req.Subject),
		GradeLevel:  strings.TrimSpace(req.GradeLevel),
		AnswerKey:   req.AnswerKey,
		TotalPoints: req.TotalPoints,
	}
	if req.SchoolID != nil && *req.SchoolID != "" {
		exam.SchoolID = req.SchoolID
	}
	if !access.CanCreate(access.SubjectFromProfile(profile), examResource(exam)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot create exams for another school")
	}

	if err := s.repo.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	return exam, nil
}

// Get returns an exam visible to the caller. Invisible exams are reported as not found.
func (s *ExamService) Get(ctx context.Context, profile *models.Profile, id string) (*models.Exam, error) {
	exam, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if !access.CanView(access.SubjectFromProfile(profile), examResource(exam)) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
	}
	return exam, nil
}

// List returns the caller's exams and, for school admins, every exam of their school.
func (s *ExamService) List(ctx context.Context, profile *models.Profile, query dto.ListExamsQuery) ([]models.Exam, *models.Pagination, error) {
	filter := models.ExamFilter{OwnerID: profile.ID, Page: query.Page, PageSize: query.PageSize}
	if profile.Role == models.RoleSchoolAdmin {
		filter.SchoolID = profile.School()
	}
	exams, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}

	subject := access.SubjectFromProfile(profile)
	visible := make([]models.Exam, 0, len(exams))
	for _, exam := range exams {
		exam := exam
		if access.CanView(subject, examResource(&exam)) {
			visible = append(visible, exam)
		} else {
			s.logger.Warn("exam listing returned an invisible row", zap.String("exam_id", exam.ID), zap.String("user_id", profile.ID))
		}
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return visible, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes an exam owned by the caller.
func (s *ExamService) Delete(ctx context.Context, profile *models.Profile, id string) error {
	exam, err := s.Get(ctx, profile, id)
	if err != nil {
		return err
	}
	if !access.CanDelete(access.SubjectFromProfile(profile), examResource(exam)) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owner can delete an exam")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	return nil
}

func examResource(exam *models.Exam) access.Resource {
	return access.Resource{Kind: access.KindExam, ID: exam.ID, OwnerID: exam.OwnerID, SchoolID: derefString(exam.SchoolID)}
}

func submissionResource(kind access.ResourceKind, sub *models.Submission) access.Resource {
	return access.Resource{Kind: kind, ID: sub.ID, OwnerID: sub.OwnerID, SchoolID: derefString(sub.SchoolID)}
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
