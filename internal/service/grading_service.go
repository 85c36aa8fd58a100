package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/access"
	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/grading"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	"github.com/noah-isme/eduplan-api/pkg/ai"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
	"github.com/noah-isme/eduplan-api/pkg/jobs"
	"github.com/noah-isme/eduplan-api/pkg/retry"
)

// JobTypeGradeSubmission identifies grading jobs.
const JobTypeGradeSubmission = "grade_submission"

// maxErrorMessageBytes bounds the failure reason stored on a submission.
const maxErrorMessageBytes = 500

type gradingRepository interface {
	SaveResult(ctx context.Context, record *models.GradingRecord) error
	FindResult(ctx context.Context, submissionID string) (*models.GradingRecord, error)
	CreateOverride(ctx context.Context, submissionID string, override *models.QuestionOverride) error
	ListOverrides(ctx context.Context, submissionID string) ([]models.QuestionOverride, error)
}

type examLoader interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type gradingMeter interface {
	Authorize(ctx context.Context, profile *models.Profile, category models.UsageCategory) (usage.LimitCheckResult, error)
	Settle(ctx context.Context, profile *models.Profile, kind models.GenerationKind, metadata map[string]interface{})
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// GradingJob is the payload of a grading job. The profile is captured when grading is
// requested so the usage event carries the tier at that moment.
type GradingJob struct {
	SubmissionID string
	Profile      models.Profile
}

// GradingConfig selects the grading model.
type GradingConfig struct {
	Model string
}

const gradingSystem = `You grade handwritten or typed student answer sheets. Reply with one JSON object and nothing else, using this shape:
{"studentMetadata":{"name":"","studentId":"","class":""},
 "questions":[{"questionNumber":"1","topic":"","transcription":"","isCorrect":true,"pointsAwarded":0,"maxPoints":1,"reasoning":"","feedback":""}],
 "summaryComment":"","totalScore":0,"confidenceScore":0}
pointsAwarded must be between 0 and maxPoints. questionNumber values must be unique. confidenceScore is 0-100.`

// GradingService runs AI grading of submissions and reconciles educator overrides.
type GradingService struct {
	submissions submissionRepository
	exams       examLoader
	results     gradingRepository
	storage     uploadStorage
	ai          completer
	usage       gradingMeter
	queue       jobEnqueuer
	audit       auditWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         GradingConfig
	now         func() time.Time
}

// GradingDeps groups the collaborators of GradingService.
type GradingDeps struct {
	Submissions submissionRepository
	Exams       examLoader
	Results     gradingRepository
	Storage     uploadStorage
	AI          completer
	Usage       gradingMeter
	Queue       jobEnqueuer
	Audit       auditWriter
	Metrics     *MetricsService
}

// NewGradingService constructs a GradingService. The queue may be attached later with
// SetQueue because the queue handler is the service itself.
func NewGradingService(deps GradingDeps, validate *validator.Validate, logger *zap.Logger, cfg GradingConfig) *GradingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradingService{
		submissions: deps.Submissions,
		exams:       deps.Exams,
		results:     deps.Results,
		storage:     deps.Storage,
		ai:          deps.AI,
		usage:       deps.Usage,
		queue:       deps.Queue,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetQueue attaches the grading queue.
func (s *GradingService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// RequestGrading checks the caller's assessment allowance and queues the submission. Usage
// is recorded only when grading succeeds.
func (s *GradingService) RequestGrading(ctx context.Context, profile *models.Profile, submissionID string) (*models.Submission, usage.LimitCheckResult, error) {
	submission, err := s.loadSubmission(ctx, profile, submissionID)
	if err != nil {
		return nil, usage.LimitCheckResult{}, err
	}
	if !access.CanUpdate(access.SubjectFromProfile(profile), submissionResource(access.KindSubmission, submission)) {
		return nil, usage.LimitCheckResult{}, appErrors.Clone(appErrors.ErrForbidden, "only the exam owner can request grading")
	}
	if submission.Status != models.SubmissionPending && submission.Status != models.SubmissionFailed {
		return nil, usage.LimitCheckResult{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("submission is already %s", submission.Status))
	}

	result, err := s.usage.Authorize(ctx, profile, models.CategoryAssessments)
	if err != nil {
		return nil, result, err
	}
	if !result.Allowed {
		return nil, result, &LimitExceededError{Result: result}
	}

	if submission.Status == models.SubmissionFailed {
		ok, err := s.submissions.Transition(ctx, submission.ID, []models.SubmissionStatus{models.SubmissionFailed}, models.SubmissionPending, nil)
		if err != nil {
			return nil, result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset submission")
		}
		if !ok {
			return nil, result, appErrors.Clone(appErrors.ErrConflict, "submission changed concurrently")
		}
		submission.Status = models.SubmissionPending
		submission.ErrorMessage = nil
	}

	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeGradeSubmission, Payload: GradingJob{SubmissionID: submission.ID, Profile: *profile}}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.logger.Warn("grading queue rejected job", zap.String("submission_id", submission.ID), zap.Error(err))
		return nil, result, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "grading is busy, try again shortly")
	}
	return submission, result, nil
}

// Process is the queue handler: pending -> processing -> graded. Failures are terminal for
// the job and end in HandleGiveUp.
func (s *GradingService) Process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(GradingJob)
	if !ok {
		return retry.Permanent(fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID))
	}
	log := s.logger.With(zap.String("job_id", job.ID), zap.String("submission_id", payload.SubmissionID))

	claimed, err := s.submissions.Transition(ctx, payload.SubmissionID, []models.SubmissionStatus{models.SubmissionPending}, models.SubmissionProcessing, nil)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("submission no longer pending, skipping")
		return nil
	}

	submission, err := s.submissions.FindByID(ctx, payload.SubmissionID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	exam, err := s.exams.FindByID(ctx, submission.ExamID)
	if err != nil {
		return fmt.Errorf("load exam: %w", err)
	}
	data, err := s.storage.ReadAll(submission.FilePath)
	if err != nil {
		return fmt.Errorf("read answer sheet: %w", err)
	}

	completion, err := s.ai.Complete(ctx, ai.Request{
		Model:  s.cfg.Model,
		System: gradingSystem,
		Prompt: gradingPrompt(exam, submission),
		Attachments: []ai.Attachment{
			{Name: submission.FileName, MediaType: submission.ContentType, Data: data},
		},
	})
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}

	raw, err := ai.ExtractJSON(completion.Text)
	if err != nil {
		return fmt.Errorf("grading response: %w", err)
	}
	result, err := grading.ParseGradingResult(raw)
	if err != nil {
		return fmt.Errorf("grading response: %w", err)
	}
	result.Overrides = nil
	if sum := grading.FinalScore(result); sum != result.TotalScore {
		log.Warn("model total differs from question scores",
			zap.Float64("total_score", result.TotalScore),
			zap.Float64("question_sum", sum),
		)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode grading result: %w", err)
	}
	if err := s.results.SaveResult(ctx, &models.GradingRecord{SubmissionID: submission.ID, Result: encoded, Model: completion.Model}); err != nil {
		return err
	}
	graded, err := s.submissions.Transition(ctx, submission.ID, []models.SubmissionStatus{models.SubmissionProcessing}, models.SubmissionGraded, nil)
	if err != nil {
		return err
	}
	if !graded {
		log.Warn("submission left processing before grading finished, usage not recorded")
		return nil
	}

	profile := payload.Profile
	s.usage.Settle(ctx, &profile, models.KindAssessment, map[string]interface{}{
		"submission_id": submission.ID,
		"exam_id":       exam.ID,
		"model":         completion.Model,
		"input_tokens":  completion.InputTokens,
		"output_tokens": completion.OutputTokens,
	})
	s.metrics.RecordGradingJob(models.SubmissionGraded)
	log.Info("submission graded", zap.Float64("score", result.TotalScore), zap.String("model", completion.Model))
	return nil
}

// HandleGiveUp marks the submission of a failed job as failed. No usage is recorded.
func (s *GradingService) HandleGiveUp(ctx context.Context, job jobs.Job, cause error) {
	payload, ok := job.Payload.(GradingJob)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	message := truncateMessage(cause.Error(), maxErrorMessageBytes)
	from := []models.SubmissionStatus{models.SubmissionPending, models.SubmissionProcessing}
	if _, err := s.submissions.Transition(ctx, payload.SubmissionID, from, models.SubmissionFailed, &message); err != nil {
		s.logger.Error("failed to mark submission failed", zap.String("submission_id", payload.SubmissionID), zap.Error(err))
	}
	s.metrics.RecordGradingJob(models.SubmissionFailed)
}

// truncateMessage cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncateMessage(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.ToValidUTF8(s[:cut], "")
}

// Result returns the graded result of a submission with effective scores and override history.
func (s *GradingService) Result(ctx context.Context, profile *models.Profile, submissionID string) (*dto.GradingResultResponse, error) {
	submission, err := s.loadSubmission(ctx, profile, submissionID)
	if err != nil {
		return nil, err
	}
	result, record, err := s.loadResult(ctx, submission)
	if err != nil {
		return nil, err
	}

	view := &dto.GradingResultResponse{
		SubmissionID:    submission.ID,
		ExamID:          submission.ExamID,
		Status:          string(submission.Status),
		Model:           record.Model,
		GradedAt:        submission.GradedAt,
		Student:         result.Student,
		SummaryComment:  result.SummaryComment,
		ConfidenceScore: result.ConfidenceScore,
		AITotal:         result.TotalScore,
		FinalScore:      grading.FinalScore(result),
		MaxScore:        grading.MaxScore(result),
		Questions:       make([]dto.QuestionView, 0, len(result.Questions)),
	}
	for _, q := range result.Questions {
		score, _ := grading.EffectiveScore(result, q.QuestionNumber)
		view.Questions = append(view.Questions, dto.QuestionView{
			QuestionResult: q,
			EffectiveScore: score,
			Overridden:     grading.HasOverride(result, q.QuestionNumber),
			History:        grading.History(result, q.QuestionNumber),
		})
	}
	return view, nil
}

// Override replaces the AI score of one question. The original score is taken from the
// stored AI result; earlier overrides stay as history.
func (s *GradingService) Override(ctx context.Context, profile *models.Profile, submissionID string, req dto.OverrideRequest) (*models.QuestionOverride, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	submission, err := s.loadSubmission(ctx, profile, submissionID)
	if err != nil {
		return nil, err
	}
	if !access.CanUpdate(access.SubjectFromProfile(profile), submissionResource(access.KindResult, submission)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the exam owner can override scores")
	}
	result, _, err := s.loadResult(ctx, submission)
	if err != nil {
		return nil, err
	}

	question, ok := grading.FindQuestion(result, strings.TrimSpace(req.QuestionNumber))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnprocessable, fmt.Sprintf("question %s does not exist in this result", req.QuestionNumber))
	}
	previous, _ := grading.EffectiveScore(result, question.QuestionNumber)

	override, err := grading.NewOverride(question.QuestionNumber, question.PointsAwarded, *req.OverrideScore, question.MaxPoints, req.Reason, s.now())
	if err != nil {
		var verrs grading.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid override", verrs)
		}
		return nil, err
	}
	override.CreatedBy = profile.ID

	if err := s.results.CreateOverride(ctx, submission.ID, &override); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save override")
	}
	updated := grading.WithOverride(*result, override)
	s.auditOverride(ctx, profile, submission.ID, previous, override, grading.FinalScore(&updated))
	return &override, nil
}

func (s *GradingService) auditOverride(ctx context.Context, profile *models.Profile, submissionID string, previous float64, override models.QuestionOverride, finalScore float64) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(map[string]interface{}{"questionNumber": override.QuestionNumber, "score": previous})
	newValues, _ := json.Marshal(map[string]interface{}{"override": override, "finalScore": finalScore})
	userID := profile.ID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionOverrideCreate,
		Resource:   "grading_result",
		ResourceID: &submissionID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to audit override", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

func (s *GradingService) loadSubmission(ctx context.Context, profile *models.Profile, id string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
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

func (s *GradingService) loadResult(ctx context.Context, submission *models.Submission) (*models.GradingResult, *models.GradingRecord, error) {
	record, err := s.results.FindResult(ctx, submission.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("submission is %s and has no result yet", submission.Status))
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}
	result, err := grading.ParseGradingResult(record.Result)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored grading result is invalid")
	}
	overrides, err := s.results.ListOverrides(ctx, submission.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overrides")
	}
	result.Overrides = overrides
	return result, record, nil
}

func gradingPrompt(exam *models.Exam, submission *models.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grade the attached answer sheet for the exam %q (%s", exam.Title, exam.Subject)
	if exam.GradeLevel != "" {
		fmt.Fprintf(&b, ", grade %s", exam.GradeLevel)
	}
	b.WriteString(").\n")
	if exam.TotalPoints > 0 {
		fmt.Fprintf(&b, "The exam is worth %g points in total.\n", exam.TotalPoints)
	}
	if submission.StudentName != "" {
		fmt.Fprintf(&b, "The student is %s.\n", submission.StudentName)
	}
	if exam.AnswerKey != nil && strings.TrimSpace(*exam.AnswerKey) != "" {
		fmt.Fprintf(&b, "\nAnswer key:\n%s\n", *exam.AnswerKey)
	} else {
		b.WriteString("\nNo answer key was provided; judge correctness from subject knowledge.\n")
	}
	return b.String()
}
