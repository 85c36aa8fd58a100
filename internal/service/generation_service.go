package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/dto"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/usage"
	"github.com/noah-isme/eduplan-api/pkg/ai"
	appErrors "github.com/noah-isme/eduplan-api/pkg/errors"
)

type completer interface {
	Complete(ctx context.Context, req ai.Request) (*ai.Completion, error)
}

type usageGuard interface {
	Guard(ctx context.Context, profile *models.Profile, kind models.GenerationKind, op Operation) (usage.LimitCheckResult, error)
	Limits(profile *models.Profile) usage.TierLimits
}

// GenerationConfig maps tier model classes to model names.
type GenerationConfig struct {
	StandardModel string
	AdvancedModel string
}

var generationBriefs = map[models.GenerationKind]string{
	models.KindLessonPlan: "a complete lesson plan with objectives, materials, a timed sequence of activities and an assessment check",
	models.KindActivity:   "a classroom activity with setup, step-by-step instructions and differentiation notes",
	models.KindWorksheet:  "a printable worksheet with clear instructions and an answer key",
	models.KindQuiz:       "a short quiz with mixed question types and an answer key",
	models.KindReading:    "a reading passage at the right level followed by comprehension questions",
	models.KindSlides:     "a slide outline with a title and bullet points per slide and speaker notes",
	models.KindAssessment: "an assessment with numbered questions, point values per question and a marking scheme",
}

const generationSystem = "You are an experienced teacher who writes classroom-ready material. Answer in Markdown. Do not add commentary before or after the material."

// GenerationResult is the text produced for a generation request.
type GenerationResult struct {
	Kind    models.GenerationKind
	Model   string
	Content string
}

// GenerationService produces teaching material through the LLM, metered per tier.
type GenerationService struct {
	ai        completer
	usage     usageGuard
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GenerationConfig
}

// NewGenerationService constructs a GenerationService.
func NewGenerationService(client completer, usage usageGuard, validate *validator.Validate, logger *zap.Logger, cfg GenerationConfig) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GenerationService{ai: client, usage: usage, validator: validate, logger: logger, cfg: cfg}
}

// Generate runs one metered generation. The usage result is returned even on failure so
// callers can render limit headers.
func (s *GenerationService) Generate(ctx context.Context, profile *models.Profile, kind models.GenerationKind, req dto.GenerateRequest) (*GenerationResult, usage.LimitCheckResult, error) {
	brief, ok := generationBriefs[kind]
	if !ok {
		return nil, usage.LimitCheckResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s cannot be generated", kind))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, usage.LimitCheckResult{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	model := s.modelFor(profile)
	var out *GenerationResult
	result, err := s.usage.Guard(ctx, profile, kind, func(ctx context.Context) (map[string]interface{}, error) {
		completion, err := s.ai.Complete(ctx, ai.Request{
			Model:  model,
			System: generationSystem,
			Prompt: buildPrompt(brief, req),
		})
		if err != nil {
			return nil, err
		}
		out = &GenerationResult{Kind: kind, Model: completion.Model, Content: completion.Text}
		return map[string]interface{}{
			"model":         completion.Model,
			"topic":         req.Topic,
			"input_tokens":  completion.InputTokens,
			"output_tokens": completion.OutputTokens,
		}, nil
	})
	if err != nil {
		var limitErr *LimitExceededError
		var appErr *appErrors.Error
		if errors.As(err, &limitErr) || errors.As(err, &appErr) {
			return nil, result, err
		}
		s.logger.Error("generation failed",
			zap.String("user_id", profile.ID),
			zap.String("kind", string(kind)),
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, result, upstreamError(err)
	}
	return out, result, nil
}

func (s *GenerationService) modelFor(profile *models.Profile) string {
	if s.usage.Limits(profile).ModelClass == usage.ModelAdvanced && s.cfg.AdvancedModel != "" {
		return s.cfg.AdvancedModel
	}
	return s.cfg.StandardModel
}

func buildPrompt(brief string, req dto.GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %s.\n\nTopic: %s\n", brief, strings.TrimSpace(req.Topic))
	if req.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	}
	if req.GradeLevel != "" {
		fmt.Fprintf(&b, "Grade level: %s\n", req.GradeLevel)
	}
	if req.Instructions != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the teacher:\n%s\n", req.Instructions)
	}
	return b.String()
}

func upstreamError(err error) *appErrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "content generation timed out")
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "content generation failed")
}
