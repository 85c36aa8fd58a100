// Package grading reconciles AI-assigned question scores with educator overrides.
// Everything here is pure and safe for concurrent use.
package grading

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// NewOverride validates and stamps an override. Both scores are kept verbatim; every
// violated bound is reported separately.
func NewOverride(questionNumber string, originalScore, overrideScore, maxPoints float64, reason *string, now time.Time) (models.QuestionOverride, error) {
	var errs ValidationErrors
	questionNumber = strings.TrimSpace(questionNumber)
	if questionNumber == "" {
		errs.add("question_number", "is required")
	}
	if invalidNumber(overrideScore) {
		errs.add("override_score", "must be a finite number")
	} else {
		if overrideScore < 0 {
			errs.add("override_score", "must not be negative")
		}
		if overrideScore > maxPoints {
			errs.add("override_score", fmt.Sprintf("must not exceed max points (%g)", maxPoints))
		}
	}
	if invalidNumber(originalScore) {
		errs.add("original_score", "must be a finite number")
	} else if originalScore > maxPoints {
		errs.add("original_score", fmt.Sprintf("must not exceed max points (%g)", maxPoints))
	}
	if err := errs.orNil(); err != nil {
		return models.QuestionOverride{}, err
	}

	return models.QuestionOverride{
		QuestionNumber: questionNumber,
		OriginalScore:  originalScore,
		OverrideScore:  overrideScore,
		Reason:         normalizeReason(reason),
		CreatedAt:      now.UTC(),
	}, nil
}

// GetOverride returns the effective override for a question: the one with the latest
// CreatedAt, with later list position breaking ties. Earlier overrides stay in the result
// as history.
func GetOverride(result *models.GradingResult, questionNumber string) (models.QuestionOverride, bool) {
	if result == nil {
		return models.QuestionOverride{}, false
	}
	var (
		found  models.QuestionOverride
		exists bool
	)
	for _, o := range result.Overrides {
		if o.QuestionNumber != questionNumber {
			continue
		}
		if !exists || !o.CreatedAt.Before(found.CreatedAt) {
			found = o
			exists = true
		}
	}
	return found, exists
}

// HasOverride reports whether any override targets the question.
func HasOverride(result *models.GradingResult, questionNumber string) bool {
	_, ok := GetOverride(result, questionNumber)
	return ok
}

// History returns every override of a question ordered oldest first.
func History(result *models.GradingResult, questionNumber string) []models.QuestionOverride {
	if result == nil {
		return nil
	}
	var history []models.QuestionOverride
	for _, o := range result.Overrides {
		if o.QuestionNumber == questionNumber {
			history = append(history, o)
		}
	}
	for i := 1; i < len(history); i++ {
		for j := i; j > 0 && history[j].CreatedAt.Before(history[j-1].CreatedAt); j-- {
			history[j], history[j-1] = history[j-1], history[j]
		}
	}
	return history
}

// FindQuestion returns the first question with the given number.
func FindQuestion(result *models.GradingResult, questionNumber string) (models.QuestionResult, bool) {
	if result == nil {
		return models.QuestionResult{}, false
	}
	for _, q := range result.Questions {
		if q.QuestionNumber == questionNumber {
			return q, true
		}
	}
	return models.QuestionResult{}, false
}

// EffectiveScore returns the override score when one exists, otherwise the AI score.
// ok is false when the question is not part of the result; overrides for such numbers
// are inert.
func EffectiveScore(result *models.GradingResult, questionNumber string) (float64, bool) {
	q, ok := FindQuestion(result, questionNumber)
	if !ok {
		return 0, false
	}
	return effective(result, q), true
}

// FinalScore sums the effective score of every question.
func FinalScore(result *models.GradingResult) float64 {
	if result == nil {
		return 0
	}
	var total float64
	for _, q := range result.Questions {
		total += effective(result, q)
	}
	return total
}

// MaxScore sums the max points of every question.
func MaxScore(result *models.GradingResult) float64 {
	if result == nil {
		return 0
	}
	var total float64
	for _, q := range result.Questions {
		total += q.MaxPoints
	}
	return total
}

// WithOverride returns a copy of result with o appended; result itself is not modified.
func WithOverride(result models.GradingResult, o models.QuestionOverride) models.GradingResult {
	overrides := make([]models.QuestionOverride, 0, len(result.Overrides)+1)
	overrides = append(overrides, result.Overrides...)
	result.Overrides = append(overrides, o)
	return result
}

func effective(result *models.GradingResult, q models.QuestionResult) float64 {
	if o, ok := GetOverride(result, q.QuestionNumber); ok {
		return o.OverrideScore
	}
	return q.PointsAwarded
}

func normalizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func invalidNumber(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
