// Package usage holds the pure metering rules: which billing category a generation kind
// belongs to, what each subscription tier may consume per month, whether a request fits
// within that allowance and when a free-tier user should be warned.
package usage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/eduplan-api/internal/models"
)

var (
	// ErrUnknownKind is returned by ParseKind for values outside the closed kind set.
	ErrUnknownKind = errors.New("unknown generation kind")
	// ErrUnknownCategory is returned by ParseCategory for values outside the category set.
	ErrUnknownCategory = errors.New("unknown usage category")
)

// Kinds lists every billable generation kind.
var Kinds = []models.GenerationKind{
	models.KindLessonPlan,
	models.KindActivity,
	models.KindWorksheet,
	models.KindQuiz,
	models.KindReading,
	models.KindSlides,
	models.KindAssessment,
	models.KindFileUpload,
}

// Categories lists the billing buckets in display order.
var Categories = []models.UsageCategory{
	models.CategoryLessonPlans,
	models.CategoryActivities,
	models.CategoryAssessments,
	models.CategoryFileUploads,
}

var kindCategory = map[models.GenerationKind]models.UsageCategory{
	models.KindLessonPlan: models.CategoryLessonPlans,
	models.KindActivity:   models.CategoryActivities,
	models.KindWorksheet:  models.CategoryActivities,
	models.KindQuiz:       models.CategoryActivities,
	models.KindReading:    models.CategoryActivities,
	models.KindSlides:     models.CategoryActivities,
	models.KindAssessment: models.CategoryAssessments,
	models.KindFileUpload: models.CategoryFileUploads,
}

// CategoryOf maps a generation kind onto its billing category. Callers must only pass
// kinds obtained from ParseKind.
func CategoryOf(kind models.GenerationKind) models.UsageCategory {
	return kindCategory[kind]
}

// KindsOf returns the generation kinds counted against category.
func KindsOf(category models.UsageCategory) []models.GenerationKind {
	kinds := make([]models.GenerationKind, 0, len(Kinds))
	for _, kind := range Kinds {
		if kindCategory[kind] == category {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// ParseKind validates raw input into a GenerationKind.
func ParseKind(raw string) (models.GenerationKind, error) {
	kind := models.GenerationKind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := kindCategory[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return kind, nil
}

// ParseCategory validates raw input into a UsageCategory.
func ParseCategory(raw string) (models.UsageCategory, error) {
	trimmed := strings.TrimSpace(raw)
	for _, category := range Categories {
		if strings.EqualFold(string(category), trimmed) {
			return category, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
}
