package grading

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/eduplan-api/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseGradingResult decodes and validates a grading result received from the grading
// model or read back from storage. Violations are returned as ValidationErrors.
func ParseGradingResult(raw []byte) (*models.GradingResult, error) {
	var result models.GradingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, ValidationErrors{{Field: "result", Message: fmt.Sprintf("malformed JSON: %v", err)}}
	}
	if err := Validate(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate checks the structural rules of a grading result: at least one question, unique
// question numbers, 0 <= pointsAwarded <= maxPoints, maxPoints > 0, confidence within
// [0, 100], and override bounds for overrides that reference a known question.
func Validate(result *models.GradingResult) error {
	var errs ValidationErrors
	if err := validate.Struct(result); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				errs.add(fieldPath(fe.Namespace()), describe(fe))
			}
		} else {
			return err
		}
	}

	seen := make(map[string]struct{}, len(result.Questions))
	for i, q := range result.Questions {
		if q.QuestionNumber == "" {
			continue
		}
		if _, dup := seen[q.QuestionNumber]; dup {
			errs.add(fmt.Sprintf("questions[%d].questionNumber", i), fmt.Sprintf("duplicate question number %q", q.QuestionNumber))
		}
		seen[q.QuestionNumber] = struct{}{}
		if q.MaxPoints > 0 && q.PointsAwarded > q.MaxPoints {
			errs.add(fmt.Sprintf("questions[%d].pointsAwarded", i), "must not exceed maxPoints")
		}
	}

	for i, o := range result.Overrides {
		q, ok := FindQuestion(result, o.QuestionNumber)
		if !ok {
			continue
		}
		if _, err := NewOverride(o.QuestionNumber, o.OriginalScore, o.OverrideScore, q.MaxPoints, nil, o.CreatedAt); err != nil {
			for _, fe := range err.(ValidationErrors) {
				errs.add(fmt.Sprintf("overrides[%d].%s", i, fe.Field), fe.Message)
			}
		}
	}
	return errs.orNil()
}

func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
