package dto

import (
	"time"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// OverrideRequest captures POST /submissions/:id/overrides payload.
type OverrideRequest struct {
	QuestionNumber string   `json:"question_number" validate:"required,max=20"`
	OverrideScore  *float64 `json:"override_score" validate:"required"`
	Reason         *string  `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

// QuestionView is a graded question with its effective score.
type QuestionView struct {
	models.QuestionResult
	EffectiveScore float64                   `json:"effectiveScore"`
	Overridden     bool                      `json:"overridden"`
	History        []models.QuestionOverride `json:"history,omitempty"`
}

// GradingResultResponse is returned by GET /submissions/:id/result.
type GradingResultResponse struct {
	SubmissionID    string                 `json:"submissionId"`
	ExamID          string                 `json:"examId"`
	Status          string                 `json:"status"`
	Model           string                 `json:"model"`
	GradedAt        *time.Time             `json:"gradedAt,omitempty"`
	Student         models.StudentMetadata `json:"studentMetadata"`
	SummaryComment  string                 `json:"summaryComment"`
	ConfidenceScore *float64               `json:"confidenceScore,omitempty"`
	Questions       []QuestionView         `json:"questions"`
	AITotal         float64                `json:"aiTotal"`
	FinalScore      float64                `json:"finalScore"`
	MaxScore        float64                `json:"maxScore"`
}

// GradingAcceptedResponse is returned when a grading job has been queued.
type GradingAcceptedResponse struct {
	SubmissionID string      `json:"submissionId"`
	Status       string      `json:"status"`
	Usage        UsageStatus `json:"usage"`
}
