package models

import "time"

// StudentMetadata identifies the student on a graded answer sheet.
type StudentMetadata struct {
	Name      string `json:"name"`
	StudentID string `json:"studentId,omitempty"`
	Class     string `json:"class,omitempty"`
}

// QuestionResult is the AI judgement for a single question.
type QuestionResult struct {
	QuestionNumber string  `json:"questionNumber" validate:"required"`
	Topic          string  `json:"topic"`
	Transcription  string  `json:"transcription"`
	IsCorrect      bool    `json:"isCorrect"`
	PointsAwarded  float64 `json:"pointsAwarded" validate:"gte=0"`
	MaxPoints      float64 `json:"maxPoints" validate:"gt=0"`
	Reasoning      string  `json:"reasoning"`
	Feedback       string  `json:"feedback"`
}

// QuestionOverride is an educator's replacement of the AI score for one question.
// Rows are append-only; a later override for the same question supersedes earlier ones.
type QuestionOverride struct {
	ID             string    `db:"id" json:"id,omitempty"`
	QuestionNumber string    `db:"question_number" json:"questionNumber"`
	OriginalScore  float64   `db:"original_score" json:"originalScore"`
	OverrideScore  float64   `db:"override_score" json:"overrideScore"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	CreatedBy      string    `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// GradingResult is the aggregate produced by the grading collaborator plus any overrides.
type GradingResult struct {
	Student         StudentMetadata    `json:"studentMetadata"`
	Questions       []QuestionResult   `json:"questions" validate:"required,min=1,dive"`
	SummaryComment  string             `json:"summaryComment"`
	TotalScore      float64            `json:"totalScore" validate:"gte=0"`
	ConfidenceScore *float64           `json:"confidenceScore,omitempty" validate:"omitempty,gte=0,lte=100"`
	Overrides       []QuestionOverride `json:"overrides,omitempty"`
}

// GradingRecord is the persisted row holding a grading result.
type GradingRecord struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	Result       []byte    `db:"result" json:"-"`
	Model        string    `db:"model" json:"model"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
