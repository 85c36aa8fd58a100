package models

import (
	"encoding/json"
	"time"
)

// SubscriptionTier is a subscription level determining limits and features.
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierPremium    SubscriptionTier = "premium"
	TierEnterprise SubscriptionTier = "enterprise"
)

// UsageCategory is one of the four billing buckets.
type UsageCategory string

const (
	CategoryLessonPlans UsageCategory = "lessonPlans"
	CategoryActivities  UsageCategory = "activities"
	CategoryAssessments UsageCategory = "assessments"
	CategoryFileUploads UsageCategory = "fileUploads"
)

// GenerationKind identifies a billable generation event.
type GenerationKind string

const (
	KindLessonPlan GenerationKind = "lesson-plan"
	KindActivity   GenerationKind = "activity"
	KindWorksheet  GenerationKind = "worksheet"
	KindQuiz       GenerationKind = "quiz"
	KindReading    GenerationKind = "reading"
	KindSlides     GenerationKind = "slides"
	KindAssessment GenerationKind = "assessment"
	KindFileUpload GenerationKind = "file-upload"
)

// UsageEvent is an immutable ledger row for one successful billable operation.
type UsageEvent struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      GenerationKind   `db:"generation_kind" json:"generation_kind"`
	Category  UsageCategory    `db:"category" json:"category"`
	Tier      SubscriptionTier `db:"tier" json:"tier"`
	Success   bool             `db:"success" json:"success"`
	Metadata  json.RawMessage  `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// KindCount aggregates ledger rows per generation kind.
type KindCount struct {
	Kind  GenerationKind `db:"generation_kind"`
	Count int64          `db:"count"`
}

// UsageAlert records a delivered threshold alert.
type UsageAlert struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"user_id"`
	Template     string        `db:"template" json:"template"`
	Category     UsageCategory `db:"category" json:"category"`
	UsagePercent int           `db:"usage_percent" json:"usage_percent"`
	SentAt       time.Time     `db:"sent_at" json:"sent_at"`
}
