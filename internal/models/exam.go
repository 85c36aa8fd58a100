package models

import "time"

// Exam is an assessment owned by an educator, optionally tagged with a school.
type Exam struct {
	ID          string    `db:"id" json:"id"`
	OwnerID     string    `db:"owner_id" json:"owner_id"`
	SchoolID    *string   `db:"school_id" json:"school_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Subject     string    `db:"subject" json:"subject"`
	GradeLevel  string    `db:"grade_level" json:"grade_level"`
	AnswerKey   *string   `db:"answer_key" json:"answer_key,omitempty"`
	TotalPoints float64   `db:"total_points" json:"total_points"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ExamFilter scopes exam listings.
type ExamFilter struct {
	OwnerID  string
	SchoolID string
	Page     int
	PageSize int
}
