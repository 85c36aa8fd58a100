package models

import "time"

// SubmissionStatus tracks the grading lifecycle.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionGraded     SubmissionStatus = "graded"
	SubmissionFailed     SubmissionStatus = "failed"
)

// Submission is a student's uploaded answer sheet for an exam. OwnerID and SchoolID are
// inherited from the exam.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	ExamID       string           `db:"exam_id" json:"exam_id"`
	OwnerID      string           `db:"owner_id" json:"owner_id"`
	SchoolID     *string          `db:"school_id" json:"school_id,omitempty"`
	StudentName  string           `db:"student_name" json:"student_name"`
	FileName     string           `db:"file_name" json:"file_name"`
	FilePath     string           `db:"file_path" json:"-"`
	ContentType  string           `db:"content_type" json:"content_type"`
	SizeBytes    int64            `db:"size_bytes" json:"size_bytes"`
	Status       SubmissionStatus `db:"status" json:"status"`
	ErrorMessage *string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	GradedAt     *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
}
