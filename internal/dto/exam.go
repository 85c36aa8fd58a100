package dto

// CreateExamRequest captures POST /exams payload.
type CreateExamRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Subject     string  `json:"subject" validate:"required,max=120"`
	GradeLevel  string  `json:"grade_level" validate:"omitempty,max=60"`
	AnswerKey   *string `json:"answer_key,omitempty" validate:"omitempty,max=20000"`
	TotalPoints float64 `json:"total_points" validate:"gte=0"`
	SchoolID    *string `json:"school_id,omitempty"`
}

// ListExamsQuery captures GET /exams query parameters.
type ListExamsQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}
