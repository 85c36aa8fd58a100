package dto

// GenerateRequest captures POST /generate/:kind payload.
type GenerateRequest struct {
	Topic        string `json:"topic" validate:"required,max=300"`
	Subject      string `json:"subject" validate:"omitempty,max=120"`
	GradeLevel   string `json:"grade_level" validate:"omitempty,max=60"`
	Instructions string `json:"instructions" validate:"omitempty,max=4000"`
}

// GenerateResponse is the generated content returned to the caller.
type GenerateResponse struct {
	Kind    string      `json:"kind"`
	Model   string      `json:"model"`
	Content string      `json:"content"`
	Usage   UsageStatus `json:"usage"`
}

// UsageStatus is the usage position of a category after a metered operation.
type UsageStatus struct {
	Category     string `json:"category"`
	CurrentUsage int64  `json:"current_usage"`
	Limit        *int64 `json:"limit"`
	Remaining    *int64 `json:"remaining"`
	Unlimited    bool   `json:"unlimited"`
}
