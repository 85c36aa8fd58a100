package dto

import "time"

// CategoryUsage is one row of the usage summary.
type CategoryUsage struct {
	Category     string `json:"category"`
	Used         int64  `json:"used"`
	Limit        *int64 `json:"limit"`
	Remaining    *int64 `json:"remaining"`
	UsagePercent int    `json:"usage_percent"`
	Unlimited    bool   `json:"unlimited"`
}

// UsageSummaryResponse is returned by GET /usage.
type UsageSummaryResponse struct {
	Tier        string          `json:"tier"`
	PeriodStart time.Time       `json:"period_start"`
	ResetsAt    time.Time       `json:"resets_at"`
	Categories  []CategoryUsage `json:"categories"`
}

// PlanView describes what the caller's tier includes.
type PlanView struct {
	Tier           string   `json:"tier"`
	ModelClass     string   `json:"model_class"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
	ExportFormats  []string `json:"export_formats"`
}

// MeResponse is returned by GET /me.
type MeResponse struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     string   `json:"role"`
	SchoolID *string  `json:"school_id,omitempty"`
	Plan     PlanView `json:"plan"`
}
