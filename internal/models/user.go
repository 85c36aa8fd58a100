package models

import "time"

// UserRole represents the roles recognised by the access evaluator.
type UserRole string

const (
	RoleEducator    UserRole = "educator"
	RoleSchoolAdmin UserRole = "school_admin"
	RoleStudent     UserRole = "student"
)

// Profile is the application view of an authenticated user stored in the profiles table.
type Profile struct {
	ID        string           `db:"id" json:"id"`
	Email     string           `db:"email" json:"email"`
	FullName  string           `db:"full_name" json:"full_name"`
	Role      UserRole         `db:"role" json:"role"`
	SchoolID  *string          `db:"school_id" json:"school_id,omitempty"`
	Tier      SubscriptionTier `db:"subscription_tier" json:"subscription_tier"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// School returns the school identifier or an empty string when the profile is unaffiliated.
func (p *Profile) School() string {
	if p == nil || p.SchoolID == nil {
		return ""
	}
	return *p.SchoolID
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
