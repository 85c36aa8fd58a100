// Package access mirrors the database row-level security rules for exams, submissions and
// grading results so handlers can enforce them before touching storage.
package access

import "github.com/noah-isme/eduplan-api/internal/models"

// ResourceKind names a protected resource type.
type ResourceKind string

const (
	KindExam       ResourceKind = "exam"
	KindSubmission ResourceKind = "submission"
	KindResult     ResourceKind = "result"
)

// Action is an operation checked by Allowed.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Subject is the caller.
type Subject struct {
	UserID   string
	SchoolID string
	Role     models.UserRole
}

// Resource is the ownership snapshot of a protected row.
type Resource struct {
	Kind     ResourceKind
	ID       string
	OwnerID  string
	SchoolID string
}

// SubjectFromProfile builds a Subject from a stored profile.
func SubjectFromProfile(p *models.Profile) Subject {
	if p == nil {
		return Subject{}
	}
	return Subject{UserID: p.ID, SchoolID: p.School(), Role: p.Role}
}

// CanView allows the owner, and a school admin of the resource's school.
func CanView(s Subject, r Resource) bool {
	if isOwner(s, r) {
		return true
	}
	return s.Role == models.RoleSchoolAdmin && sameSchool(s, r)
}

// CanCreate requires the caller to be the owner and, for school-tagged resources, to
// belong to that school.
func CanCreate(s Subject, r Resource) bool {
	if !isOwner(s, r) {
		return false
	}
	return r.SchoolID == "" || sameSchool(s, r)
}

// CanUpdate is owner only.
func CanUpdate(s Subject, r Resource) bool {
	return isOwner(s, r)
}

// CanDelete is owner only.
func CanDelete(s Subject, r Resource) bool {
	return isOwner(s, r)
}

// Allowed dispatches to the predicate for action. Unknown actions are denied.
func Allowed(action Action, s Subject, r Resource) bool {
	switch action {
	case ActionView:
		return CanView(s, r)
	case ActionCreate:
		return CanCreate(s, r)
	case ActionUpdate:
		return CanUpdate(s, r)
	case ActionDelete:
		return CanDelete(s, r)
	default:
		return false
	}
}

// Visible filters resources down to those s may view, preserving order.
func Visible(s Subject, resources []Resource) []Resource {
	out := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if CanView(s, r) {
			out = append(out, r)
		}
	}
	return out
}

func isOwner(s Subject, r Resource) bool {
	return s.UserID != "" && s.UserID == r.OwnerID
}

func sameSchool(s Subject, r Resource) bool {
	return s.SchoolID != "" && s.SchoolID == r.SchoolID
}
