package usage

import (
	"time"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// LimitCheckResult is the outcome of comparing a usage count with a tier allowance.
// CountUnknown is set when the ledger could not be read and the request was let through
// anyway; CurrentUsage is then meaningless.
type LimitCheckResult struct {
	Allowed      bool                    `json:"allowed"`
	CurrentUsage int64                   `json:"current_usage"`
	Limit        Limit                   `json:"limit"`
	Tier         models.SubscriptionTier `json:"tier"`
	Category     models.UsageCategory    `json:"category"`
	CountUnknown bool                    `json:"count_unknown,omitempty"`
}

// Unlimited reports whether the category has no cap for the tier.
func (r LimitCheckResult) Unlimited() bool {
	return r.Limit.IsUnlimited()
}

// Remaining returns how many more uses fit in the period, never below zero. It is
// meaningless for unlimited results and returns -1 there.
func (r LimitCheckResult) Remaining() int64 {
	if r.Unlimited() {
		return -1
	}
	remaining := int64(r.Limit) - r.CurrentUsage
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Gate decides whether another use fits in a tier's allowance. It performs no I/O.
type Gate struct {
	table *Table
}

// NewGate builds a gate over table; nil selects the default table.
func NewGate(table *Table) *Gate {
	if table == nil {
		table = DefaultTable()
	}
	return &Gate{table: table}
}

// Table exposes the tier table the gate was built with.
func (g *Gate) Table() *Table {
	return g.table
}

// Check allows the next use when the category is unlimited for the tier or when
// currentUsage is strictly below the limit.
func (g *Gate) Check(tier models.SubscriptionTier, category models.UsageCategory, currentUsage int64) LimitCheckResult {
	tier = ResolveTier(string(tier))
	limit := g.table.Limit(tier, category)
	result := LimitCheckResult{
		CurrentUsage: currentUsage,
		Limit:        limit,
		Tier:         tier,
		Category:     category,
	}
	if limit.IsUnlimited() {
		result.Allowed = true
		return result
	}
	result.Allowed = currentUsage < int64(limit)
	return result
}

// PeriodBounds returns the UTC calendar month containing now as [start, end). End is the
// moment the counters reset.
func PeriodBounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}
