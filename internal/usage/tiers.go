package usage

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/eduplan-api/internal/models"
)

// Limit is a monthly allowance. Unlimited disables the comparison altogether.
type Limit int64

// Unlimited is the sentinel for categories without a cap.
const Unlimited Limit = -1

const mib = 1 << 20

// IsUnlimited reports whether l is the unlimited sentinel.
func (l Limit) IsUnlimited() bool {
	return l == Unlimited
}

// String renders the limit for headers and logs.
func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// UnmarshalYAML accepts either an integer or the word "unlimited".
func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if strings.EqualFold(strings.TrimSpace(node.Value), "unlimited") {
		*l = Unlimited
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("limit must be an integer or \"unlimited\": %w", err)
	}
	*l = Limit(n)
	return nil
}

// ModelClass selects which LLM a tier is served by.
type ModelClass string

const (
	ModelStandard ModelClass = "standard"
	ModelAdvanced ModelClass = "advanced"
)

// TierLimits is the immutable allowance of one subscription tier.
type TierLimits struct {
	LessonPlans    Limit      `yaml:"lesson_plans"`
	Activities     Limit      `yaml:"activities"`
	Assessments    Limit      `yaml:"assessments"`
	FileUploads    Limit      `yaml:"file_uploads"`
	MaxUploadBytes int64      `yaml:"max_upload_bytes"`
	ExportFormats  []string   `yaml:"export_formats"`
	ModelClass     ModelClass `yaml:"model_class"`
}

// LimitFor returns the allowance for category.
func (t TierLimits) LimitFor(category models.UsageCategory) Limit {
	switch category {
	case models.CategoryLessonPlans:
		return t.LessonPlans
	case models.CategoryActivities:
		return t.Activities
	case models.CategoryAssessments:
		return t.Assessments
	case models.CategoryFileUploads:
		return t.FileUploads
	default:
		return 0
	}
}

// AllowsExport reports whether format is included in the tier.
func (t TierLimits) AllowsExport(format string) bool {
	for _, f := range t.ExportFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func (t TierLimits) clone() TierLimits {
	t.ExportFormats = append([]string(nil), t.ExportFormats...)
	return t
}

func (t TierLimits) validate(tier models.SubscriptionTier) error {
	for _, category := range Categories {
		if l := t.LimitFor(category); l < Unlimited {
			return fmt.Errorf("tier %s: %s limit %d is negative", tier, category, l)
		}
	}
	if t.MaxUploadBytes <= 0 {
		return fmt.Errorf("tier %s: max_upload_bytes must be positive", tier)
	}
	if t.ModelClass != ModelStandard && t.ModelClass != ModelAdvanced {
		return fmt.Errorf("tier %s: unknown model class %q", tier, t.ModelClass)
	}
	return nil
}

// Tiers lists the subscription tiers.
var Tiers = []models.SubscriptionTier{models.TierFree, models.TierPremium, models.TierEnterprise}

// DefaultTiers returns the built-in tier table.
func DefaultTiers() map[models.SubscriptionTier]TierLimits {
	return map[models.SubscriptionTier]TierLimits{
		models.TierFree: {
			LessonPlans: 5, Activities: 10, Assessments: 5, FileUploads: 3,
			MaxUploadBytes: 5 * mib,
			ExportFormats:  []string{"pdf"},
			ModelClass:     ModelStandard,
		},
		models.TierPremium: {
			LessonPlans: 100, Activities: 250, Assessments: 100, FileUploads: 50,
			MaxUploadBytes: 25 * mib,
			ExportFormats:  []string{"pdf", "csv"},
			ModelClass:     ModelAdvanced,
		},
		models.TierEnterprise: {
			LessonPlans: Unlimited, Activities: Unlimited, Assessments: Unlimited, FileUploads: Unlimited,
			MaxUploadBytes: 100 * mib,
			ExportFormats:  []string{"pdf", "csv"},
			ModelClass:     ModelAdvanced,
		},
	}
}

// Table maps tiers to their limits. It is read-only after construction and safe for
// concurrent use.
type Table struct {
	tiers map[models.SubscriptionTier]TierLimits
}

// NewTable validates tiers and takes a private copy of them. Every known tier must be present.
func NewTable(tiers map[models.SubscriptionTier]TierLimits) (*Table, error) {
	copied := make(map[models.SubscriptionTier]TierLimits, len(tiers))
	for _, tier := range Tiers {
		limits, ok := tiers[tier]
		if !ok {
			return nil, fmt.Errorf("tier %s missing from tier table", tier)
		}
		if err := limits.validate(tier); err != nil {
			return nil, err
		}
		copied[tier] = limits.clone()
	}
	return &Table{tiers: copied}, nil
}

// DefaultTable returns a table built from DefaultTiers.
func DefaultTable() *Table {
	table, err := NewTable(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return table
}

// LoadTable builds the table from the defaults overlaid with the YAML file at path. An
// empty path yields the defaults. Fields absent from the file keep their default value.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier file: %w", err)
	}
	return ParseTable(raw)
}

// ParseTable overlays the YAML document raw onto the defaults.
func ParseTable(raw []byte) (*Table, error) {
	var doc struct {
		Tiers map[string]yaml.Node `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tier file: %w", err)
	}

	tiers := DefaultTiers()
	for name, node := range doc.Tiers {
		tier := models.SubscriptionTier(strings.ToLower(name))
		limits, ok := tiers[tier]
		if !ok {
			return nil, fmt.Errorf("tier file: unknown tier %q", name)
		}
		node := node
		if err := node.Decode(&limits); err != nil {
			return nil, fmt.Errorf("tier file: tier %s: %w", name, err)
		}
		tiers[tier] = limits
	}
	return NewTable(tiers)
}

// ResolveTier maps a stored tier string onto a known tier. Unknown values resolve to free.
func ResolveTier(raw string) models.SubscriptionTier {
	tier := models.SubscriptionTier(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Tiers {
		if tier == known {
			return tier
		}
	}
	return models.TierFree
}

// Limits returns a copy of the tier's limits; unknown tiers get the free limits.
func (t *Table) Limits(tier models.SubscriptionTier) TierLimits {
	return t.tiers[ResolveTier(string(tier))].clone()
}

// Limit returns the allowance for a tier and category.
func (t *Table) Limit(tier models.SubscriptionTier, category models.UsageCategory) Limit {
	return t.tiers[ResolveTier(string(tier))].LimitFor(category)
}
