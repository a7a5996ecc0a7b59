// Package registry holds the static catalog of executive run types.
//
// The catalog is pure data: which runs exist, what they display as, how
// risky they are, and whether autopilot may ever touch them. Enforcement
// of the risk rules lives in the policy package; the registry itself is
// allowed to carry definitions that the policy layer overrides.
package registry

import "sort"

// RiskTier is a coarse severity classification attached to a run type.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// RunType describes one executive run the dashboard can trigger.
type RunType struct {
	// ID is the unique run-type key, e.g. "DAILY_EXECUTIVE_BRIEF".
	ID string
	// Title is the display name shown on the dashboard.
	Title string
	// Description explains what the run produces.
	Description string
	// Risk is the coarse severity tier gating approval and autopilot.
	Risk RiskTier
	// Steps are ordered pipeline stage labels, display-only.
	Steps []string
	// RequiresApproval queues the run for human approval instead of
	// executing immediately. The policy layer forces this on for
	// high/critical tiers regardless of the value here.
	RequiresApproval bool
	// AutoExecutable marks whether autopilot may ever run this type
	// unattended.
	AutoExecutable bool
}

// Registry is an immutable lookup table of run types.
type Registry struct {
	types map[string]RunType
}

// New creates a registry from the given definitions.
func New(types []RunType) *Registry {
	m := make(map[string]RunType, len(types))
	for _, rt := range types {
		m[rt.ID] = rt
	}
	return &Registry{types: m}
}

// Default returns the built-in HQ run catalog.
func Default() *Registry {
	return New(builtinRunTypes)
}

// Get returns the run type for id. The second return value reports
// whether the id is known.
func (r *Registry) Get(id string) (RunType, bool) {
	rt, ok := r.types[id]
	return rt, ok
}

// IsKnown reports whether id names a registered run type.
func (r *Registry) IsKnown(id string) bool {
	_, ok := r.types[id]
	return ok
}

// All returns every run type sorted by ID for stable display order.
func (r *Registry) All() []RunType {
	out := make([]RunType, 0, len(r.types))
	for _, rt := range r.types {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// builtinRunTypes is the static HQ catalog. Order here is not significant;
// All() sorts by ID.
var builtinRunTypes = []RunType{
	{
		ID:          "DAILY_EXECUTIVE_BRIEF",
		Title:       "Daily Executive Brief",
		Description: "Morning summary of portfolio activity, revenue movement, and open engineering work.",
		Risk:        RiskLow,
		Steps: []string{
			"Collect run history",
			"Fetch engineering signals",
			"Fetch revenue snapshot",
			"Compose brief",
		},
		RequiresApproval: false,
		AutoExecutable:   true,
	},
	{
		ID:          "PLATFORM_HEALTH_CHECK",
		Title:       "Platform Health Check",
		Description: "Quick status sweep across all supervised platforms.",
		Risk:        RiskLow,
		Steps: []string{
			"Probe platform endpoints",
			"Check open incident count",
			"Summarize status",
		},
		RequiresApproval: false,
		AutoExecutable:   true,
	},
	{
		ID:          "REVENUE_RECONCILIATION",
		Title:       "Revenue Reconciliation",
		Description: "Cross-check subscription revenue against recorded platform metrics.",
		Risk:        RiskMedium,
		Steps: []string{
			"Pull subscription list",
			"Aggregate MRR by platform",
			"Flag discrepancies",
			"Compose reconciliation report",
		},
		RequiresApproval: false,
		AutoExecutable:   true,
	},
	{
		ID:          "PLATFORM_DEEP_ANALYSIS",
		Title:       "Platform Deep Analysis",
		Description: "In-depth analysis of a single platform: growth, churn, engineering throughput.",
		Risk:        RiskMedium,
		Steps: []string{
			"Gather platform history",
			"Fetch repository activity",
			"Analyze trends",
			"Compose analysis",
		},
		RequiresApproval: true,
		AutoExecutable:   false,
	},
	{
		ID:          "SECURITY_AUDIT",
		Title:       "Security Audit",
		Description: "Review of open security advisories, dependency alerts, and access posture.",
		Risk:        RiskHigh,
		Steps: []string{
			"Collect open advisories",
			"Review dependency alerts",
			"Assess exposure",
			"Compose audit report",
		},
		RequiresApproval: true,
		AutoExecutable:   false,
	},
	{
		ID:          "QUARTERLY_STRATEGY_REVIEW",
		Title:       "Quarterly Strategy Review",
		Description: "Portfolio-level strategy assessment with recommended directional changes.",
		Risk:        RiskHigh,
		Steps: []string{
			"Aggregate quarter metrics",
			"Compare against targets",
			"Draft recommendations",
		},
		RequiresApproval: true,
		AutoExecutable:   false,
	},
	{
		ID:          "CAPITAL_REALLOCATION",
		Title:       "Capital Reallocation Proposal",
		Description: "Proposal to shift budget between platforms based on performance.",
		Risk:        RiskCritical,
		Steps: []string{
			"Collect performance data",
			"Model reallocation scenarios",
			"Draft proposal",
		},
		RequiresApproval: true,
		AutoExecutable:   false,
	},
}
