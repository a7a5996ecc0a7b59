// Package policy implements the risk and approval gating rules for
// executive runs.
//
// These are pure functions with no I/O: given a run type and the current
// autopilot state they decide whether a human approval gate applies and
// whether unattended execution is ever permitted. Unknown run types are
// treated as maximally unsafe: approval required, auto-execution denied.
package policy

import "github.com/holdinghq/hq/internal/registry"

// ShouldRequireApproval reports whether a run of the given type must be
// queued for human approval instead of executing immediately.
//
// An unknown id fails closed. A riskOverride of high or critical forces
// approval regardless of the registry flag; otherwise the registry's
// RequiresApproval flag decides. Pass the run type's own tier (or empty)
// when no override applies.
func ShouldRequireApproval(reg *registry.Registry, id string, riskOverride registry.RiskTier) bool {
	rt, ok := reg.Get(id)
	if !ok {
		return true
	}

	risk := rt.Risk
	if riskOverride != "" {
		risk = riskOverride
	}
	if risk == registry.RiskHigh || risk == registry.RiskCritical {
		return true
	}

	return rt.RequiresApproval
}

// CanAutoExecute reports whether autopilot may run the given type
// unattended. High and critical risk tiers can never auto-execute
// regardless of configuration. This is a hard safety ceiling, not a
// configurable flag.
func CanAutoExecute(reg *registry.Registry, id string, autopilotEnabled bool) bool {
	if !autopilotEnabled {
		return false
	}
	rt, ok := reg.Get(id)
	if !ok {
		return false
	}
	if rt.Risk == registry.RiskHigh || rt.Risk == registry.RiskCritical {
		return false
	}
	return rt.AutoExecutable
}
