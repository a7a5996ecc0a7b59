// Package autopilot implements the controller that gates unattended
// execution of executive runs: enablement, per-type allow-listing, daily
// quota, and pause-on-error.
package autopilot

import "github.com/holdinghq/hq/internal/runs"

// Denial reasons returned by CanAutoRun, in evaluation order. The exact
// strings are part of the API surface; they appear in diagnostics and
// dashboard messages.
const (
	ReasonPaused            = "paused"
	ReasonDisabled          = "autopilot disabled"
	ReasonNotAllowListed    = "run type not allow-listed"
	ReasonQuotaReached      = "daily quota reached"
	ReasonHighRisk          = "high risk requires approval"
	ReasonNotAutoExecutable = "not auto-executable"
	ReasonUnknownRunType    = "unknown run type"
)

// Config holds autopilot configuration. It is persisted as a whole
// document under a fixed key and falls back to defaults when absent.
type Config struct {
	// Enabled controls whether autopilot mode is active.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// AllowedRunTypes lists run-type IDs permitted to auto-execute.
	AllowedRunTypes []string `json:"allowed_run_types" yaml:"allowed_run_types"`
	// MaxDailyAutonomousRuns caps unattended executions per calendar day.
	MaxDailyAutonomousRuns int `json:"max_daily_autonomous_runs" yaml:"max_daily_autonomous_runs"`
	// RequireApprovalForHighRisk blocks high/critical runs even when
	// allow-listed. Note the policy layer already denies these; this
	// flag only changes the denial reason surfaced to the operator.
	RequireApprovalForHighRisk bool `json:"require_approval_for_high_risk" yaml:"require_approval_for_high_risk"`
	// NotifyOnAutoExecution sends a notification after each successful
	// unattended run.
	NotifyOnAutoExecution bool `json:"notify_on_auto_execution" yaml:"notify_on_auto_execution"`
	// PauseOnError pauses all further auto-execution after a run failure
	// until the operator resumes.
	PauseOnError bool `json:"pause_on_error" yaml:"pause_on_error"`
}

// DefaultConfig returns sensible defaults for autopilot configuration.
// Autopilot ships disabled; enabling it is an explicit operator action.
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		AllowedRunTypes: []string{
			"DAILY_EXECUTIVE_BRIEF",
			"PLATFORM_HEALTH_CHECK",
		},
		MaxDailyAutonomousRuns:     5,
		RequireApprovalForHighRisk: true,
		NotifyOnAutoExecution:      true,
		PauseOnError:               true,
	}
}

// allows reports whether the config allow-lists the given run type.
func (c *Config) allows(runType string) bool {
	for _, id := range c.AllowedRunTypes {
		if id == runType {
			return true
		}
	}
	return false
}

// Decision is the outcome of a CanAutoRun check. Reason is empty when
// Allowed is true.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ExecResult is the structured outcome of an AutoExecuteRun call.
// A policy denial is not an error: Executed is false, RequiresApproval
// is true, and Reason explains the gate that fired.
type ExecResult struct {
	Executed         bool         `json:"executed"`
	RequiresApproval bool         `json:"requires_approval,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	Error            string       `json:"error,omitempty"`
	Result           *runs.Result `json:"result,omitempty"`
}

// Status is a snapshot of controller state for the dashboard.
type Status struct {
	Config        Config `json:"config"`
	DailyRunCount int    `json:"daily_run_count"`
	IsPaused      bool   `json:"is_paused"`
	LastError     string `json:"last_error,omitempty"`
}
