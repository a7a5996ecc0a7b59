// Package runs owns executive run records and the executor boundary.
package runs

import "time"

// Status represents the lifecycle state of a run record.
type Status string

const (
	// StatusPending indicates the run has been recorded but not started.
	StatusPending Status = "pending"
	// StatusRunning indicates the run is executing.
	StatusRunning Status = "running"
	// StatusCompleted indicates the run finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run finished with an error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the run was cancelled before completion.
	StatusCancelled Status = "cancelled"
)

// Record is one persisted executive run.
type Record struct {
	ID               string     `json:"id"`
	RunType          string     `json:"run_type"`
	PlatformKey      string     `json:"platform_key,omitempty"`
	Status           Status     `json:"status"`
	ExecutiveSummary string     `json:"executive_summary,omitempty"`
	ModelUsed        string     `json:"model_used,omitempty"`
	TriggeredBy      string     `json:"triggered_by,omitempty"` // manual, autopilot, scheduler, approval
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Result is the success payload returned by the executor.
type Result struct {
	RunID            string   `json:"run_id"`
	ExecutiveSummary string   `json:"executive_summary"`
	ModelUsed        string   `json:"model_used"`
	Steps            []string `json:"steps"`
}

// Event is a run lifecycle notification published to live subscribers
// (the dashboard WebSocket stream).
type Event struct {
	Type    string    `json:"type"` // run_started, run_completed, run_failed
	RunID   string    `json:"run_id"`
	RunType string    `json:"run_type"`
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
}

// EventSink receives run lifecycle events. Implementations must not block.
type EventSink interface {
	Publish(Event)
}
