// Package approval holds runs that cannot execute unattended until an
// executive approves or denies them from the dashboard.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/notify"
	"github.com/holdinghq/hq/internal/runs"
)

// State of a pending approval request.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateDenied   State = "denied"
	StateExpired  State = "expired"
)

// Request is a run awaiting an executive decision.
type Request struct {
	ID          string    `json:"id"`
	RunType     string    `json:"run_type"`
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	DecidedBy   string    `json:"decided_by,omitempty"`
	DecidedAt   time.Time `json:"decided_at,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
}

// Config holds approval queue settings.
type Config struct {
	// TimeoutHours is how long a request stays actionable. Expired
	// requests are denied, never silently executed.
	TimeoutHours int `yaml:"timeout_hours"`
}

// DefaultConfig returns a 24 hour approval window.
func DefaultConfig() *Config {
	return &Config{TimeoutHours: 24}
}

// Manager is the in-memory pending approval queue. Approving a request
// executes the run; denying or expiry never does.
type Manager struct {
	timeout  time.Duration
	executor runs.Executor
	notifier notify.Notifier
	pending  map[string]*Request
	now      func() time.Time
	mu       sync.RWMutex
	log      *slog.Logger
}

// NewManager creates an approval manager. The executor runs approved
// requests; the notifier (optional) announces new ones.
func NewManager(config *Config, executor runs.Executor, notifier notify.Notifier) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	timeout := time.Duration(config.TimeoutHours) * time.Hour
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &Manager{
		timeout:  timeout,
		executor: executor,
		notifier: notifier,
		pending:  make(map[string]*Request),
		now:      time.Now,
		log:      logging.WithComponent("approval"),
	}
}

// RequestApproval queues a run for executive sign-off and returns the
// created request. Safe for concurrent use.
func (m *Manager) RequestApproval(runType, requestedBy, reason string) *Request {
	now := m.now()
	req := &Request{
		ID:          uuid.New().String(),
		RunType:     runType,
		RequestedBy: requestedBy,
		Reason:      reason,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.timeout),
	}

	m.mu.Lock()
	m.pending[req.ID] = req
	m.mu.Unlock()

	m.log.Info("approval requested",
		"request_id", req.ID,
		"run_type", runType,
		"requested_by", requestedBy,
		"reason", reason,
	)

	if m.notifier != nil {
		m.notifier.Notify(context.Background(), notify.Notification{
			Title:   "Approval required",
			Message: fmt.Sprintf("%s requested by %s: %s", runType, requestedBy, reason),
			Urgency: notify.UrgencyWarning,
		})
	}
	return req
}

// Approve marks the request approved and executes its run. The decision
// is recorded even if execution fails; the error reports which step went
// wrong.
func (m *Manager) Approve(ctx context.Context, requestID, decidedBy string) (*Request, error) {
	req, err := m.decide(requestID, decidedBy, StateApproved)
	if err != nil {
		return nil, err
	}

	m.log.Info("approval granted",
		"request_id", req.ID,
		"run_type", req.RunType,
		"decided_by", decidedBy,
	)

	result, err := m.executor.Execute(ctx, req.RunType, "", nil)
	if err != nil {
		return req, fmt.Errorf("approved run failed: %w", err)
	}

	m.mu.Lock()
	req.RunID = result.RunID
	m.mu.Unlock()
	return req, nil
}

// Deny marks the request denied. Nothing executes.
func (m *Manager) Deny(requestID, decidedBy string) (*Request, error) {
	req, err := m.decide(requestID, decidedBy, StateDenied)
	if err != nil {
		return nil, err
	}
	m.log.Info("approval denied",
		"request_id", req.ID,
		"run_type", req.RunType,
		"decided_by", decidedBy,
	)
	return req, nil
}

// decide transitions a pending request to a terminal state. Requests
// past their deadline are expired first, so a late Approve cannot fire
// a stale run.
func (m *Manager) decide(requestID, decidedBy string, state State) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[requestID]
	if !ok {
		return nil, fmt.Errorf("approval request not found: %s", requestID)
	}
	if req.State != StatePending {
		return nil, fmt.Errorf("approval request %s already %s", requestID, req.State)
	}
	if m.now().After(req.ExpiresAt) {
		req.State = StateExpired
		return nil, fmt.Errorf("approval request %s expired", requestID)
	}

	req.State = state
	req.DecidedBy = decidedBy
	req.DecidedAt = m.now()
	return req, nil
}

// Pending returns actionable requests, newest first.
func (m *Manager) Pending() []*Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Request, 0, len(m.pending))
	for _, req := range m.pending {
		if req.State == StatePending && !m.now().After(req.ExpiresAt) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Get returns a request by id in any state.
func (m *Manager) Get(requestID string) (*Request, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.pending[requestID]
	return req, ok
}

// ExpireStale marks overdue pending requests expired and returns how
// many were swept.
func (m *Manager) ExpireStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	now := m.now()
	for _, req := range m.pending {
		if req.State == StatePending && now.After(req.ExpiresAt) {
			req.State = StateExpired
			expired++
			m.log.Warn("approval request expired",
				"request_id", req.ID,
				"run_type", req.RunType,
			)
		}
	}
	return expired
}

// RunExpiry sweeps for stale requests on an interval until the context
// is cancelled.
func (m *Manager) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ExpireStale()
		}
	}
}
