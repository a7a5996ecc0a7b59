package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holdinghq/hq/internal/notify"
	"github.com/holdinghq/hq/internal/runs"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (e *fakeExecutor) Execute(ctx context.Context, runType, platformKey string, contextData map[string]string) (*runs.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, runType)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &runs.Result{RunID: "run-1", ExecutiveSummary: "ok"}, nil
}

func (e *fakeExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notif notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notif)
}

func TestRequestApprovalQueuesAndNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	m := NewManager(nil, &fakeExecutor{}, notifier)

	req := m.RequestApproval("SECURITY_AUDIT", "scheduler", "high risk requires approval")

	if req.ID == "" {
		t.Error("request missing id")
	}
	if req.State != StatePending {
		t.Errorf("state = %s", req.State)
	}
	if !req.ExpiresAt.After(req.CreatedAt) {
		t.Error("expiry not set")
	}

	pending := m.Pending()
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Errorf("pending = %+v", pending)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.sent) != 1 || notifier.sent[0].Urgency != notify.UrgencyWarning {
		t.Errorf("notifications = %+v", notifier.sent)
	}
}

func TestApproveExecutesRun(t *testing.T) {
	exec := &fakeExecutor{}
	m := NewManager(nil, exec, nil)
	req := m.RequestApproval("SECURITY_AUDIT", "scheduler", "reason")

	decided, err := m.Approve(context.Background(), req.ID, "alex")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if decided.State != StateApproved {
		t.Errorf("state = %s", decided.State)
	}
	if decided.DecidedBy != "alex" {
		t.Errorf("decided_by = %s", decided.DecidedBy)
	}
	if decided.RunID != "run-1" {
		t.Errorf("run id = %s", decided.RunID)
	}
	if exec.callCount() != 1 {
		t.Errorf("executor calls = %d", exec.callCount())
	}

	if len(m.Pending()) != 0 {
		t.Error("approved request still pending")
	}
}

func TestApproveRecordsDecisionWhenRunFails(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("gateway down")}
	m := NewManager(nil, exec, nil)
	req := m.RequestApproval("SECURITY_AUDIT", "scheduler", "reason")

	decided, err := m.Approve(context.Background(), req.ID, "alex")
	if err == nil {
		t.Fatal("expected run failure error")
	}
	if decided == nil || decided.State != StateApproved {
		t.Errorf("decision not recorded: %+v", decided)
	}
}

func TestDenyDoesNotExecute(t *testing.T) {
	exec := &fakeExecutor{}
	m := NewManager(nil, exec, nil)
	req := m.RequestApproval("SECURITY_AUDIT", "scheduler", "reason")

	decided, err := m.Deny(req.ID, "alex")
	if err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if decided.State != StateDenied {
		t.Errorf("state = %s", decided.State)
	}
	if exec.callCount() != 0 {
		t.Error("denied request must not execute")
	}
}

func TestDecideTwiceConflicts(t *testing.T) {
	m := NewManager(nil, &fakeExecutor{}, nil)
	req := m.RequestApproval("SECURITY_AUDIT", "s", "r")

	if _, err := m.Deny(req.ID, "alex"); err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if _, err := m.Approve(context.Background(), req.ID, "alex"); err == nil {
		t.Error("second decision accepted")
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	m := NewManager(nil, &fakeExecutor{}, nil)
	if _, err := m.Approve(context.Background(), "nope", "alex"); err == nil {
		t.Error("unknown request approved")
	}
}

func TestExpiredRequestDefaultsToDeny(t *testing.T) {
	exec := &fakeExecutor{}
	m := NewManager(&Config{TimeoutHours: 1}, exec, nil)

	base := time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	req := m.RequestApproval("SECURITY_AUDIT", "s", "r")

	// Past the deadline: a late approve must not fire the run.
	m.now = func() time.Time { return base.Add(2 * time.Hour) }

	if _, err := m.Approve(context.Background(), req.ID, "alex"); err == nil {
		t.Error("expired request approved")
	}
	if exec.callCount() != 0 {
		t.Error("expired request executed")
	}

	got, _ := m.Get(req.ID)
	if got.State != StateExpired {
		t.Errorf("state = %s, want expired", got.State)
	}
	if len(m.Pending()) != 0 {
		t.Error("expired request still pending")
	}
}

func TestExpireStale(t *testing.T) {
	m := NewManager(&Config{TimeoutHours: 1}, &fakeExecutor{}, nil)

	base := time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	_ = m.RequestApproval("SECURITY_AUDIT", "s", "old")

	m.now = func() time.Time { return base.Add(30 * time.Minute) }
	fresh := m.RequestApproval("SECURITY_AUDIT", "s", "fresh")

	m.now = func() time.Time { return base.Add(90 * time.Minute) }
	if n := m.ExpireStale(); n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}

	pending := m.Pending()
	if len(pending) != 1 || pending[0].ID != fresh.ID {
		t.Errorf("pending = %+v", pending)
	}
}

func TestPendingNewestFirst(t *testing.T) {
	m := NewManager(nil, &fakeExecutor{}, nil)

	base := time.Date(2026, 9, 1, 7, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	first := m.RequestApproval("SECURITY_AUDIT", "s", "first")

	m.now = func() time.Time { return base.Add(time.Minute) }
	second := m.RequestApproval("SECURITY_AUDIT", "s", "second")

	pending := m.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending len = %d", len(pending))
	}
	if pending[0].ID != second.ID || pending[1].ID != first.ID {
		t.Error("pending not newest first")
	}
}
