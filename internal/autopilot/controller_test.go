package autopilot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holdinghq/hq/internal/notify"
	"github.com/holdinghq/hq/internal/registry"
	"github.com/holdinghq/hq/internal/runs"
)

type fakeConfigStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	getErr error
	setErr error
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{docs: make(map[string][]byte)}
}

func (s *fakeConfigStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.docs[key], nil
}

func (s *fakeConfigStore) Set(key string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.docs[key] = doc
	return nil
}

func (s *fakeConfigStore) stored(t *testing.T) Config {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var cfg Config
	if err := json.Unmarshal(s.docs[ConfigKey], &cfg); err != nil {
		t.Fatalf("stored config unmarshal: %v", err)
	}
	return cfg
}

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
	return &runs.Result{RunID: "run-" + runType, ExecutiveSummary: "done"}, nil
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

func (n *fakeNotifier) last() (notify.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return notify.Notification{}, false
	}
	return n.sent[len(n.sent)-1], true
}

func testControllerRegistry() *registry.Registry {
	return registry.New([]registry.RunType{
		{ID: "BRIEF", Risk: registry.RiskLow, AutoExecutable: true},
		{ID: "SWEEP", Risk: registry.RiskLow, AutoExecutable: true},
		{ID: "MANUAL", Risk: registry.RiskMedium, AutoExecutable: false},
		{ID: "AUDIT", Risk: registry.RiskHigh, AutoExecutable: false},
	})
}

func enabledConfig() Config {
	return Config{
		Enabled:                    true,
		AllowedRunTypes:            []string{"BRIEF", "SWEEP", "MANUAL", "AUDIT"},
		MaxDailyAutonomousRuns:     2,
		RequireApprovalForHighRisk: true,
		NotifyOnAutoExecution:      true,
		PauseOnError:               true,
	}
}

func newTestController(t *testing.T, cfg Config, store *fakeConfigStore, exec *fakeExecutor) *Controller {
	t.Helper()
	doc, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := store.Set(ConfigKey, doc); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return NewController(testControllerRegistry(), store, exec, time.UTC)
}

func TestNewControllerDefaultsWhenStoreEmpty(t *testing.T) {
	c := NewController(testControllerRegistry(), newFakeConfigStore(), &fakeExecutor{}, time.UTC)

	cfg := c.Config()
	if cfg.Enabled {
		t.Error("autopilot must default to disabled")
	}
	if cfg.MaxDailyAutonomousRuns != 5 {
		t.Errorf("default quota = %d, want 5", cfg.MaxDailyAutonomousRuns)
	}
}

func TestNewControllerDefaultsOnMalformedDoc(t *testing.T) {
	store := newFakeConfigStore()
	_ = store.Set(ConfigKey, []byte("{not json"))

	c := NewController(testControllerRegistry(), store, &fakeExecutor{}, time.UTC)
	if c.Config().Enabled {
		t.Error("malformed doc should fall back to defaults")
	}
}

func TestCanAutoRunDenialOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Controller)
		run    string
		reason string
	}{
		{
			"paused wins over everything",
			func(c *Controller) { c.isPaused = true; c.config.Enabled = false },
			"BRIEF", ReasonPaused,
		},
		{
			"disabled before allow-list",
			func(c *Controller) { c.config.Enabled = false; c.config.AllowedRunTypes = nil },
			"BRIEF", ReasonDisabled,
		},
		{
			"allow-list before quota",
			func(c *Controller) { c.config.AllowedRunTypes = []string{"SWEEP"}; c.dailyRunCount = 99 },
			"BRIEF", ReasonNotAllowListed,
		},
		{
			"quota before high risk",
			func(c *Controller) { c.dailyRunCount = 2 },
			"AUDIT", ReasonQuotaReached,
		},
		{
			"high risk before auto-executable",
			func(c *Controller) {},
			"AUDIT", ReasonHighRisk,
		},
		{
			"high risk ceiling holds with flag off",
			func(c *Controller) { c.config.RequireApprovalForHighRisk = false },
			"AUDIT", ReasonNotAutoExecutable,
		},
		{
			"not auto-executable",
			func(c *Controller) {},
			"MANUAL", ReasonNotAutoExecutable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, enabledConfig(), newFakeConfigStore(), &fakeExecutor{})
			c.mu.Lock()
			tt.mutate(c)
			c.mu.Unlock()

			d := c.CanAutoRun(tt.run)
			if d.Allowed {
				t.Fatal("expected denial")
			}
			if d.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestCanAutoRunAllowed(t *testing.T) {
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), &fakeExecutor{})

	d := c.CanAutoRun("BRIEF")
	if !d.Allowed || d.Reason != "" {
		t.Errorf("decision = %+v, want allowed with empty reason", d)
	}
}

func TestAutoExecuteUnknownTypeFailsFast(t *testing.T) {
	exec := &fakeExecutor{}
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), exec)

	result := c.AutoExecuteRun(context.Background(), "NOPE", "")
	if result.Executed {
		t.Error("unknown type must not execute")
	}
	if result.Reason != ReasonUnknownRunType {
		t.Errorf("reason = %q", result.Reason)
	}
	if exec.callCount() != 0 {
		t.Error("executor must not be called for unknown type")
	}
	if c.GetStatus().DailyRunCount != 0 {
		t.Error("unknown type must not consume quota")
	}
}

func TestAutoExecuteDenialRequiresApproval(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := enabledConfig()
	cfg.Enabled = false
	c := newTestController(t, cfg, newFakeConfigStore(), exec)

	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if result.Executed {
		t.Error("disabled autopilot must not execute")
	}
	if !result.RequiresApproval {
		t.Error("denial should route to approval")
	}
	if result.Reason != ReasonDisabled {
		t.Errorf("reason = %q", result.Reason)
	}
	if exec.callCount() != 0 {
		t.Error("executor must not be called on denial")
	}
}

func TestAutoExecuteQuotaBoundary(t *testing.T) {
	exec := &fakeExecutor{}
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), exec)

	for i := 0; i < 2; i++ {
		result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
		if !result.Executed {
			t.Fatalf("run %d denied: %+v", i+1, result)
		}
	}

	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if result.Executed {
		t.Error("third run should exceed quota of 2")
	}
	if result.Reason != ReasonQuotaReached {
		t.Errorf("reason = %q", result.Reason)
	}
	if exec.callCount() != 2 {
		t.Errorf("executor calls = %d, want 2", exec.callCount())
	}
}

func TestAutoExecuteCountsFailedRuns(t *testing.T) {
	// The count increments before the executor call, so failures still
	// consume quota.
	exec := &fakeExecutor{err: errors.New("gateway down")}
	cfg := enabledConfig()
	cfg.PauseOnError = false
	c := newTestController(t, cfg, newFakeConfigStore(), exec)

	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if result.Executed {
		t.Error("failed run reported as executed")
	}
	if result.Error == "" {
		t.Error("expected error message")
	}
	if got := c.GetStatus().DailyRunCount; got != 1 {
		t.Errorf("daily count = %d, want 1", got)
	}
}

func TestAutoExecutePauseOnError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("gateway down")}
	notifier := &fakeNotifier{}
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), exec)
	c.SetNotifier(notifier)

	_ = c.AutoExecuteRun(context.Background(), "BRIEF", "")

	if !c.IsPaused() {
		t.Error("controller should pause after failure")
	}
	status := c.GetStatus()
	if status.LastError == "" {
		t.Error("last error not recorded")
	}

	n, ok := notifier.last()
	if !ok || n.Urgency != notify.UrgencyUrgent {
		t.Errorf("expected urgent notification, got %+v", n)
	}

	// Subsequent attempts are denied as paused.
	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if result.Executed || result.Reason != ReasonPaused {
		t.Errorf("post-failure result = %+v", result)
	}
}

func TestAutoExecuteSuccessNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), &fakeExecutor{})
	c.SetNotifier(notifier)

	result := c.AutoExecuteRun(context.Background(), "BRIEF", "acme")
	if !result.Executed || result.Result == nil {
		t.Fatalf("result = %+v", result)
	}

	n, ok := notifier.last()
	if !ok || n.Urgency != notify.UrgencyInfo {
		t.Errorf("expected info notification, got %+v", n)
	}
}

func TestToggleAutopilotPersists(t *testing.T) {
	store := newFakeConfigStore()
	c := newTestController(t, enabledConfig(), store, &fakeExecutor{})

	if err := c.ToggleAutopilot(context.Background(), false); err != nil {
		t.Fatalf("ToggleAutopilot: %v", err)
	}
	if store.stored(t).Enabled {
		t.Error("disable not persisted")
	}
	if c.Config().Enabled {
		t.Error("disable not applied to cached config")
	}

	if err := c.ToggleAutopilot(context.Background(), true); err != nil {
		t.Fatalf("ToggleAutopilot: %v", err)
	}
	if !store.stored(t).Enabled {
		t.Error("enable not persisted")
	}
}

func TestToggleKeepsConfigWhenStoreReadFails(t *testing.T) {
	// A transient read failure must not let the toggle write defaults
	// over the operator's allow-list and quota.
	store := newFakeConfigStore()
	c := newTestController(t, enabledConfig(), store, &fakeExecutor{})
	store.mu.Lock()
	store.getErr = errors.New("database is locked")
	store.mu.Unlock()

	if err := c.ToggleAutopilot(context.Background(), false); err != nil {
		t.Fatalf("ToggleAutopilot: %v", err)
	}

	stored := store.stored(t)
	if stored.Enabled {
		t.Error("disable not persisted")
	}
	if stored.MaxDailyAutonomousRuns != 2 || len(stored.AllowedRunTypes) != 4 {
		t.Errorf("toggle clobbered operator config: %+v", stored)
	}

	if err := c.PanicStop(context.Background()); err != nil {
		t.Fatalf("PanicStop: %v", err)
	}
	stored = store.stored(t)
	if stored.Enabled {
		t.Error("panic stop not persisted")
	}
	if len(stored.AllowedRunTypes) != 4 {
		t.Errorf("panic stop clobbered allow-list: %+v", stored)
	}
}

func TestUpdateConfigValidation(t *testing.T) {
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), &fakeExecutor{})

	bad := enabledConfig()
	bad.MaxDailyAutonomousRuns = -1
	if err := c.UpdateConfig(bad); err == nil {
		t.Error("negative quota accepted")
	}

	bad = enabledConfig()
	bad.AllowedRunTypes = []string{"NOT_A_TYPE"}
	if err := c.UpdateConfig(bad); err == nil {
		t.Error("unknown allow-list entry accepted")
	}

	good := enabledConfig()
	good.MaxDailyAutonomousRuns = 10
	if err := c.UpdateConfig(good); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if c.Config().MaxDailyAutonomousRuns != 10 {
		t.Error("update not applied")
	}
}

func TestPanicStopPausesAndDisables(t *testing.T) {
	store := newFakeConfigStore()
	c := newTestController(t, enabledConfig(), store, &fakeExecutor{})

	if err := c.PanicStop(context.Background()); err != nil {
		t.Fatalf("PanicStop: %v", err)
	}
	if !c.IsPaused() {
		t.Error("panic stop did not pause")
	}
	if store.stored(t).Enabled {
		t.Error("panic stop did not persist disabled config")
	}
}

func TestPanicStopPausesEvenWhenPersistenceFails(t *testing.T) {
	store := newFakeConfigStore()
	c := newTestController(t, enabledConfig(), store, &fakeExecutor{})
	store.mu.Lock()
	store.setErr = errors.New("disk full")
	store.mu.Unlock()

	err := c.PanicStop(context.Background())
	if err == nil {
		t.Error("expected persistence error")
	}
	if !c.IsPaused() {
		t.Error("local pause must hold despite persistence failure")
	}

	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if result.Executed {
		t.Error("execution allowed after failed panic stop")
	}
}

func TestResumeClearsPauseOnly(t *testing.T) {
	store := newFakeConfigStore()
	c := newTestController(t, enabledConfig(), store, &fakeExecutor{})

	if err := c.PanicStop(context.Background()); err != nil {
		t.Fatalf("PanicStop: %v", err)
	}

	c.Resume()
	c.Resume() // idempotent

	if c.IsPaused() {
		t.Error("resume did not clear pause")
	}
	if c.GetStatus().LastError != "" {
		t.Error("resume did not clear last error")
	}
	if store.stored(t).Enabled {
		t.Error("resume must not re-enable the persisted config")
	}

	// Still denied: config stays disabled until an explicit enable.
	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if result.Executed || result.Reason != ReasonDisabled {
		t.Errorf("result = %+v, want disabled denial", result)
	}
}

func TestLazyDailyResetOnDayChange(t *testing.T) {
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), &fakeExecutor{})

	day1 := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return day1 }
	c.resetDailyCount()

	for i := 0; i < 2; i++ {
		if r := c.AutoExecuteRun(context.Background(), "BRIEF", ""); !r.Executed {
			t.Fatalf("run %d denied: %+v", i+1, r)
		}
	}
	if r := c.AutoExecuteRun(context.Background(), "BRIEF", ""); r.Executed {
		t.Fatal("quota should be exhausted")
	}

	// Clock crosses midnight; quota is fresh without the timer firing.
	c.now = func() time.Time { return day1.Add(2 * time.Hour) }
	result := c.AutoExecuteRun(context.Background(), "BRIEF", "")
	if !result.Executed {
		t.Errorf("run after day change denied: %+v", result)
	}
	if got := c.GetStatus().DailyRunCount; got != 1 {
		t.Errorf("daily count after reset = %d, want 1", got)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMidnightResetTimerRearms(t *testing.T) {
	c := newTestController(t, enabledConfig(), newFakeConfigStore(), &fakeExecutor{})

	// Park the clock just before midnight so the timer fires in real
	// milliseconds instead of hours.
	var clockMu sync.Mutex
	current := time.Date(2026, 9, 1, 23, 59, 59, int(900*time.Millisecond), time.UTC)
	c.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}

	c.mu.Lock()
	c.dailyRunCount = 3
	c.lastResetDay = "2026-09-01"
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.RunMidnightReset(ctx)

	waitUntil(t, 2*time.Second, func() bool {
		return c.GetStatus().DailyRunCount == 0
	})

	// The loop re-arms for the following midnight; move the clock to the
	// next evening and bump the counter so only a second firing can
	// bring it back to zero.
	clockMu.Lock()
	current = time.Date(2026, 9, 2, 23, 59, 59, int(900*time.Millisecond), time.UTC)
	clockMu.Unlock()
	c.mu.Lock()
	c.dailyRunCount = 5
	c.lastResetDay = "2026-09-02"
	c.mu.Unlock()

	waitUntil(t, 2*time.Second, func() bool {
		return c.GetStatus().DailyRunCount == 0
	})
}

func TestNextMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	now := time.Date(2026, 3, 28, 22, 30, 0, 0, loc)
	next := nextMidnight(now, loc)

	if next.Hour() != 0 || next.Minute() != 0 {
		t.Errorf("next midnight = %v", next)
	}
	if next.Day() != 29 {
		t.Errorf("next midnight day = %d, want 29", next.Day())
	}
	if !next.After(now) {
		t.Error("next midnight not after now")
	}

	// 2026-03-29 is the Paris DST spring-forward night; the computed
	// midnight must still be valid local time.
	gap := next.Sub(now)
	if gap <= 0 || gap > 24*time.Hour {
		t.Errorf("gap = %v", gap)
	}
}
