package autopilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/notify"
	"github.com/holdinghq/hq/internal/policy"
	"github.com/holdinghq/hq/internal/registry"
	"github.com/holdinghq/hq/internal/runs"
)

// Controller gates unattended run execution. It wraps the pure policy
// checks with quota tracking, the allow-list, and pause-on-error state.
//
// Configuration is persisted through the ConfigStore; runtime state
// (daily count, pause flag) is process-local and resets on restart.
type Controller struct {
	registry *registry.Registry
	store    ConfigStore
	executor runs.Executor
	notifier notify.Notifier
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger

	mu            sync.Mutex
	config        Config
	dailyRunCount int
	lastResetDay  string
	isPaused      bool
	lastError     string
}

// NewController creates an autopilot controller. The persisted config is
// loaded immediately; a missing or malformed document falls back to
// defaults and is not an error.
func NewController(reg *registry.Registry, store ConfigStore, executor runs.Executor, loc *time.Location) *Controller {
	if loc == nil {
		loc = time.Local
	}
	c := &Controller{
		registry: reg,
		store:    store,
		executor: executor,
		loc:      loc,
		now:      time.Now,
		log:      logging.WithComponent("autopilot"),
	}
	c.config = c.loadConfig()
	c.lastResetDay = c.now().In(c.loc).Format("2006-01-02")
	return c
}

// SetNotifier sets the notification sink. Optional; without it no
// notifications are sent.
func (c *Controller) SetNotifier(n notify.Notifier) {
	c.notifier = n
}

// loadConfig reads the persisted config document, falling back to
// defaults when absent or malformed.
func (c *Controller) loadConfig() Config {
	doc, err := c.store.Get(ConfigKey)
	if err != nil {
		c.log.Warn("failed to read autopilot config, using defaults", "error", err)
		return *DefaultConfig()
	}
	if doc == nil {
		return *DefaultConfig()
	}

	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		c.log.Warn("malformed autopilot config document, using defaults", "error", err)
		return *DefaultConfig()
	}
	return cfg
}

// Config returns a copy of the current configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// GetStatus returns a snapshot of controller state.
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetDailyLocked()
	return Status{
		Config:        c.config,
		DailyRunCount: c.dailyRunCount,
		IsPaused:      c.isPaused,
		LastError:     c.lastError,
	}
}

// CanAutoRun evaluates whether a run type may execute unattended right
// now. Checks short-circuit in a fixed order so the returned reason
// names the first gate that fired.
func (c *Controller) CanAutoRun(runType string) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canAutoRunLocked(runType)
}

func (c *Controller) canAutoRunLocked(runType string) Decision {
	c.maybeResetDailyLocked()

	if c.isPaused {
		return Decision{Allowed: false, Reason: ReasonPaused}
	}
	if !c.config.Enabled {
		return Decision{Allowed: false, Reason: ReasonDisabled}
	}
	if !c.config.allows(runType) {
		return Decision{Allowed: false, Reason: ReasonNotAllowListed}
	}
	if c.dailyRunCount >= c.config.MaxDailyAutonomousRuns {
		return Decision{Allowed: false, Reason: ReasonQuotaReached}
	}
	if c.config.RequireApprovalForHighRisk {
		if rt, ok := c.registry.Get(runType); ok &&
			(rt.Risk == registry.RiskHigh || rt.Risk == registry.RiskCritical) {
			return Decision{Allowed: false, Reason: ReasonHighRisk}
		}
	}
	if !policy.CanAutoExecute(c.registry, runType, c.config.Enabled) {
		return Decision{Allowed: false, Reason: ReasonNotAutoExecutable}
	}
	return Decision{Allowed: true}
}

// AutoExecuteRun attempts an unattended execution of the given run type.
// An unknown run type fails fast without touching the executor. A policy
// denial is returned as a structured result with no side effects. On the
// allowed path the daily count is incremented before the executor call
// so a crash mid-call cannot push past the quota on retry.
func (c *Controller) AutoExecuteRun(ctx context.Context, runType, platformKey string) ExecResult {
	if !c.registry.IsKnown(runType) {
		c.log.Warn("auto-execution rejected: unknown run type", "run_type", runType)
		return ExecResult{Executed: false, Reason: ReasonUnknownRunType}
	}

	c.mu.Lock()
	decision := c.canAutoRunLocked(runType)
	if !decision.Allowed {
		c.mu.Unlock()
		c.log.Info("auto-execution denied",
			"run_type", runType,
			"reason", decision.Reason,
		)
		return ExecResult{Executed: false, RequiresApproval: true, Reason: decision.Reason}
	}
	c.dailyRunCount++
	count := c.dailyRunCount
	cfg := c.config
	c.mu.Unlock()

	c.log.Info("auto-executing run",
		"run_type", runType,
		"platform", platformKey,
		"daily_count", count,
		"daily_max", cfg.MaxDailyAutonomousRuns,
	)

	result, err := c.executor.Execute(ctx, runType, platformKey, map[string]string{
		"triggered_by": "autopilot",
	})
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		paused := false
		if cfg.PauseOnError {
			c.isPaused = true
			paused = true
		}
		c.mu.Unlock()

		c.log.Error("auto-execution failed",
			"run_type", runType,
			"paused", paused,
			"error", err,
		)
		c.notify(ctx, notify.Notification{
			Title:   "Autopilot run failed",
			Message: fmt.Sprintf("Run %s failed: %v", runType, err),
			Urgency: notify.UrgencyUrgent,
		})
		return ExecResult{Executed: false, Error: err.Error()}
	}

	if cfg.NotifyOnAutoExecution {
		c.notify(ctx, notify.Notification{
			Title:   "Autopilot run completed",
			Message: fmt.Sprintf("Run %s executed unattended (%d/%d today).", runType, count, cfg.MaxDailyAutonomousRuns),
			Urgency: notify.UrgencyInfo,
		})
	}
	return ExecResult{Executed: true, Result: result}
}

// ToggleAutopilot enables or disables autopilot, persisting the change
// as a read-modify-write of the whole config document. The cached copy
// is the base of the write: re-reading the store here could substitute
// defaults on a transient read error and wipe the operator's allow-list
// and quota.
func (c *Controller) ToggleAutopilot(ctx context.Context, enabled bool) error {
	cfg := c.Config()
	cfg.Enabled = enabled
	if err := c.persistConfig(cfg); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	c.log.Info("autopilot toggled", "enabled", enabled)
	c.notify(ctx, notify.Notification{
		Title:   "Autopilot " + state,
		Message: fmt.Sprintf("Autopilot has been %s by the operator.", state),
		Urgency: notify.UrgencyInfo,
	})
	return nil
}

// UpdateConfig validates and persists a full configuration document.
func (c *Controller) UpdateConfig(cfg Config) error {
	if cfg.MaxDailyAutonomousRuns < 0 {
		return fmt.Errorf("max_daily_autonomous_runs must be >= 0")
	}
	for _, id := range cfg.AllowedRunTypes {
		if !c.registry.IsKnown(id) {
			return fmt.Errorf("unknown run type in allow-list: %s", id)
		}
	}
	return c.persistConfig(cfg)
}

// persistConfig writes the config document and updates the cached copy.
func (c *Controller) persistConfig(cfg Config) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal autopilot config: %w", err)
	}
	if err := c.store.Set(ConfigKey, doc); err != nil {
		return fmt.Errorf("failed to persist autopilot config: %w", err)
	}
	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
	return nil
}

// PanicStop halts all auto-execution immediately. The local pause takes
// effect before the persistence write, and regardless of its outcome: safety must
// degrade to "stop", not "continue", when the store is unreachable.
func (c *Controller) PanicStop(ctx context.Context) error {
	c.mu.Lock()
	c.isPaused = true
	c.mu.Unlock()

	c.log.Warn("panic stop triggered")
	c.notify(ctx, notify.Notification{
		Title:   "Autopilot panic stop",
		Message: "All autonomous execution halted. Resume and re-enable explicitly to continue.",
		Urgency: notify.UrgencyUrgent,
	})

	cfg := c.Config()
	cfg.Enabled = false
	if err := c.persistConfig(cfg); err != nil {
		c.log.Error("panic stop: failed to persist disabled config (local pause still in effect)", "error", err)
		return err
	}
	return nil
}

// Resume clears the pause flag and last error. It does not re-enable
// the persisted config: recovering from a panic stop requires a separate
// explicit enable. Safe to call repeatedly.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.isPaused = false
	c.lastError = ""
	c.mu.Unlock()
	c.log.Info("autopilot resumed")
}

// IsPaused reports whether auto-execution is currently paused.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isPaused
}

func (c *Controller) notify(ctx context.Context, n notify.Notification) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, n)
}
