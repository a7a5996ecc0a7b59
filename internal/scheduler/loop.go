package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/holdinghq/hq/internal/approval"
	"github.com/holdinghq/hq/internal/autopilot"
	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/runs"
)

// Mode selects the decision strategy.
type Mode string

const (
	// ModeStatus only reports which jobs are due; execution is left to
	// the operator.
	ModeStatus Mode = "status"
	// ModeAIDecide delegates the run/don't-run decision to the
	// reasoning service and triggers the approved jobs.
	ModeAIDecide Mode = "ai_decide"
)

// AutoRunner gates and executes a run unattended. Implemented by the
// autopilot controller.
type AutoRunner interface {
	AutoExecuteRun(ctx context.Context, runType, platformKey string) autopilot.ExecResult
}

// DecisionClient asks the reasoning service for a scheduling decision.
type DecisionClient interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// ApprovalSink receives runs the autopilot denied so they can be queued
// for human approval. Optional. Satisfied by approval.Manager.
type ApprovalSink interface {
	RequestApproval(runType, requestedBy, reason string) *approval.Request
}

// JobResult is the outcome for one job within a single decision cycle.
type JobResult struct {
	JobKey   string `json:"job_key"`
	RunType  string `json:"run_type"`
	Executed bool   `json:"executed"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// Report is the outcome of one decision cycle.
type Report struct {
	Mode        Mode          `json:"mode"`
	At          time.Time     `json:"at"`
	Reasoning   string        `json:"reasoning,omitempty"`
	NextCheckIn time.Duration `json:"next_check_in"`
	Due         []JobStatus   `json:"due,omitempty"`
	Results     []JobResult   `json:"results,omitempty"`
}

// Config holds scheduler settings.
type Config struct {
	Mode                 Mode   `yaml:"mode"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	Timezone             string `yaml:"timezone"`
}

// DefaultConfig returns scheduler defaults: deterministic status mode,
// 30 second polling, Paris time.
func DefaultConfig() *Config {
	return &Config{
		Mode:                 ModeStatus,
		CheckIntervalSeconds: 30,
		Timezone:             "Europe/Paris",
	}
}

// Bounds applied to the reasoning service's requested check-in interval
// so a bad decision cannot stall or hammer the loop.
const (
	minCheckInterval = time.Minute
	maxCheckInterval = 6 * time.Hour
)

// Runner drives the decision loop. The decision step itself is a pure
// function of (now, jobs, recent runs), so it is testable without
// timers; Run only supplies the ticking.
type Runner struct {
	jobs      []Job
	history   HistorySource
	runner    AutoRunner
	decider   DecisionClient
	approvals ApprovalSink
	mode      Mode
	interval  time.Duration
	loc       *time.Location
	now       func() time.Time
	log       *slog.Logger
}

// NewRunner creates a scheduler runner over the given job registry.
func NewRunner(cfg *Config, jobs []Job, history HistorySource, runner AutoRunner, decider DecisionClient) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := ValidateJobs(jobs); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(cfg.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeStatus
	}
	return &Runner{
		jobs:     jobs,
		history:  history,
		runner:   runner,
		decider:  decider,
		mode:     mode,
		interval: interval,
		loc:      loc,
		now:      time.Now,
		log:      logging.WithComponent("scheduler"),
	}, nil
}

// SetApprovalSink wires the optional approval queue for denied runs.
func (r *Runner) SetApprovalSink(s ApprovalSink) {
	r.approvals = s
}

// Jobs returns the job registry.
func (r *Runner) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Mode returns the active decision mode.
func (r *Runner) Mode() Mode { return r.mode }

// Status computes the deterministic due-check report at the current
// local time. Used by both modes for display.
func (r *Runner) Status() []JobStatus {
	return StatusReport(r.jobs, r.now().In(r.loc), r.history)
}

// Tick performs one decision cycle and returns the report. Reasoning
// service problems degrade to a safe empty decision instead of an
// error, and one job's failure does not abort the rest.
func (r *Runner) Tick(ctx context.Context) *Report {
	now := r.now().In(r.loc)
	report := &Report{
		Mode:        r.mode,
		At:          now,
		NextCheckIn: r.interval,
	}

	if r.mode == ModeStatus {
		report.Due = StatusReport(r.jobs, now, r.history)
		return report
	}

	decision := r.decide(ctx, now)
	report.Reasoning = decision.Reasoning
	report.NextCheckIn = clampInterval(time.Duration(decision.NextCheckInMinutes) * time.Minute)

	for _, key := range decision.JobsToRun {
		job, ok := r.findJob(key)
		if !ok || !job.Enabled {
			// Unknown and disabled keys are skipped, not errors: the
			// reasoning service is free text and may hallucinate keys.
			r.log.Debug("skipping job from decision", "job_key", key, "known", ok)
			continue
		}

		result := r.runner.AutoExecuteRun(ctx, job.RunType, "")
		jr := JobResult{
			JobKey:   job.Key,
			RunType:  job.RunType,
			Executed: result.Executed,
			Reason:   result.Reason,
			Error:    result.Error,
		}
		if result.Result != nil {
			jr.RunID = result.Result.RunID
		}
		report.Results = append(report.Results, jr)

		if !result.Executed && result.RequiresApproval && r.approvals != nil {
			_ = r.approvals.RequestApproval(job.RunType, "scheduler", result.Reason)
		}
	}

	return report
}

// decide builds the prompt, calls the reasoning service, and parses the
// response. Any failure, transport or malformed output, yields the safe
// empty decision.
func (r *Runner) decide(ctx context.Context, now time.Time) Decision {
	prompt := BuildDecisionPrompt(now, r.jobs, r.collectLastRuns())

	raw, err := r.decider.Decide(ctx, prompt)
	if err != nil {
		r.log.Warn("reasoning service call failed, using safe empty decision", "error", err)
		return safeEmptyDecision("decision call failed")
	}

	decision := ParseDecision(raw)
	r.log.Info("scheduling decision",
		"jobs_to_run", decision.JobsToRun,
		"next_check_minutes", decision.NextCheckInMinutes,
	)
	return decision
}

// collectLastRuns fetches the most recent run per job run type. Lookup
// failures degrade to "never ran" in the prompt.
func (r *Runner) collectLastRuns() map[string]*runs.Record {
	out := make(map[string]*runs.Record, len(r.jobs))
	if r.history == nil {
		return out
	}
	for _, job := range r.jobs {
		if _, done := out[job.RunType]; done {
			continue
		}
		if lr, err := r.history.LastByType(job.RunType); err == nil && lr != nil {
			out[job.RunType] = lr
		}
	}
	return out
}

func (r *Runner) findJob(key string) (Job, bool) {
	for _, job := range r.jobs {
		if job.Key == key {
			return job, true
		}
	}
	return Job{}, false
}

func clampInterval(d time.Duration) time.Duration {
	if d < minCheckInterval {
		return minCheckInterval
	}
	if d > maxCheckInterval {
		return maxCheckInterval
	}
	return d
}

// Run drives the loop until the context is cancelled. The tick interval
// follows the reasoning service's requested check-in time in ai_decide
// mode, clamped to sane bounds.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("scheduler started",
		"mode", r.mode,
		"interval", r.interval,
		"jobs", len(r.jobs),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	current := r.interval
	for {
		select {
		case <-ctx.Done():
			r.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			report := r.Tick(ctx)
			if report.NextCheckIn > 0 && report.NextCheckIn != current {
				current = report.NextCheckIn
				ticker.Reset(current)
				r.log.Debug("adjusted check interval", "interval", current)
			}
		}
	}
}
