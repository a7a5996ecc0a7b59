package runs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/holdinghq/hq/internal/ai"
	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/registry"
)

// Executor performs the actual work of a run. Implementations are opaque
// remote calls; callers must tolerate arbitrary latency and treat any
// returned error as a run failure.
type Executor interface {
	Execute(ctx context.Context, runType, platformKey string, contextData map[string]string) (*Result, error)
}

// GatewayExecutor executes runs by calling the AI gateway and persisting
// a run record around the call. The record transitions
// pending → running → completed/failed.
type GatewayExecutor struct {
	registry *registry.Registry
	client   *ai.Client
	store    *Store
	events   EventSink
}

// NewGatewayExecutor creates an executor backed by the AI gateway.
// The event sink is optional; when nil no live events are published.
func NewGatewayExecutor(reg *registry.Registry, client *ai.Client, store *Store, events EventSink) *GatewayExecutor {
	return &GatewayExecutor{
		registry: reg,
		client:   client,
		store:    store,
		events:   events,
	}
}

// Execute runs a single executive run end to end.
func (e *GatewayExecutor) Execute(ctx context.Context, runType, platformKey string, contextData map[string]string) (*Result, error) {
	rt, ok := e.registry.Get(runType)
	if !ok {
		return nil, fmt.Errorf("unknown run type: %s", runType)
	}

	record := &Record{
		ID:          uuid.NewString(),
		RunType:     runType,
		PlatformKey: platformKey,
		Status:      StatusPending,
		TriggeredBy: contextData["triggered_by"],
		CreatedAt:   time.Now(),
	}
	if err := e.store.SaveRun(record); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	// The run id rides on the context so log lines here and downstream
	// carry it alongside any correlation id from the gateway.
	ctx = logging.ContextWithRunID(ctx, record.ID)
	log := logging.WithContext(ctx).With("component", "executor")

	if err := e.store.UpdateStatus(record.ID, StatusRunning); err != nil {
		log.Warn("failed to mark run running", "error", err)
	}
	e.publish(Event{Type: "run_started", RunID: record.ID, RunType: runType, Status: StatusRunning, At: time.Now()})

	log.Info("executing run",
		"run_type", runType,
		"platform", platformKey,
	)

	completion, err := e.client.Complete(ctx, runSystemPrompt, buildRunPrompt(rt, platformKey, contextData))
	if err != nil {
		if storeErr := e.store.FailRun(record.ID, err.Error()); storeErr != nil {
			log.Warn("failed to mark run failed", "error", storeErr)
		}
		e.publish(Event{Type: "run_failed", RunID: record.ID, RunType: runType, Status: StatusFailed, At: time.Now()})
		return nil, fmt.Errorf("run execution failed: %w", err)
	}

	summary := strings.TrimSpace(completion.Content)
	if err := e.store.CompleteRun(record.ID, summary, completion.Model); err != nil {
		log.Warn("failed to mark run completed", "error", err)
	}
	e.publish(Event{Type: "run_completed", RunID: record.ID, RunType: runType, Status: StatusCompleted, At: time.Now()})

	log.Info("run completed",
		"run_type", runType,
		"model", completion.Model,
	)

	return &Result{
		RunID:            record.ID,
		ExecutiveSummary: summary,
		ModelUsed:        completion.Model,
		Steps:            rt.Steps,
	}, nil
}

func (e *GatewayExecutor) publish(ev Event) {
	if e.events == nil {
		return
	}
	e.events.Publish(ev)
}

const runSystemPrompt = "You are the executive analyst for a SaaS holding company. " +
	"Produce a concise executive summary for the requested run. " +
	"Lead with the headline finding, then supporting detail."

// buildRunPrompt renders the run request the gateway sees: the run type's
// display metadata, its step labels, and any caller-provided context.
func buildRunPrompt(rt registry.RunType, platformKey string, contextData map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", rt.Title)
	fmt.Fprintf(&b, "Description: %s\n", rt.Description)
	if platformKey != "" {
		fmt.Fprintf(&b, "Platform: %s\n", platformKey)
	}
	b.WriteString("Pipeline stages:\n")
	for i, step := range rt.Steps {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
	}
	for k, v := range contextData {
		if k == "triggered_by" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	return b.String()
}
