// Package kpi aggregates the dashboard's key metrics across platforms.
// Each widget degrades independently: one upstream being down shows an
// error on that widget, never an empty dashboard.
package kpi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/holdinghq/hq/internal/adapters/github"
	"github.com/holdinghq/hq/internal/adapters/stripepay"
	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/runs"
)

// Platform is one SaaS product in the holding.
type Platform struct {
	Key       string `yaml:"key" json:"key"`
	Name      string `yaml:"name" json:"name"`
	Repo      string `yaml:"repo" json:"repo"`
	HealthURL string `yaml:"health_url" json:"health_url,omitempty"`
}

// EngineeringWidget is the per-platform GitHub snapshot.
type EngineeringWidget struct {
	PlatformKey string              `json:"platform_key"`
	Summary     *github.RepoSummary `json:"summary,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// RevenueWidget is the Stripe snapshot.
type RevenueWidget struct {
	Summary *stripepay.RevenueSummary `json:"summary,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// RunsWidget summarizes recent autonomous activity.
type RunsWidget struct {
	Recent []*runs.Record `json:"recent,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ProbeResult is one platform's connectivity check.
type ProbeResult struct {
	PlatformKey string        `json:"platform_key"`
	URL         string        `json:"url"`
	Up          bool          `json:"up"`
	StatusCode  int           `json:"status_code,omitempty"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
}

// Snapshot is the full dashboard payload.
type Snapshot struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Engineering []EngineeringWidget `json:"engineering"`
	Revenue     RevenueWidget       `json:"revenue"`
	Runs        RunsWidget          `json:"runs"`
	Probes      []ProbeResult       `json:"probes,omitempty"`
}

// probeTimeout bounds each connectivity check so one dead platform
// cannot stall the snapshot.
const probeTimeout = 5 * time.Second

// HistorySource provides recent run records for the runs widget.
type HistorySource interface {
	ListRecent(limit int) ([]*runs.Record, error)
}

// Aggregator builds dashboard snapshots.
type Aggregator struct {
	platforms  []Platform
	github     *github.Client
	stripe     stripepay.Source
	history    HistorySource
	httpClient *http.Client
	log        *slog.Logger
}

// NewAggregator creates a KPI aggregator. Any source may be nil; its
// widget then reports "not configured".
func NewAggregator(platforms []Platform, gh *github.Client, stripe stripepay.Source, history HistorySource) *Aggregator {
	return &Aggregator{
		platforms:  platforms,
		github:     gh,
		stripe:     stripe,
		history:    history,
		httpClient: &http.Client{Timeout: probeTimeout},
		log:        logging.WithComponent("kpi"),
	}
}

// Platforms returns the configured platform list.
func (a *Aggregator) Platforms() []Platform {
	out := make([]Platform, len(a.platforms))
	copy(out, a.platforms)
	return out
}

// Snapshot gathers all widgets. Sources are fetched concurrently and
// each failure is confined to its widget.
func (a *Aggregator) Snapshot(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		GeneratedAt: time.Now(),
		Engineering: make([]EngineeringWidget, len(a.platforms)),
	}

	var wg sync.WaitGroup

	for i, p := range a.platforms {
		wg.Add(1)
		go func(i int, p Platform) {
			defer wg.Done()
			snap.Engineering[i] = a.engineeringWidget(ctx, p)
		}(i, p)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap.Revenue = a.revenueWidget(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap.Runs = a.runsWidget()
	}()

	wg.Wait()
	return snap
}

func (a *Aggregator) engineeringWidget(ctx context.Context, p Platform) EngineeringWidget {
	w := EngineeringWidget{PlatformKey: p.Key}
	if a.github == nil || p.Repo == "" {
		w.Error = "not configured"
		return w
	}
	summary, err := a.github.GetRepoSummary(ctx, p.Repo)
	if err != nil {
		a.log.Warn("engineering widget degraded", "platform", p.Key, "error", err)
		w.Error = err.Error()
		return w
	}
	w.Summary = summary
	return w
}

func (a *Aggregator) revenueWidget(ctx context.Context) RevenueWidget {
	if a.stripe == nil {
		return RevenueWidget{Error: "not configured"}
	}
	summary, err := a.stripe.GetRevenueSummary(ctx)
	if err != nil {
		a.log.Warn("revenue widget degraded", "error", err)
		return RevenueWidget{Error: err.Error()}
	}
	return RevenueWidget{Summary: summary}
}

func (a *Aggregator) runsWidget() RunsWidget {
	if a.history == nil {
		return RunsWidget{Error: "not configured"}
	}
	recent, err := a.history.ListRecent(10)
	if err != nil {
		a.log.Warn("runs widget degraded", "error", err)
		return RunsWidget{Error: err.Error()}
	}
	return RunsWidget{Recent: recent}
}

// Probe checks each platform's health endpoint. Platforms without a
// health URL are skipped. Checks run concurrently, each bounded by
// probeTimeout.
func (a *Aggregator) Probe(ctx context.Context) []ProbeResult {
	targets := make([]Platform, 0, len(a.platforms))
	for _, p := range a.platforms {
		if p.HealthURL != "" {
			targets = append(targets, p)
		}
	}

	results := make([]ProbeResult, len(targets))
	var wg sync.WaitGroup
	for i, p := range targets {
		wg.Add(1)
		go func(i int, p Platform) {
			defer wg.Done()
			results[i] = a.probeOne(ctx, p)
		}(i, p)
	}
	wg.Wait()
	return results
}

func (a *Aggregator) probeOne(ctx context.Context, p Platform) ProbeResult {
	result := ProbeResult{PlatformKey: p.Key, URL: p.HealthURL}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.HealthURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	result.Up = resp.StatusCode >= 200 && resp.StatusCode < 300
	return result
}
