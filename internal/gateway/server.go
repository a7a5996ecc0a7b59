// Package gateway is the HTTP surface of HQ: the REST API the dashboard
// calls and the WebSocket stream it subscribes to.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/holdinghq/hq/internal/approval"
	"github.com/holdinghq/hq/internal/autopilot"
	"github.com/holdinghq/hq/internal/kpi"
	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/registry"
	"github.com/holdinghq/hq/internal/runs"
	"github.com/holdinghq/hq/internal/scheduler"
)

// Config holds gateway settings.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Server serves the dashboard API.
type Server struct {
	config    *Config
	registry  *registry.Registry
	store     *runs.Store
	executor  runs.Executor
	pilot     *autopilot.Controller
	sched     *scheduler.Runner
	approvals *approval.Manager
	kpis      *kpi.Aggregator
	hub       *Hub

	httpServer *http.Server
	upgrader   websocket.Upgrader
	startedAt  time.Time
	log        *slog.Logger
}

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Registry  *registry.Registry
	Store     *runs.Store
	Executor  runs.Executor
	Autopilot *autopilot.Controller
	Scheduler *scheduler.Runner
	Approvals *approval.Manager
	KPIs      *kpi.Aggregator
	Hub       *Hub
}

// NewServer creates the gateway server.
func NewServer(config *Config, deps Deps) *Server {
	if config == nil {
		config = &Config{Host: "127.0.0.1", Port: 8090}
	}
	s := &Server{
		config:    config,
		registry:  deps.Registry,
		store:     deps.Store,
		executor:  deps.Executor,
		pilot:     deps.Autopilot,
		sched:     deps.Scheduler,
		approvals: deps.Approvals,
		kpis:      deps.KPIs,
		hub:       deps.Hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from another origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logging.WithComponent("gateway"),
	}
	return s
}

// Router builds the chi router. Exposed separately so handler tests can
// drive it with httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/kpis", s.handleKPIs)
		r.Get("/kpis/probe", s.handleProbe)
		r.Get("/run-types", s.handleRunTypes)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Post("/runs/{type}", s.handleTriggerRun)

		r.Route("/autopilot", func(r chi.Router) {
			r.Get("/", s.handleAutopilotStatus)
			r.Put("/config", s.handleAutopilotConfig)
			r.Post("/enable", s.handleAutopilotToggle(true))
			r.Post("/disable", s.handleAutopilotToggle(false))
			r.Post("/panic", s.handleAutopilotPanic)
			r.Post("/resume", s.handleAutopilotResume)
		})

		r.Route("/approvals", func(r chi.Router) {
			r.Get("/", s.handleListApprovals)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/deny", s.handleDeny)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/jobs", s.handleSchedulerJobs)
			r.Get("/status", s.handleSchedulerStatus)
			r.Post("/tick", s.handleSchedulerTick)
		})
	})

	return r
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("gateway listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("gateway shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// chi's request id doubles as the correlation id for every log
		// line downstream of this request.
		reqID := middleware.GetReqID(r.Context())
		ctx := logging.ContextWithCorrelationID(r.Context(), reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"correlation_id", reqID,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
