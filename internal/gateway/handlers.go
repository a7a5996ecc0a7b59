package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/holdinghq/hq/internal/autopilot"
	"github.com/holdinghq/hq/internal/policy"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Uptime    string           `json:"uptime"`
	Autopilot autopilot.Status `json:"autopilot"`
	Scheduler struct {
		Mode string `json:"mode"`
		Jobs int    `json:"jobs"`
	} `json:"scheduler"`
	PendingApprovals int `json:"pending_approvals"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Autopilot: s.pilot.GetStatus(),
	}
	resp.Scheduler.Mode = string(s.sched.Mode())
	resp.Scheduler.Jobs = len(s.sched.Jobs())
	resp.PendingApprovals = len(s.approvals.Pending())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kpis.Snapshot(r.Context()))
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kpis.Probe(r.Context()))
}

func (s *Server) handleRunTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be 1-200")
			return
		}
		limit = n
	}
	records, err := s.store.ListRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type triggerRunRequest struct {
	PlatformKey string            `json:"platform_key"`
	Context     map[string]string `json:"context"`
	RequestedBy string            `json:"requested_by"`
}

// handleTriggerRun starts a run from the dashboard. Runs whose risk
// policy demands sign-off are queued for approval instead of executed,
// even on a manual trigger.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	runType := chi.URLParam(r, "type")
	if !s.registry.IsKnown(runType) {
		writeError(w, http.StatusNotFound, "unknown run type: "+runType)
		return
	}

	var req triggerRunRequest
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = "dashboard"
	}

	if policy.ShouldRequireApproval(s.registry, runType, "") {
		ar := s.approvals.RequestApproval(runType, requestedBy, "manual trigger requires approval")
		writeJSON(w, http.StatusAccepted, ar)
		return
	}

	result, err := s.executor.Execute(r.Context(), runType, req.PlatformKey, req.Context)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAutopilotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pilot.GetStatus())
}

func (s *Server) handleAutopilotConfig(w http.ResponseWriter, r *http.Request) {
	var cfg autopilot.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config: "+err.Error())
		return
	}
	if err := s.pilot.UpdateConfig(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.pilot.GetStatus())
}

func (s *Server) handleAutopilotToggle(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.pilot.ToggleAutopilot(r.Context(), enabled); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.pilot.GetStatus())
	}
}

// handleAutopilotPanic stops autonomous execution. The pause always
// takes effect; a persistence failure is reported but does not undo it.
func (s *Server) handleAutopilotPanic(w http.ResponseWriter, r *http.Request) {
	err := s.pilot.PanicStop(r.Context())
	status := s.pilot.GetStatus()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":  err.Error(),
			"status": status,
		})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAutopilotResume(w http.ResponseWriter, r *http.Request) {
	s.pilot.Resume()
	writeJSON(w, http.StatusOK, s.pilot.GetStatus())
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.approvals.Pending())
}

type decideApprovalRequest struct {
	DecidedBy string `json:"decided_by"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req decideApprovalRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DecidedBy == "" {
		req.DecidedBy = "dashboard"
	}

	ar, err := s.approvals.Approve(r.Context(), chi.URLParam(r, "id"), req.DecidedBy)
	if err != nil {
		if ar == nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		// Approved but the run itself failed.
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"request": ar,
		})
		return
	}
	writeJSON(w, http.StatusOK, ar)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	var req decideApprovalRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DecidedBy == "" {
		req.DecidedBy = "dashboard"
	}

	ar, err := s.approvals.Deny(chi.URLParam(r, "id"), req.DecidedBy)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ar)
}

func (s *Server) handleSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Jobs())
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

// handleSchedulerTick forces one decision cycle now.
func (s *Server) handleSchedulerTick(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Tick(r.Context()))
}
