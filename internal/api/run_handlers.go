package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/engine"
	"github.com/JakeFAU/modalprogress/internal/metrics"
)

// RunHandler exposes the live run: its status and a remote cancel trigger.
type RunHandler struct {
	ctrl   RunController
	logger *zap.Logger
}

// NewRunHandler wires the engine and logger.
func NewRunHandler(ctrl RunController, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{ctrl: ctrl, logger: logger}
}

// Current handles GET /v1/run. It returns {"run": {...}} describing the
// in-flight run, or a run with state "idle" and no counts when nothing runs.
func (h *RunHandler) Current(w http.ResponseWriter, _ *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toStatusDTO(h.ctrl.Status())})
}

// Cancel handles POST /v1/run/cancel. It returns 202 once the request has
// been handed to the engine, or 409 when no run is in flight. The worker
// acknowledges the request at its next report; poll GET /v1/run or the run
// history for the outcome.
func (h *RunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	st := h.ctrl.Status()
	if st.State != engine.Running {
		writeError(w, http.StatusConflict, "no run in progress")
		return
	}
	h.ctrl.RequestCancel()
	metrics.ObserveRemoteCancel()
	h.logger.Info("remote cancel requested",
		zap.String("run_id", st.RunID.String()),
		zap.String("request_id", requestID(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": st.RunID.String(),
		"status": "cancel_requested",
	})
}

func (h *RunHandler) state() string {
	if h.ctrl == nil {
		return "unavailable"
	}
	return h.ctrl.Status().State.String()
}

type statusDTO struct {
	State           string     `json:"state"`
	RunID           string     `json:"run_id,omitempty"`
	Title           string     `json:"title,omitempty"`
	Action          string     `json:"action,omitempty"`
	Current         int64      `json:"current"`
	Total           int64      `json:"total"`
	Fraction        float64    `json:"fraction"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	ElapsedMs       int64      `json:"elapsed_ms"`
	CancelRequested bool       `json:"cancel_requested"`
}

func toStatusDTO(st engine.Status) statusDTO {
	dto := statusDTO{
		State:           st.State.String(),
		Title:           st.Title,
		Action:          st.Action,
		Current:         st.Current,
		Total:           st.Total,
		ElapsedMs:       st.Elapsed.Milliseconds(),
		CancelRequested: st.CancelRequested,
	}
	if st.State == engine.Running {
		dto.RunID = st.RunID.String()
		started := st.StartedAt
		dto.StartedAt = &started
	}
	if st.Total > 0 {
		dto.Fraction = min(float64(st.Current)/float64(st.Total), 1)
	}
	return dto
}
