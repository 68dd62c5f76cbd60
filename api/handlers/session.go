package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/geepers/cascade/orchestrator"
	"github.com/geepers/cascade/report"
	"github.com/geepers/cascade/types"
)

// SessionHandler serves the session lifecycle endpoints.
type SessionHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		orch:   orch,
		logger: logger.With(zap.String("component", "session_handler")),
	}
}

// StartRequest is the body of POST /api/v1/sessions.
type StartRequest struct {
	Description      string `json:"description"`
	Title            string `json:"title,omitempty"`
	WorkerCount      int    `json:"worker_count"`
	Mode             string `json:"mode"`
	EnableMidTier    bool   `json:"enable_mid_tier,omitempty"`
	EnableExecutive  bool   `json:"enable_executive,omitempty"`
	MidTierGroupSize int    `json:"mid_tier_group_size,omitempty"`
}

// StartResponse is returned with 202 Accepted.
type StartResponse struct {
	SessionID string             `json:"session_id"`
	State     types.SessionState `json:"state"`
}

// HandleStart serves POST /api/v1/sessions.
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	task := types.Task{
		Description:      req.Description,
		Title:            req.Title,
		WorkerCount:      req.WorkerCount,
		Mode:             types.ExecMode(req.Mode),
		EnableMidTier:    req.EnableMidTier,
		EnableExecutive:  req.EnableExecutive,
		MidTierGroupSize: req.MidTierGroupSize,
	}

	id, err := h.orch.Start(r.Context(), task)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, http.StatusAccepted, StartResponse{
		SessionID: id,
		State:     types.StateCreated,
	})
}

// HandleList serves GET /api/v1/sessions.
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.orch.ListSessions(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"session_ids": ids,
		"count":       len(ids),
	})
}

// HandleStatus serves GET /api/v1/sessions/{id}.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, session)
}

// HandleResults serves GET /api/v1/sessions/{id}/results. The optional
// format query parameter selects markdown or text rendering; the default
// is the JSON report inside the standard envelope.
func (h *SessionHandler) HandleResults(w http.ResponseWriter, r *http.Request) {
	rep, err := h.orch.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	formatParam := r.URL.Query().Get("format")
	if formatParam == "" || formatParam == string(report.FormatJSON) {
		WriteSuccess(w, http.StatusOK, rep)
		return
	}

	format, err := report.ParseFormat(formatParam)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	rendered, err := report.Render(rep, format)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	contentType := "text/plain; charset=utf-8"
	if format == report.FormatMarkdown {
		contentType = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered))
}

// CancelResponse is the body returned by the cancel endpoint.
type CancelResponse struct {
	Cancelled bool               `json:"cancelled"`
	State     types.SessionState `json:"state"`
}

// HandleCancel serves POST /api/v1/sessions/{id}/cancel. Cancelling an
// already-terminal session is not an error; the response reports whether
// this call performed the transition.
func (h *SessionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ok, err := h.orch.Cancel(r.Context(), id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	session, err := h.orch.Status(r.Context(), id)
	if err != nil {
		// Cancel of an unknown session reports false; surface the 404 here.
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, http.StatusOK, CancelResponse{
		Cancelled: ok,
		State:     session.State,
	})
}

// HandleDelete serves DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Delete(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Register wires the session routes onto a mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.HandleStart)
	mux.HandleFunc("GET /api/v1/sessions", h.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.HandleStatus)
	mux.HandleFunc("GET /api/v1/sessions/{id}/results", h.HandleResults)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", h.HandleCancel)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.HandleDelete)
}
