package api

import (
	"net/http"
	"strings"

	"github.com/TimurManjosov/activitygate/internal/webhook"
)

type appStartRequest struct {
	Manual *bool `json:"manual,omitempty"`
}

type simStatusRequest struct {
	Status   string `json:"status"`
	Operator string `json:"operator"`
}

type queueStatusResponse struct {
	Pending int `json:"pending"`
}

// handleAppStart sends app_manual_start, or app_auto_start when the body
// says {"manual": false}.
func (s *Server) handleAppStart(w http.ResponseWriter, r *http.Request) {
	var req appStartRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	manual := req.Manual == nil || *req.Manual

	jobs, err := s.system.AppStarted(r.Context(), manual)
	if err != nil && len(jobs) == 0 {
		s.log.Error().Err(err).Msg("app start notification failed")
		InternalError(w, r, "Failed to enqueue system webhook")
		return
	}
	writeJSON(w, http.StatusAccepted, newIngestResponse(jobs))
}

func (s *Server) handleSimStatus(w http.ResponseWriter, r *http.Request) {
	var req simStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		BadRequestErrorWithFields(w, r, ErrCodeMissingField, "SIM status is required",
			map[string]string{"status": "Status is required"})
		return
	}

	jobs, err := s.system.SimStatusChanged(r.Context(), webhook.ParseSimState(req.Status), req.Operator)
	if err != nil && len(jobs) == 0 {
		s.log.Error().Err(err).Msg("sim status notification failed")
		InternalError(w, r, "Failed to enqueue system webhook")
		return
	}
	writeJSON(w, http.StatusAccepted, newIngestResponse(jobs))
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.queue.Pending(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("queue status failed")
		InternalError(w, r, "Failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, queueStatusResponse{Pending: n})
}
