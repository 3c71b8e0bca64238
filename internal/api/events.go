package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

// ingestResponse lists the delivery jobs created for an event.
type ingestResponse struct {
	Matched int      `json:"matched"`
	JobIDs  []string `json:"job_ids"`
}

func newIngestResponse(jobs []queue.Job) ingestResponse {
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ingestResponse{Matched: len(jobs), JobIDs: ids}
}

// handleIngest accepts an event whose kind is fixed by the route.
func (s *Server) handleIngest(kind rules.ActivityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env events.Envelope
		if !decodeBody(w, r, &env, false) {
			return
		}
		env.Type = string(kind)
		s.ingest(w, r, env)
	}
}

func (s *Server) handleIngestEnvelope(w http.ResponseWriter, r *http.Request) {
	var env events.Envelope
	if !decodeBody(w, r, &env, false) {
		return
	}
	s.ingest(w, r, env)
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, env events.Envelope) {
	ev, err := env.Event(s.now())
	if errors.Is(err, events.ErrUnknownType) {
		BadRequestError(w, r, ErrCodeInvalidEventType, "Event type must be one of: sms, call, push")
		return
	}
	if err != nil {
		BadRequestError(w, r, ErrCodeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(ev.Sender()) == "" {
		field := "from"
		if ev.Kind() == rules.ActivityPush {
			field = "packageName"
		}
		BadRequestErrorWithFields(w, r, ErrCodeMissingField, "Event sender is required",
			map[string]string{field: "Sender is required"})
		return
	}

	jobs, err := s.dispatcher.Dispatch(r.Context(), ev)
	if err != nil && len(jobs) == 0 {
		s.log.Error().Err(err).Str("kind", string(ev.Kind())).Msg("dispatch failed")
		InternalError(w, r, "Failed to dispatch event")
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Int("enqueued", len(jobs)).Msg("event partially dispatched")
	}
	writeJSON(w, http.StatusAccepted, newIngestResponse(jobs))
}
