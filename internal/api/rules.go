package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/activitygate/internal/audit"
	"github.com/TimurManjosov/activitygate/internal/queue"
	"github.com/TimurManjosov/activitygate/internal/rules"
	"github.com/TimurManjosov/activitygate/internal/rulestore"
	"github.com/TimurManjosov/activitygate/internal/validation"
)

// testResponse reports the outcome of a synchronous test delivery.
type testResponse struct {
	Outcome string `json:"outcome"`
	Status  int    `json:"status,omitempty"`
	Body    string `json:"body,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	all, err := s.rules.GetAll(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list rules failed")
		InternalError(w, r, "Failed to load rules")
		return
	}
	body, err := json.Marshal(all)
	if err != nil {
		InternalError(w, r, "Failed to encode rules")
		return
	}
	writeCached(w, r, body)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleSaveRule creates or replaces a rule. Fields missing from the body
// take their defaults; an empty key makes the store generate one.
func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	rule := rules.New("", "", s.appName)
	if !decodeBody(w, r, &rule, false) {
		return
	}

	if res := validation.ValidateRule(rule); !res.Valid {
		ValidationError(w, r, "Rule validation failed", res.Errors)
		return
	}

	created := rule.Key == ""
	ev := audit.NewEventBuilder(r).WithAction(audit.ActionCreated).WithAfter(&rule)
	if !created {
		if before, err := s.rules.Get(r.Context(), rule.Key); err == nil {
			ev.WithAction(audit.ActionUpdated).WithBefore(&before)
		}
	}

	saved, err := s.rules.Save(r.Context(), rule)
	if err != nil {
		s.recordAudit(ev.ForRule(rule.Key).Failure(err))
		if errors.Is(err, rulestore.ErrStoreWrite) {
			s.log.Error().Err(err).Str("rule_key", rule.Key).Msg("save rule failed")
			InternalError(w, r, "Failed to save rule")
			return
		}
		BadRequestError(w, r, ErrCodeValidation, err.Error())
		return
	}

	s.recordAudit(ev.ForRule(saved.Key).WithAfter(&saved))

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, saved)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if res := validation.ValidateKey(key); !res.Valid {
		BadRequestErrorWithFields(w, r, ErrCodeInvalidKey, "Invalid rule key", res.Errors)
		return
	}
	ev := audit.NewEventBuilder(r).ForRule(key).WithAction(audit.ActionDeleted)
	if before, err := s.rules.Get(r.Context(), key); err == nil {
		ev.WithBefore(&before)
	}
	if err := s.rules.Remove(r.Context(), key); err != nil {
		s.recordAudit(ev.Failure(err))
		s.log.Error().Err(err).Str("rule_key", key).Msg("remove rule failed")
		InternalError(w, r, "Failed to remove rule")
		return
	}
	s.recordAudit(ev)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var before rules.Rule
	rule, err := s.rules.Update(r.Context(), key, func(rule *rules.Rule) {
		before = *rule
		rule.IsOn = !rule.IsOn
	})
	if errors.Is(err, rulestore.ErrRuleNotFound) {
		NotFoundError(w, r, "Rule not found: "+key)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("rule_key", key).Msg("toggle rule failed")
		InternalError(w, r, "Failed to update rule")
		return
	}
	s.recordAudit(audit.NewEventBuilder(r).ForRule(key).WithAction(audit.ActionToggled).WithBefore(&before).WithAfter(&rule))
	writeJSON(w, http.StatusOK, rule)
}

// handleTestRule delivers sample data to the rule's endpoint and waits for
// the outcome. The queue is bypassed.
func (s *Server) handleTestRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := s.loadRule(w, r)
	if !ok {
		return
	}
	res := s.dispatcher.SendTest(r.Context(), rule)
	ev := audit.NewEventBuilder(r).ForRule(rule.Key).WithAction(audit.ActionTested)
	if res.Outcome != queue.OutcomeSuccess {
		ev.Failure(errors.New(res.Outcome.String() + ": " + res.Reason))
	}
	s.recordAudit(ev)
	writeJSON(w, http.StatusOK, testResponse{
		Outcome: res.Outcome.String(),
		Status:  res.Status,
		Body:    res.Body,
		Reason:  res.Reason,
	})
}

func (s *Server) loadRule(w http.ResponseWriter, r *http.Request) (rules.Rule, bool) {
	key := chi.URLParam(r, "key")
	rule, err := s.rules.Get(r.Context(), key)
	if errors.Is(err, rulestore.ErrRuleNotFound) {
		NotFoundError(w, r, "Rule not found: "+key)
		return rules.Rule{}, false
	}
	if err != nil {
		s.log.Error().Err(err).Str("rule_key", key).Msg("load rule failed")
		InternalError(w, r, "Failed to load rule")
		return rules.Rule{}, false
	}
	return rule, true
}
