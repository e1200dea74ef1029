package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"healthwatch/internal/apperrors"
	"healthwatch/internal/models"
)

func decode(r *http.Request, v interface{}) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return apperrors.NewValidationError("request body must be valid JSON", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (s *Server) handleRegisterSystem(w http.ResponseWriter, r *http.Request) {
	var req systemRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sys, err := s.mon.RegisterSystem(r.Context(), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toSystemResponse(*sys))
}

func (s *Server) handleUpdateSystem(w http.ResponseWriter, r *http.Request) {
	var req systemRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sys, err := s.mon.UpdateSystem(r.Context(), chi.URLParam(r, "id"), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, toSystemResponse(*sys))
}

// handleToggleSystem serves activate and deactivate; repeating either is a conflict.
func (s *Server) handleToggleSystem(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			sys *models.MonitoredSystem
			err error
		)
		if active {
			sys, err = s.mon.ActivateSystem(r.Context(), chi.URLParam(r, "id"))
		} else {
			sys, err = s.mon.DeactivateSystem(r.Context(), chi.URLParam(r, "id"))
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		render.JSON(w, r, toSystemResponse(*sys))
	}
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.mon.CreateRule(r.Context(), chi.URLParam(r, "id"), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toRuleResponse(*rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spec, err := req.spec()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rule, err := s.mon.UpdateRule(r.Context(), chi.URLParam(r, "id"), spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, toRuleResponse(*rule))
}

func (s *Server) handleToggleRule(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			rule *models.AlertRule
			err  error
		)
		if enabled {
			rule, err = s.mon.EnableRule(r.Context(), chi.URLParam(r, "id"))
		} else {
			rule, err = s.mon.DisableRule(r.Context(), chi.URLParam(r, "id"))
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		render.JSON(w, r, toRuleResponse(*rule))
	}
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunJob runs a scheduled job now, under the same lease as its schedule.
// ran is false when another run holds the job.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, r, apperrors.NewNotFoundError("no scheduler attached", nil))
		return
	}
	name := chi.URLParam(r, "name")
	ran, err := s.jobs.RunNow(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"job": name, "ran": ran})
}
