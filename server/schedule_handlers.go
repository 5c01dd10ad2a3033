package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type scheduleRequest struct {
	Cron          string         `json:"cron,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
	InitialState  map[string]any `json:"initial_state,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")
	if !s.graphExists(graphID, w) {
		return
	}
	writeJSON(w, http.StatusOK, s.schedules.List(graphID))
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")
	if !s.graphExists(graphID, w) {
		return
	}

	var req scheduleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	now := time.Now().UTC()
	sched := Schedule{
		ID:        uuid.NewString(),
		GraphID:   graphID,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applied, err := applyScheduleRequest(sched, req, now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SCHEDULE", err.Error())
		return
	}

	if err := s.schedules.Create(applied); err != nil {
		if errors.Is(err, ErrScheduleExists) {
			writeError(w, http.StatusConflict, "CONFLICT", fmt.Sprintf("schedule %q already exists", applied.ID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, applied)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")
	scheduleID := r.PathValue("schedule_id")
	if !s.graphExists(graphID, w) {
		return
	}

	sched, found := s.schedules.Get(graphID, scheduleID)
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("schedule %q not found", scheduleID))
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")
	scheduleID := r.PathValue("schedule_id")
	if !s.graphExists(graphID, w) {
		return
	}

	if err := s.schedules.Delete(graphID, scheduleID); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("schedule %q not found", scheduleID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) graphExists(graphID string, w http.ResponseWriter) bool {
	if _, found := s.graphs.Get(graphID); !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("graph %q not found", graphID))
		return false
	}
	return true
}

func applyScheduleRequest(base Schedule, req scheduleRequest, now time.Time) (Schedule, error) {
	if cleanCron := strings.TrimSpace(req.Cron); cleanCron != "" {
		base.Cron = cleanCron
	}
	if req.Enabled != nil {
		base.Enabled = *req.Enabled
	}
	if req.InitialState != nil {
		base.InitialState = req.InitialState
	}
	if req.MaxIterations > 0 {
		base.MaxIterations = req.MaxIterations
	}

	if strings.TrimSpace(base.Cron) == "" {
		return Schedule{}, fmt.Errorf("cron is required")
	}
	if _, err := parseCronExpressionUTC(base.Cron); err != nil {
		return Schedule{}, err
	}

	if base.Enabled {
		nextRunAt, err := nextCronRunUTC(base.Cron, now.UTC())
		if err != nil {
			return Schedule{}, err
		}
		base.NextRunAt = nextRunAt
	}
	return base, nil
}

func decodeJSONBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}
