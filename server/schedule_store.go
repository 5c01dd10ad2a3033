package server

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrScheduleExists   = errors.New("schedule already exists")
	ErrScheduleNotFound = errors.New("schedule not found")
)

const (
	ScheduleRunStatusRunning        = "running"
	ScheduleRunStatusCompleted      = "completed"
	ScheduleRunStatusFailed         = "failed"
	ScheduleRunStatusSkippedOverlap = "skipped_overlap"
)

// Schedule is a persisted cron trigger for a stored graph. Expressions are
// standard 5-field cron, interpreted in UTC.
type Schedule struct {
	ID            string         `json:"id"`
	GraphID       string         `json:"graph_id"`
	Cron          string         `json:"cron"`
	Enabled       bool           `json:"enabled"`
	InitialState  map[string]any `json:"initial_state,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`

	NextRunAt  time.Time  `json:"next_run_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastRunID  string     `json:"last_run_id,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleStore holds schedules in memory.
type ScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

// NewScheduleStore creates an empty store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[string]Schedule)}
}

// List returns the schedules for one graph, ordered by creation time.
func (s *ScheduleStore) List(graphID string) []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Schedule, 0)
	for _, sched := range s.schedules {
		if sched.GraphID == graphID {
			out = append(out, sched)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns the schedule scheduleID belonging to graphID.
func (s *ScheduleStore) Get(graphID, scheduleID string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[scheduleID]
	if !ok || sched.GraphID != graphID {
		return Schedule{}, false
	}
	return sched, true
}

// Create stores a new schedule. Returns ErrScheduleExists on ID collision.
func (s *ScheduleStore) Create(sched Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		return ErrScheduleExists
	}
	s.schedules[sched.ID] = sched
	return nil
}

// Update replaces an existing schedule wholesale.
func (s *ScheduleStore) Update(sched Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; !exists {
		return ErrScheduleNotFound
	}
	s.schedules[sched.ID] = sched
	return nil
}

// Delete removes the schedule scheduleID belonging to graphID.
func (s *ScheduleStore) Delete(graphID, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[scheduleID]
	if !ok || sched.GraphID != graphID {
		return ErrScheduleNotFound
	}
	delete(s.schedules, scheduleID)
	return nil
}

// DeleteByGraph removes all schedules belonging to graphID.
func (s *ScheduleStore) DeleteByGraph(graphID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sched := range s.schedules {
		if sched.GraphID == graphID {
			delete(s.schedules, id)
		}
	}
}

// ListDue returns enabled schedules whose NextRunAt is at or before now,
// soonest first, capped at limit (0 means no cap).
func (s *ScheduleStore) ListDue(now time.Time, limit int) []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Schedule, 0)
	for _, sched := range s.schedules {
		if sched.Enabled && !sched.NextRunAt.After(now) {
			out = append(out, sched)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRunAt.Before(out[j].NextRunAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
