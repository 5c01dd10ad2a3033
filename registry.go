package stepflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry errors.
var (
	// ErrRunNotFound indicates the requested run ID is unknown.
	ErrRunNotFound = errors.New("run not found")
)

// RunStatus tracks a run's lifecycle in the registry.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// RunRecord is the registry's view of one run: identity, lifecycle status,
// the latest state snapshot, and the audit log.
type RunRecord struct {
	RunID       string         `json:"run_id"`
	GraphID     string         `json:"graph_id"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Iterations  int            `json:"iterations"`
	Vars        map[string]any `json:"vars"`
	Log         []LogEntry     `json:"log"`
	Err         string         `json:"error,omitempty"`
}

// RunSummary is the condensed listing form of a record.
type RunSummary struct {
	RunID       string     `json:"run_id"`
	GraphID     string     `json:"graph_id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Iterations  int        `json:"iterations"`
}

// DefaultMaxRuns bounds the registry when no explicit capacity is given.
const DefaultMaxRuns = 1024

// RunRegistry tracks runs by ID for the lifetime of the process. The registry
// is observational: reads never affect execution, and the executor keeps a run
// moving whether or not anyone is watching.
//
// Capacity is bounded. When a new run would exceed MaxRuns, the oldest
// finished record is evicted first; running records are never evicted.
type RunRegistry struct {
	mu      sync.RWMutex
	runs    map[string]*RunRecord
	order   []string // insertion order, for eviction
	maxRuns int
}

// NewRunRegistry creates a registry bounded to maxRuns records.
// A non-positive maxRuns selects DefaultMaxRuns.
func NewRunRegistry(maxRuns int) *RunRegistry {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &RunRegistry{
		runs:    make(map[string]*RunRecord),
		maxRuns: maxRuns,
	}
}

// Begin registers a new running record. The registry takes its own copy of
// vars; later snapshots replace it wholesale.
func (r *RunRegistry) Begin(runID, graphID string, vars map[string]any, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictLocked()

	rec := &RunRecord{
		RunID:     runID,
		GraphID:   graphID,
		Status:    RunRunning,
		StartedAt: at,
		Vars:      copyVars(vars),
	}
	if _, exists := r.runs[runID]; !exists {
		r.order = append(r.order, runID)
	}
	r.runs[runID] = rec
}

// Update replaces a running record's snapshot: current vars, log, and the
// iteration count. Unknown run IDs are ignored.
func (r *RunRegistry) Update(runID string, vars map[string]any, log []LogEntry, iterations int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return
	}
	rec.Vars = copyVars(vars)
	rec.Log = log
	rec.Iterations = iterations
}

// Complete marks a run as finished successfully.
func (r *RunRegistry) Complete(runID string, at time.Time) {
	r.finish(runID, RunCompleted, "", at)
}

// Fail marks a run as finished with an error.
func (r *RunRegistry) Fail(runID string, errText string, at time.Time) {
	r.finish(runID, RunFailed, errText, at)
}

func (r *RunRegistry) finish(runID string, status RunStatus, errText string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[runID]
	if !ok {
		return
	}
	rec.Status = status
	rec.Err = errText
	done := at
	rec.CompletedAt = &done
}

// Get returns a copy of the record for runID.
func (r *RunRegistry) Get(runID string) (RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.runs[runID]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return copyRecord(rec), nil
}

// List returns summaries of all known runs, newest first.
func (r *RunRegistry) List() []RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunSummary, 0, len(r.runs))
	for _, rec := range r.runs {
		out = append(out, RunSummary{
			RunID:       rec.RunID,
			GraphID:     rec.GraphID,
			Status:      rec.Status,
			StartedAt:   rec.StartedAt,
			CompletedAt: rec.CompletedAt,
			Iterations:  rec.Iterations,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Len returns the number of records currently held.
func (r *RunRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// evictLocked drops the oldest finished record when at capacity. Running
// records are skipped; if every record is still running the registry grows
// past its bound rather than losing live runs.
func (r *RunRegistry) evictLocked() {
	if len(r.runs) < r.maxRuns {
		return
	}
	for i, id := range r.order {
		rec, ok := r.runs[id]
		if !ok {
			continue
		}
		if rec.Status == RunRunning {
			continue
		}
		delete(r.runs, id)
		r.order = append(r.order[:i], r.order[i+1:]...)
		return
	}
}

func copyVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func copyRecord(rec *RunRecord) RunRecord {
	out := *rec
	out.Vars = copyVars(rec.Vars)
	out.Log = make([]LogEntry, len(rec.Log))
	copy(out.Log, rec.Log)
	if rec.CompletedAt != nil {
		done := *rec.CompletedAt
		out.CompletedAt = &done
	}
	return out
}
