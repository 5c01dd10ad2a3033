package stepflow

import (
	"time"
)

// Status tracks what a step is doing within a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// String returns the string representation of the Status.
func (s Status) String() string {
	return string(s)
}

// LogEntry is one audit record in a run's execution log.
type LogEntry struct {
	StepID    string    `json:"step_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Err       string    `json:"error,omitempty"`
}

// Log is the per-run audit trail: an append-only sequence of slots where the
// last slot stays mutable until the step it describes resolves. Begin opens a
// Running slot; Complete or Fail rewrites that same slot in place. Prior
// slots are immutable history.
type Log struct {
	entries []LogEntry
}

// Begin appends a Running slot for the given step.
func (l *Log) Begin(stepID string, at time.Time) {
	l.entries = append(l.entries, LogEntry{
		StepID:    stepID,
		Status:    StatusRunning,
		Timestamp: at,
		Message:   "starting " + stepID,
	})
}

// Complete rewrites the last slot as Completed. No-op on an empty log.
func (l *Log) Complete(at time.Time) {
	if len(l.entries) == 0 {
		return
	}
	last := &l.entries[len(l.entries)-1]
	last.Status = StatusCompleted
	last.Timestamp = at
	last.Message = "finished " + last.StepID
}

// Fail rewrites the last slot as Failed with the given error text.
func (l *Log) Fail(at time.Time, errText string) {
	if len(l.entries) == 0 {
		return
	}
	last := &l.entries[len(l.entries)-1]
	last.Status = StatusFailed
	last.Timestamp = at
	last.Err = errText
}

// Len returns the number of slots.
func (l *Log) Len() int {
	return len(l.entries)
}

// Last returns the most recent slot, or a zero entry if the log is empty.
func (l *Log) Last() LogEntry {
	if len(l.entries) == 0 {
		return LogEntry{}
	}
	return l.entries[len(l.entries)-1]
}

// Entries returns a copy of all slots.
func (l *Log) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
