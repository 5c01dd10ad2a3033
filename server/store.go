package server

import (
	"errors"
	"sync"
	"time"

	"github.com/grovelabs/stepflow"
	"github.com/grovelabs/stepflow/loader"
)

// Sentinel errors for store operations.
var (
	ErrGraphExists   = errors.New("graph already exists")
	ErrGraphNotFound = errors.New("graph not found")
)

// GraphRecord is a stored graph: the definition it was created from plus the
// compiled executable form. The compiled graph never crosses the wire.
type GraphRecord struct {
	ID        string            `json:"graph_id"`
	Name      string            `json:"name"`
	Spec      *loader.GraphSpec `json:"definition"`
	Compiled  *stepflow.Graph   `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// GraphSummary is the condensed listing form of a record.
type GraphSummary struct {
	ID        string    `json:"graph_id"`
	Name      string    `json:"name"`
	StepCount int       `json:"step_count"`
	EdgeCount int       `json:"edge_count"`
	CreatedAt time.Time `json:"created_at"`
}

// GraphStore holds graph records in memory, in insertion order.
type GraphStore struct {
	mu     sync.RWMutex
	graphs map[string]GraphRecord
	order  []string
}

// NewGraphStore creates an empty store.
func NewGraphStore() *GraphStore {
	return &GraphStore{graphs: make(map[string]GraphRecord)}
}

// List returns summaries of all stored graphs in insertion order.
func (s *GraphStore) List() []GraphSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GraphSummary, 0, len(s.order))
	for _, id := range s.order {
		rec := s.graphs[id]
		out = append(out, GraphSummary{
			ID:        rec.ID,
			Name:      rec.Name,
			StepCount: rec.Compiled.StepCount(),
			EdgeCount: rec.Compiled.EdgeCount(),
			CreatedAt: rec.CreatedAt,
		})
	}
	return out
}

// Get returns the record for id.
func (s *GraphStore) Get(id string) (GraphRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.graphs[id]
	return rec, ok
}

// Create stores a new record. Returns ErrGraphExists on ID collision.
func (s *GraphStore) Create(rec GraphRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.graphs[rec.ID]; exists {
		return ErrGraphExists
	}
	s.graphs[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return nil
}

// Delete removes a record. Returns ErrGraphNotFound for unknown IDs.
func (s *GraphStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.graphs[id]; !exists {
		return ErrGraphNotFound
	}
	delete(s.graphs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored graphs.
func (s *GraphStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.graphs)
}
