// Package server exposes the stepflow engine over HTTP: graph CRUD, run
// execution (sync and SSE streaming), run history, the tool catalog, and
// cron schedules.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/grovelabs/stepflow"
	"github.com/grovelabs/stepflow/bus"
	"github.com/grovelabs/stepflow/tools"
)

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Graphs        *GraphStore
	Schedules     *ScheduleStore
	Tools         *tools.Registry
	Registry      *stepflow.RunRegistry
	Bus           bus.EventBus
	EventStore    bus.EventStore
	Events        stepflow.EventHandler
	EmitDecorator stepflow.EventEmitterDecorator
	CORSOrigin    string
	MaxBody       int64
	Logger        *slog.Logger
}

// Server is the stepflow HTTP API server.
type Server struct {
	graphs        *GraphStore
	schedules     *ScheduleStore
	tools         *tools.Registry
	registry      *stepflow.RunRegistry
	executor      *stepflow.Executor
	bus           bus.EventBus
	eventStore    bus.EventStore
	events        stepflow.EventHandler
	emitDecorator stepflow.EventEmitterDecorator
	corsOrigin    string
	maxBody       int64
	logger        *slog.Logger
}

// NewServer creates a new Server with the given configuration. Zero-value
// config fields fall back to in-memory defaults, so NewServer(ServerConfig{})
// yields a fully working server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	graphs := cfg.Graphs
	if graphs == nil {
		graphs = NewGraphStore()
	}
	schedules := cfg.Schedules
	if schedules == nil {
		schedules = NewScheduleStore()
	}
	toolbox := cfg.Tools
	if toolbox == nil {
		toolbox = tools.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = stepflow.NewRunRegistry(0)
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	return &Server{
		graphs:        graphs,
		schedules:     schedules,
		tools:         toolbox,
		registry:      registry,
		executor:      stepflow.NewExecutor(registry),
		bus:           cfg.Bus,
		eventStore:    cfg.EventStore,
		events:        cfg.Events,
		emitDecorator: cfg.EmitDecorator,
		corsOrigin:    corsOrigin,
		maxBody:       maxBody,
		logger:        logger,
	}
}

// Registry returns the run registry backing /api/runs.
func (s *Server) Registry() *stepflow.RunRegistry {
	return s.registry
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts API routes onto an existing mux. Use this when
// composing with other handlers.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("POST /api/graphs", s.handleCreateGraph)
	mux.HandleFunc("GET /api/graphs", s.handleListGraphs)
	mux.HandleFunc("GET /api/graphs/{id}", s.handleGetGraph)
	mux.HandleFunc("DELETE /api/graphs/{id}", s.handleDeleteGraph)
	mux.HandleFunc("POST /api/graphs/{id}/run", s.handleRunGraph)
	mux.HandleFunc("GET /api/graphs/{id}/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/graphs/{id}/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/graphs/{id}/schedules/{schedule_id}", s.handleGetSchedule)
	mux.HandleFunc("DELETE /api/graphs/{id}/schedules/{schedule_id}", s.handleDeleteSchedule)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{run_id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{run_id}/events", s.handleRunEvents)
	mux.HandleFunc("POST /api/workflows/code-review/run", s.handleRunCodeReview)
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}
