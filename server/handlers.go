package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grovelabs/stepflow"
	"github.com/grovelabs/stepflow/bus"
	"github.com/grovelabs/stepflow/loader"
	"github.com/grovelabs/stepflow/workflows"
)

const defaultRunTimeout = 5 * time.Minute

// RunRequest is the body of a run endpoint call. All fields are optional.
type RunRequest struct {
	InitialState  map[string]any `json:"initial_state,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
	Timeout       string         `json:"timeout,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
}

// RunResponse is the sync run result.
type RunResponse struct {
	RunID      string              `json:"run_id"`
	GraphID    string              `json:"graph_id"`
	Status     string              `json:"status"`
	FinalState map[string]any      `json:"final_state"`
	Log        []stepflow.LogEntry `json:"execution_log"`
	Iterations int                 `json:"iterations"`
}

type runAPIError struct {
	Status  int
	Code    string
	Message string
}

func (e *runAPIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// ToolInfo is one entry of the tool catalog.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTools returns the tool catalog, sorted by name.
func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descriptions := s.tools.List()
	out := make([]ToolInfo, 0, len(descriptions))
	for _, name := range s.tools.Names() {
		out = append(out, ToolInfo{Name: name, Description: descriptions[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateGraph compiles a graph definition and stores it. Steps that
// name a tool are bound against the server's registry; the rest become no-op
// placeholders.
func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return
	}

	spec, err := loader.Parse(body, "")
	if err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}

	compiled, err := loader.Build(spec, s.tools)
	if err != nil {
		var de *loader.DiagnosticError
		if errors.As(err, &de) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "graph validation failed", de.Problems...)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "COMPILE_ERROR", err.Error())
		return
	}

	now := time.Now().UTC()
	rec := GraphRecord{
		ID:        spec.ID,
		Name:      compiled.Name(),
		Spec:      spec,
		Compiled:  compiled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.graphs.Create(rec); err != nil {
		if errors.Is(err, ErrGraphExists) {
			writeError(w, http.StatusConflict, "CONFLICT", fmt.Sprintf("graph %q already exists", rec.ID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, GraphSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		StepCount: compiled.StepCount(),
		EdgeCount: compiled.EdgeCount(),
		CreatedAt: now,
	})
}

// handleListGraphs returns summaries of all stored graphs.
func (s *Server) handleListGraphs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.graphs.List())
}

// handleGetGraph returns a stored graph record by ID.
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.graphs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("graph %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteGraph removes a graph and its schedules.
func (s *Server) handleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.graphs.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("graph %q not found", id))
		return
	}
	s.schedules.DeleteByGraph(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunGraph executes a stored graph, either synchronously or as an SSE
// stream when the request asks for one.
func (s *Server) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.graphs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("graph %q not found", id))
		return
	}

	req, err := decodeRunRequest(r)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	timeout, err := runTimeout(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TIMEOUT", err.Error())
		return
	}

	if req.Stream {
		s.streamRun(w, r, rec, req, timeout)
		return
	}

	resp, runErr := s.executeSync(r.Context(), rec, req, timeout)
	if runErr != nil {
		var apiErr *runAPIError
		if errors.As(runErr, &apiErr) {
			writeError(w, apiErr.Status, apiErr.Code, apiErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, "RUNTIME_ERROR", runErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// executeSync runs the graph to completion within the timeout.
func (s *Server) executeSync(ctx context.Context, rec GraphRecord, req RunRequest, timeout time.Duration) (RunResponse, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := s.runOptions(req)
	result, err := s.executor.Run(runCtx, rec.Compiled, req.InitialState, opts)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return RunResponse{}, &runAPIError{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: err.Error()}
		}
		return RunResponse{}, &runAPIError{Status: http.StatusInternalServerError, Code: "RUNTIME_ERROR", Message: err.Error()}
	}

	return RunResponse{
		RunID:      result.RunID,
		GraphID:    rec.ID,
		Status:     stepflow.RunCompleted.String(),
		FinalState: result.FinalState,
		Log:        result.Log,
		Iterations: result.Iterations,
	}, nil
}

// runOptions builds the executor options for one API run: iteration budget
// from the request, events fanned out to the configured handler, the bus, and
// the event store.
func (s *Server) runOptions(req RunRequest) stepflow.RunOptions {
	opts := stepflow.DefaultRunOptions()
	if req.MaxIterations > 0 {
		opts.MaxIterations = req.MaxIterations
	}
	opts.EventEmitterDecorator = s.emitDecorator
	if s.bus != nil {
		opts.EventBus = s.bus
	}

	handler := s.events
	if s.eventStore != nil {
		sub := bus.NewStoreSubscriber(s.eventStore, s.logger)
		handler = stepflow.MultiEventHandler(handler, sub.Handle)
	}
	opts.EventHandler = handler
	return opts
}

// streamRun executes the graph in the background and relays its events to the
// client as SSE. The run ID is assigned up front so the bus subscription is
// in place before the first event fires.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, rec GraphRecord, req RunRequest, timeout time.Duration) {
	writer := newSSEWriter(w)
	if writer == nil {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "response writer does not support streaming")
		return
	}

	runID := uuid.NewString()
	var sub bus.Subscription
	if s.bus != nil {
		sub = s.bus.Subscribe(runID)
		defer func() { _ = sub.Close() }()
	}

	opts := s.runOptions(req)
	opts.RunID = runID

	doneCh := make(chan error, 1)
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := s.executor.Run(runCtx, rec.Compiled, req.InitialState, opts)
		doneCh <- err
	}()

	writer.startResponse()
	if sub == nil {
		s.streamWithoutSubscription(writer, doneCh, runID)
		return
	}
	s.streamWithSubscription(r.Context(), writer, sub, doneCh, runID)
}

func (s *Server) streamWithoutSubscription(writer *sseWriter, doneCh <-chan error, runID string) {
	err := <-doneCh
	if err != nil {
		writer.writeEvent("run.error", map[string]string{"error": err.Error()})
		return
	}
	writer.writeEvent(string(stepflow.EventRunFinished), map[string]string{
		"run_id": runID,
		"status": stepflow.RunCompleted.String(),
	})
}

func (s *Server) streamWithSubscription(
	requestCtx context.Context,
	writer *sseWriter,
	sub bus.Subscription,
	doneCh <-chan error,
	runID string,
) {
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			writer.writeEvent(string(evt.Kind), evt)
			if evt.Kind == stepflow.EventRunFinished {
				return
			}
		case err := <-doneCh:
			s.finishStreamWithDrain(writer, sub, err, runID)
			return
		case <-heartbeat.C:
			writer.writeHeartbeat()
		case <-requestCtx.Done():
			return
		}
	}
}

func (s *Server) finishStreamWithDrain(writer *sseWriter, sub bus.Subscription, runErr error, runID string) {
	if runErr != nil {
		writer.writeEvent("run.error", map[string]string{"error": runErr.Error()})
	}

	sawRunFinished := drainSubscriptionEvents(writer, sub)
	// The run can complete before its buffered events are relayed; drain
	// them, and if the terminal event never made it onto the bus close the
	// stream with an explicit one.
	if runErr == nil && !sawRunFinished {
		writer.writeEvent(string(stepflow.EventRunFinished), map[string]string{
			"run_id": runID,
			"status": stepflow.RunCompleted.String(),
		})
	}
}

func drainSubscriptionEvents(writer *sseWriter, sub bus.Subscription) bool {
	sawRunFinished := false
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return sawRunFinished
			}
			writer.writeEvent(string(evt.Kind), evt)
			if evt.Kind == stepflow.EventRunFinished {
				sawRunFinished = true
			}
		default:
			return sawRunFinished
		}
	}
}

// handleListRuns returns run summaries from the registry, newest first.
// Supports ?status= and ?graph_id= filters.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	statusFilter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	graphFilter := strings.TrimSpace(r.URL.Query().Get("graph_id"))

	summaries := s.registry.List()
	out := make([]stepflow.RunSummary, 0, len(summaries))
	for _, summary := range summaries {
		if statusFilter != "" && summary.Status.String() != statusFilter {
			continue
		}
		if graphFilter != "" && summary.GraphID != graphFilter {
			continue
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetRun returns the full run record: status, state snapshot, and the
// audit log.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	rec, err := s.registry.Get(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRunEvents replays a run's persisted events as SSE, then follows the
// live bus while the run is still in flight.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}

	runID := strings.TrimSpace(r.PathValue("run_id"))
	afterSeq, err := parseAfterSeq(r.URL.Query().Get("after_seq"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_AFTER_SEQ", err.Error())
		return
	}

	events, err := s.eventStore.List(r.Context(), runID, afterSeq, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if len(events) == 0 {
		if _, regErr := s.registry.Get(runID); regErr != nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
			return
		}
	}

	// Subscribe before replay so nothing published in between is lost;
	// duplicates are filtered by sequence number.
	var sub bus.Subscription
	if s.bus != nil {
		if rec, regErr := s.registry.Get(runID); regErr == nil && rec.Status == stepflow.RunRunning {
			sub = s.bus.Subscribe(runID)
			defer func() { _ = sub.Close() }()
		}
	}

	writer := newSSEWriter(w)
	if writer == nil {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "response writer does not support streaming")
		return
	}
	writer.startResponse()

	lastSeq := afterSeq
	for _, evt := range events {
		writer.writeEvent(string(evt.Kind), evt)
		lastSeq = evt.Seq
	}
	if sub == nil {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if evt.Seq <= lastSeq {
				continue
			}
			writer.writeEvent(string(evt.Kind), evt)
			if evt.Kind == stepflow.EventRunFinished {
				return
			}
		case <-heartbeat.C:
			writer.writeHeartbeat()
		case <-r.Context().Done():
			return
		}
	}
}

// CodeReviewRequest is the body of the prebuilt code review endpoint.
type CodeReviewRequest struct {
	Code             string  `json:"code"`
	QualityThreshold float64 `json:"quality_threshold,omitempty"`
	MaxReviewPasses  int     `json:"max_review_passes,omitempty"`
	MaxIterations    int     `json:"max_iterations,omitempty"`
	Timeout          string  `json:"timeout,omitempty"`
}

// handleRunCodeReview runs the prebuilt code review workflow on a snippet.
func (s *Server) handleRunCodeReview(w http.ResponseWriter, r *http.Request) {
	var req CodeReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "code is required")
		return
	}

	g, err := workflows.CodeReview(s.tools)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "COMPILE_ERROR", err.Error())
		return
	}

	initial := map[string]any{"code": req.Code}
	if req.QualityThreshold > 0 {
		initial["quality_threshold"] = req.QualityThreshold
	}
	if req.MaxReviewPasses > 0 {
		initial["max_review_passes"] = req.MaxReviewPasses
	}

	runReq := RunRequest{
		InitialState:  initial,
		MaxIterations: req.MaxIterations,
		Timeout:       req.Timeout,
	}
	timeout, err := runTimeout(runReq)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TIMEOUT", err.Error())
		return
	}

	rec := GraphRecord{ID: g.ID(), Name: g.Name(), Compiled: g}
	resp, runErr := s.executeSync(r.Context(), rec, runReq, timeout)
	if runErr != nil {
		var apiErr *runAPIError
		if errors.As(runErr, &apiErr) {
			writeError(w, apiErr.Status, apiErr.Code, apiErr.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, "RUNTIME_ERROR", runErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- request plumbing ---

func decodeRunRequest(r *http.Request) (RunRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return RunRequest{}, err
	}
	var req RunRequest
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return RunRequest{}, err
	}
	return req, nil
}

func runTimeout(req RunRequest) (time.Duration, error) {
	if req.Timeout == "" {
		return defaultRunTimeout, nil
	}
	d, err := time.ParseDuration(req.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", req.Timeout)
	}
	return d, nil
}

func parseAfterSeq(raw string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("after_seq must be a non-negative integer: %w", err)
	}
	return seq, nil
}

func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// --- SSE ---

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) startResponse() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *sseWriter) writeEvent(event string, data any) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData)
	s.flusher.Flush()
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}
