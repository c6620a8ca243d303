package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
	"github.com/copyleftdev/pvfit/internal/fit"
	"github.com/copyleftdev/pvfit/internal/logging"
	"github.com/copyleftdev/pvfit/internal/metrics"
	"github.com/copyleftdev/pvfit/internal/optimization"
	"github.com/copyleftdev/pvfit/internal/reference"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Fit job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32004
)

// FitState tracks one asynchronous fit. Fields are guarded by the server
// mutex; Job is safe to poll concurrently.
type FitState struct {
	ID          string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Job         *fit.Job
	Result      *fit.Result
	Err         string
	CancelFunc  context.CancelFunc
}

// FitStatus is the client view of a FitState.
type FitStatus struct {
	ID          string                 `json:"fit_id"`
	Status      string                 `json:"status"`
	Progress    float64                `json:"progress"`
	StartTime   string                 `json:"start_time"`
	LastUpdate  string                 `json:"last_update"`
	EndTime     string                 `json:"end_time,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CurrentBest *optimization.Solution `json:"current_best,omitempty"`
	Result      *fit.Result            `json:"result,omitempty"`
}

// Server exposes model evaluation and asynchronous fits over REST and
// JSON-RPC 2.0.
type Server struct {
	runner  *fit.Runner
	logger  Logger
	metrics *metrics.Metrics

	fits   map[string]*FitState
	fitsMu sync.RWMutex
	closed bool
	seq    atomic.Int64
	wg     sync.WaitGroup
}

// NewServer creates a server running fits with runner. m may be nil.
func NewServer(runner *fit.Runner, logger Logger, m *metrics.Metrics) *Server {
	return &Server{
		runner:  runner,
		logger:  logger,
		metrics: m,
		fits:    make(map[string]*FitState),
	}
}

// RegisterRoutes mounts the REST and JSON-RPC endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Post("/fit", s.handleFit)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/fit/{id}", s.handleCancel)
		r.Get("/datasets", s.handleDatasets)
		r.Get("/reference", s.handleReference)
	})

	r.Post("/rpc", s.handleJSONRPC)
}

// Handler builds the complete router: middleware, health and metrics
// endpoints plus the API routes.
func (s *Server) Handler(base *logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(base))
	r.Use(pverrors.RecoveryMiddleware(base))
	r.Use(pverrors.ErrorHandler(base))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Debug("Health check")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", s.metrics.Handler())

	s.RegisterRoutes(r)
	return r
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.metrics.RPC("", "parse_error")
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.metrics.RPC(request.Method, "invalid_request")
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "pv.solve":
		var p fit.SolveRequest
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.solve(p)
		}
	case "fit.start":
		var p fit.Request
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.startFit(p)
		}
	case "fit.status":
		var p struct {
			ID string `json:"fit_id"`
		}
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.status(p.ID)
		}
	case "fit.cancel":
		var p struct {
			ID string `json:"fit_id"`
		}
		if err = decodeParams(request.Params, &p); err == nil {
			err = s.cancel(p.ID)
			result = map[string]string{"status": "cancellation requested"}
		}
	case "reference.scores":
		result, err = s.runner.ReferenceScores()
	default:
		s.metrics.RPC(request.Method, "method_not_found")
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.metrics.RPC(request.Method, "error")
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	s.metrics.RPC(request.Method, "ok")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts either a params object or an array holding one.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return pverrors.New(pverrors.KindInvalidInput, "missing required parameters").WithComponent("server")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return pverrors.New(pverrors.KindInvalidInput, "missing required parameters").WithComponent("server")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return pverrors.Wrap(err, pverrors.KindInvalidInput, "invalid parameter format").WithComponent("server")
	}
	return nil
}

func rpcCode(err error) int {
	if errors.Is(err, optimization.ErrInvalidConfig) {
		return codeInvalidParams
	}
	switch pverrors.KindOf(err) {
	case pverrors.KindConfig, pverrors.KindInvalidInput:
		return codeInvalidParams
	case pverrors.KindNotFound:
		return codeNotFound
	default:
		return codeServerError
	}
}

func httpStatus(err error) int {
	if errors.Is(err, optimization.ErrInvalidConfig) {
		return http.StatusBadRequest
	}
	return pverrors.HTTPStatus(err)
}

func (s *Server) solve(req fit.SolveRequest) (interface{}, error) {
	c, err := s.runner.Solve(req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"model":    req.Model,
		"voltages": c.Voltages(),
		"currents": c.Currents(),
	}, nil
}

// startFit registers a fit and runs it in the background.
func (s *Server) startFit(req fit.Request) (interface{}, error) {
	job, err := s.runner.Prepare(req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	id := fmt.Sprintf("fit_%d_%d", now.UnixNano(), s.seq.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	state := &FitState{
		ID:          id,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Job:         job,
		CancelFunc:  cancel,
	}

	// wg.Add happens under fitsMu so it cannot race with Close's Wait
	s.fitsMu.Lock()
	if s.closed {
		s.fitsMu.Unlock()
		cancel()
		return nil, pverrors.New(pverrors.KindUnavailable, "server is shutting down").WithComponent("server")
	}
	s.fits[id] = state
	s.wg.Add(1)
	s.fitsMu.Unlock()

	s.logger.Info("Fit started", map[string]interface{}{
		"fit_id":    id,
		"model":     req.Model,
		"algorithm": job.Request.Algorithm,
	})

	go s.runFit(ctx, state)

	return map[string]interface{}{
		"fit_id": id,
		"status": StatusPending,
	}, nil
}

// runFit executes a job and records its outcome.
func (s *Server) runFit(ctx context.Context, state *FitState) {
	defer s.wg.Done()
	defer state.CancelFunc()

	s.fitsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
		state.LastUpdated = time.Now()
	}
	s.fitsMu.Unlock()

	result, err := state.Job.Run(ctx)

	s.fitsMu.Lock()
	defer s.fitsMu.Unlock()

	now := time.Now()
	state.LastUpdated = now
	if state.EndTime == nil {
		state.EndTime = &now
	}
	switch {
	case state.Status == StatusCancelled:
	case errors.Is(err, context.Canceled):
		state.Status = StatusCancelled
	case err != nil:
		s.logger.Error("Fit failed", map[string]interface{}{
			"fit_id": state.ID,
			"error":  err.Error(),
		})
		state.Status = StatusFailed
		state.Err = err.Error()
	default:
		state.Status = StatusCompleted
		state.Result = result
	}
}

func (s *Server) status(id string) (*FitStatus, error) {
	if id == "" {
		return nil, pverrors.New(pverrors.KindInvalidInput, "fit_id is required").WithComponent("server")
	}

	s.fitsMu.RLock()
	defer s.fitsMu.RUnlock()

	state, ok := s.fits[id]
	if !ok {
		return nil, pverrors.Errorf(pverrors.KindNotFound, "fit %q not found", id).WithComponent("server")
	}

	out := &FitStatus{
		ID:          state.ID,
		Status:      state.Status,
		StartTime:   state.StartTime.Format(time.RFC3339),
		LastUpdate:  state.LastUpdated.Format(time.RFC3339),
		Error:       state.Err,
		Result:      state.Result,
		CurrentBest: state.Job.Optimizer.GetBestSolution(),
	}
	if state.EndTime != nil {
		out.EndTime = state.EndTime.Format(time.RFC3339)
	}
	switch {
	case state.Status == StatusCompleted:
		out.Progress = 1
	case state.Job.MaxIterations() > 0:
		if h := state.Job.Optimizer.GetHistory(); len(h) > 0 {
			out.Progress = min(1, float64(h[len(h)-1].Iteration)/float64(state.Job.MaxIterations()))
		}
	}
	return out, nil
}

func (s *Server) cancel(id string) error {
	if id == "" {
		return pverrors.New(pverrors.KindInvalidInput, "fit_id is required").WithComponent("server")
	}

	s.fitsMu.Lock()
	defer s.fitsMu.Unlock()

	state, ok := s.fits[id]
	if !ok {
		return pverrors.Errorf(pverrors.KindNotFound, "fit %q not found", id).WithComponent("server")
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return pverrors.Errorf(pverrors.KindInvalidInput, "cannot cancel fit with status %s", state.Status).
			WithComponent("server")
	}

	state.CancelFunc()
	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Fit cancelled", map[string]interface{}{"fit_id": id})
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

// Wait blocks until every started fit has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close rejects new fits, cancels every running fit and waits for them to
// stop.
func (s *Server) Close() error {
	s.fitsMu.Lock()
	s.closed = true
	for _, state := range s.fits {
		state.CancelFunc()
	}
	s.fitsMu.Unlock()

	s.wg.Wait()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]interface{}{"error": err.Error()})
}

// handleSolve handles POST /api/v1/solve.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req fit.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pverrors.Wrap(err, pverrors.KindInvalidInput, "invalid request body"))
		return
	}
	result, err := s.solve(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleFit handles POST /api/v1/fit.
func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	var req fit.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pverrors.Wrap(err, pverrors.KindInvalidInput, "invalid request body"))
		return
	}
	result, err := s.startFit(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/fit/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	type dataset struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Temperature float64 `json:"temperature"`
		Points      int     `json:"points"`
	}
	var out []dataset
	for _, name := range reference.Names() {
		d, err := reference.Lookup(name)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, dataset{d.Name, d.Description, d.Temperature, len(d.Curve)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	scores, err := s.runner.ReferenceScores()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}
