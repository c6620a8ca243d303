// Package fit wires solver, fitness evaluator and optimizer together into
// parameter-extraction jobs shared by the CLI and the HTTP service.
package fit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/pvfit/internal/benchmark"
	"github.com/copyleftdev/pvfit/internal/config"
	"github.com/copyleftdev/pvfit/internal/curve"
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
	"github.com/copyleftdev/pvfit/internal/fitness"
	"github.com/copyleftdev/pvfit/internal/metrics"
	"github.com/copyleftdev/pvfit/internal/optimization"
	"github.com/copyleftdev/pvfit/internal/pv"
	"github.com/copyleftdev/pvfit/internal/reference"
	"github.com/copyleftdev/pvfit/internal/rootfind"
)

// Request describes a fit. Either Dataset or Curve selects the data. Zero
// numeric fields fall back to the configuration.
type Request struct {
	Model         string       `json:"model"`
	Dataset       string       `json:"dataset,omitempty"`
	Curve         curve.Curve  `json:"curve,omitempty"`
	Bounds        [][2]float64 `json:"bounds,omitempty"`
	Ns            int          `json:"ns,omitempty"`
	Np            int          `json:"np,omitempty"`
	Temperature   float64      `json:"temperature,omitempty"`
	Algorithm     string       `json:"algorithm,omitempty"`
	Population    int          `json:"population,omitempty"`
	MaxIterations int          `json:"max_iterations,omitempty"`
	Seed          int64        `json:"seed,omitempty"`
	Workers       int          `json:"workers,omitempty"`
}

// Result is the outcome of a fit.
type Result struct {
	Model       string                    `json:"model"`
	Algorithm   string                    `json:"algorithm"`
	Dataset     string                    `json:"dataset,omitempty"`
	Names       []string                  `json:"names"`
	Parameters  map[string]float64        `json:"parameters"`
	Vector      []float64                 `json:"vector"`
	RMSE        float64                   `json:"rmse"`
	Iterations  int                       `json:"iterations"`
	Evaluations int                       `json:"evaluations"`
	Elapsed     float64                   `json:"elapsed_seconds"`
	History     []optimization.Evaluation `json:"history,omitempty"`
	Measured    curve.Curve               `json:"-"`
	Fitted      curve.Curve               `json:"fitted,omitempty"`
}

// Runner builds solvers and jobs from a configuration.
type Runner struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRunner creates a Runner. A nil cfg uses config.Default; m and logger
// may be nil.
func NewRunner(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, metrics: m, logger: logger}
}

// Config returns the runner configuration.
func (r *Runner) Config() *config.Config {
	return r.cfg
}

// Constants returns the configured constants at temperature t; t <= 0
// keeps the configured temperature.
func (r *Runner) Constants(t float64) (pv.Constants, error) {
	c := pv.Constants{
		Charge:      r.cfg.Physics.Charge,
		Boltzmann:   r.cfg.Physics.Boltzmann,
		Temperature: r.cfg.Physics.Temperature,
	}
	if t > 0 {
		c = c.WithTemperature(t)
	}
	return c, c.Validate()
}

// Solver builds a solver with the configured root finders.
func (r *Runner) Solver(c pv.Constants) (*pv.Solver, error) {
	settings := rootfind.Settings{
		Tolerance:     r.cfg.Solver.Tolerance,
		MaxIterations: r.cfg.Solver.MaxIterations,
	}
	primary, err := rootfind.ByName(r.cfg.Solver.Method, settings)
	if err != nil {
		return nil, pverrors.Wrap(err, pverrors.KindConfig, "solver method").WithParam("SOLVER_METHOD")
	}
	opts := []pv.Option{
		pv.WithFinder(primary),
		pv.WithLogger(r.logger),
		pv.WithNonConvergenceHook(r.metrics.SolverHook()),
	}
	if name := strings.TrimSpace(r.cfg.Solver.Fallback); name != "" && name != "none" {
		fb, err := rootfind.ByName(name, settings)
		if err != nil {
			return nil, pverrors.Wrap(err, pverrors.KindConfig, "solver fallback").WithParam("SOLVER_FALLBACK")
		}
		opts = append(opts, pv.WithFallback(fb))
	}
	return pv.NewSolver(c, opts...), nil
}

// Job is a prepared fit. Its Optimizer can be polled or stopped while Run
// executes.
type Job struct {
	Request   Request
	Optimizer optimization.Optimizer
	Layout    pv.Layout

	kind      pv.Kind
	dataset   string
	evaluator *fitness.Evaluator
	config    optimization.OptimizerConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Prepare validates req and resolves its data, bounds and optimizer.
func (r *Runner) Prepare(req Request) (*Job, error) {
	kind, err := pv.ParseKind(req.Model)
	if err != nil {
		return nil, err
	}
	if req.Algorithm == "" {
		req.Algorithm = benchmark.ISCHO
	}

	var (
		data    curve.Curve
		layout  pv.Layout
		bounds  [][2]float64
		temp    = req.Temperature
		dataset string
	)
	switch {
	case req.Dataset != "":
		d, err := reference.Lookup(req.Dataset)
		if err != nil {
			return nil, err
		}
		if layout, bounds, err = d.Problem(kind); err != nil {
			return nil, err
		}
		data, dataset = d.Curve, d.Name
		if temp <= 0 {
			temp = d.Temperature
		}
	case len(req.Curve) > 0:
		data = req.Curve
		layout = pv.NewLayout(kind)
		bounds = reference.CellBounds(kind)
	default:
		return nil, pverrors.New(pverrors.KindInvalidInput, "either dataset or curve is required").
			WithComponent("fit").WithParam("dataset")
	}

	if kind == pv.PVMM && (req.Ns > 0 || req.Np > 0) {
		layout = pv.ModuleLayout(max(req.Ns, 1), max(req.Np, 1))
	}
	if len(req.Bounds) > 0 {
		bounds = req.Bounds
	}
	if len(bounds) != layout.Dim() {
		return nil, pverrors.Errorf(pverrors.KindConfig, "%s needs %d bounds, got %d", kind, layout.Dim(), len(bounds)).
			WithComponent("fit").WithParam("bounds")
	}

	consts, err := r.Constants(temp)
	if err != nil {
		return nil, err
	}
	solver, err := r.Solver(consts)
	if err != nil {
		return nil, err
	}
	opt, err := benchmark.NewOptimizer(req.Algorithm)
	if err != nil {
		return nil, err
	}

	eval := fitness.NewEvaluator(solver, layout, data)
	cfg := optimization.OptimizerConfig{
		Objective:      eval.Objective(),
		Bounds:         bounds,
		PopulationSize: orDefault(req.Population, r.cfg.Optimization.Population),
		MaxIterations:  orDefault(req.MaxIterations, r.cfg.Optimization.MaxIterations),
		RandomSeed:     req.Seed,
		Workers:        orDefault(req.Workers, r.cfg.Optimization.WorkerCount),
		Logger:         r.logger,
	}
	if cfg.RandomSeed == 0 {
		cfg.RandomSeed = r.cfg.Optimization.Seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Job{
		Request:   req,
		Optimizer: opt,
		Layout:    layout,
		kind:      kind,
		dataset:   dataset,
		evaluator: eval,
		config:    cfg,
		metrics:   r.metrics,
		logger:    r.logger.Named("fit"),
	}, nil
}

// Run prepares and runs req.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	job, err := r.Prepare(req)
	if err != nil {
		return nil, err
	}
	return job.Run(ctx)
}

// MaxIterations returns the resolved iteration budget.
func (j *Job) MaxIterations() int {
	return j.config.MaxIterations
}

// Problem exposes the job objective and bounds for benchmark runs.
func (j *Job) Problem() benchmark.Problem {
	name := j.dataset
	if name == "" {
		name = "curve"
	}
	return benchmark.Problem{
		Name:      fmt.Sprintf("%s/%s", name, j.kind),
		Objective: j.config.Objective,
		Bounds:    j.config.Bounds,
	}
}

// Run executes the optimizer and decodes the best vector. When ctx ends the
// run early, the best result found so far is returned together with the
// context error.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	algorithm := strings.ToLower(j.Request.Algorithm)
	j.metrics.FitStarted()
	start := time.Now()

	res, err := j.Optimizer.Optimize(ctx, j.config)
	elapsed := time.Since(start)
	if err != nil {
		status := "failed"
		if ctx.Err() != nil {
			status = "cancelled"
		}
		j.metrics.FitFinished(algorithm, string(j.kind), status, elapsed, int(j.evaluator.Calls()), 0)
		if status == "cancelled" && res != nil && res.BestSolution != nil {
			if out, derr := j.result(algorithm, res, elapsed); derr == nil {
				return out, err
			}
		}
		return nil, err
	}

	out, err := j.result(algorithm, res, elapsed)
	if err != nil {
		j.metrics.FitFinished(algorithm, string(j.kind), "failed", elapsed, int(j.evaluator.Calls()), 0)
		return nil, err
	}

	j.metrics.FitFinished(algorithm, string(j.kind), "completed", elapsed, res.Evaluations, out.RMSE)
	j.logger.Info("fit completed",
		zap.String("model", out.Model),
		zap.String("algorithm", algorithm),
		zap.Float64("rmse", out.RMSE),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

func (j *Job) result(algorithm string, res *optimization.OptimizationResult, elapsed time.Duration) (*Result, error) {
	best := res.BestSolution
	params, err := j.Layout.Decode(best.Parameters)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Model:       string(j.kind),
		Algorithm:   algorithm,
		Dataset:     j.dataset,
		Names:       j.Layout.Names(),
		Parameters:  Named(j.Layout, best.Parameters),
		Vector:      best.Parameters,
		RMSE:        best.Value,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		Elapsed:     elapsed.Seconds(),
		History:     res.History,
		Measured:    j.evaluator.Curve,
	}
	vs := j.evaluator.Curve.Voltages()
	out.Fitted, _ = curve.New(vs, j.evaluator.Solver.SolveCurve(vs, params))
	return out, nil
}

// Named pairs a candidate vector with the layout parameter names.
func Named(layout pv.Layout, x []float64) map[string]float64 {
	out := make(map[string]float64, len(x))
	for k, name := range layout.Names() {
		if k < len(x) {
			out[name] = x[k]
		}
	}
	return out
}

// Vector orders named parameters by layout. Names are case-insensitive.
func Vector(layout pv.Layout, params map[string]float64) ([]float64, error) {
	lower := make(map[string]float64, len(params))
	for k, v := range params {
		lower[strings.ToLower(k)] = v
	}
	names := layout.Names()
	x := make([]float64, len(names))
	for k, name := range names {
		v, ok := lower[name]
		if !ok {
			return nil, pverrors.Errorf(pverrors.KindInvalidInput, "missing parameter %q", name).
				WithComponent("fit").WithParam(name)
		}
		x[k] = v
	}
	return x, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// SolveRequest asks for model currents at the given voltages.
type SolveRequest struct {
	Model       string             `json:"model"`
	Params      map[string]float64 `json:"params"`
	Voltages    []float64          `json:"voltages"`
	Ns          int                `json:"ns,omitempty"`
	Np          int                `json:"np,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

// Solve evaluates the model at every voltage of req.
func (r *Runner) Solve(req SolveRequest) (curve.Curve, error) {
	kind, err := pv.ParseKind(req.Model)
	if err != nil {
		return nil, err
	}
	layout := pv.NewLayout(kind)
	if kind == pv.PVMM {
		layout = pv.ModuleLayout(max(req.Ns, 1), max(req.Np, 1))
	}
	x, err := Vector(layout, req.Params)
	if err != nil {
		return nil, err
	}
	params, err := layout.Decode(x)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	consts, err := r.Constants(req.Temperature)
	if err != nil {
		return nil, err
	}
	solver, err := r.Solver(consts)
	if err != nil {
		return nil, err
	}
	return curve.New(req.Voltages, solver.SolveCurve(req.Voltages, params))
}

// ReferenceScore is the RMSE of a published parameter set on its dataset.
type ReferenceScore struct {
	Name       string  `json:"name"`
	Dataset    string  `json:"dataset"`
	Model      string  `json:"model"`
	RMSE       float64 `json:"rmse"`
	TargetRMSE float64 `json:"target_rmse"`
}

// ReferenceScores scores every published parameter set at its dataset
// temperature.
func (r *Runner) ReferenceScores() ([]ReferenceScore, error) {
	sets := reference.PublishedSets()
	out := make([]ReferenceScore, 0, len(sets))
	for _, p := range sets {
		d, err := reference.Lookup(p.Dataset)
		if err != nil {
			return nil, err
		}
		consts, err := r.Constants(d.Temperature)
		if err != nil {
			return nil, err
		}
		solver, err := r.Solver(consts)
		if err != nil {
			return nil, err
		}
		e := fitness.NewEvaluator(solver, pv.NewLayout(p.Params.Kind()), d.Curve)
		out = append(out, ReferenceScore{
			Name:       p.Name,
			Dataset:    p.Dataset,
			Model:      string(p.Params.Kind()),
			RMSE:       e.Score(p.Params),
			TargetRMSE: p.TargetRMSE,
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}
