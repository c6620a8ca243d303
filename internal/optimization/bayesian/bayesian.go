// Package bayesian implements Gaussian-process Bayesian optimization for
// expensive, low-dimensional objectives. An initial Latin hypercube design
// of PopulationSize points is followed by MaxIterations sequential steps,
// each evaluating the maximizer of expected improvement under a Matérn 5/2
// process fitted to the log-transformed scores.
package bayesian

import (
	"context"
	"math"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

const (
	// Observation noise on the log-score scale.
	noise = 1e-6
	// Exploration offset for expected improvement.
	xi = 0.01
	// Points closer than this in the unit cube count as duplicates.
	minSpacing = 1e-6
)

// Optimizer implements optimization.Optimizer with a GP surrogate.
type Optimizer struct {
	config optimization.OptimizerConfig
	logger *zap.Logger

	mu          sync.RWMutex
	best        *optimization.Solution
	history     []optimization.Evaluation
	evaluations int
	cancel      context.CancelFunc
}

// New creates an optimizer. The config may be left empty and supplied to
// Optimize instead.
func New(config optimization.OptimizerConfig) *Optimizer {
	return &Optimizer{config: config}
}

// Optimize runs the initial design and the sequential steps. A config with
// a nil Objective keeps the one given to New. When ctx is cancelled between
// steps the best result so far is returned together with ctx.Err().
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		o.config = config
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		if oe, ok := err.(*optimization.Error); ok {
			oe.WithComponent("bayesian").WithOperation("Optimize")
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.best = nil
	o.history = make([]optimization.Evaluation, 0, cfg.MaxIterations+1)
	o.evaluations = 0
	o.mu.Unlock()
	defer cancel()

	o.logger = cfg.Log().Named("bayesian")
	rng := cfg.Source()
	dim := len(cfg.Bounds)

	toBounds := func(u []float64) []float64 {
		x := make([]float64, dim)
		for j, b := range cfg.Bounds {
			x[j] = b[0] + u[j]*(b[1]-b[0])
		}
		optimization.Clamp(x, cfg.Bounds)
		return x
	}

	design := latinHypercube(cfg.PopulationSize, dim, rng)
	scores := o.evaluate(cfg, design, toBounds)
	for i := range design {
		o.update(toBounds(design[i]), scores[i])
	}
	o.record(0)

	gp := NewGP(Matern52{LengthScale: 0.3 * math.Sqrt(float64(dim)), Scale: 1}, noise)

	completed := 0
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return o.result(completed, false), ctx.Err()
		default:
		}

		next, ei := o.propose(gp, design, logScores(scores), rng)
		s := o.evaluate(cfg, [][]float64{next}, toBounds)[0]

		design = append(design, next)
		scores = append(scores, s)
		o.update(toBounds(next), s)
		o.record(iter)
		completed = iter

		if ce := o.logger.Check(zap.DebugLevel, "step"); ce != nil {
			ce.Write(
				zap.Int("iter", iter),
				zap.Float64("score", s),
				zap.Float64("expected_improvement", ei),
				zap.Float64("best_score", o.GetBestSolution().Value),
			)
		}
	}

	return o.result(completed, true), nil
}

// propose fits the surrogate and returns the unit-cube point that maximizes
// expected improvement. It falls back to a uniform sample when the fit
// fails or the maximizer duplicates an observed point.
func (o *Optimizer) propose(gp *GP, design [][]float64, targets []float64, rng optimization.RandSource) ([]float64, float64) {
	dim := len(design[0])
	random := func() []float64 {
		u := make([]float64, dim)
		for j := range u {
			u[j] = rng.Float64()
		}
		return u
	}

	if err := gp.Fit(design, targets); err != nil {
		o.logger.Debug("surrogate fit failed, sampling uniformly", zap.Error(err))
		return random(), 0
	}

	best := floats.Min(targets)
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			p := clampUnit(u)
			mu, sigma := gp.Predict(p)
			return -ExpectedImprovement(mu, sigma, best, xi)
		},
	}

	starts := [][]float64{append([]float64(nil), design[floats.MinIdx(targets)]...)}
	for i := 0; i < 4+dim; i++ {
		starts = append(starts, random())
	}

	var (
		next   []float64
		bestEI = -1.0
	)
	for _, u0 := range starts {
		x, f := u0, problem.Func(u0)
		settings := &optimize.Settings{
			FuncEvaluations: 40 * (dim + 1),
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Iterations: 20,
			},
		}
		res, err := optimize.Minimize(problem, u0, settings, &optimize.NelderMead{SimplexSize: 0.1})
		if err == nil && res != nil && res.F < f {
			x, f = res.X, res.F
		}
		if -f > bestEI {
			next, bestEI = clampUnit(x), -f
		}
	}

	for _, u := range design {
		if floats.Distance(u, next, 2) < minSpacing {
			return random(), 0
		}
	}
	return next, bestEI
}

// evaluate scores the unit-cube points, concurrently when Workers > 1.
func (o *Optimizer) evaluate(cfg optimization.OptimizerConfig, us [][]float64, toBounds func([]float64) []float64) []float64 {
	out := make([]float64, len(us))
	if cfg.Workers <= 1 || len(us) == 1 {
		for i, u := range us {
			out[i] = cfg.Objective(toBounds(u))
		}
	} else {
		p := pool.New().WithMaxGoroutines(cfg.Workers)
		for i, u := range us {
			x := toBounds(u)
			p.Go(func() {
				out[i] = cfg.Objective(x)
			})
		}
		p.Wait()
	}

	o.mu.Lock()
	o.evaluations += len(us)
	o.mu.Unlock()
	return out
}

func (o *Optimizer) update(x []float64, f float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !math.IsNaN(f) && (o.best == nil || f < o.best.Value) {
		o.best = &optimization.Solution{Parameters: x, Value: f}
	}
}

func (o *Optimizer) record(iter int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.best != nil {
		o.history = append(o.history, optimization.Evaluation{Iteration: iter, Solution: o.best.Clone()})
	}
}

func (o *Optimizer) result(iterations int, finished bool) *optimization.OptimizationResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return &optimization.OptimizationResult{
		BestSolution: o.best.Clone(),
		History:      append([]optimization.Evaluation(nil), o.history...),
		Iterations:   iterations,
		Evaluations:  o.evaluations,
		Converged:    finished,
	}
}

// GetBestSolution returns the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.best.Clone()
}

// GetHistory returns the best solution after the initial design and after
// every step
func (o *Optimizer) GetHistory() []optimization.Evaluation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]optimization.Evaluation(nil), o.history...)
}

// Stop cancels a running Optimize call
func (o *Optimizer) Stop() {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// latinHypercube returns n points in the unit cube with exactly one point
// in each of the n strata of every dimension.
func latinHypercube(n, dim int, rng optimization.RandSource) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		pts[i] = make([]float64, dim)
	}
	perm := make([]int, n)
	for j := 0; j < dim; j++ {
		for i := range perm {
			perm[i] = i
		}
		for i := n - 1; i > 0; i-- {
			k := int(rng.Float64() * float64(i+1))
			perm[i], perm[k] = perm[k], perm[i]
		}
		for i := range pts {
			pts[i][j] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}
	return pts
}

// logScores maps scores onto the scale the surrogate models: the log of
// the gap to the smallest score, so fits resolve small residuals. NaN
// scores are treated as very bad finite ones.
func logScores(scores []float64) []float64 {
	t := make([]float64, len(scores))
	for i, s := range scores {
		if math.IsNaN(s) {
			s = 1e300
		}
		t[i] = math.Max(math.Min(s, 1e300), -1e300)
	}
	lo := floats.Min(t)
	eps := 1e-12 * (1 + math.Abs(lo))
	for i := range t {
		t[i] = math.Log(t[i] - lo + eps)
	}
	return t
}

func clampUnit(u []float64) []float64 {
	out := make([]float64, len(u))
	for i, v := range u {
		out[i] = math.Min(math.Max(v, 0), 1)
	}
	return out
}
