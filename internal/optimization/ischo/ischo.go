// Package ischo implements the improved sinh-cosh optimizer (I_SCHO), a
// best-guided population search. Each sweep moves every candidate along the
// line through the current best, scaled by a hyperbolic random weight, and
// keeps the move only when it lowers that candidate's score.
//
// The search has no restart or diversity mechanism and may settle in a local
// minimum.
package ischo

import (
	"context"
	"math"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

// Optimizer implements optimization.Optimizer with the I_SCHO update rule.
type Optimizer struct {
	config optimization.OptimizerConfig
	logger *zap.Logger

	mu          sync.RWMutex
	best        *optimization.Solution
	history     []optimization.Evaluation
	evaluations int

	// For cancellation
	cancel context.CancelFunc
}

// New creates an optimizer. The config may be left empty and supplied to
// Optimize instead.
func New(config optimization.OptimizerConfig) *Optimizer {
	return &Optimizer{config: config}
}

// Minimize runs I_SCHO on objective and returns the best vector and score.
func Minimize(ctx context.Context, objective optimization.ObjectiveFunction, bounds [][2]float64,
	population, maxIter int, seed int64) ([]float64, float64, error) {
	res, err := New(optimization.OptimizerConfig{
		Objective:      objective,
		Bounds:         bounds,
		PopulationSize: population,
		MaxIterations:  maxIter,
		RandomSeed:     seed,
	}).Optimize(ctx, optimization.OptimizerConfig{})
	if err != nil {
		return nil, 0, err
	}
	return res.BestSolution.Parameters, res.BestSolution.Value, nil
}

// Optimize runs the search. A config with a nil Objective keeps the one
// given to New. When ctx is cancelled between sweeps the best result so far
// is returned together with ctx.Err().
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		o.config = config
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		if oe, ok := err.(*optimization.Error); ok {
			oe.WithComponent("ischo").WithOperation("Optimize")
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

	o.logger = cfg.Log().Named("ischo")
	rng := cfg.Source()
	n, dim := cfg.PopulationSize, len(cfg.Bounds)

	pop := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		optimization.Sample(pop.RawRowView(i), cfg.Bounds, rng)
	}
	scores := o.evaluate(cfg, pop)
	o.record(0, pop, scores)

	trials := mat.NewDense(n, dim, nil)
	r1 := make([]float64, dim)
	r2 := make([]float64, dim)

	completed := 0
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		select {
		case <-ctx.Done():
			return o.result(completed, false), ctx.Err()
		default:
		}

		best := o.GetBestSolution().Parameters
		for i := 0; i < n; i++ {
			for j := range r1 {
				r1[j] = rng.Float64()
			}
			for j := range r2 {
				r2[j] = rng.Float64()
			}
			x := pop.RawRowView(i)
			t := trials.RawRowView(i)
			for j := range t {
				w := math.Cosh(r1[j]) + math.Sinh(r2[j])
				t[j] = best[j] + r1[j]*w*(x[j]-best[j])
			}
			optimization.Clamp(t, cfg.Bounds)
		}

		trialScores := o.evaluate(cfg, trials)
		accepted := 0
		for i, s := range trialScores {
			if s < scores[i] {
				pop.SetRow(i, trials.RawRowView(i))
				scores[i] = s
				accepted++
			}
		}

		o.record(iter, pop, scores)
		completed = iter

		if ce := o.logger.Check(zap.DebugLevel, "sweep"); ce != nil {
			ce.Write(
				zap.Int("iter", iter),
				zap.Int("accepted", accepted),
				zap.Float64("best_score", o.GetBestSolution().Value),
			)
		}
	}

	return o.result(completed, true), nil
}

// evaluate scores every row of m, concurrently when Workers > 1. Results
// are indexed by row so the outcome does not depend on scheduling.
func (o *Optimizer) evaluate(cfg optimization.OptimizerConfig, m *mat.Dense) []float64 {
	n, _ := m.Dims()
	out := make([]float64, n)

	if cfg.Workers <= 1 {
		for i := 0; i < n; i++ {
			out[i] = cfg.Objective(mat.Row(nil, i, m))
		}
	} else {
		p := pool.New().WithMaxGoroutines(cfg.Workers)
		for i := 0; i < n; i++ {
			x := mat.Row(nil, i, m)
			p.Go(func() {
				out[i] = cfg.Objective(x)
			})
		}
		p.Wait()
	}

	o.mu.Lock()
	o.evaluations += n
	o.mu.Unlock()
	return out
}

// record replaces the tracked best only on strict improvement and appends
// the best-so-far to the history.
func (o *Optimizer) record(iter int, pop *mat.Dense, scores []float64) {
	k := floats.MinIdx(scores)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.best == nil || scores[k] < o.best.Value {
		o.best = &optimization.Solution{
			Parameters: mat.Row(nil, k, pop),
			Value:      scores[k],
		}
	}
	o.history = append(o.history, optimization.Evaluation{
		Iteration: iter,
		Solution:  o.best.Clone(),
	})
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

// GetHistory returns the best solution after every sweep
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
