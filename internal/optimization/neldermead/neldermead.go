// Package neldermead provides a multi-start Nelder-Mead baseline built on
// gonum/optimize.
package neldermead

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

// Optimizer runs one Nelder-Mead search per population member from random
// starting points. Searches run in the unit cube so parameters of very
// different magnitude share one simplex scale.
type Optimizer struct {
	config optimization.OptimizerConfig

	mu          sync.RWMutex
	best        *optimization.Solution
	history     []optimization.Evaluation
	evaluations int
	cancel      context.CancelFunc
}

// New creates a Nelder-Mead optimizer.
func New(config optimization.OptimizerConfig) *Optimizer {
	return &Optimizer{config: config}
}

// Optimize runs PopulationSize local searches with MaxIterations major
// iterations each. A config with a nil Objective keeps the one given to New.
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		o.config = config
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		if oe, ok := err.(*optimization.Error); ok {
			oe.WithComponent("neldermead").WithOperation("Optimize")
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.best = nil
	o.history = make([]optimization.Evaluation, 0, cfg.PopulationSize)
	o.evaluations = 0
	o.mu.Unlock()
	defer cancel()

	logger := cfg.Log().Named("neldermead")
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

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			o.mu.Lock()
			o.evaluations++
			o.mu.Unlock()
			return cfg.Objective(toBounds(u))
		},
	}

	for start := 0; start < cfg.PopulationSize; start++ {
		select {
		case <-ctx.Done():
			return o.result(start, false), ctx.Err()
		default:
		}

		u0 := make([]float64, dim)
		for j := range u0 {
			u0[j] = rng.Float64()
		}

		x, f := u0, problem.Func(u0)
		if cfg.MaxIterations > 0 {
			settings := &optimize.Settings{
				MajorIterations: cfg.MaxIterations,
				Converger: &optimize.FunctionConverge{
					Absolute:   1e-12,
					Relative:   1e-12,
					Iterations: 50,
				},
			}
			method := &optimize.NelderMead{
				Reflection:  1.0,
				Expansion:   2.0,
				Contraction: 0.5,
				Shrink:      0.5,
				SimplexSize: 0.2,
			}
			res, err := optimize.Minimize(problem, u0, settings, method)
			if res != nil && res.F < f {
				x, f = res.X, res.F
			}
			if err != nil {
				logger.Debug("local search stopped early", zap.Int("start", start), zap.Error(err))
			}
		}

		o.update(start, toBounds(x), f)
	}

	return o.result(cfg.PopulationSize, true), nil
}

func (o *Optimizer) update(start int, x []float64, f float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !math.IsNaN(f) && (o.best == nil || f < o.best.Value) {
		o.best = &optimization.Solution{Parameters: x, Value: f}
	}
	if o.best != nil {
		o.history = append(o.history, optimization.Evaluation{Iteration: start, Solution: o.best.Clone()})
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

// GetHistory returns the best solution after every start
func (o *Optimizer) GetHistory() []optimization.Evaluation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]optimization.Evaluation(nil), o.history...)
}

// Stop cancels the run before the next start
func (o *Optimizer) Stop() {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}
