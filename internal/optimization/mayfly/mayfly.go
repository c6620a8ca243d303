// Package mayfly adapts the Mayfly algorithm from github.com/cwbudde/mayfly
// to optimization.Optimizer so it can be benchmarked against I_SCHO.
package mayfly

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	mf "github.com/cwbudde/mayfly"
	"go.uber.org/zap"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

// MinPopulation is the smallest swarm the library accepts.
const MinPopulation = 20

// Optimizer runs Mayfly in the unit cube and maps positions onto the
// configured per-dimension bounds, since the library only supports one
// scalar range for all dimensions.
type Optimizer struct {
	config optimization.OptimizerConfig

	mu      sync.RWMutex
	best    *optimization.Solution
	history []optimization.Evaluation
	cancel  context.CancelFunc
}

// New creates a Mayfly adapter.
func New(config optimization.OptimizerConfig) *Optimizer {
	return &Optimizer{config: config}
}

// Optimize runs the search. A config with a nil Objective keeps the one
// given to New.
func (o *Optimizer) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	if config.Objective != nil {
		o.config = config
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		if oe, ok := err.(*optimization.Error); ok {
			oe.WithComponent("mayfly").WithOperation("Optimize")
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.best = nil
	o.history = nil
	o.mu.Unlock()
	defer cancel()

	logger := cfg.Log().Named("mayfly")
	dim := len(cfg.Bounds)
	var evals atomic.Int64

	toBounds := func(u []float64) []float64 {
		x := make([]float64, dim)
		for j, b := range cfg.Bounds {
			x[j] = b[0] + u[j]*(b[1]-b[0])
		}
		optimization.Clamp(x, cfg.Bounds)
		return x
	}
	objective := func(u []float64) float64 {
		if ctx.Err() != nil {
			return math.MaxFloat64
		}
		evals.Add(1)
		return cfg.Objective(toBounds(u))
	}

	rng := randFor(cfg)
	var (
		position []float64
		cost     float64
	)

	if cfg.MaxIterations == 0 {
		// no library run: keep the best of one random swarm
		cost = math.Inf(1)
		u := make([]float64, dim)
		for i := 0; i < cfg.PopulationSize; i++ {
			for j := range u {
				u[j] = rng.Float64()
			}
			if c := objective(u); c < cost || position == nil {
				cost = c
				position = append(position[:0], u...)
			}
		}
	} else {
		mc := mf.NewDefaultConfig()
		mc.ObjectiveFunc = objective
		mc.ProblemSize = dim
		mc.MaxIterations = cfg.MaxIterations
		mc.NPop = max(cfg.PopulationSize, MinPopulation)
		mc.LowerBound = 0
		mc.UpperBound = 1
		mc.Rand = rng

		res, err := mf.Optimize(mc)
		if err != nil {
			return nil, optimization.WrapError(err, "mayfly run failed").WithComponent("mayfly").WithOperation("Optimize")
		}
		position, cost = res.GlobalBest.Position, res.GlobalBest.Cost
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	best := &optimization.Solution{Parameters: toBounds(position), Value: cost}
	o.mu.Lock()
	o.best = best
	o.history = []optimization.Evaluation{{Iteration: cfg.MaxIterations, Solution: best.Clone()}}
	o.mu.Unlock()

	logger.Debug("mayfly finished",
		zap.Float64("best_score", cost),
		zap.Int64("evaluations", evals.Load()),
	)

	return &optimization.OptimizationResult{
		BestSolution: best.Clone(),
		History:      o.GetHistory(),
		Iterations:   cfg.MaxIterations,
		Evaluations:  int(evals.Load()),
		Converged:    true,
	}, nil
}

// randFor reuses an injected *rand.Rand; any other source is replaced by a
// seeded generator because the library needs the concrete type.
func randFor(cfg optimization.OptimizerConfig) *rand.Rand {
	if r, ok := cfg.Rand.(*rand.Rand); ok {
		return r
	}
	return optimization.NewRand(cfg.RandomSeed)
}

// GetBestSolution returns the best solution found so far
func (o *Optimizer) GetBestSolution() *optimization.Solution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.best.Clone()
}

// GetHistory returns the final best solution; the library does not expose
// per-iteration progress.
func (o *Optimizer) GetHistory() []optimization.Evaluation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]optimization.Evaluation(nil), o.history...)
}

// Stop makes the remaining objective calls return immediately
func (o *Optimizer) Stop() {
	o.mu.RLock()
	cancel := o.cancel
	o.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}
