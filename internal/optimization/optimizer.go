package optimization

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Optimize runs the optimization process
	Optimize(ctx context.Context, config OptimizerConfig) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the history of evaluations
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process
	Stop()
}

// OptimizerConfig contains configuration for the optimizer
type OptimizerConfig struct {
	// Objective function to minimize
	Objective ObjectiveFunction

	// Bounds for each dimension [min, max]
	Bounds [][2]float64

	// Maximum number of iterations
	MaxIterations int

	// Number of candidates kept by population-based methods
	PopulationSize int

	// Random seed for reproducibility, 0 seeds from the clock
	RandomSeed int64

	// Rand overrides RandomSeed when set
	Rand RandSource

	// Number of concurrent objective evaluations, <= 1 evaluates inline
	Workers int

	// Logger receives per-iteration progress at debug level
	Logger *zap.Logger

	// Verbose logging
	Verbose bool
}

// ObjectiveFunction maps a candidate vector to a score; lower is better.
// It must be safe for concurrent use when Workers > 1.
type ObjectiveFunction func([]float64) float64

// RandSource yields uniform samples in [0, 1).
type RandSource interface {
	Float64() float64
}

// NewRand returns a generator seeded with seed, or with the current time
// when seed is 0.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Source returns the configured RandSource, falling back to NewRand.
func (c OptimizerConfig) Source() RandSource {
	if c.Rand != nil {
		return c.Rand
	}
	return NewRand(c.RandomSeed)
}

// Log returns the configured logger or a no-op logger.
func (c OptimizerConfig) Log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// Solution represents a solution in the optimization space
type Solution struct {
	Parameters []float64 `json:"parameters"`
	Value      float64   `json:"value"`
}

// Clone returns a deep copy of s.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	return &Solution{Parameters: append([]float64(nil), s.Parameters...), Value: s.Value}
}

// Evaluation records the best solution known after an iteration
type Evaluation struct {
	Iteration int       `json:"iteration"`
	Solution  *Solution `json:"solution"`
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution   `json:"best_solution"`
	History      []Evaluation `json:"history,omitempty"`
	Iterations   int          `json:"iterations"`
	Evaluations  int          `json:"evaluations"`
	Converged    bool         `json:"converged"`
}
