package bayesian

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

func sphereConfig(seed int64) optimization.OptimizerConfig {
	return optimization.OptimizerConfig{
		Objective:      optimization.Sphere,
		Bounds:         [][2]float64{{-5, 5}, {-5, 5}},
		PopulationSize: 8,
		MaxIterations:  25,
		RandomSeed:     seed,
	}
}

func TestSphere(t *testing.T) {
	cfg := sphereConfig(1)
	cfg.Logger = zaptest.NewLogger(t)
	res, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 25, res.Iterations)
	assert.Equal(t, 8+25, res.Evaluations)
	require.Len(t, res.History, 26)
	assert.LessOrEqual(t, res.BestSolution.Value, res.History[0].Solution.Value)
	assert.Less(t, res.BestSolution.Value, 1.0)

	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i].Solution.Value, res.History[i-1].Solution.Value)
	}
}

func TestReproducible(t *testing.T) {
	a, err := New(sphereConfig(9)).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	b, err := New(sphereConfig(9)).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, a.BestSolution, b.BestSolution)
}

func TestBoundsAndWorkers(t *testing.T) {
	bounds := [][2]float64{{0, 1}, {10, 20}}
	var outside, calls atomic.Int64
	objective := func(x []float64) float64 {
		calls.Add(1)
		for j, b := range bounds {
			if x[j] < b[0] || x[j] > b[1] {
				outside.Add(1)
			}
		}
		return optimization.Sphere([]float64{x[0] - 3, x[1]})
	}

	res, err := New(optimization.OptimizerConfig{
		Objective:      objective,
		Bounds:         bounds,
		PopulationSize: 12,
		MaxIterations:  6,
		RandomSeed:     4,
		Workers:        4,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Zero(t, outside.Load())
	assert.Equal(t, int64(18), calls.Load())
	assert.Equal(t, 18, res.Evaluations)
}

func TestPinnedDimension(t *testing.T) {
	res, err := New(optimization.OptimizerConfig{
		Objective:      optimization.Sphere,
		Bounds:         [][2]float64{{-1, 1}, {2, 2}},
		PopulationSize: 5,
		MaxIterations:  5,
		RandomSeed:     2,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.BestSolution.Parameters[1])
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(optimization.OptimizerConfig{
		Objective:      optimization.Sphere,
		Bounds:         [][2]float64{{1, 0}},
		PopulationSize: 4,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, optimization.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "bayesian")
	assert.Equal(t, "bounds[0]", optimization.ParamOf(err))
}

func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	cfg := sphereConfig(3)
	cfg.MaxIterations = 1000
	cfg.Objective = func(x []float64) float64 {
		if calls.Add(1) == 12 {
			cancel()
		}
		return optimization.Sphere(x)
	}

	o := New(cfg)
	res, err := o.Optimize(ctx, optimization.OptimizerConfig{})
	require.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.False(t, res.Converged)
	assert.Less(t, res.Iterations, 1000)
	assert.NotNil(t, o.GetBestSolution())
	assert.Len(t, o.GetHistory(), res.Iterations+1)

	o.Stop()
}

func TestLatinHypercube(t *testing.T) {
	const n, dim = 10, 3
	pts := latinHypercube(n, dim, optimization.NewRand(5))
	require.Len(t, pts, n)
	for j := 0; j < dim; j++ {
		strata := make([]int, n)
		for i, p := range pts {
			require.GreaterOrEqual(t, p[j], 0.0)
			require.Less(t, p[j], 1.0)
			strata[i] = int(p[j] * n)
		}
		sort.Ints(strata)
		for i, s := range strata {
			assert.Equal(t, i, s, "dimension %d", j)
		}
	}
}

func TestLogScores(t *testing.T) {
	got := logScores([]float64{3, 1, math.NaN(), 2, -4})
	order := []int{4, 1, 3, 0, 2}
	for i := 1; i < len(order); i++ {
		assert.Less(t, got[order[i-1]], got[order[i]])
	}
	for _, v := range got {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}
