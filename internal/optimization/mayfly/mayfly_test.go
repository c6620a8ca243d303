package mayfly

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

func config(seed int64) optimization.OptimizerConfig {
	return optimization.OptimizerConfig{
		Objective:      optimization.Shifted(optimization.Sphere, []float64{1, -2, 3}),
		Bounds:         [][2]float64{{-10, 10}, {-5, 0}, {0, 10}},
		PopulationSize: 20,
		MaxIterations:  100,
		RandomSeed:     seed,
	}
}

func TestMayflyPerDimensionBounds(t *testing.T) {
	cfg := config(42)
	var outside atomic.Int64
	inner := cfg.Objective
	cfg.Objective = func(x []float64) float64 {
		for j, b := range cfg.Bounds {
			if x[j] < b[0] || x[j] > b[1] {
				outside.Add(1)
			}
		}
		return inner(x)
	}

	res, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Zero(t, outside.Load())
	assert.Less(t, res.BestSolution.Value, 1.0)
	assert.Positive(t, res.Evaluations)
	assert.Len(t, res.History, 1)
}

func TestMayflyDeterministic(t *testing.T) {
	a, err := New(config(123)).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	b, err := New(config(123)).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, a.BestSolution, b.BestSolution)
}

func TestMayflySmallPopulationRaised(t *testing.T) {
	cfg := config(7)
	cfg.PopulationSize = 3
	res, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.NotNil(t, res.BestSolution)
}

func TestMayflyZeroIterations(t *testing.T) {
	cfg := config(7)
	cfg.MaxIterations = 0
	res, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Evaluations)
	require.NotNil(t, res.BestSolution)
	assert.Len(t, res.BestSolution.Parameters, 3)
}

func TestMayflyInjectedRand(t *testing.T) {
	cfg := config(0)
	cfg.Rand = rand.New(rand.NewSource(5))
	a, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	cfg.Rand = rand.New(rand.NewSource(5))
	b, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, a.BestSolution.Value, b.BestSolution.Value)
}

func TestMayflyInvalidConfig(t *testing.T) {
	cfg := config(1)
	cfg.Bounds[1] = [2]float64{1, 0}
	_, err := New(cfg).Optimize(context.Background(), optimization.OptimizerConfig{})
	assert.True(t, errors.Is(err, optimization.ErrInvalidConfig))
	assert.Equal(t, "bounds[1]", optimization.ParamOf(err))
}

func TestMayflyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(config(1)).Optimize(ctx, optimization.OptimizerConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}
