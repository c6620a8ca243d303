package neldermead

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/pvfit/internal/optimization"
)

func TestNelderMeadRosenbrock(t *testing.T) {
	res, err := New(optimization.OptimizerConfig{
		Objective:      optimization.Rosenbrock,
		Bounds:         [][2]float64{{-2, 2}, {-2, 2}},
		PopulationSize: 5,
		MaxIterations:  500,
		RandomSeed:     1,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)

	assert.Less(t, res.BestSolution.Value, 1e-4)
	assert.InDelta(t, 1.0, res.BestSolution.Parameters[0], 0.05)
	assert.InDelta(t, 1.0, res.BestSolution.Parameters[1], 0.05)
	assert.Len(t, res.History, 5)
	for k := 1; k < len(res.History); k++ {
		assert.LessOrEqual(t, res.History[k].Solution.Value, res.History[k-1].Solution.Value)
	}
}

func TestNelderMeadStaysInBounds(t *testing.T) {
	bounds := [][2]float64{{2, 3}, {-1, 1}}
	res, err := New(optimization.OptimizerConfig{
		Objective: func(x []float64) float64 {
			if x[0] < 2 || x[0] > 3 || x[1] < -1 || x[1] > 1 {
				t.Errorf("evaluated outside bounds: %v", x)
			}
			return optimization.Sphere(x)
		},
		Bounds:         bounds,
		PopulationSize: 3,
		MaxIterations:  200,
		RandomSeed:     2,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.BestSolution.Parameters[0], 1e-3)
	assert.InDelta(t, 0.0, res.BestSolution.Parameters[1], 1e-3)
}

func TestNelderMeadZeroIterations(t *testing.T) {
	res, err := New(optimization.OptimizerConfig{
		Objective:      optimization.Sphere,
		Bounds:         [][2]float64{{-1, 1}},
		PopulationSize: 4,
		RandomSeed:     3,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Evaluations)
}

func TestNelderMeadInvalidConfig(t *testing.T) {
	_, err := New(optimization.OptimizerConfig{
		Objective:      optimization.Sphere,
		Bounds:         [][2]float64{{1, -1}},
		PopulationSize: 4,
	}).Optimize(context.Background(), optimization.OptimizerConfig{})
	assert.True(t, errors.Is(err, optimization.ErrInvalidConfig))
}

func TestNelderMeadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opt := New(optimization.OptimizerConfig{
		Objective:      optimization.Sphere,
		Bounds:         [][2]float64{{-1, 1}},
		PopulationSize: 4,
		MaxIterations:  10,
		RandomSeed:     3,
	})
	res, err := opt.Optimize(ctx, optimization.OptimizerConfig{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Iterations)
	assert.Nil(t, opt.GetBestSolution())
}
