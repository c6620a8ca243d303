package fitness

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/pvfit/internal/curve"
	"github.com/copyleftdev/pvfit/internal/pv"
)

func TestRMSE(t *testing.T) {
	assert.Equal(t, 0.0, RMSE(nil, nil))
	assert.Equal(t, 0.0, RMSE([]float64{1, 2}, []float64{1, 2}))
	assert.InDelta(t, math.Sqrt(2.5), RMSE([]float64{0, 0}, []float64{1, 2}), 1e-15)
	assert.Panics(t, func() { RMSE([]float64{1}, nil) })
	assert.True(t, math.IsNaN(RMSE([]float64{math.NaN()}, []float64{0})))
}

func syntheticEvaluator(t *testing.T) (*Evaluator, pv.SingleDiode) {
	t.Helper()
	truth := pv.SingleDiode{Iph: 5.5, Is: 1e-10, N: 1.2, Rs: 0.01, Rsh: 100}
	solver := pv.NewSolver(pv.DefaultConstants())
	vs := curve.Linspace(0, 0.6, 50)
	c, err := curve.New(vs, solver.SolveCurve(vs, truth))
	require.NoError(t, err)
	return NewEvaluator(solver, pv.NewLayout(pv.SDM), c), truth
}

func TestEvaluateTruthIsZero(t *testing.T) {
	e, truth := syntheticEvaluator(t)
	assert.InDelta(t, 0.0, e.Score(truth), 1e-12)
	assert.InDelta(t, 0.0, e.Evaluate([]float64{5.5, 1e-10, 1.2, 0.01, 100}), 1e-12)
}

func TestEvaluatePerturbedIsWorse(t *testing.T) {
	e, _ := syntheticEvaluator(t)
	good := e.Evaluate([]float64{5.5, 1e-10, 1.2, 0.01, 100})
	bad := e.Evaluate([]float64{5.0, 1e-10, 1.2, 0.01, 100})
	assert.Greater(t, bad, good)
	// a pure Iph shift moves every point by about the same amount
	assert.InDelta(t, 0.5, bad, 0.05)
}

func TestEvaluateSentinel(t *testing.T) {
	e, _ := syntheticEvaluator(t)

	assert.Equal(t, Worst, e.Evaluate([]float64{5.5, 1e-10, 1.2, 0.01, 0}), "Rsh = 0 is invalid")
	assert.Equal(t, Worst, e.Evaluate([]float64{5.5, 1e-10, 0, 0.01, 100}), "n = 0 is invalid")
	assert.Equal(t, Worst, e.Evaluate([]float64{1, 2, 3}), "wrong dimension")
	assert.Equal(t, Worst, e.Evaluate([]float64{math.NaN(), 1e-10, 1.2, 0.01, 100}))
	assert.Equal(t, int64(4), e.Calls())
}

func TestObjectiveMatchesEvaluate(t *testing.T) {
	e, _ := syntheticEvaluator(t)
	x := []float64{5.4, 2e-10, 1.25, 0.02, 90}
	assert.Equal(t, e.Evaluate(x), e.Objective()(x))
}

func TestEmptyCurveScoresZero(t *testing.T) {
	e := NewEvaluator(pv.NewSolver(pv.DefaultConstants()), pv.NewLayout(pv.SDM), nil)
	assert.Equal(t, 0.0, e.Evaluate([]float64{1, 1e-9, 1.3, 0.01, 50}))
}

func BenchmarkEvaluate(b *testing.B) {
	truth := pv.SingleDiode{Iph: 5.5, Is: 1e-10, N: 1.2, Rs: 0.01, Rsh: 100}
	solver := pv.NewSolver(pv.DefaultConstants())
	vs := curve.Linspace(0, 0.6, 50)
	c, _ := curve.New(vs, solver.SolveCurve(vs, truth))
	e := NewEvaluator(solver, pv.NewLayout(pv.SDM), c)
	x := []float64{5.4, 2e-10, 1.25, 0.02, 90}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Evaluate(x)
	}
}
