// Package fitness scores candidate parameter vectors by how well the
// simulated I-V curve matches a measured one.
package fitness

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/pvfit/internal/curve"
	"github.com/copyleftdev/pvfit/internal/optimization"
	"github.com/copyleftdev/pvfit/internal/pv"
)

// Worst is returned for candidates whose error is not finite. Any finite
// score compares lower.
const Worst = math.MaxFloat64

// RMSE returns sqrt(mean((predicted-measured)^2)). Empty input yields 0.
// It panics if the lengths differ.
func RMSE(predicted, measured []float64) float64 {
	if len(predicted) != len(measured) {
		panic("fitness: length mismatch")
	}
	if len(measured) == 0 {
		return 0
	}
	return floats.Distance(predicted, measured, 2) / math.Sqrt(float64(len(measured)))
}

// Evaluator scores candidate vectors against a measured curve.
type Evaluator struct {
	Solver *pv.Solver
	Layout pv.Layout
	Curve  curve.Curve

	calls atomic.Int64
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(solver *pv.Solver, layout pv.Layout, c curve.Curve) *Evaluator {
	return &Evaluator{Solver: solver, Layout: layout, Curve: c}
}

// Evaluate returns the RMSE between the measured currents and the currents
// the model predicts for x. Undecodable vectors and non-finite errors
// score Worst.
func (e *Evaluator) Evaluate(x []float64) float64 {
	e.calls.Add(1)
	p, err := e.Layout.Decode(x)
	if err != nil {
		return Worst
	}
	return e.Score(p)
}

// Score returns the RMSE of a known parameter set.
func (e *Evaluator) Score(p pv.Params) float64 {
	predicted := make([]float64, len(e.Curve))
	measured := make([]float64, len(e.Curve))
	for k, pt := range e.Curve {
		predicted[k] = e.Solver.Solve(pt.V, p)
		measured[k] = pt.I
	}
	r := RMSE(predicted, measured)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return Worst
	}
	return r
}

// Objective adapts Evaluate for the optimizers. It is safe for concurrent
// use.
func (e *Evaluator) Objective() optimization.ObjectiveFunction {
	return e.Evaluate
}

// Calls returns how many candidates have been evaluated.
func (e *Evaluator) Calls() int64 {
	return e.calls.Load()
}
