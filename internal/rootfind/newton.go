package rootfind

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
)

// Newton implements the Newton-Raphson method.
type Newton struct {
	settings Settings
}

// NewNewton creates a Newton-Raphson finder.
func NewNewton(settings Settings) *Newton {
	return &Newton{settings: settings.normalized()}
}

// Name implements Finder.
func (n *Newton) Name() string { return "newton" }

// Find implements Finder.
func (n *Newton) Find(f Func, x0 float64) Result {
	df := f.DF
	if df == nil {
		df = centralDifference(f.F)
	}

	x := x0
	fx := f.F(x)
	for it := 1; it <= n.settings.MaxIterations; it++ {
		if fx == 0 {
			return Result{X: x, Residual: fx, Iterations: it - 1, Converged: true}
		}
		d := df(x)
		if d == 0 || !finite(d) || !finite(fx) {
			return Result{X: x, Residual: fx, Iterations: it - 1}
		}

		step := fx / d
		next := x - step
		if !finite(next) {
			return Result{X: x, Residual: fx, Iterations: it}
		}
		x = next
		fx = f.F(x)

		if stepConverged(step, x, n.settings.Tolerance) {
			return Result{X: x, Residual: fx, Iterations: it, Converged: true}
		}
	}

	return Result{X: x, Residual: fx, Iterations: n.settings.MaxIterations}
}

// centralDifference approximates the derivative of f numerically.
func centralDifference(f func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		h := 1e-6 * math.Max(1, math.Abs(x))
		return fd.Derivative(f, x, &fd.Settings{
			Formula: fd.Central,
			Step:    h,
		})
	}
}
