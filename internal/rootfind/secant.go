package rootfind

import "math"

// Secant implements the derivative-free secant method.
type Secant struct {
	settings Settings
}

// NewSecant creates a secant finder.
func NewSecant(settings Settings) *Secant {
	return &Secant{settings: settings.normalized()}
}

// Name implements Finder.
func (s *Secant) Name() string { return "secant" }

// Find implements Finder. The derivative in f is ignored.
func (s *Secant) Find(f Func, x0 float64) Result {
	prev := x0
	fPrev := f.F(prev)
	if fPrev == 0 {
		return Result{X: prev, Residual: fPrev, Converged: true}
	}

	x := x0 + math.Max(1e-4, math.Abs(x0)*1e-4)
	fx := f.F(x)
	for it := 1; it <= s.settings.MaxIterations; it++ {
		if fx == 0 {
			return Result{X: x, Residual: fx, Iterations: it - 1, Converged: true}
		}
		denom := fx - fPrev
		if denom == 0 || !finite(denom) {
			return Result{X: x, Residual: fx, Iterations: it - 1}
		}

		step := fx * (x - prev) / denom
		next := x - step
		if !finite(next) {
			return Result{X: x, Residual: fx, Iterations: it}
		}
		prev, fPrev = x, fx
		x = next
		fx = f.F(x)

		if stepConverged(step, x, s.settings.Tolerance) {
			return Result{X: x, Residual: fx, Iterations: it, Converged: true}
		}
	}

	return Result{X: x, Residual: fx, Iterations: s.settings.MaxIterations}
}
