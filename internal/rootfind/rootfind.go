// Package rootfind provides scalar root finders for implicit equations.
package rootfind

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultTolerance is the relative step tolerance used when Settings
	// leaves it unset.
	DefaultTolerance = 1e-10
	// DefaultMaxIterations is the iteration budget used when Settings leaves
	// it unset.
	DefaultMaxIterations = 100
)

// Func is a scalar function together with its optional derivative.
// When DF is nil, derivative-based finders fall back to finite differences.
type Func struct {
	F  func(x float64) float64
	DF func(x float64) float64
}

// Result holds the outcome of a root search.
type Result struct {
	// X is the last iterate. It is the root when Converged is true.
	X float64
	// Residual is F(X).
	Residual float64
	// Iterations is the number of iterations performed.
	Iterations int
	// Converged reports whether the tolerance was met within budget.
	Converged bool
}

// Settings controls convergence of a Finder.
type Settings struct {
	// Tolerance is the relative step size below which the search stops.
	Tolerance float64
	// MaxIterations bounds the number of iterations.
	MaxIterations int
}

// DefaultSettings returns the settings used by the diode solvers.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
	}
}

func (s Settings) normalized() Settings {
	if s.Tolerance <= 0 || math.IsNaN(s.Tolerance) {
		s.Tolerance = DefaultTolerance
	}
	if s.MaxIterations < 1 {
		s.MaxIterations = DefaultMaxIterations
	}
	return s
}

// Finder searches for a root of f starting from x0.
// Finders never fail: a search that runs out of budget reports
// Converged=false and returns its last iterate.
type Finder interface {
	Find(f Func, x0 float64) Result
	Name() string
}

// ByName returns the finder registered under name ("newton", "secant" or
// "bisection").
func ByName(name string, settings Settings) (Finder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "newton", "newton-raphson":
		return NewNewton(settings), nil
	case "secant":
		return NewSecant(settings), nil
	case "bisection", "bisect":
		return NewBisection(settings), nil
	default:
		return nil, fmt.Errorf("unknown root finder %q", name)
	}
}

// stepConverged reports whether a step is small relative to the iterate.
func stepConverged(step, x, tol float64) bool {
	return math.Abs(step) <= tol*math.Max(1, math.Abs(x))
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
