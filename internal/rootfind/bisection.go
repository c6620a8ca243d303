package rootfind

import "math"

// maxExpansions bounds the doubling search for a sign change.
const maxExpansions = 64

// Bisection brackets a root around the initial guess and bisects it.
type Bisection struct {
	settings Settings
}

// NewBisection creates a bisection finder.
func NewBisection(settings Settings) *Bisection {
	return &Bisection{settings: settings.normalized()}
}

// Name implements Finder.
func (b *Bisection) Name() string { return "bisection" }

// Find implements Finder. The derivative in f is ignored.
func (b *Bisection) Find(f Func, x0 float64) Result {
	lo, hi, fLo, fHi, ok := bracket(f.F, x0)
	if !ok {
		fx := f.F(x0)
		return Result{X: x0, Residual: fx}
	}
	if fLo == 0 {
		return Result{X: lo, Residual: 0, Converged: true}
	}
	if fHi == 0 {
		return Result{X: hi, Residual: 0, Converged: true}
	}

	mid, fMid := lo, fLo
	for it := 1; it <= b.settings.MaxIterations; it++ {
		mid = lo + (hi-lo)/2
		fMid = f.F(mid)
		if fMid == 0 || stepConverged(hi-lo, mid, b.settings.Tolerance) {
			return Result{X: mid, Residual: fMid, Iterations: it, Converged: true}
		}
		if math.Signbit(fMid) == math.Signbit(fLo) {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}

	return Result{X: mid, Residual: fMid, Iterations: b.settings.MaxIterations}
}

// bracket expands an interval symmetrically around x0 until f changes sign.
func bracket(f func(float64) float64, x0 float64) (lo, hi, fLo, fHi float64, ok bool) {
	h := 0.1 * math.Max(1, math.Abs(x0))
	for i := 0; i < maxExpansions; i++ {
		lo, hi = x0-h, x0+h
		fLo, fHi = f(lo), f(hi)
		if !finite(fLo) || !finite(fHi) {
			return lo, hi, fLo, fHi, false
		}
		if fLo == 0 || fHi == 0 || math.Signbit(fLo) != math.Signbit(fHi) {
			return lo, hi, fLo, fHi, true
		}
		h *= 2
	}
	return lo, hi, fLo, fHi, false
}
