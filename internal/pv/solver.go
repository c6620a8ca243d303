package pv

import (
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/pvfit/internal/rootfind"
)

// Solver finds the current that satisfies a model's implicit I-V equation.
// A Solver is safe for concurrent use once constructed.
type Solver struct {
	consts   Constants
	vt       float64
	primary  rootfind.Finder
	fallback rootfind.Finder
	onMiss   func(Kind)
	logger   *zap.Logger
}

// Option configures a Solver.
type Option func(*Solver)

// WithFinder replaces the default Newton-Raphson finder.
func WithFinder(f rootfind.Finder) Option {
	return func(s *Solver) {
		if f != nil {
			s.primary = f
		}
	}
}

// WithFallback sets a finder tried when the primary one does not converge.
func WithFallback(f rootfind.Finder) Option {
	return func(s *Solver) { s.fallback = f }
}

// WithNonConvergenceHook registers a callback invoked whenever a solve
// returns an unconverged iterate.
func WithNonConvergenceHook(fn func(Kind)) Option {
	return func(s *Solver) { s.onMiss = fn }
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSolver creates a Solver for the given constants.
func NewSolver(consts Constants, opts ...Option) *Solver {
	s := &Solver{
		consts:  consts,
		vt:      consts.ThermalVoltage(),
		primary: rootfind.NewNewton(rootfind.DefaultSettings()),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("pv_solver")
	return s
}

// Constants returns the constants the solver was built with.
func (s *Solver) Constants() Constants {
	return s.consts
}

// Solve returns the current I at voltage v. Invalid parameters yield NaN.
// When no finder converges the last iterate of the primary finder is
// returned.
func (s *Solver) Solve(v float64, p Params) float64 {
	if p == nil || p.Validate() != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}

	eq := p.Equation(s.vt)
	f := rootfind.Func{
		F:  func(i float64) float64 { return eq.Residual(v, i) },
		DF: func(i float64) float64 { return eq.Derivative(v, i) },
	}

	res := s.primary.Find(f, eq.Guess())
	if res.Converged {
		return res.X
	}

	if s.fallback != nil {
		if fb := s.fallback.Find(f, eq.Guess()); fb.Converged {
			return fb.X
		}
	}

	if s.onMiss != nil {
		s.onMiss(p.Kind())
	}
	if ce := s.logger.Check(zap.DebugLevel, "solve did not converge"); ce != nil {
		ce.Write(
			zap.String("model", string(p.Kind())),
			zap.Float64("voltage", v),
			zap.Float64("current", res.X),
			zap.Float64("residual", res.Residual),
			zap.Int("iterations", res.Iterations),
		)
	}
	return res.X
}

// SolveCurve solves every voltage in vs.
func (s *Solver) SolveCurve(vs []float64, p Params) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = s.Solve(v, p)
	}
	return out
}

// Residual evaluates the model equation at (v, i).
func (s *Solver) Residual(v, i float64, p Params) float64 {
	return p.Equation(s.vt).Residual(v, i)
}
