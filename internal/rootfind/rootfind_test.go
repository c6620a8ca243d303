package rootfind

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cubic() Func {
	// x^3 - 2x - 5 has a single real root near 2.0945514815
	return Func{
		F:  func(x float64) float64 { return x*x*x - 2*x - 5 },
		DF: func(x float64) float64 { return 3*x*x - 2 },
	}
}

const cubicRoot = 2.0945514815423265

func TestFindersConverge(t *testing.T) {
	finders := []Finder{
		NewNewton(DefaultSettings()),
		NewSecant(DefaultSettings()),
		NewBisection(DefaultSettings()),
	}

	for _, finder := range finders {
		t.Run(finder.Name(), func(t *testing.T) {
			res := finder.Find(cubic(), 2.0)
			require.True(t, res.Converged, "finder should converge")
			assert.InDelta(t, cubicRoot, res.X, 1e-8)
			assert.InDelta(t, 0.0, res.Residual, 1e-7)
			assert.Greater(t, res.Iterations, 0)
		})
	}
}

func TestNewtonFiniteDifference(t *testing.T) {
	f := Func{F: func(x float64) float64 { return math.Cos(x) - x }}

	res := NewNewton(DefaultSettings()).Find(f, 1.0)
	require.True(t, res.Converged)
	assert.InDelta(t, 0.7390851332151607, res.X, 1e-9)
}

func TestNewtonBudgetExhausted(t *testing.T) {
	// Newton cycles between 0 and 1 on this function.
	f := Func{
		F:  func(x float64) float64 { return x*x*x - 2*x + 2 },
		DF: func(x float64) float64 { return 3*x*x - 2 },
	}

	res := NewNewton(Settings{Tolerance: 1e-12, MaxIterations: 20}).Find(f, 0)
	assert.False(t, res.Converged)
	assert.Equal(t, 20, res.Iterations)
	assert.False(t, math.IsNaN(res.X), "last iterate should be returned")
}

func TestNewtonZeroDerivative(t *testing.T) {
	f := Func{
		F:  func(x float64) float64 { return x*x + 1 },
		DF: func(x float64) float64 { return 2 * x },
	}

	res := NewNewton(DefaultSettings()).Find(f, 0)
	assert.False(t, res.Converged)
	assert.Equal(t, 0.0, res.X)
}

func TestBisectionExpandsBracket(t *testing.T) {
	f := Func{F: func(x float64) float64 { return 1000 - x }}

	res := NewBisection(DefaultSettings()).Find(f, 0)
	require.True(t, res.Converged)
	assert.InDelta(t, 1000.0, res.X, 1e-6)
}

func TestBisectionNoSignChange(t *testing.T) {
	f := Func{F: func(x float64) float64 { return x*x + 1 }}

	res := NewBisection(DefaultSettings()).Find(f, 3)
	assert.False(t, res.Converged)
	assert.Equal(t, 3.0, res.X)
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: "newton"},
		{name: "Newton", want: "newton"},
		{name: "secant", want: "secant"},
		{name: " bisection ", want: "bisection"},
		{name: "brent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ByName(tt.name, DefaultSettings())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Name())
		})
	}
}

func TestSettingsNormalized(t *testing.T) {
	s := Settings{}.normalized()
	assert.Equal(t, DefaultTolerance, s.Tolerance)
	assert.Equal(t, DefaultMaxIterations, s.MaxIterations)
}
