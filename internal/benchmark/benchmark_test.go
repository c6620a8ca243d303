package benchmark

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/pvfit/internal/curve"
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
	"github.com/copyleftdev/pvfit/internal/optimization"
)

func sphereProblem() Problem {
	return Problem{
		Name:      "sphere",
		Objective: optimization.Shifted(optimization.Sphere, []float64{0.5, -0.5}),
		Bounds:    [][2]float64{{-2, 2}, {-2, 2}},
	}
}

func smallOptions() Options {
	return Options{
		Trials:         4,
		PopulationSize: 20,
		MaxIterations:  30,
		Seed:           100,
	}
}

func TestNewOptimizer(t *testing.T) {
	for _, name := range append(Algorithms(), "I_SCHO", "nelder-mead", Bayesian, "BO") {
		opt, err := NewOptimizer(name)
		require.NoError(t, err, name)
		assert.NotNil(t, opt)
	}

	_, err := NewOptimizer("pso")
	assert.Equal(t, pverrors.KindNotFound, pverrors.KindOf(err))
}

func TestRunAllAlgorithms(t *testing.T) {
	report, err := Run(context.Background(), sphereProblem(), smallOptions())
	require.NoError(t, err)

	assert.Equal(t, "sphere", report.Problem)
	require.Len(t, report.Summaries, 3)
	for _, s := range report.Summaries {
		assert.Len(t, s.Scores, 4, s.Algorithm)
		assert.LessOrEqual(t, s.Min, s.Median)
		assert.LessOrEqual(t, s.Median, s.Max)
		assert.GreaterOrEqual(t, s.Std, 0.0)
		assert.Len(t, s.Best, 2)
		assert.Equal(t, s.Min, sphereProblem().Objective(s.Best))
	}

	require.NotNil(t, report.Friedman)
	assert.GreaterOrEqual(t, report.Friedman.PValue, 0.0)
	assert.LessOrEqual(t, report.Friedman.PValue, 1.0)
	assert.NotContains(t, report.Wilcoxon, ISCHO)
}

func TestRunBayesian(t *testing.T) {
	opts := smallOptions()
	opts.Algorithms = []string{Bayesian, NelderMead}
	opts.Reference = NelderMead

	report, err := Run(context.Background(), sphereProblem(), opts)
	require.NoError(t, err)
	require.Len(t, report.Summaries, 2)
	assert.Nil(t, report.Friedman)
	assert.Contains(t, report.Wilcoxon, Bayesian)
}

func TestRunReproducible(t *testing.T) {
	opts := smallOptions()
	opts.Algorithms = []string{ISCHO, NelderMead}

	a, err := Run(context.Background(), sphereProblem(), opts)
	require.NoError(t, err)
	b, err := Run(context.Background(), sphereProblem(), opts)
	require.NoError(t, err)

	for k := range a.Summaries {
		assert.Equal(t, a.Summaries[k].Scores, b.Summaries[k].Scores)
	}
	assert.Nil(t, a.Friedman, "two algorithms are not enough for Friedman")
}

func TestRunErrors(t *testing.T) {
	opts := smallOptions()
	opts.Trials = 0
	_, err := Run(context.Background(), sphereProblem(), opts)
	assert.Equal(t, pverrors.KindConfig, pverrors.KindOf(err))

	opts = smallOptions()
	opts.Algorithms = []string{"pso"}
	_, err = Run(context.Background(), sphereProblem(), opts)
	assert.Error(t, err)

	p := sphereProblem()
	p.Bounds = [][2]float64{{1, -1}}
	_, err = Run(context.Background(), p, smallOptions())
	assert.ErrorIs(t, err, optimization.ErrInvalidConfig)
}

func TestSummarizeMedian(t *testing.T) {
	s := Summary{Scores: []float64{4, 1, 3, 2}}
	summarize(&s)
	assert.Equal(t, 2.5, s.Median)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)

	s = Summary{Scores: []float64{5, 1, 3}}
	summarize(&s)
	assert.Equal(t, 3.0, s.Median)
}

func TestReportSheets(t *testing.T) {
	report, err := Run(context.Background(), sphereProblem(), smallOptions())
	require.NoError(t, err)

	sheets := report.Sheets()
	require.Len(t, sheets, 2)
	assert.Equal(t, []string{"trial", ISCHO, Mayfly, NelderMead}, sheets[0].Columns)
	assert.Len(t, sheets[0].Rows, 4)
	assert.Equal(t, []string{ISCHO, Mayfly, NelderMead, "friedman"}, sheets[1].Labels)

	// the reference row has no test against itself
	ref := sheets[1].Rows[0]
	assert.True(t, math.IsNaN(ref[5]) && math.IsNaN(ref[6]))
	if w, ok := report.Wilcoxon[NelderMead]; ok {
		assert.Equal(t, w.PValue, sheets[1].Rows[2][6])
	}

	path := filepath.Join(t.TempDir(), "compare.xlsx")
	require.NoError(t, curve.WriteXLSX(path, sheets...))
}
