// Package benchmark compares optimizers on one fitting problem over
// repeated seeded trials and tests whether their results differ.
package benchmark

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/pvfit/internal/curve"
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
	"github.com/copyleftdev/pvfit/internal/optimization"
	"github.com/copyleftdev/pvfit/internal/optimization/bayesian"
	"github.com/copyleftdev/pvfit/internal/optimization/ischo"
	"github.com/copyleftdev/pvfit/internal/optimization/mayfly"
	"github.com/copyleftdev/pvfit/internal/optimization/neldermead"
	"github.com/copyleftdev/pvfit/internal/stats"
)

// Algorithm names.
const (
	ISCHO      = "ischo"
	Mayfly     = "mayfly"
	NelderMead = "neldermead"
	Bayesian   = "bayesian"
)

// Algorithms lists the optimizers compared by default. Bayesian is
// registered but opt-in, its cost grows with the cube of the evaluation
// count.
func Algorithms() []string {
	return []string{ISCHO, Mayfly, NelderMead}
}

// NewOptimizer returns the optimizer registered under name.
func NewOptimizer(name string) (optimization.Optimizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ISCHO, "i_scho", "i-scho":
		return ischo.New(optimization.OptimizerConfig{}), nil
	case Mayfly, "ma":
		return mayfly.New(optimization.OptimizerConfig{}), nil
	case NelderMead, "nelder-mead", "nm":
		return neldermead.New(optimization.OptimizerConfig{}), nil
	case Bayesian, "bo":
		return bayesian.New(optimization.OptimizerConfig{}), nil
	default:
		return nil, pverrors.Errorf(pverrors.KindNotFound, "unknown algorithm %q", name).
			WithComponent("benchmark").WithParam("algorithm")
	}
}

// Problem is an objective over a bounded search space.
type Problem struct {
	Name      string
	Objective optimization.ObjectiveFunction
	Bounds    [][2]float64
}

// Options controls a benchmark run.
type Options struct {
	Algorithms     []string
	Trials         int
	PopulationSize int
	MaxIterations  int
	Workers        int
	// Seed of the first trial; trial t uses Seed+t. 0 picks a clock seed.
	Seed int64
	// Reference is the algorithm the others are tested against.
	Reference string
	Logger    *zap.Logger
}

// Summary describes the best scores one algorithm reached over all trials.
type Summary struct {
	Algorithm string    `json:"algorithm"`
	Scores    []float64 `json:"scores"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Median    float64   `json:"median"`
	Best      []float64 `json:"best"`
	Elapsed   float64   `json:"elapsed_seconds"`
}

// Report is the outcome of Run.
type Report struct {
	Problem   string                  `json:"problem"`
	Trials    int                     `json:"trials"`
	Summaries []Summary               `json:"summaries"`
	Friedman  *stats.Result           `json:"friedman,omitempty"`
	Wilcoxon  map[string]stats.Result `json:"wilcoxon,omitempty"`
}

// Run executes every algorithm Trials times and compares the results.
// Friedman runs when there are at least three algorithms; each algorithm
// other than Reference gets a Wilcoxon test against it.
func Run(ctx context.Context, p Problem, opts Options) (*Report, error) {
	if opts.Trials < 1 {
		return nil, pverrors.Errorf(pverrors.KindConfig, "trials must be at least 1, got %d", opts.Trials).
			WithComponent("benchmark").WithParam("trials")
	}
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = Algorithms()
	}
	if opts.Reference == "" {
		opts.Reference = ISCHO
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("benchmark")

	base := opts.Seed
	if base == 0 {
		base = time.Now().UnixNano()
	}

	report := &Report{Problem: p.Name, Trials: opts.Trials}
	for _, name := range opts.Algorithms {
		opt, err := NewOptimizer(name)
		if err != nil {
			return nil, err
		}

		s := Summary{Algorithm: name, Scores: make([]float64, 0, opts.Trials)}
		bestScore := 0.0
		start := time.Now()
		for trial := 0; trial < opts.Trials; trial++ {
			res, err := opt.Optimize(ctx, optimization.OptimizerConfig{
				Objective:      p.Objective,
				Bounds:         p.Bounds,
				PopulationSize: opts.PopulationSize,
				MaxIterations:  opts.MaxIterations,
				RandomSeed:     base + int64(trial),
				Workers:        opts.Workers,
				Logger:         logger,
			})
			if err != nil {
				return nil, fmt.Errorf("%s trial %d: %w", name, trial, err)
			}
			score := res.BestSolution.Value
			s.Scores = append(s.Scores, score)
			if trial == 0 || score < bestScore {
				bestScore = score
				s.Best = res.BestSolution.Parameters
			}
		}
		s.Elapsed = time.Since(start).Seconds()
		summarize(&s)
		report.Summaries = append(report.Summaries, s)

		logger.Info("algorithm finished",
			zap.String("algorithm", name),
			zap.Float64("mean", s.Mean),
			zap.Float64("min", s.Min),
		)
	}

	report.test(opts.Reference, logger)
	return report, nil
}

func summarize(s *Summary) {
	sorted := append([]float64(nil), s.Scores...)
	sort.Float64s(sorted)
	s.Mean = stat.Mean(s.Scores, nil)
	if len(s.Scores) > 1 {
		s.Std = stat.StdDev(s.Scores, nil)
	}
	s.Min = floats.Min(s.Scores)
	s.Max = floats.Max(s.Scores)
	n := len(sorted)
	s.Median = sorted[n/2]
	if n%2 == 0 {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

func (r *Report) test(reference string, logger *zap.Logger) {
	if len(r.Summaries) >= 3 {
		samples := make([][]float64, len(r.Summaries))
		for k, s := range r.Summaries {
			samples[k] = s.Scores
		}
		if res, err := stats.Friedman(samples...); err == nil {
			r.Friedman = &res
		} else {
			logger.Debug("friedman skipped", zap.Error(err))
		}
	}

	ref := r.Summary(reference)
	if ref == nil {
		return
	}
	for _, s := range r.Summaries {
		if s.Algorithm == reference {
			continue
		}
		res, err := stats.Wilcoxon(ref.Scores, s.Scores)
		if err != nil {
			logger.Debug("wilcoxon skipped", zap.String("algorithm", s.Algorithm), zap.Error(err))
			continue
		}
		if r.Wilcoxon == nil {
			r.Wilcoxon = make(map[string]stats.Result)
		}
		r.Wilcoxon[s.Algorithm] = res
	}
}

// Summary returns the summary of algorithm, or nil.
func (r *Report) Summary(algorithm string) *Summary {
	for k := range r.Summaries {
		if r.Summaries[k].Algorithm == algorithm {
			return &r.Summaries[k]
		}
	}
	return nil
}

// Sheets lays the report out as workbook sheets: per-trial scores and a
// summary with the test results.
func (r *Report) Sheets() []curve.Sheet {
	scores := curve.Sheet{Name: "Scores", Columns: []string{"trial"}}
	for _, s := range r.Summaries {
		scores.Columns = append(scores.Columns, s.Algorithm)
	}
	for t := 0; t < r.Trials; t++ {
		row := []float64{float64(t + 1)}
		for _, s := range r.Summaries {
			row = append(row, s.Scores[t])
		}
		scores.Rows = append(scores.Rows, row)
	}

	summary := curve.Sheet{
		Name:    "Summary",
		Columns: []string{"algorithm", "mean", "std", "min", "max", "median", "wilcoxon_w", "wilcoxon_p"},
	}
	for _, s := range r.Summaries {
		w, ok := r.Wilcoxon[s.Algorithm]
		if !ok {
			w = stats.Result{Statistic: math.NaN(), PValue: math.NaN()}
		}
		summary.Labels = append(summary.Labels, s.Algorithm)
		summary.Rows = append(summary.Rows, []float64{s.Mean, s.Std, s.Min, s.Max, s.Median, w.Statistic, w.PValue})
	}
	if r.Friedman != nil {
		summary.Labels = append(summary.Labels, "friedman")
		summary.Rows = append(summary.Rows, []float64{r.Friedman.Statistic, r.Friedman.PValue})
	}

	return []curve.Sheet{scores, summary}
}
