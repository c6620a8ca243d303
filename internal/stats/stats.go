// Package stats implements the non-parametric tests used to compare
// optimizer runs: the Friedman test across several algorithms and the
// Wilcoxon signed-rank test between two.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

// Result is a test statistic with its two-sided p-value.
type Result struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

// exactLimit is the largest sample for which the Wilcoxon null
// distribution is enumerated.
const exactLimit = 50

// Friedman tests whether k >= 3 related samples come from the same
// distribution. samples[j][i] is the result of treatment j in block i.
func Friedman(samples ...[]float64) (Result, error) {
	k := len(samples)
	if k < 3 {
		return Result{}, invalid("Friedman", "need at least 3 samples, got %d", k)
	}
	n := len(samples[0])
	if n < 2 {
		return Result{}, invalid("Friedman", "need at least 2 observations per sample, got %d", n)
	}
	for j, s := range samples {
		if len(s) != n {
			return Result{}, invalid("Friedman", "sample %d has %d observations, want %d", j, len(s), n)
		}
	}

	rankSums := make([]float64, k)
	block := make([]float64, k)
	ties := 0.0
	for i := 0; i < n; i++ {
		for j := range samples {
			block[j] = samples[j][i]
		}
		ranks, t := rank(block)
		ties += t
		for j, r := range ranks {
			rankSums[j] += r
		}
	}

	sumSq := 0.0
	for _, r := range rankSums {
		sumSq += r * r
	}
	fn, fk := float64(n), float64(k)
	q := 12/(fn*fk*(fk+1))*sumSq - 3*fn*(fk+1)

	c := 1 - ties/(fn*(fk*fk*fk-fk))
	if c <= 0 {
		// every block fully tied
		return Result{Statistic: 0, PValue: 1}, nil
	}
	q /= c

	chi := distuv.ChiSquared{K: fk - 1}
	return Result{Statistic: q, PValue: chi.Survival(q)}, nil
}

// Wilcoxon runs the two-sided signed-rank test on paired samples x and y.
// Zero differences are dropped. The statistic is min(W+, W-).
func Wilcoxon(x, y []float64) (Result, error) {
	if len(x) != len(y) {
		return Result{}, invalid("Wilcoxon", "samples differ in length: %d vs %d", len(x), len(y))
	}

	d := make([]float64, 0, len(x))
	for i := range x {
		if diff := x[i] - y[i]; diff != 0 {
			d = append(d, diff)
		}
	}
	n := len(d)
	if n == 0 {
		return Result{}, invalid("Wilcoxon", "all differences are zero")
	}

	abs := make([]float64, n)
	for i, v := range d {
		abs[i] = math.Abs(v)
	}
	ranks, ties := rank(abs)

	var wPlus, wMinus float64
	for i, v := range d {
		if v > 0 {
			wPlus += ranks[i]
		} else {
			wMinus += ranks[i]
		}
	}
	t := math.Min(wPlus, wMinus)

	if n <= exactLimit && ties == 0 {
		return Result{Statistic: t, PValue: math.Min(1, 2*exactCDF(n, int(t)))}, nil
	}

	fn := float64(n)
	mean := fn * (fn + 1) / 4
	variance := fn*(fn+1)*(2*fn+1)/24 - ties/48
	if variance <= 0 {
		return Result{Statistic: t, PValue: 1}, nil
	}
	z := (t - mean) / math.Sqrt(variance)
	return Result{Statistic: t, PValue: math.Min(1, 2*distuv.UnitNormal.CDF(z))}, nil
}

// exactCDF returns P(W+ <= w) for the signed-rank statistic of n untied
// observations, enumerating subset sums of 1..n.
func exactCDF(n, w int) float64 {
	maxSum := n * (n + 1) / 2
	counts := make([]float64, maxSum+1)
	counts[0] = 1
	for r := 1; r <= n; r++ {
		for s := maxSum; s >= r; s-- {
			counts[s] += counts[s-r]
		}
	}

	total := math.Ldexp(1, n)
	cum := 0.0
	for s := 0; s <= w && s <= maxSum; s++ {
		cum += counts[s]
	}
	return cum / total
}

// rank returns 1-based average ranks of values and the tie term
// sum(t^3 - t) over groups of equal values.
func rank(values []float64) ([]float64, float64) {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	ties := 0.0
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for m := i; m <= j; m++ {
			ranks[idx[m]] = avg
		}
		if t := float64(j - i + 1); t > 1 {
			ties += t*t*t - t
		}
		i = j + 1
	}
	return ranks, ties
}

func invalid(op, format string, args ...interface{}) error {
	return pverrors.Errorf(pverrors.KindInvalidInput, format, args...).
		WithComponent("stats").WithOperation(op)
}
