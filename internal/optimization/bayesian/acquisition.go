package bayesian

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ExpectedImprovement returns the expected amount by which a point with
// posterior mean mu and standard deviation sigma improves on best when
// minimizing. xi shifts the trade-off towards exploration.
func ExpectedImprovement(mu, sigma, best, xi float64) float64 {
	if sigma <= 0 || math.IsNaN(sigma) {
		return math.Max(best-mu-xi, 0)
	}
	imp := best - mu - xi
	z := imp / sigma
	return imp*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}
