package bayesian

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// errNotPositiveDefinite is returned by Fit when the kernel matrix stays
// singular after all jitter retries.
var errNotPositiveDefinite = errors.New("kernel matrix is not positive definite")

// GP is a zero-mean Gaussian process regressor on standardized targets.
type GP struct {
	Kernel Kernel
	Noise  float64

	x     [][]float64
	alpha *mat.VecDense
	chol  mat.Cholesky
	mean  float64
	std   float64
}

// NewGP returns a process with kernel k and observation noise variance noise.
func NewGP(k Kernel, noise float64) *GP {
	return &GP{Kernel: k, Noise: noise}
}

// Fit conditions the process on the observations. Jitter is added to the
// diagonal in growing steps until the Cholesky factorization succeeds.
func (g *GP) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return errors.New("fit needs matching non-empty inputs")
	}

	g.mean, g.std = stat.MeanStdDev(y, nil)
	if g.std == 0 || math.IsNaN(g.std) {
		g.std = 1
	}
	ys := make([]float64, n)
	for i, v := range y {
		ys[i] = (v - g.mean) / g.std
	}

	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, g.Kernel.Eval(x[i], x[j]))
		}
	}

	jitter := g.Noise
	ok := false
	for attempt := 0; attempt < 6; attempt++ {
		kj := mat.NewSymDense(n, nil)
		kj.CopySym(k)
		for i := 0; i < n; i++ {
			kj.SetSym(i, i, kj.At(i, i)+jitter)
		}
		if ok = g.chol.Factorize(kj); ok {
			break
		}
		jitter = math.Max(jitter*10, 1e-10)
	}
	if !ok {
		return errNotPositiveDefinite
	}

	g.alpha = mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(g.alpha, mat.NewVecDense(n, ys)); err != nil {
		return err
	}
	g.x = x
	return nil
}

// Predict returns the posterior mean and standard deviation at x in the
// units of the fitted targets.
func (g *GP) Predict(x []float64) (mu, sigma float64) {
	n := len(g.x)
	ks := mat.NewVecDense(n, nil)
	for i, xi := range g.x {
		ks.SetVec(i, g.Kernel.Eval(x, xi))
	}
	mu = mat.Dot(ks, g.alpha)

	w := mat.NewVecDense(n, nil)
	variance := g.Kernel.Variance()
	if err := g.chol.SolveVecTo(w, ks); err == nil {
		variance -= mat.Dot(ks, w)
	}
	variance = math.Max(variance, 0)

	return mu*g.std + g.mean, math.Sqrt(variance) * g.std
}

// Observations returns the number of points the process was fitted on.
func (g *GP) Observations() int { return len(g.x) }
