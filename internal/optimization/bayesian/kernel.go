package bayesian

import "math"

// Kernel is a stationary covariance function over the unit cube.
type Kernel interface {
	Eval(x, y []float64) float64
	Variance() float64
}

// Matern52 is the Matérn kernel with ν = 5/2 and a shared length scale.
type Matern52 struct {
	LengthScale float64
	Scale       float64
}

// Eval implements Kernel.
func (k Matern52) Eval(x, y []float64) float64 {
	r := math.Sqrt(5*sqDist(x, y)) / k.LengthScale
	return k.Scale * (1 + r + r*r/3) * math.Exp(-r)
}

// Variance implements Kernel.
func (k Matern52) Variance() float64 { return k.Scale }

// RBF is the squared exponential kernel.
type RBF struct {
	LengthScale float64
	Scale       float64
}

// Eval implements Kernel.
func (k RBF) Eval(x, y []float64) float64 {
	return k.Scale * math.Exp(-0.5*sqDist(x, y)/(k.LengthScale*k.LengthScale))
}

// Variance implements Kernel.
func (k RBF) Variance() float64 { return k.Scale }

func sqDist(x, y []float64) float64 {
	var s float64
	for i := range x {
		d := x[i] - y[i]
		s += d * d
	}
	return s
}
