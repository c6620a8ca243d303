package optimization

import "math"

// Sphere is sum(x^2), minimum 0 at the origin.
func Sphere(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// Rosenbrock is the banana valley, minimum 0 at (1, ..., 1).
func Rosenbrock(x []float64) float64 {
	sum := 0.0
	for i := 0; i+1 < len(x); i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Rastrigin is highly multimodal, minimum 0 at the origin.
func Rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Shifted returns f translated so its minimum moves to center.
func Shifted(f ObjectiveFunction, center []float64) ObjectiveFunction {
	return func(x []float64) float64 {
		y := make([]float64, len(x))
		for i := range x {
			y[i] = x[i] - center[i]
		}
		return f(y)
	}
}
