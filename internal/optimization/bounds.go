package optimization

import (
	"fmt"
	"math"
)

// ValidateBounds checks that bounds is non-empty, finite and ordered.
// min == max is allowed and pins the dimension.
func ValidateBounds(bounds [][2]float64) error {
	if len(bounds) == 0 {
		return ConfigError("bounds", "at least one dimension is required")
	}
	for i, b := range bounds {
		param := fmt.Sprintf("bounds[%d]", i)
		if math.IsNaN(b[0]) || math.IsNaN(b[1]) || math.IsInf(b[0], 0) || math.IsInf(b[1], 0) {
			return ConfigError(param, "non-finite bound [%v, %v]", b[0], b[1])
		}
		if b[0] > b[1] {
			return ConfigError(param, "min %v exceeds max %v", b[0], b[1])
		}
	}
	return nil
}

// Validate checks the settings shared by all optimizers. It is called
// before any sampling happens.
func (c OptimizerConfig) Validate() error {
	if c.Objective == nil {
		return ConfigError("objective", "objective function is required")
	}
	if err := ValidateBounds(c.Bounds); err != nil {
		return err
	}
	if c.PopulationSize < 1 {
		return ConfigError("population", "must be at least 1, got %d", c.PopulationSize)
	}
	if c.MaxIterations < 0 {
		return ConfigError("max_iterations", "must not be negative, got %d", c.MaxIterations)
	}
	return nil
}

// Clamp moves every component of x into bounds in place.
func Clamp(x []float64, bounds [][2]float64) {
	for j := range x {
		x[j] = math.Min(math.Max(x[j], bounds[j][0]), bounds[j][1])
	}
}

// Sample draws a vector uniformly from bounds into dst.
func Sample(dst []float64, bounds [][2]float64, rng RandSource) {
	for j, b := range bounds {
		dst[j] = b[0] + rng.Float64()*(b[1]-b[0])
	}
}
