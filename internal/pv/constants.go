// Package pv implements the implicit I-V equations of photovoltaic diode
// models and the solver that evaluates them.
package pv

import (
	"math"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

const (
	// ElectronCharge is the elementary charge q in coulombs.
	ElectronCharge = 1.602e-19
	// Boltzmann is the Boltzmann constant k in J/K.
	Boltzmann = 1.381e-23
	// StandardTemperature is the default cell temperature in kelvin.
	StandardTemperature = 298.15
)

// Constants carries the physical constants used by the model equations.
// It is passed explicitly so several temperatures can coexist.
type Constants struct {
	Charge      float64 `json:"q"`
	Boltzmann   float64 `json:"k"`
	Temperature float64 `json:"temperature"`
}

// DefaultConstants returns q, k and a 298.15 K cell temperature.
func DefaultConstants() Constants {
	return Constants{
		Charge:      ElectronCharge,
		Boltzmann:   Boltzmann,
		Temperature: StandardTemperature,
	}
}

// WithTemperature returns a copy of c at temperature t (kelvin).
func (c Constants) WithTemperature(t float64) Constants {
	c.Temperature = t
	return c
}

// ThermalVoltage returns kT/q.
func (c Constants) ThermalVoltage() float64 {
	return c.Boltzmann * c.Temperature / c.Charge
}

// Validate checks that all constants are positive and finite.
func (c Constants) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"q", c.Charge},
		{"k", c.Boltzmann},
		{"temperature", c.Temperature},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value <= 0 {
			return pverrors.Errorf(pverrors.KindConfig, "must be positive and finite, got %v", f.value).
				WithComponent("pv").WithParam(f.name)
		}
	}
	return nil
}
