// Package curve holds measured or simulated I-V data and reads and writes
// it in tabular formats.
package curve

import (
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

// Point is one (voltage, current) sample.
type Point struct {
	V float64 `json:"v"`
	I float64 `json:"i"`
}

// Curve is an ordered sequence of samples, voltage-ascending by convention.
type Curve []Point

// New zips voltages and currents into a Curve.
func New(voltages, currents []float64) (Curve, error) {
	if len(voltages) != len(currents) {
		return nil, pverrors.Errorf(pverrors.KindInvalidInput,
			"%d voltages but %d currents", len(voltages), len(currents)).WithComponent("curve")
	}
	c := make(Curve, len(voltages))
	for k := range voltages {
		c[k] = Point{V: voltages[k], I: currents[k]}
	}
	return c, nil
}

// Voltages returns the voltage column.
func (c Curve) Voltages() []float64 {
	out := make([]float64, len(c))
	for k, p := range c {
		out[k] = p.V
	}
	return out
}

// Currents returns the current column.
func (c Curve) Currents() []float64 {
	out := make([]float64, len(c))
	for k, p := range c {
		out[k] = p.I
	}
	return out
}

// Linspace returns n evenly spaced values from a to b inclusive.
func Linspace(a, b float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{a}
	}
	return floats.Span(make([]float64, n), a, b)
}

// Load reads a curve from an .xlsx, .csv or .tsv file. sheet is only used
// for workbooks; empty selects the first sheet.
func Load(path, sheet string) (Curve, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, sheet)
	case ".csv":
		return ReadCSVFile(path, ',')
	case ".tsv", ".txt":
		return ReadCSVFile(path, '\t')
	default:
		return nil, pverrors.Errorf(pverrors.KindInvalidInput, "unsupported file type %q", filepath.Ext(path)).
			WithComponent("curve").WithOperation("Load")
	}
}

var (
	voltageNames = []string{"voltage", "v", "vi", "v_exp", "vmeas"}
	currentNames = []string{"current", "i", "ii", "il", "i_exp", "imeas", "measured"}
)

// normalizeHeader lower-cases a header and strips a trailing unit such as
// "Voltage (V)" or "I [A]".
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if k := strings.IndexAny(h, "(["); k > 0 {
		h = strings.TrimSpace(h[:k])
	}
	return h
}

// findColumn returns the index of the first header matching one of names,
// in priority order of names.
func findColumn(header []string, names []string) int {
	normalized := make([]string, len(header))
	for k, h := range header {
		normalized[k] = normalizeHeader(h)
	}
	for _, name := range names {
		for k, h := range normalized {
			if h == name {
				return k
			}
		}
	}
	return -1
}
