// Package reference provides the built-in measured I-V tables, published
// parameter sets and default search bounds used for fitting and
// benchmarking.
package reference

import (
	"sort"
	"strings"

	"github.com/copyleftdev/pvfit/internal/curve"
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
	"github.com/copyleftdev/pvfit/internal/pv"
)

// Dataset names.
const (
	RTCFrance = "rtc-france"
	PVModule  = "pv-module"
	Synthetic = "synthetic"
)

// MeasurementTemperature is the cell temperature of the measured tables, K.
const MeasurementTemperature = 306.15

// SyntheticTemperature is the temperature the synthetic curve is generated at.
const SyntheticTemperature = pv.StandardTemperature

// Dataset is a curve together with the model layouts and search bounds that
// fit it.
type Dataset struct {
	Name        string
	Description string
	Temperature float64
	Curve       curve.Curve

	layouts map[pv.Kind]pv.Layout
	bounds  map[pv.Kind][][2]float64
}

// Problem returns the layout and search bounds for fitting kind to the
// dataset.
func (d Dataset) Problem(kind pv.Kind) (pv.Layout, [][2]float64, error) {
	b, ok := d.bounds[kind]
	if !ok {
		return pv.Layout{}, nil, pverrors.Errorf(pverrors.KindNotFound, "dataset %s has no %s bounds", d.Name, kind).
			WithComponent("reference").WithParam("model")
	}
	layout, ok := d.layouts[kind]
	if !ok {
		layout = pv.NewLayout(kind)
	}
	return layout, copyBounds(b), nil
}

// Constants returns the default physical constants at the dataset temperature.
func (d Dataset) Constants() pv.Constants {
	return pv.DefaultConstants().WithTemperature(d.Temperature)
}

// Names lists the built-in datasets.
func Names() []string {
	names := []string{RTCFrance, PVModule, Synthetic}
	sort.Strings(names)
	return names
}

// Lookup returns a built-in dataset by name.
func Lookup(name string) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case RTCFrance, "rtc":
		return rtcFrance(), nil
	case PVModule, "module":
		return pvModule(), nil
	case Synthetic:
		return synthetic(), nil
	default:
		return Dataset{}, pverrors.Errorf(pverrors.KindNotFound, "unknown dataset %q", name).
			WithComponent("reference").WithOperation("Lookup")
	}
}

func mustCurve(v, i []float64) curve.Curve {
	c, err := curve.New(v, i)
	if err != nil {
		panic(err)
	}
	return c
}

func rtcFrance() Dataset {
	return Dataset{
		Name:        RTCFrance,
		Description: "RTC France silicon cell, 26 points",
		Temperature: MeasurementTemperature,
		Curve:       mustCurve(rtcVoltage, rtcCurrent),
		bounds: map[pv.Kind][][2]float64{
			pv.SDM:  CellBounds(pv.SDM),
			pv.DDM:  CellBounds(pv.DDM),
			pv.PVMM: CellBounds(pv.PVMM),
		},
	}
}

func pvModule() Dataset {
	return Dataset{
		Name:        PVModule,
		Description: "36-cell module, 26 points",
		Temperature: MeasurementTemperature,
		Curve:       mustCurve(moduleVoltage, moduleCurrent),
		layouts:     map[pv.Kind]pv.Layout{pv.PVMM: pv.ModuleLayout(36, 1)},
		bounds: map[pv.Kind][][2]float64{
			pv.SDM: {{0, 2}, {0, 50e-6}, {1, 50}, {0, 2}, {0, 2000}},
			pv.DDM: {{0, 2}, {0, 50e-6}, {0, 50e-6}, {1, 50}, {1, 50}, {0, 2}, {0, 2000}},
			// n is per cell in the module equation
			pv.PVMM: {{0, 2}, {0, 50e-6}, {1, 2}, {0, 2}, {0, 2000}},
		},
	}
}

// SyntheticTruth is the SDM parameter set the synthetic curve is generated
// from.
func SyntheticTruth() pv.SingleDiode {
	return pv.SingleDiode{Iph: 5.5, Is: 1e-10, N: 1.2, Rs: 0.01, Rsh: 100}
}

// SyntheticBounds returns the search box of the synthetic SDM scenario.
func SyntheticBounds() [][2]float64 {
	return [][2]float64{{0, 10}, {1e-12, 1e-6}, {1, 2}, {0, 1}, {1, 200}}
}

// SyntheticCurve solves the synthetic truth over 50 points in [0, 0.6] V.
func SyntheticCurve(s *pv.Solver) curve.Curve {
	vs := curve.Linspace(0, 0.6, 50)
	return mustCurve(vs, s.SolveCurve(vs, SyntheticTruth()))
}

func synthetic() Dataset {
	solver := pv.NewSolver(pv.DefaultConstants().WithTemperature(SyntheticTemperature))
	b := SyntheticBounds()
	return Dataset{
		Name:        Synthetic,
		Description: "noise-free SDM curve, 50 points",
		Temperature: SyntheticTemperature,
		Curve:       SyntheticCurve(solver),
		bounds: map[pv.Kind][][2]float64{
			pv.SDM:  b,
			pv.DDM:  {b[0], b[1], b[1], b[2], b[2], b[3], b[4]},
			pv.PVMM: b,
		},
	}
}

// CellBounds returns the commonly used search ranges for single solar cells.
func CellBounds(kind pv.Kind) [][2]float64 {
	switch kind {
	case pv.DDM:
		return [][2]float64{{0, 1}, {0, 1e-6}, {0, 1e-6}, {1, 2}, {1, 2}, {0, 0.5}, {0, 100}}
	default:
		return [][2]float64{{0, 1}, {0, 1e-6}, {1, 2}, {0, 0.5}, {0, 100}}
	}
}

func copyBounds(b [][2]float64) [][2]float64 {
	out := make([][2]float64, len(b))
	copy(out, b)
	return out
}

// Published is a literature parameter set with the RMSE it reports on a
// built-in dataset.
type Published struct {
	Name       string
	Dataset    string
	Params     pv.Params
	TargetRMSE float64
}

// PublishedSets returns the artificial lemming algorithm (ALA) results.
func PublishedSets() []Published {
	return []Published{
		{
			Name:       "ala-sdm",
			Dataset:    RTCFrance,
			Params:     pv.SingleDiode{Iph: 0.76079, Is: 0.31073e-6, Rs: 0.03655, Rsh: 52.89134, N: 1.47728},
			TargetRMSE: 7.72986e-4,
		},
		{
			Name:       "ala-ddm",
			Dataset:    PVModule,
			Params:     pv.DoubleDiode{Iph: 0.76079, Is1: 0.50887e-6, Is2: 1.67851e-6, Rs: 0.03696, Rsh: 55.32626, N1: 0.09594, N2: 1.39687},
			TargetRMSE: 9.88734e-4,
		},
		{
			Name:       "ala-pvmm",
			Dataset:    RTCFrance,
			Params:     pv.Module{Iph: 0.20610, Is: 0.89712e-6, Rs: 1.95988, Rsh: 1976.2485, N: 16.54426, Ns: 3, Np: 5},
			TargetRMSE: 2.56791e-3,
		},
	}
}
