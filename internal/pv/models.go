package pv

import (
	"fmt"
	"math"
	"strings"

	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

// ExpLimit bounds the exponent argument of every diode term.
const ExpLimit = 100.0

// Kind identifies a diode model variant.
type Kind string

const (
	// SDM is the single-diode model.
	SDM Kind = "sdm"
	// DDM is the double-diode model.
	DDM Kind = "ddm"
	// PVMM is the multi-cell photovoltaic module model.
	PVMM Kind = "pvmm"
)

// ParseKind converts a model name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case SDM, "single", "single-diode":
		return SDM, nil
	case DDM, "double", "double-diode":
		return DDM, nil
	case PVMM, "module":
		return PVMM, nil
	default:
		return "", pverrors.Errorf(pverrors.KindConfig, "unknown model %q", s).
			WithComponent("pv").WithParam("model")
	}
}

// Equation is a model residual F(V, I) bound to a thermal voltage.
type Equation interface {
	// Residual returns F(V, I); the model current is the root in I.
	Residual(v, i float64) float64
	// Derivative returns dF/dI.
	Derivative(v, i float64) float64
	// Guess returns the starting point of the root search.
	Guess() float64
}

// Params is implemented by the parameter set of each model variant.
type Params interface {
	Kind() Kind
	Validate() error
	Equation(vt float64) Equation
}

// clampedExp returns exp(x) with x limited to [-ExpLimit, ExpLimit] and
// reports whether the limit was not hit.
func clampedExp(x float64) (float64, bool) {
	switch {
	case x > ExpLimit:
		return math.Exp(ExpLimit), false
	case x < -ExpLimit:
		return math.Exp(-ExpLimit), false
	default:
		return math.Exp(x), true
	}
}

type field struct {
	name  string
	value float64
}

func checkFinite(fields ...field) error {
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return pverrors.Errorf(pverrors.KindConfig, "must be finite, got %v", f.value).
				WithComponent("pv").WithParam(f.name)
		}
	}
	return nil
}

func checkPositive(name string, v float64) error {
	if v <= 0 {
		return pverrors.Errorf(pverrors.KindConfig, "must be positive, got %v", v).
			WithComponent("pv").WithParam(name)
	}
	return nil
}

func checkNonZero(name string, v float64) error {
	if v == 0 {
		return pverrors.New(pverrors.KindConfig, "must not be zero").
			WithComponent("pv").WithParam(name)
	}
	return nil
}

// SingleDiode holds the parameters of the single-diode model.
type SingleDiode struct {
	Iph float64 `json:"iph"`
	Is  float64 `json:"is"`
	Rs  float64 `json:"rs"`
	Rsh float64 `json:"rsh"`
	N   float64 `json:"n"`
}

// Kind implements Params.
func (p SingleDiode) Kind() Kind { return SDM }

// Validate implements Params.
func (p SingleDiode) Validate() error {
	if err := checkFinite(
		field{"iph", p.Iph}, field{"is", p.Is}, field{"rs", p.Rs},
		field{"rsh", p.Rsh}, field{"n", p.N},
	); err != nil {
		return err
	}
	if err := checkNonZero("rsh", p.Rsh); err != nil {
		return err
	}
	return checkPositive("n", p.N)
}

// Equation implements Params.
func (p SingleDiode) Equation(vt float64) Equation {
	return sdmEquation{p: p, nvt: p.N * vt}
}

func (p SingleDiode) String() string {
	return fmt.Sprintf("SDM{Iph=%g Is=%g Rs=%g Rsh=%g n=%g}", p.Iph, p.Is, p.Rs, p.Rsh, p.N)
}

type sdmEquation struct {
	p   SingleDiode
	nvt float64
}

func (e sdmEquation) Residual(v, i float64) float64 {
	vd := v + i*e.p.Rs
	ex, _ := clampedExp(vd / e.nvt)
	return e.p.Iph - e.p.Is*(ex-1) - vd/e.p.Rsh - i
}

func (e sdmEquation) Derivative(v, i float64) float64 {
	vd := v + i*e.p.Rs
	d := -e.p.Rs/e.p.Rsh - 1
	if ex, ok := clampedExp(vd / e.nvt); ok {
		d -= e.p.Is * ex * e.p.Rs / e.nvt
	}
	return d
}

func (e sdmEquation) Guess() float64 { return e.p.Iph }

// DoubleDiode holds the parameters of the double-diode model.
type DoubleDiode struct {
	Iph float64 `json:"iph"`
	Is1 float64 `json:"is1"`
	Is2 float64 `json:"is2"`
	Rs  float64 `json:"rs"`
	Rsh float64 `json:"rsh"`
	N1  float64 `json:"n1"`
	N2  float64 `json:"n2"`
}

// Kind implements Params.
func (p DoubleDiode) Kind() Kind { return DDM }

// Validate implements Params.
func (p DoubleDiode) Validate() error {
	if err := checkFinite(
		field{"iph", p.Iph}, field{"is1", p.Is1}, field{"is2", p.Is2},
		field{"rs", p.Rs}, field{"rsh", p.Rsh}, field{"n1", p.N1}, field{"n2", p.N2},
	); err != nil {
		return err
	}
	if err := checkNonZero("rsh", p.Rsh); err != nil {
		return err
	}
	if err := checkPositive("n1", p.N1); err != nil {
		return err
	}
	return checkPositive("n2", p.N2)
}

// Equation implements Params.
func (p DoubleDiode) Equation(vt float64) Equation {
	return ddmEquation{p: p, nvt1: p.N1 * vt, nvt2: p.N2 * vt}
}

func (p DoubleDiode) String() string {
	return fmt.Sprintf("DDM{Iph=%g Is1=%g Is2=%g Rs=%g Rsh=%g n1=%g n2=%g}",
		p.Iph, p.Is1, p.Is2, p.Rs, p.Rsh, p.N1, p.N2)
}

type ddmEquation struct {
	p          DoubleDiode
	nvt1, nvt2 float64
}

func (e ddmEquation) Residual(v, i float64) float64 {
	vd := v + i*e.p.Rs
	ex1, _ := clampedExp(vd / e.nvt1)
	ex2, _ := clampedExp(vd / e.nvt2)
	return e.p.Iph - e.p.Is1*(ex1-1) - e.p.Is2*(ex2-1) - vd/e.p.Rsh - i
}

func (e ddmEquation) Derivative(v, i float64) float64 {
	vd := v + i*e.p.Rs
	d := -e.p.Rs/e.p.Rsh - 1
	if ex, ok := clampedExp(vd / e.nvt1); ok {
		d -= e.p.Is1 * ex * e.p.Rs / e.nvt1
	}
	if ex, ok := clampedExp(vd / e.nvt2); ok {
		d -= e.p.Is2 * ex * e.p.Rs / e.nvt2
	}
	return d
}

func (e ddmEquation) Guess() float64 { return e.p.Iph }

// Module holds the parameters of a module of Ns series by Np parallel cells.
type Module struct {
	Iph float64 `json:"iph"`
	Is  float64 `json:"is"`
	Rs  float64 `json:"rs"`
	Rsh float64 `json:"rsh"`
	N   float64 `json:"n"`
	Ns  int     `json:"ns"`
	Np  int     `json:"np"`
}

// Kind implements Params.
func (p Module) Kind() Kind { return PVMM }

// Validate implements Params.
func (p Module) Validate() error {
	if err := checkFinite(
		field{"iph", p.Iph}, field{"is", p.Is}, field{"rs", p.Rs},
		field{"rsh", p.Rsh}, field{"n", p.N},
	); err != nil {
		return err
	}
	if err := checkNonZero("rsh", p.Rsh); err != nil {
		return err
	}
	if err := checkPositive("n", p.N); err != nil {
		return err
	}
	if err := checkPositive("ns", float64(p.Ns)); err != nil {
		return err
	}
	return checkPositive("np", float64(p.Np))
}

// Equation implements Params.
func (p Module) Equation(vt float64) Equation {
	np := float64(p.Np)
	return pvmmEquation{
		p:     p,
		np:    np,
		rsEff: p.Rs / np,
		nvt:   p.N * vt * float64(p.Ns),
	}
}

func (p Module) String() string {
	return fmt.Sprintf("PVMM{Iph=%g Is=%g Rs=%g Rsh=%g n=%g Ns=%d Np=%d}",
		p.Iph, p.Is, p.Rs, p.Rsh, p.N, p.Ns, p.Np)
}

type pvmmEquation struct {
	p     Module
	np    float64
	rsEff float64
	nvt   float64
}

func (e pvmmEquation) Residual(v, i float64) float64 {
	vd := v + i*e.rsEff
	ex, _ := clampedExp(vd / e.nvt)
	return e.p.Iph*e.np - e.p.Is*e.np*(ex-1) - vd/e.p.Rsh - i
}

func (e pvmmEquation) Derivative(v, i float64) float64 {
	vd := v + i*e.rsEff
	d := -e.rsEff/e.p.Rsh - 1
	if ex, ok := clampedExp(vd / e.nvt); ok {
		d -= e.p.Is * e.np * ex * e.rsEff / e.nvt
	}
	return d
}

func (e pvmmEquation) Guess() float64 { return e.p.Iph * e.np }
