package pv

import (
	pverrors "github.com/copyleftdev/pvfit/internal/errors"
)

// Layout maps a candidate vector of free parameters onto a model parameter
// set. Orders:
//
//	SDM:  [Iph, Is, n, Rs, Rsh]
//	DDM:  [Iph, Is1, Is2, n1, n2, Rs, Rsh]
//	PVMM: [Iph, Is, n, Rs, Rsh] with Ns and Np fixed by the layout
type Layout struct {
	Kind Kind
	Ns   int
	Np   int
}

// NewLayout returns the layout of kind; Ns and Np default to 1.
func NewLayout(kind Kind) Layout {
	return Layout{Kind: kind, Ns: 1, Np: 1}
}

// ModuleLayout returns a PVMM layout for an Ns x Np array.
func ModuleLayout(ns, np int) Layout {
	return Layout{Kind: PVMM, Ns: ns, Np: np}
}

// Names returns the parameter names in vector order.
func (l Layout) Names() []string {
	switch l.Kind {
	case DDM:
		return []string{"iph", "is1", "is2", "n1", "n2", "rs", "rsh"}
	default:
		return []string{"iph", "is", "n", "rs", "rsh"}
	}
}

// Dim returns the number of free parameters.
func (l Layout) Dim() int {
	return len(l.Names())
}

// Decode converts a candidate vector into model parameters.
func (l Layout) Decode(x []float64) (Params, error) {
	if len(x) != l.Dim() {
		return nil, pverrors.Errorf(pverrors.KindInvalidInput,
			"%s vector needs %d components, got %d", l.Kind, l.Dim(), len(x)).
			WithComponent("pv").WithOperation("Decode")
	}

	switch l.Kind {
	case SDM:
		return SingleDiode{Iph: x[0], Is: x[1], N: x[2], Rs: x[3], Rsh: x[4]}, nil
	case DDM:
		return DoubleDiode{Iph: x[0], Is1: x[1], Is2: x[2], N1: x[3], N2: x[4], Rs: x[5], Rsh: x[6]}, nil
	case PVMM:
		return Module{Iph: x[0], Is: x[1], N: x[2], Rs: x[3], Rsh: x[4], Ns: l.Ns, Np: l.Np}, nil
	default:
		return nil, pverrors.Errorf(pverrors.KindConfig, "unknown model %q", l.Kind).
			WithComponent("pv").WithParam("model")
	}
}

// Encode converts model parameters into a candidate vector.
func (l Layout) Encode(p Params) ([]float64, error) {
	switch m := p.(type) {
	case SingleDiode:
		if l.Kind == SDM {
			return []float64{m.Iph, m.Is, m.N, m.Rs, m.Rsh}, nil
		}
	case DoubleDiode:
		if l.Kind == DDM {
			return []float64{m.Iph, m.Is1, m.Is2, m.N1, m.N2, m.Rs, m.Rsh}, nil
		}
	case Module:
		if l.Kind == PVMM {
			return []float64{m.Iph, m.Is, m.N, m.Rs, m.Rsh}, nil
		}
	}
	return nil, pverrors.Errorf(pverrors.KindInvalidInput, "parameters %T do not match %s layout", p, l.Kind).
		WithComponent("pv").WithOperation("Encode")
}
