package pv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutDecode(t *testing.T) {
	p, err := NewLayout(SDM).Decode([]float64{5.5, 1e-10, 1.2, 0.01, 100})
	require.NoError(t, err)
	assert.Equal(t, SingleDiode{Iph: 5.5, Is: 1e-10, N: 1.2, Rs: 0.01, Rsh: 100}, p)

	p, err = NewLayout(DDM).Decode([]float64{0.76, 2e-7, 7e-7, 1.45, 2, 0.036, 55})
	require.NoError(t, err)
	assert.Equal(t, DoubleDiode{Iph: 0.76, Is1: 2e-7, Is2: 7e-7, N1: 1.45, N2: 2, Rs: 0.036, Rsh: 55}, p)

	p, err = ModuleLayout(36, 2).Decode([]float64{1.03, 3.5e-6, 1.35, 1.2, 982})
	require.NoError(t, err)
	assert.Equal(t, Module{Iph: 1.03, Is: 3.5e-6, N: 1.35, Rs: 1.2, Rsh: 982, Ns: 36, Np: 2}, p)
}

func TestLayoutDecodeWrongLength(t *testing.T) {
	_, err := NewLayout(DDM).Decode([]float64{1, 2, 3})
	assert.Error(t, err)

	_, err = Layout{Kind: "tdm"}.Decode([]float64{1, 2, 3, 4, 5})
	assert.Error(t, err)
}

func TestLayoutEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		layout Layout
		params Params
	}{
		{NewLayout(SDM), rtcSDM()},
		{NewLayout(DDM), rtcDDM()},
		{ModuleLayout(36, 1), photowattModule()},
	}

	for _, tt := range tests {
		t.Run(string(tt.layout.Kind), func(t *testing.T) {
			x, err := tt.layout.Encode(tt.params)
			require.NoError(t, err)
			assert.Len(t, x, tt.layout.Dim())

			back, err := tt.layout.Decode(x)
			require.NoError(t, err)
			assert.Equal(t, tt.params, back)
		})
	}
}

func TestLayoutEncodeMismatch(t *testing.T) {
	_, err := NewLayout(DDM).Encode(rtcSDM())
	assert.Error(t, err)
}

func TestLayoutNames(t *testing.T) {
	assert.Equal(t, []string{"iph", "is", "n", "rs", "rsh"}, NewLayout(SDM).Names())
	assert.Equal(t, 7, NewLayout(DDM).Dim())
	assert.Equal(t, 5, ModuleLayout(3, 5).Dim())
}
