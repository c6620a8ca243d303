package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/pvfit/internal/curve"
	"github.com/copyleftdev/pvfit/internal/fit"
)

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "pvfit version "+version+"\n", out)
}

func TestSolveToStdout(t *testing.T) {
	out, err := run(t, "solve", "--params", "iph=0.8,is=1e-6,n=1.3,rs=0.01,rsh=100", "--v", "0,0.3")
	require.NoError(t, err)

	c, err := curve.ReadCSV(bytes.NewBufferString(out), ',')
	require.NoError(t, err)
	require.Len(t, c, 2)
	assert.InDelta(t, 0.8, c[0].I, 0.01)
	assert.Less(t, c[1].I, c[0].I)
}

func TestSolveWritesFiles(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "iv.csv")
	plotPath := filepath.Join(dir, "iv.png")

	_, err := run(t, "solve", "--model", "ddm",
		"--params", "iph=0.8,is1=1e-6,is2=1e-7,n1=1.3,n2=2,rs=0.01,rsh=100",
		"--points", "7", "--out", csvPath, "--plot", plotPath)
	require.NoError(t, err)

	c, err := curve.ReadCSVFile(csvPath, ',')
	require.NoError(t, err)
	assert.Len(t, c, 7)
	assert.FileExists(t, plotPath)
}

func TestSolveErrors(t *testing.T) {
	_, err := run(t, "solve", "--params", "iph=abc,is=1e-6,n=1.3,rs=0.01,rsh=100")
	assert.Error(t, err)

	_, err = run(t, "solve", "--params", "iph=0.8")
	assert.Error(t, err)

	_, err = run(t, "solve", "--params", "iph=0.8,is=1e-6,n=1.3,rs=0.01,rsh=100", "--out", "iv.txt")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "voltages.xlsx")
	require.NoError(t, curve.WriteXLSX(in, curve.Sheet{
		Name:    "Data",
		Columns: []string{"Voltage (V)"},
		Rows:    [][]float64{{0}, {0.1}, {0.2}, {0.3}},
	}))
	out := filepath.Join(dir, "sim.xlsx")

	stdout, err := run(t, "simulate", "--in", in, "--out", out, "--ddm", "n2=1.8")
	require.NoError(t, err)
	assert.Contains(t, stdout, "4 voltages")

	single, err := curve.ReadXLSX(out, "SDM_Output")
	require.NoError(t, err)
	double, err := curve.ReadXLSX(out, "DDM_Output")
	require.NoError(t, err)
	require.Len(t, single, 4)
	require.Len(t, double, 4)
	assert.Equal(t, 0.3, single[3].V)
	assert.InDelta(t, 0.8, single[0].I, 0.01)

	_, err = run(t, "simulate", "--out", out, "--sdm", "bogus=1")
	assert.Error(t, err)
}

func TestFitDataset(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "fit.xlsx")
	png := filepath.Join(dir, "fit.png")

	out, err := run(t, "fit", "--dataset", "synthetic", "--pop", "8", "--iters", "3", "--seed", "11",
		"--json", "--out", xlsx, "--plot", png)
	require.NoError(t, err)

	var res fit.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "sdm", res.Model)
	assert.Equal(t, "synthetic", res.Dataset)
	assert.Len(t, res.Vector, 5)
	assert.Equal(t, 3, res.Iterations)

	assert.FileExists(t, png)
	fitted, err := curve.ReadXLSX(xlsx, "Fitted")
	require.NoError(t, err)
	assert.Len(t, fitted, 50)
	assert.InDelta(t, 5.5, fitted[0].I, 0.01, "measured current at short circuit")
}

func TestFitTable(t *testing.T) {
	out, err := run(t, "fit", "--dataset", "rtc-france", "--algorithm", "neldermead", "--pop", "2", "--iters", "20", "--seed", "3")
	require.NoError(t, err)
	for _, want := range []string{"rmse", "iph", "rsh", "neldermead", "rtc-france"} {
		assert.Contains(t, out, want)
	}
}

func TestFitErrors(t *testing.T) {
	_, err := run(t, "fit", "--pop", "4")
	assert.Error(t, err, "data is required")

	_, err = run(t, "fit", "--dataset", "synthetic", "--bounds", "0,1,2")
	assert.Error(t, err)

	_, err = run(t, "fit", "--dataset", "synthetic", "--data", "x.csv")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	out := filepath.Join(t.TempDir(), "compare.xlsx")
	stdout, err := run(t, "compare", "--dataset", "synthetic", "--trials", "3", "--pop", "6", "--iters", "2",
		"--seed", "5", "--out", out)
	require.NoError(t, err)

	assert.Contains(t, stdout, "synthetic/sdm, 3 trials")
	assert.Contains(t, stdout, "friedman")
	for _, alg := range []string{"ischo", "mayfly", "neldermead"} {
		assert.Contains(t, stdout, alg)
	}
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestReference(t *testing.T) {
	out, err := run(t, "reference")
	require.NoError(t, err)
	for _, want := range []string{"rtc-france", "pv-module", "synthetic", "ala-sdm", "ala-pvmm"} {
		assert.Contains(t, out, want)
	}
}

func TestPairBounds(t *testing.T) {
	b, err := pairBounds([]float64{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{0, 1}, {2, 3}}, b)

	_, err = pairBounds([]float64{1})
	assert.Error(t, err)
}

func TestOverride(t *testing.T) {
	p, err := override(defaultSDM(), map[string]string{"RS": "0.02"})
	require.NoError(t, err)
	assert.Equal(t, 0.02, p["rs"])
	assert.Equal(t, 0.8, p["iph"])
}
