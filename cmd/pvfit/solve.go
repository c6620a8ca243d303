package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/pvfit/internal/curve"
	"github.com/copyleftdev/pvfit/internal/fit"
	"github.com/copyleftdev/pvfit/internal/plot"
)

func newSolveCmd(a *app) *cobra.Command {
	var (
		req      fit.SolveRequest
		params   map[string]string
		in       string
		sheet    string
		vmin     float64
		vmax     float64
		points   int
		outPath  string
		plotPath string
	)

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compute model currents for given parameters",
		Long: `Solves the implicit model equation for the current at each voltage.
Voltages come from --v, from the voltage column of --in, or from an evenly
spaced --vmin/--vmax/--points grid.`,
		Example: `  pvfit solve --model sdm --params iph=0.76,is=3.1e-7,n=1.48,rs=0.036,rsh=52.9 --vmax 0.6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.Params, err = parseParams(params); err != nil {
				return err
			}

			switch {
			case len(req.Voltages) > 0:
			case in != "":
				if req.Voltages, err = readVoltages(in, sheet); err != nil {
					return err
				}
			default:
				req.Voltages = curve.Linspace(vmin, vmax, points)
			}

			c, err := a.runner.Solve(req)
			if err != nil {
				return err
			}
			if plotPath != "" {
				if err := plot.IV(plotPath, nil, c, "I-V "+req.Model); err != nil {
					return err
				}
			}
			return writeCurve(a, outPath, "IV", c)
		},
	}

	cmd.Flags().StringVar(&req.Model, "model", "sdm", "Model: sdm, ddm or pvmm")
	cmd.Flags().StringToStringVar(&params, "params", nil, "Model parameters as name=value pairs")
	cmd.Flags().Float64SliceVar(&req.Voltages, "v", nil, "Voltages to solve at")
	cmd.Flags().StringVar(&in, "in", "", "File whose voltage column is solved")
	cmd.Flags().StringVar(&sheet, "sheet", "", "Workbook sheet for --in")
	cmd.Flags().Float64Var(&vmin, "vmin", 0, "Grid start voltage")
	cmd.Flags().Float64Var(&vmax, "vmax", 0.6, "Grid end voltage")
	cmd.Flags().IntVar(&points, "points", 50, "Grid size")
	cmd.Flags().IntVar(&req.Ns, "ns", 1, "Cells in series (pvmm)")
	cmd.Flags().IntVar(&req.Np, "np", 1, "Strings in parallel (pvmm)")
	cmd.Flags().Float64Var(&req.Temperature, "temperature", 0, "Cell temperature in kelvin (default PV_TEMPERATURE)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (.xlsx or .csv), stdout when empty")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write an I-V plot (.png, .svg, .pdf)")
	_ = cmd.MarkFlagRequired("params")
	return cmd
}

// parseParams converts name=value flag pairs to numbers.
func parseParams(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", k, err)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = x
	}
	return out, nil
}

func readVoltages(path, sheet string) ([]float64, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return curve.ReadVoltagesXLSX(path, sheet)
	default:
		c, err := curve.Load(path, sheet)
		if err != nil {
			return nil, err
		}
		return c.Voltages(), nil
	}
}

// writeCurve writes c to path by extension, or as CSV to stdout.
func writeCurve(a *app, path, sheet string, c curve.Curve) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		if path != "" {
			return fmt.Errorf("output %s has no extension", path)
		}
		return curve.WriteCSV(a.out, c)
	case ".xlsx":
		if err := curve.WriteXLSX(path, curve.CurveSheet(sheet, c)); err != nil {
			return err
		}
	case ".csv":
		if err := curve.WriteCSVFile(path, c); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output format %s", filepath.Ext(path))
	}
	a.logger.Info("Curve written", map[string]interface{}{"path": path, "points": len(c)})
	return nil
}
