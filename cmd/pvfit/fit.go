package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/pvfit/internal/curve"
	"github.com/copyleftdev/pvfit/internal/fit"
	"github.com/copyleftdev/pvfit/internal/plot"
)

func newFitCmd(a *app) *cobra.Command {
	var (
		data      dataFlags
		opt       optFlags
		algorithm string
		bounds    []float64
		outPath   string
		plotPath  string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Extract model parameters from an I-V curve",
		Example: `  pvfit fit --model sdm --dataset rtc-france --pop 30 --iters 500 --seed 42
  pvfit fit --model ddm --data cell.xlsx --algorithm mayfly --plot fit.png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opt.request()
			req.Algorithm = algorithm
			if err := data.apply(&req); err != nil {
				return err
			}
			if len(bounds) > 0 {
				b, err := pairBounds(bounds)
				if err != nil {
					return err
				}
				req.Bounds = b
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := a.runner.Run(ctx, req)
			if err != nil {
				return err
			}

			if plotPath != "" {
				title := fmt.Sprintf("%s %s (RMSE %.3g)", strings.ToUpper(res.Model), res.Algorithm, res.RMSE)
				if err := plot.IV(plotPath, res.Measured, res.Fitted, title); err != nil {
					return err
				}
			}
			if outPath != "" {
				if err := writeResult(outPath, res); err != nil {
					return err
				}
				a.logger.Info("Fit written", map[string]interface{}{"path": outPath})
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(a, res)
		},
	}

	data.register(cmd)
	opt.register(cmd)
	cmd.Flags().StringVar(&algorithm, "algorithm", "ischo", "Optimizer: ischo, mayfly, neldermead or bayesian")
	cmd.Flags().Float64SliceVar(&bounds, "bounds", nil, "Search bounds as min,max pairs in parameter order")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the result (.xlsx or .json)")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write a measured vs fitted plot (.png, .svg, .pdf)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func pairBounds(flat []float64) ([][2]float64, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("--bounds needs min,max pairs, got %d values", len(flat))
	}
	out := make([][2]float64, len(flat)/2)
	for k := range out {
		out[k] = [2]float64{flat[2*k], flat[2*k+1]}
	}
	return out, nil
}

func printResult(a *app, res *fit.Result) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "model\t%s\n", res.Model)
	fmt.Fprintf(tw, "algorithm\t%s\n", res.Algorithm)
	if res.Dataset != "" {
		fmt.Fprintf(tw, "dataset\t%s\n", res.Dataset)
	}
	fmt.Fprintf(tw, "rmse\t%.6e\n", res.RMSE)
	fmt.Fprintf(tw, "iterations\t%d\n", res.Iterations)
	fmt.Fprintf(tw, "evaluations\t%d\n", res.Evaluations)
	fmt.Fprintf(tw, "elapsed\t%.3fs\n", res.Elapsed)
	for _, name := range res.Names {
		fmt.Fprintf(tw, "%s\t%.6g\n", name, res.Parameters[name])
	}
	return tw.Flush()
}

// writeResult stores res as JSON, or as a workbook with parameter, curve
// and convergence sheets.
func writeResult(path string, res *fit.Result) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		raw, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, raw, 0o644)
	case ".xlsx":
		return curve.WriteXLSX(path, resultSheets(res)...)
	default:
		return fmt.Errorf("unsupported output format %s", filepath.Ext(path))
	}
}

func resultSheets(res *fit.Result) []curve.Sheet {
	params := curve.Sheet{Name: "Parameters", Columns: []string{"parameter", "value"}}
	for _, name := range res.Names {
		params.Labels = append(params.Labels, name)
		params.Rows = append(params.Rows, []float64{res.Parameters[name]})
	}
	params.Labels = append(params.Labels, "rmse")
	params.Rows = append(params.Rows, []float64{res.RMSE})

	iv := curve.Sheet{Name: "Fitted", Columns: []string{"voltage", "measured", "fitted"}}
	for k, p := range res.Measured {
		row := []float64{p.V, p.I, math.NaN()}
		if k < len(res.Fitted) {
			row[2] = res.Fitted[k].I
		}
		iv.Rows = append(iv.Rows, row)
	}

	history := curve.Sheet{Name: "History", Columns: []string{"iteration", "rmse"}}
	for _, e := range res.History {
		history.Rows = append(history.Rows, []float64{float64(e.Iteration), e.Solution.Value})
	}

	return []curve.Sheet{params, iv, history}
}
