package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/pvfit/internal/benchmark"
	"github.com/copyleftdev/pvfit/internal/curve"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		data       dataFlags
		opt        optFlags
		algorithms []string
		reference  string
		trials     int
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare optimizers over repeated seeded trials",
		Long: `Runs every algorithm --trials times on the same problem, summarizes the
best RMSE of each trial and tests the differences with the Friedman test
(three or more algorithms) and the Wilcoxon signed-rank test against the
reference algorithm.`,
		Example: `  pvfit compare --dataset rtc-france --trials 10 --algorithms ischo,mayfly,neldermead --out compare.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opt.request()
			if err := data.apply(&req); err != nil {
				return err
			}
			job, err := a.runner.Prepare(req)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			seed := opt.seed
			if seed == 0 {
				seed = a.cfg.Optimization.Seed
			}
			report, err := benchmark.Run(ctx, job.Problem(), benchmark.Options{
				Algorithms:     algorithms,
				Trials:         trials,
				PopulationSize: orConfig(opt.population, a.cfg.Optimization.Population),
				MaxIterations:  orConfig(opt.iterations, a.cfg.Optimization.MaxIterations),
				Workers:        orConfig(opt.workers, a.cfg.Optimization.WorkerCount),
				Seed:           seed,
				Reference:      reference,
				Logger:         a.zap,
			})
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := curve.WriteXLSX(outPath, report.Sheets()...); err != nil {
					return err
				}
				a.logger.Info("Comparison written", map[string]interface{}{"path": outPath})
			}
			return printReport(a, report)
		},
	}

	data.register(cmd)
	opt.register(cmd)
	cmd.Flags().StringSliceVar(&algorithms, "algorithms", benchmark.Algorithms(), "Algorithms to compare")
	cmd.Flags().StringVar(&reference, "reference", benchmark.ISCHO, "Algorithm the Wilcoxon tests compare against")
	cmd.Flags().IntVar(&trials, "trials", 10, "Independent trials per algorithm")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write scores and summary to a workbook (.xlsx)")
	return cmd
}

func orConfig(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func printReport(a *app, r *benchmark.Report) error {
	fmt.Fprintf(a.out, "%s, %d trials\n\n", r.Problem, r.Trials)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "algorithm\tmean\tstd\tmin\tmax\tmedian\tseconds")
	for _, s := range r.Summaries {
		fmt.Fprintf(tw, "%s\t%.4e\t%.2e\t%.4e\t%.4e\t%.4e\t%.2f\n",
			s.Algorithm, s.Mean, s.Std, s.Min, s.Max, s.Median, s.Elapsed)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Friedman != nil {
		fmt.Fprintf(a.out, "\nfriedman: chi2=%.4f p=%.4g\n", r.Friedman.Statistic, r.Friedman.PValue)
	}
	for _, s := range r.Summaries {
		if w, ok := r.Wilcoxon[s.Algorithm]; ok {
			fmt.Fprintf(a.out, "wilcoxon %s: T=%.1f p=%.4g\n", s.Algorithm, w.Statistic, w.PValue)
		}
	}
	return nil
}
