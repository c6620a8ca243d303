package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/pvfit/internal/config"
	"github.com/copyleftdev/pvfit/internal/curve"
	"github.com/copyleftdev/pvfit/internal/fit"
	"github.com/copyleftdev/pvfit/internal/logging"
)

// app carries what every subcommand needs once the configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	zap    *zap.Logger
	runner *fit.Runner
	out    io.Writer

	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "pvfit",
		Short: "Photovoltaic model parameter extraction",
		Long: `pvfit evaluates single-diode, double-diode and module models of
photovoltaic cells and extracts their parameters from measured I-V curves
with the I_SCHO optimizer and comparison algorithms.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(
		newSolveCmd(a),
		newFitCmd(a),
		newCompareCmd(a),
		newSimulateCmd(a),
		newReferenceCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.zap = logging.NewZapLogger(logger)
	a.runner = fit.NewRunner(cfg, nil, a.zap)
	a.out = cmd.OutOrStdout()
	return nil
}

// dataFlags selects a built-in dataset or a measurement file.
type dataFlags struct {
	dataset string
	path    string
	sheet   string
}

func (d *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.dataset, "dataset", "", "Built-in dataset (rtc-france, pv-module, synthetic)")
	cmd.Flags().StringVar(&d.path, "data", "", "Measured curve file (.xlsx, .csv, .tsv)")
	cmd.Flags().StringVar(&d.sheet, "sheet", "", "Workbook sheet, first sheet when empty")
	cmd.MarkFlagsMutuallyExclusive("dataset", "data")
}

// apply fills the data fields of req.
func (d *dataFlags) apply(req *fit.Request) error {
	if d.path == "" {
		if d.dataset == "" {
			return fmt.Errorf("one of --dataset or --data is required")
		}
		req.Dataset = d.dataset
		return nil
	}
	c, err := curve.Load(d.path, d.sheet)
	if err != nil {
		return err
	}
	req.Curve = c
	return nil
}

// optFlags are the optimizer settings shared by fit and compare. Zero
// values defer to the configuration.
type optFlags struct {
	model       string
	population  int
	iterations  int
	seed        int64
	workers     int
	temperature float64
	ns, np      int
}

func (o *optFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.model, "model", "sdm", "Model: sdm, ddm or pvmm")
	cmd.Flags().IntVar(&o.population, "pop", 0, "Population size (default OPT_POPULATION)")
	cmd.Flags().IntVar(&o.iterations, "iters", 0, "Max iterations (default OPT_MAX_ITERATIONS)")
	cmd.Flags().Int64Var(&o.seed, "seed", 0, "Random seed, 0 uses OPT_SEED or the clock")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "Concurrent objective evaluations (default OPT_WORKER_COUNT)")
	cmd.Flags().Float64Var(&o.temperature, "temperature", 0, "Cell temperature in kelvin, defaults to the dataset or PV_TEMPERATURE")
	cmd.Flags().IntVar(&o.ns, "ns", 0, "Cells in series (pvmm)")
	cmd.Flags().IntVar(&o.np, "np", 0, "Strings in parallel (pvmm)")
}

func (o *optFlags) request() fit.Request {
	return fit.Request{
		Model:         o.model,
		Population:    o.population,
		MaxIterations: o.iterations,
		Seed:          o.seed,
		Workers:       o.workers,
		Temperature:   o.temperature,
		Ns:            o.ns,
		Np:            o.np,
	}
}
