package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/pvfit/internal/reference"
)

func newReferenceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reference",
		Short: "List built-in datasets and score published parameter sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "dataset\tpoints\ttemperature\tdescription")
			for _, name := range reference.Names() {
				d, err := reference.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\n", d.Name, len(d.Curve), d.Temperature, d.Description)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			scores, err := a.runner.ReferenceScores()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out)
			tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "set\tmodel\tdataset\trmse\treported")
			for _, s := range scores {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.6e\t%.6e\n", s.Name, s.Model, s.Dataset, s.RMSE, s.TargetRMSE)
			}
			return tw.Flush()
		},
	}
}
