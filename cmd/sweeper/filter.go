package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourorg/scan-sweeper/internal/filter"
	"github.com/yourorg/scan-sweeper/internal/model"
)

func newFilterCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "filter <results-file>",
		Short: "Print the reportable lines of a scan result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			findings, err := filter.File(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range findings {
				fmt.Fprintln(out, f.Line)
			}
			if summary {
				s := model.FilteredReport{Findings: findings}.Summary()
				fmt.Fprintf(out, "\ntotal=%d critical=%d high=%d medium=%d low=%d\n", s.Total, s.Critical, s.High, s.Medium, s.Low)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "append per-severity counts")
	return cmd
}
