package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/answerforge/ragcore/internal/output"
)

func newStatsCmd() *cobra.Command {
	var experimentID string
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show experiment statistics",
		Long: `Show per-variant success rates, confidence intervals, and
significance for the retrieval experiment. Outcome accumulators are
in-process, so stats reflect the current run only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			stats := svc.ExperimentStats(experimentID)

			if jsonOutput(format) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("Experiment " + stats.ExperimentID)
			if len(stats.Variants) == 0 {
				out.Status("", "no variants with enough samples yet")
				return nil
			}
			for _, v := range stats.Variants {
				out.Statusf("", "%-10s n=%-5d success=%.3f ci=[%.3f, %.3f] p=%.3f",
					v.Variant, v.SampleSize, v.SuccessRate, v.CILower, v.CIUpper, v.PValue)
			}
			if stats.WinningVariant != "" {
				out.Field("winning", stats.WinningVariant)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&experimentID, "experiment", "", "Experiment id (default: the retrieval-variant experiment)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json (default: json when piped)")
	return cmd
}
