package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/answerforge/ragcore/internal/output"
)

func newStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report vector store health and corpus size",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			status := svc.VectorStoreStatus(cmd.Context())

			if jsonOutput(format) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("Vector Store")
			out.Field("status", status.Status)
			out.Field("documents", status.DocumentCount)
			out.Field("search_working", status.SearchWorking)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json (default: json when piped)")
	return cmd
}
