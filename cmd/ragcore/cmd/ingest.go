package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/output"
)

func newIngestCmd() *cobra.Command {
	var reset bool
	var source string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest text files into the corpus",
		Long: `Read each file as one document, chunk and embed it, and index it
for hybrid retrieval. Indexes are persisted under the data directory.

Examples:
  ragcore ingest docs/*.md
  ragcore ingest corpus.txt --reset`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, reset, source)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop the existing corpus before ingesting")
	cmd.Flags().StringVar(&source, "source", string(model.SourceCustom), "Document source tag: arxiv, wikipedia, web, custom")

	return cmd
}

func runIngest(cmd *cobra.Command, paths []string, reset bool, source string) error {
	docs := make([]model.Document, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, model.Document{
			Content:  string(content),
			Title:    filepath.Base(path),
			Source:   model.DocumentSource(source),
			Metadata: map[string]string{"path": path},
		})
	}

	svc, err := buildService(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	stats, err := svc.Ingest(cmd.Context(), docs, reset)
	if err != nil {
		return err
	}
	if dataDir != "" {
		if err := svc.SaveIndexes(dataDir); err != nil {
			return fmt.Errorf("persist indexes: %w", err)
		}
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("ingested %d documents (%d chunks)", stats.Documents, stats.Chunks)
	return nil
}
