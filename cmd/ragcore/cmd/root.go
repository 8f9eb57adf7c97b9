// Package cmd provides the CLI commands for ragcore.
package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/pkg/rag"
	"github.com/answerforge/ragcore/pkg/version"
)

var (
	cfgPath string
	dataDir string
)

// NewRootCmd creates the root command for the ragcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragcore",
		Short: "Hybrid retrieval and answer synthesis over your documents",
		Long: `ragcore ingests documents, indexes them for hybrid search
(BM25 + semantic with Reciprocal Rank Fusion), and answers questions
grounded in the retrieved passages.

Without API credentials it runs fully offline on static embeddings and
a deterministic stub generator.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("ragcore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (YAML); empty uses defaults plus RAGCORE_* env")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".ragcore", "Directory for persisted indexes; empty disables persistence")

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// buildService loads configuration and assembles the pipeline, restoring
// persisted indexes from the data directory when one is configured.
func buildService(ctx context.Context) (*rag.Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" && cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = filepath.Join(dataDir, "meta.db")
	}

	svc, err := rag.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		if err := svc.LoadIndexes(dataDir); err != nil {
			svc.Close()
			return nil, err
		}
	}
	return svc, nil
}
