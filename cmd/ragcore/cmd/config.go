package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/answerforge/ragcore/configs"
	"github.com/answerforge/ragcore/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ragcore configuration",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated example configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite", path)
				}
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			output.New(cmd.OutOrStdout()).Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "ragcore.yaml", "Destination path")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
