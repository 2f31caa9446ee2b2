package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/svylabs/ilumina/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ilumina",
	Short: "Smart-contract analysis and simulation pipeline",
	Long:  "Orchestrates analysis of a smart-contract repository and generation of an agent-based simulation harness through a resumable, queue-driven step pipeline.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
