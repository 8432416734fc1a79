package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <queries-file>",
	Short: "Analyze every query of a file (one per line) into a CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		err := services.Batch.RunFile(
			ctx,
			args[0],
			cfg.Batch.OutputCSV,
			int64(cfg.Batch.Workers),
		)
		if err != nil {
			return fmt.Errorf("batch failed: %w", err)
		}
		logger.Infow("Batch completed", "output", cfg.Batch.OutputCSV)
		return nil
	},
}

func init() {
	batchCmd.Flags().String("batch.output-csv", "./analysis.csv", "Output CSV path")
	batchCmd.Flags().String("batch.workers", "4", "Concurrent analyses")
}
