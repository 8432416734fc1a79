package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/models"
	"github.com/Qubut/IP-Claim/packages/patent_analyst/internal/report"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <description or application number>",
	Short: "Analyze one query and print the patent report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		query := strings.Join(args, " ")
		out := cmd.OutOrStdout()
		result, err := services.Analyst.Analyze(ctx, query)

		var aerr *models.AnalysisError
		if err != nil && !errors.As(err, &aerr) {
			return fmt.Errorf("analyze: %w", err)
		}
		if analyzeJSON {
			var payload any = result
			if aerr != nil {
				payload = aerr
			}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if aerr != nil {
			report.WriteError(out, aerr.Message)
			return nil
		}
		report.Write(out, result)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the raw JSON result instead of the report")
}
