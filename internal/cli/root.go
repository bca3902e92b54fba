package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "detectctl",
	Short: "Detection engine CLI",
	Long: `detectctl is the command-line interface for the detection engine.

Send event batches, manage detection rules, review findings, and seed
synthetic events for development and load testing.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8087", "detection service base URL")
	rootCmd.PersistentFlags().String("tenant", "", "tenant ID sent with requests")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
}

func clientFromFlags(cmd *cobra.Command) *Client {
	server, _ := cmd.Flags().GetString("server")
	tenant, _ := cmd.Flags().GetString("tenant")
	return NewClient(server, tenant)
}
