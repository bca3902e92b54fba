package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratuswatch/detect-engine/pkg/output"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "Finding review and triage",
	Long:  "List, inspect, and dismiss detection findings",
}

var findingsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clientFromFlags(cmd)

		severity, _ := cmd.Flags().GetString("severity")
		ruleID, _ := cmd.Flags().GetString("rule")
		state, _ := cmd.Flags().GetString("state")
		assetID, _ := cmd.Flags().GetString("asset")
		limit, _ := cmd.Flags().GetInt("limit")

		findings, err := client.ListFindings(map[string]string{
			"severity": severity,
			"rule_id":  ruleID,
			"state":    state,
			"asset_id": assetID,
		}, limit)
		if err != nil {
			return fmt.Errorf("failed to list findings: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(findings)
		}

		if len(findings) == 0 {
			output.Info("No findings found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Type", "Severity", "Confidence", "State", "Asset", "Created At"})
		for _, finding := range findings {
			table.AddRow([]string{
				finding.FindingID,
				finding.FindingType,
				string(finding.Severity),
				fmt.Sprintf("%.2f", finding.Confidence),
				string(finding.State),
				finding.AssetID,
				finding.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		table.Render()
		return nil
	},
}

var findingsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get finding details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clientFromFlags(cmd)

		finding, err := client.GetFinding(args[0])
		if err != nil {
			return fmt.Errorf("failed to get finding: %w", err)
		}
		return output.JSON(finding)
	},
}

var findingsDismissCmd = &cobra.Command{
	Use:   "dismiss [id]",
	Short: "Dismiss a finding with a justification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			return fmt.Errorf("a dismissal reason is required, pass --reason")
		}
		identity, _ := cmd.Flags().GetString("as")

		client := clientFromFlags(cmd)
		if err := client.DismissFinding(args[0], identity, reason); err != nil {
			return fmt.Errorf("failed to dismiss finding: %w", err)
		}

		output.Success("Finding %s dismissed", args[0])
		return nil
	},
}

func init() {
	findingsListCmd.Flags().String("severity", "", "filter by severity")
	findingsListCmd.Flags().String("rule", "", "filter by rule ID")
	findingsListCmd.Flags().String("state", "", "filter by state")
	findingsListCmd.Flags().String("asset", "", "filter by asset ID")
	findingsListCmd.Flags().Int("limit", 50, "maximum findings to return")

	findingsDismissCmd.Flags().String("reason", "", "dismissal justification")
	findingsDismissCmd.Flags().String("as", "", "identity recorded for the dismissal")

	findingsCmd.AddCommand(findingsListCmd)
	findingsCmd.AddCommand(findingsGetCmd)
	findingsCmd.AddCommand(findingsDismissCmd)
	rootCmd.AddCommand(findingsCmd)
}
