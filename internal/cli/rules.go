package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratuswatch/detect-engine/internal/catalog"
	"github.com/stratuswatch/detect-engine/pkg/output"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Detection rule management",
	Long:  "List, inspect, register, and toggle detection rules",
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List detection rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clientFromFlags(cmd)

		rules, err := client.ListRules()
		if err != nil {
			return fmt.Errorf("failed to list rules: %w", err)
		}

		outputFormat, _ := cmd.Flags().GetString("output")
		if outputFormat == "json" {
			return output.JSON(rules)
		}

		if len(rules) == 0 {
			output.Info("No rules registered")
			return nil
		}

		table := output.NewTable([]string{"ID", "Version", "Type", "Enabled", "Triggers"})
		for _, rule := range rules {
			table.AddRow([]string{
				rule.RuleID,
				rule.Version,
				string(rule.RuleType),
				fmt.Sprintf("%t", rule.Enabled),
				strings.Join(rule.TriggerEventTypes, ","),
			})
		}
		table.Render()
		return nil
	},
}

var rulesGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get rule details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clientFromFlags(cmd)

		rule, err := client.GetRule(args[0])
		if err != nil {
			return fmt.Errorf("failed to get rule: %w", err)
		}
		return output.JSON(rule)
	},
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create [file]",
	Short: "Register a rule from a JSON definition file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read rule file: %w", err)
		}

		var rule catalog.RuleDefinition
		if err := json.Unmarshal(data, &rule); err != nil {
			return fmt.Errorf("failed to parse rule file: %w", err)
		}

		client := clientFromFlags(cmd)
		if err := client.CreateRule(&rule); err != nil {
			return fmt.Errorf("failed to create rule: %w", err)
		}

		output.Success("Rule %s version %s registered", rule.RuleID, rule.Version)
		return nil
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable [id]",
	Short: "Enable a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clientFromFlags(cmd)
		if err := client.SetRuleEnabled(args[0], true); err != nil {
			return fmt.Errorf("failed to enable rule: %w", err)
		}
		output.Success("Rule %s enabled", args[0])
		return nil
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable [id]",
	Short: "Disable a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := clientFromFlags(cmd)
		if err := client.SetRuleEnabled(args[0], false); err != nil {
			return fmt.Errorf("failed to disable rule: %w", err)
		}
		output.Success("Rule %s disabled", args[0])
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesGetCmd)
	rulesCmd.AddCommand(rulesCreateCmd)
	rulesCmd.AddCommand(rulesEnableCmd)
	rulesCmd.AddCommand(rulesDisableCmd)
	rootCmd.AddCommand(rulesCmd)
}
