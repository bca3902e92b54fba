package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratuswatch/detect-engine/internal/models"
	"github.com/stratuswatch/detect-engine/internal/seeder"
	"github.com/stratuswatch/detect-engine/pkg/output"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event ingestion",
	Long:  "Send event batches to the detection engine",
}

var eventsSendCmd = &cobra.Command{
	Use:   "send [file]",
	Short: "Send a batch of events from a JSON file",
	Long:  "Read an event batch from a JSON file and post it to the detection engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}

		var batch models.EventBatchRequest
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("failed to parse batch file: %w", err)
		}

		client := clientFromFlags(cmd)
		resp, err := client.SendEvents(&batch)
		if err != nil {
			return fmt.Errorf("failed to send events: %w", err)
		}

		reportBatchOutcome(cmd, resp)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate and send synthetic events",
	Long: `Generate synthetic events and send them to the detection engine.

Available scenarios:
  ` + strings.Join(seeder.Scenarios(), "\n  "),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenario, _ := cmd.Flags().GetString("scenario")
		count, _ := cmd.Flags().GetInt("count")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		seed, _ := cmd.Flags().GetInt64("seed")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		generator := seeder.NewGenerator(seed)
		events, err := generator.Generate(scenario, count)
		if err != nil {
			return err
		}

		if dryRun {
			return output.JSON(events)
		}

		client := clientFromFlags(cmd)
		tenant, _ := cmd.Flags().GetString("tenant")

		sent := 0
		for _, batch := range seeder.Batches(events, batchSize) {
			resp, err := client.SendEvents(&models.EventBatchRequest{
				TenantID: tenant,
				Source:   "detectctl-seed",
				Events:   batch,
			})
			if err != nil {
				return fmt.Errorf("failed to send batch after %d events: %w", sent, err)
			}
			sent += len(batch)
			reportBatchOutcome(cmd, resp)
		}

		output.Success("Sent %d events for scenario %s", sent, scenario)
		return nil
	},
}

func reportBatchOutcome(cmd *cobra.Command, resp *models.EventBatchResponse) {
	outputFormat, _ := cmd.Flags().GetString("output")
	if outputFormat == "json" {
		output.JSON(resp)
		return
	}

	var accepted, rejected, findings, suppressed int
	for _, result := range resp.Results {
		if result.Status == models.EventStatusAccepted {
			accepted++
		} else {
			rejected++
		}
		findings += len(result.Findings)
		suppressed += len(result.Suppressed)
	}

	output.Info("Accepted %d, rejected %d, findings %d, suppressed %d",
		accepted, rejected, findings, suppressed)
}

func init() {
	seedCmd.Flags().String("scenario", seeder.ScenarioNoise, "event generation scenario")
	seedCmd.Flags().Int("count", 100, "number of scenario occurrences to generate")
	seedCmd.Flags().Int("batch-size", 100, "events per batch")
	seedCmd.Flags().Int64("seed", 0, "random seed, 0 uses the current time")
	seedCmd.Flags().Bool("dry-run", false, "print generated events instead of sending")

	eventsCmd.AddCommand(eventsSendCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(seedCmd)
}
