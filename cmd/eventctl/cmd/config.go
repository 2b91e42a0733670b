package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "EventService settings",
	Long:  "Read or change the service-wide event delivery settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the EventService settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := apiClient(cmd).GetEventService(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get event service: %w", err)
		}
		return printEventService(cmd, res)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the EventService settings",
	Long:  "Change any of --enabled, --retry-attempts and --retry-interval; unset flags are left alone.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch models.EventServicePatch
		if cmd.Flags().Changed("enabled") {
			v, _ := cmd.Flags().GetBool("enabled")
			patch.ServiceEnabled = &v
		}
		if cmd.Flags().Changed("retry-attempts") {
			v, _ := cmd.Flags().GetInt("retry-attempts")
			patch.DeliveryRetryAttempts = &v
		}
		if cmd.Flags().Changed("retry-interval") {
			v, _ := cmd.Flags().GetInt("retry-interval")
			patch.DeliveryRetryIntervalSeconds = &v
		}
		if patch == (models.EventServicePatch{}) {
			return fmt.Errorf("nothing to change: pass --enabled, --retry-attempts or --retry-interval")
		}

		res, err := apiClient(cmd).PatchEventService(cmd.Context(), patch)
		if err != nil {
			return fmt.Errorf("failed to update event service: %w", err)
		}
		if outputFormat(cmd) != "json" {
			output.Success("Event service updated")
		}
		return printEventService(cmd, res)
	},
}

func printEventService(cmd *cobra.Command, res *models.EventService) error {
	if outputFormat(cmd) == "json" {
		return output.JSON(res)
	}
	output.Info("Service enabled:   %t", res.ServiceEnabled)
	output.Info("Retry attempts:    %d", res.DeliveryRetryAttempts)
	output.Info("Retry interval:    %ds", res.DeliveryRetryIntervalSeconds)
	output.Info("Event formats:     %s", strings.Join(res.EventFormatTypes, ", "))
	output.Info("Registry prefixes: %s", strings.Join(res.RegistryPrefixes, ", "))
	output.Info("SSE URI:           %s", res.ServerSentEventURI)
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configSetCmd.Flags().Bool("enabled", true, "enable or disable event delivery")
	configSetCmd.Flags().Int("retry-attempts", 0, "delivery attempts before the retry policy applies")
	configSetCmd.Flags().Int("retry-interval", 0, "seconds between delivery attempts")
}
