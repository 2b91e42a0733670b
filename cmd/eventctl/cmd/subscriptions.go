package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/output"
)

var subscriptionsCmd = &cobra.Command{
	Use:     "subscriptions",
	Aliases: []string{"subs"},
	Short:   "Event subscription management",
	Long:    "List, create and delete Redfish event subscriptions",
}

var subscriptionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List event subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := apiClient(cmd).ListSubscriptions(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}

		if outputFormat(cmd) == "json" {
			return output.JSON(subs)
		}
		if len(subs) == 0 {
			output.Info("No subscriptions found")
			return nil
		}

		table := output.NewTable([]string{"ID", "Type", "Format", "Destination", "Policy", "Filters"})
		for _, s := range subs {
			dest := s.Destination
			if dest == "" {
				dest = "(stream)"
			}
			table.AddRow([]string{s.ID, s.SubscriptionType, s.EventFormatType, dest, s.DeliveryRetryPolicy, describeFilters(s)})
		}
		table.Render()
		return nil
	},
}

var subscriptionsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one event subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := apiClient(cmd).GetSubscription(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get subscription: %w", err)
		}
		return output.JSON(s)
	},
}

var subscriptionsCreateCmd = &cobra.Command{
	Use:   "create [destination]",
	Short: "Create a push subscription",
	Long: `Create a Redfish push subscription delivering to destination, an
absolute http or https URL. Empty filter lists match everything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.CreateSubscriptionRequest{
			Destination: args[0],
			Protocol:    "Redfish",
		}
		req.Context, _ = cmd.Flags().GetString("context")
		req.EventFormatType, _ = cmd.Flags().GetString("format")
		req.DeliveryRetryPolicy, _ = cmd.Flags().GetString("retry-policy")
		req.RegistryPrefixes, _ = cmd.Flags().GetStringSlice("registry-prefix")
		req.MessageIDs, _ = cmd.Flags().GetStringSlice("message-id")

		origins, _ := cmd.Flags().GetStringSlice("origin")
		for _, o := range origins {
			req.OriginResources = append(req.OriginResources, models.ODataID{ODataID: o})
		}
		defs, _ := cmd.Flags().GetStringSlice("metric-report")
		for _, d := range defs {
			req.MetricReportDefinitions = append(req.MetricReportDefinitions, models.ODataID{ODataID: d})
		}
		headers, _ := cmd.Flags().GetStringToString("header")
		if len(headers) > 0 {
			req.HTTPHeaders = []map[string]string{headers}
		}

		s, err := apiClient(cmd).CreateSubscription(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		if outputFormat(cmd) == "json" {
			return output.JSON(s)
		}
		output.Success("Subscription %s created for %s", s.ID, s.Destination)
		return nil
	},
}

var subscriptionsDeleteCmd = &cobra.Command{
	Use:     "delete [id]",
	Aliases: []string{"rm"},
	Short:   "Delete an event subscription",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient(cmd).DeleteSubscription(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		output.Success("Subscription %s deleted", args[0])
		return nil
	},
}

func describeFilters(s models.EventDestination) string {
	var parts []string
	if len(s.RegistryPrefixes) > 0 {
		parts = append(parts, "prefix="+strings.Join(s.RegistryPrefixes, ","))
	}
	if len(s.MessageIDs) > 0 {
		parts = append(parts, "msg="+strings.Join(s.MessageIDs, ","))
	}
	if len(s.OriginResources) > 0 {
		parts = append(parts, fmt.Sprintf("origins=%d", len(s.OriginResources)))
	}
	if len(s.MetricReportDefinitions) > 0 {
		parts = append(parts, fmt.Sprintf("reports=%d", len(s.MetricReportDefinitions)))
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(subscriptionsCmd)
	subscriptionsCmd.AddCommand(subscriptionsListCmd)
	subscriptionsCmd.AddCommand(subscriptionsGetCmd)
	subscriptionsCmd.AddCommand(subscriptionsCreateCmd)
	subscriptionsCmd.AddCommand(subscriptionsDeleteCmd)

	subscriptionsCreateCmd.Flags().String("context", "", "opaque context echoed in every envelope")
	subscriptionsCreateCmd.Flags().String("format", "Event", "event format type: Event, MetricReport")
	subscriptionsCreateCmd.Flags().String("retry-policy", "", "TerminateAfterRetries, SuspendRetries or RetryForever")
	subscriptionsCreateCmd.Flags().StringSlice("registry-prefix", nil, "registry prefixes to match (repeatable)")
	subscriptionsCreateCmd.Flags().StringSlice("message-id", nil, "message ids to match (repeatable)")
	subscriptionsCreateCmd.Flags().StringSlice("origin", nil, "origin resource URIs to match (repeatable)")
	subscriptionsCreateCmd.Flags().StringSlice("metric-report", nil, "metric report definition URIs to match (repeatable)")
	subscriptionsCreateCmd.Flags().StringToString("header", nil, "extra HTTP headers sent with each delivery (key=value)")
}
