package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/eventd/internal/models"
	"github.com/telhawk-systems/eventd/internal/output"
)

var testEventCmd = &cobra.Command{
	Use:   "test-event",
	Short: "Send a test event to every Event subscriber",
	Long: `Invoke EventService.SubmitTestEvent. Subscription filters are ignored.
With --message-id and no --message the text comes from the message registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req models.TestEventRequest
		req.MessageID, _ = cmd.Flags().GetString("message-id")
		req.Message, _ = cmd.Flags().GetString("message")
		req.MessageArgs, _ = cmd.Flags().GetStringSlice("arg")
		req.MessageSeverity, _ = cmd.Flags().GetString("severity")
		req.OriginOfCondition, _ = cmd.Flags().GetString("origin")

		if err := apiClient(cmd).SubmitTestEvent(cmd.Context(), req); err != nil {
			return fmt.Errorf("failed to submit test event: %w", err)
		}
		output.Success("Test event submitted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testEventCmd)

	testEventCmd.Flags().String("message-id", "", "message id, e.g. Base.1.16.ResourceCreated")
	testEventCmd.Flags().String("message", "", "message text")
	testEventCmd.Flags().StringSlice("arg", nil, "message arguments (repeatable)")
	testEventCmd.Flags().String("severity", "", "message severity")
	testEventCmd.Flags().String("origin", "", "origin of condition URI")
}
