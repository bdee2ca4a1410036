package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var supportCmd = &cobra.Command{
	Use:   "support",
	Short: "Contact the Agrilo team",
}

var supportTicketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Open a support ticket",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		subject, _ := cmd.Flags().GetString("subject")
		message, _ := cmd.Flags().GetString("message")

		result, err := a.client.SubmitTicket(ctx, subject, message)
		if err != nil {
			return err
		}
		return a.print(result, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Ticket %s opened\n", result.TicketID)
			if result.Message != "" {
				fmt.Fprintln(w, result.Message)
			}
		})
	}),
}

func init() {
	supportTicketCmd.Flags().String("subject", "", "Short summary (required)")
	supportTicketCmd.Flags().String("message", "", "What went wrong (required)")
	_ = supportTicketCmd.MarkFlagRequired("subject")
	_ = supportTicketCmd.MarkFlagRequired("message")

	supportCmd.AddCommand(supportTicketCmd)
	rootCmd.AddCommand(supportCmd)
}
