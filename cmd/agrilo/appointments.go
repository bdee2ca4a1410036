package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cuemby/agrilo/pkg/client"
	"github.com/cuemby/agrilo/pkg/types"
	"github.com/spf13/cobra"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book a soil test visit, paid on site",
	Long: fmt.Sprintf(`Book a soil test visit. The fee of %.0f %s is paid on site.
Name and phone default to the profile.

Examples:
  agrilo book --address "Gat 112, Shirur" --date 2026-11-03`, client.BookingAmount, client.BookingCurrency),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		booking := bookingFromFlags(cmd, a.session.Profile())
		booking.PaymentMethod = types.PaymentPayLater

		result, err := a.client.BookDirect(ctx, booking)
		if err != nil {
			return err
		}
		return printBooking(a, result)
	}),
}

var appointmentsCmd = &cobra.Command{
	Use:   "appointments",
	Short: "List booked soil test visits",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		appointments, err := a.client.MyAppointments(ctx)
		if err != nil {
			return err
		}
		return a.print(appointments, func(w io.Writer) {
			if len(appointments) == 0 {
				fmt.Fprintln(w, "No appointments")
				return
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tSTATUS\tAMOUNT\tADDRESS\tID")
			for _, ap := range appointments {
				fmt.Fprintf(tw, "%s\t%s\t%.0f\t%s\t%s\n", ap.Date.Format("2006-01-02"), ap.Status, ap.Amount, ap.Address, ap.ID)
			}
			_ = tw.Flush()
		})
	}),
}

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Pay for a soil test visit online",
	Long: `Pay for a soil test visit online. Create an order, complete the checkout
with the payment provider, then verify it to book the visit.`,
}

var paymentConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the payment provider key",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		pc, err := a.client.PaymentConfig(ctx)
		if err != nil {
			return err
		}
		return a.print(pc, func(w io.Writer) { fmt.Fprintln(w, pc.Key) })
	}),
}

var paymentOrderCmd = &cobra.Command{
	Use:   "order",
	Short: "Create a payment order for the visit fee",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		amount, _ := cmd.Flags().GetFloat64("amount")
		currency, _ := cmd.Flags().GetString("currency")

		order, err := a.client.CreateOrder(ctx, amount, currency)
		if err != nil {
			return err
		}
		return a.print(order, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Order %s created for %.2f %s\n", order.ID, float64(order.Amount)/100, order.Currency)
		})
	}),
}

var paymentVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a completed checkout and book the visit",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		orderID, _ := cmd.Flags().GetString("order-id")
		paymentID, _ := cmd.Flags().GetString("payment-id")
		signature, _ := cmd.Flags().GetString("signature")

		booking := bookingFromFlags(cmd, a.session.Profile())
		booking.PaymentMethod = types.PaymentUPI

		result, err := a.client.VerifyPayment(ctx, types.PaymentVerification{
			OrderID:            orderID,
			PaymentID:          paymentID,
			Signature:          signature,
			AppointmentDetails: booking,
		})
		if err != nil {
			return err
		}
		return printBooking(a, result)
	}),
}

func init() {
	addBookingFlags(bookCmd)
	addBookingFlags(paymentVerifyCmd)

	paymentOrderCmd.Flags().Float64("amount", client.BookingAmount, "Amount in major units")
	paymentOrderCmd.Flags().String("currency", client.BookingCurrency, "Currency code")

	paymentVerifyCmd.Flags().String("order-id", "", "Order ID (required)")
	paymentVerifyCmd.Flags().String("payment-id", "", "Payment ID from the provider (required)")
	paymentVerifyCmd.Flags().String("signature", "", "Checkout signature from the provider (required)")
	_ = paymentVerifyCmd.MarkFlagRequired("order-id")
	_ = paymentVerifyCmd.MarkFlagRequired("payment-id")
	_ = paymentVerifyCmd.MarkFlagRequired("signature")

	paymentCmd.AddCommand(paymentConfigCmd)
	paymentCmd.AddCommand(paymentOrderCmd)
	paymentCmd.AddCommand(paymentVerifyCmd)

	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(appointmentsCmd)
	rootCmd.AddCommand(paymentCmd)
}

func addBookingFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Contact name (defaults to the profile)")
	cmd.Flags().String("phone", "", "Contact phone (defaults to the profile)")
	cmd.Flags().String("address", "", "Farm address (defaults to the profile)")
	cmd.Flags().String("date", "", "Visit date, YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("date")
}

func bookingFromFlags(cmd *cobra.Command, profile *types.Profile) types.Booking {
	var b types.Booking
	b.Name, _ = cmd.Flags().GetString("name")
	b.Phone, _ = cmd.Flags().GetString("phone")
	b.Address, _ = cmd.Flags().GetString("address")
	b.Date, _ = cmd.Flags().GetString("date")

	if profile != nil {
		if b.Name == "" {
			b.Name = profile.Name
		}
		if b.Phone == "" {
			b.Phone = profile.Phone
		}
		if b.Address == "" && profile.Location != nil {
			b.Address = profile.Location.Address
		}
	}
	return b
}

func printBooking(a *app, result *types.BookingResult) error {
	return a.print(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Visit booked (appointment %s)\n", result.AppointmentID)
	})
}
