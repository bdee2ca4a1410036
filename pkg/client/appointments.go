package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cuemby/agrilo/pkg/types"
)

// Soil test visits have a fixed price
const (
	BookingAmount   = 199.0
	BookingCurrency = "INR"
)

type orderRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// BookDirect books a soil test visit paid on site
func (c *Client) BookDirect(ctx context.Context, booking types.Booking) (*types.BookingResult, error) {
	if booking.PaymentMethod == "" {
		booking.PaymentMethod = types.PaymentPayLater
	}
	if err := booking.Validate(); err != nil {
		return nil, err
	}
	req, err := newJSON(http.MethodPost, "/appointments/book_direct", booking)
	if err != nil {
		return nil, err
	}
	return c.booking(ctx, req)
}

// PaymentConfig fetches the public key of the payment provider
func (c *Client) PaymentConfig(ctx context.Context) (*types.PaymentConfig, error) {
	var out types.PaymentConfig
	if err := c.call(ctx, newGet("/appointments/config", nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder creates a provider order. Amount is in major units.
func (c *Client) CreateOrder(ctx context.Context, amount float64, currency string) (*types.Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if currency == "" {
		currency = BookingCurrency
	}
	req, err := newJSON(http.MethodPost, "/appointments/create_order", orderRequest{Amount: amount, Currency: currency})
	if err != nil {
		return nil, err
	}

	var out types.Order
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPayment confirms a completed checkout and books the visit
func (c *Client) VerifyPayment(ctx context.Context, v types.PaymentVerification) (*types.BookingResult, error) {
	if v.OrderID == "" || v.PaymentID == "" || v.Signature == "" {
		return nil, fmt.Errorf("order id, payment id and signature are required")
	}
	if v.AppointmentDetails.PaymentMethod == "" {
		v.AppointmentDetails.PaymentMethod = types.PaymentUPI
	}
	if err := v.AppointmentDetails.Validate(); err != nil {
		return nil, err
	}
	req, err := newJSON(http.MethodPost, "/appointments/verify_payment", v)
	if err != nil {
		return nil, err
	}
	return c.booking(ctx, req)
}

func (c *Client) booking(ctx context.Context, req *Request) (*types.BookingResult, error) {
	var out types.BookingResult
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Status != statusSuccess {
		return nil, &Error{Kind: KindServer, Message: fmt.Sprintf("booking failed: %s", out.Status)}
	}
	return &out, nil
}

// MyAppointments lists the user's bookings, newest first
func (c *Client) MyAppointments(ctx context.Context) ([]types.Appointment, error) {
	var out []types.Appointment
	if err := c.call(ctx, newGet("/appointments/my_appointments", nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}
