package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cuemby/agrilo/pkg/types"
)

// SubmitTicket files a support request
func (c *Client) SubmitTicket(ctx context.Context, subject, message string) (*types.TicketResult, error) {
	ticket := types.SupportTicket{
		Subject: strings.TrimSpace(subject),
		Message: strings.TrimSpace(message),
	}
	if ticket.Subject == "" || ticket.Message == "" {
		return nil, fmt.Errorf("subject and message are required")
	}
	req, err := newJSON(http.MethodPost, "/support/ticket", ticket)
	if err != nil {
		return nil, err
	}

	var out types.TicketResult
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
