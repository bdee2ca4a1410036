package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cuemby/agrilo/pkg/types"
)

type chatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}

// SendChat asks the assistant a question. An empty language falls back to
// the client language, then to the default language.
func (c *Client) SendChat(ctx context.Context, message, language string) (*types.ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if language == "" {
		language = c.Language()
	}
	if language == "" {
		language = types.DefaultLanguage
	}
	language, err := types.NormalizeLanguage(language)
	if err != nil {
		return nil, err
	}

	req, err := newJSON(http.MethodPost, "/chat/message", chatRequest{Message: message, Language: language})
	if err != nil {
		return nil, err
	}

	var out types.ChatReply
	if err := c.call(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatHistory returns the conversation, oldest first
func (c *Client) ChatHistory(ctx context.Context) ([]types.ChatMessage, error) {
	var out []types.ChatMessage
	if err := c.call(ctx, newGet("/chat/history", nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}
