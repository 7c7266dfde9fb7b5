package api

import (
	"context"

	"github.com/pkg/errors"
)

// ChatMessage is one turn of the assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

type chatRequest struct {
	Message   string        `json:"message"`
	History   []ChatMessage `json:"history,omitempty"`
	UseFridge bool          `json:"useFridge"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Chat sends a message to the recipe assistant. When useFridge is set the
// backend grounds its reply in the user's fridge inventory.
func (c *Client) Chat(ctx context.Context, message string, history []ChatMessage, useFridge bool) (string, error) {
	var resp chatResponse
	req := chatRequest{Message: message, History: history, UseFridge: useFridge}
	if err := c.postJSON(ctx, "/chat/message", req, &resp); err != nil {
		return "", errors.Wrap(err, "[Client.Chat]")
	}
	return resp.Reply, nil
}
