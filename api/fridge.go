package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// FridgeItem is an ingredient tracked in the user's fridge inventory.
type FridgeItem struct {
	ID         int64  `json:"id,omitempty"`
	Name       string `json:"name"`
	Quantity   string `json:"quantity,omitempty"`
	Category   string `json:"category,omitempty"`
	ExpiryDate string `json:"expiryDate,omitempty"` // yyyy-mm-dd
}

// FridgeItems lists the authenticated user's fridge inventory.
func (c *Client) FridgeItems(ctx context.Context) ([]FridgeItem, error) {
	var items []FridgeItem
	if err := c.getJSON(ctx, "/fridge", &items); err != nil {
		return nil, errors.Wrap(err, "[Client.FridgeItems]")
	}
	return items, nil
}

// AddFridgeItem adds an ingredient and returns the stored record.
func (c *Client) AddFridgeItem(ctx context.Context, item FridgeItem) (*FridgeItem, error) {
	var stored FridgeItem
	if err := c.postJSON(ctx, "/fridge", item, &stored); err != nil {
		return nil, errors.Wrap(err, "[Client.AddFridgeItem]")
	}
	return &stored, nil
}

// DeleteFridgeItem removes an ingredient by ID.
func (c *Client) DeleteFridgeItem(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/fridge/%d", id)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return errors.Wrap(err, "[Client.DeleteFridgeItem]")
	}
	return nil
}

// AdjustFridgeQuantity patches the quantity of an ingredient.
func (c *Client) AdjustFridgeQuantity(ctx context.Context, id int64, quantity string) (*FridgeItem, error) {
	path := fmt.Sprintf("/fridge/%d/quantity", id)
	var updated FridgeItem
	body := map[string]string{"quantity": quantity}
	if err := c.doJSON(ctx, http.MethodPatch, path, body, &updated); err != nil {
		return nil, errors.Wrap(err, "[Client.AdjustFridgeQuantity]")
	}
	return &updated, nil
}
