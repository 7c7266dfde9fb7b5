package api

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/mychefai/go-chef-client/users"
)

type exchangeRequest struct {
	AccessToken string `json:"accessToken"`
}

type exchangeResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// ExchangeToken trades a provider access token for a backend session token and
// user profile via POST /auth/{providerID}. Implements session.Exchanger.
func (c *Client) ExchangeToken(ctx context.Context, providerID, accessToken string) (string, *users.User, error) {
	var resp exchangeResponse
	err := c.postJSON(ctx, "/auth/"+providerID, exchangeRequest{AccessToken: accessToken}, &resp)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Client.ExchangeToken]")
	}
	if resp.Token == "" || len(resp.User) == 0 {
		return "", nil, errors.Wrap(EmptyCredentialErr, "[Client.ExchangeToken]")
	}

	user, err := users.Decode(resp.User)
	if err != nil {
		return "", nil, errors.Wrapf(MalformedResponseErr, "[Client.ExchangeToken] %v", err)
	}
	return resp.Token, user, nil
}
