package provider

import (
	"context"

	"github.com/pkg/errors"
)

// TokenSourceFunc obtains a provider access token inline, typically by
// delegating to a native SDK. It should return LoginCancelledErr (possibly
// wrapped) when the user abandons the provider UI.
type TokenSourceFunc func(ctx context.Context) (string, error)

// DirectFlow is the direct-exchange flow shape: Start resolves with the
// provider access token itself, and the caller performs the backend exchange.
type DirectFlow struct {
	id     string
	source TokenSourceFunc
}

// NewDirectFlow creates a direct-exchange login flow for the provider ID.
func NewDirectFlow(providerID string, source TokenSourceFunc) (*DirectFlow, error) {
	if providerID == "" {
		return nil, errors.New("[NewDirectFlow] provider ID is required")
	}
	if source == nil {
		return nil, errors.New("[NewDirectFlow] token source is required")
	}
	return &DirectFlow{id: providerID, source: source}, nil
}

var _ Flow = (*DirectFlow)(nil)

func (f *DirectFlow) ID() string {
	return f.id
}

// Start invokes the token source and returns the provider access token inline.
func (f *DirectFlow) Start(ctx context.Context) (Launch, error) {
	accessToken, err := f.source(ctx)
	if err != nil {
		return Launch{}, errors.Wrapf(err, "[DirectFlow.Start] provider %q", f.id)
	}
	if accessToken == "" {
		return Launch{}, errors.Wrapf(FlowUnavailableErr, "[DirectFlow.Start] provider %q returned an empty token", f.id)
	}
	return Launch{AccessToken: accessToken}, nil
}
