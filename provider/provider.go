// Package provider abstracts the per-provider login flows used to obtain a
// provider access token. Two shapes exist: redirect flows that launch an
// external authorization UI and complete later through a result handler, and
// direct flows that return an access token inline (native SDK style). The
// session manager treats both uniformly through the Flow interface.
package provider

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// ResultType classifies the outcome delivered by an asynchronous flow.
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultCancel  ResultType = "cancel"
	ResultError   ResultType = "error"
)

// Result is the completion event emitted by a redirect flow once the external
// authorization round-trip has finished.
type Result struct {
	Provider    string
	Type        ResultType
	AccessToken string
	Err         error
}

// Launch is the immediate outcome of starting a flow. Redirect flows report
// Launched and deliver the token later; direct flows fill AccessToken inline.
type Launch struct {
	Launched    bool
	AccessToken string
}

// Flow is a single provider's login capability.
type Flow interface {
	ID() string
	Start(ctx context.Context) (Launch, error)
}

// CallbackFlow is implemented by flows whose result arrives asynchronously
// after Start has returned.
type CallbackFlow interface {
	Flow
	OnResult(handler func(Result))
}

// Registry holds the configured flows keyed by provider ID.
type Registry struct {
	flows map[string]Flow
}

// NewRegistry builds a registry from the given flows. Duplicate provider IDs
// are rejected.
func NewRegistry(flows ...Flow) (*Registry, error) {
	r := &Registry{flows: make(map[string]Flow, len(flows))}
	for _, f := range flows {
		if f == nil {
			return nil, errors.New("[NewRegistry] nil flow")
		}
		if _, exists := r.flows[f.ID()]; exists {
			return nil, errors.Errorf("[NewRegistry] duplicate provider %q", f.ID())
		}
		r.flows[f.ID()] = f
	}
	return r, nil
}

// Get returns the flow registered for the provider ID.
func (r *Registry) Get(providerID string) (Flow, error) {
	f, ok := r.flows[providerID]
	if !ok {
		return nil, errors.Wrapf(UnknownProviderErr, "[Registry.Get] %q", providerID)
	}
	return f, nil
}

// IDs returns the registered provider IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Each invokes fn for every registered flow.
func (r *Registry) Each(fn func(Flow)) {
	for _, id := range r.IDs() {
		fn(r.flows[id])
	}
}
