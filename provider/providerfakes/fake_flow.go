package providerfakes

import (
	"context"
	"sync"

	"github.com/mychefai/go-chef-client/provider"
)

var _ provider.CallbackFlow = (*FakeRedirectFlow)(nil)

// FakeRedirectFlow simulates a redirect-shaped flow: Start reports a launched
// UI and the test drives completion through Deliver.
type FakeRedirectFlow struct {
	ProviderID string
	StartErr   error

	lock       sync.Mutex
	handler    func(provider.Result)
	startCalls int
}

func NewFakeRedirectFlow(providerID string) *FakeRedirectFlow {
	return &FakeRedirectFlow{ProviderID: providerID}
}

func (f *FakeRedirectFlow) ID() string {
	return f.ProviderID
}

func (f *FakeRedirectFlow) Start(_ context.Context) (provider.Launch, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.startCalls++
	if f.StartErr != nil {
		return provider.Launch{}, f.StartErr
	}
	return provider.Launch{Launched: true}, nil
}

func (f *FakeRedirectFlow) OnResult(handler func(provider.Result)) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.handler = handler
}

// Deliver pushes a completion event to the registered handler, as the host UI
// layer would. Call it more than once to simulate redundant event delivery.
func (f *FakeRedirectFlow) Deliver(result provider.Result) {
	f.lock.Lock()
	handler := f.handler
	f.lock.Unlock()
	if result.Provider == "" {
		result.Provider = f.ProviderID
	}
	if handler != nil {
		handler(result)
	}
}

func (f *FakeRedirectFlow) StartCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.startCalls
}

var _ provider.Flow = (*FakeDirectFlow)(nil)

// FakeDirectFlow simulates a direct-exchange flow returning a canned token.
type FakeDirectFlow struct {
	ProviderID  string
	AccessToken string
	StartErr    error

	lock       sync.Mutex
	startCalls int
}

func NewFakeDirectFlow(providerID, accessToken string) *FakeDirectFlow {
	return &FakeDirectFlow{ProviderID: providerID, AccessToken: accessToken}
}

func (f *FakeDirectFlow) ID() string {
	return f.ProviderID
}

func (f *FakeDirectFlow) Start(_ context.Context) (provider.Launch, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.startCalls++
	if f.StartErr != nil {
		return provider.Launch{}, f.StartErr
	}
	return provider.Launch{AccessToken: f.AccessToken}, nil
}

func (f *FakeDirectFlow) StartCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.startCalls
}
