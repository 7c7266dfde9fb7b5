package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mychefai/go-chef-client/provider"
)

type redirectFixture struct {
	flow        *provider.RedirectFlow
	tokenServer *httptest.Server
	openedURLs  chan string
	results     chan provider.Result
}

func setupRedirectFixture(t *testing.T) *redirectFixture {
	t.Helper()

	f := &redirectFixture{
		openedURLs: make(chan string, 1),
		results:    make(chan provider.Result, 4),
	}

	f.tokenServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer"}`))
	}))
	t.Cleanup(f.tokenServer.Close)

	flow, err := provider.NewRedirectFlow(provider.RedirectConfig{
		ProviderID: "kakao",
		OAuth: &oauth2.Config{
			ClientID: "client-1",
			Endpoint: oauth2.Endpoint{
				AuthURL:  f.tokenServer.URL + "/authorize",
				TokenURL: f.tokenServer.URL + "/token",
			},
		},
		ListenAddr: "127.0.0.1:0",
	}, provider.WithBrowserOpener(func(u string) error {
		f.openedURLs <- u
		return nil
	}))
	require.NoError(t, err)

	flow.OnResult(func(r provider.Result) { f.results <- r })
	f.flow = flow
	return f
}

// start launches the flow and returns the state parameter baked into the
// authorization URL.
func (f *redirectFixture) start(t *testing.T) string {
	t.Helper()

	launch, err := f.flow.Start(context.Background())
	require.NoError(t, err)
	require.True(t, launch.Launched)
	require.Empty(t, launch.AccessToken)

	authURL := <-f.openedURLs
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (f *redirectFixture) hitCallback(t *testing.T, query string) {
	t.Helper()
	resp, err := http.Get(f.flow.CallbackURL() + "?" + query)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
}

func (f *redirectFixture) awaitResult(t *testing.T) provider.Result {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no provider result delivered")
		return provider.Result{}
	}
}

func TestRedirectFlowDeliversAccessToken(t *testing.T) {
	f := setupRedirectFixture(t)
	state := f.start(t)

	f.hitCallback(t, "state="+state+"&code=good-code")

	result := f.awaitResult(t)
	require.Equal(t, provider.ResultSuccess, result.Type)
	require.Equal(t, "provider-token", result.AccessToken)
	require.Equal(t, "kakao", result.Provider)
}

func TestRedirectFlowUserDenial(t *testing.T) {
	f := setupRedirectFixture(t)
	f.start(t)

	f.hitCallback(t, "error=access_denied")

	result := f.awaitResult(t)
	require.Equal(t, provider.ResultCancel, result.Type)
	require.Empty(t, result.AccessToken)
}

func TestRedirectFlowStateMismatch(t *testing.T) {
	f := setupRedirectFixture(t)
	f.start(t)

	f.hitCallback(t, "state=forged&code=good-code")

	result := f.awaitResult(t)
	require.Equal(t, provider.ResultError, result.Type)
	require.ErrorIs(t, result.Err, provider.StateMismatchErr)
}

func TestRedirectFlowCodeExchangeFailure(t *testing.T) {
	f := setupRedirectFixture(t)
	state := f.start(t)

	f.hitCallback(t, "state="+state+"&code=bad-code")

	result := f.awaitResult(t)
	require.Equal(t, provider.ResultError, result.Type)
	require.Error(t, result.Err)
}

func TestRedirectFlowBrowserLaunchFailure(t *testing.T) {
	flow, err := provider.NewRedirectFlow(provider.RedirectConfig{
		ProviderID: "kakao",
		OAuth: &oauth2.Config{
			ClientID: "client-1",
			Endpoint: oauth2.Endpoint{AuthURL: "http://127.0.0.1:1/a", TokenURL: "http://127.0.0.1:1/t"},
		},
		ListenAddr: "127.0.0.1:0",
	}, provider.WithBrowserOpener(func(string) error {
		return provider.FlowUnavailableErr
	}))
	require.NoError(t, err)

	launch, err := flow.Start(context.Background())
	require.Error(t, err)
	require.False(t, launch.Launched)
}
