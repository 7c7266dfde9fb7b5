package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/mychefai/go-chef-client/provider"
	"github.com/mychefai/go-chef-client/provider/providerfakes"
	"github.com/mychefai/go-chef-client/session"
	"github.com/mychefai/go-chef-client/session/storefakes"
	"github.com/mychefai/go-chef-client/users"
)

const (
	testKakaoProvider   = "kakao"
	testGoogleProvider  = "google"
	testProviderToken   = "provider-access-token"
	testSessionToken    = "srv1"
	testPersistedToken  = "abc"
	testPersistedUser   = `{"id":1,"name":"Kim"}`
	testExchangedUserID = 5
)

type fakeExchanger struct {
	lock  sync.Mutex
	calls int
	token string
	user  *users.User
	err   error
}

var _ session.Exchanger = (*fakeExchanger)(nil)

func (f *fakeExchanger) ExchangeToken(_ context.Context, _, _ string) (string, *users.User, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	return f.token, f.user, nil
}

func (f *fakeExchanger) exchangeCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls
}

type testFixture struct {
	store     *storefakes.FakeStore
	redirect  *providerfakes.FakeRedirectFlow
	direct    *providerfakes.FakeDirectFlow
	exchanger *fakeExchanger
	notices   []string
	manager   *session.Manager
}

func setupTestFixture(t *testing.T, options ...session.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		store:    storefakes.NewFakeStore(),
		redirect: providerfakes.NewFakeRedirectFlow(testKakaoProvider),
		direct:   providerfakes.NewFakeDirectFlow(testGoogleProvider, testProviderToken),
		exchanger: &fakeExchanger{
			token: testSessionToken,
			user:  &users.User{ID: testExchangedUserID, Name: "Lee"},
		},
	}

	registry, err := provider.NewRegistry(f.redirect, f.direct)
	require.NoError(t, err)

	options = append(options, session.WithNotifier(func(message string) {
		f.notices = append(f.notices, message)
	}))

	f.manager, err = session.New(f.store, registry, f.exchanger, options...)
	require.NoError(t, err)
	return f
}

func (f *testFixture) seedPersistedSession(t *testing.T, token, userJSON string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), session.TokenKey, token))
	require.NoError(t, f.store.Set(context.Background(), session.UserKey, userJSON))
}

func requireInvariant(t *testing.T, s session.Session) {
	t.Helper()
	require.Equal(t, s.Token == "", s.User == nil, "token and user must both be present or both absent")
}

func TestNewStartsRestoring(t *testing.T) {
	f := setupTestFixture(t)

	require.True(t, f.manager.Loading())
	require.Equal(t, session.StatusRestoring, f.manager.Current().Status)
}

func TestRestoreWithEmptyStore(t *testing.T) {
	f := setupTestFixture(t)

	f.manager.RestoreSession(context.Background())

	s := f.manager.Current()
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	require.False(t, f.manager.Loading())
	requireInvariant(t, s)
}

func TestRestoreRoundTrip(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPersistedSession(t, testPersistedToken, testPersistedUser)

	f.manager.RestoreSession(context.Background())

	s := f.manager.Current()
	require.Equal(t, session.StatusAuthenticated, s.Status)
	require.Equal(t, testPersistedToken, s.Token)
	require.NotNil(t, s.User)
	require.Equal(t, "Kim", s.User.Name)
	require.False(t, f.manager.Loading())
	requireInvariant(t, s)
}

func TestRestoreWithCorruptUserFallsBackToLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPersistedSession(t, testPersistedToken, `{not json`)

	f.manager.RestoreSession(context.Background())

	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
	require.False(t, f.manager.Loading())
}

func TestRestoreWithTokenButNoUserFallsBackToLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Set(context.Background(), session.TokenKey, testPersistedToken))

	f.manager.RestoreSession(context.Background())

	s := f.manager.Current()
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	requireInvariant(t, s)
}

func TestRestoreSwallowsStorageErrors(t *testing.T) {
	f := setupTestFixture(t)
	f.store.GetErr = errors.New("storage unavailable")

	f.manager.RestoreSession(context.Background())

	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
	require.False(t, f.manager.Loading())
}

func TestRestoreRunsAtMostOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)

	// A session appearing in storage later must not be picked up by a second
	// restore call.
	f.seedPersistedSession(t, testPersistedToken, testPersistedUser)
	f.manager.RestoreSession(context.Background())

	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
}

func TestDirectLoginSucceedsAndPersists(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())

	ok := f.manager.Login(context.Background(), testGoogleProvider, true)

	require.True(t, ok)
	s := f.manager.Current()
	require.Equal(t, session.StatusAuthenticated, s.Status)
	require.Equal(t, testSessionToken, s.Token)
	require.Equal(t, "Lee", s.User.Name)
	requireInvariant(t, s)

	stored, found, err := f.store.Get(context.Background(), session.TokenKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testSessionToken, stored)
	require.True(t, f.store.Has(session.UserKey))
}

func TestLoginPersistOptOutLeavesStoreUntouched(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())

	ok := f.manager.Login(context.Background(), testGoogleProvider, false)

	require.True(t, ok)
	require.Equal(t, session.StatusAuthenticated, f.manager.Current().Status)
	require.Zero(t, f.store.SetCalls())
	require.False(t, f.store.Has(session.TokenKey))
	require.False(t, f.store.Has(session.UserKey))
}

func TestLoginPersistOptOutKeepsPreviousPersistedSession(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPersistedSession(t, testPersistedToken, testPersistedUser)
	f.manager.RestoreSession(context.Background())
	sets := f.store.SetCalls()

	require.True(t, f.manager.Login(context.Background(), testGoogleProvider, false))

	// The earlier login's persisted session stays in place untouched.
	require.Equal(t, sets, f.store.SetCalls())
	stored, _, err := f.store.Get(context.Background(), session.TokenKey)
	require.NoError(t, err)
	require.Equal(t, testPersistedToken, stored)
}

func TestNewValidatesDependencies(t *testing.T) {
	registry, err := provider.NewRegistry()
	require.NoError(t, err)
	exchanger := &fakeExchanger{}

	_, err = session.New(nil, registry, exchanger)
	require.Error(t, err)

	_, err = session.New(storefakes.NewFakeStore(), nil, exchanger)
	require.Error(t, err)

	_, err = session.New(storefakes.NewFakeStore(), registry, nil)
	require.Error(t, err)
}

func TestLoginWithUnknownProviderFails(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())

	require.False(t, f.manager.Login(context.Background(), "naver", true))
	require.Zero(t, f.exchanger.exchangeCalls())
}

func TestLoginCancelledByUser(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	f.direct.StartErr = provider.LoginCancelledErr

	require.False(t, f.manager.Login(context.Background(), testGoogleProvider, true))
	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
	require.Zero(t, f.exchanger.exchangeCalls())
}

func TestLoginProviderFlowFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	f.direct.StartErr = errors.New("native SDK unavailable")

	require.False(t, f.manager.Login(context.Background(), testGoogleProvider, true))
	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
}

func TestRedirectLoginResolvesOnLaunch(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())

	ok := f.manager.Login(context.Background(), testKakaoProvider, true)

	require.True(t, ok)
	s := f.manager.Current()
	require.Equal(t, session.StatusAuthenticating, s.Status)
	require.Equal(t, testKakaoProvider, s.Provider)

	f.redirect.Deliver(provider.Result{Type: provider.ResultSuccess, AccessToken: testProviderToken})

	s = f.manager.Current()
	require.Equal(t, session.StatusAuthenticated, s.Status)
	require.Equal(t, testSessionToken, s.Token)
	requireInvariant(t, s)
}

func TestRedirectCancelRevertsToLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	require.True(t, f.manager.Login(context.Background(), testKakaoProvider, true))

	f.redirect.Deliver(provider.Result{Type: provider.ResultCancel})

	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
	require.Zero(t, f.exchanger.exchangeCalls())
}

func TestDuplicateCallbackExchangesAtMostOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	require.True(t, f.manager.Login(context.Background(), testKakaoProvider, true))

	result := provider.Result{Type: provider.ResultSuccess, AccessToken: testProviderToken}
	f.redirect.Deliver(result)
	f.redirect.Deliver(result)

	require.Equal(t, 1, f.exchanger.exchangeCalls())
	require.Equal(t, session.StatusAuthenticated, f.manager.Current().Status)
}

func TestDistinctCallbacksEachExchange(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	require.True(t, f.manager.Login(context.Background(), testKakaoProvider, true))

	f.redirect.Deliver(provider.Result{Type: provider.ResultSuccess, AccessToken: "first"})
	f.redirect.Deliver(provider.Result{Type: provider.ResultSuccess, AccessToken: "second"})

	require.Equal(t, 2, f.exchanger.exchangeCalls())
}

func TestFailedCallbackRetainedByDefault(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	f.exchanger.err = errors.New("network down")
	require.True(t, f.manager.Login(context.Background(), testKakaoProvider, true))

	result := provider.Result{Type: provider.ResultSuccess, AccessToken: testProviderToken}
	f.redirect.Deliver(result)
	f.redirect.Deliver(result)

	// The token stays recorded after the failed exchange, so the redelivery
	// does not trigger a second attempt.
	require.Equal(t, 1, f.exchanger.exchangeCalls())
	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
}

func TestFailedCallbackClearedWhenConfigured(t *testing.T) {
	f := setupTestFixture(t, session.WithRetainFailedCallback(false))
	f.manager.RestoreSession(context.Background())
	f.exchanger.err = errors.New("network down")
	require.True(t, f.manager.Login(context.Background(), testKakaoProvider, true))

	result := provider.Result{Type: provider.ResultSuccess, AccessToken: testProviderToken}
	f.redirect.Deliver(result)
	f.redirect.Deliver(result)

	require.Equal(t, 2, f.exchanger.exchangeCalls())
}

func TestExchangeFailureRevertsAndNotifiesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())
	f.exchanger.err = errors.New("HTTP 500")

	require.False(t, f.manager.Login(context.Background(), testGoogleProvider, true))

	s := f.manager.Current()
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	requireInvariant(t, s)
	require.Zero(t, f.store.SetCalls())
	require.Equal(t, []string{"Login failed"}, f.notices)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPersistedSession(t, testPersistedToken, testPersistedUser)
	f.manager.RestoreSession(context.Background())
	require.Equal(t, session.StatusAuthenticated, f.manager.Current().Status)

	f.manager.Logout(context.Background())

	s := f.manager.Current()
	require.Equal(t, session.StatusUnauthenticated, s.Status)
	requireInvariant(t, s)
	require.False(t, f.store.Has(session.TokenKey))
	require.False(t, f.store.Has(session.UserKey))
}

func TestLogoutAttemptsBothKeysDespiteFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.seedPersistedSession(t, testPersistedToken, testPersistedUser)
	f.manager.RestoreSession(context.Background())
	f.store.RemoveErrs = map[string]error{session.TokenKey: errors.New("disk full")}

	f.manager.Logout(context.Background())

	require.Equal(t, []string{session.TokenKey, session.UserKey}, f.store.RemoveCalls())
	require.Equal(t, session.StatusUnauthenticated, f.manager.Current().Status)
}

func TestSessionTokenSource(t *testing.T) {
	f := setupTestFixture(t)
	f.manager.RestoreSession(context.Background())

	_, ok := f.manager.SessionToken()
	require.False(t, ok)

	require.True(t, f.manager.Login(context.Background(), testGoogleProvider, false))

	got, ok := f.manager.SessionToken()
	require.True(t, ok)
	require.Equal(t, testSessionToken, got)
}

func TestExchangeTimeoutIsBounded(t *testing.T) {
	blocking := &blockingExchanger{release: make(chan struct{})}
	registry, err := provider.NewRegistry(providerfakes.NewFakeDirectFlow(testGoogleProvider, testProviderToken))
	require.NoError(t, err)
	manager, err := session.New(storefakes.NewFakeStore(), registry, blocking, session.WithExchangeTimeout(10*time.Millisecond))
	require.NoError(t, err)
	manager.RestoreSession(context.Background())

	done := make(chan bool, 1)
	go func() { done <- manager.Login(context.Background(), testGoogleProvider, false) }()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not respect the exchange timeout")
	}
	close(blocking.release)
}

type blockingExchanger struct {
	release chan struct{}
}

func (b *blockingExchanger) ExchangeToken(ctx context.Context, _, _ string) (string, *users.User, error) {
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case <-b.release:
		return "", nil, errors.New("released")
	}
}
