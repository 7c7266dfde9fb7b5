// Package session owns the authentication session lifecycle for the MyChefAI
// client: provider login negotiation, backend token exchange, persisted
// session restoration and logout. The Manager is the single authority over the
// session; UI layers observe it read-only and mutate it only through Login,
// Logout and RestoreSession.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mychefai/go-chef-client/provider"
	"github.com/mychefai/go-chef-client/token"
	"github.com/mychefai/go-chef-client/users"
)

// Status is the tagged state of the session lifecycle.
type Status string

const (
	StatusRestoring       Status = "restoring"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
)

const (
	defaultExchangeTimeout = 15 * time.Second
	loginFailedMessage     = "Login failed"
)

// Session is a read-only snapshot of the current authentication state.
// Token and User are both set or both empty.
type Session struct {
	Status   Status
	Provider string // provider being negotiated while Status is authenticating
	Token    string
	User     *users.User
}

// Exchanger trades a provider access token for a backend session token and
// user profile. Implemented by api.Client.
type Exchanger interface {
	ExchangeToken(ctx context.Context, providerID, accessToken string) (sessionToken string, user *users.User, err error)
}

// Manager orchestrates the session state machine.
type Manager struct {
	store   Store
	flows   *provider.Registry
	backend Exchanger

	exchangeTimeout time.Duration
	retainFailed    bool
	notify          func(message string)
	nowTime         func() time.Time

	restoreOnce sync.Once

	lock            sync.Mutex
	session         Session
	pendingCallback string // digest of the most recently processed provider callback token
	pendingPersist  bool   // persist choice of the login awaiting its redirect callback
}

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// WithNotifier sets the user-visible failure notifier. The default logs the
// message.
func WithNotifier(notify func(message string)) ManagerOption {
	return func(m *Manager) {
		m.notify = notify
	}
}

// WithExchangeTimeout bounds the backend token exchange call.
func WithExchangeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.exchangeTimeout = d
	}
}

// WithRetainFailedCallback controls whether a provider callback token stays
// recorded after a failed backend exchange. Retaining it (the default)
// suppresses re-delivery of the same callback but also blocks a retry with an
// identical token; clearing it allows such a retry.
func WithRetainFailedCallback(retain bool) ManagerOption {
	return func(m *Manager) {
		m.retainFailed = retain
	}
}

// New initializes a Manager in the Restoring state. Callers should invoke
// RestoreSession once during startup; until it settles, Loading reports true.
func New(store Store, flows *provider.Registry, backend Exchanger, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[session.New] store is required")
	}
	if flows == nil {
		return nil, errors.New("[session.New] provider registry is required")
	}
	if backend == nil {
		return nil, errors.New("[session.New] backend exchanger is required")
	}

	m := &Manager{
		store:           store,
		flows:           flows,
		backend:         backend,
		exchangeTimeout: defaultExchangeTimeout,
		retainFailed:    true,
		nowTime:         time.Now,
		session:         Session{Status: StatusRestoring},
		pendingPersist:  true,
	}
	m.notify = func(message string) {
		log.Warn().Str("message", message).Msg("login notification")
	}

	for _, opt := range options {
		opt(m)
	}

	// Redirect-shaped flows complete through an asynchronous event; route
	// those events into the callback handler.
	flows.Each(func(f provider.Flow) {
		if cf, ok := f.(provider.CallbackFlow); ok {
			cf.OnResult(m.handleProviderResult)
		}
	})

	return m, nil
}

// Current returns a snapshot of the session state.
func (m *Manager) Current() Session {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.session
}

// Loading reports whether the startup restore is still pending. UI must not
// treat the absence of a session as authoritative while this is true.
func (m *Manager) Loading() bool {
	return m.Current().Status == StatusRestoring
}

// SessionToken returns the current credential. Implements api.TokenSource so
// every outbound request is decorated uniformly.
func (m *Manager) SessionToken() (string, bool) {
	s := m.Current()
	return s.Token, s.Status == StatusAuthenticated
}

// RestoreSession recovers a persisted session. It runs at most once per
// process; storage and parse failures are treated as "no session found" and
// leave the manager Unauthenticated. Either way the Restoring state is exited.
func (m *Manager) RestoreSession(ctx context.Context) {
	m.restoreOnce.Do(func() {
		restored, err := m.readPersisted(ctx)
		if err != nil {
			if !errors.Is(err, NoPersistedSessionErr) {
				log.Warn().Err(err).Msg("session restore failed, starting logged out")
			}
			m.setUnauthenticated()
			return
		}

		m.lock.Lock()
		m.session = Session{Status: StatusAuthenticated, Token: restored.Token, User: restored.User}
		m.lock.Unlock()

		if info, err := token.Introspect(restored.Token, m.nowTime); err == nil && info.Expired {
			log.Warn().Time("expired_at", info.ExpiresAt).Msg("restored session token is past its expiry")
		}
		log.Info().Str("user", restored.User.DisplayName()).Msg("session restored")
	})
}

func (m *Manager) readPersisted(ctx context.Context) (Session, error) {
	sessionToken, found, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.readPersisted] read token")
	}
	if !found || sessionToken == "" {
		return Session{}, NoPersistedSessionErr
	}

	userJSON, found, err := m.store.Get(ctx, UserKey)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.readPersisted] read user")
	}
	if !found || userJSON == "" {
		return Session{}, NoPersistedSessionErr
	}

	user, err := users.Decode([]byte(userJSON))
	if err != nil {
		return Session{}, errors.Wrap(err, "[Manager.readPersisted] decode user")
	}
	return Session{Token: sessionToken, User: user}, nil
}

// Login initiates authentication with the given provider. For direct-exchange
// flows the returned bool is the authentication outcome; for redirect flows it
// only reports that the external UI was launched, and the outcome arrives via
// the provider callback. Cancellations and provider failures resolve false.
func (m *Manager) Login(ctx context.Context, providerID string, persist bool) bool {
	flow, err := m.flows.Get(providerID)
	if err != nil {
		log.Error().Err(err).Str("provider", providerID).Msg("login with unknown provider")
		return false
	}

	m.lock.Lock()
	m.session = Session{Status: StatusAuthenticating, Provider: providerID}
	m.pendingPersist = persist
	m.lock.Unlock()

	launch, err := flow.Start(ctx)
	if err != nil {
		if errors.Is(err, provider.LoginCancelledErr) {
			log.Info().Str("provider", providerID).Msg("login cancelled")
		} else {
			log.Error().Err(err).Str("provider", providerID).Msg("provider flow failed")
		}
		m.setUnauthenticated()
		return false
	}

	if launch.AccessToken != "" {
		// Direct-exchange shape: complete the backend exchange inline.
		return m.exchangeWithBackend(ctx, providerID, launch.AccessToken, persist)
	}

	return launch.Launched
}

// handleProviderResult consumes completion events from redirect flows.
func (m *Manager) handleProviderResult(result provider.Result) {
	switch result.Type {
	case provider.ResultSuccess:
		m.HandleProviderCallback(context.Background(), result.Provider, result.AccessToken)
	case provider.ResultCancel:
		log.Info().Str("provider", result.Provider).Msg("login cancelled")
		m.abortAuthenticating(result.Provider)
	default:
		log.Error().Err(result.Err).Str("provider", result.Provider).Msg("provider flow failed")
		m.abortAuthenticating(result.Provider)
		m.notify(loginFailedMessage)
	}
}

// HandleProviderCallback processes a provider callback token. The host layer
// may re-deliver the same completion event; a token already recorded is
// ignored so each distinct callback is exchanged with the backend at most
// once. The recorded value is overwritten as soon as the dedup check passes,
// before the exchange runs.
func (m *Manager) HandleProviderCallback(ctx context.Context, providerID, accessToken string) bool {
	digest := callbackDigest(accessToken)

	m.lock.Lock()
	if m.pendingCallback == digest {
		m.lock.Unlock()
		log.Debug().Str("provider", providerID).Msg("duplicate provider callback ignored")
		return false
	}
	m.pendingCallback = digest
	persist := m.pendingPersist
	m.lock.Unlock()

	return m.exchangeWithBackend(ctx, providerID, accessToken, persist)
}

// exchangeWithBackend trades the provider token for a session token. On
// success the session becomes Authenticated and, when persist is set, is
// written to the store. On failure the session reverts to Unauthenticated and
// a single user-visible message is surfaced; there is no automatic retry.
func (m *Manager) exchangeWithBackend(ctx context.Context, providerID, accessToken string, persist bool) bool {
	ctx, cancel := context.WithTimeout(ctx, m.exchangeTimeout)
	defer cancel()

	sessionToken, user, err := m.backend.ExchangeToken(ctx, providerID, accessToken)
	if err != nil {
		log.Error().Err(err).Str("provider", providerID).Msg("backend token exchange failed")
		if !m.retainFailed {
			m.lock.Lock()
			m.pendingCallback = ""
			m.lock.Unlock()
		}
		m.setUnauthenticated()
		m.notify(loginFailedMessage)
		return false
	}

	m.lock.Lock()
	m.session = Session{Status: StatusAuthenticated, Token: sessionToken, User: user}
	m.lock.Unlock()

	if persist {
		m.persistSession(ctx, sessionToken, user)
	}

	log.Info().Str("provider", providerID).Str("user", user.DisplayName()).Msg("login successful")
	return true
}

// persistSession writes the session to the store. Storage failures are logged
// but never undo the in-memory authenticated state.
func (m *Manager) persistSession(ctx context.Context, sessionToken string, user *users.User) {
	userJSON, err := user.Encode()
	if err != nil {
		log.Error().Err(err).Msg("session not persisted: encode user")
		return
	}
	if err := m.store.Set(ctx, TokenKey, sessionToken); err != nil {
		log.Error().Err(err).Msg("session not persisted: write token")
		return
	}
	if err := m.store.Set(ctx, UserKey, string(userJSON)); err != nil {
		log.Error().Err(err).Msg("session not persisted: write user")
	}
}

// Logout clears the persisted session and unconditionally drops the in-memory
// one. Both key removals are attempted even if one fails; there is no backend
// revocation call.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.store.Remove(ctx, TokenKey); err != nil {
		log.Warn().Err(err).Msg("logout: remove token key")
	}
	if err := m.store.Remove(ctx, UserKey); err != nil {
		log.Warn().Err(err).Msg("logout: remove user key")
	}
	m.setUnauthenticated()
	log.Info().Msg("logged out")
}

func (m *Manager) setUnauthenticated() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.session = Session{Status: StatusUnauthenticated}
}

// abortAuthenticating reverts to Unauthenticated only when a login with the
// given provider is still in flight, so a stale event cannot clobber a
// session established in the meantime.
func (m *Manager) abortAuthenticating(providerID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session.Status == StatusAuthenticating && (providerID == "" || m.session.Provider == providerID) {
		m.session = Session{Status: StatusUnauthenticated}
	}
}

func callbackDigest(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}
