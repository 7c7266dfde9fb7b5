package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	defaultListenAddr      = "127.0.0.1:8910"
	defaultCallbackPath    = "/oauth/callback"
	defaultExchangeTimeout = 15 * time.Second
)

// RedirectConfig configures a web-redirect OAuth flow (e.g. Kakao).
type RedirectConfig struct {
	ProviderID   string
	OAuth        *oauth2.Config
	OIDCIssuer   string // when set, the returned id_token is verified against this issuer
	ListenAddr   string
	CallbackPath string
}

// RedirectFlow launches the provider's authorization page in an external
// browser and completes through a loopback callback listener. Start returns as
// soon as the browser has been launched; the provider access token is
// delivered later through the handler registered with OnResult.
type RedirectFlow struct {
	cfg             RedirectConfig
	autoRedirect    bool
	openURL         func(url string) error
	exchangeTimeout time.Duration

	mu          sync.Mutex
	handler     func(Result)
	state       string
	srv         *http.Server
	callbackURL string
}

// RedirectFlowOption modifies a RedirectFlow.
type RedirectFlowOption func(*RedirectFlow)

// WithBrowserOpener overrides how the authorization URL is opened (primarily
// for testing).
func WithBrowserOpener(open func(url string) error) RedirectFlowOption {
	return func(f *RedirectFlow) {
		f.openURL = open
	}
}

// WithCodeExchangeTimeout bounds the code-for-token exchange with the provider.
func WithCodeExchangeTimeout(d time.Duration) RedirectFlowOption {
	return func(f *RedirectFlow) {
		f.exchangeTimeout = d
	}
}

// NewRedirectFlow creates a redirect-based login flow.
func NewRedirectFlow(cfg RedirectConfig, options ...RedirectFlowOption) (*RedirectFlow, error) {
	if cfg.ProviderID == "" {
		return nil, errors.New("[NewRedirectFlow] provider ID is required")
	}
	if cfg.OAuth == nil {
		return nil, errors.New("[NewRedirectFlow] oauth2 config is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = defaultCallbackPath
	}
	autoRedirect := cfg.OAuth.RedirectURL == ""
	if autoRedirect {
		cfg.OAuth.RedirectURL = fmt.Sprintf("http://%s%s", cfg.ListenAddr, cfg.CallbackPath)
	}

	f := &RedirectFlow{
		cfg:             cfg,
		autoRedirect:    autoRedirect,
		openURL:         openBrowser,
		exchangeTimeout: defaultExchangeTimeout,
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

var _ CallbackFlow = (*RedirectFlow)(nil)

func (f *RedirectFlow) ID() string {
	return f.cfg.ProviderID
}

// OnResult registers the completion handler. Must be set before Start.
func (f *RedirectFlow) OnResult(handler func(Result)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

// Start opens the authorization page and begins listening for the callback.
// The returned Launch only reports whether the external UI was launched; the
// real outcome arrives via OnResult.
func (f *RedirectFlow) Start(ctx context.Context) (Launch, error) {
	f.mu.Lock()
	if f.srv != nil {
		// A previous attempt is still pending; its listener is replaced.
		prev := f.srv
		go prev.Close() //nolint:errcheck
	}
	f.state = uuid.New().String()
	state := f.state

	ln, err := net.Listen("tcp", f.cfg.ListenAddr)
	if err != nil {
		f.srv = nil
		f.mu.Unlock()
		return Launch{}, errors.Wrap(err, "[RedirectFlow.Start] callback listener")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(f.cfg.CallbackPath, f.callbackHandler)
	srv := &http.Server{Handler: mux}
	f.srv = srv
	f.callbackURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), f.cfg.CallbackPath)
	if f.autoRedirect {
		// ListenAddr may have requested an ephemeral port; the provider must
		// redirect to the port actually bound.
		f.cfg.OAuth.RedirectURL = f.callbackURL
	}
	f.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("provider", f.cfg.ProviderID).Msg("callback listener stopped")
		}
	}()

	authURL := f.cfg.OAuth.AuthCodeURL(state)
	if err := f.openURL(authURL); err != nil {
		f.shutdownListener()
		return Launch{}, errors.Wrap(err, "[RedirectFlow.Start] open authorization URL")
	}

	log.Debug().Str("provider", f.cfg.ProviderID).Msg("authorization page launched")
	return Launch{Launched: true}, nil
}

// CallbackURL returns the loopback URL the provider redirects to. Only valid
// after Start.
func (f *RedirectFlow) CallbackURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callbackURL
}

// callbackHandler processes the provider redirect. The host browser may hit
// this endpoint more than once for the same authorization (reload of the
// landing page); every hit is forwarded, duplicate suppression happens in the
// session layer.
func (f *RedirectFlow) callbackHandler(w http.ResponseWriter, r *http.Request) {
	state := r.FormValue("state")
	code := r.FormValue("code")
	errorParam := r.FormValue("error")

	if errorParam != "" {
		if errorParam == "access_denied" {
			f.finishPage(w, "Login cancelled. You can close this window.")
			f.emit(Result{Provider: f.cfg.ProviderID, Type: ResultCancel})
			return
		}
		desc := r.FormValue("error_description")
		f.finishPage(w, "Login failed. You can close this window.")
		f.emit(Result{
			Provider: f.cfg.ProviderID,
			Type:     ResultError,
			Err:      errors.Errorf("authorization failed: %s - %s", errorParam, desc),
		})
		return
	}

	f.mu.Lock()
	expectedState := f.state
	f.mu.Unlock()

	if code == "" || state == "" || state != expectedState {
		http.Error(w, "Invalid callback parameters", http.StatusBadRequest)
		f.emit(Result{Provider: f.cfg.ProviderID, Type: ResultError, Err: StateMismatchErr})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), f.exchangeTimeout)
	defer cancel()

	token, err := f.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		f.emit(Result{Provider: f.cfg.ProviderID, Type: ResultError, Err: errors.Wrap(err, "code exchange")})
		return
	}

	if f.cfg.OIDCIssuer != "" {
		if err := f.verifyIDToken(ctx, token); err != nil {
			http.Error(w, "ID token verification failed", http.StatusUnauthorized)
			f.emit(Result{Provider: f.cfg.ProviderID, Type: ResultError, Err: err})
			return
		}
	}

	f.finishPage(w, "Login complete. You can close this window.")
	f.emit(Result{Provider: f.cfg.ProviderID, Type: ResultSuccess, AccessToken: token.AccessToken})
	f.shutdownListener()
}

// verifyIDToken checks the signature and claims of the id_token for OIDC
// providers, mirroring what a confidential client would do before trusting
// the authorization result.
func (f *RedirectFlow) verifyIDToken(ctx context.Context, token *oauth2.Token) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return errors.New("no id_token in provider response")
	}
	oidcProvider, err := oidc.NewProvider(ctx, f.cfg.OIDCIssuer)
	if err != nil {
		return errors.Wrap(err, "discover OIDC provider")
	}
	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: f.cfg.OAuth.ClientID})
	if _, err := verifier.Verify(ctx, rawIDToken); err != nil {
		return errors.Wrap(err, "verify id_token")
	}
	return nil
}

func (f *RedirectFlow) emit(result Result) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	if handler == nil {
		log.Warn().Str("provider", f.cfg.ProviderID).Msg("provider result dropped: no handler registered")
		return
	}
	handler(result)
}

func (f *RedirectFlow) shutdownListener() {
	f.mu.Lock()
	srv := f.srv
	f.srv = nil
	f.mu.Unlock()

	if srv != nil {
		// Graceful shutdown so the in-flight callback response still flushes.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx) //nolint:errcheck
		}()
	}
}

func (f *RedirectFlow) finishPage(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", message)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(FlowUnavailableErr, err.Error())
	}
	return nil
}
