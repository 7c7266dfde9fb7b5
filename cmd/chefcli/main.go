package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"golang.org/x/oauth2"

	"github.com/mychefai/go-chef-client/api"
	"github.com/mychefai/go-chef-client/internal/config"
	"github.com/mychefai/go-chef-client/provider"
	"github.com/mychefai/go-chef-client/session"
	"github.com/mychefai/go-chef-client/session/sqlitestore"
	"github.com/mychefai/go-chef-client/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlitestore.Open(filepath.Join(c.GetDataFolder(), "session.db"))
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	flows, err := buildFlows(c)
	if err != nil {
		return err
	}

	client, err := api.New(c.GetAPIBaseURL())
	if err != nil {
		return err
	}

	manager, err := session.New(store, flows, client,
		session.WithExchangeTimeout(c.GetExchangeTimeout()),
		session.WithRetainFailedCallback(c.GetRetainFailedCallback()),
		session.WithNotifier(func(message string) { fmt.Println(message) }),
	)
	if err != nil {
		return err
	}
	client.UseTokenSource(manager)

	manager.RestoreSession(ctx)

	return dispatch(ctx, manager, client, c, os.Args[1:])
}

func dispatch(ctx context.Context, manager *session.Manager, client *api.Client, c config.Config, args []string) error {
	if len(args) == 0 {
		return usage(c)
	}

	switch args[0] {
	case "login":
		if len(args) < 2 {
			return errors.New("usage: chefcli login <provider> [--no-persist]")
		}
		persist := c.GetPersistByDefault()
		if len(args) > 2 && args[2] == "--no-persist" {
			persist = false
		}
		return cmdLogin(ctx, manager, args[1], persist)
	case "logout":
		manager.Logout(ctx)
		fmt.Println("Logged out.")
		return nil
	case "whoami":
		return cmdWhoami(manager)
	case "fridge":
		return cmdFridge(ctx, client)
	case "feed":
		return cmdFeed(ctx, client)
	case "chat":
		if len(args) < 2 {
			return errors.New("usage: chefcli chat <message>")
		}
		reply, err := client.Chat(ctx, args[1], nil, true)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	default:
		return usage(c)
	}
}

func cmdLogin(ctx context.Context, manager *session.Manager, providerID string, persist bool) error {
	if !manager.Login(ctx, providerID, persist) {
		return errors.New("login failed")
	}

	// Redirect flows resolve once the browser is launched; wait for the
	// callback to settle the state machine.
	for manager.Current().Status == session.StatusAuthenticating {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	s := manager.Current()
	if s.Status != session.StatusAuthenticated {
		return errors.New("login failed")
	}
	fmt.Printf("Logged in as %s\n", s.User.DisplayName())
	return nil
}

func cmdWhoami(manager *session.Manager) error {
	s := manager.Current()
	if s.Status != session.StatusAuthenticated {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("%s <%s>\n", s.User.DisplayName(), s.User.Email)
	if info, err := token.Introspect(s.Token, nil); err == nil && !info.ExpiresAt.IsZero() {
		fmt.Printf("Session expires %s\n", info.ExpiresAt.Format(time.RFC1123))
	}
	return nil
}

func cmdFridge(ctx context.Context, client *api.Client) error {
	items, err := client.FridgeItems(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Fridge is empty.")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%-20s %-10s %s\n", item.Name, item.Quantity, item.ExpiryDate)
	}
	return nil
}

func cmdFeed(ctx context.Context, client *api.Client) error {
	feed, err := client.Feed(ctx)
	if err != nil {
		return err
	}
	for _, item := range feed {
		fmt.Printf("%s by %s (%d kcal)\n", item.RecipeTitle, item.UserName, item.RecipeCalories)
	}
	return nil
}

// buildFlows turns the configured providers into login flows.
func buildFlows(c config.Config) (*provider.Registry, error) {
	var flows []provider.Flow
	for _, p := range c.GetProviders() {
		switch p.Kind {
		case "redirect":
			flow, err := provider.NewRedirectFlow(provider.RedirectConfig{
				ProviderID: p.ID,
				OAuth: &oauth2.Config{
					ClientID:     p.ClientID,
					ClientSecret: p.ClientSecret,
					Scopes:       p.Scopes,
					Endpoint: oauth2.Endpoint{
						AuthURL:  p.AuthURL,
						TokenURL: p.TokenURL,
					},
				},
				OIDCIssuer: p.OIDCIssuer,
				ListenAddr: c.GetCallbackListenAddr(),
			})
			if err != nil {
				return nil, err
			}
			flows = append(flows, flow)
		case "direct":
			envVar := p.TokenEnvVar
			flow, err := provider.NewDirectFlow(p.ID, func(ctx context.Context) (string, error) {
				// Stand-in for a native SDK: the provider token is handed to
				// the CLI through the environment.
				if t := os.Getenv(envVar); t != "" {
					return t, nil
				}
				return "", fmt.Errorf("%w: set %s", provider.FlowUnavailableErr, envVar)
			})
			if err != nil {
				return nil, err
			}
			flows = append(flows, flow)
		}
	}
	return provider.NewRegistry(flows...)
}

func usage(c config.Config) error {
	fmt.Println("usage: chefcli <login|logout|whoami|fridge|feed|chat> ...")
	fmt.Println("providers:")
	providers := c.GetProviders()
	if len(providers) == 0 {
		fmt.Println("  (none configured)")
	}
	for _, p := range providers {
		fmt.Printf("  %s (%s)\n", p.ID, p.Kind)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
