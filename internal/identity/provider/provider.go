package provider

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/finaiflow/identity/internal/identity/domain"
)

var ErrUnknownProvider = errors.New("provider: unknown provider")

// Provider abstracts one external OAuth2 identity provider.
type Provider interface {
	// Name is the stable lowercase identifier ("google", "github", "microsoft").
	Name() string

	// AuthorizationURL builds the URL the browser is redirected to. The state
	// value is minted and checked by the caller.
	AuthorizationURL(state string) string

	// ExchangeCode swaps an authorization code for a token set.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile retrieves the normalised user profile using the token.
	FetchProfile(ctx context.Context, token *oauth2.Token) (domain.ExternalProfile, error)
}

// Credentials configures one provider's OAuth2 client registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the registration is usable.
func (c Credentials) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider or ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
