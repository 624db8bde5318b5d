package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/finaiflow/identity/internal/identity/domain"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Google authenticates against Google's OIDC endpoints.
type Google struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogle(creds Credentials) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthorizationURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *Google) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(ctx, code)
}

func (g *Google) FetchProfile(ctx context.Context, token *oauth2.Token) (domain.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return domain.ExternalProfile{}, err
	}

	var payload struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := doProviderRequest(g.config.Client(ctx, token), req, &payload); err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("google userinfo: %w", err)
	}

	return domain.ExternalProfile{
		Provider:      g.Name(),
		SubjectID:     payload.Sub,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Name:          payload.Name,
	}, nil
}

// doProviderRequest runs req with the token-bearing client and decodes the
// JSON body into out, treating any non-2xx status as an error.
func doProviderRequest(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
