package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/finaiflow/identity/internal/identity/domain"
)

const githubAPIBaseURL = "https://api.github.com"

// GitHub authenticates against github.com OAuth. GitHub does not always
// expose an email on the /user resource, so the verified primary email is
// fetched separately when needed.
type GitHub struct {
	config  *oauth2.Config
	baseURL string
}

func NewGitHub(creds Credentials) *GitHub {
	return &GitHub{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		baseURL: githubAPIBaseURL,
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthorizationURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *GitHub) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(ctx, code)
}

func (g *GitHub) FetchProfile(ctx context.Context, token *oauth2.Token) (domain.ExternalProfile, error) {
	client := g.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/user", nil)
	if err != nil {
		return domain.ExternalProfile{}, err
	}

	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := doProviderRequest(client, req, &user); err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("github user: %w", err)
	}

	profile := domain.ExternalProfile{
		Provider:  g.Name(),
		SubjectID: strconv.FormatInt(user.ID, 10),
		Email:     user.Email,
		Name:      user.Name,
	}
	if profile.Name == "" {
		profile.Name = user.Login
	}

	if profile.Email == "" {
		email, verified, err := g.fetchPrimaryEmail(ctx, client)
		if err != nil {
			return domain.ExternalProfile{}, err
		}
		profile.Email = email
		profile.EmailVerified = verified
	} else {
		// An email on the public profile has been through GitHub's own
		// verification flow.
		profile.EmailVerified = true
	}

	return profile, nil
}

func (g *GitHub) fetchPrimaryEmail(ctx context.Context, client *http.Client) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/user/emails", nil)
	if err != nil {
		return "", false, err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := doProviderRequest(client, req, &emails); err != nil {
		return "", false, fmt.Errorf("github emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	return "", false, nil
}
