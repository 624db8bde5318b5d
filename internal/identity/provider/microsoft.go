package provider

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/finaiflow/identity/internal/identity/domain"
)

const microsoftGraphMeURL = "https://graph.microsoft.com/v1.0/me"

// Microsoft authenticates against the Azure AD common tenant and reads the
// profile from Microsoft Graph.
type Microsoft struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewMicrosoft(creds Credentials) *Microsoft {
	return &Microsoft{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURL,
			Endpoint:     endpoints.AzureAD("common"),
			Scopes:       []string{"openid", "email", "profile", "User.Read"},
		},
		userInfoURL: microsoftGraphMeURL,
	}
}

func (m *Microsoft) Name() string { return "microsoft" }

func (m *Microsoft) AuthorizationURL(state string) string {
	return m.config.AuthCodeURL(state)
}

func (m *Microsoft) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.config.Exchange(ctx, code)
}

func (m *Microsoft) FetchProfile(ctx context.Context, token *oauth2.Token) (domain.ExternalProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userInfoURL, nil)
	if err != nil {
		return domain.ExternalProfile{}, err
	}

	var payload struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := doProviderRequest(m.config.Client(ctx, token), req, &payload); err != nil {
		return domain.ExternalProfile{}, fmt.Errorf("microsoft graph me: %w", err)
	}

	email := payload.Mail
	if email == "" {
		// Personal accounts surface the address as the UPN.
		email = payload.UserPrincipalName
	}

	return domain.ExternalProfile{
		Provider:      m.Name(),
		SubjectID:     payload.ID,
		Email:         email,
		EmailVerified: email != "",
		Name:          payload.DisplayName,
	}, nil
}
