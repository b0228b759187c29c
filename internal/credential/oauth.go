package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/dtroode/accessgate/internal/config"
	"github.com/dtroode/accessgate/internal/model"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserInfoURL = "https://api.github.com/user"

	maxUserInfoBytes = 1 << 20
)

// ExternalProfile is a verified identity returned by a provider.
type ExternalProfile struct {
	Provider string
	Subject  string
	Email    string
}

// Provider is a single OAuth client registration.
type Provider struct {
	Config      oauth2.Config
	UserInfoURL string
}

// OAuth exchanges authorization codes for verified external identities.
type OAuth struct {
	providers map[string]Provider
	client    *http.Client
	timeout   time.Duration
}

// NewOAuth creates an exchanger for the given providers.
func NewOAuth(providers map[string]Provider, timeout time.Duration) *OAuth {
	return &OAuth{
		providers: providers,
		client:    &http.Client{Timeout: timeout},
		timeout:   timeout,
	}
}

// ProvidersFromConfig builds provider registrations for every configured
// provider, filling in well-known endpoints where the config leaves them empty.
func ProvidersFromConfig(cfg config.OAuth) map[string]Provider {
	providers := make(map[string]Provider)
	if cfg.Google.Enabled() {
		providers[ProviderGoogle] = newProvider(cfg.Google, google.Endpoint, googleUserInfoURL, []string{"openid", "email"})
	}
	if cfg.GitHub.Enabled() {
		providers[ProviderGitHub] = newProvider(cfg.GitHub, github.Endpoint, githubUserInfoURL, []string{"read:user", "user:email"})
	}
	return providers
}

func newProvider(p config.OAuthProvider, endpoint oauth2.Endpoint, userInfoURL string, scopes []string) Provider {
	if p.AuthURL != "" {
		endpoint.AuthURL = p.AuthURL
	}
	if p.TokenURL != "" {
		endpoint.TokenURL = p.TokenURL
	}
	if p.UserInfoURL != "" {
		userInfoURL = p.UserInfoURL
	}
	if len(p.Scopes) > 0 {
		scopes = p.Scopes
	}
	return Provider{
		Config: oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		UserInfoURL: userInfoURL,
	}
}

// AuthCodeURL returns the provider consent URL carrying state.
func (o *OAuth) AuthCodeURL(provider, state string) (string, error) {
	p, ok := o.providers[provider]
	if !ok {
		return "", model.ErrUnknownProvider
	}
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange trades an authorization code for the provider's verified profile.
// Every failure wraps ErrExchangeFailed.
func (o *OAuth) Exchange(ctx context.Context, provider, code string) (ExternalProfile, error) {
	p, ok := o.providers[provider]
	if !ok {
		return ExternalProfile{}, fmt.Errorf("%w: %w", model.ErrExchangeFailed, model.ErrUnknownProvider)
	}
	if code == "" {
		return ExternalProfile{}, fmt.Errorf("%w: empty authorization code", model.ErrExchangeFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)

	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("%w: token exchange: %v", model.ErrExchangeFailed, err)
	}

	info, err := fetchUserInfo(ctx, p.Config.Client(ctx, tok), p.UserInfoURL)
	if err != nil {
		return ExternalProfile{}, fmt.Errorf("%w: %v", model.ErrExchangeFailed, err)
	}

	subject := info.subject()
	email := model.NormalizeEmail(info.Email)
	if subject == "" || email == "" {
		return ExternalProfile{}, fmt.Errorf("%w: provider returned no subject or email", model.ErrExchangeFailed)
	}
	if info.EmailVerified != nil && !*info.EmailVerified {
		return ExternalProfile{}, fmt.Errorf("%w: provider email is not verified", model.ErrExchangeFailed)
	}

	return ExternalProfile{Provider: provider, Subject: subject, Email: email}, nil
}

type userInfo struct {
	Sub           string          `json:"sub"`
	ID            json.RawMessage `json:"id"`
	Email         string          `json:"email"`
	EmailVerified *bool           `json:"email_verified"`
}

// subject prefers the OIDC "sub" claim and falls back to a numeric or string "id".
func (u userInfo) subject() string {
	if u.Sub != "" {
		return u.Sub
	}
	if len(u.ID) == 0 {
		return ""
	}
	var n int64
	if err := json.Unmarshal(u.ID, &n); err == nil {
		return strconv.FormatInt(n, 10)
	}
	var s string
	if err := json.Unmarshal(u.ID, &s); err == nil {
		return s
	}
	return ""
}

func fetchUserInfo(ctx context.Context, client *http.Client, url string) (userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return userInfo{}, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return userInfo{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return userInfo{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes)).Decode(&info); err != nil {
		return userInfo{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return info, nil
}
