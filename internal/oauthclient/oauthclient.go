// Package oauthclient redeems an OAuth2 authorization code for a provider
// subject identifier. It is shared by the TEE-mediated Variant A exchange
// (internal/tee) and the host-mediated Variant B exchange
// (internal/engine/oauthengine); only who calls it and what callers must
// prove before calling it differs between the two variants.
package oauthclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/R3E-Network/dauth-gateway/infrastructure/httputil"
	"github.com/R3E-Network/dauth-gateway/infrastructure/resilience"
)

// Provider identifies a supported OAuth2 identity provider.
type Provider string

const (
	Google Provider = "google"
	GitHub Provider = "github"
)

// ParseProvider validates an oauth_type string against the closed provider set.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(raw)) {
	case Google:
		return Google, true
	case GitHub:
		return GitHub, true
	default:
		return "", false
	}
}

// Credentials holds the client id/secret pair for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Config maps providers to credentials, read once at startup (from config.Config
// in production, or sealed into the TEE bridge's in-process state for Variant A).
type Config map[Provider]Credentials

// Redeemer exchanges an authorization code for the provider's subject id.
type Redeemer struct {
	httpClient *http.Client
	config     Config
	breakers   map[Provider]*resilience.CircuitBreaker
}

const maxOAuthJSONResponseBytes = 256 << 10

// NewRedeemer builds a Redeemer with the given provider credentials. base, if
// non-nil, is copied and given a bounded timeout rather than mutated in
// place; if nil, a client with a TLS 1.2+ baseline transport is built.
//
// Each provider gets its own circuit breaker: a Google outage must not trip
// GitHub redemptions, and vice versa.
func NewRedeemer(cfg Config, base *http.Client) *Redeemer {
	if base == nil {
		base = &http.Client{Transport: httputil.DefaultTransportWithMinTLS12()}
	}
	return &Redeemer{
		httpClient: httputil.CopyHTTPClientWithTimeout(base, 15*time.Second, false),
		config:     cfg,
		breakers: map[Provider]*resilience.CircuitBreaker{
			Google: resilience.New(resilience.DefaultConfig()),
			GitHub: resilience.New(resilience.DefaultConfig()),
		},
	}
}

// Subject is the provider-qualified identity composed as "{subject}@{provider}"
// per the identity store's account attribute convention.
type Subject struct {
	ProviderSubjectID string
	Email             string
	Composed          string
}

// Redeem exchanges code for an access token and fetches the provider's
// profile, returning the composed subject. Every failure returns a non-nil
// error: an unconfigured provider, a network error, a non-2xx response
// (including a provider rejecting the code) or a malformed body. The error
// does not tell a rejected code apart from a transport failure — callers in
// both variants map any non-nil error to a provider/credential failure.
func (r *Redeemer) Redeem(ctx context.Context, provider Provider, code string) (Subject, error) {
	creds, ok := r.config[provider]
	if !ok || creds.ClientID == "" {
		return Subject{}, fmt.Errorf("oauth provider %s not configured", provider)
	}

	var subject Subject
	breaker := r.breakers[provider]
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = 2 // an authorization code is single-use; don't retry past the provider rejecting it outright

	run := func() error {
		var redeemErr error
		switch provider {
		case Google:
			subject, redeemErr = r.redeemGoogle(ctx, creds, code)
		case GitHub:
			subject, redeemErr = r.redeemGitHub(ctx, creds, code)
		default:
			redeemErr = fmt.Errorf("unsupported oauth provider %s", provider)
		}
		return redeemErr
	}

	err := resilience.Retry(ctx, retryCfg, func() error {
		if breaker == nil {
			return run()
		}
		return breaker.Execute(ctx, run)
	})
	if err != nil {
		return Subject{}, err
	}
	return subject, nil
}

func (r *Redeemer) redeemGoogle(ctx context.Context, creds Credentials, code string) (Subject, error) {
	form := url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {creds.RedirectURL},
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := r.postForm(ctx, "https://oauth2.googleapis.com/token", form, &tok); err != nil {
		return Subject{}, fmt.Errorf("google token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return Subject{}, fmt.Errorf("google token exchange: empty access token")
	}

	var profile struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := r.getAuthorized(ctx, "https://www.googleapis.com/oauth2/v2/userinfo", tok.AccessToken, &profile); err != nil {
		return Subject{}, fmt.Errorf("google user info: %w", err)
	}
	if profile.ID == "" {
		return Subject{}, fmt.Errorf("google user info: missing id")
	}

	return Subject{
		ProviderSubjectID: profile.ID,
		Email:             profile.Email,
		Composed:          fmt.Sprintf("%s@%s", profile.ID, Google),
	}, nil
}

func (r *Redeemer) redeemGitHub(ctx context.Context, creds Credentials, code string) (Subject, error) {
	form := url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://github.com/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return Subject{}, fmt.Errorf("github token exchange: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := r.do(req, &tok); err != nil {
		return Subject{}, fmt.Errorf("github token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return Subject{}, fmt.Errorf("github token exchange: empty access token")
	}

	var profile struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	}
	if err := r.getAuthorized(ctx, "https://api.github.com/user", tok.AccessToken, &profile); err != nil {
		return Subject{}, fmt.Errorf("github user info: %w", err)
	}
	if profile.ID == 0 {
		return Subject{}, fmt.Errorf("github user info: missing id")
	}

	email := profile.Email
	if email == "" {
		email, _ = r.githubPrimaryEmail(ctx, tok.AccessToken)
	}

	return Subject{
		ProviderSubjectID: fmt.Sprintf("%d", profile.ID),
		Email:             email,
		Composed:          fmt.Sprintf("%d@%s", profile.ID, GitHub),
	}, nil
}

func (r *Redeemer) githubPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := r.getAuthorized(ctx, "https://api.github.com/user/emails", accessToken, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", fmt.Errorf("no email on account")
}

func (r *Redeemer) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return r.do(req, out)
}

func (r *Redeemer) getAuthorized(ctx context.Context, endpoint, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	return r.do(req, out)
}

func (r *Redeemer) do(req *http.Request, out any) error {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _, _ := httputil.ReadAllWithLimit(resp.Body, 16<<10)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := httputil.ReadAllStrict(resp.Body, maxOAuthJSONResponseBytes)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}
