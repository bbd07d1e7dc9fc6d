// Package crm implements the ProviderClient port against the CRM provider's
// OAuth2 and REST endpoints.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProviderClient = (*Client)(nil)

// identityFields lists the JSON keys the identity endpoint has historically
// used for the stable account id, in preference order.
var identityFields = []string{"account_id", "user_id", "id", "sub", "ZUID"}

const (
	// maxResponseBody bounds how much of any provider response is read.
	// Identity payloads and token grants with JWT access tokens run well
	// past a few KB, so the bound is generous.
	maxResponseBody = 1 << 20

	// maxErrorBody caps how much of a provider error response is carried
	// in a ProviderError.
	maxErrorBody = 2048
)

// truncateBody bounds a response body destined for a ProviderError.
func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}

// Config holds the static provider settings. All fields are required.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	IdentityURL  string
}

// Client implements the driven.ProviderClient port. A single instance is
// constructed at startup and shared; all methods are safe for concurrent use.
// Token-endpoint calls pass through a client-side rate limiter so a sweep
// over many credentials cannot trip the provider's request quota.
type Client struct {
	oauth       *oauth2.Config
	identityURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient validates cfg and creates a Client. Missing configuration is a
// construction-time error so a partial setup fails before any flow starts.
func NewClient(cfg Config) (*Client, error) {
	var missing []string
	for _, field := range []struct {
		name, value string
	}{
		{"client id", cfg.ClientID},
		{"client secret", cfg.ClientSecret},
		{"redirect url", cfg.RedirectURL},
		{"auth url", cfg.AuthURL},
		{"token url", cfg.TokenURL},
		{"identity url", cfg.IdentityURL},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(cfg.Scopes) == 0 {
		missing = append(missing, "scopes")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("crm client config missing %s", strings.Join(missing, ", "))
	}

	if _, err := url.Parse(cfg.IdentityURL); err != nil {
		return nil, fmt.Errorf("crm identity url: %w", err)
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		identityURL: cfg.IdentityURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// AuthorizeURL builds the consent redirect URL. access_type=offline and
// prompt=consent force the provider to issue a refresh token even when the
// account has authorized before.
func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode exchanges an authorization code for a token grant. A non-2xx
// response surfaces as *driven.ProviderError and is not retried: codes are
// single-use and expire within minutes, so a retry can never succeed.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*model.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.oauth.ClientID)
	form.Set("client_secret", c.oauth.ClientSecret)
	form.Set("redirect_uri", c.oauth.RedirectURL)
	form.Set("code", code)

	return c.tokenCall(ctx, "exchange", form)
}

// RefreshGrant obtains a new access token from a refresh token. Like
// ExchangeCode, provider rejections surface unretried; the caller decides
// whether staleness is tolerable.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*model.TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.oauth.ClientID)
	form.Set("client_secret", c.oauth.ClientSecret)
	form.Set("refresh_token", refreshToken)

	return c.tokenCall(ctx, "refresh", form)
}

// tokenGrantWire is the provider's token-endpoint response. Only access_token
// is guaranteed; the rest default to their zero values when absent.
type tokenGrantWire struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	APIDomain    string `json:"api_domain"`
	ExpiresIn    int64  `json:"expires_in"`
}

// tokenCall POSTs a form to the token endpoint and normalizes the response.
// The token endpoint is hand-called rather than driven through
// oauth2.Config.Exchange because the provider returns the non-standard
// api_domain field and callers need the raw status and body on rejection.
func (c *Client) tokenCall(ctx context.Context, op string, form url.Values) (*model.TokenGrant, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("crm %s: rate limiter: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("crm %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("crm %s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &driven.ProviderError{Op: op, StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	var wire tokenGrantWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &driven.ProviderError{Op: op, StatusCode: resp.StatusCode, Body: "unparseable token response: " + truncateBody(body)}
	}
	if wire.AccessToken == "" {
		return nil, &driven.ProviderError{Op: op, StatusCode: resp.StatusCode, Body: "token response missing access_token"}
	}

	return &model.TokenGrant{
		AccessToken:  wire.AccessToken,
		RefreshToken: wire.RefreshToken,
		TokenType:    wire.TokenType,
		Scope:        wire.Scope,
		APIDomain:    wire.APIDomain,
		ExpiresIn:    wire.ExpiresIn,
	}, nil
}

// ResolveIdentity calls the identity endpoint with the access token and
// returns the stable external account id. The payload has carried the id
// under several field names over provider API revisions; the first one
// present wins. A payload with none of them is a provider error the caller
// handles by restarting consent.
func (c *Client) ResolveIdentity(ctx context.Context, accessToken, apiDomainHint string) (string, error) {
	endpoint, err := c.resolveEndpoint(c.identityURL, apiDomainHint)
	if err != nil {
		return "", fmt.Errorf("crm identity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("crm identity: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("crm identity: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("crm identity: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &driven.ProviderError{Op: "identity", StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &driven.ProviderError{Op: "identity", StatusCode: resp.StatusCode, Body: "unparseable identity response: " + truncateBody(body)}
	}

	for _, field := range identityFields {
		raw, ok := payload[field]
		if !ok {
			continue
		}
		if id := decodeIdentityValue(raw); id != "" {
			return id, nil
		}
	}

	return "", &driven.ProviderError{Op: "identity", StatusCode: resp.StatusCode, Body: "identity response carries no account id field"}
}

// decodeIdentityValue extracts an id that may be encoded as a JSON string or
// number.
func decodeIdentityValue(raw json.RawMessage) string {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}

	return ""
}

// absenceWire is the CRM calendar-entry payload for an approved absence.
type absenceWire struct {
	Subject   string `json:"subject"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	AllDay    bool   `json:"all_day"`
}

// CreateAbsence records an approved time-off range on the account's CRM
// calendar. apiDomain, when stored at exchange time, overrides the default
// host the same way the identity call does.
func (c *Client) CreateAbsence(ctx context.Context, accessToken, apiDomain string, toReq model.TimeOffRequest) error {
	base, err := c.resolveEndpoint(c.identityURL, apiDomain)
	if err != nil {
		return fmt.Errorf("crm absence: %w", err)
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("crm absence: %w", err)
	}
	u.Path = "/crm/v2/events"

	payload, err := json.Marshal(absenceWire{
		Subject:   fmt.Sprintf("Time off (%s): %s", toReq.Type, toReq.EmployeeID),
		StartDate: toReq.StartDate.UTC().Format("2006-01-02"),
		EndDate:   toReq.EndDate.UTC().Format("2006-01-02"),
		AllDay:    true,
	})
	if err != nil {
		return fmt.Errorf("crm absence: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(string(payload)))
	if err != nil {
		return fmt.Errorf("crm absence: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crm absence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &driven.ProviderError{Op: "absence", StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}

// resolveEndpoint keeps the configured endpoint's path but swaps in the
// scheme and host of the per-tenant api domain when one is known.
func (c *Client) resolveEndpoint(configured, apiDomain string) (string, error) {
	if apiDomain == "" {
		return configured, nil
	}

	base, err := url.Parse(configured)
	if err != nil {
		return "", err
	}
	domain, err := url.Parse(apiDomain)
	if err != nil || domain.Host == "" {
		return "", fmt.Errorf("invalid api domain %q", apiDomain)
	}

	base.Scheme = domain.Scheme
	base.Host = domain.Host
	return base.String(), nil
}
