package model

import "time"

// Credential holds the OAuth2 tokens issued by the CRM provider for one
// external account. ExternalAccountID is the provider-assigned stable
// identifier and the natural key for upserts; AppUserID is the local user
// the credential is bound to.
type Credential struct {
	ID                int64
	AppUserID         string
	ExternalAccountID string
	AccessToken       string
	RefreshToken      string
	TokenType         string
	Scope             string
	APIDomain         string
	ExpiresAt         time.Time
	Revoked           bool
	UpdatedAt         time.Time
}

// NeedsRefresh reports whether the access token expires within margin of now.
// A credential at or past its expiry also reports true.
func (c *Credential) NeedsRefresh(now time.Time, margin time.Duration) bool {
	return !c.ExpiresAt.After(now.Add(margin))
}

// ApplyGrant returns a copy of the credential updated from a token-endpoint
// response. Fields the provider may omit on refresh (refresh token, scope,
// token type, API domain) keep their stored values when the grant leaves
// them empty.
func (c *Credential) ApplyGrant(grant TokenGrant, now time.Time) Credential {
	updated := *c
	updated.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		updated.RefreshToken = grant.RefreshToken
	}
	if grant.TokenType != "" {
		updated.TokenType = grant.TokenType
	}
	if grant.Scope != "" {
		updated.Scope = grant.Scope
	}
	if grant.APIDomain != "" {
		updated.APIDomain = grant.APIDomain
	}
	updated.ExpiresAt = grant.ExpiryTime(now)
	updated.Revoked = false
	updated.UpdatedAt = now
	return updated
}
