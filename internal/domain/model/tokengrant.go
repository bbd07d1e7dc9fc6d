package model

import "time"

// TokenGrant is the normalized result of a token-endpoint call (authorization
// code exchange or refresh grant). AccessToken is the only field the provider
// is guaranteed to return; everything else may be absent and is left empty.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	APIDomain    string
	ExpiresIn    int64
}

// ExpiryTime computes the absolute expiry of the granted access token
// relative to now.
func (g TokenGrant) ExpiryTime(now time.Time) time.Time {
	return now.Add(time.Duration(g.ExpiresIn) * time.Second)
}
