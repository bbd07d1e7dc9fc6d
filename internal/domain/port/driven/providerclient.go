package driven

import (
	"context"
	"errors"
	"fmt"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
)

// ProviderError reports a call the CRM provider rejected or answered with an
// unusable payload. Op identifies the endpoint ("exchange", "refresh",
// "identity", "absence"); Body carries the raw response body for diagnostics.
// None of these calls are retried by the caller: authorization codes are
// single-use, and refresh failures are tolerated as staleness.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("crm %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsProviderError reports whether err is (or wraps) a response-level
// rejection from the provider, as opposed to a transport or storage failure.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// ProviderClient defines the driven port for the CRM provider's OAuth2 and
// API endpoints. All calls are stateless; failures surface as *ProviderError
// when the provider answered, or as transport errors otherwise.
type ProviderClient interface {
	// AuthorizeURL builds the browser redirect URL that starts the consent
	// flow, requesting offline access and forced re-consent so a refresh
	// token is issued even on re-authorization. state is the caller-verified
	// anti-CSRF value.
	AuthorizeURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens. A grant with
	// an empty RefreshToken means the provider chose not to issue one.
	ExchangeCode(ctx context.Context, code string) (*model.TokenGrant, error)

	// RefreshGrant obtains a new access token using a refresh token. The
	// returned grant may omit RefreshToken, meaning the old one stays valid.
	RefreshGrant(ctx context.Context, refreshToken string) (*model.TokenGrant, error)

	// ResolveIdentity resolves the stable external account id behind an
	// access token, calling the identity endpoint on apiDomainHint when one
	// was returned at exchange time.
	ResolveIdentity(ctx context.Context, accessToken, apiDomainHint string) (string, error)

	// CreateAbsence records an approved time-off range as a CRM calendar
	// entry, using apiDomain when non-empty.
	CreateAbsence(ctx context.Context, accessToken, apiDomain string, req model.TimeOffRequest) error
}
