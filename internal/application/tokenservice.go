// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// RefreshSafetyMargin is the buffer before actual expiry at which an access
// token is treated as needing refresh. Every provider API call routes through
// ValidAccessToken, so the margin keeps in-flight calls from racing the
// expiry clock.
const RefreshSafetyMargin = 120 * time.Second

// ErrNoCredential is returned when an application user has no active CRM
// connection; the caller should restart the consent flow.
var ErrNoCredential = errors.New("no active crm credential for user")

// TokenService owns the CRM credential lifecycle: the consent connect flow,
// on-demand access token reads with transparent refresh, and disconnects.
type TokenService struct {
	provider driven.ProviderClient
	creds    driven.CredentialStore
	now      func() time.Time

	// accountLocks serializes the read-check-refresh-write sequence per
	// external account. Two concurrent callers near expiry must not both
	// call the refresh grant: the provider may rotate the refresh token on
	// use, which would invalidate the loser's copy.
	mu           sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewTokenService creates a TokenService with all required dependencies.
func NewTokenService(provider driven.ProviderClient, creds driven.CredentialStore) *TokenService {
	return &TokenService{
		provider:     provider,
		creds:        creds,
		now:          time.Now,
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// AuthorizeURL returns the provider redirect URL that starts the consent
// flow. state is generated and verified by the HTTP layer.
func (s *TokenService) AuthorizeURL(state string) string {
	return s.provider.AuthorizeURL(state)
}

// Connect completes the consent flow for an authorization code the provider
// redirected back with: exchange the code, resolve the external account
// identity, and persist the credential. The three steps are all-or-nothing --
// if identity resolution fails the exchange result is discarded and nothing
// is written, so a half-connected account can never exist.
func (s *TokenService) Connect(ctx context.Context, appUserID, code string) (*model.Credential, error) {
	grant, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	externalID, err := s.provider.ResolveIdentity(ctx, grant.AccessToken, grant.APIDomain)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cred := model.Credential{
		AppUserID:         appUserID,
		ExternalAccountID: externalID,
		AccessToken:       grant.AccessToken,
		RefreshToken:      grant.RefreshToken,
		TokenType:         grant.TokenType,
		Scope:             grant.Scope,
		APIDomain:         grant.APIDomain,
		ExpiresAt:         grant.ExpiryTime(now),
		UpdatedAt:         now,
	}

	// Providers that already hold a grant for this account may omit the
	// refresh token even with forced consent. Recover the stored one; a
	// first-time connect with no refresh token is unusable and rejected.
	if cred.RefreshToken == "" {
		existing, err := s.creds.GetActiveByExternalID(ctx, externalID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("exchange for account %q returned no refresh token and none is stored", externalID)
		}
		cred.RefreshToken = existing.RefreshToken
	}

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return nil, err
	}

	slog.Info("crm account connected",
		"app_user", appUserID,
		"external_account", externalID,
		"expires_at", cred.ExpiresAt,
	)

	return &cred, nil
}

// ValidAccessToken returns an access token for the user that is guaranteed
// valid for at least RefreshSafetyMargin, refreshing it first when the cached
// one is closer to expiry than that. This is the hot path in front of every
// provider API call; a comfortably valid cached token costs one store read
// and no network calls.
func (s *TokenService) ValidAccessToken(ctx context.Context, appUserID string) (string, error) {
	cred, err := s.creds.GetActiveByAppUser(ctx, appUserID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", ErrNoCredential
	}

	if !cred.NeedsRefresh(s.now(), RefreshSafetyMargin) {
		return cred.AccessToken, nil
	}

	refreshed, err := s.RefreshCredential(ctx, cred.ExternalAccountID, RefreshSafetyMargin)
	if err != nil {
		return "", err
	}

	return refreshed.AccessToken, nil
}

// RefreshCredential refreshes the credential for an external account if it
// still expires within the given margin, and persists the result. The whole
// sequence holds the account's lock: a concurrent caller blocks, then finds
// the freshly stored record and returns it without a second provider call.
// A grant that omits the refresh token carries the stored one forward.
func (s *TokenService) RefreshCredential(ctx context.Context, externalAccountID string, within time.Duration) (*model.Credential, error) {
	lock := s.accountLock(externalAccountID)
	lock.Lock()
	defer lock.Unlock()

	cred, err := s.creds.GetActiveByExternalID(ctx, externalAccountID)
	if err != nil {
		return nil, &driven.StoreError{Op: "read credential", Err: err}
	}
	if cred == nil {
		return nil, ErrNoCredential
	}

	now := s.now()
	if !cred.NeedsRefresh(now, within) {
		return cred, nil
	}

	grant, err := s.provider.RefreshGrant(ctx, cred.RefreshToken)
	if err != nil {
		// The stored record stays untouched; staleness is tolerated and
		// the next caller tries again.
		return nil, err
	}

	updated := cred.ApplyGrant(*grant, s.now())
	if err := s.creds.Upsert(ctx, updated); err != nil {
		return nil, &driven.StoreError{Op: "persist refreshed credential", Err: err}
	}

	slog.Debug("crm credential refreshed",
		"external_account", externalAccountID,
		"expires_at", updated.ExpiresAt,
	)

	return &updated, nil
}

// Connection returns the user's active credential, or nil when the user has
// no CRM connection. Used by the status endpoint.
func (s *TokenService) Connection(ctx context.Context, appUserID string) (*model.Credential, error) {
	return s.creds.GetActiveByAppUser(ctx, appUserID)
}

// Disconnect revokes the user's CRM connection. The record stays in the
// store flagged revoked; re-consent for the same external account reactivates
// it with fresh tokens.
func (s *TokenService) Disconnect(ctx context.Context, appUserID string) error {
	cred, err := s.creds.GetActiveByAppUser(ctx, appUserID)
	if err != nil {
		return err
	}
	if cred == nil {
		return ErrNoCredential
	}

	if err := s.creds.Revoke(ctx, cred.ExternalAccountID); err != nil {
		return err
	}

	slog.Info("crm account disconnected",
		"app_user", appUserID,
		"external_account", cred.ExternalAccountID,
	)

	return nil
}

// accountLock returns the mutex for an external account, creating it on
// first use. Locks are never removed; the map grows with the number of
// connected accounts, which is bounded by the employee count.
func (s *TokenService) accountLock(externalAccountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.accountLocks[externalAccountID]
	if !ok {
		lock = &sync.Mutex{}
		s.accountLocks[externalAccountID] = lock
	}
	return lock
}
