package driven

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
)

// StoreError marks a CredentialStore failure. It separates "the storage layer
// is broken" from per-credential failures raised by the provider: a bulk
// operation stops on the former and continues past the latter.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err carries a *StoreError anywhere in its chain.
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}

// CredentialStore defines the driven port for durable CRM credential storage.
// At most one non-revoked record exists per external account; the store, not
// the caller, enforces that via the upsert conflict target.
type CredentialStore interface {
	// Upsert inserts or updates the credential keyed by ExternalAccountID
	// in a single atomic storage operation. On conflict the access token
	// and expiry are overwritten unconditionally; refresh token, token type,
	// scope, and API domain fall back to the stored values when the new
	// value is empty, so a refresh response that omits them never blanks
	// them out. Revoked is always cleared and UpdatedAt bumped.
	Upsert(ctx context.Context, cred model.Credential) error

	// GetActiveByAppUser returns the most recently updated non-revoked
	// credential for the given application user. Returns (nil, nil) if none.
	GetActiveByAppUser(ctx context.Context, appUserID string) (*model.Credential, error)

	// GetActiveByExternalID returns the non-revoked credential for the given
	// external account. Returns (nil, nil) if none.
	GetActiveByExternalID(ctx context.Context, externalAccountID string) (*model.Credential, error)

	// FindExpiringWithin returns all non-revoked credentials whose expiry is
	// at or before now+window, soonest expiry first.
	FindExpiringWithin(ctx context.Context, window time.Duration) ([]model.Credential, error)

	// Revoke marks the credential for the given external account as revoked.
	// Revoking an unknown account is not an error.
	Revoke(ctx context.Context, externalAccountID string) error
}
