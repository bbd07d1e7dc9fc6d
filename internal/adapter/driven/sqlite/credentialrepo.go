package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. The external_account_id UNIQUE constraint is the upsert conflict
// target, so at most one row exists per external account regardless of how
// many times the same account re-consents.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Upsert inserts or updates a credential keyed by external account id in a
// single statement. Access token and expiry always take the new value;
// refresh token, token type, scope, and api domain keep the stored value when
// the new value is empty (providers may legitimately omit them on refresh).
// Revoked is cleared unconditionally, so re-consent reactivates a
// disconnected account.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) error {
	const query = `
		INSERT INTO crm_credentials (
			app_user_id, external_account_id, access_token, refresh_token,
			token_type, scope, api_domain, expires_at, revoked, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(external_account_id) DO UPDATE SET
			app_user_id = excluded.app_user_id,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token = ''
				THEN crm_credentials.refresh_token ELSE excluded.refresh_token END,
			token_type = CASE WHEN excluded.token_type = ''
				THEN crm_credentials.token_type ELSE excluded.token_type END,
			scope = CASE WHEN excluded.scope = ''
				THEN crm_credentials.scope ELSE excluded.scope END,
			api_domain = CASE WHEN excluded.api_domain = ''
				THEN crm_credentials.api_domain ELSE excluded.api_domain END,
			expires_at = excluded.expires_at,
			revoked = 0,
			updated_at = excluded.updated_at
	`

	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		cred.AppUserID, cred.ExternalAccountID, cred.AccessToken, cred.RefreshToken,
		cred.TokenType, cred.Scope, cred.APIDomain,
		formatTime(cred.ExpiresAt), formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert credential for account %q: %w", cred.ExternalAccountID, err)
	}

	return nil
}

// GetActiveByAppUser returns the most recently updated non-revoked credential
// for the given application user. Returns nil, nil if none exists.
func (r *CredentialRepo) GetActiveByAppUser(ctx context.Context, appUserID string) (*model.Credential, error) {
	const query = `
		SELECT id, app_user_id, external_account_id, access_token, refresh_token,
		       token_type, scope, api_domain, expires_at, revoked, updated_at
		FROM crm_credentials
		WHERE app_user_id = ? AND revoked = 0
		ORDER BY updated_at DESC
		LIMIT 1
	`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, appUserID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for user %q: %w", appUserID, err)
	}

	return cred, nil
}

// GetActiveByExternalID returns the non-revoked credential for the given
// external account. Returns nil, nil if none exists.
func (r *CredentialRepo) GetActiveByExternalID(ctx context.Context, externalAccountID string) (*model.Credential, error) {
	const query = `
		SELECT id, app_user_id, external_account_id, access_token, refresh_token,
		       token_type, scope, api_domain, expires_at, revoked, updated_at
		FROM crm_credentials
		WHERE external_account_id = ? AND revoked = 0
	`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, externalAccountID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for account %q: %w", externalAccountID, err)
	}

	return cred, nil
}

// FindExpiringWithin returns all non-revoked credentials whose expiry falls
// at or before now+window, ordered by soonest expiry first.
func (r *CredentialRepo) FindExpiringWithin(ctx context.Context, window time.Duration) ([]model.Credential, error) {
	const query = `
		SELECT id, app_user_id, external_account_id, access_token, refresh_token,
		       token_type, scope, api_domain, expires_at, revoked, updated_at
		FROM crm_credentials
		WHERE revoked = 0 AND expires_at <= ?
		ORDER BY expires_at
	`

	cutoff := formatTime(time.Now().Add(window))
	rows, err := r.db.Reader.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find expiring credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	if creds == nil {
		creds = []model.Credential{}
	}

	return creds, nil
}

// Revoke marks the credential for the given external account as revoked.
// Revoking an account with no stored credential is a no-op.
func (r *CredentialRepo) Revoke(ctx context.Context, externalAccountID string) error {
	const query = `UPDATE crm_credentials SET revoked = 1, updated_at = ? WHERE external_account_id = ?`

	_, err := r.db.Writer.ExecContext(ctx, query, formatTime(time.Now()), externalAccountID)
	if err != nil {
		return fmt.Errorf("revoke credential for account %q: %w", externalAccountID, err)
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*model.Credential, error) {
	var cred model.Credential
	var revoked int
	var expiresAt, updatedAt string

	if err := s.Scan(
		&cred.ID, &cred.AppUserID, &cred.ExternalAccountID,
		&cred.AccessToken, &cred.RefreshToken,
		&cred.TokenType, &cred.Scope, &cred.APIDomain,
		&expiresAt, &revoked, &updatedAt,
	); err != nil {
		return nil, err
	}

	cred.Revoked = revoked != 0

	var err error
	cred.ExpiresAt, err = parseTime(expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &cred, nil
}
