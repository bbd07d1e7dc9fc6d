package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/model"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

func sweepCredential(store *memCredStore, appUserID, externalID string, expiresAt time.Time) {
	_ = store.Upsert(context.Background(), model.Credential{
		AppUserID:         appUserID,
		ExternalAccountID: externalID,
		AccessToken:       "AT-" + externalID,
		RefreshToken:      "RT-" + externalID,
		TokenType:         "Bearer",
		Scope:             "crm.read",
		APIDomain:         "https://api.example.com",
		ExpiresAt:         expiresAt,
		UpdatedAt:         time.Now(),
	})
}

func TestSweep_RefreshesExpiringCredentials(t *testing.T) {
	store := newMemCredStore()
	now := time.Now()
	sweepCredential(store, "alice@example.com", "acct-1", now.Add(10*time.Minute))
	sweepCredential(store, "bob@example.com", "acct-2", now.Add(20*time.Minute))
	sweepCredential(store, "carol@example.com", "acct-3", now.Add(3*time.Hour))

	provider := &mockProvider{
		refreshFn: func(string) (*model.TokenGrant, error) {
			return &model.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}, nil
		},
	}

	tokens := NewTokenService(provider, store)
	svc := NewSweepService(store, tokens)

	summary, err := svc.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Refreshed)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, "AT-new", store.get("acct-1").AccessToken)
	assert.Equal(t, "AT-new", store.get("acct-2").AccessToken)
	assert.Equal(t, "AT-acct-3", store.get("acct-3").AccessToken, "credentials outside the window stay untouched")
}

func TestSweep_ContinuesPastIndividualFailures(t *testing.T) {
	store := newMemCredStore()
	now := time.Now()
	sweepCredential(store, "alice@example.com", "acct-1", now.Add(10*time.Minute))
	sweepCredential(store, "bob@example.com", "acct-2", now.Add(20*time.Minute))
	sweepCredential(store, "carol@example.com", "acct-3", now.Add(30*time.Minute))

	provider := &mockProvider{
		refreshFn: func(refreshToken string) (*model.TokenGrant, error) {
			if refreshToken == "RT-acct-2" {
				return nil, &driven.ProviderError{Op: "refresh", StatusCode: 400, Body: "invalid_token"}
			}
			return &model.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}, nil
		},
	}

	tokens := NewTokenService(provider, store)
	svc := NewSweepService(store, tokens)

	summary, err := svc.Sweep(context.Background(), time.Hour)
	require.NoError(t, err, "individual refresh failures must not abort the sweep")

	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, 2, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)

	assert.Equal(t, "AT-new", store.get("acct-1").AccessToken)
	assert.Equal(t, "AT-acct-2", store.get("acct-2").AccessToken, "failed record keeps its old tokens")
	assert.False(t, store.get("acct-2").Revoked)
	assert.Equal(t, "AT-new", store.get("acct-3").AccessToken)
}

func TestSweep_ContinuesPastTransportFailures(t *testing.T) {
	store := newMemCredStore()
	now := time.Now()
	sweepCredential(store, "alice@example.com", "acct-1", now.Add(10*time.Minute))
	sweepCredential(store, "bob@example.com", "acct-2", now.Add(20*time.Minute))
	sweepCredential(store, "carol@example.com", "acct-3", now.Add(30*time.Minute))

	// A timeout reaching the token endpoint surfaces as a plain wrapped
	// error, not a provider rejection. It still only fails that record.
	provider := &mockProvider{
		refreshFn: func(refreshToken string) (*model.TokenGrant, error) {
			if refreshToken == "RT-acct-2" {
				return nil, fmt.Errorf("crm refresh: %w", errors.New("dial tcp: i/o timeout"))
			}
			return &model.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}, nil
		},
	}

	tokens := NewTokenService(provider, store)
	svc := NewSweepService(store, tokens)

	summary, err := svc.Sweep(context.Background(), time.Hour)
	require.NoError(t, err, "a transport failure must not abort the sweep")

	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, 2, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "AT-new", store.get("acct-1").AccessToken)
	assert.Equal(t, "AT-acct-2", store.get("acct-2").AccessToken)
	assert.Equal(t, "AT-new", store.get("acct-3").AccessToken, "records after the failure are still attempted")
}

func TestSweep_ContinuesPastRecordRevokedMidSweep(t *testing.T) {
	store := newMemCredStore()
	now := time.Now()
	sweepCredential(store, "alice@example.com", "acct-1", now.Add(10*time.Minute))
	sweepCredential(store, "bob@example.com", "acct-2", now.Add(20*time.Minute))
	sweepCredential(store, "carol@example.com", "acct-3", now.Add(30*time.Minute))

	// Revoking acct-2 while acct-1 refreshes makes its later re-read miss.
	provider := &mockProvider{
		refreshFn: func(refreshToken string) (*model.TokenGrant, error) {
			if refreshToken == "RT-acct-1" {
				_ = store.Revoke(context.Background(), "acct-2")
			}
			return &model.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}, nil
		},
	}

	tokens := NewTokenService(provider, store)
	svc := NewSweepService(store, tokens)

	summary, err := svc.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, 2, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "AT-new", store.get("acct-3").AccessToken)
}

func TestSweep_StoreReadFailureAborts(t *testing.T) {
	store := newMemCredStore()
	store.failRead = errors.New("database unreachable")

	tokens := NewTokenService(&mockProvider{}, store)
	svc := NewSweepService(store, tokens)

	_, err := svc.Sweep(context.Background(), time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestSweep_StoreWriteFailureAborts(t *testing.T) {
	store := newMemCredStore()
	now := time.Now()
	sweepCredential(store, "alice@example.com", "acct-1", now.Add(10*time.Minute))
	sweepCredential(store, "bob@example.com", "acct-2", now.Add(20*time.Minute))
	store.failUpsert = errors.New("disk full")

	provider := &mockProvider{
		refreshFn: func(string) (*model.TokenGrant, error) {
			return &model.TokenGrant{AccessToken: "AT-new", ExpiresIn: 3600}, nil
		},
	}

	tokens := NewTokenService(provider, store)
	svc := NewSweepService(store, tokens)

	summary, err := svc.Sweep(context.Background(), time.Hour)
	require.Error(t, err)
	assert.True(t, driven.IsStoreError(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, summary.Refreshed)
}

func TestSweep_NothingExpiring(t *testing.T) {
	store := newMemCredStore()
	sweepCredential(store, "alice@example.com", "acct-1", time.Now().Add(12*time.Hour))

	provider := &mockProvider{}
	tokens := NewTokenService(provider, store)
	svc := NewSweepService(store, tokens)

	summary, err := svc.Sweep(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, summary.Selected)
	assert.Zero(t, provider.refreshCount())
}
