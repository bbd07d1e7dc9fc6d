package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

// SweepService proactively refreshes credentials before they expire. It is
// driven by an external scheduler (the tokensweep binary); overlapping sweeps
// are the scheduler's problem, not self-serialized here.
type SweepService struct {
	creds  driven.CredentialStore
	tokens *TokenService
}

// NewSweepService creates a SweepService with all required dependencies.
func NewSweepService(creds driven.CredentialStore, tokens *TokenService) *SweepService {
	return &SweepService{
		creds:  creds,
		tokens: tokens,
	}
}

// SweepSummary reports what one sweep did.
type SweepSummary struct {
	Selected  int
	Refreshed int
	Failed    int
	Duration  time.Duration
}

// Sweep refreshes every non-revoked credential expiring within window,
// serially. Anything that makes one refresh attempt fail -- a provider
// rejection, a transport timeout, a record revoked since selection -- is
// logged for that record and the batch continues; the record keeps its old
// tokens and stays eligible for the next sweep. Only a store failure means
// the batch as a whole cannot proceed and aborts the sweep with an error.
func (s *SweepService) Sweep(ctx context.Context, window time.Duration) (SweepSummary, error) {
	start := time.Now()

	expiring, err := s.creds.FindExpiringWithin(ctx, window)
	if err != nil {
		return SweepSummary{}, err
	}

	summary := SweepSummary{Selected: len(expiring)}

	for _, cred := range expiring {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		_, err := s.tokens.RefreshCredential(ctx, cred.ExternalAccountID, window)
		if err != nil {
			if driven.IsStoreError(err) {
				// The store itself is failing, so the remaining records
				// cannot fare better.
				return summary, err
			}
			summary.Failed++
			slog.Error("sweep refresh failed",
				"external_account", cred.ExternalAccountID,
				"app_user", cred.AppUserID,
				"expires_at", cred.ExpiresAt,
				"error", err,
			)
			continue
		}
		summary.Refreshed++
	}

	summary.Duration = time.Since(start).Round(time.Millisecond)

	slog.Info("sweep complete",
		"window", window,
		"selected", summary.Selected,
		"refreshed", summary.Refreshed,
		"failures", summary.Failed,
		"duration", summary.Duration,
	)

	return summary, nil
}

// Start runs Sweep immediately and then on the given interval until the
// context is canceled. Used by the long-running server; the tokensweep binary
// calls Sweep once instead.
func (s *SweepService) Start(ctx context.Context, interval, window time.Duration) {
	if _, err := s.Sweep(ctx, window); err != nil {
		slog.Error("initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweep service stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, window); err != nil {
				slog.Error("sweep failed", "error", err)
			}
		}
	}
}
