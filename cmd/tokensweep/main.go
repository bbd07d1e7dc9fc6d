// Command tokensweep runs one proactive refresh sweep over soon-to-expire
// CRM credentials and exits. It is meant to be invoked on a fixed schedule
// (cron, systemd timer). Exit status 0 means the sweep ran, even if
// individual records failed to refresh (those are logged); non-zero means the
// sweep could not run at all.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	crmadapter "github.com/thoomar/attendance-timeoff-sub000/internal/adapter/driven/crm"
	sqliteadapter "github.com/thoomar/attendance-timeoff-sub000/internal/adapter/driven/sqlite"
	"github.com/thoomar/attendance-timeoff-sub000/internal/application"
	"github.com/thoomar/attendance-timeoff-sub000/internal/config"
)

func main() {
	windowMinutes := flag.Int("window", 60, "refresh credentials expiring within this many minutes")
	flag.Parse()

	if err := run(*windowMinutes); err != nil {
		slog.Error("sweep aborted", "error", err)
		os.Exit(1)
	}
}

func run(windowMinutes int) error {
	if windowMinutes <= 0 {
		return fmt.Errorf("window must be positive, got %d", windowMinutes)
	}
	window := time.Duration(windowMinutes) * time.Minute

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCRM(); err != nil {
		return err
	}

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	crmClient, err := crmadapter.NewClient(crmadapter.Config{
		ClientID:     cfg.CRMClientID,
		ClientSecret: cfg.CRMClientSecret,
		RedirectURL:  cfg.CRMRedirectURL,
		Scopes:       cfg.CRMScopes,
		AuthURL:      cfg.CRMAuthURL,
		TokenURL:     cfg.CRMTokenURL,
		IdentityURL:  cfg.CRMIdentityURL,
	})
	if err != nil {
		return err
	}

	credStore := sqliteadapter.NewCredentialRepo(db)
	tokenSvc := application.NewTokenService(crmClient, credStore)
	sweepSvc := application.NewSweepService(credStore, tokenSvc)

	summary, err := sweepSvc.Sweep(context.Background(), window)
	if err != nil {
		return err
	}

	slog.Info("tokensweep finished",
		"selected", summary.Selected,
		"refreshed", summary.Refreshed,
		"failures", summary.Failed,
	)

	return nil
}
