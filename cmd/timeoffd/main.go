package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	crmadapter "github.com/thoomar/attendance-timeoff-sub000/internal/adapter/driven/crm"
	"github.com/thoomar/attendance-timeoff-sub000/internal/adapter/driven/mailer"
	sqliteadapter "github.com/thoomar/attendance-timeoff-sub000/internal/adapter/driven/sqlite"
	httphandler "github.com/thoomar/attendance-timeoff-sub000/internal/adapter/driving/http"
	"github.com/thoomar/attendance-timeoff-sub000/internal/application"
	"github.com/thoomar/attendance-timeoff-sub000/internal/config"
	"github.com/thoomar/attendance-timeoff-sub000/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"sweep_window", cfg.SweepWindow,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	credStore := sqliteadapter.NewCredentialRepo(db)
	timeOffStore := sqliteadapter.NewTimeOffRepo(db)

	var notifier driven.Notifier
	if cfg.SMTPAddr != "" {
		notifier = mailer.NewMailer(cfg.SMTPAddr, cfg.SMTPFrom)
		slog.Info("smtp notifier created", "addr", cfg.SMTPAddr)
	} else {
		slog.Info("no smtp relay configured, notifications disabled")
	}

	// 6. Create the CRM provider client. The integration is optional at
	// startup but a partial OAuth setup is rejected outright.
	var (
		provider driven.ProviderClient
		tokenSvc *application.TokenService
		sweepSvc *application.SweepService
	)
	if cfg.CRMClientID != "" || cfg.CRMClientSecret != "" {
		if err := cfg.ValidateCRM(); err != nil {
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
		provider = crmClient
		tokenSvc = application.NewTokenService(provider, credStore)
		sweepSvc = application.NewSweepService(credStore, tokenSvc)
		slog.Info("crm client created")
	} else {
		slog.Info("no crm credentials configured, integration endpoints disabled")
	}

	// 7. Create services and start the in-process sweep loop.
	timeOffSvc := application.NewTimeOffService(timeOffStore, notifier, provider, tokenSvc, cfg.ApproverEmail)
	if sweepSvc != nil {
		go sweepSvc.Start(ctx, cfg.SweepWindow, cfg.SweepWindow)
	}

	// 8. Create HTTP handler and server.
	handler := httphandler.NewHandler(tokenSvc, timeOffSvc, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(handler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("timeoffd started", "listen_addr", cfg.ListenAddr)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
