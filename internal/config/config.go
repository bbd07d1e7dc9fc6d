// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	SweepWindow   time.Duration
	ApproverEmail string

	// CRM OAuth2 client settings.
	CRMClientID     string
	CRMClientSecret string
	CRMRedirectURL  string
	CRMScopes       []string
	CRMAuthURL      string
	CRMTokenURL     string
	CRMIdentityURL  string

	// SMTP settings. Notifications are disabled when SMTPAddr is empty.
	SMTPAddr string
	SMTPFrom string
}

// Load reads configuration from environment variables and returns a Config.
// Optional variables with defaults: TIMEOFFD_LISTEN_ADDR (127.0.0.1:8080),
// TIMEOFFD_DB_PATH (timeoffd.db), TIMEOFFD_SWEEP_WINDOW (1h). The CRM OAuth
// variables are read here but validated separately via ValidateCRM, so
// binaries that never touch the provider can start without a full OAuth setup.
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("TIMEOFFD_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "timeoffd.db"
	if v, ok := os.LookupEnv("TIMEOFFD_DB_PATH"); ok {
		dbPath = v
	}

	sweepWindow := time.Hour
	if v, ok := os.LookupEnv("TIMEOFFD_SWEEP_WINDOW"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("TIMEOFFD_SWEEP_WINDOW has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("TIMEOFFD_SWEEP_WINDOW must be positive, got %q", v)
		}
		sweepWindow = parsed
	}

	var scopes []string
	if v := os.Getenv("TIMEOFFD_CRM_SCOPES"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				scopes = append(scopes, s)
			}
		}
	}

	return &Config{
		ListenAddr:      listenAddr,
		DBPath:          dbPath,
		SweepWindow:     sweepWindow,
		ApproverEmail:   os.Getenv("TIMEOFFD_APPROVER_EMAIL"),
		CRMClientID:     os.Getenv("TIMEOFFD_CRM_CLIENT_ID"),
		CRMClientSecret: os.Getenv("TIMEOFFD_CRM_CLIENT_SECRET"),
		CRMRedirectURL:  os.Getenv("TIMEOFFD_CRM_REDIRECT_URL"),
		CRMScopes:       scopes,
		CRMAuthURL:      os.Getenv("TIMEOFFD_CRM_AUTH_URL"),
		CRMTokenURL:     os.Getenv("TIMEOFFD_CRM_TOKEN_URL"),
		CRMIdentityURL:  os.Getenv("TIMEOFFD_CRM_IDENTITY_URL"),
		SMTPAddr:        os.Getenv("TIMEOFFD_SMTP_ADDR"),
		SMTPFrom:        os.Getenv("TIMEOFFD_SMTP_FROM"),
	}, nil
}

// ValidateCRM checks that every setting the OAuth flow depends on is present.
// Called at startup so a partial OAuth setup fails immediately instead of
// surfacing mid-flow on the first consent redirect.
func (c *Config) ValidateCRM() error {
	var missing []string
	for _, field := range []struct {
		name, value string
	}{
		{"TIMEOFFD_CRM_CLIENT_ID", c.CRMClientID},
		{"TIMEOFFD_CRM_CLIENT_SECRET", c.CRMClientSecret},
		{"TIMEOFFD_CRM_REDIRECT_URL", c.CRMRedirectURL},
		{"TIMEOFFD_CRM_AUTH_URL", c.CRMAuthURL},
		{"TIMEOFFD_CRM_TOKEN_URL", c.CRMTokenURL},
		{"TIMEOFFD_CRM_IDENTITY_URL", c.CRMIdentityURL},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(c.CRMScopes) == 0 {
		missing = append(missing, "TIMEOFFD_CRM_SCOPES")
	}

	if len(missing) > 0 {
		return fmt.Errorf("incomplete CRM OAuth configuration: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
