package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const minSessionSecretLen = 32

type Config struct {
	AppPort string `envconfig:"APP_PORT" default:"8080"`
	AppEnv  string `envconfig:"APP_ENV" default:"development"`

	BankIDAPIURL    string `envconfig:"BANKID_API_URL"`
	BankIDAPIUser   string `envconfig:"BANKID_API_USER"`
	BankIDPassword  string `envconfig:"BANKID_API_PASSWORD"`
	BankIDCompanyID string `envconfig:"BANKID_COMPANY_ID"`

	SessionSecret string `envconfig:"SESSION_SECRET"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// DatabaseDSN is optional; without it completed verifications
	// are not persisted.
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// IsProduction reports whether the service runs with production
// hardening (secure cookies, rate limiting, strict config).
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks the configuration the service cannot run without.
// Production aborts startup on any violation; other environments may
// proceed degraded (the caller decides).
func (c Config) Validate() error {
	var errs []error

	if c.BankIDAPIURL == "" {
		errs = append(errs, errors.New("BANKID_API_URL is required"))
	}
	if c.BankIDAPIUser == "" {
		errs = append(errs, errors.New("BANKID_API_USER is required"))
	}
	if c.BankIDPassword == "" {
		errs = append(errs, errors.New("BANKID_API_PASSWORD is required"))
	}
	if c.BankIDCompanyID == "" {
		errs = append(errs, errors.New("BANKID_COMPANY_ID is required"))
	}
	if len(c.SessionSecret) < minSessionSecretLen {
		errs = append(errs, fmt.Errorf(
			"SESSION_SECRET must be at least %d bytes", minSessionSecretLen,
		))
	}
	if c.RedisAddr == "" && c.IsProduction() {
		errs = append(errs, errors.New("REDIS_ADDR is required in production"))
	}

	return errors.Join(errs...)
}
