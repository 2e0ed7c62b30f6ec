// Package passkey implements WebAuthn registration and login ceremonies.
package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// SessionKind describes the WebAuthn session purpose.
type SessionKind string

const (
	SessionKindRegistration SessionKind = "registration"
	SessionKindLogin        SessionKind = "login"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"GAJWA_ACCOUNT_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Gajwa Account"`
	RPID          string        `env:"GAJWA_ACCOUNT_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"GAJWA_ACCOUNT_WEBAUTHN_RP_ORIGINS"      envSeparator:","`
	SessionTTL    time.Duration `env:"GAJWA_ACCOUNT_WEBAUTHN_SESSION_TTL"     envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName: "Gajwa Account",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:8086"},
			SessionTTL:    5 * time.Minute,
		}
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{"http://localhost:8086"}
	}
	return cfg
}
