package oauth

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultScope is granted when an authorize request names no scope.
const DefaultScope = "profile student_id"

// Config describes the authorization server configuration.
type Config struct {
	Issuer                  string        `env:"GAJWA_ACCOUNT_OAUTH_ISSUER"`
	TokenTTL                time.Duration `env:"GAJWA_ACCOUNT_OAUTH_TOKEN_TTL"   envDefault:"1h"`
	AuthorizationCodeTTL    time.Duration `env:"GAJWA_ACCOUNT_OAUTH_CODE_TTL"    envDefault:"10m"`
	PendingAuthorizationTTL time.Duration `env:"GAJWA_ACCOUNT_OAUTH_PENDING_TTL" envDefault:"15m"`
}

// LoadConfigFromEnv loads authorization server configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			TokenTTL:                time.Hour,
			AuthorizationCodeTTL:    10 * time.Minute,
			PendingAuthorizationTTL: 15 * time.Minute,
		}
	}
	return cfg
}
