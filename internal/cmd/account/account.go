package account

import (
	"context"
	"flag"
	"strings"

	server "github.com/gajwa-dev/account/internal/services/account/app"
)

// Config holds account command configuration.
type Config struct {
	Addr string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		Addr: envOrDefault(lookup, []string{"GAJWA_ACCOUNT_HTTP_ADDR"}, "localhost:8086"),
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The account HTTP server address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the account server.
func Run(ctx context.Context, cfg Config) error {
	return server.Run(ctx, cfg.Addr)
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
