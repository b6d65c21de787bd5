package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds all configuration for the admin gate.
type Config struct {
	// AdminLogins is a comma separated list of user:password pairs. A password
	// starting with "$2" is treated as a bcrypt hash.
	AdminLogins string `env:"ADMIN_LOGINS" envDefault:""`

	// JWT Configuration. Bearer tokens are only accepted when a secret is set.
	JWTSecretKey   string        `env:"JWT_SECRET_KEY" envDefault:""`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"metadata-service"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`

	// Rate limit for admin endpoints, per client address
	AdminRateLimit  int           `env:"ADMIN_RATE_LIMIT" envDefault:"60"`
	AdminRateWindow time.Duration `env:"ADMIN_RATE_WINDOW" envDefault:"1m"`

	AllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
}

// Login is one parsed ADMIN_LOGINS entry
type Login struct {
	Username string
	Password string
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load auth configuration from environment: " + err.Error())
	}
	if _, err := cfg.Logins(); err != nil {
		return nil, err
	}
	if cfg.JWTSecretKey != "" && cfg.AccessTokenTTL <= 0 {
		return nil, errors.New("access token TTL must be positive")
	}
	return cfg, nil
}

// Logins parses AdminLogins. Empty entries are skipped; the password may
// itself contain ':'.
func (c *Config) Logins() ([]Login, error) {
	var out []Login
	for _, entry := range strings.Split(c.AdminLogins, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		user, pass, ok := strings.Cut(entry, ":")
		if !ok || user == "" {
			return nil, errors.New("ADMIN_LOGINS entries must look like user:password")
		}
		out = append(out, Login{Username: user, Password: pass})
	}
	return out, nil
}

// TokensEnabled reports whether bearer tokens can be issued and verified
func (c *Config) TokensEnabled() bool {
	return c.JWTSecretKey != ""
}
