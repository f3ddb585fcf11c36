// Package config handles configuration for the auth server: defaults, an
// optional JSON file, environment variables and command-line flags, applied
// in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/todoauth/internal/common"
)

// FallbackSecretKey signs tokens when no secret is configured. It is public
// knowledge, so a server running with it must not be exposed.
const FallbackSecretKey = "fallback-secret-key"

// Config holds runtime settings for the auth server.
//
// Fields:
//   - HTTPAddr: bind address for the session HTTP endpoints.
//   - GRPCAddr: bind address for the token verification gRPC service; empty disables it.
//   - DatabaseDSN: PostgreSQL DSN (pgx); empty selects the in-memory credential store.
//   - SecretKey: HMAC secret for signing tokens (HS256).
//   - TokenValidity: lifetime of issued tokens and of the token cookie.
//   - Environment: "production" turns on the Secure cookie attribute.
//   - FrontendURL: origin allowed by CORS, credentials included.
//   - LogBackend / LogLevel: see logging.New.
//   - RateLimitRPS / RateLimitBurst: per-IP budget for sign-in and sign-up.
type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR"`
	GRPCAddr       string        `env:"GRPC_ADDR"`
	DatabaseDSN    string        `env:"DATABASE_URL"`
	SecretKey      string        `env:"BETTER_AUTH_SECRET"`
	TokenValidity  time.Duration `env:"TOKEN_VALIDITY"`
	Environment    string        `env:"APP_ENV"`
	FrontendURL    string        `env:"FRONTEND_URL"`
	LogBackend     string        `env:"LOG_BACKEND"`
	LogLevel       string        `env:"LOG_LEVEL"`
	RateLimitRPS   float64       `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":3000"
	c.GRPCAddr = ":50051"
	c.DatabaseDSN = ""
	c.SecretKey = ""
	c.TokenValidity = common.TokenValidity
	c.Environment = "development"
	c.FrontendURL = "http://localhost:3000"
	c.LogBackend = "slog"
	c.LogLevel = "info"
	c.RateLimitRPS = 5
	c.RateLimitBurst = 10
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// UsesFallbackSecret reports whether tokens are signed with FallbackSecretKey.
func (c *Config) UsesFallbackSecret() bool {
	return c.SecretKey == FallbackSecretKey
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config in args, then the environment, then the flags in args.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}

	if cfg.SecretKey == "" {
		cfg.SecretKey = FallbackSecretKey
	}
	if cfg.TokenValidity <= 0 {
		cfg.TokenValidity = common.TokenValidity
	}
	return cfg, nil
}
