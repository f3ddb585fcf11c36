package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/todoauth/internal/flagx"
)

var knownFlags = []string{
	"-http", "-grpc", "-d", "-s", "-token-ttl", "-env", "-frontend",
	"-log-backend", "-log-level", "-rps", "-burst",
}

// KnownFlags lists the server flags, all of which take a value.
func KnownFlags() []string {
	return append([]string(nil), knownFlags...)
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-http string         HTTP bind address (e.g. ":3000")
//	-grpc string         gRPC bind address, "" disables the service
//	-d string            PostgreSQL DSN
//	-s string            token signing secret
//	-token-ttl duration  token and cookie lifetime (e.g. "168h")
//	-env string          deployment environment ("production" enables Secure cookies)
//	-frontend string     CORS origin
//	-log-backend string  slog or zap
//	-log-level string    debug, info, warn, error
//	-rps float           per-IP sign-in/sign-up rate
//	-burst int           per-IP burst
//
// Unknown arguments are filtered out first so subcommands and the -c flag
// do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP address")
	fs.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC address")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "token signing secret")
	fs.DurationVar(&cfg.TokenValidity, "token-ttl", cfg.TokenValidity, "token lifetime")
	fs.StringVar(&cfg.Environment, "env", cfg.Environment, "deployment environment")
	fs.StringVar(&cfg.FrontendURL, "frontend", cfg.FrontendURL, "frontend origin")
	fs.StringVar(&cfg.LogBackend, "log-backend", cfg.LogBackend, "log backend")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.Float64Var(&cfg.RateLimitRPS, "rps", cfg.RateLimitRPS, "per-IP requests per second")
	fs.IntVar(&cfg.RateLimitBurst, "burst", cfg.RateLimitBurst, "per-IP burst")

	return fs.Parse(flagx.FilterArgs(args, knownFlags))
}
