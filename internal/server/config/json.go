package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/todoauth/internal/flagx"
	"github.com/dmitrijs2005/todoauth/internal/timex"
)

// JsonConfig is the on-disk shape of the optional configuration file.
// Absent or empty fields leave the current value untouched.
type JsonConfig struct {
	HTTPAddr       string         `json:"http_addr"`
	GRPCAddr       string         `json:"grpc_addr"`
	DatabaseDSN    string         `json:"database_dsn"`
	SecretKey      string         `json:"secret_key"`
	TokenValidity  timex.Duration `json:"token_validity"`
	Environment    string         `json:"environment"`
	FrontendURL    string         `json:"frontend_url"`
	LogBackend     string         `json:"log_backend"`
	LogLevel       string         `json:"log_level"`
	RateLimitRPS   float64        `json:"rate_limit_rps"`
	RateLimitBurst int            `json:"rate_limit_burst"`
}

// parseJSON reads the file named by -c/-config, if any.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(b, c); err != nil {
		return err
	}

	setString(&cfg.HTTPAddr, c.HTTPAddr)
	setString(&cfg.GRPCAddr, c.GRPCAddr)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.SecretKey, c.SecretKey)
	if c.TokenValidity.Duration > 0 {
		cfg.TokenValidity = c.TokenValidity.Duration
	}
	setString(&cfg.Environment, c.Environment)
	setString(&cfg.FrontendURL, c.FrontendURL)
	setString(&cfg.LogBackend, c.LogBackend)
	setString(&cfg.LogLevel, c.LogLevel)
	if c.RateLimitRPS > 0 {
		cfg.RateLimitRPS = c.RateLimitRPS
	}
	if c.RateLimitBurst > 0 {
		cfg.RateLimitBurst = c.RateLimitBurst
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
