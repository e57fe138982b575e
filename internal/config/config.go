// Package config loads the application configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/fund_layer/internal/errors"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds the optional Postgres connection. An empty DSN keeps
// the application on the in-memory stores.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string
	JSON  bool
}

// AuthConfig holds API authentication settings. An empty secret disables
// authentication; only acceptable for local development.
type AuthConfig struct {
	JWTSecret string
}

// RateLimitConfig holds per-caller throttling settings.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// ChainConfig holds Neo N3 RPC settings.
type ChainConfig struct {
	RPCURL    string
	NetworkID uint32
	Account   string
}

// VaultConfig holds pool parameters.
type VaultConfig struct {
	Asset              string
	MinInvestment      int64
	InvestmentRatioBps int64
	RebalanceInterval  time.Duration
	IdleBalance        int64
}

// KeeperConfig holds maintenance schedules in cron syntax.
type KeeperConfig struct {
	HarvestSchedule   string
	RebalanceSchedule string
}

// Config is the full application configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Chain       ChainConfig
	Vault       VaultConfig
	Keeper      KeeperConfig
	CORSOrigins []string
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         envStr("SERVER_HOST", "0.0.0.0"),
			Port:         envInt("SERVER_PORT", 8080),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             envStr("DATABASE_DSN", ""),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Logging: LoggingConfig{
			Level: envStr("LOG_LEVEL", "info"),
			JSON:  envBool("LOG_JSON", true),
		},
		Auth: AuthConfig{
			JWTSecret: envStr("JWT_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envInt("RATE_LIMIT_RPS", 20),
			Burst:             envInt("RATE_LIMIT_BURST", 40),
		},
		Chain: ChainConfig{
			RPCURL:    envStr("NEO_RPC_URL", ""),
			NetworkID: uint32(envInt("NEO_NETWORK_ID", 860833102)),
			Account:   envStr("NEO_ACCOUNT_HASH", ""),
		},
		Vault: VaultConfig{
			Asset:              envStr("VAULT_ASSET", "GAS"),
			MinInvestment:      envInt64("VAULT_MIN_INVESTMENT", 0),
			InvestmentRatioBps: envInt64("VAULT_INVESTMENT_RATIO_BPS", 9000),
			RebalanceInterval:  envDuration("VAULT_REBALANCE_INTERVAL", time.Hour),
			IdleBalance:        envInt64("VAULT_IDLE_BALANCE", 0),
		},
		Keeper: KeeperConfig{
			HarvestSchedule:   envStr("KEEPER_HARVEST_SCHEDULE", "@hourly"),
			RebalanceSchedule: envStr("KEEPER_REBALANCE_SCHEDULE", "@daily"),
		},
		CORSOrigins: envList("CORS_ORIGINS"),
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, errors.Validation("SERVER_PORT out of range: %d", cfg.Server.Port)
	}
	if cfg.Vault.InvestmentRatioBps <= 0 || cfg.Vault.InvestmentRatioBps > 10000 {
		return nil, errors.Validation("VAULT_INVESTMENT_RATIO_BPS out of range: %d", cfg.Vault.InvestmentRatioBps)
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		return nil, errors.Validation("rate limit values must be positive")
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
