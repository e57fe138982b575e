package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Vault.Asset != "GAS" {
		t.Errorf("asset = %s, want GAS", cfg.Vault.Asset)
	}
	if cfg.Vault.InvestmentRatioBps != 9000 {
		t.Errorf("ratio = %d, want 9000", cfg.Vault.InvestmentRatioBps)
	}
	if cfg.Keeper.HarvestSchedule != "@hourly" {
		t.Errorf("harvest schedule = %s, want @hourly", cfg.Keeper.HarvestSchedule)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("VAULT_ASSET", "NEO")
	t.Setenv("VAULT_REBALANCE_INTERVAL", "30m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Vault.Asset != "NEO" {
		t.Errorf("asset = %s, want NEO", cfg.Vault.Asset)
	}
	if cfg.Vault.RebalanceInterval != 30*time.Minute {
		t.Errorf("interval = %s, want 30m", cfg.Vault.RebalanceInterval)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("origins = %v, want 2 entries", cfg.CORSOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "99999")
	if _, err := Load(); err == nil {
		t.Error("out-of-range port should fail")
	}
	t.Setenv("SERVER_PORT", "8080")

	t.Setenv("VAULT_INVESTMENT_RATIO_BPS", "20000")
	if _, err := Load(); err == nil {
		t.Error("ratio above denominator should fail")
	}
}
