package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/R3E-Network/fund_layer/internal/config"
	"github.com/R3E-Network/fund_layer/internal/middleware"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Logging:   config.LoggingConfig{Level: "error"},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		Vault: config.VaultConfig{
			Asset:              "GAS",
			InvestmentRatioBps: 9000,
			RebalanceInterval:  time.Hour,
		},
	}
}

func TestNewWiresSimStrategiesWithoutChain(t *testing.T) {
	application, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	regs := application.Fund.Vault().Adapters()
	if len(regs) != 2 {
		t.Fatalf("adapters = %d, want 2 simulated strategies", len(regs))
	}

	minted, err := application.Fund.Deposit(context.Background(), "alice", 1000, false)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if minted != 1000 {
		t.Errorf("minted = %d, want 1000", minted)
	}
}

func TestHandlerServesWithoutAuth(t *testing.T) {
	application, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("stats status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestHandlerEnforcesAuthWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "test-secret"
	application, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated stats status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 (skip path)", rec.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "test-secret"
	application, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	auth, err := middleware.NewAuth(cfg.Auth.JWTSecret, nil, nil)
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	userToken, err := auth.IssueToken("alice", "", time.Minute)
	if err != nil {
		t.Fatalf("issue user token: %v", err)
	}
	adminToken, err := auth.IssueToken("root", middleware.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}

	send := func(token, method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		application.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	for _, path := range []string{"/ops/pause", "/ops/rebalance", "/ops/emergency-exit"} {
		if code := send(userToken, http.MethodPost, path); code != http.StatusForbidden {
			t.Errorf("non-admin POST %s = %d, want 403", path, code)
		}
	}
	if code := send(userToken, http.MethodDelete, "/adapters/flamingo-sim"); code != http.StatusForbidden {
		t.Errorf("non-admin DELETE /adapters/{id} = %d, want 403", code)
	}
	if code := send(userToken, http.MethodPost, "/reservations/deduct"); code != http.StatusForbidden {
		t.Errorf("non-admin POST /reservations/deduct = %d, want 403", code)
	}

	if code := send(adminToken, http.MethodPost, "/ops/pause"); code != http.StatusOK {
		t.Errorf("admin POST /ops/pause = %d, want 200", code)
	}
	// Reads stay open to any authenticated caller.
	if code := send(userToken, http.MethodGet, "/stats"); code != http.StatusOK {
		t.Errorf("non-admin GET /stats = %d, want 200", code)
	}
}
