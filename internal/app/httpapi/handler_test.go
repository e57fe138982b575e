package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/R3E-Network/fund_layer/internal/adapters/sim"
	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
	escrowsvc "github.com/R3E-Network/fund_layer/internal/app/services/escrow"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/app/storage/memory"
	"github.com/R3E-Network/fund_layer/internal/vault"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestHandler(t *testing.T) (*Handler, *fundsvc.Service) {
	t.Helper()
	store := memory.New()
	fund, err := fundsvc.New(fundsvc.Config{
		Vault:        vault.New(vault.Config{Asset: "GAS"}),
		Transactions: store,
		Positions:    store,
		Reservations: store,
		Adapters:     store,
	})
	if err != nil {
		t.Fatalf("new fund service: %v", err)
	}
	escrow, err := escrowsvc.New(escrowsvc.Config{Fund: fund, Devices: store, Rentals: store})
	if err != nil {
		t.Fatalf("new escrow service: %v", err)
	}
	h, err := New(Config{Fund: fund, Escrow: escrow, Version: "test"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, fund
}

func doJSON(t *testing.T, h *Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &env)
	}
	return rr, env
}

func TestDepositAndBalance(t *testing.T) {
	h, _ := newTestHandler(t)

	rr, env := doJSON(t, h, http.MethodPost, "/deposits", map[string]interface{}{
		"user": "alice", "amount": 1000,
	})
	if rr.Code != http.StatusCreated || !env.Success {
		t.Fatalf("deposit status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr, env = doJSON(t, h, http.MethodGet, "/users/alice/balance", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("balance status = %d", rr.Code)
	}
	var view fundsvc.BalanceView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Shares != 1000 || view.Available != 1000 {
		t.Errorf("view = %+v, want 1000 shares fully available", view)
	}
}

func TestDepositValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rr, _ := doJSON(t, h, http.MethodPost, "/deposits", map[string]interface{}{
		"user": "", "amount": 100,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing user status = %d, want 400", rr.Code)
	}

	rr, _ = doJSON(t, h, http.MethodPost, "/deposits", map[string]interface{}{
		"user": "alice", "amount": -5,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative amount status = %d, want 400", rr.Code)
	}
}

func TestWithdrawInsufficientShares(t *testing.T) {
	h, _ := newTestHandler(t)

	rr, env := doJSON(t, h, http.MethodPost, "/withdrawals", map[string]interface{}{
		"user": "alice", "shares": 50,
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
	if env.Success || env.Error == "" {
		t.Errorf("envelope = %+v, want failure with message", env)
	}
}

func TestTransactionsLimit(t *testing.T) {
	h, fund := newTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	for i := 0; i < 3; i++ {
		if _, err := fund.Deposit(ctx, "alice", 100, false); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	rr, env := doJSON(t, h, http.MethodGet, "/users/alice/transactions?limit=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var txs []json.RawMessage
	if err := json.Unmarshal(env.Data, &txs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("len(txs) = %d, want 2", len(txs))
	}

	rr, _ = doJSON(t, h, http.MethodGet, "/users/alice/transactions?limit=oops", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestReserveAndReleaseEndpoints(t *testing.T) {
	h, fund := newTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rr, env := doJSON(t, h, http.MethodPost, "/reservations", map[string]interface{}{
		"user": "alice", "amount": 400, "reason": "hold",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reserve status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view fundsvc.BalanceView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Reserved != 400 || view.Available != 600 {
		t.Errorf("view = %+v, want reserved 400 available 600", view)
	}

	rr, _ = doJSON(t, h, http.MethodPost, "/reservations/release", map[string]interface{}{
		"user": "alice", "amount": 400, "reason": "hold",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("release status = %d", rr.Code)
	}

	// Releasing more than reserved is a state conflict.
	rr, _ = doJSON(t, h, http.MethodPost, "/reservations/release", map[string]interface{}{
		"user": "alice", "amount": 1, "reason": "hold",
	})
	if rr.Code != http.StatusConflict {
		t.Errorf("over-release status = %d, want 409", rr.Code)
	}

	rr, env = doJSON(t, h, http.MethodPost, "/reservations/deduct", map[string]interface{}{
		"user": "alice", "amount": 250, "recipient": "merchant", "reference": "invoice-7",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("deduct status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var deductOut struct {
		Deducted int64               `json:"deducted"`
		Balance  fundsvc.BalanceView `json:"balance"`
	}
	if err := json.Unmarshal(env.Data, &deductOut); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if deductOut.Deducted != 250 || deductOut.Balance.Balance != 750 {
		t.Errorf("deduct = %+v, want deducted 250 balance 750", deductOut)
	}
}

func TestAdapterAdminEndpoints(t *testing.T) {
	h, fund := newTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	strategy, err := sim.New(sim.Config{ID: "flamingo-sim", APYBps: 500})
	if err != nil {
		t.Fatalf("new sim adapter: %v", err)
	}
	if err := fund.AddAdapter(ctx, strategy, 6000); err != nil {
		t.Fatalf("add adapter: %v", err)
	}

	rr, env := doJSON(t, h, http.MethodPatch, "/adapters/flamingo-sim", map[string]interface{}{
		"weight": 4000,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var rec struct {
		ID     string `json:"id"`
		Weight int64  `json:"weight"`
	}
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Weight != 4000 {
		t.Errorf("weight = %d, want 4000", rec.Weight)
	}

	rr, _ = doJSON(t, h, http.MethodPatch, "/adapters/flamingo-sim", map[string]interface{}{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want 400", rr.Code)
	}

	rr, _ = doJSON(t, h, http.MethodDelete, "/adapters/flamingo-sim", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rr.Code)
	}

	rr, _ = doJSON(t, h, http.MethodPatch, "/adapters/missing", map[string]interface{}{"weight": 1})
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing adapter status = %d, want 404", rr.Code)
	}
}

func TestRentalLifecycleOverHTTP(t *testing.T) {
	h, fund := newTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rr, env := doJSON(t, h, http.MethodPost, "/devices", map[string]interface{}{
		"owner": "bob", "name": "rig-1", "hourly_rate": 10, "deposit_amount": 500,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register device status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var dev rental.Device
	if err := json.Unmarshal(env.Data, &dev); err != nil {
		t.Fatalf("decode device: %v", err)
	}

	rr, env = doJSON(t, h, http.MethodPost, "/rentals", map[string]interface{}{
		"device_id": dev.ID, "renter": "alice",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open rental status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var r rental.Rental
	if err := json.Unmarshal(env.Data, &r); err != nil {
		t.Fatalf("decode rental: %v", err)
	}

	rr, env = doJSON(t, h, http.MethodPost, "/rentals/"+r.ID+"/close", map[string]interface{}{
		"usage_hours": 12,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("close status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr, env = doJSON(t, h, http.MethodPost, "/rentals/"+r.ID+"/settle", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("settle status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var settled rental.Rental
	if err := json.Unmarshal(env.Data, &settled); err != nil {
		t.Fatalf("decode settled: %v", err)
	}
	if settled.Status != rental.StatusSettled || settled.Charge != 120 {
		t.Errorf("settled = %+v, want settled with charge 120", settled)
	}

	view := fund.Balance(ctx, "alice")
	if view.Balance != 880 || view.Reserved != 0 {
		t.Errorf("view = %+v, want balance 880 reserved 0", view)
	}
}

func TestHealthAndInfo(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || health.Service != "fund-layer" {
		t.Errorf("health = %+v", health)
	}

	rr = httptest.NewRecorder()
	h.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/info", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("info status = %d", rr.Code)
	}
	var info InfoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Statistics["asset"] != "GAS" {
		t.Errorf("info statistics = %+v, want asset GAS", info.Statistics)
	}
}

func TestPauseBlocksDeposits(t *testing.T) {
	h, _ := newTestHandler(t)

	rr, _ := doJSON(t, h, http.MethodPost, "/ops/pause", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rr.Code)
	}

	rr, _ = doJSON(t, h, http.MethodPost, "/deposits", map[string]interface{}{
		"user": "alice", "amount": 100,
	})
	if rr.Code == http.StatusCreated {
		t.Error("deposit should fail while paused")
	}

	rr, _ = doJSON(t, h, http.MethodPost, "/ops/unpause", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unpause status = %d", rr.Code)
	}
	rr, _ = doJSON(t, h, http.MethodPost, "/deposits", map[string]interface{}{
		"user": "alice", "amount": 100,
	})
	if rr.Code != http.StatusCreated {
		t.Errorf("deposit after unpause status = %d, want 201", rr.Code)
	}
}

func TestTuningEndpoint(t *testing.T) {
	h, fund := newTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	strategy, err := sim.New(sim.Config{ID: "flamingo-sim", APYBps: 500})
	if err != nil {
		t.Fatalf("new sim adapter: %v", err)
	}
	if err := fund.AddAdapter(ctx, strategy, 10000); err != nil {
		t.Fatalf("add adapter: %v", err)
	}
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	rr, _ := doJSON(t, h, http.MethodPatch, "/ops/tuning", map[string]interface{}{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty tuning status = %d, want 400", rr.Code)
	}

	rr, _ = doJSON(t, h, http.MethodPatch, "/ops/tuning", map[string]interface{}{
		"investment_ratio_bps": 20000,
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("out-of-range ratio status = %d, want 400", rr.Code)
	}

	rr, _ = doJSON(t, h, http.MethodPatch, "/ops/tuning", map[string]interface{}{
		"investment_ratio_bps": 5000, "min_investment": 10, "rebalance_interval_secs": 0,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("tuning status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Half the idle balance is investable after the ratio change.
	rr, env := doJSON(t, h, http.MethodPost, "/ops/invest", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("invest status = %d", rr.Code)
	}
	var invest map[string]int64
	if err := json.Unmarshal(env.Data, &invest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if invest["invested"] != 500 {
		t.Errorf("invested = %d, want 500 after ratio 5000", invest["invested"])
	}
}

func TestEmergencyExitEndpoint(t *testing.T) {
	h, fund := newTestHandler(t)
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()

	strategy, err := sim.New(sim.Config{ID: "flamingo-sim", APYBps: 500})
	if err != nil {
		t.Fatalf("new sim adapter: %v", err)
	}
	if err := fund.AddAdapter(ctx, strategy, 10000); err != nil {
		t.Fatalf("add adapter: %v", err)
	}
	if _, err := fund.Deposit(ctx, "alice", 1000, true); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Exit works while paused: that is its point.
	rr, _ := doJSON(t, h, http.MethodPost, "/ops/pause", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rr.Code)
	}

	rr, env := doJSON(t, h, http.MethodPost, "/ops/emergency-exit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("emergency exit status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var out map[string]int64
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["recovered"] != 1000 {
		t.Errorf("recovered = %d, want 1000", out["recovered"])
	}
	if idle := fund.Vault().IdleBalance(); idle != 1000 {
		t.Errorf("idle after exit = %d, want 1000", idle)
	}
}
