package keeper

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/fund_layer/internal/adapters/sim"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/app/storage/memory"
	"github.com/R3E-Network/fund_layer/internal/vault"
)

func newFundService(t *testing.T) (*fundsvc.Service, *sim.Adapter) {
	t.Helper()
	store := memory.New()
	svc, err := fundsvc.New(fundsvc.Config{
		Vault:        vault.New(vault.Config{Asset: "GAS"}),
		Transactions: store,
		Positions:    store,
		Reservations: store,
		Adapters:     store,
	})
	if err != nil {
		t.Fatalf("new fund service: %v", err)
	}
	strategy, err := sim.New(sim.Config{ID: "flamingo-sim", APYBps: 500})
	if err != nil {
		t.Fatalf("new sim adapter: %v", err)
	}
	if err := svc.AddAdapter(context.Background(), strategy, 10000); err != nil {
		t.Fatalf("add adapter: %v", err)
	}
	return svc, strategy
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("nil fund service should be rejected")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	svc, _ := newFundService(t)
	k, err := New(svc, Config{HarvestSchedule: "not a schedule"})
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	if err := k.Start(context.Background()); err == nil {
		t.Error("invalid cron expression should fail Start")
	}
}

func TestManualHarvestRun(t *testing.T) {
	svc, strategy := newFundService(t)
	ctx := context.Background()
	if _, err := svc.Deposit(ctx, "alice", 1000, true); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	strategy.AccrueRewards(55)

	k, err := New(svc, Config{})
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	if err := k.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = k.Stop(stopCtx)
	}()

	k.RunHarvestNow()
	if got := svc.Vault().TotalRewardsHarvested(); got != 55 {
		t.Errorf("harvested = %d, want 55", got)
	}
}

func TestManualRebalanceRun(t *testing.T) {
	svc, _ := newFundService(t)
	ctx := context.Background()
	if _, err := svc.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	k, err := New(svc, Config{})
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	if err := k.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = k.Stop(stopCtx)
	}()

	k.RunRebalanceNow()
	if got := svc.Vault().IdleBalance(); got != 0 {
		t.Errorf("idle after rebalance = %d, want 0 (all deployed)", got)
	}
}
