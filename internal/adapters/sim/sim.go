// Package sim provides an in-process yield strategy used for local
// development and deterministic tests. Yield never accrues on its own; it is
// injected explicitly, so balances only move when the caller moves them.
package sim

import (
	"context"
	"math/big"
	"sync"

	"github.com/R3E-Network/fund_layer/internal/errors"
)

// Config configures a simulated strategy.
type Config struct {
	ID     string
	APYBps int64
}

// Adapter is a simulated yield strategy. Shares price against held assets
// like a real strategy: the first deposit mints 1:1, later deposits mint at
// the prevailing assets-per-share rate.
type Adapter struct {
	mu      sync.Mutex
	id      string
	apyBps  int64
	assets  int64
	shares  int64
	pending int64
	active  bool
}

// New creates a simulated strategy.
func New(cfg Config) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, errors.Validation("adapter id required")
	}
	if cfg.APYBps < 0 {
		return nil, errors.Validation("APY cannot be negative")
	}
	return &Adapter{id: cfg.ID, apyBps: cfg.APYBps, active: true}, nil
}

func (a *Adapter) ID() string { return a.id }

func (a *Adapter) Deposit(_ context.Context, amount int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return 0, errors.State("strategy %s is not accepting deposits", a.id)
	}
	if amount <= 0 {
		return 0, errors.Validation("deposit amount must be positive")
	}
	minted := amount
	if a.shares > 0 {
		minted = mulDiv(amount, a.shares, a.assets)
	}
	if minted <= 0 {
		return 0, errors.State("deposit of %d mints no shares", amount)
	}
	a.assets += amount
	a.shares += minted
	return minted, nil
}

func (a *Adapter) Withdraw(_ context.Context, shares int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if shares <= 0 {
		return 0, errors.Validation("share amount must be positive")
	}
	if shares > a.shares {
		return 0, errors.State("redeem %d exceeds held shares %d", shares, a.shares)
	}
	amount := mulDiv(shares, a.assets, a.shares)
	a.assets -= amount
	a.shares -= shares
	return amount, nil
}

func (a *Adapter) Harvest(_ context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rewards := a.pending
	a.pending = 0
	return rewards, nil
}

func (a *Adapter) EmergencyExit(_ context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	amount := a.assets + a.pending
	a.assets = 0
	a.shares = 0
	a.pending = 0
	a.active = false
	return amount, nil
}

func (a *Adapter) TotalAssets(_ context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.assets, nil
}

func (a *Adapter) TotalShares(_ context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shares, nil
}

func (a *Adapter) ConvertToShares(_ context.Context, amount int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shares == 0 || a.assets == 0 {
		return amount, nil
	}
	return mulDiv(amount, a.shares, a.assets), nil
}

func (a *Adapter) ConvertToAssets(_ context.Context, shares int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shares == 0 {
		return shares, nil
	}
	return mulDiv(shares, a.assets, a.shares), nil
}

func (a *Adapter) APY(_ context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apyBps, nil
}

func (a *Adapter) PendingRewards(_ context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending, nil
}

func (a *Adapter) IsActive(_ context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SetActive toggles whether the strategy accepts new deposits.
func (a *Adapter) SetActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = active
}

// AccrueYield grows held principal in place, raising the assets-per-share
// price the way a lending pool's interest accrual would.
func (a *Adapter) AccrueYield(amount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > 0 {
		a.assets += amount
	}
}

// AccrueRewards adds harvestable rewards without touching principal.
func (a *Adapter) AccrueRewards(amount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > 0 {
		a.pending += amount
	}
}

// mulDiv computes a*b/c with flooring, widening through big.Int so the
// intermediate product cannot overflow.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	out := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	out.Quo(out, big.NewInt(c))
	return out.Int64()
}
