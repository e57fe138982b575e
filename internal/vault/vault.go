package vault

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Config holds vault tuning parameters.
type Config struct {
	// Asset names the underlying asset, used by the reservation ledger keys.
	Asset string
	// MinInvestment is the minimum deposit and the floor below which the
	// allocator pushes nothing out.
	MinInvestment int64
	// InvestmentRatioBps scales how much idle balance the allocator may
	// deploy. Defaults to 10000 (all of it).
	InvestmentRatioBps int64
	// RebalanceInterval gates how often Rebalance may run. Zero disables
	// the cooldown.
	RebalanceInterval time.Duration

	Logger *logger.Logger
}

// Vault owns the pool's state: the idle asset ledger, the share ledger, the
// adapter registry, the allocator, and the reservation ledger.
//
// A single mutex serializes every state-mutating entry point for the full
// duration of the call, including nested adapter calls. That replaces the
// execution-model atomicity (and reentrancy guard) the on-chain variant
// relies on.
type Vault struct {
	mu  sync.Mutex
	log *logger.Logger
	cfg Config

	assets    *AssetLedger
	registry  *Registry
	allocator *Allocator

	// Share ledger
	totalShares   int64
	totalDeposits int64
	shares        map[string]int64

	reservations *ReservationLedger

	totalRewardsHarvested int64
	lastRebalance         time.Time
	paused                bool
}

// New creates a vault with the given configuration.
func New(cfg Config) *Vault {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("vault")
	}
	if cfg.Asset == "" {
		cfg.Asset = "GAS"
	}
	if cfg.InvestmentRatioBps <= 0 || cfg.InvestmentRatioBps > BpsDenominator {
		cfg.InvestmentRatioBps = BpsDenominator
	}

	v := &Vault{
		log:      cfg.Logger,
		cfg:      cfg,
		assets:   NewAssetLedger(),
		registry: NewRegistry(),
		shares:   make(map[string]int64),
	}
	v.allocator = NewAllocator(v.registry, v.assets, cfg.InvestmentRatioBps, cfg.MinInvestment, cfg.Logger)
	v.reservations = NewReservationLedger(func(user, asset string) int64 {
		if asset != v.cfg.Asset {
			return 0
		}
		return v.balanceOfLocked(context.Background(), user)
	})
	return v
}

// Asset returns the underlying asset name.
func (v *Vault) Asset() string { return v.cfg.Asset }

// =============================================================================
// Deposit / Withdraw
// =============================================================================

// Deposit credits amount of underlying for user and mints proportional
// shares. With autoInvest set and adapters registered, idle funds are
// distributed immediately.
func (v *Vault) Deposit(ctx context.Context, user string, amount int64, autoInvest bool) (int64, error) {
	if user == "" {
		return 0, errors.Validation("user must not be empty")
	}
	if amount <= 0 {
		return 0, errors.Validation("deposit amount must be positive: %d", amount)
	}
	if amount < v.cfg.MinInvestment {
		return 0, errors.Validation("deposit below minimum: %d < %d", amount, v.cfg.MinInvestment)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return 0, errors.State("vault is paused")
	}

	// Shares are computed against pre-deposit totals.
	totalAssets := v.totalAssetsLocked(ctx)
	var minted int64
	if v.totalShares == 0 || totalAssets == 0 {
		minted = amount // bootstrap 1:1
	} else {
		minted = mulDiv(amount, v.totalShares, totalAssets)
	}
	if minted == 0 {
		return 0, errors.State("deposit too small to mint shares")
	}

	_ = v.assets.Credit(amount)
	v.shares[user] += minted
	v.totalShares += minted
	v.totalDeposits += amount

	if autoInvest && v.registry.Len() > 0 {
		invested := v.allocator.Invest(ctx)
		v.log.WithFields(map[string]interface{}{
			"user": user, "amount": amount, "shares": minted, "invested": invested,
		}).Info("deposit auto-invested")
	} else {
		v.log.WithFields(map[string]interface{}{
			"user": user, "amount": amount, "shares": minted,
		}).Info("deposit")
	}
	return minted, nil
}

// Withdraw burns shares and pays out the proportional underlying. When idle
// funds fall short, the allocator divests the shortfall from adapters; the
// payout is best effort and may come in below the share entitlement if
// adapters cannot return enough. The amount actually paid is returned.
func (v *Vault) Withdraw(ctx context.Context, user string, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, errors.Validation("share amount must be positive: %d", shares)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return 0, errors.State("vault is paused")
	}
	if held := v.shares[user]; shares > held {
		return 0, errors.State("insufficient shares: held %d, requested %d", held, shares)
	}

	// Entitlement uses pre-mutation totals.
	totalAssets := v.totalAssetsLocked(ctx)
	amount := mulDiv(shares, totalAssets, v.totalShares)

	// Withdrawals may not dip into reserved funds.
	reserved := v.reservations.Reserved(user, v.cfg.Asset)
	if reserved > 0 {
		balance := v.convertToAssetsWith(v.shares[user], totalAssets)
		if amount > balance-reserved {
			return 0, errors.State("withdrawal would breach reserved funds: reserved %d", reserved)
		}
	}

	if amount > v.assets.Idle() {
		v.allocator.Divest(ctx, amount-v.assets.Idle())
	}
	paid := v.assets.DebitUpTo(amount)

	v.shares[user] -= shares
	if v.shares[user] == 0 {
		delete(v.shares, user)
	}
	v.totalShares -= shares
	v.totalDeposits -= amount
	if v.totalDeposits < 0 {
		v.totalDeposits = 0
	}

	if paid < amount {
		v.log.WithFields(map[string]interface{}{
			"user": user, "entitled": amount, "paid": paid,
		}).Warn("withdrawal paid below entitlement")
	} else {
		v.log.WithFields(map[string]interface{}{
			"user": user, "shares": shares, "amount": paid,
		}).Info("withdrawal")
	}
	return paid, nil
}

// =============================================================================
// Valuation / share math
// =============================================================================

// TotalAssets returns idle balance plus every active adapter's reported
// assets. A failing adapter query contributes zero instead of aborting the
// aggregate.
func (v *Vault) TotalAssets(ctx context.Context) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalAssetsLocked(ctx)
}

func (v *Vault) totalAssetsLocked(ctx context.Context) int64 {
	total := v.assets.Idle()
	for _, reg := range v.registry.Active() {
		assets, err := reg.Adapter.TotalAssets(ctx)
		if err != nil {
			v.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter asset query failed, counting zero")
			continue
		}
		total += assets
	}
	return total
}

// ConvertToShares converts an underlying amount to vault shares at the
// current rate, flooring in the ledger's favor.
func (v *Vault) ConvertToShares(ctx context.Context, amount int64) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.convertToSharesLocked(ctx, amount)
}

func (v *Vault) convertToSharesLocked(ctx context.Context, amount int64) int64 {
	totalAssets := v.totalAssetsLocked(ctx)
	if v.totalShares == 0 || totalAssets == 0 {
		return amount
	}
	return mulDiv(amount, v.totalShares, totalAssets)
}

// ConvertToAssets converts vault shares to an underlying amount at the
// current rate, flooring in the ledger's favor.
func (v *Vault) ConvertToAssets(ctx context.Context, shares int64) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.convertToAssetsWith(shares, v.totalAssetsLocked(ctx))
}

func (v *Vault) convertToAssetsWith(shares, totalAssets int64) int64 {
	if v.totalShares == 0 {
		return shares
	}
	return mulDiv(shares, totalAssets, v.totalShares)
}

// SharesOf returns the user's share balance.
func (v *Vault) SharesOf(user string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.shares[user]
}

// BalanceOf returns the user's balance in underlying terms.
func (v *Vault) BalanceOf(ctx context.Context, user string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balanceOfLocked(ctx, user)
}

func (v *Vault) balanceOfLocked(ctx context.Context, user string) int64 {
	return v.convertToAssetsWith(v.shares[user], v.totalAssetsLocked(ctx))
}

// TotalShares returns the total vault shares outstanding.
func (v *Vault) TotalShares() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalShares
}

// TotalDeposits returns the net deposited principal.
func (v *Vault) TotalDeposits() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalDeposits
}

// IdleBalance returns the idle underlying balance.
func (v *Vault) IdleBalance() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.assets.Idle()
}

// TotalRewardsHarvested returns the running harvest counter.
func (v *Vault) TotalRewardsHarvested() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalRewardsHarvested
}

// =============================================================================
// Adapter administration
// =============================================================================

// AddAdapter registers an adapter with the given weight in basis points.
func (v *Vault) AddAdapter(adapter Adapter, weight int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.registry.Add(adapter, weight)
	if err == nil {
		v.log.WithFields(map[string]interface{}{
			"adapter": adapter.ID(), "weight": weight,
		}).Info("adapter registered")
	}
	return err
}

// RemoveAdapter emergency-exits the adapter's holdings (best effort) and
// soft-removes its registration.
func (v *Vault) RemoveAdapter(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	reg, err := v.registry.Get(id)
	if err != nil {
		return err
	}
	if amount, exitErr := v.allocator.EmergencyExit(ctx, reg); exitErr != nil {
		v.log.WithError(exitErr).WithField("adapter", id).
			Warn("emergency exit failed during removal, proceeding")
	} else if amount > 0 {
		v.log.WithFields(map[string]interface{}{
			"adapter": id, "recovered": amount,
		}).Info("adapter holdings recovered")
	}

	_, err = v.registry.Remove(id)
	return err
}

// SetAdapterWeight updates an adapter's allocation weight.
func (v *Vault) SetAdapterWeight(id string, weight int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.SetWeight(id, weight)
}

// SetAdapterActive toggles an adapter in or out of allocation.
func (v *Vault) SetAdapterActive(id string, active bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.SetActive(id, active)
}

// Adapters returns the registry records in registration order.
func (v *Vault) Adapters() []*Registration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.All()
}

// =============================================================================
// Allocation operations
// =============================================================================

// Invest pushes the investable idle balance into adapters by weight.
func (v *Vault) Invest(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return 0, errors.State("vault is paused")
	}
	return v.allocator.Invest(ctx), nil
}

// Rebalance recalls every adapter's holding and redistributes by current
// weights. Subject to the configured cooldown.
func (v *Vault) Rebalance(ctx context.Context) (recalled, invested int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return 0, 0, errors.State("vault is paused")
	}
	if v.cfg.RebalanceInterval > 0 && !v.lastRebalance.IsZero() {
		if since := time.Since(v.lastRebalance); since < v.cfg.RebalanceInterval {
			return 0, 0, errors.State("rebalance cooldown active: %s remaining",
				(v.cfg.RebalanceInterval - since).Round(time.Second))
		}
	}

	recalled, invested = v.allocator.Rebalance(ctx)
	v.lastRebalance = time.Now()
	v.log.WithFields(map[string]interface{}{
		"recalled": recalled, "invested": invested,
	}).Info("rebalance complete")
	return recalled, invested, nil
}

// HarvestAll collects rewards from every active adapter, tolerating
// per-adapter failures, and accumulates the running harvest counter.
func (v *Vault) HarvestAll(ctx context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return 0, errors.State("vault is paused")
	}

	total, failed := v.allocator.HarvestAll(ctx)
	v.totalRewardsHarvested += total
	if failed > 0 {
		v.log.WithFields(map[string]interface{}{
			"harvested": total, "failed_adapters": failed,
		}).Warn("harvest completed with failures")
	}
	return total, nil
}

// WeightedAPY returns the value-weighted APY in basis points.
func (v *Vault) WeightedAPY(ctx context.Context) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allocator.WeightedAPY(ctx)
}

// EmergencyExitAll forces every adapter out, best effort, and returns the
// recovered amount. Allowed while paused.
func (v *Vault) EmergencyExitAll(ctx context.Context) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allocator.EmergencyExitAll(ctx)
}

// SetInvestmentRatio tunes the investable fraction of idle balance.
func (v *Vault) SetInvestmentRatio(bps int64) error {
	if bps <= 0 || bps > BpsDenominator {
		return errors.Validation("investment ratio must be in (0, %d] bps: %d", BpsDenominator, bps)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.InvestmentRatioBps = bps
	v.allocator.SetInvestmentRatio(bps)
	return nil
}

// SetMinInvestment tunes the minimum deposit / investment floor.
func (v *Vault) SetMinInvestment(amount int64) error {
	if amount < 0 {
		return errors.Validation("minimum investment must not be negative: %d", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.MinInvestment = amount
	v.allocator.SetMinInvestment(amount)
	return nil
}

// SetRebalanceInterval tunes the rebalance cooldown. Zero disables it.
func (v *Vault) SetRebalanceInterval(d time.Duration) error {
	if d < 0 {
		return errors.Validation("rebalance interval must not be negative")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg.RebalanceInterval = d
	return nil
}

// Pause blocks all mutating pool operations. Emergency exit stays allowed.
func (v *Vault) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = true
	v.log.Warn("vault paused")
}

// Unpause re-enables pool operations.
func (v *Vault) Unpause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.paused = false
	v.log.Info("vault unpaused")
}

// Paused reports whether the vault is paused.
func (v *Vault) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// =============================================================================
// Reservations (escrow bookkeeping)
// =============================================================================

// ReserveFunds earmarks part of the user's balance without moving tokens.
func (v *Vault) ReserveFunds(user string, amount int64, reason string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return errors.State("vault is paused")
	}
	return v.reservations.Reserve(user, v.cfg.Asset, amount, reason)
}

// ReleaseFunds returns earmarked funds to the spendable balance.
func (v *Vault) ReleaseFunds(user string, amount int64, reason string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return errors.State("vault is paused")
	}
	return v.reservations.Release(user, v.cfg.Asset, amount, reason)
}

// ReservedFunds returns the user's reserved amount.
func (v *Vault) ReservedFunds(user string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reservations.Reserved(user, v.cfg.Asset)
}

// AvailableBalance returns totalBalance minus reserved, the only balance a
// user may withdraw or have deducted below.
func (v *Vault) AvailableBalance(ctx context.Context, user string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := v.balanceOfLocked(ctx, user)
	available := balance - v.reservations.Reserved(user, v.cfg.Asset)
	if available < 0 {
		return 0
	}
	return available
}

// DeductFunds burns the share equivalent of amount from the user and frees
// the underlying for payment to recipient, divesting from adapters when
// idle funds fall short. It deliberately does not release any matching
// reservation; callers sequence ReleaseFunds themselves. Returns the amount
// actually freed for the recipient.
func (v *Vault) DeductFunds(ctx context.Context, user string, amount int64, recipient string) (int64, error) {
	if amount <= 0 {
		return 0, errors.Validation("deduct amount must be positive: %d", amount)
	}
	if recipient == "" {
		return 0, errors.Validation("recipient must not be empty")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return 0, errors.State("vault is paused")
	}

	totalAssets := v.totalAssetsLocked(ctx)
	balance := v.convertToAssetsWith(v.shares[user], totalAssets)
	if amount > balance {
		return 0, errors.State("insufficient balance: balance %d, requested %d", balance, amount)
	}

	var burn int64
	if v.totalShares == 0 || totalAssets == 0 {
		burn = amount
	} else {
		burn = mulDiv(amount, v.totalShares, totalAssets)
	}
	if burn > v.shares[user] {
		burn = v.shares[user]
	}

	if amount > v.assets.Idle() {
		v.allocator.Divest(ctx, amount-v.assets.Idle())
	}
	paid := v.assets.DebitUpTo(amount)

	v.shares[user] -= burn
	if v.shares[user] == 0 {
		delete(v.shares, user)
	}
	v.totalShares -= burn
	v.totalDeposits -= amount
	if v.totalDeposits < 0 {
		v.totalDeposits = 0
	}

	// Balance shrank; trim any reservation that now exceeds it.
	v.reservations.Clamp(user, v.cfg.Asset)

	v.log.WithFields(map[string]interface{}{
		"user": user, "amount": paid, "recipient": recipient,
	}).Info("funds deducted")
	return paid, nil
}

// ReservationSnapshot exports live reservations for persistence.
func (v *Vault) ReservationSnapshot() []Reservation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reservations.Snapshot()
}

// RestoreReservations loads persisted reservations.
func (v *Vault) RestoreReservations(reservations []Reservation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reservations.Restore(reservations)
}

// Positions returns every user's share balance, for persistence.
func (v *Vault) Positions() map[string]int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]int64, len(v.shares))
	for user, s := range v.shares {
		out[user] = s
	}
	return out
}

// RestoreInvested loads persisted per-adapter principal counters after the
// adapters have been re-registered. Records for adapters no longer registered
// are skipped; without this the allocator sees zero divestable principal
// after a restart and withdrawals beyond idle pay out nothing.
func (v *Vault) RestoreInvested(invested map[string]int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, amount := range invested {
		if amount <= 0 {
			continue
		}
		if reg, ok := v.registry.byID[id]; ok {
			reg.Invested = amount
		}
	}
}

// RestorePositions loads persisted share balances and totals.
func (v *Vault) RestorePositions(positions map[string]int64, totalDeposits, idle int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shares = make(map[string]int64, len(positions))
	v.totalShares = 0
	for user, s := range positions {
		if s <= 0 {
			continue
		}
		v.shares[user] = s
		v.totalShares += s
	}
	v.totalDeposits = totalDeposits
	v.assets = NewAssetLedger()
	_ = v.assets.Credit(idle)
	v.allocator.assets = v.assets
}
