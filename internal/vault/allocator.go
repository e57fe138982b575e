package vault

import (
	"context"
	"math/big"

	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Allocator decides how idle capital moves into and out of adapters.
//
// Every loop over adapters is best effort: a failing adapter contributes
// zero for that round and the loop continues. The achieved outcome (amount
// invested, raised, or harvested) is always returned so callers can observe
// partial results instead of having them swallowed.
type Allocator struct {
	registry *Registry
	assets   *AssetLedger
	log      *logger.Logger

	// investmentRatioBps scales how much of the idle balance is investable.
	investmentRatioBps int64
	// minInvestment is the floor below which nothing is pushed out.
	minInvestment int64
}

// NewAllocator creates an allocator over the given registry and asset ledger.
func NewAllocator(registry *Registry, assets *AssetLedger, ratioBps, minInvestment int64, log *logger.Logger) *Allocator {
	if ratioBps <= 0 || ratioBps > BpsDenominator {
		ratioBps = BpsDenominator
	}
	if log == nil {
		log = logger.NewDefault("allocator")
	}
	return &Allocator{
		registry:           registry,
		assets:             assets,
		log:                log,
		investmentRatioBps: ratioBps,
		minInvestment:      minInvestment,
	}
}

// SetInvestmentRatio updates the investable fraction of idle balance.
func (a *Allocator) SetInvestmentRatio(bps int64) {
	if bps > 0 && bps <= BpsDenominator {
		a.investmentRatioBps = bps
	}
}

// SetMinInvestment updates the minimum investable amount.
func (a *Allocator) SetMinInvestment(amount int64) {
	if amount >= 0 {
		a.minInvestment = amount
	}
}

// =============================================================================
// Distribution
// =============================================================================

// Invest distributes the investable portion of the idle balance across
// active adapters by weight. Returns the amount actually invested; adapters
// that fail are skipped and their allocation stays idle.
func (a *Allocator) Invest(ctx context.Context) int64 {
	active := a.registry.Active()
	if len(active) == 0 {
		return 0
	}

	investable := applyBps(a.assets.Idle(), a.investmentRatioBps)
	if investable < a.minInvestment || investable == 0 {
		return 0
	}

	totalWeight := a.registry.TotalActiveWeight()
	if totalWeight == 0 {
		return 0
	}

	var invested int64
	for _, reg := range active {
		allocation := mulDiv(investable, reg.Weight, totalWeight)
		if allocation == 0 {
			continue
		}
		if _, err := reg.Adapter.Deposit(ctx, allocation); err != nil {
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter deposit failed, funds stay idle")
			continue
		}
		if err := a.assets.Debit(allocation); err != nil {
			// Idle shrank mid-loop; record the push and stop distributing.
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Error("idle debit failed after adapter deposit")
			reg.creditInvested(allocation)
			invested += allocation
			break
		}
		reg.creditInvested(allocation)
		invested += allocation
	}
	return invested
}

// =============================================================================
// Shortfall withdrawal
// =============================================================================

// Divest pulls roughly shortfall underlying back from adapters, divesting
// from each in proportion to its share of the total invested principal.
// Returns the amount actually raised, which may be less than requested:
// covering the full shortfall is explicitly not guaranteed.
func (a *Allocator) Divest(ctx context.Context, shortfall int64) int64 {
	if shortfall <= 0 {
		return 0
	}

	totalInvested := a.registry.TotalInvested()
	if totalInvested == 0 {
		return 0
	}

	var raised int64
	for _, reg := range a.registry.Active() {
		if raised >= shortfall {
			break
		}
		if reg.Invested == 0 {
			continue
		}

		need := mulDiv(shortfall, reg.Invested, totalInvested)
		if remaining := shortfall - raised; need > remaining || need == 0 {
			need = remaining
		}
		// Never ask an adapter for more than its recorded principal, or a
		// floored proportion would dump the whole remainder on the
		// smallest-invested adapter.
		if need > reg.Invested {
			need = reg.Invested
		}

		shares, err := reg.Adapter.ConvertToShares(ctx, need)
		if err != nil {
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter share conversion failed, skipping")
			continue
		}
		if shares == 0 {
			continue
		}

		amount, err := reg.Adapter.Withdraw(ctx, shares)
		if err != nil {
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter withdraw failed, skipping")
			continue
		}
		reg.debitInvested(amount)
		_ = a.assets.Credit(amount)
		raised += amount
	}

	if raised < shortfall {
		a.log.WithFields(map[string]interface{}{
			"requested": shortfall,
			"raised":    raised,
		}).Warn("shortfall not fully covered by divestment")
	}
	return raised
}

// =============================================================================
// Rebalance
// =============================================================================

// Rebalance withdraws every active adapter's entire holding back to idle
// (tolerating individual failures), then re-runs the weighted distribution.
// Returns the amount recalled and the amount re-invested.
func (a *Allocator) Rebalance(ctx context.Context) (recalled, invested int64) {
	for _, reg := range a.registry.Active() {
		shares, err := reg.Adapter.TotalShares(ctx)
		if err != nil {
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter share query failed during rebalance")
			continue
		}
		if shares == 0 {
			continue
		}
		amount, err := reg.Adapter.Withdraw(ctx, shares)
		if err != nil {
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter withdraw failed during rebalance")
			continue
		}
		reg.debitInvested(amount)
		if reg.Invested != 0 {
			// Full recall: any residue is yield drift.
			reg.Invested = 0
		}
		_ = a.assets.Credit(amount)
		recalled += amount
	}

	invested = a.Invest(ctx)
	return recalled, invested
}

// =============================================================================
// Harvest
// =============================================================================

// HarvestAll collects rewards from every active adapter. Failing adapters
// are skipped; the count of failures is returned alongside the total.
func (a *Allocator) HarvestAll(ctx context.Context) (total int64, failed int) {
	for _, reg := range a.registry.Active() {
		rewards, err := reg.Adapter.Harvest(ctx)
		if err != nil {
			failed++
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter harvest failed, skipping")
			continue
		}
		total += rewards
	}
	return total, failed
}

// =============================================================================
// Emergency exit
// =============================================================================

// EmergencyExit forces one adapter to return whatever it can. The recovered
// amount is credited back to idle. Errors are returned to the caller since
// this is a single-adapter critical path.
func (a *Allocator) EmergencyExit(ctx context.Context, reg *Registration) (int64, error) {
	amount, err := reg.Adapter.EmergencyExit(ctx)
	if err != nil {
		return 0, err
	}
	reg.Invested = 0
	_ = a.assets.Credit(amount)
	return amount, nil
}

// EmergencyExitAll forces every active adapter out, tolerating per-adapter
// failures. Returns the total recovered.
func (a *Allocator) EmergencyExitAll(ctx context.Context) int64 {
	var total int64
	for _, reg := range a.registry.Active() {
		amount, err := a.EmergencyExit(ctx, reg)
		if err != nil {
			a.log.WithError(err).WithField("adapter", reg.Adapter.ID()).
				Warn("adapter emergency exit failed")
			continue
		}
		total += amount
	}
	return total
}

// =============================================================================
// Yield reporting
// =============================================================================

// WeightedAPY returns the value-weighted APY in basis points across active
// adapters, zero when nothing is deployed. Adapters whose queries fail are
// treated as zero-value, zero-yield.
func (a *Allocator) WeightedAPY(ctx context.Context) int64 {
	var totalValue int64
	weighted := new(big.Int)
	for _, reg := range a.registry.Active() {
		value, err := reg.Adapter.TotalAssets(ctx)
		if err != nil || value == 0 {
			continue
		}
		apy, err := reg.Adapter.APY(ctx)
		if err != nil {
			continue
		}
		totalValue += value
		weighted.Add(weighted, new(big.Int).Mul(big.NewInt(value), big.NewInt(apy)))
	}
	if totalValue == 0 {
		return 0
	}
	return weighted.Quo(weighted, big.NewInt(totalValue)).Int64()
}
