// Package vault implements the fund-management core: share accounting,
// adapter registry, allocation/rebalancing, and the reservation ledger.
//
// Amounts are denominated in the underlying asset's smallest unit (int64).
// Share conversions always floor in the ledger's favor so repeated
// conversions can never create value out of rounding.
package vault

import "context"

// Adapter is the capability interface for one external yield strategy.
//
// Every operation may fail. Callers iterating over several adapters treat a
// failure as "this adapter contributed zero this round" and continue; only
// single-adapter critical paths propagate the error.
type Adapter interface {
	// ID returns the unique adapter identity.
	ID() string

	// Deposit pushes amount of underlying into the strategy and returns the
	// strategy shares minted.
	Deposit(ctx context.Context, amount int64) (shares int64, err error)

	// Withdraw redeems strategy shares and returns the underlying received.
	Withdraw(ctx context.Context, shares int64) (amount int64, err error)

	// Harvest collects accrued rewards without touching principal.
	Harvest(ctx context.Context) (rewards int64, err error)

	// EmergencyExit pulls out whatever the strategy can return. Best effort,
	// non-retryable.
	EmergencyExit(ctx context.Context) (amount int64, err error)

	// TotalAssets reports the underlying value currently held by the strategy.
	TotalAssets(ctx context.Context) (int64, error)

	// TotalShares reports the strategy shares held on behalf of the vault.
	TotalShares(ctx context.Context) (int64, error)

	// ConvertToShares converts an underlying amount to strategy shares.
	ConvertToShares(ctx context.Context, amount int64) (int64, error)

	// ConvertToAssets converts strategy shares to an underlying amount.
	ConvertToAssets(ctx context.Context, shares int64) (int64, error)

	// APY returns the strategy's current yield in basis points.
	APY(ctx context.Context) (int64, error)

	// PendingRewards returns rewards accrued but not yet harvested.
	PendingRewards(ctx context.Context) (int64, error)

	// IsActive reports whether the strategy accepts new funds.
	IsActive(ctx context.Context) bool
}
