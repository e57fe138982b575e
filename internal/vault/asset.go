package vault

import (
	"github.com/R3E-Network/fund_layer/internal/errors"
)

// AssetLedger tracks the idle underlying balance held directly by the pool,
// i.e. funds not currently pushed into any adapter.
type AssetLedger struct {
	idle int64
}

// NewAssetLedger creates an empty asset ledger.
func NewAssetLedger() *AssetLedger {
	return &AssetLedger{}
}

// Idle returns the idle underlying balance.
func (l *AssetLedger) Idle() int64 {
	return l.idle
}

// Credit adds amount to the idle balance.
func (l *AssetLedger) Credit(amount int64) error {
	if amount < 0 {
		return errors.Validation("credit amount must not be negative: %d", amount)
	}
	l.idle += amount
	return nil
}

// Debit removes amount from the idle balance.
func (l *AssetLedger) Debit(amount int64) error {
	if amount < 0 {
		return errors.Validation("debit amount must not be negative: %d", amount)
	}
	if amount > l.idle {
		return errors.State("insufficient idle balance: idle %d, requested %d", l.idle, amount)
	}
	l.idle -= amount
	return nil
}

// DebitUpTo removes up to amount from the idle balance and returns what was
// actually debited. Used on best-effort payout paths.
func (l *AssetLedger) DebitUpTo(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	if amount > l.idle {
		amount = l.idle
	}
	l.idle -= amount
	return amount
}
