package vault

import (
	"time"

	"github.com/R3E-Network/fund_layer/internal/errors"
)

// BalanceView reports a user's total balance in an asset. The reservation
// ledger uses it to bound reservations; it never mutates the balance.
type BalanceView func(user, asset string) int64

// Reservation is an accounting-only earmark of part of a user's balance.
// No underlying tokens move; the earmark only shrinks the spendable amount.
type Reservation struct {
	User      string
	Asset     string
	Amount    int64
	Reason    string
	UpdatedAt time.Time
}

// ReservationLedger tracks per-user, per-asset reserved amounts.
//
// Invariant: reserved(user, asset) <= totalBalance(user, asset).
// Deductions of balance do NOT implicitly shrink reservations; callers are
// expected to release matching reservations in the right order. That
// decoupling is deliberate and must not be "fixed" here.
type ReservationLedger struct {
	balances BalanceView
	reserved map[resKey]*Reservation
}

type resKey struct {
	user  string
	asset string
}

// NewReservationLedger creates a ledger bound to a balance view.
func NewReservationLedger(balances BalanceView) *ReservationLedger {
	return &ReservationLedger{
		balances: balances,
		reserved: make(map[resKey]*Reservation),
	}
}

// Reserve earmarks amount of the user's asset balance.
func (l *ReservationLedger) Reserve(user, asset string, amount int64, reason string) error {
	if user == "" || asset == "" {
		return errors.Validation("user and asset must not be empty")
	}
	if amount <= 0 {
		return errors.Validation("reserve amount must be positive: %d", amount)
	}

	available := l.Available(user, asset)
	if amount > available {
		return errors.State("insufficient available balance: available %d, requested %d", available, amount)
	}

	key := resKey{user, asset}
	res, ok := l.reserved[key]
	if !ok {
		res = &Reservation{User: user, Asset: asset}
		l.reserved[key] = res
	}
	res.Amount += amount
	res.Reason = reason
	res.UpdatedAt = time.Now().UTC()
	return nil
}

// Release returns amount of reserved funds to the spendable balance.
func (l *ReservationLedger) Release(user, asset string, amount int64, reason string) error {
	if amount <= 0 {
		return errors.Validation("release amount must be positive: %d", amount)
	}

	key := resKey{user, asset}
	res, ok := l.reserved[key]
	if !ok || res.Amount == 0 {
		return errors.State("no reserved funds for %s/%s", user, asset)
	}
	if amount > res.Amount {
		return errors.State("release exceeds reserved: reserved %d, requested %d", res.Amount, amount)
	}

	res.Amount -= amount
	res.Reason = reason
	res.UpdatedAt = time.Now().UTC()
	if res.Amount == 0 {
		delete(l.reserved, key)
	}
	return nil
}

// Reserved returns the user's reserved amount in an asset.
func (l *ReservationLedger) Reserved(user, asset string) int64 {
	if res, ok := l.reserved[resKey{user, asset}]; ok {
		return res.Amount
	}
	return 0
}

// Available returns totalBalance minus reserved: the only balance a user
// may withdraw or have deducted below.
func (l *ReservationLedger) Available(user, asset string) int64 {
	available := l.balances(user, asset) - l.Reserved(user, asset)
	if available < 0 {
		return 0
	}
	return available
}

// Clamp trims the reservation down to the user's current balance. Called
// after discretionary deductions so the ledger invariant holds even when a
// caller deducted without releasing first.
func (l *ReservationLedger) Clamp(user, asset string) {
	key := resKey{user, asset}
	res, ok := l.reserved[key]
	if !ok {
		return
	}
	if balance := l.balances(user, asset); res.Amount > balance {
		res.Amount = balance
		res.UpdatedAt = time.Now().UTC()
		if res.Amount == 0 {
			delete(l.reserved, key)
		}
	}
}

// Snapshot returns a copy of every live reservation, for persistence.
func (l *ReservationLedger) Snapshot() []Reservation {
	out := make([]Reservation, 0, len(l.reserved))
	for _, res := range l.reserved {
		out = append(out, *res)
	}
	return out
}

// Restore loads reservations from persisted state, replacing current ones.
func (l *ReservationLedger) Restore(reservations []Reservation) {
	l.reserved = make(map[resKey]*Reservation, len(reservations))
	for _, res := range reservations {
		if res.Amount <= 0 {
			continue
		}
		r := res
		l.reserved[resKey{res.User, res.Asset}] = &r
	}
}
