// Package fund defines the persistence records for the fund layer: the
// transaction journal, share position snapshots, reservation records, and
// adapter registrations.
package fund

import "time"

// TxType classifies a journal entry.
type TxType string

const (
	TxDeposit   TxType = "deposit"
	TxWithdraw  TxType = "withdraw"
	TxReserve   TxType = "reserve"
	TxRelease   TxType = "release"
	TxDeduct    TxType = "deduct"
	TxHarvest   TxType = "harvest"
	TxRebalance TxType = "rebalance"
	TxEmergency TxType = "emergency_exit"
)

// Transaction is one immutable journal entry. Amount is in the asset's
// smallest unit; Shares is zero for entries that do not move shares.
type Transaction struct {
	ID        string
	User      string
	Asset     string
	Type      TxType
	Amount    int64
	Shares    int64
	Reference string
	CreatedAt time.Time
}

// Position is a snapshot of one user's vault shares, persisted so the vault
// can hydrate after a restart.
type Position struct {
	User      string
	Asset     string
	Shares    int64
	UpdatedAt time.Time
}

// Reservation is the persisted form of an escrow hold.
type Reservation struct {
	User      string
	Asset     string
	Amount    int64
	Reason    string
	UpdatedAt time.Time
}

// AdapterRecord mirrors a strategy adapter registration for the admin API and
// audit queries.
type AdapterRecord struct {
	ID        string
	Weight    int64
	Active    bool
	Invested  int64
	AddedAt   time.Time
	RemovedAt time.Time
}
