// Package rental defines the device directory and rental escrow records.
package rental

import "time"

// Device is a rentable device listed in the directory. DepositAmount is the
// escrow hold required to open a rental; HourlyRate is charged against it at
// settlement. Both are in the asset's smallest unit.
type Device struct {
	ID            string
	Owner         string
	Name          string
	Asset         string
	HourlyRate    int64
	DepositAmount int64
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Status tracks a rental through its lifecycle.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusSettled Status = "settled"
)

// Rental is one escrowed device rental. Deposit is held against the renter's
// pooled balance while the rental is open; Charge is fixed at close and paid
// to the device owner at settlement.
type Rental struct {
	ID        string
	DeviceID  string
	Renter    string
	Owner     string
	Asset     string
	Deposit   int64
	Charge    int64
	Status    Status
	OpenedAt  time.Time
	ClosedAt  time.Time
	SettledAt time.Time
}
