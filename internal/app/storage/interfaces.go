package storage

import (
	"context"

	"github.com/R3E-Network/fund_layer/internal/app/domain/fund"
	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
)

// TransactionStore persists the append-only fund journal.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx fund.Transaction) (fund.Transaction, error)
	GetTransaction(ctx context.Context, id string) (fund.Transaction, error)
	ListTransactions(ctx context.Context, user string, limit int) ([]fund.Transaction, error)
}

// PositionStore persists per-user share snapshots.
type PositionStore interface {
	UpsertPosition(ctx context.Context, pos fund.Position) (fund.Position, error)
	GetPosition(ctx context.Context, user, asset string) (fund.Position, error)
	ListPositions(ctx context.Context, asset string) ([]fund.Position, error)
}

// ReservationStore persists escrow holds.
type ReservationStore interface {
	UpsertReservation(ctx context.Context, res fund.Reservation) (fund.Reservation, error)
	DeleteReservation(ctx context.Context, user, asset string) error
	ListReservations(ctx context.Context, asset string) ([]fund.Reservation, error)
}

// AdapterStore persists strategy adapter registrations for audit.
type AdapterStore interface {
	UpsertAdapter(ctx context.Context, rec fund.AdapterRecord) (fund.AdapterRecord, error)
	GetAdapter(ctx context.Context, id string) (fund.AdapterRecord, error)
	ListAdapters(ctx context.Context) ([]fund.AdapterRecord, error)
}

// DeviceStore persists the rentable device directory.
type DeviceStore interface {
	CreateDevice(ctx context.Context, dev rental.Device) (rental.Device, error)
	UpdateDevice(ctx context.Context, dev rental.Device) (rental.Device, error)
	GetDevice(ctx context.Context, id string) (rental.Device, error)
	ListDevices(ctx context.Context) ([]rental.Device, error)
}

// RentalStore persists rental escrow records.
type RentalStore interface {
	CreateRental(ctx context.Context, r rental.Rental) (rental.Rental, error)
	UpdateRental(ctx context.Context, r rental.Rental) (rental.Rental, error)
	GetRental(ctx context.Context, id string) (rental.Rental, error)
	ListRentals(ctx context.Context, renter string) ([]rental.Rental, error)
	ListOpenRentals(ctx context.Context) ([]rental.Rental, error)
}
