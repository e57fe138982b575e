// Package memory provides an in-memory implementation of the storage
// interfaces, safe for concurrent use. It backs tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/fund_layer/internal/app/domain/fund"
	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
	"github.com/R3E-Network/fund_layer/internal/app/storage"
	"github.com/R3E-Network/fund_layer/internal/errors"
)

// Store is an in-memory implementation of every storage interface.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	transactions []fund.Transaction
	txByID       map[string]fund.Transaction
	positions    map[string]fund.Position    // user/asset
	reservations map[string]fund.Reservation // user/asset
	adapters     map[string]fund.AdapterRecord
	adapterOrder []string
	devices      map[string]rental.Device
	deviceOrder  []string
	rentals      map[string]rental.Rental
	rentalOrder  []string
}

var _ storage.TransactionStore = (*Store)(nil)
var _ storage.PositionStore = (*Store)(nil)
var _ storage.ReservationStore = (*Store)(nil)
var _ storage.AdapterStore = (*Store)(nil)
var _ storage.DeviceStore = (*Store)(nil)
var _ storage.RentalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		txByID:       make(map[string]fund.Transaction),
		positions:    make(map[string]fund.Position),
		reservations: make(map[string]fund.Reservation),
		adapters:     make(map[string]fund.AdapterRecord),
		devices:      make(map[string]rental.Device),
		rentals:      make(map[string]rental.Rental),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func key(user, asset string) string { return user + "/" + asset }

// TransactionStore implementation ---------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx fund.Transaction) (fund.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = s.nextIDLocked()
	} else if _, exists := s.txByID[tx.ID]; exists {
		return fund.Transaction{}, errors.State("transaction %s already exists", tx.ID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.transactions = append(s.transactions, tx)
	s.txByID[tx.ID] = tx
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (fund.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txByID[id]
	if !ok {
		return fund.Transaction{}, errors.NotFound("transaction", id)
	}
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, user string, limit int) ([]fund.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	var result []fund.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		tx := s.transactions[i]
		if user != "" && tx.User != user {
			continue
		}
		result = append(result, tx)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// PositionStore implementation -------------------------------------------------

func (s *Store) UpsertPosition(_ context.Context, pos fund.Position) (fund.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos.UpdatedAt = time.Now().UTC()
	if pos.Shares <= 0 {
		delete(s.positions, key(pos.User, pos.Asset))
		return pos, nil
	}
	s.positions[key(pos.User, pos.Asset)] = pos
	return pos, nil
}

func (s *Store) GetPosition(_ context.Context, user, asset string) (fund.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[key(user, asset)]
	if !ok {
		return fund.Position{}, errors.NotFound("position", key(user, asset))
	}
	return pos, nil
}

func (s *Store) ListPositions(_ context.Context, asset string) ([]fund.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]fund.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		if asset != "" && pos.Asset != asset {
			continue
		}
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].User < result[j].User })
	return result, nil
}

// ReservationStore implementation ----------------------------------------------

func (s *Store) UpsertReservation(_ context.Context, res fund.Reservation) (fund.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res.UpdatedAt = time.Now().UTC()
	if res.Amount <= 0 {
		delete(s.reservations, key(res.User, res.Asset))
		return res, nil
	}
	s.reservations[key(res.User, res.Asset)] = res
	return res, nil
}

func (s *Store) DeleteReservation(_ context.Context, user, asset string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[key(user, asset)]; !ok {
		return errors.NotFound("reservation", key(user, asset))
	}
	delete(s.reservations, key(user, asset))
	return nil
}

func (s *Store) ListReservations(_ context.Context, asset string) ([]fund.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]fund.Reservation, 0, len(s.reservations))
	for _, res := range s.reservations {
		if asset != "" && res.Asset != asset {
			continue
		}
		result = append(result, res)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].User < result[j].User })
	return result, nil
}

// AdapterStore implementation --------------------------------------------------

func (s *Store) UpsertAdapter(_ context.Context, rec fund.AdapterRecord) (fund.AdapterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return fund.AdapterRecord{}, errors.Validation("adapter id required")
	}
	if _, exists := s.adapters[rec.ID]; !exists {
		s.adapterOrder = append(s.adapterOrder, rec.ID)
	}
	s.adapters[rec.ID] = rec
	return rec, nil
}

func (s *Store) GetAdapter(_ context.Context, id string) (fund.AdapterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.adapters[id]
	if !ok {
		return fund.AdapterRecord{}, errors.NotFound("adapter", id)
	}
	return rec, nil
}

func (s *Store) ListAdapters(_ context.Context) ([]fund.AdapterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]fund.AdapterRecord, 0, len(s.adapterOrder))
	for _, id := range s.adapterOrder {
		result = append(result, s.adapters[id])
	}
	return result, nil
}

// DeviceStore implementation ---------------------------------------------------

func (s *Store) CreateDevice(_ context.Context, dev rental.Device) (rental.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dev.ID == "" {
		dev.ID = s.nextIDLocked()
	} else if _, exists := s.devices[dev.ID]; exists {
		return rental.Device{}, errors.State("device %s already exists", dev.ID)
	}

	now := time.Now().UTC()
	dev.CreatedAt = now
	dev.UpdatedAt = now

	s.devices[dev.ID] = dev
	s.deviceOrder = append(s.deviceOrder, dev.ID)
	return dev, nil
}

func (s *Store) UpdateDevice(_ context.Context, dev rental.Device) (rental.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.devices[dev.ID]
	if !ok {
		return rental.Device{}, errors.NotFound("device", dev.ID)
	}

	dev.CreatedAt = original.CreatedAt
	dev.UpdatedAt = time.Now().UTC()

	s.devices[dev.ID] = dev
	return dev, nil
}

func (s *Store) GetDevice(_ context.Context, id string) (rental.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[id]
	if !ok {
		return rental.Device{}, errors.NotFound("device", id)
	}
	return dev, nil
}

func (s *Store) ListDevices(_ context.Context) ([]rental.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]rental.Device, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		result = append(result, s.devices[id])
	}
	return result, nil
}

// RentalStore implementation ---------------------------------------------------

func (s *Store) CreateRental(_ context.Context, r rental.Rental) (rental.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = s.nextIDLocked()
	} else if _, exists := s.rentals[r.ID]; exists {
		return rental.Rental{}, errors.State("rental %s already exists", r.ID)
	}
	if r.OpenedAt.IsZero() {
		r.OpenedAt = time.Now().UTC()
	}

	s.rentals[r.ID] = r
	s.rentalOrder = append(s.rentalOrder, r.ID)
	return r, nil
}

func (s *Store) UpdateRental(_ context.Context, r rental.Rental) (rental.Rental, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.rentals[r.ID]
	if !ok {
		return rental.Rental{}, errors.NotFound("rental", r.ID)
	}

	r.OpenedAt = original.OpenedAt
	s.rentals[r.ID] = r
	return r, nil
}

func (s *Store) GetRental(_ context.Context, id string) (rental.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rentals[id]
	if !ok {
		return rental.Rental{}, errors.NotFound("rental", id)
	}
	return r, nil
}

func (s *Store) ListRentals(_ context.Context, renter string) ([]rental.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []rental.Rental
	for _, id := range s.rentalOrder {
		r := s.rentals[id]
		if renter != "" && r.Renter != renter {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (s *Store) ListOpenRentals(_ context.Context) ([]rental.Rental, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []rental.Rental
	for _, id := range s.rentalOrder {
		if r := s.rentals[id]; r.Status == rental.StatusOpen {
			result = append(result, r)
		}
	}
	return result, nil
}
