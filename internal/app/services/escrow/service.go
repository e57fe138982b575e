// Package escrow runs device-rental deposits over the fund service's
// reservation ledger: opening a rental holds the deposit, closing fixes the
// charge, settlement releases the hold and pays the device owner.
package escrow

import (
	"context"
	"time"

	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/app/storage"
	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Config wires the service's dependencies.
type Config struct {
	Fund    *fundsvc.Service
	Devices storage.DeviceStore
	Rentals storage.RentalStore
	Logger  *logger.Logger
}

// Service manages the device directory and rental escrow lifecycle.
type Service struct {
	fund    *fundsvc.Service
	devices storage.DeviceStore
	rentals storage.RentalStore
	log     *logger.Logger
}

// New creates the escrow service.
func New(cfg Config) (*Service, error) {
	if cfg.Fund == nil {
		return nil, errors.Validation("fund service required")
	}
	if cfg.Devices == nil || cfg.Rentals == nil {
		return nil, errors.Validation("device and rental stores required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("escrow")
	}
	return &Service{fund: cfg.Fund, devices: cfg.Devices, rentals: cfg.Rentals, log: log}, nil
}

// =============================================================================
// Device directory
// =============================================================================

// RegisterDevice lists a device for rental.
func (s *Service) RegisterDevice(ctx context.Context, dev rental.Device) (rental.Device, error) {
	if dev.Owner == "" || dev.Name == "" {
		return rental.Device{}, errors.Validation("device owner and name required")
	}
	if dev.HourlyRate < 0 || dev.DepositAmount <= 0 {
		return rental.Device{}, errors.Validation("device needs a positive deposit and non-negative rate")
	}
	if dev.Asset == "" {
		dev.Asset = s.fund.Vault().Asset()
	}
	dev.Active = true
	return s.devices.CreateDevice(ctx, dev)
}

// SetDeviceActive toggles a device in or out of the rentable directory.
func (s *Service) SetDeviceActive(ctx context.Context, id string, active bool) (rental.Device, error) {
	dev, err := s.devices.GetDevice(ctx, id)
	if err != nil {
		return rental.Device{}, err
	}
	dev.Active = active
	return s.devices.UpdateDevice(ctx, dev)
}

// Device returns one directory entry.
func (s *Service) Device(ctx context.Context, id string) (rental.Device, error) {
	return s.devices.GetDevice(ctx, id)
}

// Devices lists the directory.
func (s *Service) Devices(ctx context.Context) ([]rental.Device, error) {
	return s.devices.ListDevices(ctx)
}

// =============================================================================
// Rental lifecycle
// =============================================================================

// OpenRental verifies the device and holds the renter's deposit. The deposit
// stays part of the renter's pooled balance; it only stops being spendable.
func (s *Service) OpenRental(ctx context.Context, deviceID, renter string) (rental.Rental, error) {
	if renter == "" {
		return rental.Rental{}, errors.Validation("renter required")
	}
	dev, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return rental.Rental{}, err
	}
	if !dev.Active {
		return rental.Rental{}, errors.State("device %s is not rentable", deviceID)
	}
	if renter == dev.Owner {
		return rental.Rental{}, errors.Validation("owner cannot rent own device")
	}

	r, err := s.rentals.CreateRental(ctx, rental.Rental{
		DeviceID: dev.ID,
		Renter:   renter,
		Owner:    dev.Owner,
		Asset:    dev.Asset,
		Deposit:  dev.DepositAmount,
		Status:   rental.StatusOpen,
	})
	if err != nil {
		return rental.Rental{}, err
	}

	if err := s.fund.Reserve(ctx, renter, dev.DepositAmount, "rental "+r.ID); err != nil {
		// Hold failed; the rental record must not stay open.
		r.Status = rental.StatusClosed
		r.ClosedAt = time.Now().UTC()
		if _, uerr := s.rentals.UpdateRental(ctx, r); uerr != nil {
			s.log.WithError(uerr).WithField("rental", r.ID).Error("rollback of unfunded rental failed")
		}
		return rental.Rental{}, err
	}

	s.log.WithFields(map[string]interface{}{
		"rental": r.ID, "device": dev.ID, "renter": renter, "deposit": dev.DepositAmount,
	}).Info("rental opened")
	return r, nil
}

// CloseRental ends an open rental and fixes the charge from usage hours.
// The charge is capped at the held deposit.
func (s *Service) CloseRental(ctx context.Context, rentalID string, usageHours int64) (rental.Rental, error) {
	if usageHours < 0 {
		return rental.Rental{}, errors.Validation("usage hours must not be negative")
	}
	r, err := s.rentals.GetRental(ctx, rentalID)
	if err != nil {
		return rental.Rental{}, err
	}
	if r.Status != rental.StatusOpen {
		return rental.Rental{}, errors.State("rental %s is %s, not open", rentalID, r.Status)
	}

	dev, err := s.devices.GetDevice(ctx, r.DeviceID)
	if err != nil {
		return rental.Rental{}, err
	}

	charge := dev.HourlyRate * usageHours
	if charge > r.Deposit {
		charge = r.Deposit
	}

	r.Charge = charge
	r.Status = rental.StatusClosed
	r.ClosedAt = time.Now().UTC()
	return s.rentals.UpdateRental(ctx, r)
}

// SettleRental releases the deposit hold and pays the fixed charge to the
// device owner. Release comes first so the charge is deducted from a
// spendable balance; the remainder simply stays pooled for the renter.
func (s *Service) SettleRental(ctx context.Context, rentalID string) (rental.Rental, error) {
	r, err := s.rentals.GetRental(ctx, rentalID)
	if err != nil {
		return rental.Rental{}, err
	}
	if r.Status != rental.StatusClosed {
		return rental.Rental{}, errors.State("rental %s is %s, not closed", rentalID, r.Status)
	}

	if err := s.fund.Release(ctx, r.Renter, r.Deposit, "rental "+r.ID+" settled"); err != nil {
		return rental.Rental{}, err
	}
	if r.Charge > 0 {
		if _, err := s.fund.Deduct(ctx, r.Renter, r.Charge, r.Owner, "rental "+r.ID+" charge"); err != nil {
			return rental.Rental{}, err
		}
	}

	r.Status = rental.StatusSettled
	r.SettledAt = time.Now().UTC()
	updated, err := s.rentals.UpdateRental(ctx, r)
	if err != nil {
		return rental.Rental{}, err
	}

	s.log.WithFields(map[string]interface{}{
		"rental": r.ID, "charge": r.Charge, "owner": r.Owner,
	}).Info("rental settled")
	return updated, nil
}

// Rental returns one rental record.
func (s *Service) Rental(ctx context.Context, id string) (rental.Rental, error) {
	return s.rentals.GetRental(ctx, id)
}

// Rentals lists rentals, optionally filtered by renter.
func (s *Service) Rentals(ctx context.Context, renter string) ([]rental.Rental, error) {
	return s.rentals.ListRentals(ctx, renter)
}
