package escrow

import (
	"context"
	"testing"

	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/app/storage/memory"
	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/internal/vault"
)

func newService(t *testing.T) (*Service, *fundsvc.Service) {
	t.Helper()
	store := memory.New()
	fund, err := fundsvc.New(fundsvc.Config{
		Vault:        vault.New(vault.Config{Asset: "GAS"}),
		Transactions: store,
		Positions:    store,
		Reservations: store,
		Adapters:     store,
	})
	if err != nil {
		t.Fatalf("new fund service: %v", err)
	}
	svc, err := New(Config{Fund: fund, Devices: store, Rentals: store})
	if err != nil {
		t.Fatalf("new escrow service: %v", err)
	}
	return svc, fund
}

func registerDevice(t *testing.T, svc *Service) rental.Device {
	t.Helper()
	dev, err := svc.RegisterDevice(context.Background(), rental.Device{
		Owner: "bob", Name: "rig-1", HourlyRate: 10, DepositAmount: 500,
	})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	return dev
}

func TestRegisterDeviceValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.RegisterDevice(ctx, rental.Device{Name: "x", DepositAmount: 1}); err == nil {
		t.Error("device without owner should be rejected")
	}
	if _, err := svc.RegisterDevice(ctx, rental.Device{Owner: "bob", Name: "x"}); err == nil {
		t.Error("device without deposit should be rejected")
	}
}

func TestOpenRentalHoldsDeposit(t *testing.T) {
	svc, fund := newService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	r, err := svc.OpenRental(ctx, dev.ID, "alice")
	if err != nil {
		t.Fatalf("open rental: %v", err)
	}
	if r.Status != rental.StatusOpen || r.Deposit != 500 {
		t.Errorf("rental = %+v, want open with deposit 500", r)
	}

	view := fund.Balance(ctx, "alice")
	if view.Reserved != 500 || view.Available != 500 {
		t.Errorf("renter view = %+v, want reserved 500 available 500", view)
	}
}

func TestOpenRentalRequiresFunds(t *testing.T) {
	svc, fund := newService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)

	if _, err := fund.Deposit(ctx, "alice", 100, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := svc.OpenRental(ctx, dev.ID, "alice"); err == nil {
		t.Fatal("rental with insufficient balance should fail")
	}

	// The aborted rental must not linger as open.
	open, _ := svc.Rentals(ctx, "alice")
	for _, r := range open {
		if r.Status == rental.StatusOpen {
			t.Errorf("unfunded rental left open: %+v", r)
		}
	}
}

func TestOpenRentalChecksDevice(t *testing.T) {
	svc, fund := newService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := svc.OpenRental(ctx, "missing", "alice"); !errors.Is(err, errors.KindNotFound) {
		t.Errorf("error kind = %v, want not_found", errors.KindOf(err))
	}
	if _, err := svc.OpenRental(ctx, dev.ID, "bob"); err == nil {
		t.Error("owner renting own device should be rejected")
	}

	if _, err := svc.SetDeviceActive(ctx, dev.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.OpenRental(ctx, dev.ID, "alice"); !errors.Is(err, errors.KindState) {
		t.Errorf("renting inactive device: kind = %v, want state", errors.KindOf(err))
	}
}

func TestCloseRentalCapsChargeAtDeposit(t *testing.T) {
	svc, fund := newService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	r, err := svc.OpenRental(ctx, dev.ID, "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// 100 hours at rate 10 = 1000, capped at the 500 deposit.
	closed, err := svc.CloseRental(ctx, r.ID, 100)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Charge != 500 || closed.Status != rental.StatusClosed {
		t.Errorf("closed = %+v, want charge capped at 500", closed)
	}

	if _, err := svc.CloseRental(ctx, r.ID, 1); err == nil {
		t.Error("double close should fail")
	}
}

func TestSettleRentalPaysOwnerAndFreesRemainder(t *testing.T) {
	svc, fund := newService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	r, err := svc.OpenRental(ctx, dev.ID, "alice")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.CloseRental(ctx, r.ID, 12); err != nil {
		t.Fatalf("close: %v", err)
	}

	settled, err := svc.SettleRental(ctx, r.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != rental.StatusSettled || settled.Charge != 120 {
		t.Errorf("settled = %+v, want settled with charge 120", settled)
	}

	view := fund.Balance(ctx, "alice")
	if view.Reserved != 0 {
		t.Errorf("reserved after settle = %d, want 0", view.Reserved)
	}
	if view.Balance != 880 {
		t.Errorf("renter balance = %d, want 880 after 120 charge", view.Balance)
	}

	if _, err := svc.SettleRental(ctx, r.ID); err == nil {
		t.Error("double settle should fail")
	}
}

func TestSettleZeroChargeReleasesEverything(t *testing.T) {
	svc, fund := newService(t)
	ctx := context.Background()
	dev := registerDevice(t, svc)
	if _, err := fund.Deposit(ctx, "alice", 1000, false); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	r, _ := svc.OpenRental(ctx, dev.ID, "alice")
	if _, err := svc.CloseRental(ctx, r.ID, 0); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.SettleRental(ctx, r.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	view := fund.Balance(ctx, "alice")
	if view.Balance != 1000 || view.Reserved != 0 {
		t.Errorf("view = %+v, want untouched balance 1000", view)
	}
}
