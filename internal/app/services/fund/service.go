// Package fund exposes the vault as an application service: every pool
// mutation goes through here so it lands in the journal and the persisted
// snapshots alongside the in-memory ledgers.
package fund

import (
	"context"
	"time"

	"github.com/R3E-Network/fund_layer/internal/app/domain/fund"
	"github.com/R3E-Network/fund_layer/internal/app/metrics"
	"github.com/R3E-Network/fund_layer/internal/app/storage"
	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/internal/vault"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Config wires the service's dependencies.
type Config struct {
	Vault        *vault.Vault
	Transactions storage.TransactionStore
	Positions    storage.PositionStore
	Reservations storage.ReservationStore
	Adapters     storage.AdapterStore
	Logger       *logger.Logger
}

// Service fronts the vault with journaling and persistence.
type Service struct {
	vault        *vault.Vault
	transactions storage.TransactionStore
	positions    storage.PositionStore
	reservations storage.ReservationStore
	adapters     storage.AdapterStore
	log          *logger.Logger
}

// New creates the fund service.
func New(cfg Config) (*Service, error) {
	if cfg.Vault == nil {
		return nil, errors.Validation("vault required")
	}
	if cfg.Transactions == nil || cfg.Positions == nil || cfg.Reservations == nil || cfg.Adapters == nil {
		return nil, errors.Validation("all stores required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("fund")
	}
	return &Service{
		vault:        cfg.Vault,
		transactions: cfg.Transactions,
		positions:    cfg.Positions,
		reservations: cfg.Reservations,
		adapters:     cfg.Adapters,
		log:          log,
	}, nil
}

// Vault exposes the underlying vault for read-only callers.
func (s *Service) Vault() *vault.Vault { return s.vault }

// =============================================================================
// Pool operations
// =============================================================================

// Deposit credits the user's pooled balance and mints shares.
func (s *Service) Deposit(ctx context.Context, user string, amount int64, autoInvest bool) (int64, error) {
	minted, err := s.vault.Deposit(ctx, user, amount, autoInvest)
	metrics.RecordVaultOperation("deposit", err == nil)
	if err != nil {
		return 0, err
	}

	s.journal(ctx, fund.Transaction{
		User: user, Asset: s.vault.Asset(), Type: fund.TxDeposit,
		Amount: amount, Shares: minted,
	})
	s.snapshotPosition(ctx, user)
	if autoInvest {
		s.syncAdapterRecords(ctx)
	}
	s.publishGauges(ctx)
	return minted, nil
}

// Withdraw burns shares and pays out underlying. Returns the amount paid.
func (s *Service) Withdraw(ctx context.Context, user string, shares int64) (int64, error) {
	paid, err := s.vault.Withdraw(ctx, user, shares)
	metrics.RecordVaultOperation("withdraw", err == nil)
	if err != nil {
		return 0, err
	}

	s.journal(ctx, fund.Transaction{
		User: user, Asset: s.vault.Asset(), Type: fund.TxWithdraw,
		Amount: paid, Shares: shares,
	})
	s.snapshotPosition(ctx, user)
	s.syncAdapterRecords(ctx)
	s.publishGauges(ctx)
	return paid, nil
}

// Reserve earmarks part of the user's balance for escrow.
func (s *Service) Reserve(ctx context.Context, user string, amount int64, reason string) error {
	err := s.vault.ReserveFunds(user, amount, reason)
	metrics.RecordVaultOperation("reserve", err == nil)
	if err != nil {
		return err
	}

	s.journal(ctx, fund.Transaction{
		User: user, Asset: s.vault.Asset(), Type: fund.TxReserve,
		Amount: amount, Reference: reason,
	})
	s.snapshotReservation(ctx, user, reason)
	return nil
}

// Release returns earmarked funds to the spendable balance.
func (s *Service) Release(ctx context.Context, user string, amount int64, reason string) error {
	err := s.vault.ReleaseFunds(user, amount, reason)
	metrics.RecordVaultOperation("release", err == nil)
	if err != nil {
		return err
	}

	s.journal(ctx, fund.Transaction{
		User: user, Asset: s.vault.Asset(), Type: fund.TxRelease,
		Amount: amount, Reference: reason,
	})
	s.snapshotReservation(ctx, user, reason)
	return nil
}

// Deduct removes funds from the user's balance in favor of recipient.
// Reservations are not released here; callers sequence Release themselves.
func (s *Service) Deduct(ctx context.Context, user string, amount int64, recipient, reference string) (int64, error) {
	paid, err := s.vault.DeductFunds(ctx, user, amount, recipient)
	metrics.RecordVaultOperation("deduct", err == nil)
	if err != nil {
		return 0, err
	}

	s.journal(ctx, fund.Transaction{
		User: user, Asset: s.vault.Asset(), Type: fund.TxDeduct,
		Amount: paid, Reference: reference,
	})
	s.snapshotPosition(ctx, user)
	s.snapshotReservation(ctx, user, reference)
	s.syncAdapterRecords(ctx)
	s.publishGauges(ctx)
	return paid, nil
}

// =============================================================================
// Views
// =============================================================================

// BalanceView is one user's pooled position.
type BalanceView struct {
	User      string `json:"user"`
	Asset     string `json:"asset"`
	Shares    int64  `json:"shares"`
	Balance   int64  `json:"balance"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

// Balance reports the user's shares, balance, and escrow split.
func (s *Service) Balance(ctx context.Context, user string) BalanceView {
	return BalanceView{
		User:      user,
		Asset:     s.vault.Asset(),
		Shares:    s.vault.SharesOf(user),
		Balance:   s.vault.BalanceOf(ctx, user),
		Reserved:  s.vault.ReservedFunds(user),
		Available: s.vault.AvailableBalance(ctx, user),
	}
}

// Stats is the pool-wide snapshot served by the stats endpoint.
type Stats struct {
	Asset            string `json:"asset"`
	TotalAssets      int64  `json:"total_assets"`
	TotalShares      int64  `json:"total_shares"`
	TotalDeposits    int64  `json:"total_deposits"`
	IdleBalance      int64  `json:"idle_balance"`
	WeightedAPYBps   int64  `json:"weighted_apy_bps"`
	RewardsHarvested int64  `json:"rewards_harvested"`
	Paused           bool   `json:"paused"`
}

// Stats reports pool-wide aggregates.
func (s *Service) Stats(ctx context.Context) Stats {
	stats := Stats{
		Asset:            s.vault.Asset(),
		TotalAssets:      s.vault.TotalAssets(ctx),
		TotalShares:      s.vault.TotalShares(),
		TotalDeposits:    s.vault.TotalDeposits(),
		IdleBalance:      s.vault.IdleBalance(),
		WeightedAPYBps:   s.vault.WeightedAPY(ctx),
		RewardsHarvested: s.vault.TotalRewardsHarvested(),
		Paused:           s.vault.Paused(),
	}
	metrics.SetVaultGauges(stats.TotalAssets, stats.IdleBalance)
	return stats
}

// Transactions lists journal entries, newest first.
func (s *Service) Transactions(ctx context.Context, user string, limit int) ([]fund.Transaction, error) {
	return s.transactions.ListTransactions(ctx, user, limit)
}

// =============================================================================
// Allocation / maintenance
// =============================================================================

// Harvest collects rewards across adapters and journals the total.
func (s *Service) Harvest(ctx context.Context) (int64, error) {
	total, err := s.vault.HarvestAll(ctx)
	metrics.RecordVaultOperation("harvest", err == nil)
	if err != nil {
		return 0, err
	}
	metrics.AddHarvestedRewards(total)
	if total > 0 {
		s.journal(ctx, fund.Transaction{
			User: "system", Asset: s.vault.Asset(), Type: fund.TxHarvest, Amount: total,
		})
	}
	return total, nil
}

// Rebalance recalls and redistributes adapter holdings.
func (s *Service) Rebalance(ctx context.Context) (recalled, invested int64, err error) {
	recalled, invested, err = s.vault.Rebalance(ctx)
	metrics.RecordVaultOperation("rebalance", err == nil)
	if err != nil {
		return 0, 0, err
	}
	s.journal(ctx, fund.Transaction{
		User: "system", Asset: s.vault.Asset(), Type: fund.TxRebalance,
		Amount: invested,
	})
	s.syncAdapterRecords(ctx)
	s.publishGauges(ctx)
	return recalled, invested, nil
}

// Invest deploys investable idle balance into adapters.
func (s *Service) Invest(ctx context.Context) (int64, error) {
	invested, err := s.vault.Invest(ctx)
	metrics.RecordVaultOperation("invest", err == nil)
	if err != nil {
		return 0, err
	}
	s.syncAdapterRecords(ctx)
	s.publishGauges(ctx)
	return invested, nil
}

// EmergencyExit forces every adapter out, best effort, and journals the
// recovered amount. Allowed while the vault is paused.
func (s *Service) EmergencyExit(ctx context.Context) int64 {
	recovered := s.vault.EmergencyExitAll(ctx)
	metrics.RecordVaultOperation("emergency_exit", true)
	if recovered > 0 {
		s.journal(ctx, fund.Transaction{
			User: "system", Asset: s.vault.Asset(), Type: fund.TxEmergency, Amount: recovered,
		})
	}
	s.syncAdapterRecords(ctx)
	s.publishGauges(ctx)
	return recovered
}

// SetInvestmentRatio tunes the investable fraction of idle balance.
func (s *Service) SetInvestmentRatio(bps int64) error {
	return s.vault.SetInvestmentRatio(bps)
}

// SetMinInvestment tunes the minimum deposit / investment floor.
func (s *Service) SetMinInvestment(amount int64) error {
	return s.vault.SetMinInvestment(amount)
}

// SetRebalanceInterval tunes the rebalance cooldown. Zero disables it.
func (s *Service) SetRebalanceInterval(d time.Duration) error {
	return s.vault.SetRebalanceInterval(d)
}

// =============================================================================
// Adapter administration
// =============================================================================

// AddAdapter registers a strategy adapter and records it for audit. An
// adapter re-registered after a restart keeps its persisted principal
// counter so divestment still sees what it holds.
func (s *Service) AddAdapter(ctx context.Context, adapter vault.Adapter, weight int64) error {
	if err := s.vault.AddAdapter(adapter, weight); err != nil {
		return err
	}
	if rec, err := s.adapters.GetAdapter(ctx, adapter.ID()); err == nil && rec.Active && rec.Invested > 0 {
		s.vault.RestoreInvested(map[string]int64{rec.ID: rec.Invested})
	}
	s.syncAdapterRecords(ctx)
	return nil
}

// RemoveAdapter exits and soft-removes a strategy adapter.
func (s *Service) RemoveAdapter(ctx context.Context, id string) error {
	if err := s.vault.RemoveAdapter(ctx, id); err != nil {
		return err
	}
	s.syncAdapterRecords(ctx)
	return nil
}

// SetAdapterWeight updates an adapter's allocation weight.
func (s *Service) SetAdapterWeight(ctx context.Context, id string, weight int64) error {
	if err := s.vault.SetAdapterWeight(id, weight); err != nil {
		return err
	}
	s.syncAdapterRecords(ctx)
	return nil
}

// SetAdapterActive toggles an adapter in or out of allocation.
func (s *Service) SetAdapterActive(ctx context.Context, id string, active bool) error {
	if err := s.vault.SetAdapterActive(id, active); err != nil {
		return err
	}
	s.syncAdapterRecords(ctx)
	return nil
}

// Adapters lists the persisted adapter records.
func (s *Service) Adapters(ctx context.Context) ([]fund.AdapterRecord, error) {
	return s.adapters.ListAdapters(ctx)
}

// =============================================================================
// Hydration
// =============================================================================

// Hydrate restores positions and reservations from the stores after a
// restart. idleBalance is the uninvested balance the operator confirmed
// on hand; adapter holdings are re-read from the adapters themselves.
func (s *Service) Hydrate(ctx context.Context, idleBalance int64) error {
	positions, err := s.positions.ListPositions(ctx, s.vault.Asset())
	if err != nil {
		return errors.Internal("load positions", err)
	}

	byUser := make(map[string]int64, len(positions))
	var totalShares int64
	for _, pos := range positions {
		byUser[pos.User] = pos.Shares
		totalShares += pos.Shares
	}

	// Principal is re-derived as idle plus recorded invested amounts; yield
	// accrued while down shows up as share-price growth, not principal. The
	// per-adapter counters go back onto the registrations so the allocator
	// can divest what the adapters still hold.
	var invested int64
	investedByID := make(map[string]int64)
	if records, err := s.adapters.ListAdapters(ctx); err == nil {
		for _, rec := range records {
			if rec.Active {
				invested += rec.Invested
				investedByID[rec.ID] = rec.Invested
			}
		}
	}
	s.vault.RestorePositions(byUser, idleBalance+invested, idleBalance)
	s.vault.RestoreInvested(investedByID)

	reservations, err := s.reservations.ListReservations(ctx, s.vault.Asset())
	if err != nil {
		return errors.Internal("load reservations", err)
	}
	restore := make([]vault.Reservation, 0, len(reservations))
	for _, res := range reservations {
		restore = append(restore, vault.Reservation{
			User: res.User, Asset: res.Asset, Amount: res.Amount,
			Reason: res.Reason, UpdatedAt: res.UpdatedAt,
		})
	}
	s.vault.RestoreReservations(restore)

	s.log.WithFields(map[string]interface{}{
		"positions": len(byUser), "total_shares": totalShares,
		"reservations": len(restore), "idle": idleBalance,
	}).Info("vault hydrated from storage")
	return nil
}

// =============================================================================
// Persistence helpers
// =============================================================================

// Persistence is best effort around the in-memory ledgers: a failed write is
// logged, never allowed to unwind a completed vault mutation.

func (s *Service) journal(ctx context.Context, tx fund.Transaction) {
	tx.CreatedAt = time.Now().UTC()
	if _, err := s.transactions.CreateTransaction(ctx, tx); err != nil {
		s.log.WithError(err).WithField("type", string(tx.Type)).Error("journal write failed")
	}
}

func (s *Service) snapshotPosition(ctx context.Context, user string) {
	pos := fund.Position{User: user, Asset: s.vault.Asset(), Shares: s.vault.SharesOf(user)}
	if _, err := s.positions.UpsertPosition(ctx, pos); err != nil {
		s.log.WithError(err).WithField("user", user).Error("position snapshot failed")
	}
}

func (s *Service) snapshotReservation(ctx context.Context, user, reason string) {
	res := fund.Reservation{
		User: user, Asset: s.vault.Asset(),
		Amount: s.vault.ReservedFunds(user), Reason: reason,
	}
	if _, err := s.reservations.UpsertReservation(ctx, res); err != nil {
		s.log.WithError(err).WithField("user", user).Error("reservation snapshot failed")
	}
}

func (s *Service) syncAdapterRecords(ctx context.Context) {
	for _, reg := range s.vault.Adapters() {
		rec := fund.AdapterRecord{
			ID: reg.Adapter.ID(), Weight: reg.Weight, Active: reg.Active,
			Invested: reg.Invested, AddedAt: reg.AddedAt, RemovedAt: reg.RemovedAt,
		}
		if _, err := s.adapters.UpsertAdapter(ctx, rec); err != nil {
			s.log.WithError(err).WithField("adapter", rec.ID).Error("adapter record sync failed")
		}
	}
}

func (s *Service) publishGauges(ctx context.Context) {
	metrics.SetVaultGauges(s.vault.TotalAssets(ctx), s.vault.IdleBalance())
}
