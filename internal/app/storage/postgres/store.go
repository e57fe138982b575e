// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/fund_layer/internal/app/domain/fund"
	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
	"github.com/R3E-Network/fund_layer/internal/app/storage"
	"github.com/R3E-Network/fund_layer/internal/errors"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.TransactionStore = (*Store)(nil)
var _ storage.PositionStore = (*Store)(nil)
var _ storage.ReservationStore = (*Store)(nil)
var _ storage.AdapterStore = (*Store)(nil)
var _ storage.DeviceStore = (*Store)(nil)
var _ storage.RentalStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- TransactionStore -------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, tx fund.Transaction) (fund.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_transactions (id, user_id, asset, tx_type, amount, shares, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tx.ID, tx.User, tx.Asset, string(tx.Type), tx.Amount, tx.Shares, tx.Reference, tx.CreatedAt)
	if err != nil {
		return fund.Transaction{}, err
	}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (fund.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, asset, tx_type, amount, shares, reference, created_at
		FROM fund_transactions
		WHERE id = $1
	`, id)

	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return fund.Transaction{}, errors.NotFound("transaction", id)
	}
	return tx, err
}

func (s *Store) ListTransactions(ctx context.Context, user string, limit int) ([]fund.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, asset, tx_type, amount, shares, reference, created_at
		FROM fund_transactions
	`
	args := []interface{}{}
	if user != "" {
		query += ` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, user, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fund.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (fund.Transaction, error) {
	var (
		tx     fund.Transaction
		txType string
	)
	if err := row.Scan(&tx.ID, &tx.User, &tx.Asset, &txType, &tx.Amount, &tx.Shares, &tx.Reference, &tx.CreatedAt); err != nil {
		return fund.Transaction{}, err
	}
	tx.Type = fund.TxType(txType)
	return tx, nil
}

// --- PositionStore ----------------------------------------------------------

func (s *Store) UpsertPosition(ctx context.Context, pos fund.Position) (fund.Position, error) {
	pos.UpdatedAt = time.Now().UTC()

	if pos.Shares <= 0 {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM fund_positions WHERE user_id = $1 AND asset = $2
		`, pos.User, pos.Asset)
		return pos, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_positions (user_id, asset, shares, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, asset)
		DO UPDATE SET shares = $3, updated_at = $4
	`, pos.User, pos.Asset, pos.Shares, pos.UpdatedAt)
	if err != nil {
		return fund.Position{}, err
	}
	return pos, nil
}

func (s *Store) GetPosition(ctx context.Context, user, asset string) (fund.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, asset, shares, updated_at
		FROM fund_positions
		WHERE user_id = $1 AND asset = $2
	`, user, asset)

	var pos fund.Position
	if err := row.Scan(&pos.User, &pos.Asset, &pos.Shares, &pos.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return fund.Position{}, errors.NotFound("position", user+"/"+asset)
		}
		return fund.Position{}, err
	}
	return pos, nil
}

func (s *Store) ListPositions(ctx context.Context, asset string) ([]fund.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, asset, shares, updated_at
		FROM fund_positions
		WHERE ($1 = '' OR asset = $1)
		ORDER BY user_id
	`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fund.Position
	for rows.Next() {
		var pos fund.Position
		if err := rows.Scan(&pos.User, &pos.Asset, &pos.Shares, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, pos)
	}
	return result, rows.Err()
}

// --- ReservationStore -------------------------------------------------------

func (s *Store) UpsertReservation(ctx context.Context, res fund.Reservation) (fund.Reservation, error) {
	res.UpdatedAt = time.Now().UTC()

	if res.Amount <= 0 {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM fund_reservations WHERE user_id = $1 AND asset = $2
		`, res.User, res.Asset)
		return res, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_reservations (user_id, asset, amount, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, asset)
		DO UPDATE SET amount = $3, reason = $4, updated_at = $5
	`, res.User, res.Asset, res.Amount, res.Reason, res.UpdatedAt)
	if err != nil {
		return fund.Reservation{}, err
	}
	return res, nil
}

func (s *Store) DeleteReservation(ctx context.Context, user, asset string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM fund_reservations WHERE user_id = $1 AND asset = $2
	`, user, asset)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("reservation", user+"/"+asset)
	}
	return nil
}

func (s *Store) ListReservations(ctx context.Context, asset string) ([]fund.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, asset, amount, reason, updated_at
		FROM fund_reservations
		WHERE ($1 = '' OR asset = $1)
		ORDER BY user_id
	`, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fund.Reservation
	for rows.Next() {
		var res fund.Reservation
		if err := rows.Scan(&res.User, &res.Asset, &res.Amount, &res.Reason, &res.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, rows.Err()
}

// --- AdapterStore -----------------------------------------------------------

func (s *Store) UpsertAdapter(ctx context.Context, rec fund.AdapterRecord) (fund.AdapterRecord, error) {
	if rec.ID == "" {
		return fund.AdapterRecord{}, errors.Validation("adapter id required")
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now().UTC()
	}

	var removedAt interface{}
	if !rec.RemovedAt.IsZero() {
		removedAt = rec.RemovedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fund_adapters (id, weight, active, invested, added_at, removed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET weight = $2, active = $3, invested = $4, removed_at = $6
	`, rec.ID, rec.Weight, rec.Active, rec.Invested, rec.AddedAt, removedAt)
	if err != nil {
		return fund.AdapterRecord{}, err
	}
	return rec, nil
}

func (s *Store) GetAdapter(ctx context.Context, id string) (fund.AdapterRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, weight, active, invested, added_at, removed_at
		FROM fund_adapters
		WHERE id = $1
	`, id)

	rec, err := scanAdapter(row)
	if err == sql.ErrNoRows {
		return fund.AdapterRecord{}, errors.NotFound("adapter", id)
	}
	return rec, err
}

func (s *Store) ListAdapters(ctx context.Context) ([]fund.AdapterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, weight, active, invested, added_at, removed_at
		FROM fund_adapters
		ORDER BY added_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []fund.AdapterRecord
	for rows.Next() {
		rec, err := scanAdapter(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func scanAdapter(row rowScanner) (fund.AdapterRecord, error) {
	var (
		rec       fund.AdapterRecord
		removedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.Weight, &rec.Active, &rec.Invested, &rec.AddedAt, &removedAt); err != nil {
		return fund.AdapterRecord{}, err
	}
	if removedAt.Valid {
		rec.RemovedAt = removedAt.Time
	}
	return rec, nil
}

// --- DeviceStore ------------------------------------------------------------

func (s *Store) CreateDevice(ctx context.Context, dev rental.Device) (rental.Device, error) {
	if dev.ID == "" {
		dev.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	dev.CreatedAt = now
	dev.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rental_devices (id, owner, name, asset, hourly_rate, deposit_amount, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, dev.ID, dev.Owner, dev.Name, dev.Asset, dev.HourlyRate, dev.DepositAmount, dev.Active, dev.CreatedAt, dev.UpdatedAt)
	if err != nil {
		return rental.Device{}, err
	}
	return dev, nil
}

func (s *Store) UpdateDevice(ctx context.Context, dev rental.Device) (rental.Device, error) {
	dev.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rental_devices
		SET owner = $2, name = $3, asset = $4, hourly_rate = $5, deposit_amount = $6, active = $7, updated_at = $8
		WHERE id = $1
	`, dev.ID, dev.Owner, dev.Name, dev.Asset, dev.HourlyRate, dev.DepositAmount, dev.Active, dev.UpdatedAt)
	if err != nil {
		return rental.Device{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return rental.Device{}, errors.NotFound("device", dev.ID)
	}
	return dev, nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (rental.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, asset, hourly_rate, deposit_amount, active, created_at, updated_at
		FROM rental_devices
		WHERE id = $1
	`, id)

	var dev rental.Device
	err := row.Scan(&dev.ID, &dev.Owner, &dev.Name, &dev.Asset, &dev.HourlyRate, &dev.DepositAmount, &dev.Active, &dev.CreatedAt, &dev.UpdatedAt)
	if err == sql.ErrNoRows {
		return rental.Device{}, errors.NotFound("device", id)
	}
	return dev, err
}

func (s *Store) ListDevices(ctx context.Context) ([]rental.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, name, asset, hourly_rate, deposit_amount, active, created_at, updated_at
		FROM rental_devices
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []rental.Device
	for rows.Next() {
		var dev rental.Device
		if err := rows.Scan(&dev.ID, &dev.Owner, &dev.Name, &dev.Asset, &dev.HourlyRate, &dev.DepositAmount, &dev.Active, &dev.CreatedAt, &dev.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, dev)
	}
	return result, rows.Err()
}

// --- RentalStore ------------------------------------------------------------

func (s *Store) CreateRental(ctx context.Context, r rental.Rental) (rental.Rental, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.OpenedAt.IsZero() {
		r.OpenedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rental_rentals (id, device_id, renter, owner, asset, deposit, charge, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.ID, r.DeviceID, r.Renter, r.Owner, r.Asset, r.Deposit, r.Charge, string(r.Status), r.OpenedAt)
	if err != nil {
		return rental.Rental{}, err
	}
	return r, nil
}

func (s *Store) UpdateRental(ctx context.Context, r rental.Rental) (rental.Rental, error) {
	var closedAt, settledAt interface{}
	if !r.ClosedAt.IsZero() {
		closedAt = r.ClosedAt
	}
	if !r.SettledAt.IsZero() {
		settledAt = r.SettledAt
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rental_rentals
		SET charge = $2, status = $3, closed_at = $4, settled_at = $5
		WHERE id = $1
	`, r.ID, r.Charge, string(r.Status), closedAt, settledAt)
	if err != nil {
		return rental.Rental{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return rental.Rental{}, errors.NotFound("rental", r.ID)
	}
	return r, nil
}

func (s *Store) GetRental(ctx context.Context, id string) (rental.Rental, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, renter, owner, asset, deposit, charge, status, opened_at, closed_at, settled_at
		FROM rental_rentals
		WHERE id = $1
	`, id)

	r, err := scanRental(row)
	if err == sql.ErrNoRows {
		return rental.Rental{}, errors.NotFound("rental", id)
	}
	return r, err
}

func (s *Store) ListRentals(ctx context.Context, renter string) ([]rental.Rental, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, renter, owner, asset, deposit, charge, status, opened_at, closed_at, settled_at
		FROM rental_rentals
		WHERE ($1 = '' OR renter = $1)
		ORDER BY opened_at
	`, renter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRentals(rows)
}

func (s *Store) ListOpenRentals(ctx context.Context) ([]rental.Rental, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, renter, owner, asset, deposit, charge, status, opened_at, closed_at, settled_at
		FROM rental_rentals
		WHERE status = $1
		ORDER BY opened_at
	`, string(rental.StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRentals(rows)
}

func collectRentals(rows *sql.Rows) ([]rental.Rental, error) {
	var result []rental.Rental
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRental(row rowScanner) (rental.Rental, error) {
	var (
		r         rental.Rental
		status    string
		closedAt  sql.NullTime
		settledAt sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.DeviceID, &r.Renter, &r.Owner, &r.Asset, &r.Deposit, &r.Charge, &status, &r.OpenedAt, &closedAt, &settledAt); err != nil {
		return rental.Rental{}, err
	}
	r.Status = rental.Status(status)
	if closedAt.Valid {
		r.ClosedAt = closedAt.Time
	}
	if settledAt.Valid {
		r.SettledAt = settledAt.Time
	}
	return r, nil
}
