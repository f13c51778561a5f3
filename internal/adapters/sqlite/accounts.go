package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

type accountRepo struct {
	q      querier
	logger ports.Logger
}

// GetAccount returns nil, nil if the account does not exist.
func (r *accountRepo) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	const query = `
	SELECT id, balance, ceiling, is_active, version, updated_at
	FROM accounts
	WHERE id = ?`

	a := &domain.Account{}
	err := r.q.QueryRowContext(ctx, query, accountID).Scan(
		&a.ID, &a.Balance, &a.Ceiling, &a.IsActive, &a.Version, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Account not found", map[string]interface{}{"accountID": accountID})
			return nil, nil
		}
		return nil, storageError(fmt.Sprintf("query account %s", accountID), err)
	}
	return a, nil
}

// UpdateBalance stores balance if the row is still at expectedVersion.
func (r *accountRepo) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal, expectedVersion int64) error {
	const query = `
	UPDATE accounts
	SET balance = ?, version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`

	result, err := r.q.ExecContext(ctx, query, balance.String(), time.Now().UTC(), accountID, expectedVersion)
	if err != nil {
		return storageError(fmt.Sprintf("update balance of account %s", accountID), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError(fmt.Sprintf("rows affected for account %s", accountID), err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account %s changed since version %d: %w", accountID, expectedVersion, ports.ErrConflict)
	}
	r.logger.Debug(ctx, "Account balance updated", map[string]interface{}{"accountID": accountID, "balance": balance.String()})
	return nil
}

// UpsertAccount creates or replaces an account row. It is a seeding helper for
// the account directory and bypasses the ledger.
func (s *Store) UpsertAccount(ctx context.Context, a *domain.Account) error {
	const query = `
	INSERT INTO accounts (id, balance, ceiling, is_active, version, updated_at)
	VALUES (?, ?, ?, ?, 0, ?)
	ON CONFLICT(id) DO UPDATE SET
		balance = excluded.balance,
		ceiling = excluded.ceiling,
		is_active = excluded.is_active,
		version = accounts.version + 1,
		updated_at = excluded.updated_at`

	if a.Balance.IsNegative() {
		return fmt.Errorf("account %s balance must not be negative: %w", a.ID, ports.ErrValidation)
	}
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Balance.String(), a.Ceiling.String(), a.IsActive, time.Now().UTC())
	if err != nil {
		return storageError(fmt.Sprintf("upsert account %s", a.ID), err)
	}
	s.logger.Debug(ctx, "Account upserted", map[string]interface{}{"accountID": a.ID, "active": a.IsActive})
	return nil
}

// GetInstrument implements ports.InstrumentCatalog.
func (s *Store) GetInstrument(ctx context.Context, key string) (*domain.Instrument, error) {
	const query = `
	SELECT id, instrument_key, is_active, lot_size
	FROM instruments
	WHERE instrument_key = ?`

	in := &domain.Instrument{}
	err := s.db.QueryRowContext(ctx, query, key).Scan(&in.ID, &in.Key, &in.IsActive, &in.LotSize)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug(ctx, "Instrument not found", map[string]interface{}{"instrument": key})
			return nil, nil
		}
		return nil, storageError(fmt.Sprintf("query instrument %s", key), err)
	}
	return in, nil
}

// UpsertInstrument creates or replaces an instrument row.
func (s *Store) UpsertInstrument(ctx context.Context, in *domain.Instrument) error {
	const query = `
	INSERT INTO instruments (instrument_key, is_active, lot_size)
	VALUES (?, ?, ?)
	ON CONFLICT(instrument_key) DO UPDATE SET
		is_active = excluded.is_active,
		lot_size = excluded.lot_size`

	lot := in.LotSize
	if lot < 1 {
		lot = 1
	}
	_, err := s.db.ExecContext(ctx, query, in.Key, in.IsActive, lot)
	if err != nil {
		return storageError(fmt.Sprintf("upsert instrument %s", in.Key), err)
	}
	s.logger.Debug(ctx, "Instrument upserted", map[string]interface{}{"instrument": in.Key, "lotSize": lot})
	return nil
}
