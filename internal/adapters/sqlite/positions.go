package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
)

type positionRepo struct {
	q      querier
	logger ports.Logger
}

const positionColumns = `id, account_id, instrument_key, quantity, avg_price, status,
	realized_pnl, opened_at, closed_at, trade_id, version`

// Create saves a new position and returns its assigned ID.
func (r *positionRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (account_id, instrument_key, quantity, avg_price, status,
	                       realized_pnl, opened_at, closed_at, trade_id, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`

	result, err := r.q.ExecContext(ctx, query,
		pos.AccountID, pos.InstrumentKey, pos.Quantity, pos.AvgPrice.String(), pos.Status,
		pos.RealizedPnL.String(), pos.OpenedAt, nullTime(pos.ClosedAt), nullID(pos.TradeID))
	if err != nil {
		return 0, storageError(fmt.Sprintf("insert position %s/%s", pos.AccountID, pos.InstrumentKey), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageError(fmt.Sprintf("last insert ID for position %s/%s", pos.AccountID, pos.InstrumentKey), err)
	}
	pos.ID = id
	pos.Version = 0
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "account": pos.AccountID, "instrument": pos.InstrumentKey})
	return id, nil
}

// Update modifies an existing position guarded by its version.
func (r *positionRepo) Update(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET quantity = ?, avg_price = ?, status = ?, realized_pnl = ?, closed_at = ?, version = version + 1
	WHERE id = ? AND version = ?`

	result, err := r.q.ExecContext(ctx, query,
		pos.Quantity, pos.AvgPrice.String(), pos.Status, pos.RealizedPnL.String(), nullTime(pos.ClosedAt),
		pos.ID, pos.Version)
	if err != nil {
		return storageError(fmt.Sprintf("update position ID %d", pos.ID), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError(fmt.Sprintf("rows affected for position ID %d", pos.ID), err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d changed since version %d: %w", pos.ID, pos.Version, ports.ErrConflict)
	}
	pos.Version++
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": pos.ID, "quantity": pos.Quantity, "status": pos.Status})
	return nil
}

// FindOpen retrieves the open position for an account and instrument, if any.
func (r *positionRepo) FindOpen(ctx context.Context, accountID, instrumentKey string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE account_id = ? AND instrument_key = ? AND status = ?`

	pos, err := scanPosition(r.q.QueryRowContext(ctx, query, accountID, instrumentKey, domain.StatusOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, storageError(fmt.Sprintf("query open position %s/%s", accountID, instrumentKey), err)
	}
	return pos, nil
}

// FindByAccount retrieves all positions of an account, newest first.
func (r *positionRepo) FindByAccount(ctx context.Context, accountID string) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + `
	FROM positions
	WHERE account_id = ?
	ORDER BY opened_at DESC, id DESC`

	rows, err := r.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, storageError(fmt.Sprintf("query positions of account %s", accountID), err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, storageError("scan position", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError("iterate position rows", err)
	}
	return positions, nil
}
