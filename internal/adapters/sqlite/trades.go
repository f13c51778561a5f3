package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
)

type tradeRepo struct {
	q      querier
	logger ports.Logger
}

const tradeColumns = `id, transaction_id, account_id, instrument_key, direction, quantity, price, fee,
	total_value, order_kind, status, remark, stop_loss, target_price, created_at, updated_at,
	triggered_at, version`

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *tradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (transaction_id, account_id, instrument_key, direction, quantity, price, fee,
	                    total_value, order_kind, status, remark, stop_loss, target_price,
	                    created_at, updated_at, triggered_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`

	result, err := r.q.ExecContext(ctx, query,
		trade.TransactionID, trade.AccountID, trade.InstrumentKey, trade.Direction, trade.Quantity,
		trade.Price.String(), trade.Fee.String(), trade.TotalValue.String(), trade.OrderKind, trade.Status,
		trade.Remark, trade.StopLoss, trade.TargetPrice,
		trade.CreatedAt, trade.UpdatedAt, nullTime(trade.TriggeredAt))
	if err != nil {
		return 0, storageError(fmt.Sprintf("insert trade %s", trade.TransactionID), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageError(fmt.Sprintf("last insert ID for trade %s", trade.TransactionID), err)
	}
	trade.ID = id
	trade.Version = 0
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "status": trade.Status, "instrument": trade.InstrumentKey})
	return id, nil
}

// FindByID retrieves a trade by its unique ID.
func (r *tradeRepo) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = ?`

	trade, err := scanTrade(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Trade not found by ID", map[string]interface{}{"tradeID": id})
			return nil, nil
		}
		return nil, storageError(fmt.Sprintf("query trade ID %d", id), err)
	}
	return trade, nil
}

// UpdatePending rewrites the mutable fields of a trade that is still PENDING.
func (r *tradeRepo) UpdatePending(ctx context.Context, trade *domain.Trade) error {
	const query = `
	UPDATE trades
	SET quantity = ?, price = ?, fee = ?, total_value = ?, order_kind = ?, status = ?, remark = ?,
	    stop_loss = ?, target_price = ?, updated_at = ?, triggered_at = ?, version = version + 1
	WHERE id = ? AND status = ? AND version = ?`

	result, err := r.q.ExecContext(ctx, query,
		trade.Quantity, trade.Price.String(), trade.Fee.String(), trade.TotalValue.String(), trade.OrderKind,
		trade.Status, trade.Remark, trade.StopLoss, trade.TargetPrice, trade.UpdatedAt, nullTime(trade.TriggeredAt),
		trade.ID, domain.TradePending, trade.Version)
	if err != nil {
		return storageError(fmt.Sprintf("update trade ID %d", trade.ID), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError(fmt.Sprintf("rows affected for trade ID %d", trade.ID), err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d is no longer pending at version %d: %w", trade.ID, trade.Version, ports.ErrConflict)
	}
	trade.Version++
	r.logger.Debug(ctx, "Pending trade updated", map[string]interface{}{"tradeID": trade.ID, "status": trade.Status})
	return nil
}

// FindByAccount retrieves the most recent trades of an account.
func (r *tradeRepo) FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
	FROM trades
	WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.q.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, storageError(fmt.Sprintf("query trades of account %s", accountID), err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, storageError("scan trade", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError("iterate trade rows", err)
	}
	return trades, nil
}

// CountExecutedSince counts executed trades of an account created at or after since.
func (r *tradeRepo) CountExecutedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE account_id = ? AND status = ? AND created_at >= ?`
	var count int
	err := r.q.QueryRowContext(ctx, query, accountID, domain.TradeExecuted, since.UTC()).Scan(&count)
	if err != nil {
		return 0, storageError(fmt.Sprintf("count executed trades of account %s", accountID), err)
	}
	return count, nil
}
