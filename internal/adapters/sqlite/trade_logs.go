package sqlite

import (
	"context"
	"fmt"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
)

type tradeLogRepo struct {
	q      querier
	logger ports.Logger
}

// Append writes one audit entry. Entries are never updated.
func (r *tradeLogRepo) Append(ctx context.Context, entry *domain.TradeLog) (int64, error) {
	const query = `
	INSERT INTO trade_logs (trade_id, actor_id, action,
	                        before_quantity, before_price, before_order_kind, before_status,
	                        after_quantity, after_price, after_order_kind, after_status,
	                        outcome, remark, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.q.ExecContext(ctx, query,
		entry.TradeID, entry.ActorID, entry.Action,
		entry.Before.Quantity, entry.Before.Price.String(), entry.Before.OrderKind, entry.Before.Status,
		entry.After.Quantity, entry.After.Price.String(), entry.After.OrderKind, entry.After.Status,
		entry.Outcome, entry.Remark, entry.CreatedAt)
	if err != nil {
		return 0, storageError(fmt.Sprintf("insert trade log for trade %d", entry.TradeID), err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageError(fmt.Sprintf("last insert ID for trade log of trade %d", entry.TradeID), err)
	}
	entry.ID = id
	r.logger.Debug(ctx, "Trade log appended", map[string]interface{}{"tradeID": entry.TradeID, "action": entry.Action, "outcome": entry.Outcome})
	return id, nil
}

// FindByTrade returns the audit trail of a trade, oldest first.
func (r *tradeLogRepo) FindByTrade(ctx context.Context, tradeID int64) ([]*domain.TradeLog, error) {
	const query = `
	SELECT id, trade_id, actor_id, action,
	       before_quantity, before_price, before_order_kind, before_status,
	       after_quantity, after_price, after_order_kind, after_status,
	       outcome, remark, created_at
	FROM trade_logs
	WHERE trade_id = ?
	ORDER BY id ASC`

	rows, err := r.q.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, storageError(fmt.Sprintf("query trade logs of trade %d", tradeID), err)
	}
	defer rows.Close()

	logs := make([]*domain.TradeLog, 0)
	for rows.Next() {
		l := &domain.TradeLog{}
		var action, outcome, beforeKind, beforeStatus, afterKind, afterStatus string
		if err := rows.Scan(&l.ID, &l.TradeID, &l.ActorID, &action,
			&l.Before.Quantity, &l.Before.Price, &beforeKind, &beforeStatus,
			&l.After.Quantity, &l.After.Price, &afterKind, &afterStatus,
			&outcome, &l.Remark, &l.CreatedAt); err != nil {
			return nil, storageError("scan trade log", err)
		}
		l.Action = domain.TradeAction(action)
		l.Outcome = domain.LogOutcome(outcome)
		l.Before.OrderKind = domain.OrderKind(beforeKind)
		l.Before.Status = domain.TradeStatus(beforeStatus)
		l.After.OrderKind = domain.OrderKind(afterKind)
		l.After.Status = domain.TradeStatus(afterStatus)
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError("iterate trade log rows", err)
	}
	return logs, nil
}
