// Package journal is the append-only audit trail of trade attempts and
// of later modifications to pending trades.
package journal

import (
	"context"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/google/uuid"
)

// Journal writes trades and trade logs. In-transaction writes go through the
// repositories passed by the caller; out-of-band writes open their own
// transaction on uow and never fail the caller.
type Journal struct {
	uow    ports.UnitOfWork
	logger ports.Logger
	now    func() time.Time
}

// New creates a journal.
func New(uow ports.UnitOfWork, logger ports.Logger) *Journal {
	return &Journal{
		uow:    uow,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Stamp fills the identity and timestamps of a trade that has not been stored yet.
func (j *Journal) Stamp(t *domain.Trade) {
	now := j.now()
	if t.TransactionID == "" {
		t.TransactionID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == domain.TradeExecuted && t.TriggeredAt.IsZero() {
		t.TriggeredAt = now
	}
}

// RecordAttempt writes t inside the caller's transaction.
func (j *Journal) RecordAttempt(ctx context.Context, trades ports.TradeRepository, t *domain.Trade) error {
	j.Stamp(t)
	if _, err := trades.CreateTrade(ctx, t); err != nil {
		return err
	}
	j.logger.Info(ctx, "Trade journaled", map[string]interface{}{
		"tradeID":       t.ID,
		"transactionID": t.TransactionID,
		"status":        t.Status,
		"direction":     t.Direction,
		"quantity":      t.Quantity,
		"price":         t.Price.String(),
	})
	return nil
}

// RecordRejected writes t as REJECTED in its own transaction. The write
// ignores cancellation of ctx. A storage failure is logged and the returned
// trade keeps a zero ID.
func (j *Journal) RecordRejected(ctx context.Context, t *domain.Trade, remark string) *domain.Trade {
	ctx = context.WithoutCancel(ctx)
	// t may carry identity from an insert that was rolled back.
	t.ID = 0
	t.Version = 0
	t.Status = domain.TradeRejected
	t.Remark = remark
	t.TriggeredAt = time.Time{}
	err := j.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
		return j.RecordAttempt(ctx, tx.Trades(), t)
	})
	if err != nil {
		t.ID = 0
		j.logger.Error(ctx, err, "Failed to journal rejected trade", map[string]interface{}{
			"transactionID": t.TransactionID,
			"remark":        remark,
		})
	}
	return t
}

// RecordModification appends a trade log entry inside the caller's transaction.
func (j *Journal) RecordModification(ctx context.Context, logs ports.TradeLogRepository, entry *domain.TradeLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = j.now()
	}
	if _, err := logs.Append(ctx, entry); err != nil {
		return err
	}
	j.logger.Info(ctx, "Trade modification logged", map[string]interface{}{
		"tradeID": entry.TradeID,
		"actor":   entry.ActorID,
		"action":  entry.Action,
		"outcome": entry.Outcome,
	})
	return nil
}

// RecordModificationOutcome appends a trade log entry in its own transaction,
// even when ctx is already cancelled. Failures are logged, never returned.
func (j *Journal) RecordModificationOutcome(ctx context.Context, entry *domain.TradeLog) {
	ctx = context.WithoutCancel(ctx)
	err := j.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
		return j.RecordModification(ctx, tx.TradeLogs(), entry)
	})
	if err != nil {
		j.logger.Error(ctx, err, "Failed to log trade modification", map[string]interface{}{
			"tradeID": entry.TradeID,
			"outcome": entry.Outcome,
		})
	}
}
