package app

import (
	"context"
	"fmt"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

// ModifyPendingTrade changes a PENDING trade owned by the actor. Converting it
// to MARKET settles it through the same atomic path as ExecuteTrade. Every
// attempt on an existing trade appends one trade log entry; a call executes
// the trade at most once.
func (s *ExecutionService) ModifyPendingTrade(ctx context.Context, req ModifyRequest) (*ExecutionResult, error) {
	req, err := req.validate()
	if err != nil {
		return errorResult(nil, err), err
	}
	return s.mutatePending(ctx, req.TradeID, req.ActorID, domain.ActionModify, func(ctx context.Context, t *domain.Trade, entry *domain.TradeLog) (*ExecutionResult, error) {
		return s.modifyLocked(ctx, req, t, entry)
	})
}

// CancelPendingTrade moves a PENDING trade owned by the actor to CANCELLED.
func (s *ExecutionService) CancelPendingTrade(ctx context.Context, req CancelRequest) (*ExecutionResult, error) {
	if req.TradeID <= 0 || req.ActorID == "" {
		err := fmt.Errorf("%w: tradeId and actorId are required", ports.ErrValidation)
		return errorResult(nil, err), err
	}
	return s.mutatePending(ctx, req.TradeID, req.ActorID, domain.ActionCancel, func(ctx context.Context, t *domain.Trade, entry *domain.TradeLog) (*ExecutionResult, error) {
		updated := *t
		updated.Status = domain.TradeCancelled
		updated.Remark = "cancelled"
		if req.Reason != "" {
			updated.Remark = "cancelled: " + req.Reason
		}
		updated.UpdatedAt = s.now()
		entry.After = domain.SnapshotOf(&updated)
		entry.Outcome = domain.OutcomeApplied
		entry.Remark = updated.Remark

		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
			if err := tx.Trades().UpdatePending(ctx, &updated); err != nil {
				return err
			}
			return s.journal.RecordModification(ctx, tx.TradeLogs(), entry)
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "Pending trade cancelled", map[string]interface{}{"tradeID": updated.ID, "actor": req.ActorID})
		return okResult(&updated, decimal.NullDecimal{}, nil), nil
	})
}

// pendingMutation performs one change on a trade that is known to be PENDING
// and owned by the actor. It returns a nil result for errors that were not
// logged yet (conflicts and storage failures).
type pendingMutation func(ctx context.Context, t *domain.Trade, entry *domain.TradeLog) (*ExecutionResult, error)

// mutatePending runs the shared lookup, ownership and state checks under the
// owner's account lock, retrying conflicts.
func (s *ExecutionService) mutatePending(ctx context.Context, tradeID int64, actorID string, action domain.TradeAction, mutate pendingMutation) (*ExecutionResult, error) {
	t, err := s.reads.Trades().FindByID(ctx, tradeID)
	if err != nil {
		return errorResult(nil, err), err
	}
	if t == nil {
		err := fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
		return errorResult(nil, err), err
	}
	lockKey := t.AccountID // Ownership never changes

	var res *ExecutionResult
	err = s.withConflictRetry(ctx, string(action)+" trade", func() error {
		release, err := s.locker.Acquire(ctx, lockKey, s.lockTimeout)
		if err != nil {
			return err
		}
		defer release()

		// Reload under the lock; a concurrent call may have settled it.
		current, err := s.reads.Trades().FindByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if current == nil {
			err := fmt.Errorf("trade %d: %w", tradeID, ports.ErrNotFound)
			res = errorResult(nil, err)
			return err
		}
		t = current

		entry := &domain.TradeLog{
			TradeID: t.ID,
			ActorID: actorID,
			Action:  action,
			Before:  domain.SnapshotOf(t),
			After:   domain.SnapshotOf(t),
		}
		if actorID != t.AccountID {
			res, err = s.rejectModification(ctx, t, entry, fmt.Errorf("actor %s does not own trade %d: %w", actorID, t.ID, ports.ErrPermissionDenied))
			return err
		}
		if !t.IsPending() {
			res, err = s.rejectModification(ctx, t, entry, fmt.Errorf("trade %d is %s: %w", t.ID, t.Status, ports.ErrInvalidState))
			return err
		}

		res, err = mutate(ctx, t, entry)
		return err
	})
	if err == nil || res != nil {
		return res, err
	}

	// Conflicts exhausted or storage failed before the attempt was logged.
	snap := domain.SnapshotOf(t)
	s.journal.RecordModificationOutcome(ctx, &domain.TradeLog{
		TradeID: t.ID,
		ActorID: actorID,
		Action:  action,
		Before:  snap,
		After:   snap,
		Outcome: domain.OutcomeRejected,
		Remark:  ports.PublicMessage(err),
	})
	return errorResult(t, err), err
}

func (s *ExecutionService) modifyLocked(ctx context.Context, req ModifyRequest, t *domain.Trade, entry *domain.TradeLog) (*ExecutionResult, error) {
	updated := req.applyTo(t)
	updated.UpdatedAt = s.now()
	entry.After = domain.SnapshotOf(updated)

	inst, err := s.resolve(ctx, updated.AccountID, updated.InstrumentKey)
	if err == nil {
		err = s.checkOrder(ctx, updated, inst)
	}
	if err != nil {
		if isBusinessFailure(err) {
			return s.rejectModification(ctx, t, entry, err)
		}
		return nil, err
	}

	if updated.OrderKind != domain.Market {
		updated.Remark = fmt.Sprintf("%s order modified", updated.OrderKind)
		entry.Outcome = domain.OutcomeApplied
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
			if err := tx.Trades().UpdatePending(ctx, updated); err != nil {
				return err
			}
			return s.journal.RecordModification(ctx, tx.TradeLogs(), entry)
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "Pending trade modified", map[string]interface{}{"tradeID": updated.ID, "actor": req.ActorID})
		return okResult(updated, decimal.NullDecimal{}, nil), nil
	}

	requested := entry.After
	out, err := s.settle(ctx, updated, func(ctx context.Context, tx ports.Repositories) error {
		updated.Status = domain.TradeExecuted
		updated.Remark = "executed on modification"
		updated.TriggeredAt = updated.UpdatedAt
		if err := tx.Trades().UpdatePending(ctx, updated); err != nil {
			return err
		}
		entry.After = domain.SnapshotOf(updated)
		entry.Outcome = domain.OutcomeExecuted
		entry.Remark = updated.Remark
		return s.journal.RecordModification(ctx, tx.TradeLogs(), entry)
	})
	if err != nil {
		if isBusinessFailure(err) {
			// Nothing was applied; the trade stays PENDING.
			entry.After = requested
			return s.rejectModification(ctx, t, entry, err)
		}
		return nil, err
	}

	s.logger.Info(ctx, "Pending trade executed", map[string]interface{}{
		"tradeID": updated.ID,
		"actor":   req.ActorID,
		"balance": out.balance.String(),
	})
	return okResult(updated, decimal.NewNullDecimal(out.balance), out.position), nil
}

// rejectModification logs a refused attempt in its own transaction and
// returns the error with the unchanged trade. entry.After holds the requested
// state, or the current state when the request was never evaluated.
func (s *ExecutionService) rejectModification(ctx context.Context, t *domain.Trade, entry *domain.TradeLog, cause error) (*ExecutionResult, error) {
	entry.Outcome = domain.OutcomeRejected
	entry.Remark = cause.Error()
	s.journal.RecordModificationOutcome(ctx, entry)
	s.logger.Warn(ctx, "Trade modification rejected", map[string]interface{}{
		"tradeID": t.ID,
		"actor":   entry.ActorID,
		"action":  entry.Action,
		"code":    ports.Classify(cause),
	})
	return errorResult(t, cause), cause
}
