package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeDesk/config"
	"tradeDesk/internal/domain"
	"tradeDesk/internal/journal"
	"tradeDesk/internal/keylock"
	"tradeDesk/internal/ledger"
	"tradeDesk/internal/ports"
	"tradeDesk/internal/positions"
	"tradeDesk/internal/projection"
	"tradeDesk/internal/risk"

	"github.com/shopspring/decimal"
)

// Dependencies are the collaborators of ExecutionService.
type Dependencies struct {
	Logger      ports.Logger
	UoW         ports.UnitOfWork
	Reads       ports.Repositories // Non-transactional reads
	Accounts    ports.AccountDirectory
	Instruments ports.InstrumentCatalog
	Risk        *risk.RiskManager // Optional
	Locker      *keylock.Locker   // Optional; a private locker is created if nil
}

// ExecutionService processes trade requests and pending-trade changes. Every
// balance and position change it makes commits atomically together with the
// journal and watchlist writes. Work on one account is serialized; different
// accounts proceed in parallel.
type ExecutionService struct {
	logger      ports.Logger
	uow         ports.UnitOfWork
	reads       ports.Repositories
	accounts    ports.AccountDirectory
	instruments ports.InstrumentCatalog
	risk        *risk.RiskManager
	locker      *keylock.Locker
	journal     *journal.Journal

	lockTimeout        time.Duration
	maxConflictRetries int
	retryMinDelay      time.Duration
	retryMaxDelay      time.Duration
	now                func() time.Time
}

// NewExecutionService creates a new application service instance.
func NewExecutionService(cfg *config.Config, deps Dependencies) (*ExecutionService, error) {
	if cfg == nil || deps.Logger == nil || deps.UoW == nil || deps.Reads == nil || deps.Accounts == nil || deps.Instruments == nil {
		return nil, fmt.Errorf("missing required dependencies for ExecutionService")
	}
	if cfg.LockTimeout <= 0 {
		return nil, fmt.Errorf("configuration LockTimeout must be positive")
	}
	if cfg.MaxConflictRetries < 0 {
		return nil, fmt.Errorf("configuration MaxConflictRetries cannot be negative")
	}

	locker := deps.Locker
	if locker == nil {
		locker = keylock.New()
	}
	return &ExecutionService{
		logger:             deps.Logger,
		uow:                deps.UoW,
		reads:              deps.Reads,
		accounts:           deps.Accounts,
		instruments:        deps.Instruments,
		risk:               deps.Risk,
		locker:             locker,
		journal:            journal.New(deps.UoW, deps.Logger),
		lockTimeout:        cfg.LockTimeout,
		maxConflictRetries: cfg.MaxConflictRetries,
		retryMinDelay:      cfg.RetryMinDelay,
		retryMaxDelay:      cfg.RetryMaxDelay,
		now:                func() time.Time { return time.Now().UTC() },
	}, nil
}

// settlement is the outcome of an executed trade.
type settlement struct {
	balance     decimal.Decimal
	position    *domain.Position
	realizedPnL decimal.Decimal
}

// ExecuteTrade processes a buy or sell request. Input-shape errors return
// without a trade row; every request that reaches account and instrument
// resolution leaves exactly one trade row (PENDING, EXECUTED or REJECTED).
func (s *ExecutionService) ExecuteTrade(ctx context.Context, req TradeRequest) (*ExecutionResult, error) {
	req, err := req.validate()
	if err != nil {
		s.logger.Warn(ctx, "Trade request rejected by validation", map[string]interface{}{"error": err.Error()})
		return errorResult(nil, err), err
	}

	var (
		res   *ExecutionResult
		draft *domain.Trade
	)
	err = s.withConflictRetry(ctx, "execute trade", func() error {
		release, err := s.locker.Acquire(ctx, req.AccountID, s.lockTimeout)
		if err != nil {
			return err
		}
		defer release()

		res, draft, err = s.executeLocked(ctx, req)
		return err
	})
	if err == nil || res != nil {
		return res, err
	}

	// Storage failure or exhausted retries after resolution started.
	if draft != nil {
		rejected := s.journal.RecordRejected(ctx, draft, ports.PublicMessage(err))
		return errorResult(rejected, err), err
	}
	return errorResult(nil, err), err
}

// executeLocked runs one attempt with the account lock held. Business
// failures are journaled here and returned with a result; infrastructure
// failures return a nil result so the caller can retry or journal them.
func (s *ExecutionService) executeLocked(ctx context.Context, req TradeRequest) (*ExecutionResult, *domain.Trade, error) {
	draft := req.draft()

	inst, err := s.resolve(ctx, draft.AccountID, draft.InstrumentKey)
	if err != nil {
		if isBusinessFailure(err) {
			return s.reject(ctx, draft, err)
		}
		return nil, draft, err
	}

	if err := s.checkOrder(ctx, draft, inst); err != nil {
		if isBusinessFailure(err) {
			return s.reject(ctx, draft, err)
		}
		return nil, draft, err
	}

	if draft.OrderKind != domain.Market {
		draft.Status = domain.TradePending
		draft.Remark = fmt.Sprintf("%s order awaiting trigger", draft.OrderKind)
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
			return s.journal.RecordAttempt(ctx, tx.Trades(), draft)
		})
		if err != nil {
			return nil, draft, err
		}
		return okResult(draft, decimal.NullDecimal{}, nil), draft, nil
	}

	out, err := s.settle(ctx, draft, func(ctx context.Context, tx ports.Repositories) error {
		draft.Status = domain.TradeExecuted
		draft.Remark = "executed"
		return s.journal.RecordAttempt(ctx, tx.Trades(), draft)
	})
	if err != nil {
		if isBusinessFailure(err) {
			return s.reject(ctx, draft, err)
		}
		return nil, draft, err
	}

	s.logger.Info(ctx, "Trade executed", map[string]interface{}{
		"tradeID":    draft.ID,
		"account":    draft.AccountID,
		"instrument": draft.InstrumentKey,
		"direction":  draft.Direction,
		"quantity":   draft.Quantity,
		"balance":    out.balance.String(),
	})
	return okResult(draft, decimal.NewNullDecimal(out.balance), out.position), draft, nil
}

// resolve checks that the account and instrument exist and are active.
func (s *ExecutionService) resolve(ctx context.Context, accountID, instrumentKey string) (*domain.Instrument, error) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	if !acct.IsActive {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrInactiveResource)
	}

	inst, err := s.instruments.GetInstrument(ctx, instrumentKey)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instrument %s: %w", instrumentKey, ports.ErrNotFound)
	}
	if !inst.IsActive {
		return nil, fmt.Errorf("instrument %s: %w", instrumentKey, ports.ErrInactiveResource)
	}
	return inst, nil
}

// checkOrder validates a resolved trade: lot size, fee coverage, sell
// sufficiency for orders that will not settle now, and risk limits.
func (s *ExecutionService) checkOrder(ctx context.Context, t *domain.Trade, inst *domain.Instrument) error {
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d must be positive", ports.ErrValidation, t.Quantity)
	}
	lotSize := inst.LotSize
	if lotSize < 1 {
		lotSize = 1
	}
	if t.Quantity%lotSize != 0 {
		return fmt.Errorf("%w: quantity %d is not a multiple of lot size %d for %s",
			ports.ErrValidation, t.Quantity, lotSize, inst.Key)
	}
	if t.Direction == domain.Sell && t.TotalValue.IsNegative() {
		return fmt.Errorf("%w: fee %s exceeds sell proceeds", ports.ErrValidation, t.Fee.String())
	}

	needHeld := t.Direction == domain.Sell || (s.risk != nil && s.risk.Enabled())
	var held int64
	if needHeld {
		pos, err := s.reads.Positions().FindOpen(ctx, t.AccountID, t.InstrumentKey)
		if err != nil {
			return err
		}
		if pos != nil {
			held = pos.Quantity
		}
	}
	if t.Direction == domain.Sell && held < t.Quantity {
		return &ports.InsufficientQuantityError{
			AccountID:     t.AccountID,
			InstrumentKey: t.InstrumentKey,
			Requested:     t.Quantity,
			Held:          held,
		}
	}

	if s.risk == nil || !s.risk.Enabled() {
		return nil
	}
	executed, err := s.reads.Trades().CountExecutedSince(ctx, t.AccountID, risk.StartOfDay(s.now()))
	if err != nil {
		return err
	}
	return s.risk.ValidateOrder(ctx, risk.OrderCheck{
		AccountID:     t.AccountID,
		Direction:     t.Direction,
		Quantity:      t.Quantity,
		Amount:        t.TotalValue,
		HeldQuantity:  held,
		ExecutedToday: executed,
	})
}

// settle applies a trade to ledger, position book and watchlist in one
// transaction. record writes the journal entry and runs first so the
// position can reference the trade ID.
func (s *ExecutionService) settle(ctx context.Context, t *domain.Trade, record func(ctx context.Context, tx ports.Repositories) error) (*settlement, error) {
	out := &settlement{}
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
		if err := record(ctx, tx); err != nil {
			return err
		}

		l := ledger.New(tx.Accounts())
		book := positions.New(tx.Positions())
		switch t.Direction {
		case domain.Buy:
			balance, err := l.Debit(ctx, t.AccountID, t.TotalValue)
			if err != nil {
				return err
			}
			pos, err := book.ApplyBuy(ctx, t.AccountID, t.InstrumentKey, t.Quantity, t.Price, t.ID)
			if err != nil {
				return err
			}
			out.balance, out.position = balance, pos
		case domain.Sell:
			res, err := book.ApplySell(ctx, t.AccountID, t.InstrumentKey, t.Quantity, t.Price, t.Fee)
			if err != nil {
				return err
			}
			balance, err := l.Credit(ctx, t.AccountID, t.TotalValue)
			if err != nil {
				return err
			}
			out.balance, out.position, out.realizedPnL = balance, res.Position, res.RealizedPnL
		default:
			return fmt.Errorf("%w: unknown direction %q", ports.ErrValidation, t.Direction)
		}

		return projection.New(tx.Watchlist()).FromPosition(ctx, out.position)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// reject journals draft as REJECTED with cause as the remark.
func (s *ExecutionService) reject(ctx context.Context, draft *domain.Trade, cause error) (*ExecutionResult, *domain.Trade, error) {
	rejected := s.journal.RecordRejected(ctx, draft, cause.Error())
	s.logger.Warn(ctx, "Trade rejected", map[string]interface{}{
		"tradeID":    rejected.ID,
		"account":    draft.AccountID,
		"instrument": draft.InstrumentKey,
		"code":       ports.Classify(cause),
		"remark":     cause.Error(),
	})
	return errorResult(rejected, cause), draft, cause
}

// isBusinessFailure reports whether err is a deterministic refusal that
// should be journaled, as opposed to a retryable or infrastructure error.
func isBusinessFailure(err error) bool {
	for _, target := range []error{
		ports.ErrValidation,
		ports.ErrNotFound,
		ports.ErrInactiveResource,
		ports.ErrInsufficientFunds,
		ports.ErrInsufficientQuantity,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
