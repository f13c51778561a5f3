package app

import (
	"context"
	"fmt"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
	"tradeDesk/internal/projection"
)

// Account returns an account or ports.ErrNotFound.
func (s *ExecutionService) Account(ctx context.Context, accountID string) (*domain.Account, error) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	return acct, nil
}

// Watchlist lists the projected quantity and average price per instrument.
func (s *ExecutionService) Watchlist(ctx context.Context, accountID string) ([]*domain.WatchlistEntry, error) {
	return projection.New(s.reads.Watchlist()).List(ctx, accountID)
}

// Positions lists open and closed positions of an account, newest first.
func (s *ExecutionService) Positions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	return s.reads.Positions().FindByAccount(ctx, accountID)
}

// TradeHistory lists the most recent trades of an account. A limit <= 0
// returns all of them.
func (s *ExecutionService) TradeHistory(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error) {
	return s.reads.Trades().FindByAccount(ctx, accountID, limit)
}

// TradeAudit returns the modification log of a trade, oldest first.
func (s *ExecutionService) TradeAudit(ctx context.Context, tradeID int64) ([]*domain.TradeLog, error) {
	return s.reads.TradeLogs().FindByTrade(ctx, tradeID)
}
