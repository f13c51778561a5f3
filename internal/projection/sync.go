// Package projection keeps the watchlist, a denormalized per-instrument copy
// of position quantity and average price, in step with the position book.
package projection

import (
	"context"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

// Sync writes and reads watchlist entries.
type Sync struct {
	watchlist ports.WatchlistRepository
	now       func() time.Time
}

// New returns a projection bound to the given repository.
func New(watchlist ports.WatchlistRepository) *Sync {
	return &Sync{watchlist: watchlist, now: func() time.Time { return time.Now().UTC() }}
}

// Refresh upserts the entry for (accountID, instrumentKey).
func (s *Sync) Refresh(ctx context.Context, accountID, instrumentKey string, quantity int64, avgPrice decimal.Decimal) error {
	return s.watchlist.Upsert(ctx, &domain.WatchlistEntry{
		AccountID:     accountID,
		InstrumentKey: instrumentKey,
		Quantity:      quantity,
		AvgPrice:      avgPrice,
		UpdatedAt:     s.now(),
	})
}

// FromPosition refreshes the entry from a position. A closed position
// projects as zero quantity and zero average price.
func (s *Sync) FromPosition(ctx context.Context, pos *domain.Position) error {
	if !pos.IsOpen() {
		return s.Refresh(ctx, pos.AccountID, pos.InstrumentKey, 0, decimal.Zero)
	}
	return s.Refresh(ctx, pos.AccountID, pos.InstrumentKey, pos.Quantity, pos.AvgPrice)
}

// List returns the watchlist of an account.
func (s *Sync) List(ctx context.Context, accountID string) ([]*domain.WatchlistEntry, error) {
	return s.watchlist.FindByAccount(ctx, accountID)
}
