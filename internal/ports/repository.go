package ports

import (
	"context"
	"time"

	"tradeDesk/internal/domain"

	"github.com/shopspring/decimal"
)

// AccountDirectory resolves accounts for the execution flow.
// Returns nil, nil if the account does not exist.
type AccountDirectory interface {
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

// InstrumentCatalog resolves tradable instruments by key.
// Returns nil, nil if the instrument does not exist.
type InstrumentCatalog interface {
	GetInstrument(ctx context.Context, key string) (*domain.Instrument, error)
}

// AccountRepository reads and mutates account balances.
type AccountRepository interface {
	AccountDirectory
	// UpdateBalance stores a new balance if the account is still at expectedVersion.
	// A stale version yields ErrConflict.
	UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal, expectedVersion int64) error
}

// PositionRepository defines the interface for storing and retrieving positions.
type PositionRepository interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update modifies an existing position guarded by its version.
	// A stale version yields ErrConflict.
	Update(ctx context.Context, pos *domain.Position) error
	// FindOpen retrieves the open position for an account and instrument.
	// Returns nil, nil if no open position is found.
	FindOpen(ctx context.Context, accountID, instrumentKey string) (*domain.Position, error)
	// FindByAccount retrieves all positions of an account, newest first.
	FindByAccount(ctx context.Context, accountID string) ([]*domain.Position, error)
}

// TradeRepository defines the interface for storing and retrieving trades.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByID returns nil, nil if the trade does not exist.
	FindByID(ctx context.Context, id int64) (*domain.Trade, error)
	// UpdatePending rewrites a trade that is still PENDING at trade.Version.
	// If the stored trade has moved on, ErrConflict is returned.
	UpdatePending(ctx context.Context, trade *domain.Trade) error
	// FindByAccount retrieves the most recent trades of an account, up to a limit.
	// A limit <= 0 returns all trades.
	FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error)
	// CountExecutedSince counts executed trades of an account created at or after since.
	CountExecutedSince(ctx context.Context, accountID string, since time.Time) (int, error)
}

// TradeLogRepository is the append-only audit log of trade modifications.
type TradeLogRepository interface {
	Append(ctx context.Context, entry *domain.TradeLog) (int64, error)
	FindByTrade(ctx context.Context, tradeID int64) ([]*domain.TradeLog, error)
}

// WatchlistRepository stores the denormalized position projection.
type WatchlistRepository interface {
	Upsert(ctx context.Context, entry *domain.WatchlistEntry) error
	// Find returns nil, nil if there is no entry.
	Find(ctx context.Context, accountID, instrumentKey string) (*domain.WatchlistEntry, error)
	FindByAccount(ctx context.Context, accountID string) ([]*domain.WatchlistEntry, error)
}

// Repositories groups the repositories that share one storage handle.
type Repositories interface {
	Accounts() AccountRepository
	Positions() PositionRepository
	Trades() TradeRepository
	TradeLogs() TradeLogRepository
	Watchlist() WatchlistRepository
}

// UnitOfWork runs a function against repositories bound to one atomic transaction.
// If fn returns an error every write made through tx is rolled back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
