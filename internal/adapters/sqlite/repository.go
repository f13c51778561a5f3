package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

// Store owns the SQLite handle and hands out repositories, either bound to the
// connection pool or to a single transaction.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath       string
	Logger       ports.Logger
	MaxOpenConns int // Defaults to 1
	BusyTimeout  time.Duration
}

// NewStore opens (and if needed creates) the database and verifies the schema.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_desk.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// Immediate transactions take the write lock at BEGIN, so a read-then-write
	// inside one transaction can never be invalidated by another writer.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate&_foreign_keys=on&_synchronous=FULL",
		dbPath, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath, "maxOpenConns": maxConns})

	store := &Store{db: db, logger: cfg.Logger}
	if err := store.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return store, nil
}

// initializeSchema creates tables if they don't exist.
// Money columns are TEXT holding exact decimal strings.
func (s *Store) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		ceiling TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS instruments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument_key TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		lot_size INTEGER NOT NULL DEFAULT 1 CHECK (lot_size >= 1)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL UNIQUE,
		account_id TEXT NOT NULL,
		instrument_key TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		fee TEXT NOT NULL,
		total_value TEXT NOT NULL,
		order_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		remark TEXT NOT NULL DEFAULT '',
		stop_loss TEXT NULL,
		target_price TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		triggered_at TIMESTAMP NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		instrument_key TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		avg_price TEXT NOT NULL,
		status TEXT NOT NULL,
		realized_pnl TEXT NOT NULL DEFAULT '0',
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NULL,
		trade_id INTEGER NULL REFERENCES trades (id),
		version INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS trade_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL REFERENCES trades (id),
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		before_quantity INTEGER NOT NULL,
		before_price TEXT NOT NULL,
		before_order_kind TEXT NOT NULL,
		before_status TEXT NOT NULL,
		after_quantity INTEGER NOT NULL,
		after_price TEXT NOT NULL,
		after_order_kind TEXT NOT NULL,
		after_status TEXT NOT NULL,
		outcome TEXT NOT NULL,
		remark TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS watchlist (
		account_id TEXT NOT NULL,
		instrument_key TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		avg_price TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (account_id, instrument_key)
	);

	-- At most one open position per account and instrument
	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open ON positions (account_id, instrument_key) WHERE status = 'OPEN';
	CREATE INDEX IF NOT EXISTS idx_positions_account ON positions (account_id, opened_at);
	CREATE INDEX IF NOT EXISTS idx_trades_account_created ON trades (account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_trade_logs_trade ON trade_logs (trade_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing SQLite database connection")
		return s.db.Close()
	}
	return nil
}

// Repositories returns repositories bound to the connection pool.
// They must not be used from inside WithinTx.
func (s *Store) Repositories() ports.Repositories {
	return newRepositories(s.db, s.logger)
}

// GetAccount implements ports.AccountDirectory.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.Repositories().Accounts().GetAccount(ctx, accountID)
}

// WithinTx implements ports.UnitOfWork.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error(ctx, rbErr, "Failed to roll back transaction")
		}
	}()

	if err := fn(ctx, newRepositories(tx, s.logger)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError("commit transaction", err)
	}
	committed = true
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repositories struct {
	accounts  *accountRepo
	positions *positionRepo
	trades    *tradeRepo
	tradeLogs *tradeLogRepo
	watchlist *watchlistRepo
}

func newRepositories(q querier, logger ports.Logger) *repositories {
	return &repositories{
		accounts:  &accountRepo{q: q, logger: logger},
		positions: &positionRepo{q: q, logger: logger},
		trades:    &tradeRepo{q: q, logger: logger},
		tradeLogs: &tradeLogRepo{q: q, logger: logger},
		watchlist: &watchlistRepo{q: q, logger: logger},
	}
}

func (r *repositories) Accounts() ports.AccountRepository    { return r.accounts }
func (r *repositories) Positions() ports.PositionRepository  { return r.positions }
func (r *repositories) Trades() ports.TradeRepository        { return r.trades }
func (r *repositories) TradeLogs() ports.TradeLogRepository  { return r.tradeLogs }
func (r *repositories) Watchlist() ports.WatchlistRepository { return r.watchlist }

// storageError wraps a driver error into the error taxonomy. Lock contention
// and constraint races are retryable conflicts; everything else is internal.
func storageError(op string, err error) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch {
		case sqErr.Code == sqlite3.ErrBusy, sqErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%s: %w", op, ports.ErrConflict)
		case sqErr.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%s: %w", op, ports.ErrConflict)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ports.ErrInternal, err)
}
