package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
)

type watchlistRepo struct {
	q      querier
	logger ports.Logger
}

// Upsert writes the projection row; repeating it with the same values is a no-op.
func (r *watchlistRepo) Upsert(ctx context.Context, entry *domain.WatchlistEntry) error {
	const query = `
	INSERT INTO watchlist (account_id, instrument_key, quantity, avg_price, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(account_id, instrument_key) DO UPDATE SET
		quantity = excluded.quantity,
		avg_price = excluded.avg_price,
		updated_at = excluded.updated_at`

	_, err := r.q.ExecContext(ctx, query,
		entry.AccountID, entry.InstrumentKey, entry.Quantity, entry.AvgPrice.String(), entry.UpdatedAt)
	if err != nil {
		return storageError(fmt.Sprintf("upsert watchlist %s/%s", entry.AccountID, entry.InstrumentKey), err)
	}
	return nil
}

// Find returns nil, nil if there is no entry.
func (r *watchlistRepo) Find(ctx context.Context, accountID, instrumentKey string) (*domain.WatchlistEntry, error) {
	const query = `
	SELECT account_id, instrument_key, quantity, avg_price, updated_at
	FROM watchlist
	WHERE account_id = ? AND instrument_key = ?`

	e, err := scanWatchlist(r.q.QueryRowContext(ctx, query, accountID, instrumentKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageError(fmt.Sprintf("query watchlist %s/%s", accountID, instrumentKey), err)
	}
	return e, nil
}

// FindByAccount lists the projection rows of an account ordered by instrument key.
func (r *watchlistRepo) FindByAccount(ctx context.Context, accountID string) ([]*domain.WatchlistEntry, error) {
	const query = `
	SELECT account_id, instrument_key, quantity, avg_price, updated_at
	FROM watchlist
	WHERE account_id = ?
	ORDER BY instrument_key ASC`

	rows, err := r.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, storageError(fmt.Sprintf("query watchlist of account %s", accountID), err)
	}
	defer rows.Close()

	entries := make([]*domain.WatchlistEntry, 0)
	for rows.Next() {
		e, err := scanWatchlist(rows)
		if err != nil {
			return nil, storageError("scan watchlist entry", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, storageError("iterate watchlist rows", err)
	}
	return entries, nil
}
