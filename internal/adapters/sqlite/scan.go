package sqlite

import (
	"database/sql"
	"time"

	"tradeDesk/internal/domain"
)

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var closedAt sql.NullTime
	var tradeID sql.NullInt64
	var status string
	err := s.Scan(
		&p.ID, &p.AccountID, &p.InstrumentKey, &p.Quantity, &p.AvgPrice, &status,
		&p.RealizedPnL, &p.OpenedAt, &closedAt, &tradeID, &p.Version)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	if tradeID.Valid {
		p.TradeID = tradeID.Int64
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var direction, orderKind, status string
	var triggeredAt sql.NullTime
	err := s.Scan(
		&t.ID, &t.TransactionID, &t.AccountID, &t.InstrumentKey, &direction, &t.Quantity, &t.Price, &t.Fee,
		&t.TotalValue, &orderKind, &status, &t.Remark, &t.StopLoss, &t.TargetPrice, &t.CreatedAt, &t.UpdatedAt,
		&triggeredAt, &t.Version)
	if err != nil {
		return nil, err
	}
	if triggeredAt.Valid {
		t.TriggeredAt = triggeredAt.Time
	}
	t.Direction = domain.Direction(direction)
	t.OrderKind = domain.OrderKind(orderKind)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

func scanWatchlist(s scanner) (*domain.WatchlistEntry, error) {
	e := &domain.WatchlistEntry{}
	if err := s.Scan(&e.AccountID, &e.InstrumentKey, &e.Quantity, &e.AvgPrice, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
