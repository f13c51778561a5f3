package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction names the post-hoc operation recorded in a TradeLog.
type TradeAction string

const (
	ActionModify TradeAction = "MODIFY"
	ActionCancel TradeAction = "CANCEL"
)

// LogOutcome is the result of the attempt described by a TradeLog.
type LogOutcome string

const (
	OutcomeApplied  LogOutcome = "APPLIED"
	OutcomeExecuted LogOutcome = "EXECUTED"
	OutcomeRejected LogOutcome = "REJECTED"
)

// TradeSnapshot captures the mutable fields of a trade at one point in time.
type TradeSnapshot struct {
	Quantity  int64
	Price     decimal.Decimal
	OrderKind OrderKind
	Status    TradeStatus
}

// SnapshotOf returns the mutable fields of t.
func SnapshotOf(t *Trade) TradeSnapshot {
	return TradeSnapshot{
		Quantity:  t.Quantity,
		Price:     t.Price,
		OrderKind: t.OrderKind,
		Status:    t.Status,
	}
}

// TradeLog is an append-only audit entry for one modification or cancellation attempt.
type TradeLog struct {
	ID        int64
	TradeID   int64
	ActorID   string
	Action    TradeAction
	Before    TradeSnapshot
	After     TradeSnapshot
	Outcome   LogOutcome
	Remark    string
	CreatedAt time.Time
}

// WatchlistEntry is the denormalized read copy of a position used for list views.
type WatchlistEntry struct {
	AccountID     string
	InstrumentKey string
	Quantity      int64
	AvgPrice      decimal.Decimal
	UpdatedAt     time.Time
}
