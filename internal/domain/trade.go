package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one execution attempt with a definite lifecycle outcome.
// Only PENDING trades are ever mutated after they are written.
type Trade struct {
	ID            int64           // Unique identifier for the trade (from DB)
	TransactionID string          // Globally unique transaction identifier (UUID)
	AccountID     string          // Owning account
	InstrumentKey string          // Instrument the trade refers to
	Direction     Direction       // BUY or SELL
	Quantity      int64           // Effective units (request quantity * lot)
	Price         decimal.Decimal // Limit/execution price
	Fee           decimal.Decimal // Flat fee charged on settlement
	TotalValue    decimal.Decimal // BUY: qty*price+fee, SELL: qty*price-fee
	OrderKind     OrderKind       // MARKET, LIMIT or STOP
	Status        TradeStatus     // PENDING, EXECUTED, CANCELLED or REJECTED
	Remark        string          // Free text outcome description
	StopLoss      decimal.NullDecimal
	TargetPrice   decimal.NullDecimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TriggeredAt   time.Time // Set when the trade settled; zero otherwise
	Version       int64     // Optimistic concurrency version
}

// IsPending reports whether the trade can still be modified or cancelled.
func (t *Trade) IsPending() bool {
	return t.Status == TradePending
}

// TradeValue computes the settlement value of a trade.
// BUY pays quantity*price+fee, SELL receives quantity*price-fee.
func TradeValue(dir Direction, quantity int64, price, fee decimal.Decimal) decimal.Decimal {
	gross := price.Mul(decimal.NewFromInt(quantity))
	if dir == Sell {
		return gross.Sub(fee)
	}
	return gross.Add(fee)
}
