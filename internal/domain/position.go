package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an account's aggregated holding of one instrument.
type Position struct {
	ID            int64           // Unique identifier for the position (from DB)
	AccountID     string          // Owning account
	InstrumentKey string          // Instrument key (e.g., "ETHUSDT")
	Quantity      int64           // Units held; > 0 while open, 0 once closed
	AvgPrice      decimal.Decimal // Weighted average entry price
	Status        PositionStatus  // OPEN or CLOSED
	RealizedPnL   decimal.Decimal // Accumulated realized profit and loss from sells
	OpenedAt      time.Time       // Timestamp when the position was opened
	ClosedAt      time.Time       // Zero value while open
	TradeID       int64           // Trade that opened the position
	Version       int64           // Optimistic concurrency version
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}
