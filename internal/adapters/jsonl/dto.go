package jsonl

import "time"

// Command is one line of input.
type Command struct {
	ID            string `json:"id"`             // Echoed in the response
	Op            string `json:"op"`             // execute, modify, cancel, watchlist, positions, history, audit, account
	Role          string `json:"role"`           // ADMIN, TRADER or VIEWER
	ActorID       string `json:"actor_id"`       // Acting account
	AccountID     string `json:"account_id"`     // Defaults to actor_id
	InstrumentKey string `json:"instrument_key"` // Instrument, e.g. "ETHUSDT"
	Direction     string `json:"direction"`      // "BUY" or "SELL"
	OrderKind     string `json:"order_kind"`     // MARKET, LIMIT or STOP
	Quantity      int64  `json:"quantity"`       // Lots
	Lot           int64  `json:"lot"`            // Units per lot
	Price         string `json:"price"`          // Decimal string
	Fee           string `json:"fee"`            // Decimal string
	StopLoss      string `json:"stop_loss"`      // Decimal string
	TargetPrice   string `json:"target_price"`   // Decimal string
	TradeID       int64  `json:"trade_id"`
	Reason        string `json:"reason"`
	Limit         int    `json:"limit"`
}

// Response is one line of output.
type Response struct {
	ID              string         `json:"id,omitempty"`
	Status          string         `json:"status"`
	TradeID         int64          `json:"trade_id,omitempty"`
	TransactionID   string         `json:"transaction_id,omitempty"`
	ExecutionStatus string         `json:"execution_status,omitempty"`
	Remark          string         `json:"remark,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	Balance         string         `json:"balance,omitempty"`
	Position        *PositionDTO   `json:"position,omitempty"`
	Watchlist       []WatchlistDTO `json:"watchlist,omitempty"`
	Positions       []PositionDTO  `json:"positions,omitempty"`
	Trades          []TradeDTO     `json:"trades,omitempty"`
	Logs            []TradeLogDTO  `json:"logs,omitempty"`
	Account         *AccountDTO    `json:"account,omitempty"`
}

// PositionDTO represents a position
type PositionDTO struct {
	InstrumentKey string     `json:"instrument_key"`
	Quantity      int64      `json:"quantity"`
	AvgPrice      string     `json:"avg_price"`
	Status        string     `json:"status"`
	RealizedPnL   string     `json:"realized_pnl"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// WatchlistDTO represents a watchlist entry
type WatchlistDTO struct {
	InstrumentKey string    `json:"instrument_key"`
	Quantity      int64     `json:"quantity"`
	AvgPrice      string    `json:"avg_price"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TradeDTO represents a journal row
type TradeDTO struct {
	TradeID       int64     `json:"trade_id"`
	TransactionID string    `json:"transaction_id"`
	InstrumentKey string    `json:"instrument_key"`
	Direction     string    `json:"direction"`
	OrderKind     string    `json:"order_kind"`
	Status        string    `json:"status"`
	Quantity      int64     `json:"quantity"`
	Price         string    `json:"price"`
	Fee           string    `json:"fee"`
	TotalValue    string    `json:"total_value"`
	Remark        string    `json:"remark"`
	CreatedAt     time.Time `json:"created_at"`
}

// TradeLogDTO represents a modification audit entry
type TradeLogDTO struct {
	ActorID        string    `json:"actor_id"`
	Action         string    `json:"action"`
	Outcome        string    `json:"outcome"`
	BeforeQuantity int64     `json:"before_quantity"`
	BeforePrice    string    `json:"before_price"`
	AfterQuantity  int64     `json:"after_quantity"`
	AfterPrice     string    `json:"after_price"`
	AfterKind      string    `json:"after_order_kind"`
	Remark         string    `json:"remark"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccountDTO represents an account balance
type AccountDTO struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	IsActive  bool   `json:"is_active"`
}
