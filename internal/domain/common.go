package domain

import "strings"

// Direction represents the side of a trade request (BUY or SELL).
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// ParseDirection normalizes a raw direction string. ok is false for anything
// other than BUY or SELL.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case Buy, Sell:
		return d, true
	default:
		return d, false
	}
}

// OrderKind controls whether a trade settles immediately (MARKET) or waits (LIMIT, STOP).
type OrderKind string

const (
	Market OrderKind = "MARKET"
	Limit  OrderKind = "LIMIT"
	Stop   OrderKind = "STOP"
)

// ParseOrderKind normalizes a raw order kind. An empty value defaults to MARKET.
func ParseOrderKind(s string) (OrderKind, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Market, true
	}
	switch k := OrderKind(s); k {
	case Market, Limit, Stop:
		return k, true
	default:
		return k, false
	}
}

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeExecuted  TradeStatus = "EXECUTED"
	TradeCancelled TradeStatus = "CANCELLED"
	TradeRejected  TradeStatus = "REJECTED"
)

// PositionStatus represents the status of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)
