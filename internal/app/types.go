package app

import (
	"fmt"
	"math"
	"strings"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

// Result statuses.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// TradeRequest is an inbound buy or sell request.
type TradeRequest struct {
	AccountID     string
	InstrumentKey string
	Direction     domain.Direction
	Quantity      int64 // Lots; the traded quantity is Quantity*Lot
	Price         decimal.Decimal
	OrderKind     domain.OrderKind // Empty means MARKET
	Fee           decimal.Decimal
	StopLoss      decimal.NullDecimal
	TargetPrice   decimal.NullDecimal
	Lot           int64 // Units per lot; zero means 1
}

// ModifyRequest changes a PENDING trade. Zero or invalid fields keep the
// stored value.
type ModifyRequest struct {
	TradeID     int64
	ActorID     string
	Quantity    int64 // Lots, as in TradeRequest
	Lot         int64
	Price       decimal.NullDecimal
	OrderKind   domain.OrderKind
	Fee         decimal.NullDecimal
	StopLoss    decimal.NullDecimal
	TargetPrice decimal.NullDecimal
}

// CancelRequest cancels a PENDING trade.
type CancelRequest struct {
	TradeID int64
	ActorID string
	Reason  string
}

// ExecutionResult is the response to every trade operation.
type ExecutionResult struct {
	Status            string
	TradeID           int64
	TransactionID     string
	ExecutionStatus   domain.TradeStatus
	Remark            string
	ErrorCode         ports.ErrorCode
	ResultingBalance  decimal.NullDecimal
	ResultingPosition *domain.Position
	Trade             *domain.Trade
}

func (r TradeRequest) validate() (TradeRequest, error) {
	var errs []string
	r.AccountID = strings.TrimSpace(r.AccountID)
	r.InstrumentKey = strings.TrimSpace(r.InstrumentKey)
	if r.AccountID == "" {
		errs = append(errs, "accountId is required")
	}
	if r.InstrumentKey == "" {
		errs = append(errs, "instrumentKey is required")
	}
	if dir, ok := domain.ParseDirection(string(r.Direction)); ok {
		r.Direction = dir
	} else {
		errs = append(errs, fmt.Sprintf("unknown direction %q", r.Direction))
	}
	if kind, ok := domain.ParseOrderKind(string(r.OrderKind)); ok {
		r.OrderKind = kind
	} else {
		errs = append(errs, fmt.Sprintf("unknown order kind %q", r.OrderKind))
	}
	if r.Quantity <= 0 {
		errs = append(errs, "quantity must be positive")
	}
	if r.Lot == 0 {
		r.Lot = 1
	}
	if r.Lot < 0 {
		errs = append(errs, "lot must be positive")
	} else if r.Quantity > math.MaxInt64/r.Lot {
		errs = append(errs, "quantity times lot overflows")
	}
	if r.Price.IsNegative() {
		errs = append(errs, "price must not be negative")
	}
	if r.Fee.IsNegative() {
		errs = append(errs, "fee must not be negative")
	}
	if len(errs) > 0 {
		return r, fmt.Errorf("%w: %s", ports.ErrValidation, strings.Join(errs, "; "))
	}
	return r, nil
}

// draft builds the trade row this request will produce. Quantity is in
// lots until the instrument has been resolved.
func (r TradeRequest) draft() *domain.Trade {
	return &domain.Trade{
		AccountID:     r.AccountID,
		InstrumentKey: r.InstrumentKey,
		Direction:     r.Direction,
		Quantity:      r.Quantity * r.Lot,
		Price:         r.Price,
		Fee:           r.Fee,
		TotalValue:    domain.TradeValue(r.Direction, r.Quantity*r.Lot, r.Price, r.Fee),
		OrderKind:     r.OrderKind,
		StopLoss:      r.StopLoss,
		TargetPrice:   r.TargetPrice,
	}
}

func (r ModifyRequest) validate() (ModifyRequest, error) {
	var errs []string
	if r.TradeID <= 0 {
		errs = append(errs, "tradeId is required")
	}
	r.ActorID = strings.TrimSpace(r.ActorID)
	if r.ActorID == "" {
		errs = append(errs, "actorId is required")
	}
	if r.Quantity < 0 {
		errs = append(errs, "quantity must not be negative")
	}
	if r.Lot == 0 {
		r.Lot = 1
	}
	if r.Lot < 0 {
		errs = append(errs, "lot must be positive")
	} else if r.Quantity > math.MaxInt64/r.Lot {
		errs = append(errs, "quantity times lot overflows")
	}
	if r.Price.Valid && r.Price.Decimal.IsNegative() {
		errs = append(errs, "price must not be negative")
	}
	if r.Fee.Valid && r.Fee.Decimal.IsNegative() {
		errs = append(errs, "fee must not be negative")
	}
	if r.OrderKind != "" {
		if kind, ok := domain.ParseOrderKind(string(r.OrderKind)); ok {
			r.OrderKind = kind
		} else {
			errs = append(errs, fmt.Sprintf("unknown order kind %q", r.OrderKind))
		}
	}
	if len(errs) > 0 {
		return r, fmt.Errorf("%w: %s", ports.ErrValidation, strings.Join(errs, "; "))
	}
	return r, nil
}

// applyTo returns a copy of t with the requested changes.
func (r ModifyRequest) applyTo(t *domain.Trade) *domain.Trade {
	updated := *t
	if r.Quantity > 0 {
		updated.Quantity = r.Quantity * r.Lot
	}
	if r.Price.Valid {
		updated.Price = r.Price.Decimal
	}
	if r.OrderKind != "" {
		updated.OrderKind = r.OrderKind
	}
	if r.Fee.Valid {
		updated.Fee = r.Fee.Decimal
	}
	if r.StopLoss.Valid {
		updated.StopLoss = r.StopLoss
	}
	if r.TargetPrice.Valid {
		updated.TargetPrice = r.TargetPrice
	}
	updated.TotalValue = domain.TradeValue(updated.Direction, updated.Quantity, updated.Price, updated.Fee)
	return &updated
}

func okResult(t *domain.Trade, balance decimal.NullDecimal, pos *domain.Position) *ExecutionResult {
	return &ExecutionResult{
		Status:            StatusOK,
		TradeID:           t.ID,
		TransactionID:     t.TransactionID,
		ExecutionStatus:   t.Status,
		Remark:            t.Remark,
		ResultingBalance:  balance,
		ResultingPosition: pos,
		Trade:             t,
	}
}

func errorResult(t *domain.Trade, err error) *ExecutionResult {
	res := &ExecutionResult{
		Status:    StatusError,
		Remark:    ports.PublicMessage(err),
		ErrorCode: ports.Classify(err),
	}
	if t != nil {
		res.TradeID = t.ID
		res.TransactionID = t.TransactionID
		res.ExecutionStatus = t.Status
		res.Trade = t
	}
	return res
}
