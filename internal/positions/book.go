// Package positions maintains open and closed holdings per account and
// instrument, including weighted average entry price.
package positions

import (
	"context"
	"fmt"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

// AvgPricePrecision is the number of decimal places kept for average prices.
const AvgPricePrecision int32 = 10

// Book applies fills to positions.
type Book struct {
	positions ports.PositionRepository
	now       func() time.Time
}

// New returns a position book over the given repository.
func New(positions ports.PositionRepository) *Book {
	return &Book{positions: positions, now: func() time.Time { return time.Now().UTC() }}
}

// SellResult describes the effect of a sell fill.
type SellResult struct {
	Position    *domain.Position
	RealizedPnL decimal.Decimal // P&L of this fill only
}

// ApplyBuy adds quantity at price to the open position, opening one if needed.
func (b *Book) ApplyBuy(ctx context.Context, accountID, instrumentKey string, quantity int64, price decimal.Decimal, tradeID int64) (*domain.Position, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("buy quantity %d must be positive: %w", quantity, ports.ErrValidation)
	}
	pos, err := b.positions.FindOpen(ctx, accountID, instrumentKey)
	if err != nil {
		return nil, err
	}

	if pos == nil {
		pos = &domain.Position{
			AccountID:     accountID,
			InstrumentKey: instrumentKey,
			Quantity:      quantity,
			AvgPrice:      price,
			Status:        domain.StatusOpen,
			RealizedPnL:   decimal.Zero,
			OpenedAt:      b.now(),
			TradeID:       tradeID,
		}
		if _, err := b.positions.Create(ctx, pos); err != nil {
			return nil, err
		}
		return pos, nil
	}

	pos.AvgPrice = WeightedAverage(pos.AvgPrice, pos.Quantity, price, quantity)
	pos.Quantity += quantity
	if err := b.positions.Update(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// CheckSell verifies that an open position can cover quantity without changing it.
func (b *Book) CheckSell(ctx context.Context, accountID, instrumentKey string, quantity int64) (*domain.Position, error) {
	pos, err := b.positions.FindOpen(ctx, accountID, instrumentKey)
	if err != nil {
		return nil, err
	}
	var held int64
	if pos != nil {
		held = pos.Quantity
	}
	if pos == nil || held < quantity {
		return nil, &ports.InsufficientQuantityError{
			AccountID:     accountID,
			InstrumentKey: instrumentKey,
			Requested:     quantity,
			Held:          held,
		}
	}
	return pos, nil
}

// ApplySell removes quantity from the open position at price, closing it when
// nothing remains. The average price is left unchanged by a sell.
func (b *Book) ApplySell(ctx context.Context, accountID, instrumentKey string, quantity int64, price, fee decimal.Decimal) (*SellResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("sell quantity %d must be positive: %w", quantity, ports.ErrValidation)
	}
	pos, err := b.CheckSell(ctx, accountID, instrumentKey, quantity)
	if err != nil {
		return nil, err
	}

	realized := price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(quantity)).Sub(fee)
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		pos.Status = domain.StatusClosed
		pos.ClosedAt = b.now()
	}
	if err := b.positions.Update(ctx, pos); err != nil {
		return nil, err
	}
	return &SellResult{Position: pos, RealizedPnL: realized}, nil
}

// WeightedAverage returns (oldAvg*oldQty + price*qty) / (oldQty+qty) rounded
// to AvgPricePrecision places.
func WeightedAverage(oldAvg decimal.Decimal, oldQty int64, price decimal.Decimal, qty int64) decimal.Decimal {
	total := oldQty + qty
	if total == 0 {
		return decimal.Zero
	}
	cost := oldAvg.Mul(decimal.NewFromInt(oldQty)).Add(price.Mul(decimal.NewFromInt(qty)))
	return cost.DivRound(decimal.NewFromInt(total), AvgPricePrecision)
}
