package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

// ErrLimitExceeded marks a request refused by a risk limit. It also matches
// ports.ErrValidation.
var ErrLimitExceeded = errors.New("risk limit exceeded")

// RiskConfig holds configuration for risk management. A zero value disables a limit.
type RiskConfig struct {
	MaxOrderValue       decimal.Decimal // Largest settlement value of one order
	MaxPositionQuantity int64           // Largest open quantity per account and instrument
	MaxDailyTrades      int             // Executed trades per account per UTC day
}

// RiskManager implements pre-trade risk checks. It keeps no counters of its
// own; daily activity is read from the trade store by the caller.
type RiskManager struct {
	config RiskConfig
}

// OrderCheck describes an order about to be accepted.
type OrderCheck struct {
	AccountID     string
	Direction     domain.Direction
	Quantity      int64
	Amount        decimal.Decimal // Settlement value including fee
	HeldQuantity  int64           // Currently open quantity
	ExecutedToday int             // Executed trades of the account since StartOfDay
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) *RiskManager {
	return &RiskManager{config: config}
}

// Enabled reports whether any limit is configured.
func (r *RiskManager) Enabled() bool {
	return r.config.MaxOrderValue.IsPositive() || r.config.MaxPositionQuantity > 0 || r.config.MaxDailyTrades > 0
}

// ValidateOrder checks an order against the configured limits.
func (r *RiskManager) ValidateOrder(ctx context.Context, c OrderCheck) error {
	if r.config.MaxOrderValue.IsPositive() && c.Amount.GreaterThan(r.config.MaxOrderValue) {
		return limitError("order value %s exceeds maximum allowed %s", c.Amount.String(), r.config.MaxOrderValue.String())
	}

	if c.Direction == domain.Buy && r.config.MaxPositionQuantity > 0 && c.HeldQuantity+c.Quantity > r.config.MaxPositionQuantity {
		return limitError("position quantity %d exceeds maximum allowed %d", c.HeldQuantity+c.Quantity, r.config.MaxPositionQuantity)
	}

	return r.CheckRiskLimits(ctx, c.ExecutedToday)
}

// CheckRiskLimits checks account-wide limits that do not depend on the order.
func (r *RiskManager) CheckRiskLimits(ctx context.Context, executedToday int) error {
	if r.config.MaxDailyTrades > 0 && executedToday >= r.config.MaxDailyTrades {
		return limitError("daily trades %d reached maximum allowed %d", executedToday, r.config.MaxDailyTrades)
	}
	return nil
}

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func limitError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", ErrLimitExceeded, ports.ErrValidation, fmt.Sprintf(format, args...))
}
