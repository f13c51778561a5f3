package analytics

import (
	"sort"
	"time"

	"tradeDesk/internal/domain"

	"github.com/shopspring/decimal"
)

const ratioPrecision = 8

// PerformanceMetrics holds realized performance of one account. A closed
// position counts as one round trip.
type PerformanceMetrics struct {
	// Round trips
	ClosedPositions  int
	WinningPositions int
	LosingPositions  int
	WinRate          decimal.Decimal
	RealizedPnL      decimal.Decimal // All positions, including partial sells of open ones
	AverageWin       decimal.Decimal
	AverageLoss      decimal.Decimal // Negative or zero
	ProfitFactor     decimal.Decimal // Gross wins over gross losses; zero without losses
	MaxDrawdown      decimal.Decimal // Fraction of peak equity

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldingTime   time.Duration
	MonthlyRealized      map[string]decimal.Decimal
	EquityCurve          []EquityPoint

	// Journal activity
	ExecutedTrades int
	PendingTrades  int
	RejectedTrades int
	TotalFees      decimal.Decimal
	BuyVolume      decimal.Decimal // Settlement value of executed buys
	SellVolume     decimal.Decimal // Settlement value of executed sells
}

// EquityPoint represents a point on the realized equity curve.
type EquityPoint struct {
	Time     time.Time
	Value    decimal.Decimal
	Drawdown decimal.Decimal
}

// MonthlyReturn represents realized P&L of one calendar month.
type MonthlyReturn struct {
	Month  time.Time
	Return decimal.Decimal
}

// AnalyzePerformance computes metrics from an account's positions and trades.
// startingEquity is the baseline the equity curve and drawdown start from.
func AnalyzePerformance(positions []*domain.Position, trades []*domain.Trade, startingEquity decimal.Decimal) *PerformanceMetrics {
	m := &PerformanceMetrics{
		MonthlyRealized: make(map[string]decimal.Decimal),
		EquityCurve:     make([]EquityPoint, 0),
	}
	analyzeActivity(m, trades)

	closed := make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		m.RealizedPnL = m.RealizedPnL.Add(p.RealizedPnL)
		if p.Status == domain.StatusClosed {
			closed = append(closed, p)
		}
	}
	if len(closed) == 0 {
		return m
	}

	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(closed[j].ClosedAt)
	})

	equity, peak := startingEquity, startingEquity
	grossWin, grossLoss := decimal.Zero, decimal.Zero
	var wins, losses, maxWins, maxLosses int
	var holding time.Duration

	for _, p := range closed {
		m.ClosedPositions++
		holding += p.ClosedAt.Sub(p.OpenedAt)

		if p.RealizedPnL.IsPositive() {
			m.WinningPositions++
			grossWin = grossWin.Add(p.RealizedPnL)
			wins++
			losses = 0
		} else {
			m.LosingPositions++
			grossLoss = grossLoss.Add(p.RealizedPnL)
			losses++
			wins = 0
		}
		if wins > maxWins {
			maxWins = wins
		}
		if losses > maxLosses {
			maxLosses = losses
		}

		month := p.ClosedAt.UTC().Format("2006-01")
		m.MonthlyRealized[month] = m.MonthlyRealized[month].Add(p.RealizedPnL)

		equity = equity.Add(p.RealizedPnL)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := decimal.Zero
		if peak.IsPositive() {
			drawdown = peak.Sub(equity).DivRound(peak, ratioPrecision)
		}
		if drawdown.GreaterThan(m.MaxDrawdown) {
			m.MaxDrawdown = drawdown
		}
		m.EquityCurve = append(m.EquityCurve, EquityPoint{Time: p.ClosedAt, Value: equity, Drawdown: drawdown})
	}

	m.MaxConsecutiveWins = maxWins
	m.MaxConsecutiveLosses = maxLosses
	m.AverageHoldingTime = holding / time.Duration(m.ClosedPositions)
	m.WinRate = decimal.NewFromInt(int64(m.WinningPositions)).DivRound(decimal.NewFromInt(int64(m.ClosedPositions)), ratioPrecision)
	if m.WinningPositions > 0 {
		m.AverageWin = grossWin.DivRound(decimal.NewFromInt(int64(m.WinningPositions)), ratioPrecision)
	}
	if m.LosingPositions > 0 {
		m.AverageLoss = grossLoss.DivRound(decimal.NewFromInt(int64(m.LosingPositions)), ratioPrecision)
	}
	if grossLoss.IsNegative() {
		m.ProfitFactor = grossWin.DivRound(grossLoss.Neg(), ratioPrecision)
	}
	return m
}

func analyzeActivity(m *PerformanceMetrics, trades []*domain.Trade) {
	for _, t := range trades {
		switch t.Status {
		case domain.TradeExecuted:
			m.ExecutedTrades++
			m.TotalFees = m.TotalFees.Add(t.Fee)
			if t.Direction == domain.Buy {
				m.BuyVolume = m.BuyVolume.Add(t.TotalValue)
			} else {
				m.SellVolume = m.SellVolume.Add(t.TotalValue)
			}
		case domain.TradePending:
			m.PendingTrades++
		case domain.TradeRejected:
			m.RejectedTrades++
		}
	}
}

// GetMonthlyReturns returns the monthly realized P&L as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyRealized))
	for month, pnl := range m.MonthlyRealized {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: pnl,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
