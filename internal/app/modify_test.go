package app

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
)

func (e *testEnv) placePending(t *testing.T, req TradeRequest) *domain.Trade {
	t.Helper()
	req.OrderKind = domain.Limit
	res, err := e.svc.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.TradePending, res.ExecutionStatus)
	return res.Trade
}

func (e *testEnv) audit(t *testing.T, tradeID int64) []*domain.TradeLog {
	t.Helper()
	logs, err := e.svc.TradeAudit(context.Background(), tradeID)
	require.NoError(t, err)
	return logs
}

func (e *testEnv) trade(t *testing.T, tradeID int64) *domain.Trade {
	t.Helper()
	tr, err := e.store.Repositories().Trades().FindByID(context.Background(), tradeID)
	require.NoError(t, err)
	require.NotNil(t, tr)
	return tr
}

func TestModifyPendingTrade_StaysPending(t *testing.T) {
	env := setupTestEnv(t)
	pending := env.placePending(t, buy("acc-1", 2, "100"))

	res, err := env.svc.ModifyPendingTrade(context.Background(), ModifyRequest{
		TradeID:  pending.ID,
		ActorID:  "acc-1",
		Quantity: 4,
		Price:    decimal.NewNullDecimal(dec("90")),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TradePending, res.ExecutionStatus)

	stored := env.trade(t, pending.ID)
	assert.Equal(t, int64(4), stored.Quantity)
	assert.True(t, stored.Price.Equal(dec("90")))
	assert.True(t, stored.TotalValue.Equal(dec("360")))
	assert.Equal(t, domain.Limit, stored.OrderKind)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))

	logs := env.audit(t, pending.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.OutcomeApplied, logs[0].Outcome)
	assert.Equal(t, domain.ActionModify, logs[0].Action)
	assert.Equal(t, "acc-1", logs[0].ActorID)
	assert.Equal(t, int64(2), logs[0].Before.Quantity)
	assert.True(t, logs[0].Before.Price.Equal(dec("100")))
	assert.Equal(t, int64(4), logs[0].After.Quantity)
	assert.True(t, logs[0].After.Price.Equal(dec("90")))
}

func TestModifyPendingTrade_ToMarketExecutes(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	pending := env.placePending(t, buy("acc-1", 2, "100"))

	res, err := env.svc.ModifyPendingTrade(ctx, ModifyRequest{
		TradeID:   pending.ID,
		ActorID:   "acc-1",
		OrderKind: domain.Market,
		Price:     decimal.NewNullDecimal(dec("90")),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeExecuted, res.ExecutionStatus)
	assert.True(t, res.ResultingBalance.Decimal.Equal(dec("9820")))
	require.NotNil(t, res.ResultingPosition)
	assert.Equal(t, int64(2), res.ResultingPosition.Quantity)
	assert.Equal(t, pending.ID, res.ResultingPosition.TradeID)

	stored := env.trade(t, pending.ID)
	assert.Equal(t, domain.TradeExecuted, stored.Status)
	assert.False(t, stored.TriggeredAt.IsZero())

	logs := env.audit(t, pending.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.OutcomeExecuted, logs[0].Outcome)
	assert.Equal(t, domain.TradeExecuted, logs[0].After.Status)

	// A second attempt is refused and still audited.
	_, err = env.svc.ModifyPendingTrade(ctx, ModifyRequest{TradeID: pending.ID, ActorID: "acc-1", OrderKind: domain.Market})
	require.ErrorIs(t, err, ports.ErrInvalidState)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("9820")))

	logs = env.audit(t, pending.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.OutcomeRejected, logs[1].Outcome)
	assert.Equal(t, domain.TradeExecuted, logs[1].Before.Status)
	assert.Equal(t, domain.TradeExecuted, logs[1].After.Status)

	assert.Len(t, env.trades(t, "acc-1"), 1, "modification never adds trade rows")
}

func TestModifyPendingTrade_PendingSellToMarket(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 3, "100"))
	require.NoError(t, err)

	pending := env.placePending(t, sell("acc-1", 3, "120"))
	res, err := env.svc.ModifyPendingTrade(ctx, ModifyRequest{TradeID: pending.ID, ActorID: "acc-1", OrderKind: domain.Market})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, res.ResultingPosition.Status)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("10060")))
}

func TestModifyPendingTrade_Refusals(t *testing.T) {
	tests := []struct {
		name     string
		actor    string
		req      func(id int64) ModifyRequest
		wantErr  error
		wantLogs int
	}{
		{
			name:     "not the owner",
			req:      func(id int64) ModifyRequest { return ModifyRequest{TradeID: id, ActorID: "acc-2", Quantity: 1} },
			wantErr:  ports.ErrPermissionDenied,
			wantLogs: 1,
		},
		{
			name:     "unknown trade",
			req:      func(id int64) ModifyRequest { return ModifyRequest{TradeID: id + 1000, ActorID: "acc-1", Quantity: 1} },
			wantErr:  ports.ErrNotFound,
			wantLogs: 0,
		},
		{
			name:     "missing actor",
			req:      func(id int64) ModifyRequest { return ModifyRequest{TradeID: id, Quantity: 1} },
			wantErr:  ports.ErrValidation,
			wantLogs: 0,
		},
		{
			name: "market conversion without funds",
			req: func(id int64) ModifyRequest {
				return ModifyRequest{TradeID: id, ActorID: "acc-1", Quantity: 1000, OrderKind: domain.Market}
			},
			wantErr:  ports.ErrInsufficientFunds,
			wantLogs: 1,
		},
		{
			name: "quantity times lot overflows",
			req: func(id int64) ModifyRequest {
				return ModifyRequest{TradeID: id, ActorID: "acc-1", Quantity: 1 << 62, Lot: 3}
			},
			wantErr:  ports.ErrValidation,
			wantLogs: 0,
		},
		{
			name: "unknown order kind",
			req: func(id int64) ModifyRequest {
				return ModifyRequest{TradeID: id, ActorID: "acc-1", OrderKind: "ICEBERG"}
			},
			wantErr:  ports.ErrValidation,
			wantLogs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			pending := env.placePending(t, buy("acc-1", 2, "100"))

			res, err := env.svc.ModifyPendingTrade(context.Background(), tt.req(pending.ID))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StatusError, res.Status)
			assert.Equal(t, ports.Classify(tt.wantErr), res.ErrorCode)

			stored := env.trade(t, pending.ID)
			assert.Equal(t, domain.TradePending, stored.Status)
			assert.Equal(t, int64(2), stored.Quantity)
			assert.Equal(t, pending.Version, stored.Version)
			assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))
			assert.Nil(t, env.openPosition(t, "acc-1", "ETHUSDT"))

			logs := env.audit(t, pending.ID)
			require.Len(t, logs, tt.wantLogs)
			for _, l := range logs {
				assert.Equal(t, domain.OutcomeRejected, l.Outcome)
				assert.NotEmpty(t, l.Remark)
			}
		})
	}
}

func TestModifyPendingTrade_RejectedConversionRecordsRequest(t *testing.T) {
	env := setupTestEnv(t)
	pending := env.placePending(t, buy("acc-1", 200, "100"))

	_, err := env.svc.ModifyPendingTrade(context.Background(), ModifyRequest{TradeID: pending.ID, ActorID: "acc-1", OrderKind: domain.Market})
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)

	logs := env.audit(t, pending.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.Limit, logs[0].Before.OrderKind)
	assert.Equal(t, domain.Market, logs[0].After.OrderKind)
	assert.Equal(t, domain.TradePending, logs[0].After.Status)
	assert.Contains(t, logs[0].Remark, "insufficient funds")
}

func TestModifyPendingTrade_LotSizeIsEnforced(t *testing.T) {
	env := setupTestEnv(t)
	req := buy("acc-1", 10, "1")
	req.InstrumentKey = "BTC10"
	pending := env.placePending(t, req)

	_, err := env.svc.ModifyPendingTrade(context.Background(), ModifyRequest{TradeID: pending.ID, ActorID: "acc-1", Quantity: 7})
	require.ErrorIs(t, err, ports.ErrValidation)
	assert.Equal(t, int64(10), env.trade(t, pending.ID).Quantity)
	require.Len(t, env.audit(t, pending.ID), 1)
}

func TestModifyPendingTrade_ConcurrentConversionsExecuteOnce(t *testing.T) {
	env := setupTestEnv(t)
	pending := env.placePending(t, buy("acc-1", 5, "100"))

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.ModifyPendingTrade(context.Background(), ModifyRequest{
				TradeID:   pending.ID,
				ActorID:   "acc-1",
				OrderKind: domain.Market,
			})
		}(i)
	}
	wg.Wait()

	var executed int
	for _, err := range errs {
		if err == nil {
			executed++
			continue
		}
		assert.ErrorIs(t, err, ports.ErrInvalidState)
	}
	assert.Equal(t, 1, executed)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("9500")), "debited exactly once")
	assert.Equal(t, int64(5), env.openPosition(t, "acc-1", "ETHUSDT").Quantity)

	var outcomes = map[domain.LogOutcome]int{}
	for _, l := range env.audit(t, pending.ID) {
		outcomes[l.Outcome]++
	}
	assert.Equal(t, 1, outcomes[domain.OutcomeExecuted])
	assert.Equal(t, workers-1, outcomes[domain.OutcomeRejected])
}

func TestCancelPendingTrade(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	pending := env.placePending(t, buy("acc-1", 2, "100"))

	_, err := env.svc.CancelPendingTrade(ctx, CancelRequest{TradeID: pending.ID, ActorID: "acc-2"})
	require.ErrorIs(t, err, ports.ErrPermissionDenied)

	res, err := env.svc.CancelPendingTrade(ctx, CancelRequest{TradeID: pending.ID, ActorID: "acc-1", Reason: "changed mind"})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeCancelled, res.ExecutionStatus)
	assert.Equal(t, "cancelled: changed mind", res.Remark)
	assert.Equal(t, domain.TradeCancelled, env.trade(t, pending.ID).Status)

	_, err = env.svc.CancelPendingTrade(ctx, CancelRequest{TradeID: pending.ID, ActorID: "acc-1"})
	require.ErrorIs(t, err, ports.ErrInvalidState)

	_, err = env.svc.CancelPendingTrade(ctx, CancelRequest{ActorID: "acc-1"})
	require.ErrorIs(t, err, ports.ErrValidation)

	logs := env.audit(t, pending.ID)
	require.Len(t, logs, 3)
	assert.Equal(t, domain.OutcomeRejected, logs[0].Outcome)
	assert.Equal(t, domain.OutcomeApplied, logs[1].Outcome)
	assert.Equal(t, domain.ActionCancel, logs[1].Action)
	assert.Equal(t, domain.TradeCancelled, logs[1].After.Status)
	assert.Equal(t, domain.OutcomeRejected, logs[2].Outcome)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))
}

func TestQueries(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	acct, err := env.svc.Account(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(dec("10000")))

	_, err = env.svc.Account(ctx, "ghost")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	for i := 0; i < 3; i++ {
		_, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 1, "1"))
		require.NoError(t, err)
	}
	recent, err := env.svc.TradeHistory(ctx, "acc-1", 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
