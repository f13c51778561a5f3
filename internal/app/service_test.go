package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeDesk/config"
	"tradeDesk/internal/adapters/sqlite"
	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"
	"tradeDesk/internal/risk"
)

// mockLogger discards everything; it is shared by concurrent requests.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// faultyUoW wraps the store and can replace the watchlist repository with
// one that always fails, or fail the first conflicts transactions.
type faultyUoW struct {
	*sqlite.Store
	failWatchlist bool

	mu        sync.Mutex
	conflicts int
}

func (f *faultyUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Repositories) error) error {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return fmt.Errorf("begin transaction: %w", ports.ErrConflict)
	}
	f.mu.Unlock()

	return f.Store.WithinTx(ctx, func(ctx context.Context, tx ports.Repositories) error {
		if f.failWatchlist {
			tx = &faultyRepos{Repositories: tx}
		}
		return fn(ctx, tx)
	})
}

type faultyRepos struct {
	ports.Repositories
}

func (r *faultyRepos) Watchlist() ports.WatchlistRepository { return failingWatchlist{} }

type failingWatchlist struct {
	ports.WatchlistRepository
}

func (failingWatchlist) Upsert(ctx context.Context, e *domain.WatchlistEntry) error {
	return fmt.Errorf("upsert watchlist: %w: disk full", ports.ErrInternal)
}

type testEnv struct {
	svc   *ExecutionService
	store *sqlite.Store
	uow   *faultyUoW
}

type envOption func(cfg *config.Config, deps *Dependencies)

func withRisk(rc risk.RiskConfig) envOption {
	return func(cfg *config.Config, deps *Dependencies) {
		deps.Risk = risk.NewRiskManager(rc)
	}
}

func withRetries(n int) envOption {
	return func(cfg *config.Config, deps *Dependencies) {
		cfg.MaxConflictRetries = n
	}
}

func withRetryDelay(d time.Duration) envOption {
	return func(cfg *config.Config, deps *Dependencies) {
		cfg.RetryMinDelay = d
		cfg.RetryMaxDelay = d
	}
}

func setupTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	dir, err := os.MkdirTemp("", "trade-desk-app-*")
	require.NoError(t, err)
	store, err := sqlite.NewStore(sqlite.Config{DBPath: filepath.Join(dir, "test.db"), Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(dir)
	})

	ctx := context.Background()
	require.NoError(t, store.UpsertAccount(ctx, &domain.Account{ID: "acc-1", Balance: decimal.NewFromInt(10000), IsActive: true}))
	require.NoError(t, store.UpsertAccount(ctx, &domain.Account{ID: "acc-2", Balance: decimal.NewFromInt(10000), IsActive: true}))
	require.NoError(t, store.UpsertAccount(ctx, &domain.Account{ID: "frozen", Balance: decimal.NewFromInt(10000), IsActive: false}))
	require.NoError(t, store.UpsertInstrument(ctx, &domain.Instrument{Key: "ETHUSDT", IsActive: true, LotSize: 1}))
	require.NoError(t, store.UpsertInstrument(ctx, &domain.Instrument{Key: "BTC10", IsActive: true, LotSize: 10}))
	require.NoError(t, store.UpsertInstrument(ctx, &domain.Instrument{Key: "DELISTED", IsActive: false, LotSize: 1}))

	cfg := config.Default()
	cfg.RetryMinDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond

	uow := &faultyUoW{Store: store}
	deps := Dependencies{
		Logger:      &mockLogger{},
		UoW:         uow,
		Reads:       store.Repositories(),
		Accounts:    store,
		Instruments: store,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	svc, err := NewExecutionService(cfg, deps)
	require.NoError(t, err)
	return &testEnv{svc: svc, store: store, uow: uow}
}

func (e *testEnv) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	acct, err := e.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acct.Balance
}

func (e *testEnv) trades(t *testing.T, accountID string) []*domain.Trade {
	t.Helper()
	trades, err := e.svc.TradeHistory(context.Background(), accountID, 0)
	require.NoError(t, err)
	return trades
}

func (e *testEnv) openPosition(t *testing.T, accountID, key string) *domain.Position {
	t.Helper()
	pos, err := e.store.Repositories().Positions().FindOpen(context.Background(), accountID, key)
	require.NoError(t, err)
	return pos
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buy(account string, qty int64, price string) TradeRequest {
	return TradeRequest{AccountID: account, InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: qty, Price: dec(price), OrderKind: domain.Market}
}

func sell(account string, qty int64, price string) TradeRequest {
	return TradeRequest{AccountID: account, InstrumentKey: "ETHUSDT", Direction: domain.Sell, Quantity: qty, Price: dec(price), OrderKind: domain.Market}
}

func TestExecuteTrade_AveragingAndClose(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 10, "100"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, domain.TradeExecuted, res.ExecutionStatus)
	assert.NotEmpty(t, res.TransactionID)
	assert.True(t, res.ResultingBalance.Decimal.Equal(dec("9000")))

	res, err = env.svc.ExecuteTrade(ctx, buy("acc-1", 5, "130"))
	require.NoError(t, err)
	require.NotNil(t, res.ResultingPosition)
	assert.Equal(t, int64(15), res.ResultingPosition.Quantity)
	assert.True(t, res.ResultingPosition.AvgPrice.Equal(dec("110")), "avg %s", res.ResultingPosition.AvgPrice)

	closeReq := sell("acc-1", 15, "120")
	closeReq.Fee = dec("2.5")
	res, err = env.svc.ExecuteTrade(ctx, closeReq)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, res.ResultingPosition.Status)
	assert.Equal(t, int64(0), res.ResultingPosition.Quantity)
	assert.True(t, res.ResultingPosition.RealizedPnL.Equal(dec("147.5")))

	// 10000 - 1000 - 650 + (15*120 - 2.5)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("10147.5")), "balance %s", env.balance(t, "acc-1"))
	assert.Nil(t, env.openPosition(t, "acc-1", "ETHUSDT"))

	watch, err := env.svc.Watchlist(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, watch, 1)
	assert.Equal(t, int64(0), watch[0].Quantity)

	trades := env.trades(t, "acc-1")
	require.Len(t, trades, 3)
	for _, tr := range trades {
		assert.Equal(t, domain.TradeExecuted, tr.Status)
		assert.False(t, tr.TriggeredAt.IsZero())
	}

	positions, err := env.svc.Positions(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, trades[2].ID, positions[0].TradeID, "position references the opening trade")
}

func TestExecuteTrade_InsufficientFunds(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 100, "100.01"))
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, ports.CodeInsufficientFunds, res.ErrorCode)
	assert.Equal(t, domain.TradeRejected, res.ExecutionStatus)
	assert.NotZero(t, res.TradeID)

	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))
	assert.Nil(t, env.openPosition(t, "acc-1", "ETHUSDT"))

	trades := env.trades(t, "acc-1")
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeRejected, trades[0].Status)
	assert.Contains(t, trades[0].Remark, "insufficient funds")
}

func TestExecuteTrade_InsufficientQuantityLeavesStateUnchanged(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 5, "10"))
	require.NoError(t, err)
	balanceBefore := env.balance(t, "acc-1")

	for _, kind := range []domain.OrderKind{domain.Market, domain.Limit} {
		req := sell("acc-1", 6, "12")
		req.OrderKind = kind
		res, err := env.svc.ExecuteTrade(ctx, req)
		require.ErrorIs(t, err, ports.ErrInsufficientQuantity)
		assert.Equal(t, domain.TradeRejected, res.ExecutionStatus)
	}

	assert.True(t, env.balance(t, "acc-1").Equal(balanceBefore))
	pos := env.openPosition(t, "acc-1", "ETHUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, int64(5), pos.Quantity)

	entry, err := env.store.Repositories().Watchlist().Find(ctx, "acc-1", "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Quantity)

	// Selling with no position at all is refused too.
	_, err = env.svc.ExecuteTrade(ctx, sell("acc-2", 1, "12"))
	assert.ErrorIs(t, err, ports.ErrInsufficientQuantity)
}

func TestExecuteTrade_ResolutionFailuresAreJournaled(t *testing.T) {
	tests := []struct {
		name     string
		account  string
		key      string
		wantErr  error
		wantCode ports.ErrorCode
	}{
		{name: "unknown account", account: "ghost", key: "ETHUSDT", wantErr: ports.ErrNotFound, wantCode: ports.CodeNotFound},
		{name: "inactive account", account: "frozen", key: "ETHUSDT", wantErr: ports.ErrInactiveResource, wantCode: ports.CodeInactiveResource},
		{name: "unknown instrument", account: "acc-1", key: "DOGE", wantErr: ports.ErrNotFound, wantCode: ports.CodeNotFound},
		{name: "inactive instrument", account: "acc-1", key: "DELISTED", wantErr: ports.ErrInactiveResource, wantCode: ports.CodeInactiveResource},
		{name: "quantity not a lot multiple", account: "acc-1", key: "BTC10", wantErr: ports.ErrValidation, wantCode: ports.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			req := buy(tt.account, 3, "1")
			req.InstrumentKey = tt.key

			res, err := env.svc.ExecuteTrade(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCode, res.ErrorCode)

			trades := env.trades(t, tt.account)
			require.Len(t, trades, 1)
			assert.Equal(t, domain.TradeRejected, trades[0].Status)
			assert.NotEmpty(t, trades[0].Remark)
		})
	}
}

func TestExecuteTrade_ShapeErrorsAreNotJournaled(t *testing.T) {
	tests := []struct {
		name string
		req  TradeRequest
	}{
		{name: "unknown direction", req: TradeRequest{AccountID: "acc-1", InstrumentKey: "ETHUSDT", Direction: "HOLD", Quantity: 1, Price: dec("1")}},
		{name: "zero quantity", req: TradeRequest{AccountID: "acc-1", InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: 0, Price: dec("1")}},
		{name: "negative price", req: TradeRequest{AccountID: "acc-1", InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: 1, Price: dec("-1")}},
		{name: "negative fee", req: TradeRequest{AccountID: "acc-1", InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: 1, Price: dec("1"), Fee: dec("-0.1")}},
		{name: "unknown order kind", req: TradeRequest{AccountID: "acc-1", InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: 1, Price: dec("1"), OrderKind: "ICEBERG"}},
		{name: "missing account", req: TradeRequest{InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: 1, Price: dec("1")}},
		{name: "quantity times lot overflows", req: TradeRequest{AccountID: "acc-1", InstrumentKey: "ETHUSDT", Direction: domain.Buy, Quantity: 1 << 62, Lot: 3, Price: dec("1"), OrderKind: domain.Limit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv(t)
			res, err := env.svc.ExecuteTrade(context.Background(), tt.req)
			require.ErrorIs(t, err, ports.ErrValidation)
			assert.Zero(t, res.TradeID)
			assert.Empty(t, env.trades(t, "acc-1"))
		})
	}
}

func TestExecuteTrade_LotMultiplier(t *testing.T) {
	env := setupTestEnv(t)

	req := buy("acc-1", 2, "3")
	req.InstrumentKey = "BTC10"
	req.Lot = 5

	res, err := env.svc.ExecuteTrade(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Trade.Quantity)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("9970")))
}

func TestExecuteTrade_NonMarketOrdersStayPending(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for _, kind := range []domain.OrderKind{domain.Limit, domain.Stop} {
		req := buy("acc-1", 1000, "100") // unaffordable, but no funds check for pending
		req.OrderKind = kind
		res, err := env.svc.ExecuteTrade(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, domain.TradePending, res.ExecutionStatus)
		assert.False(t, res.ResultingBalance.Valid)
	}

	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))
	assert.Nil(t, env.openPosition(t, "acc-1", "ETHUSDT"))
	assert.Len(t, env.trades(t, "acc-1"), 2)
}

func TestExecuteTrade_FeeExceedingProceedsIsRejected(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 1, "1"))
	require.NoError(t, err)

	req := sell("acc-1", 1, "1")
	req.Fee = dec("1.01")
	_, err = env.svc.ExecuteTrade(ctx, req)
	assert.ErrorIs(t, err, ports.ErrValidation)
	assert.Equal(t, int64(1), env.openPosition(t, "acc-1", "ETHUSDT").Quantity)
}

func TestExecuteTrade_FailureAfterDebitRollsBack(t *testing.T) {
	env := setupTestEnv(t)
	env.uow.failWatchlist = true

	res, err := env.svc.ExecuteTrade(context.Background(), buy("acc-1", 10, "100"))
	require.ErrorIs(t, err, ports.ErrInternal)
	assert.Equal(t, ports.CodeInternal, res.ErrorCode)
	assert.Equal(t, "internal error", res.Remark)

	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")), "debit must roll back")
	assert.Nil(t, env.openPosition(t, "acc-1", "ETHUSDT"))

	trades := env.trades(t, "acc-1")
	require.Len(t, trades, 1, "exactly one trade row per request")
	assert.Equal(t, domain.TradeRejected, trades[0].Status)
}

func TestExecuteTrade_ConflictsAreRetried(t *testing.T) {
	env := setupTestEnv(t, withRetries(3))
	env.uow.conflicts = 2

	res, err := env.svc.ExecuteTrade(context.Background(), buy("acc-1", 1, "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.TradeExecuted, res.ExecutionStatus)
	assert.Len(t, env.trades(t, "acc-1"), 1)
}

func TestExecuteTrade_ExhaustedConflictsSurfaceAsInternal(t *testing.T) {
	env := setupTestEnv(t, withRetries(1))
	env.uow.conflicts = 2 // both attempts fail; the rejection write then succeeds

	res, err := env.svc.ExecuteTrade(context.Background(), buy("acc-1", 1, "10"))
	require.ErrorIs(t, err, ports.ErrInternal)
	assert.Equal(t, ports.CodeInternal, ports.Classify(err))
	assert.Equal(t, ports.CodeInternal, res.ErrorCode)

	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))
	trades := env.trades(t, "acc-1")
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeRejected, trades[0].Status)
}

func TestExecuteTrade_CancelledWhileRetryingIsJournaled(t *testing.T) {
	env := setupTestEnv(t, withRetries(3), withRetryDelay(time.Second))
	env.uow.conflicts = 1

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 1, "10"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ports.CodeInternal, res.ErrorCode)
	assert.NotZero(t, res.TradeID)

	assert.True(t, env.balance(t, "acc-1").Equal(dec("10000")))
	trades := env.trades(t, "acc-1")
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeRejected, trades[0].Status)
	assert.Equal(t, "internal error", trades[0].Remark)
}

func TestExecuteTrade_RiskLimits(t *testing.T) {
	env := setupTestEnv(t, withRisk(risk.RiskConfig{MaxOrderValue: dec("500"), MaxDailyTrades: 2}))
	ctx := context.Background()

	_, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 6, "100"))
	require.ErrorIs(t, err, risk.ErrLimitExceeded)

	for i := 0; i < 2; i++ {
		_, err = env.svc.ExecuteTrade(ctx, buy("acc-1", 1, "100"))
		require.NoError(t, err)
	}
	_, err = env.svc.ExecuteTrade(ctx, buy("acc-1", 1, "100"))
	require.ErrorIs(t, err, risk.ErrLimitExceeded)

	trades := env.trades(t, "acc-1")
	require.Len(t, trades, 4)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("9800")))
}

func TestExecuteTrade_ConcurrentBuysNeverOverdraw(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.UpsertAccount(ctx, &domain.Account{ID: "acc-1", Balance: dec("1000"), IsActive: true}))

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.ExecuteTrade(ctx, buy("acc-1", 3, "100")) // 300 each
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ports.ErrInsufficientFunds):
			insufficient++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, workers-3, insufficient)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("100")))
	assert.Equal(t, int64(9), env.openPosition(t, "acc-1", "ETHUSDT").Quantity)
	assert.Len(t, env.trades(t, "acc-1"), workers)
}

func TestExecuteTrade_ConcurrentSellsNeverOversell(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, err := env.svc.ExecuteTrade(ctx, buy("acc-1", 5, "10"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok int
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.ExecuteTrade(ctx, sell("acc-1", 2, "11")); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, int64(1), env.openPosition(t, "acc-1", "ETHUSDT").Quantity)
	assert.True(t, env.balance(t, "acc-1").Equal(dec("9994")))
}

func TestExecuteTrade_BalanceConservedOverManyFills(t *testing.T) {
	if testing.Short() {
		t.Skip("many fills")
	}
	env := setupTestEnv(t)
	ctx := context.Background()

	expected := dec("10000")
	fee := dec("0.003")
	var held int64
	for i := 0; i < 1000; i++ {
		price := decimal.New(int64(1000+(i*37)%500), -3) // 1.000 .. 1.499
		if i%4 == 3 && held > 0 {
			req := sell("acc-1", 1, price.String())
			req.Fee = fee
			_, err := env.svc.ExecuteTrade(ctx, req)
			require.NoError(t, err)
			expected = expected.Add(price.Sub(fee))
			held--
			continue
		}
		req := buy("acc-1", 1, price.String())
		req.Fee = fee
		_, err := env.svc.ExecuteTrade(ctx, req)
		require.NoError(t, err)
		expected = expected.Sub(price.Add(fee))
		held++
	}

	assert.True(t, env.balance(t, "acc-1").Equal(expected), "balance %s, expected %s", env.balance(t, "acc-1"), expected)
	assert.Equal(t, held, env.openPosition(t, "acc-1", "ETHUSDT").Quantity)
}

func TestExecuteTrade_AccountsProceedIndependently(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, account := range []string{"acc-1", "acc-2"} {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := env.svc.ExecuteTrade(ctx, buy(account, 1, "10"))
				assert.NoError(t, err)
			}
		}(account)
	}
	wg.Wait()

	assert.True(t, env.balance(t, "acc-1").Equal(dec("9950")))
	assert.True(t, env.balance(t, "acc-2").Equal(dec("9950")))
}
