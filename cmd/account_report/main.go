package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"tradeDesk/config"
	"tradeDesk/internal/adapters/logger"
	"tradeDesk/internal/adapters/sqlite"
	"tradeDesk/internal/analytics"
)

func main() {
	accountID := flag.String("account", "", "account to report on (required)")
	flag.Parse()

	if *accountID == "" {
		log.Fatalf("FATAL: -account is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.New(cfg.LogFormat, cfg.LogLevel, nil)
	ctx := context.Background()

	store, err := sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger, MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer store.Close()

	acct, err := store.GetAccount(ctx, *accountID)
	if err != nil {
		log.Fatalf("Error loading account: %v", err)
	}
	if acct == nil {
		log.Fatalf("Account %s not found", *accountID)
	}

	repos := store.Repositories()
	positions, err := repos.Positions().FindByAccount(ctx, *accountID)
	if err != nil {
		log.Fatalf("Error loading positions: %v", err)
	}
	trades, err := repos.Trades().FindByAccount(ctx, *accountID, 0)
	if err != nil {
		log.Fatalf("Error loading trades: %v", err)
	}

	// Equity baseline: the balance before any realized gains or losses.
	baseline := acct.Balance
	for _, p := range positions {
		baseline = baseline.Sub(p.RealizedPnL)
	}
	metrics := analytics.AnalyzePerformance(positions, trades, baseline)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Account\t%s\n", acct.ID)
	fmt.Fprintf(w, "Balance\t%s\n", acct.Balance.String())
	fmt.Fprintf(w, "Realized P&L\t%s\n", metrics.RealizedPnL.String())
	fmt.Fprintf(w, "Closed positions\t%d (%d won, %d lost)\n", metrics.ClosedPositions, metrics.WinningPositions, metrics.LosingPositions)
	fmt.Fprintf(w, "Win rate\t%s%%\n", metrics.WinRate.Shift(2).StringFixed(2))
	fmt.Fprintf(w, "Average win / loss\t%s / %s\n", metrics.AverageWin.StringFixed(2), metrics.AverageLoss.StringFixed(2))
	fmt.Fprintf(w, "Profit factor\t%s\n", metrics.ProfitFactor.StringFixed(2))
	fmt.Fprintf(w, "Max drawdown\t%s%%\n", metrics.MaxDrawdown.Shift(2).StringFixed(2))
	fmt.Fprintf(w, "Average holding time\t%s\n", metrics.AverageHoldingTime)
	fmt.Fprintf(w, "Trades executed / pending / rejected\t%d / %d / %d\n", metrics.ExecutedTrades, metrics.PendingTrades, metrics.RejectedTrades)
	fmt.Fprintf(w, "Fees paid\t%s\n", metrics.TotalFees.String())
	fmt.Fprintf(w, "Buy / sell volume\t%s / %s\n", metrics.BuyVolume.String(), metrics.SellVolume.String())
	w.Flush()

	monthly := metrics.GetMonthlyReturns()
	if len(monthly) == 0 {
		return
	}
	fmt.Println("\n## Monthly realized P&L")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
	for _, m := range monthly {
		fmt.Fprintf(w, "%s\t%s\t\n", m.Month.Format("2006-01"), m.Return.StringFixed(2))
	}
	w.Flush()
}
