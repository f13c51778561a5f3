package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"tradeDesk/config"
	"tradeDesk/internal/adapters/logger"
	"tradeDesk/internal/adapters/sqlite"
	"tradeDesk/internal/utils"
)

func main() {
	accountID := flag.String("account", "", "account whose journal is exported (required)")
	limit := flag.Int("limit", 0, "most recent trades only; 0 exports everything")
	output := flag.String("out", "", "output CSV path (default data/<account>_journal.csv)")
	flag.Parse()

	if *accountID == "" {
		log.Fatalf("FATAL: -account is required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogFormat, cfg.LogLevel, nil)
	ctx := logger.WithFields(context.Background(), map[string]interface{}{"account": *accountID})

	// 3. Initialize Store
	store, err := sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger, MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer store.Close()

	trades, err := store.Repositories().Trades().FindByAccount(ctx, *accountID, *limit)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading trades")
		log.Fatalf("Error loading trades: %v", err)
	}

	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("data/%s_journal.csv", *accountID)
	}
	if err := utils.WriteTradesToCSV(trades, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename, "trades": len(trades)})
}
