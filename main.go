package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"tradeDesk/config"
	"tradeDesk/internal/adapters/binanceclient"
	"tradeDesk/internal/adapters/jsonl"
	"tradeDesk/internal/adapters/logger"
	"tradeDesk/internal/adapters/sqlite"
	"tradeDesk/internal/app"
	"tradeDesk/internal/domain"
	"tradeDesk/internal/policy"
	"tradeDesk/internal/ports"
	"tradeDesk/internal/risk"

	"github.com/shopspring/decimal"
)

// seedFile lists accounts and instruments to upsert before commands run.
type seedFile struct {
	Accounts []struct {
		ID       string `json:"id"`
		Balance  string `json:"balance"`
		Ceiling  string `json:"ceiling"`
		IsActive *bool  `json:"is_active"`
	} `json:"accounts"`
	Instruments []struct {
		Key      string `json:"key"`
		LotSize  int64  `json:"lot_size"`
		IsActive *bool  `json:"is_active"`
	} `json:"instruments"`
}

func main() {
	inputPath := flag.String("input", "", "JSON-lines command file (default stdin)")
	seedPath := flag.String("seed", "", "JSON file with accounts and instruments to upsert first")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath:       cfg.DBPath,
		Logger:       appLogger,
		MaxOpenConns: cfg.MaxOpenConns,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database store")
		}
	}()

	if *seedPath != "" {
		if err := applySeed(ctx, store, *seedPath); err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to apply seed file")
			log.Fatalf("FATAL: Failed to apply seed file: %v", err)
		}
		appLogger.Info(ctx, "Seed file applied", map[string]interface{}{"path": *seedPath})
	}

	// 4. Initialize Instrument Catalog
	var catalog ports.InstrumentCatalog = store
	if cfg.CatalogSource == config.CatalogBinance {
		binanceCatalog, err := binanceclient.New(binanceclient.Config{
			APIKey:          cfg.APIKey,
			SecretKey:       cfg.SecretKey,
			UseTestnet:      cfg.IsTestnet,
			Logger:          appLogger,
			RefreshInterval: cfg.CatalogRefresh,
			Sink:            store,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance catalog")
			log.Fatalf("FATAL: Failed to initialize Binance catalog: %v", err)
		}
		// Load once up front so a bad key or unreachable exchange fails at startup.
		instruments, err := binanceCatalog.Instruments(ctx)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to load Binance instruments")
			log.Fatalf("FATAL: Failed to load Binance instruments: %v", err)
		}
		appLogger.Info(ctx, "Binance instruments loaded", map[string]interface{}{"instruments": len(instruments)})
		catalog = binanceCatalog
	}
	appLogger.Info(ctx, "Instrument catalog initialized", map[string]interface{}{"source": cfg.CatalogSource})

	// 5. Initialize Application Service
	service, err := app.NewExecutionService(cfg, app.Dependencies{
		Logger:      appLogger,
		UoW:         store,
		Reads:       store.Repositories(),
		Accounts:    store,
		Instruments: catalog,
		Risk: risk.NewRiskManager(risk.RiskConfig{
			MaxOrderValue:       cfg.RiskMaxOrderValue,
			MaxPositionQuantity: cfg.RiskMaxPositionQuantity,
			MaxDailyTrades:      cfg.RiskMaxDailyTrades,
		}),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution service")
		log.Fatalf("FATAL: Failed to initialize execution service: %v", err)
	}

	// 6. Run the command stream
	var input io.Reader = os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatalf("FATAL: Failed to open input: %v", err)
		}
		defer f.Close()
		input = f
	}

	runner := jsonl.NewRunner(service, policy.New(nil), appLogger)
	if err := runner.Run(ctx, input, os.Stdout); err != nil {
		appLogger.Error(ctx, err, "Command runner exited with error")
		log.Fatalf("FATAL: Command runner exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func applySeed(ctx context.Context, store *sqlite.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, a := range seed.Accounts {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			return fmt.Errorf("account %s: invalid balance %q", a.ID, a.Balance)
		}
		acct := &domain.Account{ID: a.ID, Balance: balance, IsActive: a.IsActive == nil || *a.IsActive}
		if a.Ceiling != "" {
			if acct.Ceiling, err = decimal.NewFromString(a.Ceiling); err != nil {
				return fmt.Errorf("account %s: invalid ceiling %q", a.ID, a.Ceiling)
			}
		}
		if err := store.UpsertAccount(ctx, acct); err != nil {
			return err
		}
	}
	for _, in := range seed.Instruments {
		err := store.UpsertInstrument(ctx, &domain.Instrument{
			Key:      in.Key,
			LotSize:  in.LotSize,
			IsActive: in.IsActive == nil || *in.IsActive,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
