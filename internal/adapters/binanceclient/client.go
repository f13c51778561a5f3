package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	statusTrading = "TRADING"
)

// InstrumentWriter receives every instrument loaded from the exchange.
type InstrumentWriter interface {
	UpsertInstrument(ctx context.Context, in *domain.Instrument) error
}

// symbolInfo is the part of an exchange symbol the catalog needs.
type symbolInfo struct {
	Symbol   string
	Status   string
	StepSize string
}

// Client implements ports.InstrumentCatalog on top of the Binance futures
// exchange info. Symbols are cached for RefreshInterval; a failed refresh
// keeps serving the previous snapshot.
type Client struct {
	futuresClient   *futures.Client
	logger          ports.Logger
	sink            InstrumentWriter
	refreshInterval time.Duration
	fetch           func(ctx context.Context) ([]symbolInfo, error)
	now             func() time.Time

	refreshGroup singleflight.Group

	mu          sync.RWMutex
	instruments map[string]*domain.Instrument
	loadedAt    time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey          string
	SecretKey       string
	UseTestnet      bool
	Logger          ports.Logger
	RefreshInterval time.Duration    // Cache lifetime (e.g., 5 * time.Minute)
	Sink            InstrumentWriter // Optional; mirrors loaded instruments
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Exchange info is a public endpoint.
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty, using public endpoints only")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance catalog configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance catalog configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}

	c := &Client{
		futuresClient:   client,
		logger:          cfg.Logger,
		sink:            cfg.Sink,
		refreshInterval: refresh,
		now:             time.Now,
	}
	c.fetch = c.fetchExchangeInfo
	return c, nil
}

// GetInstrument implements ports.InstrumentCatalog. Unknown symbols return nil.
func (c *Client) GetInstrument(ctx context.Context, key string) (*domain.Instrument, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	in, ok := c.instruments[strings.ToUpper(key)]
	if !ok {
		return nil, nil
	}
	cp := *in
	return &cp, nil
}

// Instruments returns the cached instruments sorted by key.
func (c *Client) Instruments(ctx context.Context) ([]*domain.Instrument, error) {
	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.Instrument, 0, len(c.instruments))
	for _, in := range c.instruments {
		cp := *in
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (c *Client) isFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instruments != nil && c.now().Sub(c.loadedAt) < c.refreshInterval
}

// ensureFresh reloads an expired catalog. Concurrent callers share one fetch.
func (c *Client) ensureFresh(ctx context.Context) error {
	if c.isFresh() {
		return nil
	}

	_, err, _ := c.refreshGroup.Do("exchangeInfo", func() (interface{}, error) {
		// A flight that finished just before this one started already reloaded.
		if c.isFresh() {
			return nil, nil
		}
		return nil, c.Refresh(ctx)
	})
	if err == nil {
		return nil
	}
	c.mu.RLock()
	stale := c.instruments != nil
	c.mu.RUnlock()
	if stale {
		c.logger.Warn(ctx, "Serving stale instrument catalog", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return err
}

// Refresh reloads the exchange info unconditionally.
func (c *Client) Refresh(ctx context.Context) error {
	symbols, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	loaded := make(map[string]*domain.Instrument, len(symbols))
	for i, s := range symbols {
		in := translate(s)
		in.ID = int64(i + 1)
		loaded[in.Key] = in
	}

	c.mu.Lock()
	c.instruments = loaded
	c.loadedAt = c.now()
	c.mu.Unlock()

	if c.sink != nil {
		for _, in := range loaded {
			if err := c.sink.UpsertInstrument(ctx, in); err != nil {
				c.logger.Error(ctx, err, "Failed to mirror instrument", map[string]interface{}{"instrument": in.Key})
			}
		}
	}
	c.logger.Info(ctx, "Instrument catalog refreshed", map[string]interface{}{"instruments": len(loaded)})
	return nil
}

func (c *Client) fetchExchangeInfo(ctx context.Context) ([]symbolInfo, error) {
	op := "GetExchangeInfo"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]symbolInfo, 0, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		si := symbolInfo{Symbol: s.Symbol, Status: s.Status}
		if lot := s.LotSizeFilter(); lot != nil {
			si.StepSize = lot.StepSize
		}
		out = append(out, si)
	}
	return out, nil
}

// translate maps an exchange symbol onto an instrument. Quantities are whole
// units, so a fractional or missing step size becomes a lot size of 1.
func translate(s symbolInfo) *domain.Instrument {
	in := &domain.Instrument{
		Key:      strings.ToUpper(s.Symbol),
		IsActive: s.Status == statusTrading,
		LotSize:  1,
	}
	step, err := decimal.NewFromString(s.StepSize)
	if err == nil && step.IsInteger() && step.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		in.LotSize = step.IntPart()
	}
	return in
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1022, -2014, -2015: // Signature or API-key rejected
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrExchangeUnavailable
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Context errors pass through unchanged.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
}
