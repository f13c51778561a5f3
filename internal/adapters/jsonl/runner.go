// Package jsonl drives the execution service from newline-delimited JSON
// commands, one response line per command.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tradeDesk/internal/adapters/logger"
	"tradeDesk/internal/app"
	"tradeDesk/internal/domain"
	"tradeDesk/internal/policy"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

const maxLineSize = 1 << 20

// Service is the part of app.ExecutionService the runner dispatches to.
type Service interface {
	ExecuteTrade(ctx context.Context, req app.TradeRequest) (*app.ExecutionResult, error)
	ModifyPendingTrade(ctx context.Context, req app.ModifyRequest) (*app.ExecutionResult, error)
	CancelPendingTrade(ctx context.Context, req app.CancelRequest) (*app.ExecutionResult, error)
	Account(ctx context.Context, accountID string) (*domain.Account, error)
	Watchlist(ctx context.Context, accountID string) ([]*domain.WatchlistEntry, error)
	Positions(ctx context.Context, accountID string) ([]*domain.Position, error)
	TradeHistory(ctx context.Context, accountID string, limit int) ([]*domain.Trade, error)
	TradeAudit(ctx context.Context, tradeID int64) ([]*domain.TradeLog, error)
}

// Runner applies the role policy to each command before dispatching it.
type Runner struct {
	svc    Service
	policy *policy.Policy
	logger ports.Logger
}

// NewRunner creates a runner. A nil policy means policy.DefaultTable.
func NewRunner(svc Service, p *policy.Policy, log ports.Logger) *Runner {
	if p == nil {
		p = policy.New(nil)
	}
	return &Runner{svc: svc, policy: p, logger: log}
}

var opActions = map[string]policy.Action{
	"execute":   policy.ExecuteTrade,
	"modify":    policy.ModifyTrade,
	"cancel":    policy.CancelTrade,
	"watchlist": policy.ReadWatchlist,
	"positions": policy.ReadWatchlist,
	"history":   policy.ReadWatchlist,
	"audit":     policy.ReadWatchlist,
	"account":   policy.ReadWatchlist,
}

// Run processes commands from r until EOF or ctx is done. Command failures
// are reported in the response line; only I/O errors end the run.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(out)

	var processed int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp := r.Handle(ctx, []byte(line))
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		processed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}
	r.logger.Info(ctx, "Command stream finished", map[string]interface{}{"commands": processed})
	return nil
}

// Handle decodes, authorizes and dispatches one command.
func (r *Runner) Handle(ctx context.Context, line []byte) *Response {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return errorResponse("", fmt.Errorf("%w: malformed command: %v", ports.ErrValidation, err))
	}
	cmd.Op = strings.ToLower(strings.TrimSpace(cmd.Op))
	if cmd.AccountID == "" {
		cmd.AccountID = cmd.ActorID
	}
	ctx = logger.WithFields(ctx, map[string]interface{}{"commandID": cmd.ID, "op": cmd.Op, "actor": cmd.ActorID})

	action, ok := opActions[cmd.Op]
	if !ok {
		return errorResponse(cmd.ID, fmt.Errorf("%w: unknown op %q", ports.ErrValidation, cmd.Op))
	}
	if err := r.policy.Authorize(policy.ParseRole(cmd.Role), action); err != nil {
		r.logger.Warn(ctx, "Command denied by policy", map[string]interface{}{"role": cmd.Role})
		return errorResponse(cmd.ID, err)
	}

	resp, err := r.dispatch(ctx, &cmd)
	if err != nil && resp == nil {
		return errorResponse(cmd.ID, err)
	}
	resp.ID = cmd.ID
	return resp
}

func (r *Runner) dispatch(ctx context.Context, cmd *Command) (*Response, error) {
	switch cmd.Op {
	case "execute":
		req, err := tradeRequest(cmd)
		if err != nil {
			return nil, err
		}
		return fromResult(r.svc.ExecuteTrade(ctx, req))
	case "modify":
		req, err := modifyRequest(cmd)
		if err != nil {
			return nil, err
		}
		return fromResult(r.svc.ModifyPendingTrade(ctx, req))
	case "cancel":
		return fromResult(r.svc.CancelPendingTrade(ctx, app.CancelRequest{TradeID: cmd.TradeID, ActorID: cmd.ActorID, Reason: cmd.Reason}))
	case "watchlist":
		entries, err := r.svc.Watchlist(ctx, cmd.AccountID)
		if err != nil {
			return nil, err
		}
		resp := okResponse()
		for _, e := range entries {
			resp.Watchlist = append(resp.Watchlist, WatchlistDTO{
				InstrumentKey: e.InstrumentKey,
				Quantity:      e.Quantity,
				AvgPrice:      e.AvgPrice.String(),
				UpdatedAt:     e.UpdatedAt,
			})
		}
		return resp, nil
	case "positions":
		positions, err := r.svc.Positions(ctx, cmd.AccountID)
		if err != nil {
			return nil, err
		}
		resp := okResponse()
		for _, p := range positions {
			resp.Positions = append(resp.Positions, *toPositionDTO(p))
		}
		return resp, nil
	case "history":
		trades, err := r.svc.TradeHistory(ctx, cmd.AccountID, cmd.Limit)
		if err != nil {
			return nil, err
		}
		resp := okResponse()
		for _, t := range trades {
			resp.Trades = append(resp.Trades, toTradeDTO(t))
		}
		return resp, nil
	case "audit":
		logs, err := r.svc.TradeAudit(ctx, cmd.TradeID)
		if err != nil {
			return nil, err
		}
		resp := okResponse()
		for _, l := range logs {
			resp.Logs = append(resp.Logs, TradeLogDTO{
				ActorID:        l.ActorID,
				Action:         string(l.Action),
				Outcome:        string(l.Outcome),
				BeforeQuantity: l.Before.Quantity,
				BeforePrice:    l.Before.Price.String(),
				AfterQuantity:  l.After.Quantity,
				AfterPrice:     l.After.Price.String(),
				AfterKind:      string(l.After.OrderKind),
				Remark:         l.Remark,
				CreatedAt:      l.CreatedAt,
			})
		}
		return resp, nil
	case "account":
		acct, err := r.svc.Account(ctx, cmd.AccountID)
		if err != nil {
			return nil, err
		}
		resp := okResponse()
		resp.Account = &AccountDTO{AccountID: acct.ID, Balance: acct.Balance.String(), IsActive: acct.IsActive}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", ports.ErrValidation, cmd.Op)
}

func tradeRequest(cmd *Command) (app.TradeRequest, error) {
	price, err := parseDecimal("price", cmd.Price)
	if err != nil {
		return app.TradeRequest{}, err
	}
	fee, err := parseDecimal("fee", cmd.Fee)
	if err != nil {
		return app.TradeRequest{}, err
	}
	stop, err := parseNullDecimal("stop_loss", cmd.StopLoss)
	if err != nil {
		return app.TradeRequest{}, err
	}
	target, err := parseNullDecimal("target_price", cmd.TargetPrice)
	if err != nil {
		return app.TradeRequest{}, err
	}
	return app.TradeRequest{
		AccountID:     cmd.AccountID,
		InstrumentKey: cmd.InstrumentKey,
		Direction:     domain.Direction(cmd.Direction),
		Quantity:      cmd.Quantity,
		Lot:           cmd.Lot,
		Price:         price.Decimal,
		Fee:           fee.Decimal,
		OrderKind:     domain.OrderKind(cmd.OrderKind),
		StopLoss:      stop,
		TargetPrice:   target,
	}, nil
}

func modifyRequest(cmd *Command) (app.ModifyRequest, error) {
	req := app.ModifyRequest{
		TradeID:   cmd.TradeID,
		ActorID:   cmd.ActorID,
		Quantity:  cmd.Quantity,
		Lot:       cmd.Lot,
		OrderKind: domain.OrderKind(cmd.OrderKind),
	}
	var err error
	if req.Price, err = parseNullDecimal("price", cmd.Price); err != nil {
		return req, err
	}
	if req.Fee, err = parseNullDecimal("fee", cmd.Fee); err != nil {
		return req, err
	}
	if req.StopLoss, err = parseNullDecimal("stop_loss", cmd.StopLoss); err != nil {
		return req, err
	}
	if req.TargetPrice, err = parseNullDecimal("target_price", cmd.TargetPrice); err != nil {
		return req, err
	}
	return req, nil
}

// parseDecimal treats an empty value as zero.
func parseDecimal(field, s string) (decimal.NullDecimal, error) {
	v, err := parseNullDecimal(field, s)
	if err != nil {
		return v, err
	}
	return decimal.NewNullDecimal(v.Decimal), nil
}

func parseNullDecimal(field, s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s %q is not a decimal", ports.ErrValidation, field, s)
	}
	return decimal.NewNullDecimal(v), nil
}

func fromResult(res *app.ExecutionResult, err error) (*Response, error) {
	if res == nil {
		return nil, err
	}
	resp := &Response{
		Status:          res.Status,
		TradeID:         res.TradeID,
		TransactionID:   res.TransactionID,
		ExecutionStatus: string(res.ExecutionStatus),
		Remark:          res.Remark,
		ErrorCode:       string(res.ErrorCode),
	}
	if res.ResultingBalance.Valid {
		resp.Balance = res.ResultingBalance.Decimal.String()
	}
	if res.ResultingPosition != nil {
		resp.Position = toPositionDTO(res.ResultingPosition)
	}
	return resp, err
}

func toPositionDTO(p *domain.Position) *PositionDTO {
	dto := &PositionDTO{
		InstrumentKey: p.InstrumentKey,
		Quantity:      p.Quantity,
		AvgPrice:      p.AvgPrice.String(),
		Status:        string(p.Status),
		RealizedPnL:   p.RealizedPnL.String(),
		OpenedAt:      p.OpenedAt,
	}
	if !p.ClosedAt.IsZero() {
		closed := p.ClosedAt
		dto.ClosedAt = &closed
	}
	return dto
}

func toTradeDTO(t *domain.Trade) TradeDTO {
	return TradeDTO{
		TradeID:       t.ID,
		TransactionID: t.TransactionID,
		InstrumentKey: t.InstrumentKey,
		Direction:     string(t.Direction),
		OrderKind:     string(t.OrderKind),
		Status:        string(t.Status),
		Quantity:      t.Quantity,
		Price:         t.Price.String(),
		Fee:           t.Fee.String(),
		TotalValue:    t.TotalValue.String(),
		Remark:        t.Remark,
		CreatedAt:     t.CreatedAt,
	}
}

func okResponse() *Response {
	return &Response{Status: app.StatusOK}
}

func errorResponse(id string, err error) *Response {
	return &Response{
		ID:        id,
		Status:    app.StatusError,
		Remark:    ports.PublicMessage(err),
		ErrorCode: string(ports.Classify(err)),
	}
}
