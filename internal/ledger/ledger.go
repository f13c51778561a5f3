// Package ledger owns account cash balances. Callers must hold the
// per-account lock and run inside a transaction; the ledger itself does not
// serialize concurrent callers.
package ledger

import (
	"context"
	"fmt"

	"tradeDesk/internal/domain"
	"tradeDesk/internal/ports"

	"github.com/shopspring/decimal"
)

// Ledger applies debits and credits to account balances.
type Ledger struct {
	accounts ports.AccountRepository
}

// New returns a ledger over the given account repository.
func New(accounts ports.AccountRepository) *Ledger {
	return &Ledger{accounts: accounts}
}

// Debit removes amount from the account balance and returns the new balance.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := l.load(ctx, accountID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(acct.Balance) {
		return acct.Balance, &ports.InsufficientFundsError{
			AccountID: accountID,
			Required:  amount,
			Available: acct.Balance,
		}
	}
	newBalance := acct.Balance.Sub(amount)
	if err := l.accounts.UpdateBalance(ctx, accountID, newBalance, acct.Version); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Credit adds amount to the account balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct, err := l.load(ctx, accountID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	newBalance := acct.Balance.Add(amount)
	if err := l.accounts.UpdateBalance(ctx, accountID, newBalance, acct.Version); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Balance returns the current balance of an active account.
func (l *Ledger) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acct, err := l.load(ctx, accountID, decimal.Zero)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

func (l *Ledger) load(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount %s must not be negative: %w", amount.String(), ports.ErrValidation)
	}
	acct, err := l.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrNotFound)
	}
	if !acct.IsActive {
		return nil, fmt.Errorf("account %s: %w", accountID, ports.ErrInactiveResource)
	}
	return acct, nil
}
