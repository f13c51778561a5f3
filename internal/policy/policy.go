// Package policy decides which actor roles may perform which trade actions.
package policy

import (
	"fmt"
	"strings"

	"tradeDesk/internal/ports"
)

// Role is the role of the actor invoking an operation.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleTrader Role = "TRADER"
	RoleViewer Role = "VIEWER"
)

// Action is an operation guarded by the policy.
type Action string

const (
	ExecuteTrade  Action = "EXECUTE_TRADE"
	ModifyTrade   Action = "MODIFY_TRADE"
	CancelTrade   Action = "CANCEL_TRADE"
	ReadWatchlist Action = "READ_WATCHLIST"
)

// Table maps a role to the set of actions it may perform.
type Table map[Role]map[Action]bool

// DefaultTable is the built-in policy.
var DefaultTable = Table{
	RoleAdmin:  {ExecuteTrade: true, ModifyTrade: true, CancelTrade: true, ReadWatchlist: true},
	RoleTrader: {ExecuteTrade: true, ModifyTrade: true, CancelTrade: true, ReadWatchlist: true},
	RoleViewer: {ReadWatchlist: true},
}

// Policy evaluates a Table.
type Policy struct {
	table Table
}

// New returns a policy over table. A nil table means DefaultTable.
func New(table Table) *Policy {
	if table == nil {
		table = DefaultTable
	}
	return &Policy{table: table}
}

// ParseRole normalizes a role name. Unknown roles are returned as-is and are
// denied every action.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

// Allowed reports whether role may perform action.
func (p *Policy) Allowed(role Role, action Action) bool {
	return p.table[role][action]
}

// Authorize returns ports.ErrPermissionDenied if role may not perform action.
func (p *Policy) Authorize(role Role, action Action) error {
	if p.Allowed(role, action) {
		return nil
	}
	return fmt.Errorf("role %q may not %s: %w", role, strings.ToLower(string(action)), ports.ErrPermissionDenied)
}
