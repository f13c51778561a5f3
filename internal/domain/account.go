package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a participant with a cash balance against which trades settle.
type Account struct {
	ID        string
	Balance   decimal.Decimal // Never negative
	Ceiling   decimal.Decimal // Informational balance ceiling; zero means none
	IsActive  bool
	Version   int64 // Optimistic concurrency version
	UpdatedAt time.Time
}

// Instrument is a tradable security identified by a unique key.
type Instrument struct {
	ID       int64
	Key      string
	IsActive bool
	LotSize  int64 // Quantities must be a multiple of this; >= 1
}
