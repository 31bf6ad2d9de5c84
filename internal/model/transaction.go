package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeBuy  = "BUY"
	TransactionTypeSell = "SELL"
)

// SellAllocation assigns part of a sale to one lot. Quantity is always
// positive and never exceeds the lot's remaining quantity at selection time.
type SellAllocation struct {
	LotID    int64
	Quantity int64
}

// SellTransaction is immutable once assembled: the allocations must sum to
// Quantity and reference only lots of the same stock code.
type SellTransaction struct {
	ID          int64
	PortfolioID int64
	StockCode   string
	UnitPrice   decimal.Decimal
	Quantity    int64
	SellDate    time.Time
	Allocations []SellAllocation
}

// BuyTransaction is the 1:1 creation companion of a new Lot.
type BuyTransaction struct {
	ID          int64
	LotID       int64
	PortfolioID int64
	StockCode   string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Date        time.Time
}

// Transaction is the history view row covering both sides.
type Transaction struct {
	ID        int64
	LotID     int64
	Type      string
	StockCode string
	Quantity  int64
	UnitPrice decimal.Decimal
	Date      time.Time
}

// AllocationGain is the realized outcome for a single allocation.
type AllocationGain struct {
	LotID       int64
	Quantity    int64
	ProfitLoss  decimal.Decimal
	TaxEstimate decimal.Decimal
}

// ProfitLossSummary aggregates realized profit/loss over a sale. The tax
// estimate is informational and is never netted against TotalProfitLoss.
type ProfitLossSummary struct {
	TotalProfitLoss  decimal.Decimal
	TotalTaxEstimate decimal.Decimal
	PerAllocation    []AllocationGain
}
