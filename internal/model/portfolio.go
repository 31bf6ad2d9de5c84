package model

import (
	"github.com/shopspring/decimal"
)

type Portfolio struct {
	PortfolioID   int64
	PortfolioName string
}

// PortfolioSummary values the remaining quantity of every lot at the
// latest known quote.
type PortfolioSummary struct {
	PortfolioName string
	MarketValue   decimal.Decimal
	CostBasis     decimal.Decimal
	UnrealizedPL  decimal.Decimal
	LotsCount     int
}

// PortfolioFullInfo feeds the report generator: lot-level holdings plus
// the transaction history of one portfolio.
type PortfolioFullInfo struct {
	PortfolioSummary
	Holdings     []Holding
	Transactions []Transaction
}
