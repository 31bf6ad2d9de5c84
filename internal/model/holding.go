package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a single purchase parcel: what was bought, at what cost basis,
// and how much of it is still held. RemainingQuantity only ever decreases;
// a lot at zero is fully divested but kept for historical reporting.
type Lot struct {
	ID                int64
	PortfolioID       int64
	StockCode         string
	PurchaseDate      time.Time
	PurchaseUnitPrice decimal.Decimal
	PurchaseQuantity  int64
	RemainingQuantity int64
}

// Holding is a lot enriched with the latest quote for display.
type Holding struct {
	Lot
	Shortname    string
	Price        decimal.Decimal
	MarketValue  decimal.Decimal
	UnrealizedPL decimal.Decimal
}
