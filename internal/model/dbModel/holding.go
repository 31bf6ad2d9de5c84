package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type Holding struct {
	HoldingID         int64           `db:"holding_id"`
	PortfolioID       int64           `db:"portfolio_id"`
	StockCode         string          `db:"stock_code"`
	PurchaseDate      time.Time       `db:"purchase_date"`
	PurchaseUnitPrice decimal.Decimal `db:"purchase_unit_price"`
	PurchaseQuantity  int64           `db:"purchase_quantity"`
	RemainingQuantity int64           `db:"remaining_quantity"`
}

type Transaction struct {
	TransactionID int64           `db:"transaction_id"`
	HoldingID     int64           `db:"holding_id"`
	TxType        string          `db:"tx_type"`
	StockCode     string          `db:"stock_code"`
	Quantity      int64           `db:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	TxDate        time.Time       `db:"tx_date"`
}
