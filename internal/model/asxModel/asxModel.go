package asxModel

import "github.com/shopspring/decimal"

type RawQuotes struct {
	Quotes []RawQuote `json:"quotes"`
}

type RawQuote struct {
	Symbol    string          `json:"symbol"`
	Shortname string          `json:"shortname"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	Status    string          `json:"status"`
}

type Quote struct {
	StockCode string
	Shortname string
	Price     decimal.Decimal
	Active    bool
}
