package dbConverter

import (
	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/model/dbModel"
)

func ConvertHolding(dbHolding dbModel.Holding) model.Lot {
	return model.Lot{
		ID:                dbHolding.HoldingID,
		PortfolioID:       dbHolding.PortfolioID,
		StockCode:         dbHolding.StockCode,
		PurchaseDate:      dbHolding.PurchaseDate,
		PurchaseUnitPrice: dbHolding.PurchaseUnitPrice,
		PurchaseQuantity:  dbHolding.PurchaseQuantity,
		RemainingQuantity: dbHolding.RemainingQuantity,
	}
}

func ConvertTransaction(dbTxn dbModel.Transaction) model.Transaction {
	return model.Transaction{
		ID:        dbTxn.TransactionID,
		LotID:     dbTxn.HoldingID,
		Type:      dbTxn.TxType,
		StockCode: dbTxn.StockCode,
		Quantity:  dbTxn.Quantity,
		UnitPrice: dbTxn.UnitPrice,
		Date:      dbTxn.TxDate,
	}
}

func ConvertPortfolio(dbPortfolio dbModel.Portfolio) model.Portfolio {
	return model.Portfolio{
		PortfolioID:   dbPortfolio.PortfolioID,
		PortfolioName: dbPortfolio.Name,
	}
}
