package taxlot

import (
	"time"

	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/shopspring/decimal"
)

// Crude CGT estimate rates: marginal rate for holdings under a year,
// discounted rate from one year on. The threshold divides the holding
// period in days by a flat 365 with no leap-day handling, so a 365-day
// hold already counts as long term. Informational only, not a legal
// calculation.
var (
	shortTermTaxRate = decimal.NewFromFloat(0.45)
	longTermTaxRate  = decimal.NewFromFloat(0.25)
)

const daysPerYear = 365.0

// ComputeProfitLoss prices every allocation against its lot's cost basis
// and attaches the tax estimate. The tax estimate is reported alongside
// the profit/loss, never netted against it.
//
// The only failure mode is ErrUnknownLot: an allocation pointing at a lot
// missing from lotsByID means the caller handed over a stale snapshot.
func ComputeProfitLoss(
	allocations []model.SellAllocation,
	lotsByID map[int64]model.Lot,
	sellUnitPrice decimal.Decimal,
	sellDate time.Time,
) (model.ProfitLossSummary, error) {
	summary := model.ProfitLossSummary{
		PerAllocation: make([]model.AllocationGain, 0, len(allocations)),
	}

	for _, alloc := range allocations {
		lot, ok := lotsByID[alloc.LotID]
		if !ok {
			return model.ProfitLossSummary{}, ErrUnknownLot
		}

		qty := decimal.NewFromInt(alloc.Quantity)
		profitLoss := qty.Mul(sellUnitPrice.Sub(lot.PurchaseUnitPrice))

		taxEstimate := profitLoss.Mul(taxRate(lot.PurchaseDate, sellDate))

		summary.PerAllocation = append(summary.PerAllocation, model.AllocationGain{
			LotID:       alloc.LotID,
			Quantity:    alloc.Quantity,
			ProfitLoss:  profitLoss,
			TaxEstimate: taxEstimate,
		})

		summary.TotalProfitLoss = summary.TotalProfitLoss.Add(profitLoss)
		summary.TotalTaxEstimate = summary.TotalTaxEstimate.Add(taxEstimate)
	}

	return summary, nil
}

func taxRate(purchaseDate, sellDate time.Time) decimal.Decimal {
	holdingYears := sellDate.Sub(purchaseDate).Hours() / 24 / daysPerYear
	if holdingYears < 1.0 {
		return shortTermTaxRate
	}
	return longTermTaxRate
}
