package taxlot

import (
	"fmt"
	"time"

	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/shopspring/decimal"
)

// SaleRequest describes one sell order against a snapshot of lots.
type SaleRequest struct {
	StockCode string
	Quantity  int64
	UnitPrice decimal.Decimal
	SellDate  time.Time
	Strategy  Strategy
}

// SaleResult is a pure transformation of the input snapshot: updated copies
// of the touched lots, the assembled immutable sell transaction and the
// realized profit/loss. Nothing is persisted here.
type SaleResult struct {
	UpdatedLots []model.Lot
	Transaction model.SellTransaction
	Summary     model.ProfitLossSummary
}

// ExecuteSale runs the full sale pipeline: availability check, allocation
// selection, gain calculation, lot mutation on copies. All-or-nothing: on
// any error no lot state is returned and the input lots are untouched.
//
// The caller must give each invocation its own snapshot; two concurrent
// sales over the same lots invalidate each other's availability check.
// Re-validating remaining quantities at commit time is the store's job.
func ExecuteSale(req SaleRequest, lots []model.Lot) (SaleResult, error) {
	candidates := make([]model.Lot, 0, len(lots))
	available := int64(0)
	for _, lot := range lots {
		if lot.StockCode != req.StockCode {
			continue
		}
		candidates = append(candidates, lot)
		available += lot.RemainingQuantity
	}

	if req.Quantity <= 0 {
		return SaleResult{}, ErrInvalidRequest
	}
	if req.Quantity > available {
		return SaleResult{}, &ExceedsAvailableError{Available: available}
	}

	allocations, err := SelectAllocations(req.Strategy, req.Quantity, candidates)
	if err != nil {
		return SaleResult{}, err
	}

	lotsByID := make(map[int64]model.Lot, len(candidates))
	for _, lot := range candidates {
		lotsByID[lot.ID] = lot
	}

	summary, err := ComputeProfitLoss(allocations, lotsByID, req.UnitPrice, req.SellDate)
	if err != nil {
		return SaleResult{}, err
	}

	updated := make([]model.Lot, 0, len(allocations))
	for _, alloc := range allocations {
		lot := lotsByID[alloc.LotID]
		lot.RemainingQuantity -= alloc.Quantity
		if lot.RemainingQuantity < 0 {
			// Selector bug, not a user error.
			return SaleResult{}, fmt.Errorf("lot %d driven below zero: %w", lot.ID, ErrInsufficientQuantity)
		}
		lotsByID[alloc.LotID] = lot
		updated = append(updated, lot)
	}

	transaction := model.SellTransaction{
		StockCode:   req.StockCode,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
		SellDate:    req.SellDate,
		Allocations: allocations,
	}

	return SaleResult{
		UpdatedLots: updated,
		Transaction: transaction,
		Summary:     summary,
	}, nil
}
