package taxlot

import (
	"sort"

	"github.com/amplexus/ozstock_bot/internal/model"
)

// Strategy picks the order in which lots are consumed by a sale.
type Strategy int

const (
	// MinimizeGains consumes the highest-cost-basis lots first, regardless
	// of age, so loss-makers and expensive lots go before cheap winners.
	MinimizeGains Strategy = iota

	// MaximizeGains consumes the oldest lots first, cheapest first among
	// equal dates. The ordering favours long-held cheap lots rather than
	// literally maximizing the dollar gain for the quantity sold; kept
	// as-is for compatibility with prior releases.
	MaximizeGains
)

func (s Strategy) String() string {
	switch s {
	case MinimizeGains:
		return "MinimizeGains"
	case MaximizeGains:
		return "MaximizeGains"
	default:
		return "Unknown"
	}
}

// SelectAllocations orders the candidate lots under the strategy and
// partitions sellQuantity across them. It never mutates the input lots;
// applying the allocations is the caller's job.
//
// All candidates are expected to share one stock code. Lots with nothing
// remaining are skipped. Returns ErrInvalidRequest for a non-positive
// quantity and ErrInsufficientQuantity if the lots run out, which callers
// that pre-checked availability should treat as an internal bug.
func SelectAllocations(strategy Strategy, sellQuantity int64, lots []model.Lot) ([]model.SellAllocation, error) {
	if sellQuantity <= 0 {
		return nil, ErrInvalidRequest
	}

	sorted := make([]model.Lot, len(lots))
	copy(sorted, lots)

	switch strategy {
	case MaximizeGains:
		sort.SliceStable(sorted, func(i, j int) bool {
			if !sorted[i].PurchaseDate.Equal(sorted[j].PurchaseDate) {
				return sorted[i].PurchaseDate.Before(sorted[j].PurchaseDate)
			}
			return sorted[i].PurchaseUnitPrice.LessThan(sorted[j].PurchaseUnitPrice)
		})
	default: // MinimizeGains
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].PurchaseUnitPrice.GreaterThan(sorted[j].PurchaseUnitPrice)
		})
	}

	need := sellQuantity
	allocations := make([]model.SellAllocation, 0, len(sorted))
	for _, lot := range sorted {
		if lot.RemainingQuantity == 0 {
			continue
		}

		qty := lot.RemainingQuantity
		if qty > need {
			qty = need
		}

		allocations = append(allocations, model.SellAllocation{LotID: lot.ID, Quantity: qty})

		need -= qty
		if need == 0 {
			return allocations, nil
		}
	}

	return nil, ErrInsufficientQuantity
}
