package taxlot

import (
	"testing"
	"time"

	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lot(id int64, code string, date string, price string, remaining int64) model.Lot {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return model.Lot{
		ID:                id,
		PortfolioID:       1,
		StockCode:         code,
		PurchaseDate:      d,
		PurchaseUnitPrice: decimal.RequireFromString(price),
		PurchaseQuantity:  remaining,
		RemainingQuantity: remaining,
	}
}

func TestSelectAllocations(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		quantity int64
		lots     []model.Lot
		want     []model.SellAllocation
	}{
		{
			name:     "minimize gains takes highest cost basis first",
			strategy: MinimizeGains,
			quantity: 120,
			lots: []model.Lot{
				lot(1, "BHP", "2020-01-01", "10", 100),
				lot(2, "BHP", "2021-06-01", "12", 50),
			},
			want: []model.SellAllocation{
				{LotID: 2, Quantity: 50},
				{LotID: 1, Quantity: 70},
			},
		},
		{
			name:     "maximize gains takes oldest first",
			strategy: MaximizeGains,
			quantity: 120,
			lots: []model.Lot{
				lot(1, "BHP", "2020-01-01", "10", 100),
				lot(2, "BHP", "2021-06-01", "12", 50),
			},
			want: []model.SellAllocation{
				{LotID: 1, Quantity: 100},
				{LotID: 2, Quantity: 20},
			},
		},
		{
			name:     "maximize gains breaks date ties on cheaper lot",
			strategy: MaximizeGains,
			quantity: 30,
			lots: []model.Lot{
				lot(1, "BHP", "2020-01-01", "15", 20),
				lot(2, "BHP", "2020-01-01", "9", 20),
			},
			want: []model.SellAllocation{
				{LotID: 2, Quantity: 20},
				{LotID: 1, Quantity: 10},
			},
		},
		{
			name:     "minimize gains keeps input order on equal prices",
			strategy: MinimizeGains,
			quantity: 25,
			lots: []model.Lot{
				lot(1, "BHP", "2022-03-01", "10", 20),
				lot(2, "BHP", "2019-03-01", "10", 20),
			},
			want: []model.SellAllocation{
				{LotID: 1, Quantity: 20},
				{LotID: 2, Quantity: 5},
			},
		},
		{
			name:     "fully divested lots are skipped",
			strategy: MinimizeGains,
			quantity: 10,
			lots: []model.Lot{
				lotWithRemaining(lot(1, "BHP", "2020-01-01", "20", 100), 0),
				lot(2, "BHP", "2021-01-01", "10", 50),
			},
			want: []model.SellAllocation{
				{LotID: 2, Quantity: 10},
			},
		},
		{
			name:     "single lot exact drain",
			strategy: MaximizeGains,
			quantity: 50,
			lots: []model.Lot{
				lot(1, "BHP", "2020-01-01", "10", 50),
			},
			want: []model.SellAllocation{
				{LotID: 1, Quantity: 50},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectAllocations(tt.strategy, tt.quantity, tt.lots)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// The requested quantity is always covered exactly, with
			// strictly positive allocations.
			var sum int64
			for _, alloc := range got {
				assert.Positive(t, alloc.Quantity)
				sum += alloc.Quantity
			}
			assert.Equal(t, tt.quantity, sum)
		})
	}
}

func lotWithRemaining(l model.Lot, remaining int64) model.Lot {
	l.RemainingQuantity = remaining
	return l
}

func TestSelectAllocationsInvalidQuantity(t *testing.T) {
	lots := []model.Lot{lot(1, "BHP", "2020-01-01", "10", 100)}

	_, err := SelectAllocations(MinimizeGains, 0, lots)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = SelectAllocations(MaximizeGains, -5, lots)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSelectAllocationsInsufficient(t *testing.T) {
	lots := []model.Lot{
		lot(1, "BHP", "2020-01-01", "10", 20),
		lot(2, "BHP", "2021-01-01", "12", 10),
	}

	_, err := SelectAllocations(MinimizeGains, 31, lots)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestSelectAllocationsDeterministic(t *testing.T) {
	lots := []model.Lot{
		lot(1, "BHP", "2020-01-01", "10", 40),
		lot(2, "BHP", "2020-01-01", "10", 40),
		lot(3, "BHP", "2019-06-01", "14", 40),
		lot(4, "BHP", "2021-02-01", "8", 40),
	}

	for _, strategy := range []Strategy{MinimizeGains, MaximizeGains} {
		first, err := SelectAllocations(strategy, 100, lots)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := SelectAllocations(strategy, 100, lots)
			require.NoError(t, err)
			assert.Equal(t, first, again, "strategy %s must be deterministic", strategy)
		}
	}
}

func TestSelectAllocationsDoesNotMutateInput(t *testing.T) {
	lots := []model.Lot{
		lot(1, "BHP", "2020-01-01", "10", 100),
		lot(2, "BHP", "2021-06-01", "12", 50),
	}
	snapshot := make([]model.Lot, len(lots))
	copy(snapshot, lots)

	_, err := SelectAllocations(MinimizeGains, 120, lots)
	require.NoError(t, err)
	assert.Equal(t, snapshot, lots)
}

func TestMinimizeGainsOrderingMonotonic(t *testing.T) {
	lots := []model.Lot{
		lot(1, "BHP", "2024-01-01", "5", 10),
		lot(2, "BHP", "2018-01-01", "30", 10),
		lot(3, "BHP", "2022-01-01", "17", 10),
		lot(4, "BHP", "2023-01-01", "22", 10),
	}

	allocs, err := SelectAllocations(MinimizeGains, 40, lots)
	require.NoError(t, err)

	byID := map[int64]model.Lot{}
	for _, l := range lots {
		byID[l.ID] = l
	}
	for i := 1; i < len(allocs); i++ {
		prev := byID[allocs[i-1].LotID].PurchaseUnitPrice
		cur := byID[allocs[i].LotID].PurchaseUnitPrice
		assert.True(t, prev.GreaterThanOrEqual(cur),
			"lot %d (price %s) selected before lot %d (price %s)",
			allocs[i-1].LotID, prev, allocs[i].LotID, cur)
	}
}

func TestMaximizeGainsOrderingMonotonic(t *testing.T) {
	lots := []model.Lot{
		lot(1, "BHP", "2024-01-01", "5", 10),
		lot(2, "BHP", "2018-01-01", "30", 10),
		lot(3, "BHP", "2022-01-01", "17", 10),
		lot(4, "BHP", "2023-01-01", "22", 10),
	}

	allocs, err := SelectAllocations(MaximizeGains, 40, lots)
	require.NoError(t, err)

	byID := map[int64]model.Lot{}
	for _, l := range lots {
		byID[l.ID] = l
	}
	for i := 1; i < len(allocs); i++ {
		prev := byID[allocs[i-1].LotID].PurchaseDate
		cur := byID[allocs[i].LotID].PurchaseDate
		assert.False(t, prev.After(cur),
			"lot %d (%s) selected before lot %d (%s)",
			allocs[i-1].LotID, prev, allocs[i].LotID, cur)
	}
}
