package telegram

import (
	"testing"

	"github.com/amplexus/ozstock_bot/internal/taxlot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrder(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		allowStrategy bool
		wantCode      string
		wantQty       int64
		wantPrice     string
		wantStrategy  taxlot.Strategy
		wantErr       bool
	}{
		{
			name:      "buy order",
			text:      "BHP 100 38.50",
			wantCode:  "BHP",
			wantQty:   100,
			wantPrice: "38.5",
		},
		{
			name:      "lowercase code is uppercased",
			text:      "bhp 100 38.50",
			wantCode:  "BHP",
			wantQty:   100,
			wantPrice: "38.5",
		},
		{
			name:          "sell order defaults to min",
			text:          "BHP 50 45",
			allowStrategy: true,
			wantCode:      "BHP",
			wantQty:       50,
			wantPrice:     "45",
			wantStrategy:  taxlot.MinimizeGains,
		},
		{
			name:          "sell order with max",
			text:          "BHP 50 45 max",
			allowStrategy: true,
			wantCode:      "BHP",
			wantQty:       50,
			wantPrice:     "45",
			wantStrategy:  taxlot.MaximizeGains,
		},
		{
			name:          "sell order with MIN uppercase",
			text:          "BHP 50 45 MIN",
			allowStrategy: true,
			wantCode:      "BHP",
			wantQty:       50,
			wantPrice:     "45",
			wantStrategy:  taxlot.MinimizeGains,
		},
		{
			name:    "strategy token rejected on buy",
			text:    "BHP 50 45 min",
			wantErr: true,
		},
		{
			name:          "unknown strategy token",
			text:          "BHP 50 45 fifo",
			allowStrategy: true,
			wantErr:       true,
		},
		{
			name:    "too few fields",
			text:    "BHP 100",
			wantErr: true,
		},
		{
			name:    "zero quantity",
			text:    "BHP 0 38.50",
			wantErr: true,
		},
		{
			name:    "negative quantity",
			text:    "BHP -5 38.50",
			wantErr: true,
		},
		{
			name:    "non-numeric price",
			text:    "BHP 100 cheap",
			wantErr: true,
		},
		{
			name:    "zero price",
			text:    "BHP 100 0",
			wantErr: true,
		},
		{
			name:    "empty input",
			text:    "   ",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, qty, price, strategy, err := parseOrder(tc.text, tc.allowStrategy)
			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantQty, qty)
			wantPrice, perr := decimal.NewFromString(tc.wantPrice)
			require.NoError(t, perr)
			assert.True(t, price.Equal(wantPrice))
			assert.Equal(t, tc.wantStrategy, strategy)
		})
	}
}
