package portfolioService

import (
	"context"
	"testing"
	"time"

	"github.com/amplexus/ozstock_bot/config"
	"github.com/amplexus/ozstock_bot/data/repository"
	"github.com/amplexus/ozstock_bot/internal/externalApi"
	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/model/asxModel"
	"github.com/amplexus/ozstock_bot/internal/service"
	"github.com/amplexus/ozstock_bot/internal/taxlot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	Repository

	getLotsByStockCode    func(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error)
	getLotsByPortfolio    func(ctx context.Context, portfolioID int64) ([]model.Lot, error)
	applySale             func(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (int64, error)
	insertLot             func(ctx context.Context, lot model.Lot) (model.BuyTransaction, error)
	getPortfolioName      func(ctx context.Context, portfolioID int64) (string, error)
	getDistinctStockCodes func(ctx context.Context) ([]string, error)
}

func (f *fakeRepo) GetLotsByStockCode(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error) {
	return f.getLotsByStockCode(ctx, portfolioID, stockCode)
}

func (f *fakeRepo) GetLotsByPortfolio(ctx context.Context, portfolioID int64) ([]model.Lot, error) {
	return f.getLotsByPortfolio(ctx, portfolioID)
}

func (f *fakeRepo) ApplySale(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (int64, error) {
	return f.applySale(ctx, txn, updatedLots)
}

func (f *fakeRepo) InsertLot(ctx context.Context, lot model.Lot) (model.BuyTransaction, error) {
	return f.insertLot(ctx, lot)
}

func (f *fakeRepo) GetPortfolioName(ctx context.Context, portfolioID int64) (string, error) {
	return f.getPortfolioName(ctx, portfolioID)
}

func (f *fakeRepo) GetDistinctStockCodes(ctx context.Context) ([]string, error) {
	return f.getDistinctStockCodes(ctx)
}

type fakeCache struct {
	getQuote  func(ctx context.Context, stockCode string) (asxModel.Quote, error)
	getQuotes func(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error)
	setQuotes func(ctx context.Context, quotes []asxModel.Quote) error
}

func (f *fakeCache) GetQuote(ctx context.Context, stockCode string) (asxModel.Quote, error) {
	return f.getQuote(ctx, stockCode)
}

func (f *fakeCache) GetQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
	return f.getQuotes(ctx, stockCodes)
}

func (f *fakeCache) SetQuotes(ctx context.Context, quotes []asxModel.Quote) error {
	return f.setQuotes(ctx, quotes)
}

type fakeAsxApi struct {
	getQuote  func(ctx context.Context, stockCode string) (asxModel.Quote, error)
	getQuotes func(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error)
}

func (f *fakeAsxApi) GetQuote(ctx context.Context, stockCode string) (asxModel.Quote, error) {
	return f.getQuote(ctx, stockCode)
}

func (f *fakeAsxApi) GetQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
	return f.getQuotes(ctx, stockCodes)
}

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func activeQuote(code string, price int64) asxModel.Quote {
	return asxModel.Quote{
		StockCode: code,
		Shortname: code + " LTD",
		Price:     decimal.NewFromInt(price),
		Active:    true,
	}
}

func newTestService(repo Repository, cache Cache, asxApi AsxApi) *PortfolioService {
	cfg := &config.Config{Sale: config.Sale{MaxAttempts: 3}}
	return New(cfg, repo, cache, asxApi, nil, nil)
}

func TestSellStockCommitsFirstAttempt(t *testing.T) {
	lots := []model.Lot{
		{ID: 1, StockCode: "BHP", PurchaseDate: mustDate("2020-01-10"), PurchaseUnitPrice: decimal.NewFromInt(30), PurchaseQuantity: 100, RemainingQuantity: 100},
		{ID: 2, StockCode: "BHP", PurchaseDate: mustDate("2021-06-01"), PurchaseUnitPrice: decimal.NewFromInt(40), PurchaseQuantity: 50, RemainingQuantity: 50},
	}

	applied := 0
	repo := &fakeRepo{
		getLotsByStockCode: func(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error) {
			return lots, nil
		},
		applySale: func(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (int64, error) {
			applied++
			assert.Equal(t, int64(7), txn.PortfolioID)
			assert.Equal(t, int64(60), txn.Quantity)
			return 42, nil
		},
	}

	s := newTestService(repo, nil, nil)

	txn, summary, err := s.SellStock(context.Background(), 7, "BHP", 60, decimal.NewFromInt(45), mustDate("2024-03-01"), taxlot.MinimizeGains)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, int64(42), txn.ID)
	assert.Equal(t, int64(7), txn.PortfolioID)
	assert.True(t, summary.TotalProfitLoss.GreaterThan(decimal.Zero))
}

func TestSellStockRetriesOnStaleLot(t *testing.T) {
	attempt := 0
	repo := &fakeRepo{
		getLotsByStockCode: func(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error) {
			remaining := int64(100)
			if attempt > 0 {
				remaining = 80
			}
			return []model.Lot{
				{ID: 1, StockCode: "BHP", PurchaseDate: mustDate("2020-01-10"), PurchaseUnitPrice: decimal.NewFromInt(30), PurchaseQuantity: 100, RemainingQuantity: remaining},
			}, nil
		},
		applySale: func(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (int64, error) {
			attempt++
			if attempt == 1 {
				return 0, repository.ErrStaleLot
			}
			// second attempt saw the fresh snapshot
			require.Len(t, updatedLots, 1)
			assert.Equal(t, int64(30), updatedLots[0].RemainingQuantity)
			return 43, nil
		},
	}

	s := newTestService(repo, nil, nil)

	txn, _, err := s.SellStock(context.Background(), 7, "BHP", 50, decimal.NewFromInt(45), mustDate("2024-03-01"), taxlot.MinimizeGains)
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
	assert.Equal(t, int64(43), txn.ID)
}

func TestSellStockAttemptsExhausted(t *testing.T) {
	repo := &fakeRepo{
		getLotsByStockCode: func(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error) {
			return []model.Lot{
				{ID: 1, StockCode: "BHP", PurchaseDate: mustDate("2020-01-10"), PurchaseUnitPrice: decimal.NewFromInt(30), PurchaseQuantity: 100, RemainingQuantity: 100},
			}, nil
		},
		applySale: func(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (int64, error) {
			return 0, repository.ErrStaleLot
		},
	}

	s := newTestService(repo, nil, nil)

	_, _, err := s.SellStock(context.Background(), 7, "BHP", 10, decimal.NewFromInt(45), mustDate("2024-03-01"), taxlot.MinimizeGains)
	require.ErrorIs(t, err, service.ErrSaleConflict)
}

func TestSellStockExceedsAvailable(t *testing.T) {
	repo := &fakeRepo{
		getLotsByStockCode: func(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error) {
			return []model.Lot{
				{ID: 1, StockCode: "BHP", PurchaseDate: mustDate("2020-01-10"), PurchaseUnitPrice: decimal.NewFromInt(30), PurchaseQuantity: 100, RemainingQuantity: 30},
			}, nil
		},
		applySale: func(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (int64, error) {
			t.Fatal("ApplySale must not be called on a rejected sale")
			return 0, nil
		},
	}

	s := newTestService(repo, nil, nil)

	_, _, err := s.SellStock(context.Background(), 7, "BHP", 31, decimal.NewFromInt(45), mustDate("2024-03-01"), taxlot.MinimizeGains)

	var exceedsErr *taxlot.ExceedsAvailableError
	require.ErrorAs(t, err, &exceedsErr)
	assert.Equal(t, int64(30), exceedsErr.Available)
}

func TestBuyStockInvalidQuantity(t *testing.T) {
	s := newTestService(&fakeRepo{}, nil, nil)

	_, err := s.BuyStock(context.Background(), 7, "BHP", 0, decimal.NewFromInt(30), mustDate("2024-03-01"))
	require.ErrorIs(t, err, taxlot.ErrInvalidRequest)
}

func TestBuyStockInactiveStock(t *testing.T) {
	cache := &fakeCache{
		getQuote: func(ctx context.Context, stockCode string) (asxModel.Quote, error) {
			return asxModel.Quote{StockCode: stockCode, Active: false}, nil
		},
	}

	s := newTestService(&fakeRepo{}, cache, nil)

	_, err := s.BuyStock(context.Background(), 7, "XYZ", 10, decimal.NewFromInt(30), mustDate("2024-03-01"))
	require.ErrorIs(t, err, service.ErrStockNotActive)
}

func TestBuyStockInsertsFullLot(t *testing.T) {
	cache := &fakeCache{
		getQuote: func(ctx context.Context, stockCode string) (asxModel.Quote, error) {
			return activeQuote(stockCode, 31), nil
		},
	}

	repo := &fakeRepo{
		insertLot: func(ctx context.Context, lot model.Lot) (model.BuyTransaction, error) {
			assert.Equal(t, int64(7), lot.PortfolioID)
			assert.Equal(t, lot.PurchaseQuantity, lot.RemainingQuantity)
			return model.BuyTransaction{ID: 1, LotID: 5, StockCode: lot.StockCode, Quantity: lot.PurchaseQuantity}, nil
		},
	}

	s := newTestService(repo, cache, nil)

	txn, err := s.BuyStock(context.Background(), 7, "BHP", 100, decimal.NewFromInt(30), mustDate("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), txn.LotID)
}

func TestGetQuoteInfoFallsBackToApi(t *testing.T) {
	cache := &fakeCache{
		getQuote: func(ctx context.Context, stockCode string) (asxModel.Quote, error) {
			return asxModel.Quote{}, externalApi.ErrNotFound
		},
	}
	api := &fakeAsxApi{
		getQuote: func(ctx context.Context, stockCode string) (asxModel.Quote, error) {
			return activeQuote(stockCode, 45), nil
		},
	}

	s := newTestService(&fakeRepo{}, cache, api)

	quote, err := s.GetQuoteInfo(context.Background(), "BHP")
	require.NoError(t, err)
	assert.Equal(t, "BHP", quote.StockCode)
	assert.True(t, quote.Price.Equal(decimal.NewFromInt(45)))
}

func TestGetQuoteInfoUnknownCode(t *testing.T) {
	cache := &fakeCache{
		getQuote: func(ctx context.Context, stockCode string) (asxModel.Quote, error) {
			return asxModel.Quote{}, externalApi.ErrNotFound
		},
	}
	api := &fakeAsxApi{
		getQuote: func(ctx context.Context, stockCode string) (asxModel.Quote, error) {
			return asxModel.Quote{}, externalApi.ErrNotFound
		},
	}

	s := newTestService(&fakeRepo{}, cache, api)

	_, err := s.GetQuoteInfo(context.Background(), "NOPE")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestGetHoldingsEnrichesWithQuotes(t *testing.T) {
	repo := &fakeRepo{
		getLotsByPortfolio: func(ctx context.Context, portfolioID int64) ([]model.Lot, error) {
			return []model.Lot{
				{ID: 1, StockCode: "BHP", PurchaseUnitPrice: decimal.NewFromInt(30), PurchaseQuantity: 100, RemainingQuantity: 80},
				{ID: 2, StockCode: "CBA", PurchaseUnitPrice: decimal.NewFromInt(100), PurchaseQuantity: 10, RemainingQuantity: 10},
			}, nil
		},
	}
	cache := &fakeCache{
		getQuotes: func(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
			assert.ElementsMatch(t, []string{"BHP", "CBA"}, stockCodes)
			return map[string]asxModel.Quote{
				"BHP": activeQuote("BHP", 45),
				"CBA": activeQuote("CBA", 90),
			}, nil
		},
	}

	s := newTestService(repo, cache, nil)

	holdings, err := s.GetHoldings(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, holdings, 2)

	assert.True(t, holdings[0].MarketValue.Equal(decimal.NewFromInt(45*80)))
	assert.True(t, holdings[0].UnrealizedPL.Equal(decimal.NewFromInt(15*80)))
	assert.True(t, holdings[1].UnrealizedPL.Equal(decimal.NewFromInt(-100)))
}

func TestGetPortfolioSummaryAggregates(t *testing.T) {
	repo := &fakeRepo{
		getPortfolioName: func(ctx context.Context, portfolioID int64) (string, error) {
			return "super", nil
		},
		getLotsByPortfolio: func(ctx context.Context, portfolioID int64) ([]model.Lot, error) {
			return []model.Lot{
				{ID: 1, StockCode: "BHP", PurchaseUnitPrice: decimal.NewFromInt(30), PurchaseQuantity: 100, RemainingQuantity: 80},
				{ID: 2, StockCode: "BHP", PurchaseUnitPrice: decimal.NewFromInt(40), PurchaseQuantity: 50, RemainingQuantity: 50},
			}, nil
		},
	}
	cache := &fakeCache{
		getQuotes: func(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
			return map[string]asxModel.Quote{"BHP": activeQuote("BHP", 45)}, nil
		},
	}

	s := newTestService(repo, cache, nil)

	summary, err := s.GetPortfolioSummary(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "super", summary.PortfolioName)
	assert.Equal(t, 2, summary.LotsCount)
	assert.True(t, summary.MarketValue.Equal(decimal.NewFromInt(45*80+45*50)))
	assert.True(t, summary.CostBasis.Equal(decimal.NewFromInt(30*80+40*50)))
	assert.True(t, summary.UnrealizedPL.Equal(summary.MarketValue.Sub(summary.CostBasis)))
}

func TestRefreshQuotesWarmsCache(t *testing.T) {
	repo := &fakeRepo{
		getDistinctStockCodes: func(ctx context.Context) ([]string, error) {
			return []string{"BHP", "CBA"}, nil
		},
	}
	api := &fakeAsxApi{
		getQuotes: func(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
			assert.ElementsMatch(t, []string{"BHP", "CBA"}, stockCodes)
			return map[string]asxModel.Quote{
				"BHP": activeQuote("BHP", 45),
				"CBA": activeQuote("CBA", 90),
			}, nil
		},
	}

	var cached []asxModel.Quote
	cache := &fakeCache{
		setQuotes: func(ctx context.Context, quotes []asxModel.Quote) error {
			cached = quotes
			return nil
		},
	}

	s := newTestService(repo, cache, api)

	err := s.RefreshQuotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestRefreshQuotesNoHoldings(t *testing.T) {
	repo := &fakeRepo{
		getDistinctStockCodes: func(ctx context.Context) ([]string, error) {
			return nil, nil
		},
	}

	s := newTestService(repo, nil, nil)

	require.NoError(t, s.RefreshQuotes(context.Background()))
}
