package portfolioService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amplexus/ozstock_bot/config"
	"github.com/amplexus/ozstock_bot/data/repository"
	"github.com/amplexus/ozstock_bot/internal/externalApi"
	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/model/asxModel"
	"github.com/amplexus/ozstock_bot/internal/service"
	"github.com/amplexus/ozstock_bot/internal/taxlot"
	"github.com/amplexus/ozstock_bot/utils"
	"github.com/shopspring/decimal"
)

type AsxApi interface {
	GetQuote(ctx context.Context, stockCode string) (asxModel.Quote, error)
	GetQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error)
}

type Cache interface {
	GetQuote(ctx context.Context, stockCode string) (asxModel.Quote, error)
	GetQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error)
	SetQuotes(ctx context.Context, quotes []asxModel.Quote) error
}

type Repository interface {
	RegUser(ctx context.Context, chatID int64) (userID int64, err error)
	GetUserID(ctx context.Context, chatID int64) (userID int64, err error)
	CreatePortfolio(ctx context.Context, portfolioName string, userID int64) (portfolioID int64, err error)
	GetPortfolios(ctx context.Context, chatID int64) ([]model.Portfolio, error)
	GetPortfolioName(ctx context.Context, portfolioID int64) (string, error)
	DeletePortfolio(ctx context.Context, portfolioID int64) error
	InsertLot(ctx context.Context, lot model.Lot) (model.BuyTransaction, error)
	GetLotsByStockCode(ctx context.Context, portfolioID int64, stockCode string) ([]model.Lot, error)
	GetLotsByPortfolio(ctx context.Context, portfolioID int64) ([]model.Lot, error)
	ApplySale(ctx context.Context, txn model.SellTransaction, updatedLots []model.Lot) (txnID int64, err error)
	GetTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID int64) error
	GetDistinctStockCodes(ctx context.Context) ([]string, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, portfolios []model.PortfolioFullInfo) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) error
}

type PortfolioService struct {
	cfg             *config.Config
	repo            Repository
	cache           Cache
	asxApi          AsxApi
	reportGenerator ReportGenerator
	cloudStorage    CloudStorage
}

func New(
	cfg *config.Config,
	repo Repository,
	cache Cache,
	asxApi AsxApi,
	reportGenerator ReportGenerator,
	cloudStorage CloudStorage,
) *PortfolioService {
	return &PortfolioService{
		cfg:             cfg,
		repo:            repo,
		cache:           cache,
		asxApi:          asxApi,
		reportGenerator: reportGenerator,
		cloudStorage:    cloudStorage,
	}
}

func (s *PortfolioService) RegUser(ctx context.Context, chatID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.RegUser"

	slog.Debug("RegUser start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("RegUser finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	_, err := s.repo.RegUser(ctx, chatID)
	if err != nil {
		slog.Error("got error from repo.RegUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (s *PortfolioService) CreatePortfolio(ctx context.Context, portfolioName string, chatID int64) (portfolioID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.CreatePortfolio"

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioName", portfolioName), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("CreatePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioName", portfolioName), slog.Int64("chatID", chatID))
	}()

	userID, err := s.repo.GetUserID(ctx, chatID)
	if err != nil {
		slog.Error("got error from repo.GetUserID", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return 0, err
	}

	portfolioID, err = s.repo.CreatePortfolio(ctx, portfolioName, userID)
	if err != nil {
		slog.Error("got error from repo.CreatePortfolio", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return 0, err
	}

	return portfolioID, nil
}

func (s *PortfolioService) GetPortfolios(ctx context.Context, chatID int64) ([]model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetPortfolios"

	slog.Debug("GetPortfolios start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("GetPortfolios finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	portfolios, err := s.repo.GetPortfolios(ctx, chatID)
	if err != nil {
		slog.Error("got error from repo.GetPortfolios", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return portfolios, nil
}

// DeletePortfolio removes the portfolio with its lots, transactions and
// allocations in one go.
func (s *PortfolioService) DeletePortfolio(ctx context.Context, portfolioID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.DeletePortfolio"

	slog.Debug("DeletePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		slog.Debug("DeletePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	}()

	err := s.repo.DeletePortfolio(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.DeletePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetQuoteInfo serves the latest quote for a code: cache first, live feed
// on a miss. The engine never owns this data, it is fetched per request.
func (s *PortfolioService) GetQuoteInfo(ctx context.Context, stockCode string) (asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetQuoteInfo"

	slog.Debug("GetQuoteInfo start", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode))
	defer func() {
		slog.Debug("GetQuoteInfo finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode))
	}()

	quote, err := s.cache.GetQuote(ctx, stockCode)
	if err != nil {
		slog.Warn("can't get quote from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

		quote, err = s.asxApi.GetQuote(ctx, stockCode)
		if err != nil {
			if errors.Is(err, externalApi.ErrNotFound) {
				slog.Warn("stock code not found in asxApi", slog.String("rqID", rqID), slog.String("op", op))
				return asxModel.Quote{}, service.ErrNotFound
			}
			slog.Error("can't get quote from asxApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return asxModel.Quote{}, err
		}
	}

	if !quote.Active || quote.Price.IsZero() {
		return asxModel.Quote{}, service.ErrStockNotActive
	}

	return quote, nil
}

// BuyStock creates a new lot plus its buy transaction. The stock code must
// resolve to an actively traded security.
func (s *PortfolioService) BuyStock(
	ctx context.Context,
	portfolioID int64,
	stockCode string,
	quantity int64,
	unitPrice decimal.Decimal,
	purchaseDate time.Time,
) (model.BuyTransaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.BuyStock"

	slog.Debug("BuyStock start", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode), slog.Int64("quantity", quantity))
	defer func() {
		slog.Debug("BuyStock finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode))
	}()

	if quantity <= 0 || unitPrice.LessThanOrEqual(decimal.Zero) {
		return model.BuyTransaction{}, taxlot.ErrInvalidRequest
	}

	if _, err := s.GetQuoteInfo(ctx, stockCode); err != nil {
		return model.BuyTransaction{}, err
	}

	lot := model.Lot{
		PortfolioID:       portfolioID,
		StockCode:         stockCode,
		PurchaseDate:      purchaseDate,
		PurchaseUnitPrice: unitPrice,
		PurchaseQuantity:  quantity,
		RemainingQuantity: quantity,
	}

	buyTxn, err := s.repo.InsertLot(ctx, lot)
	if err != nil {
		slog.Error("got error from repo.InsertLot", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.BuyTransaction{}, err
	}

	return buyTxn, nil
}

// SellStock runs the tax-lot engine over a fresh snapshot and commits the
// result. The commit is optimistic: if a lot changed underneath us the
// store reports ErrStaleLot and the whole sale is recomputed from a new
// snapshot, up to cfg.Sale.MaxAttempts times.
func (s *PortfolioService) SellStock(
	ctx context.Context,
	portfolioID int64,
	stockCode string,
	quantity int64,
	unitPrice decimal.Decimal,
	sellDate time.Time,
	strategy taxlot.Strategy,
) (model.SellTransaction, model.ProfitLossSummary, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.SellStock"

	slog.Debug("SellStock start", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode), slog.Int64("quantity", quantity))
	defer func() {
		slog.Debug("SellStock finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode))
	}()

	attempts := s.cfg.Sale.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		lots, err := s.repo.GetLotsByStockCode(ctx, portfolioID, stockCode)
		if err != nil {
			slog.Error("got error from repo.GetLotsByStockCode", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return model.SellTransaction{}, model.ProfitLossSummary{}, err
		}

		result, err := taxlot.ExecuteSale(taxlot.SaleRequest{
			StockCode: stockCode,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			SellDate:  sellDate,
			Strategy:  strategy,
		}, lots)
		if err != nil {
			return model.SellTransaction{}, model.ProfitLossSummary{}, err
		}

		txn := result.Transaction
		txn.PortfolioID = portfolioID

		txnID, err := s.repo.ApplySale(ctx, txn, result.UpdatedLots)
		if err != nil {
			if errors.Is(err, repository.ErrStaleLot) {
				slog.Warn(
					"sale conflicted with concurrent update, retrying",
					slog.String("rqID", rqID),
					slog.String("op", op),
					slog.Int("attempt", attempt),
				)
				continue
			}
			slog.Error("got error from repo.ApplySale", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return model.SellTransaction{}, model.ProfitLossSummary{}, err
		}

		txn.ID = txnID
		return txn, result.Summary, nil
	}

	slog.Error("sale attempts exhausted", slog.String("rqID", rqID), slog.String("op", op), slog.String("stockCode", stockCode))
	return model.SellTransaction{}, model.ProfitLossSummary{}, service.ErrSaleConflict
}

// GetHoldings lists the portfolio's lots enriched with the latest quotes.
func (s *PortfolioService) GetHoldings(ctx context.Context, portfolioID int64) ([]model.Holding, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetHoldings"

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetHoldings finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	}()

	lots, err := s.repo.GetLotsByPortfolio(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.GetLotsByPortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	quotes, err := s.getQuotesForLots(ctx, lots)
	if err != nil {
		return nil, err
	}

	holdings := make([]model.Holding, 0, len(lots))
	for _, lot := range lots {
		holding := model.Holding{Lot: lot}

		if quote, ok := quotes[lot.StockCode]; ok {
			remaining := decimal.NewFromInt(lot.RemainingQuantity)
			holding.Shortname = quote.Shortname
			holding.Price = quote.Price
			holding.MarketValue = quote.Price.Mul(remaining)
			holding.UnrealizedPL = quote.Price.Sub(lot.PurchaseUnitPrice).Mul(remaining)
		}

		holdings = append(holdings, holding)
	}

	return holdings, nil
}

func (s *PortfolioService) GetPortfolioSummary(ctx context.Context, portfolioID int64) (model.PortfolioSummary, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetPortfolioSummary"

	slog.Debug("GetPortfolioSummary start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetPortfolioSummary finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	}()

	name, err := s.repo.GetPortfolioName(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.GetPortfolioName", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PortfolioSummary{}, err
	}

	holdings, err := s.GetHoldings(ctx, portfolioID)
	if err != nil {
		return model.PortfolioSummary{}, err
	}

	summary := model.PortfolioSummary{PortfolioName: name}
	for _, holding := range holdings {
		remaining := decimal.NewFromInt(holding.RemainingQuantity)
		summary.MarketValue = summary.MarketValue.Add(holding.MarketValue)
		summary.CostBasis = summary.CostBasis.Add(holding.PurchaseUnitPrice.Mul(remaining))
		summary.UnrealizedPL = summary.UnrealizedPL.Add(holding.UnrealizedPL)
	}
	summary.LotsCount = len(holdings)

	return summary, nil
}

func (s *PortfolioService) GetTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetTransactions"

	slog.Debug("GetTransactions start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	defer func() {
		slog.Debug("GetTransactions finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))
	}()

	transactions, err := s.repo.GetTransactions(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	return transactions, nil
}

func (s *PortfolioService) DeleteTransaction(ctx context.Context, transactionID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.DeleteTransaction"

	slog.Debug("DeleteTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", transactionID))
	defer func() {
		slog.Debug("DeleteTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("transactionID", transactionID))
	}()

	err := s.repo.DeleteTransaction(ctx, transactionID)
	if err != nil {
		slog.Error("got error from repo.DeleteTransaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GenerateReport builds the workbook over every portfolio of the chat and
// uploads it to cloud storage, returning the download link.
func (s *PortfolioService) GenerateReport(ctx context.Context, chatID int64) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GenerateReport"

	slog.Debug("GenerateReport start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("GenerateReport finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	portfolios, err := s.repo.GetPortfolios(ctx, chatID)
	if err != nil {
		slog.Error("got error from repo.GetPortfolios", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	if len(portfolios) == 0 {
		return "", service.ErrNotFound
	}

	fullInfos := make([]model.PortfolioFullInfo, 0, len(portfolios))
	for _, portfolio := range portfolios {
		summary, err := s.GetPortfolioSummary(ctx, portfolio.PortfolioID)
		if err != nil {
			return "", err
		}

		holdings, err := s.GetHoldings(ctx, portfolio.PortfolioID)
		if err != nil {
			return "", err
		}

		transactions, err := s.GetTransactions(ctx, portfolio.PortfolioID)
		if err != nil {
			return "", err
		}

		fullInfos = append(fullInfos, model.PortfolioFullInfo{
			PortfolioSummary: summary,
			Holdings:         holdings,
			Transactions:     transactions,
		})
	}

	fileBytes, fileExtension, err := s.reportGenerator.Generate(ctx, fullInfos)
	if err != nil {
		slog.Error("got error from reportGenerator.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	filename := fmt.Sprintf("portfolio_report_%d_%s%s", chatID, time.Now().Format("20060102_150405"), fileExtension)
	downloadLink, err = s.cloudStorage.UploadFile(ctx, bytes.NewReader(fileBytes), filename)
	if err != nil {
		slog.Error("got error from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	return downloadLink, nil
}

// RefreshQuotes warms the quote cache for every code with live holdings.
// Scheduled job.
func (s *PortfolioService) RefreshQuotes(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.RefreshQuotes"

	slog.Debug("RefreshQuotes start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("RefreshQuotes finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	stockCodes, err := s.repo.GetDistinctStockCodes(ctx)
	if err != nil {
		slog.Error("got error from repo.GetDistinctStockCodes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if len(stockCodes) == 0 {
		return nil
	}

	quotesMap, err := s.asxApi.GetQuotes(ctx, stockCodes)
	if err != nil {
		slog.Error("got error from asxApi.GetQuotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	quotes := make([]asxModel.Quote, 0, len(quotesMap))
	for _, quote := range quotesMap {
		quotes = append(quotes, quote)
	}

	return s.cache.SetQuotes(ctx, quotes)
}

// CleanupReports drops expired report files from cloud storage. Scheduled job.
func (s *PortfolioService) CleanupReports(ctx context.Context) error {
	return s.cloudStorage.DeleteOldFiles(ctx)
}

func (s *PortfolioService) getQuotesForLots(ctx context.Context, lots []model.Lot) (map[string]asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.getQuotesForLots"

	seen := make(map[string]struct{}, len(lots))
	stockCodes := make([]string, 0, len(lots))
	for _, lot := range lots {
		if _, ok := seen[lot.StockCode]; ok {
			continue
		}
		seen[lot.StockCode] = struct{}{}
		stockCodes = append(stockCodes, lot.StockCode)
	}

	if len(stockCodes) == 0 {
		return map[string]asxModel.Quote{}, nil
	}

	quotes, err := s.cache.GetQuotes(ctx, stockCodes)
	if err != nil {
		slog.Warn("can't get quotes from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

		quotes, err = s.asxApi.GetQuotes(ctx, stockCodes)
		if err != nil {
			slog.Error("can't get quotes from asxApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, err
		}

		go s.cacheQuotes(context.WithoutCancel(ctx), quotes)
	}

	return quotes, nil
}

func (s *PortfolioService) cacheQuotes(ctx context.Context, quotesMap map[string]asxModel.Quote) {
	quotes := make([]asxModel.Quote, 0, len(quotesMap))
	for _, quote := range quotesMap {
		quotes = append(quotes, quote)
	}
	_ = s.cache.SetQuotes(ctx, quotes)
}
