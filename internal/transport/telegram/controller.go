package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/amplexus/ozstock_bot/data/repository"
	"github.com/amplexus/ozstock_bot/data/session"
	"github.com/amplexus/ozstock_bot/internal/converter/telebotConverter"
	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/model/tgCallback"
	"github.com/amplexus/ozstock_bot/internal/service"
	"github.com/amplexus/ozstock_bot/internal/taxlot"
	"github.com/amplexus/ozstock_bot/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg   = "something went wrong, try again later"
	buyOrderFormat   = "Enter the buy order: CODE QUANTITY PRICE\nExample: BHP 100 38.50"
	sellOrderFormat  = "Enter the sell order: CODE QUANTITY PRICE [min|max]\nExample: BHP 50 45.00 min\n\nmin matches lots that minimize the realized gain (default), max matches the oldest and cheapest lots first."
	selectFirstMsg   = "select a portfolio first with /portfolios"
	unknownStockMsg  = "stock code not found"
	stockInactiveMsg = "this stock is not trading"
)

type PortfolioService interface {
	RegUser(ctx context.Context, chatID int64) error
	CreatePortfolio(ctx context.Context, portfolioName string, chatID int64) (portfolioID int64, err error)
	GetPortfolios(ctx context.Context, chatID int64) ([]model.Portfolio, error)
	GetPortfolioSummary(ctx context.Context, portfolioID int64) (model.PortfolioSummary, error)
	DeletePortfolio(ctx context.Context, portfolioID int64) error
	BuyStock(ctx context.Context, portfolioID int64, stockCode string, quantity int64, unitPrice decimal.Decimal, purchaseDate time.Time) (model.BuyTransaction, error)
	SellStock(ctx context.Context, portfolioID int64, stockCode string, quantity int64, unitPrice decimal.Decimal, sellDate time.Time, strategy taxlot.Strategy) (model.SellTransaction, model.ProfitLossSummary, error)
	GetHoldings(ctx context.Context, portfolioID int64) ([]model.Holding, error)
	GetTransactions(ctx context.Context, portfolioID int64) ([]model.Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID int64) error
	GenerateReport(ctx context.Context, chatID int64) (downloadLink string, err error)
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, chatSession model.Session) error
}

type Controller struct {
	portfolioService PortfolioService
	session          Session
}

func NewController(portfolioService PortfolioService, session Session) *Controller {
	return &Controller{
		portfolioService: portfolioService,
		session:          session,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = ctrl.portfolioService.RegUser(ctx, c.Chat().ID)
	return c.Send("Hello! I track your share purchases lot by lot and estimate capital gains when you sell.\n\nStart with /create_portfolio, then /buy and /sell.")
}

func (ctrl *Controller) InitPortfolioCreation(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.ExpectingPortfolioName
	if err := ctrl.setSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Enter the portfolio name:")
}

func (ctrl *Controller) ProcessPortfolioCreation(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	var portfolioID int64

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	defer func() {
		chatSession.Action = model.DefaultAction
		if portfolioID != 0 {
			chatSession.PortfolioID = portfolioID
		}
		_ = ctrl.setSession(ctx, c, chatSession)
	}()

	portfolioName := strings.TrimSpace(c.Message().Text)
	if portfolioName == "" {
		return c.Send("the portfolio name can't be empty")
	}

	portfolioID, err = ctrl.portfolioService.CreatePortfolio(ctx, portfolioName, c.Chat().ID)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return c.Send("you already have a portfolio with that name")
		}
		slog.Error("got error from portfolioService.CreatePortfolio", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(fmt.Sprintf("Portfolio %q created and selected. Use /buy to add your first purchase.", portfolioName))
}

func (ctrl *Controller) Portfolios(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	portfolios, err := ctrl.portfolioService.GetPortfolios(ctx, c.Chat().ID)
	if err != nil {
		slog.Error("got error from portfolioService.GetPortfolios", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	if len(portfolios) == 0 {
		return c.Send("you have no portfolios yet, create one with /create_portfolio")
	}

	return c.Send(telebotConverter.PortfoliosResponse(portfolios))
}

func (ctrl *Controller) ProcessCallback(c tele.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")

	switch {
	case strings.HasPrefix(data, tgCallback.SelectPortfolioPrefix):
		return ctrl.selectPortfolio(c, strings.TrimPrefix(data, tgCallback.SelectPortfolioPrefix))
	case strings.HasPrefix(data, tgCallback.DeletePortfolioPrefix):
		return ctrl.deletePortfolio(c, strings.TrimPrefix(data, tgCallback.DeletePortfolioPrefix))
	case strings.HasPrefix(data, tgCallback.DeleteTransactionPrefix):
		return ctrl.deleteTransaction(c, strings.TrimPrefix(data, tgCallback.DeleteTransactionPrefix))
	default:
		return c.Respond(&tele.CallbackResponse{Text: "unknown action"})
	}
}

func (ctrl *Controller) selectPortfolio(c tele.Context, payload string) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	portfolioID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "unknown action"})
	}

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.DefaultAction
	chatSession.PortfolioID = portfolioID
	if err := ctrl.setSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	summary, err := ctrl.portfolioService.GetPortfolioSummary(ctx, portfolioID)
	if err != nil {
		slog.Error("got error from portfolioService.GetPortfolioSummary", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Edit(telebotConverter.PortfolioSummaryResponse(summary))
}

func (ctrl *Controller) deletePortfolio(c tele.Context, payload string) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	portfolioID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "unknown action"})
	}

	if err := ctrl.portfolioService.DeletePortfolio(ctx, portfolioID); err != nil {
		slog.Error("got error from portfolioService.DeletePortfolio", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err == nil && chatSession.PortfolioID == portfolioID {
		chatSession.PortfolioID = 0
		_ = ctrl.setSession(ctx, c, chatSession)
	}

	return c.Edit("portfolio deleted")
}

func (ctrl *Controller) InitBuy(c tele.Context) error {
	return ctrl.initOrder(c, model.ExpectingBuyOrder, buyOrderFormat)
}

func (ctrl *Controller) InitSell(c tele.Context) error {
	return ctrl.initOrder(c, model.ExpectingSellOrder, sellOrderFormat)
}

func (ctrl *Controller) initOrder(c tele.Context, action model.Action, prompt string) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	if chatSession.PortfolioID == 0 {
		return c.Send(selectFirstMsg)
	}

	chatSession.Action = action
	if err := ctrl.setSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(prompt)
}

func (ctrl *Controller) ProcessBuy(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	defer func() {
		chatSession.Action = model.DefaultAction
		_ = ctrl.setSession(ctx, c, chatSession)
	}()

	stockCode, quantity, unitPrice, _, err := parseOrder(c.Message().Text, false)
	if err != nil {
		return c.Send(buyOrderFormat)
	}

	txn, err := ctrl.portfolioService.BuyStock(ctx, chatSession.PortfolioID, stockCode, quantity, unitPrice, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return c.Send(unknownStockMsg)
		case errors.Is(err, service.ErrStockNotActive):
			return c.Send(stockInactiveMsg)
		case errors.Is(err, taxlot.ErrInvalidRequest):
			return c.Send(buyOrderFormat)
		}
		slog.Error("got error from portfolioService.BuyStock", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.BuyResultResponse(txn))
}

func (ctrl *Controller) ProcessSell(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	defer func() {
		chatSession.Action = model.DefaultAction
		_ = ctrl.setSession(ctx, c, chatSession)
	}()

	stockCode, quantity, unitPrice, strategy, err := parseOrder(c.Message().Text, true)
	if err != nil {
		return c.Send(sellOrderFormat)
	}

	txn, summary, err := ctrl.portfolioService.SellStock(ctx, chatSession.PortfolioID, stockCode, quantity, unitPrice, time.Now(), strategy)
	if err != nil {
		var exceedsErr *taxlot.ExceedsAvailableError
		switch {
		case errors.As(err, &exceedsErr):
			return c.Send(fmt.Sprintf("you only hold %d units of %s", exceedsErr.Available, stockCode))
		case errors.Is(err, taxlot.ErrInvalidRequest):
			return c.Send(sellOrderFormat)
		case errors.Is(err, service.ErrSaleConflict):
			return c.Send("your holdings changed while processing the sale, please try again")
		}
		slog.Error("got error from portfolioService.SellStock", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.SaleResultResponse(txn, summary))
}

func (ctrl *Controller) Holdings(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	if chatSession.PortfolioID == 0 {
		return c.Send(selectFirstMsg)
	}

	holdings, err := ctrl.portfolioService.GetHoldings(ctx, chatSession.PortfolioID)
	if err != nil {
		slog.Error("got error from portfolioService.GetHoldings", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.HoldingsResponse(holdings))
}

func (ctrl *Controller) Transactions(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	if chatSession.PortfolioID == 0 {
		return c.Send(selectFirstMsg)
	}

	transactions, err := ctrl.portfolioService.GetTransactions(ctx, chatSession.PortfolioID)
	if err != nil {
		slog.Error("got error from portfolioService.GetTransactions", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.TransactionsResponse(transactions))
}

func (ctrl *Controller) deleteTransaction(c tele.Context, payload string) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	transactionID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "unknown action"})
	}

	if err := ctrl.portfolioService.DeleteTransaction(ctx, transactionID); err != nil {
		slog.Error("got error from portfolioService.DeleteTransaction", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Edit("transaction deleted")
}

func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := c.Send("building the report, this can take a moment..."); err != nil {
		return err
	}

	downloadLink, err := ctrl.portfolioService.GenerateReport(ctx, c.Chat().ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Send("you have no portfolios yet, create one with /create_portfolio")
		}
		slog.Error("got error from portfolioService.GenerateReport", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send("📄 Your report: " + downloadLink)
}

func (ctrl *Controller) getSessionFromTeleCtxOrStorage(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		}
		return model.Session{}, err
	}
	return chatSession, nil
}

func (ctrl *Controller) setSession(ctx context.Context, c tele.Context, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	err := ctrl.session.SetSession(ctx, strconv.FormatInt(c.Chat().ID, 10), chatSession)
	if err != nil {
		slog.Error("got error from session.SetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}
	return err
}

// parseOrder parses "CODE QTY PRICE" plus an optional trailing min|max
// token on sell orders.
func parseOrder(text string, allowStrategy bool) (stockCode string, quantity int64, unitPrice decimal.Decimal, strategy taxlot.Strategy, err error) {
	fields := strings.Fields(strings.TrimSpace(text))

	maxFields := 3
	if allowStrategy {
		maxFields = 4
	}

	if len(fields) < 3 || len(fields) > maxFields {
		return "", 0, decimal.Decimal{}, 0, errors.New("bad order format")
	}

	stockCode = strings.ToUpper(fields[0])

	quantity, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil || quantity <= 0 {
		return "", 0, decimal.Decimal{}, 0, errors.New("bad quantity")
	}

	unitPrice, err = decimal.NewFromString(fields[2])
	if err != nil || unitPrice.LessThanOrEqual(decimal.Zero) {
		return "", 0, decimal.Decimal{}, 0, errors.New("bad price")
	}

	strategy = taxlot.MinimizeGains
	if len(fields) == 4 {
		switch strings.ToLower(fields[3]) {
		case "min":
			strategy = taxlot.MinimizeGains
		case "max":
			strategy = taxlot.MaximizeGains
		default:
			return "", 0, decimal.Decimal{}, 0, errors.New("bad strategy")
		}
	}

	return stockCode, quantity, unitPrice, strategy, nil
}
