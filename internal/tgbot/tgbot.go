package tgbot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/amplexus/ozstock_bot/config"
	"github.com/amplexus/ozstock_bot/data/session"
	"github.com/amplexus/ozstock_bot/internal/model"
	"github.com/amplexus/ozstock_bot/internal/transport/telegram"
	customMW "github.com/amplexus/ozstock_bot/internal/transport/telegram/middleware"
	"github.com/amplexus/ozstock_bot/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, chatSession model.Session) error
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	// free text is routed by the chat's pending action
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)
		chatSession, err := b.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return c.Send("start with one of the commands, e.g. /portfolios")
			}
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send("something went wrong, try again later")
		}

		c.Set("session", chatSession)

		switch chatSession.Action {
		case model.ExpectingPortfolioName:
			return b.ctrl.ProcessPortfolioCreation(c)
		case model.ExpectingBuyOrder:
			return b.ctrl.ProcessBuy(c)
		case model.ExpectingSellOrder:
			return b.ctrl.ProcessSell(c)
		default:
			return c.Send("start with one of the commands, e.g. /portfolios")
		}
	})

	b.bot.Handle(tele.OnCallback, b.ctrl.ProcessCallback)

	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/create_portfolio", b.ctrl.InitPortfolioCreation)
	b.bot.Handle("/portfolios", b.ctrl.Portfolios)
	b.bot.Handle("/buy", b.ctrl.InitBuy)
	b.bot.Handle("/sell", b.ctrl.InitSell)
	b.bot.Handle("/holdings", b.ctrl.Holdings)
	b.bot.Handle("/transactions", b.ctrl.Transactions)
	b.bot.Handle("/report", b.ctrl.Report)
}
