package asxApi

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/amplexus/ozstock_bot/config"
	"github.com/amplexus/ozstock_bot/internal/externalApi"
	"github.com/amplexus/ozstock_bot/internal/model/asxModel"
	"github.com/amplexus/ozstock_bot/utils"
	"github.com/go-resty/resty/v2"
)

const quotesURL = "/v1/quotes.json"

type AsxApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *AsxApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.AsxApi.Url)
	return &AsxApi{client: client}
}

func (a *AsxApi) GetQuote(ctx context.Context, stockCode string) (asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("AsxApi.GetQuote start", slog.String("rqID", rqID), slog.String("stockCode", stockCode))

	quotes, err := a.getQuotes(ctx, []string{stockCode})
	if err != nil {
		return asxModel.Quote{}, err
	}

	quote, ok := quotes[stockCode]
	if !ok {
		slog.Warn("stock code not found in AsxApi", slog.String("rqID", rqID), slog.String("stockCode", stockCode))
		return asxModel.Quote{}, externalApi.ErrNotFound
	}

	slog.Debug("AsxApi.GetQuote completed", slog.String("rqID", rqID))

	return quote, nil
}

func (a *AsxApi) GetQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("AsxApi.GetQuotes start", slog.String("rqID", rqID), slog.Int("codes", len(stockCodes)))

	quotes, err := a.getQuotes(ctx, stockCodes)
	if err != nil {
		return nil, err
	}

	slog.Debug("AsxApi.GetQuotes completed", slog.String("rqID", rqID))

	return quotes, nil
}

func (a *AsxApi) getQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	params := map[string]string{
		"symbols": strings.Join(stockCodes, ","),
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(quotesURL)

	if err != nil {
		slog.Error("error while dialing AsxApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	rawQuotes := asxModel.RawQuotes{}
	err = json.Unmarshal(resp.Body(), &rawQuotes)
	if err != nil {
		slog.Error("can't unmarshall response into asxModel.RawQuotes", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	quotes := make(map[string]asxModel.Quote, len(rawQuotes.Quotes))
	for _, raw := range rawQuotes.Quotes {
		quotes[raw.Symbol] = asxModel.Quote{
			StockCode: raw.Symbol,
			Shortname: raw.Shortname,
			Price:     raw.LastPrice,
			Active:    raw.Status == "active",
		}
	}

	return quotes, nil
}
