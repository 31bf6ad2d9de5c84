package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/amplexus/ozstock_bot/config"
	"github.com/amplexus/ozstock_bot/internal/model/asxModel"
	"github.com/amplexus/ozstock_bot/utils"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func (r *RedisCache) SetQuotes(ctx context.Context, quotes []asxModel.Quote) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("SetQuotes start", slog.String("rqID", rqID))

	pipe := r.redis.Pipeline()
	for _, quote := range quotes {
		quoteJson, err := json.Marshal(quote)
		if err != nil {
			slog.Error(
				"can't marshall quote in SetQuotes",
				slog.String("rqID", rqID),
				slog.String("err", err.Error()),
				slog.Any("quote", quote),
			)
			return errors.New("can't marshall quote")
		}

		pipe.Set(ctx, quoteKey(quote.StockCode), quoteJson, r.cfg.Cache.QuotesExpiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetQuotes completed", slog.String("rqID", rqID))

	return nil
}

func (r *RedisCache) GetQuote(ctx context.Context, stockCode string) (asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetQuote start", slog.String("rqID", rqID))

	res, err := r.redis.Get(ctx, quoteKey(stockCode)).Result()
	if err != nil {
		slog.Warn("failed on redis.Get", slog.String("rqID", rqID), slog.String("err", err.Error()), slog.String("key", quoteKey(stockCode)))
		return asxModel.Quote{}, err
	}

	quote := asxModel.Quote{}
	err = json.Unmarshal([]byte(res), &quote)
	if err != nil {
		slog.Error(
			"can't unmarshall quote in GetQuote",
			slog.String("rqID", rqID),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return asxModel.Quote{}, errors.New("can't unmarshall quote")
	}

	slog.Debug("GetQuote finished", slog.String("rqID", rqID))

	return quote, nil
}

// GetQuotes returns an error if any requested code is missing so the
// caller falls through to the live feed for a complete set.
func (r *RedisCache) GetQuotes(ctx context.Context, stockCodes []string) (map[string]asxModel.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("GetQuotes start", slog.String("rqID", rqID))

	keys := make([]string, 0, len(stockCodes))
	for _, code := range stockCodes {
		keys = append(keys, quoteKey(code))
	}

	if len(keys) == 0 {
		return map[string]asxModel.Quote{}, nil
	}

	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		slog.Warn("failed on redis.MGet", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil, err
	}

	quotes := make(map[string]asxModel.Quote, len(stockCodes))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			return nil, errors.New("quote missing in cache: " + stockCodes[i])
		}

		quote := asxModel.Quote{}
		if err = json.Unmarshal([]byte(raw), &quote); err != nil {
			slog.Error("can't unmarshall quote in GetQuotes", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return nil, errors.New("can't unmarshall quote")
		}
		quotes[quote.StockCode] = quote
	}

	slog.Debug("GetQuotes finished", slog.String("rqID", rqID))

	return quotes, nil
}

func quoteKey(stockCode string) string {
	return "quote:" + stockCode
}
