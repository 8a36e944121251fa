package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/pkg/models"
)

// KlinesPerRequest — лимит свечей на один запрос к API фьючерсов
const KlinesPerRequest = 1500

// BinanceClient клиент для взаимодействия с Binance
type BinanceClient struct {
	futures *futures.Client
}

// NewBinanceClient создает новый клиент Binance
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	// Переключатель тестовой сети в go-binance — переменная пакета,
	// она действует на все клиенты и потоки futures
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	futuresClient := futures.NewClient(cfg.APIKey, cfg.APISecret)

	return &BinanceClient{
		futures: futuresClient,
	}, nil
}

// GetKlines получает последние свечи
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	klines, err := c.futures.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	candles := make([]*models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(symbol, interval, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// GetKlinesRange получает все свечи за период, постранично.
// Воспроизведению нужна полная история, а лимит API — 1500 свечей
// на запрос.
func (c *BinanceClient) GetKlinesRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]*models.Candle, error) {
	step := models.IntervalDuration(interval)
	var candles []*models.Candle

	cursor := from
	for cursor.Before(to) {
		klines, err := c.futures.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(cursor.UnixMilli()).
			EndTime(to.UnixMilli()).
			Limit(KlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("ошибка получения свечей: %w", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			candle, err := parseKline(symbol, interval, k)
			if err != nil {
				return nil, err
			}
			candles = append(candles, candle)
		}

		last := time.UnixMilli(klines[len(klines)-1].OpenTime)
		next := last.Add(step)
		if !next.After(cursor) {
			// Источник перестал продвигаться, дальше только зацикливание
			break
		}
		cursor = next
	}

	return candles, nil
}

// parseKline конвертирует свечу API в модель
func parseKline(symbol, interval string, k *futures.Kline) (*models.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора цены открытия: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора максимума: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора минимума: %w", err)
	}
	close, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора цены закрытия: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора объема: %w", err)
	}

	return &models.Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  time.UnixMilli(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		CloseTime: time.UnixMilli(k.CloseTime),
	}, nil
}
