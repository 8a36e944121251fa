package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/skalibog/bbrt/pkg/logger"
	"github.com/skalibog/bbrt/pkg/models"
	"go.uber.org/zap"
)

// CandleSink принимает закрытые свечи из потока
type CandleSink interface {
	SaveCandle(ctx context.Context, candle *models.Candle) error
}

// DataCollector интерфейс фонового сборщика данных
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// KlineCollector подписывается на поток свечей и складывает закрытые
// свечи в хранилище. Фоновый демон: в отличие от пользовательских
// запросов, при обрыве потока переподключается с нарастающей задержкой.
type KlineCollector struct {
	sink     CandleSink
	symbols  []string
	interval string
	cancel   context.CancelFunc
}

// NewKlineCollector создает сборщик свечей для списка символов
func NewKlineCollector(sink CandleSink, symbols []string, interval string) *KlineCollector {
	return &KlineCollector{
		sink:     sink,
		symbols:  symbols,
		interval: interval,
	}
}

// Start запускает по горутине на символ и блокируется до отмены контекста
func (c *KlineCollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	for _, symbol := range c.symbols {
		go c.streamSymbol(ctx, symbol)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Stop останавливает все потоки сборщика
func (c *KlineCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// streamSymbol держит подписку на поток свечей одного символа
func (c *KlineCollector) streamSymbol(ctx context.Context, symbol string) {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Jitter: true,
	}

	for {
		doneC, stopC, err := futures.WsKlineServe(symbol, c.interval,
			func(event *futures.WsKlineEvent) {
				c.handleEvent(ctx, event)
			},
			func(err error) {
				logger.Warn("Ошибка потока свечей", zap.String("symbol", symbol), zap.Error(err))
			},
		)
		if err != nil {
			wait := retry.Duration()
			logger.Warn("Не удалось подключиться к потоку свечей",
				zap.String("symbol", symbol),
				zap.Duration("повтор_через", wait),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		retry.Reset()
		logger.Info("Поток свечей подключен", zap.String("symbol", symbol), zap.String("interval", c.interval))

		select {
		case <-ctx.Done():
			close(stopC)
			return
		case <-doneC:
			// Поток оборвался, идем на переподключение
			logger.Warn("Поток свечей завершился", zap.String("symbol", symbol))
		}
	}
}

// handleEvent сохраняет только закрытые свечи
func (c *KlineCollector) handleEvent(ctx context.Context, event *futures.WsKlineEvent) {
	k := event.Kline
	if !k.IsFinal {
		return
	}

	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	close, err4 := strconv.ParseFloat(k.Close, 64)
	volume, err5 := strconv.ParseFloat(k.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			logger.Warn("Свеча из потока не разобрана", zap.String("symbol", event.Symbol), zap.Error(err))
			return
		}
	}

	candle := &models.Candle{
		Symbol:    event.Symbol,
		Interval:  k.Interval,
		OpenTime:  time.UnixMilli(k.StartTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		CloseTime: time.UnixMilli(k.EndTime),
	}

	if err := c.sink.SaveCandle(ctx, candle); err != nil {
		logger.Warn("Свеча из потока не сохранена", zap.String("symbol", event.Symbol), zap.Error(err))
	}
}
