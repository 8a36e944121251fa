package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/internal/exchange"
	"github.com/skalibog/bbrt/internal/quality"
	"github.com/skalibog/bbrt/internal/storage"
	"github.com/skalibog/bbrt/pkg/logger"
	"github.com/skalibog/bbrt/pkg/models"
	"go.uber.org/zap"
)

// LoadedData — все, что нужно виду воспроизведения для одного символа
type LoadedData struct {
	Result *models.BacktestResult
	Report *models.QualityReport
}

// KlineFetcher получает свечи с биржи
type KlineFetcher interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetKlinesRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]*models.Candle, error)
}

// Source собирает данные воспроизведения для символа: свечи из кеша
// или с биржи, сделки и кривую капитала из хранилища либо из файла
// результата внешнего движка.
type Source struct {
	store       storage.Storage
	client      KlineFetcher
	interval    string
	historyBars int
	checker     *quality.Checker
	fileResult  *models.BacktestResult
}

// NewSource создает источник данных воспроизведения
func NewSource(store storage.Storage, client KlineFetcher, cfg config.ReplayConfig, fileResult *models.BacktestResult) *Source {
	return &Source{
		store:       store,
		client:      client,
		interval:    cfg.Interval,
		historyBars: cfg.HistoryBars,
		checker:     quality.NewChecker(cfg.Interval),
		fileResult:  fileResult,
	}
}

// Load загружает данные для символа. Файл результата, если он был
// передан и совпадает по символу, имеет приоритет над хранилищем.
func (s *Source) Load(ctx context.Context, symbol string) (*LoadedData, error) {
	if s.fileResult != nil && s.fileResult.Symbol == symbol && len(s.fileResult.Candles) > 0 {
		return s.fromFile(ctx)
	}
	return s.fromStorage(ctx, symbol)
}

// fromFile отдает результат из файла, попутно кешируя его в хранилище
func (s *Source) fromFile(ctx context.Context) (*LoadedData, error) {
	result := s.fileResult
	report := s.checker.Check(result.Symbol, result.Candles)
	if s.store != nil {
		if err := s.store.SaveCandles(ctx, result.Candles); err != nil {
			logger.Warn("Свечи из файла не закешированы", zap.String("symbol", result.Symbol), zap.Error(err))
		}
	}
	s.persist(ctx, result, report)
	return &LoadedData{Result: result, Report: report}, nil
}

// fromStorage собирает результат из кеша свечей и записей бэктеста.
// Если свечей в кеше мало, недостающая история добирается с биржи.
func (s *Source) fromStorage(ctx context.Context, symbol string) (*LoadedData, error) {
	step := models.IntervalDuration(s.interval)
	to := time.Now().Truncate(step)
	from := to.Add(-time.Duration(s.historyBars) * step)

	var candles []*models.Candle
	if s.store != nil {
		cached, err := s.store.GetCandleRange(ctx, symbol, s.interval, from, to)
		if err != nil {
			logger.Warn("Кеш свечей недоступен", zap.String("symbol", symbol), zap.Error(err))
		} else {
			candles = cached
		}
	}

	// Кеш считаем пригодным, если в нем есть хотя бы половина запрошенной истории
	if len(candles) < s.historyBars/2 {
		fetched, err := s.fetch(ctx, symbol, from, to)
		if err != nil {
			return nil, fmt.Errorf("ошибка загрузки истории %s: %w", symbol, err)
		}
		candles = fetched
		if s.store != nil && len(candles) > 0 {
			if err := s.store.SaveCandles(ctx, candles); err != nil {
				logger.Warn("Свечи не закешированы", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}

	candles = quality.Deduplicate(candles)

	result := &models.BacktestResult{
		Symbol:    symbol,
		Interval:  s.interval,
		CreatedAt: time.Now(),
		Candles:   candles,
	}

	if s.store != nil && len(candles) > 0 {
		first := candles[0].OpenTime
		last := candles[len(candles)-1].CloseTime

		signals, err := s.store.GetTradeSignals(ctx, symbol, first, last)
		if err != nil {
			logger.Warn("Сделки бэктеста недоступны", zap.String("symbol", symbol), zap.Error(err))
		} else {
			result.Signals = signals
		}

		equity, err := s.store.GetEquity(ctx, symbol, first, last)
		if err != nil {
			logger.Warn("Кривая капитала недоступна", zap.String("symbol", symbol), zap.Error(err))
		} else {
			result.Equity = equity
		}
	}
	result.Summary = ComputeSummary(result.Signals, result.Equity)

	report := s.checker.Check(symbol, candles)
	s.persist(ctx, result, report)

	return &LoadedData{Result: result, Report: report}, nil
}

// fetch забирает историю с биржи: короткая укладывается в один
// запрос последних свечей, длинная идет постранично по диапазону
func (s *Source) fetch(ctx context.Context, symbol string, from, to time.Time) ([]*models.Candle, error) {
	if s.historyBars <= exchange.KlinesPerRequest {
		return s.client.GetKlines(ctx, symbol, s.interval, s.historyBars)
	}
	return s.client.GetKlinesRange(ctx, symbol, s.interval, from, to)
}

// persist сохраняет результат и отчет в хранилище, ошибки не фатальны
func (s *Source) persist(ctx context.Context, result *models.BacktestResult, report *models.QualityReport) {
	if s.store == nil {
		return
	}
	if len(result.Signals) > 0 || len(result.Equity) > 0 {
		if err := s.store.SaveBacktestResult(ctx, result); err != nil {
			logger.Warn("Результат бэктеста не сохранен", zap.String("symbol", result.Symbol), zap.Error(err))
		}
	}
	if err := s.store.SaveQualityReport(ctx, report); err != nil {
		logger.Warn("Отчет о качестве не сохранен", zap.String("symbol", result.Symbol), zap.Error(err))
	}
}
