package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей
	SaveCandle(ctx context.Context, candle *models.Candle) error
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	GetCandleRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]*models.Candle, error)

	// Методы для результатов бэктеста
	SaveBacktestResult(ctx context.Context, result *models.BacktestResult) error
	GetTradeSignals(ctx context.Context, symbol string, from, to time.Time) ([]*models.TradeSignal, error)
	GetEquity(ctx context.Context, symbol string, from, to time.Time) ([]*models.EquityPoint, error)

	// Методы для отчетов о качестве
	SaveQualityReport(ctx context.Context, report *models.QualityReport) error

	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandle сохраняет одну свечу
func (s *InfluxDBStorage) SaveCandle(ctx context.Context, candle *models.Candle) error {
	s.writeAPI.WritePoint(candlePoint(candle))
	s.writeAPI.Flush()
	return nil
}

// SaveCandles сохраняет множество свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		s.writeAPI.WritePoint(candlePoint(candle))
	}
	s.writeAPI.Flush()
	return nil
}

func candlePoint(candle *models.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{
			"symbol":   candle.Symbol,
			"interval": candle.Interval,
		},
		map[string]interface{}{
			"open":   candle.Open,
			"high":   candle.High,
			"low":    candle.Low,
			"close":  candle.Close,
			"volume": candle.Volume,
		},
		candle.OpenTime,
	)
}

// GetCandleRange получает свечи за период в порядке возрастания времени.
// Воспроизведению нужен упорядоченный ряд, а не последние N свечей.
func (s *InfluxDBStorage) GetCandleRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]*models.Candle, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %d, stop: %d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
	`, s.bucket, from.Unix(), to.Unix(), symbol, interval)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []*models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		close, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: timestamp.Add(models.IntervalDuration(interval)),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return candles, nil
}

// SaveBacktestResult сохраняет сделки и кривую капитала бэктеста.
// Свечи сохраняются отдельно через SaveCandles: они общие для
// нескольких прогонов бэктеста по одному символу.
func (s *InfluxDBStorage) SaveBacktestResult(ctx context.Context, result *models.BacktestResult) error {
	for _, signal := range result.Signals {
		point := influxdb2.NewPoint(
			"backtest_trades",
			map[string]string{
				"symbol": result.Symbol,
				"side":   signal.Side,
			},
			map[string]interface{}{
				// Цены храним строками: float теряет точность decimal
				"exit_time":   signal.ExitTime.UnixMilli(),
				"entry_price": signal.EntryPrice.String(),
				"exit_price":  signal.ExitPrice.String(),
				"size":        signal.Size.String(),
				"pnl":         signal.PnL.String(),
				"reason":      signal.Reason,
			},
			signal.EntryTime,
		)
		s.writeAPI.WritePoint(point)
	}

	for _, point := range result.Equity {
		eq := influxdb2.NewPoint(
			"backtest_equity",
			map[string]string{
				"symbol": result.Symbol,
			},
			map[string]interface{}{
				"balance":  point.Balance.String(),
				"drawdown": point.Drawdown.String(),
			},
			point.Timestamp,
		)
		s.writeAPI.WritePoint(eq)
	}

	s.writeAPI.Flush()
	return nil
}

// GetTradeSignals получает сделки бэктеста за период
func (s *InfluxDBStorage) GetTradeSignals(ctx context.Context, symbol string, from, to time.Time) ([]*models.TradeSignal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %d, stop: %d)
			|> filter(fn: (r) => r._measurement == "backtest_trades")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
	`, s.bucket, from.Unix(), to.Unix(), symbol)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса сделок: %w", err)
	}

	var signals []*models.TradeSignal
	for result.Next() {
		record := result.Record()

		side, _ := record.ValueByKey("side").(string)
		exitMs, _ := record.ValueByKey("exit_time").(int64)
		reason, _ := record.ValueByKey("reason").(string)

		entryPrice := parseDecimalField(record.ValueByKey("entry_price"))
		exitPrice := parseDecimalField(record.ValueByKey("exit_price"))
		size := parseDecimalField(record.ValueByKey("size"))
		pnl := parseDecimalField(record.ValueByKey("pnl"))

		signals = append(signals, &models.TradeSignal{
			Symbol:     symbol,
			Side:       side,
			EntryTime:  record.Time(),
			ExitTime:   time.UnixMilli(exitMs),
			EntryPrice: entryPrice,
			ExitPrice:  exitPrice,
			Size:       size,
			PnL:        pnl,
			Reason:     reason,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}

// GetEquity получает кривую капитала за период
func (s *InfluxDBStorage) GetEquity(ctx context.Context, symbol string, from, to time.Time) ([]*models.EquityPoint, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: %d, stop: %d)
			|> filter(fn: (r) => r._measurement == "backtest_equity")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"])
	`, s.bucket, from.Unix(), to.Unix(), symbol)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса кривой капитала: %w", err)
	}

	var points []*models.EquityPoint
	for result.Next() {
		record := result.Record()
		points = append(points, &models.EquityPoint{
			Timestamp: record.Time(),
			Balance:   parseDecimalField(record.ValueByKey("balance")),
			Drawdown:  parseDecimalField(record.ValueByKey("drawdown")),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return points, nil
}

// SaveQualityReport сохраняет сводку отчета о качестве данных
func (s *InfluxDBStorage) SaveQualityReport(ctx context.Context, report *models.QualityReport) error {
	point := influxdb2.NewPoint(
		"quality_reports",
		map[string]string{
			"symbol":   report.Symbol,
			"interval": report.Interval,
		},
		map[string]interface{}{
			"bars_checked": report.BarsChecked,
			"gaps":         report.Counts[models.QualityGap],
			"duplicates":   report.Counts[models.QualityDuplicate],
			"zero_volume":  report.Counts[models.QualityZeroVol],
			"bad_ohlc":     report.Counts[models.QualityBadOHLC],
		},
		report.GeneratedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// parseDecimalField разбирает строковое поле InfluxDB в decimal,
// нечисловые значения превращаются в ноль
func parseDecimalField(value interface{}) decimal.Decimal {
	str, ok := value.(string)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return decimal.Zero
	}
	return d
}
