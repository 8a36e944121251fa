package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bbrt/internal/quality"
	"github.com/skalibog/bbrt/pkg/logger"
	"github.com/skalibog/bbrt/pkg/models"
	"go.uber.org/zap"
)

// Формат файла результата внешнего движка бэктеста.
// Времена в миллисекундах unix, цены и PnL — десятичные строки.
type resultFile struct {
	Symbol       string      `json:"symbol"`
	Interval     string      `json:"interval"`
	CreatedAt    int64       `json:"created_at"`
	KlineData    []klineRow  `json:"kline_data"`
	TradeSignals []tradeRow  `json:"trade_signals"`
	EquityData   []equityRow `json:"equity_data"`
	Summary      *summaryRow `json:"summary,omitempty"`
}

type klineRow struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

type tradeRow struct {
	Side       string `json:"side"`
	EntryTime  int64  `json:"entry_time"`
	ExitTime   int64  `json:"exit_time"`
	EntryPrice string `json:"entry_price"`
	ExitPrice  string `json:"exit_price"`
	Size       string `json:"size"`
	PnL        string `json:"pnl"`
	Reason     string `json:"reason"`
}

type equityRow struct {
	Timestamp int64  `json:"timestamp"`
	Balance   string `json:"balance"`
	Drawdown  string `json:"drawdown"`
}

type summaryRow struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      string  `json:"total_pnl"`
	MaxDrawdown   string  `json:"max_drawdown"`
	FinalBalance  string  `json:"final_balance"`
}

// LoadFile читает результат бэктеста из JSON-файла внешнего движка.
// Свечи сортируются и очищаются от дубликатов, сводка при отсутствии
// рассчитывается по сделкам и кривой капитала.
func LoadFile(path string) (*models.BacktestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла результата: %w", err)
	}
	return Parse(data)
}

// Parse разбирает результат бэктеста из JSON
func Parse(data []byte) (*models.BacktestResult, error) {
	var file resultFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла результата: %w", err)
	}
	if file.Symbol == "" {
		return nil, fmt.Errorf("в файле результата не указан символ")
	}
	if file.Interval == "" {
		file.Interval = "1m"
	}

	result := &models.BacktestResult{
		Symbol:    file.Symbol,
		Interval:  file.Interval,
		CreatedAt: time.UnixMilli(file.CreatedAt),
	}

	step := models.IntervalDuration(file.Interval)
	candles := make([]*models.Candle, 0, len(file.KlineData))
	for _, row := range file.KlineData {
		open := time.UnixMilli(row.OpenTime)
		candles = append(candles, &models.Candle{
			Symbol:    file.Symbol,
			Interval:  file.Interval,
			OpenTime:  open,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
			CloseTime: open.Add(step),
		})
	}
	// Источник не гарантирует ни порядок, ни уникальность
	result.Candles = quality.Deduplicate(candles)
	if len(result.Candles) != len(candles) {
		logger.Warn("В kline_data были дубликаты",
			zap.String("symbol", file.Symbol),
			zap.Int("было", len(candles)),
			zap.Int("стало", len(result.Candles)))
	}

	for i, row := range file.TradeSignals {
		signal, err := parseTrade(file.Symbol, row)
		if err != nil {
			return nil, fmt.Errorf("trade_signals[%d]: %w", i, err)
		}
		result.Signals = append(result.Signals, signal)
	}

	for i, row := range file.EquityData {
		point, err := parseEquity(row)
		if err != nil {
			return nil, fmt.Errorf("equity_data[%d]: %w", i, err)
		}
		result.Equity = append(result.Equity, point)
	}

	if file.Summary != nil {
		summary, err := parseSummary(file.Summary)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		result.Summary = summary
	} else {
		result.Summary = ComputeSummary(result.Signals, result.Equity)
	}

	return result, nil
}

func parseTrade(symbol string, row tradeRow) (*models.TradeSignal, error) {
	side := row.Side
	if side != models.SideLong && side != models.SideShort {
		return nil, fmt.Errorf("неизвестная сторона сделки %q", row.Side)
	}
	entryPrice, err := decimal.NewFromString(row.EntryPrice)
	if err != nil {
		return nil, fmt.Errorf("цена входа: %w", err)
	}
	exitPrice, err := decimal.NewFromString(row.ExitPrice)
	if err != nil {
		return nil, fmt.Errorf("цена выхода: %w", err)
	}
	size, err := decimal.NewFromString(row.Size)
	if err != nil {
		return nil, fmt.Errorf("размер: %w", err)
	}
	pnl, err := decimal.NewFromString(row.PnL)
	if err != nil {
		return nil, fmt.Errorf("pnl: %w", err)
	}
	return &models.TradeSignal{
		Symbol:     symbol,
		Side:       side,
		EntryTime:  time.UnixMilli(row.EntryTime),
		ExitTime:   time.UnixMilli(row.ExitTime),
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Size:       size,
		PnL:        pnl,
		Reason:     row.Reason,
	}, nil
}

func parseEquity(row equityRow) (*models.EquityPoint, error) {
	balance, err := decimal.NewFromString(row.Balance)
	if err != nil {
		return nil, fmt.Errorf("баланс: %w", err)
	}
	drawdown := decimal.Zero
	if row.Drawdown != "" {
		if drawdown, err = decimal.NewFromString(row.Drawdown); err != nil {
			return nil, fmt.Errorf("просадка: %w", err)
		}
	}
	return &models.EquityPoint{
		Timestamp: time.UnixMilli(row.Timestamp),
		Balance:   balance,
		Drawdown:  drawdown,
	}, nil
}

func parseSummary(row *summaryRow) (models.BacktestSummary, error) {
	var summary models.BacktestSummary
	var err error
	if summary.TotalPnL, err = decimal.NewFromString(row.TotalPnL); err != nil {
		return summary, fmt.Errorf("total_pnl: %w", err)
	}
	if summary.MaxDrawdown, err = decimal.NewFromString(row.MaxDrawdown); err != nil {
		return summary, fmt.Errorf("max_drawdown: %w", err)
	}
	if summary.FinalBalance, err = decimal.NewFromString(row.FinalBalance); err != nil {
		return summary, fmt.Errorf("final_balance: %w", err)
	}
	summary.TotalTrades = row.TotalTrades
	summary.WinningTrades = row.WinningTrades
	summary.LosingTrades = row.LosingTrades
	summary.WinRate = row.WinRate
	return summary, nil
}

// ComputeSummary восстанавливает сводку, когда движок ее не записал
func ComputeSummary(signals []*models.TradeSignal, equity []*models.EquityPoint) models.BacktestSummary {
	summary := models.BacktestSummary{
		TotalTrades: len(signals),
		TotalPnL:    decimal.Zero,
		MaxDrawdown: decimal.Zero,
	}

	for _, s := range signals {
		summary.TotalPnL = summary.TotalPnL.Add(s.PnL)
		if s.PnL.IsPositive() {
			summary.WinningTrades++
		} else {
			summary.LosingTrades++
		}
	}
	if summary.TotalTrades > 0 {
		summary.WinRate = float64(summary.WinningTrades) / float64(summary.TotalTrades)
	}

	// Максимальная просадка от пика кривой капитала
	if len(equity) > 0 {
		peak := equity[0].Balance
		for _, p := range equity {
			if p.Balance.GreaterThan(peak) {
				peak = p.Balance
			}
			dd := peak.Sub(p.Balance)
			if dd.GreaterThan(summary.MaxDrawdown) {
				summary.MaxDrawdown = dd
			}
		}
		summary.FinalBalance = equity[len(equity)-1].Balance
	}

	return summary
}
