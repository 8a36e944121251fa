package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Стороны сделки
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// TradeSignal представляет сделку бэктеста (вход и выход).
// Производится внешним движком бэктеста, здесь только читается.
type TradeSignal struct {
	Symbol     string
	Side       string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Size       decimal.Decimal
	PnL        decimal.Decimal
	Reason     string
}

// EquityPoint представляет точку кривой капитала
type EquityPoint struct {
	Timestamp time.Time
	Balance   decimal.Decimal
	Drawdown  decimal.Decimal
}

// BacktestSummary представляет сводные метрики бэктеста
type BacktestSummary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	TotalPnL      decimal.Decimal
	MaxDrawdown   decimal.Decimal
	FinalBalance  decimal.Decimal
}

// BacktestResult представляет полный результат бэктеста для одного символа
type BacktestResult struct {
	Symbol    string
	Interval  string
	CreatedAt time.Time
	Candles   []*Candle
	Signals   []*TradeSignal
	Equity    []*EquityPoint
	Summary   BacktestSummary
}

// Виды проблем качества данных
type QualityIssueKind string

const (
	QualityGap       QualityIssueKind = "gap"
	QualityDuplicate QualityIssueKind = "duplicate"
	QualityZeroVol   QualityIssueKind = "zero_volume"
	QualityBadOHLC   QualityIssueKind = "bad_ohlc"
)

// QualityIssue представляет одну найденную проблему в ряде свечей
type QualityIssue struct {
	Kind      QualityIssueKind
	Timestamp time.Time
	Note      string
}

// QualityReport представляет отчет о качестве ряда свечей
type QualityReport struct {
	Symbol      string
	Interval    string
	GeneratedAt time.Time
	BarsChecked int
	Counts      map[QualityIssueKind]int
	Samples     []QualityIssue
}

// Clean сообщает, что проблем не найдено
func (r *QualityReport) Clean() bool {
	for _, n := range r.Counts {
		if n > 0 {
			return false
		}
	}
	return true
}
