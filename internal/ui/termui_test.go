package ui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bbrt/internal/backtest"
	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/internal/datapool"
	"github.com/skalibog/bbrt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uiBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func uiCandles(n int) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := 0; i < n; i++ {
		open := uiBase.Add(time.Duration(i) * time.Minute)
		candles[i] = &models.Candle{
			Symbol: "BTCUSDT", Interval: "1m",
			OpenTime: open, CloseTime: open.Add(time.Minute),
			Open: 100 + float64(i), High: 101 + float64(i),
			Low: 99 + float64(i), Close: 100.5 + float64(i), Volume: 1,
		}
	}
	return candles
}

func testUI(candles []*models.Candle) *TermUI {
	cfg := config.ReplayConfig{Interval: "1m", BaseTickMs: 1000, Lookback: 100, Speed: 1, HistoryBars: 100}
	ui := &TermUI{
		replayCfg:  cfg,
		overlayCfg: config.OverlayConfig{SMAPeriod: 20, EMAPeriod: 12, RSIPeriod: 14},
		symbols:    []string{"BTCUSDT"},
		logLines:   10,
	}
	if candles != nil {
		ui.applyLoaded(&backtest.LoadedData{
			Result: &models.BacktestResult{Symbol: "BTCUSDT", Interval: "1m", Candles: candles},
			Report: &models.QualityReport{Counts: map[models.QualityIssueKind]int{}},
		})
	}
	return ui
}

func TestMarkerRunes(t *testing.T) {
	bars := uiCandles(10)
	signals := []*models.TradeSignal{
		{Side: models.SideLong, EntryTime: bars[3].OpenTime, ExitTime: bars[7].OpenTime},
		{Side: models.SideShort, EntryTime: bars[5].OpenTime.Add(30 * time.Second), ExitTime: uiBase.Add(time.Hour)},
	}

	marks := markerRunes(bars, signals)
	require.Len(t, marks, 10)
	assert.Equal(t, runeEntry, marks[3])
	assert.Equal(t, runeShort, marks[5])
	assert.Equal(t, runeExit, marks[7])
	// Выход второй сделки за пределами окна
	assert.Equal(t, runeEmpty, marks[9])
}

func TestMarkerExitAtWindowRightEdge(t *testing.T) {
	bars := uiCandles(10)
	// Выход ровно на правой границе последней видимой свечи:
	// сделка видима, маркер должен попасть в последнюю колонку
	signals := []*models.TradeSignal{
		{Side: models.SideLong, EntryTime: bars[2].OpenTime, ExitTime: bars[9].CloseTime},
	}

	marks := markerRunes(bars, signals)
	assert.Equal(t, runeEntry, marks[2])
	assert.Equal(t, runeExit, marks[9])
}

func TestMarkerEntryBeatsExit(t *testing.T) {
	bars := uiCandles(5)
	signals := []*models.TradeSignal{
		{Side: models.SideLong, EntryTime: bars[0].OpenTime, ExitTime: bars[2].OpenTime},
		{Side: models.SideLong, EntryTime: bars[2].OpenTime, ExitTime: bars[4].OpenTime},
	}
	marks := markerRunes(bars, signals)
	assert.Equal(t, runeEntry, marks[2])
}

func TestPriceRow(t *testing.T) {
	// Строка 0 — максимум, последняя — минимум
	assert.Equal(t, 0, priceRow(110, 100, 110, 11))
	assert.Equal(t, 10, priceRow(100, 100, 110, 11))
	assert.Equal(t, 5, priceRow(105, 100, 110, 11))
	// Выход за диапазон обрезается
	assert.Equal(t, 0, priceRow(200, 100, 110, 11))
	assert.Equal(t, 10, priceRow(0, 100, 110, 11))
}

func TestPriceBoundsFlatSeries(t *testing.T) {
	bar := &models.Candle{Open: 100, High: 100, Low: 100, Close: 100}
	lo, hi := priceBounds([]*models.Candle{bar})
	assert.Less(t, lo, hi)
}

func TestEquityAt(t *testing.T) {
	equity := []*models.EquityPoint{
		{Timestamp: uiBase, Balance: decimal.NewFromInt(1000)},
		{Timestamp: uiBase.Add(2 * time.Minute), Balance: decimal.NewFromInt(1010)},
		{Timestamp: uiBase.Add(4 * time.Minute), Balance: decimal.NewFromInt(990)},
	}

	assert.Nil(t, equityAt(equity, uiBase.Add(-time.Minute)))
	assert.Equal(t, "1000", equityAt(equity, uiBase).Balance.String())
	assert.Equal(t, "1000", equityAt(equity, uiBase.Add(time.Minute)).Balance.String())
	assert.Equal(t, "1010", equityAt(equity, uiBase.Add(3*time.Minute)).Balance.String())
	assert.Equal(t, "990", equityAt(equity, uiBase.Add(time.Hour)).Balance.String())
}

func TestStaleLoadedResponseDiscarded(t *testing.T) {
	ui := testUI(uiCandles(50))
	ui.token = "текущий"
	model := bubbleModel{ui: ui}

	stale := loadedMsg{token: "старый", data: &backtest.LoadedData{
		Result: &models.BacktestResult{Symbol: "ETHUSDT", Candles: uiCandles(3)},
		Report: &models.QualityReport{Counts: map[models.QualityIssueKind]int{}},
	}}
	model.Update(stale)

	// Устаревший ответ не тронул состояние
	assert.Equal(t, 50, ui.ctrl.Len())
	assert.Equal(t, "BTCUSDT", ui.result.Symbol)

	fresh := loadedMsg{token: "текущий", data: stale.data}
	model.Update(fresh)
	assert.Equal(t, 3, ui.ctrl.Len())
	assert.Equal(t, "ETHUSDT", ui.result.Symbol)
}

func TestStaleLoadErrorKeepsState(t *testing.T) {
	ui := testUI(uiCandles(50))
	ui.token = "текущий"
	model := bubbleModel{ui: ui}

	model.Update(loadErrMsg{token: "текущий", symbol: "BTCUSDT", err: assert.AnError})

	// Ошибка загрузки не трогает прежние данные
	assert.Equal(t, 50, ui.ctrl.Len())
	assert.Contains(t, ui.status, "Ошибка загрузки")
}

func TestStaleTickIgnored(t *testing.T) {
	ui := testUI(uiCandles(50))
	model := bubbleModel{ui: ui}

	ui.ctrl.Play()
	oldGen := ui.ctrl.Generation()
	ui.ctrl.Pause()

	model.Update(tickMsg{epoch: ui.epoch, gen: oldGen})
	assert.Equal(t, 0, ui.ctrl.Index())

	ui.ctrl.Play()
	model.Update(tickMsg{epoch: ui.epoch, gen: ui.ctrl.Generation()})
	assert.Equal(t, 1, ui.ctrl.Index())
}

func TestTickFromPreviousEpochIgnored(t *testing.T) {
	ui := testUI(uiCandles(50))
	model := bubbleModel{ui: ui}

	ui.ctrl.Play()
	stale := tickMsg{epoch: ui.epoch - 1, gen: ui.ctrl.Generation()}
	model.Update(stale)
	assert.Equal(t, 0, ui.ctrl.Index())
}

func TestChangeSpeedClamped(t *testing.T) {
	ui := testUI(uiCandles(50))

	for i := 0; i < 10; i++ {
		ui.changeSpeed(2)
	}
	assert.Equal(t, 16.0, ui.ctrl.Speed())

	for i := 0; i < 20; i++ {
		ui.changeSpeed(0.5)
	}
	assert.Equal(t, 0.25, ui.ctrl.Speed())
}

func TestApplyLoadedKeepsUserSpeed(t *testing.T) {
	ui := testUI(uiCandles(50))
	ui.ctrl.SetSpeed(8)

	ui.applyLoaded(&backtest.LoadedData{
		Result: &models.BacktestResult{Symbol: "ETHUSDT", Candles: uiCandles(20)},
		Report: &models.QualityReport{Counts: map[models.QualityIssueKind]int{}},
	})
	assert.Equal(t, 8.0, ui.ctrl.Speed())
}

func TestRemoveSymbolKey(t *testing.T) {
	pools, err := datapool.Load(filepath.Join(t.TempDir(), "pools.yaml"))
	require.NoError(t, err)
	pools.Add("majors", "BTCUSDT")
	pools.Add("majors", "ETHUSDT")

	ui := testUI(uiCandles(10))
	ui.pools = pools
	ui.poolName = "majors"
	ui.symbols = []string{"BTCUSDT", "ETHUSDT"}

	cmd := ui.removeSymbol()
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"ETHUSDT"}, ui.symbols)
	assert.Equal(t, "ETHUSDT", ui.currentSymbol())

	// Удаление дошло до хранилища пулов
	pool, ok := pools.Get("majors")
	require.True(t, ok)
	assert.Equal(t, []string{"ETHUSDT"}, pool.Symbols)

	// Последний символ пула не удаляется
	assert.Nil(t, ui.removeSymbol())
	assert.Equal(t, []string{"ETHUSDT"}, ui.symbols)
}

func TestRenderChartSmoke(t *testing.T) {
	ui := testUI(uiCandles(120))
	ui.ctrl.Seek(119)

	out := renderChart(ui.ctrl.VisibleBars(), ui.overlays, 20, nil, 80, 12)
	assert.NotEmpty(t, out)

	// Пустой ряд не паникует
	out = renderChart(nil, nil, 0, nil, 80, 12)
	assert.Contains(t, out, "Нет данных")
}

// fakeSource проверяет, что loadCmd доносит ошибки с токеном
type fakeSource struct {
	err error
}

func (f *fakeSource) Load(ctx context.Context, symbol string) (*backtest.LoadedData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &backtest.LoadedData{
		Result: &models.BacktestResult{Symbol: symbol, Candles: uiCandles(5)},
		Report: &models.QualityReport{Counts: map[models.QualityIssueKind]int{}},
	}, nil
}

func TestLoadCmdRoundTrip(t *testing.T) {
	ui := testUI(nil)
	ui.source = &fakeSource{}

	cmd := ui.loadCmd("BTCUSDT")
	require.True(t, ui.loading)
	msg := cmd()

	loaded, ok := msg.(loadedMsg)
	require.True(t, ok)
	assert.Equal(t, ui.token, loaded.token)
	assert.Equal(t, "BTCUSDT", loaded.data.Result.Symbol)

	ui.source = &fakeSource{err: assert.AnError}
	cmd = ui.loadCmd("BTCUSDT")
	errMsg, ok := cmd().(loadErrMsg)
	require.True(t, ok)
	assert.Equal(t, ui.token, errMsg.token)
}
