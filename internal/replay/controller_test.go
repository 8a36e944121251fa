package replay

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skalibog/bbrt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// makeCandles создает минутный ряд из n свечей
func makeCandles(n int) []*models.Candle {
	candles := make([]*models.Candle, n)
	for i := 0; i < n; i++ {
		open := testStart.Add(time.Duration(i) * time.Minute)
		candles[i] = &models.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "1m",
			OpenTime:  open,
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    10,
			CloseTime: open.Add(time.Minute),
		}
	}
	return candles
}

func TestSeekClamping(t *testing.T) {
	tests := []struct {
		name string
		seek int
		want int
	}{
		{"отрицательный индекс", -5, 0},
		{"за правой границей", 500, 249},
		{"левая граница", 0, 0},
		{"правая граница", 249, 249},
		{"середина", 120, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(makeCandles(250), nil, 100, time.Second, 1.0)
			c.Seek(tt.seek)
			assert.Equal(t, tt.want, c.Index())
		})
	}
}

func TestPlayToEndAutoPauses(t *testing.T) {
	n := 250
	c := NewController(makeCandles(n), nil, 100, time.Second, 1.0)

	require.True(t, c.Play())
	for i := 0; i < n-1; i++ {
		c.Advance()
	}

	assert.False(t, c.IsPlaying())
	assert.Equal(t, Paused, c.State())
	assert.Equal(t, n-1, c.Index())

	// Лишние тики ничего не двигают
	assert.False(t, c.Advance())
	assert.Equal(t, n-1, c.Index())

	// Play на последней свече — no-op
	assert.False(t, c.Play())
}

func TestSetSpeedKeepsCursor(t *testing.T) {
	c := NewController(makeCandles(250), nil, 100, time.Second, 1.0)
	c.Play()
	for i := 0; i < 42; i++ {
		c.Advance()
	}

	gen := c.Generation()
	c.SetSpeed(4.0)

	assert.Equal(t, 42, c.Index())
	assert.True(t, c.IsPlaying())
	assert.Equal(t, 250*time.Millisecond, c.Interval())
	// Смена скорости на ходу перезапускает таймер
	assert.NotEqual(t, gen, c.Generation())
}

func TestSetSpeedWhilePausedKeepsGeneration(t *testing.T) {
	c := NewController(makeCandles(10), nil, 5, time.Second, 1.0)
	gen := c.Generation()
	c.SetSpeed(2.0)
	assert.Equal(t, gen, c.Generation())
	assert.Equal(t, 500*time.Millisecond, c.Interval())

	// Неположительный множитель игнорируется
	c.SetSpeed(0)
	c.SetSpeed(-1)
	assert.Equal(t, 2.0, c.Speed())
}

func TestWindowLength(t *testing.T) {
	c := NewController(makeCandles(250), nil, 100, time.Second, 1.0)

	tests := []struct {
		index     int
		wantStart int
		wantEnd   int
	}{
		{0, 0, 0},
		{50, 0, 50},
		{99, 0, 99},
		{150, 51, 150},
		{249, 150, 249},
	}

	for _, tt := range tests {
		c.Seek(tt.index)
		start, end := c.Window()
		assert.Equal(t, tt.wantStart, start)
		assert.Equal(t, tt.wantEnd, end)

		// Длина окна = min(L, index+1)
		wantLen := tt.index + 1
		if wantLen > 100 {
			wantLen = 100
		}
		assert.Len(t, c.VisibleBars(), wantLen)
	}
}

// Сквозной пример: N=250, L=100, скорость 1x, базовый тик 1000мс
func TestWorkedExample(t *testing.T) {
	c := NewController(makeCandles(250), nil, 100, time.Second, 1.0)
	require.Equal(t, time.Second, c.Interval())
	require.True(t, c.Play())

	for i := 0; i < 99; i++ {
		c.Advance()
	}
	assert.Equal(t, 99, c.Index())
	start, end := c.Window()
	assert.Equal(t, 0, start)
	assert.Equal(t, 99, end)

	for i := 0; i < 51; i++ {
		c.Advance()
	}
	assert.Equal(t, 150, c.Index())
	start, end = c.Window()
	assert.Equal(t, 51, start)
	assert.Equal(t, 150, end)
}

func TestEmptySeriesAllNoOps(t *testing.T) {
	c := NewController(nil, nil, 100, time.Second, 1.0)

	assert.False(t, c.Play())
	c.Pause()
	c.Stop()
	c.Seek(10)
	c.SetSpeed(2.0)
	assert.False(t, c.Advance())

	assert.Equal(t, 0, c.Index())
	assert.False(t, c.IsPlaying())
	assert.Nil(t, c.Current())
	assert.Nil(t, c.VisibleBars())
	assert.Nil(t, c.VisibleSignals())
}

func TestStopResetsCursor(t *testing.T) {
	c := NewController(makeCandles(50), nil, 10, time.Second, 1.0)
	c.Seek(30)
	c.Play()
	c.Advance()
	c.Stop()

	assert.Equal(t, 0, c.Index())
	assert.Equal(t, Stopped, c.State())
}

func TestPauseIdempotent(t *testing.T) {
	c := NewController(makeCandles(50), nil, 10, time.Second, 1.0)
	c.Play()
	c.Pause()
	gen := c.Generation()
	c.Pause()
	c.Pause()
	assert.Equal(t, gen, c.Generation())
	assert.Equal(t, Paused, c.State())
}

func TestVisibleSignalsFiltering(t *testing.T) {
	candles := makeCandles(250)
	sig := func(entryBar, exitBar int) *models.TradeSignal {
		return &models.TradeSignal{
			Symbol:     "BTCUSDT",
			Side:       models.SideLong,
			EntryTime:  candles[entryBar].OpenTime,
			ExitTime:   candles[exitBar].OpenTime,
			EntryPrice: decimal.NewFromFloat(100),
			ExitPrice:  decimal.NewFromFloat(110),
			PnL:        decimal.NewFromFloat(10),
		}
	}

	signals := []*models.TradeSignal{
		sig(10, 20),   // целиком слева от окна
		sig(40, 60),   // выход внутри окна
		sig(80, 100),  // целиком внутри
		sig(140, 160), // вход внутри, выход справа
		sig(200, 210), // целиком справа
	}

	c := NewController(candles, signals, 100, time.Second, 1.0)
	c.Seek(150) // окно [51, 150]

	visible := c.VisibleSignals()
	require.Len(t, visible, 3)
	assert.Equal(t, candles[40].OpenTime, visible[0].EntryTime)
	assert.Equal(t, candles[80].OpenTime, visible[1].EntryTime)
	assert.Equal(t, candles[140].OpenTime, visible[2].EntryTime)
}

func TestAdvanceIgnoredWhenNotPlaying(t *testing.T) {
	c := NewController(makeCandles(50), nil, 10, time.Second, 1.0)
	assert.False(t, c.Advance())
	assert.Equal(t, 0, c.Index())
}
