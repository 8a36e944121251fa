package replay

import (
	"testing"

	"github.com/skalibog/bbrt/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func overlayConfig() config.OverlayConfig {
	return config.OverlayConfig{SMAPeriod: 3, EMAPeriod: 3, RSIPeriod: 3}
}

func TestComputeOverlaysSMA(t *testing.T) {
	candles := makeCandles(10)
	set := ComputeOverlays(candles, overlayConfig())

	// Закрытия растут на 1 за свечу, SMA(3) отстает ровно на 1
	v, ok := set.SMAAt(5)
	require.True(t, ok)
	assert.InDelta(t, candles[4].Close, v, 1e-9)

	// Разогрев периода еще не дает значения
	_, ok = set.SMAAt(1)
	assert.False(t, ok)

	// За пределами ряда значения нет
	_, ok = set.SMAAt(10)
	assert.False(t, ok)
	_, ok = set.SMAAt(-1)
	assert.False(t, ok)
}

func TestComputeOverlaysRSIWarmup(t *testing.T) {
	set := ComputeOverlays(makeCandles(10), overlayConfig())

	// RSI разогревается на свечу дольше SMA
	_, ok := set.RSIAt(2)
	assert.False(t, ok)
	v, ok := set.RSIAt(3)
	require.True(t, ok)
	// Ряд строго растет, RSI прижат к 100
	assert.InDelta(t, 100.0, v, 1e-9)
}

func TestComputeOverlaysShortSeries(t *testing.T) {
	// Ряд короче максимального периода: набор пустой, но безопасный
	set := ComputeOverlays(makeCandles(3), overlayConfig())
	_, ok := set.SMAAt(2)
	assert.False(t, ok)
	assert.Nil(t, set.SMASlice(0, 2))
}

func TestOverlaySlices(t *testing.T) {
	set := ComputeOverlays(makeCandles(20), overlayConfig())

	s := set.SMASlice(5, 9)
	require.Len(t, s, 5)
	e := set.EMASlice(5, 9)
	require.Len(t, e, 5)

	// Некорректные границы дают nil, а не панику
	assert.Nil(t, set.SMASlice(10, 5))
	assert.Nil(t, set.SMASlice(0, 25))
}
