package replay

import (
	"github.com/markcheno/go-talib"
	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/pkg/models"
)

// OverlaySet содержит индикаторные ряды, рассчитанные один раз
// по всей истории. Значения с индексом больше курсора наружу не
// отдаются: заглядывать вперед при воспроизведении нельзя.
type OverlaySet struct {
	smaPeriod int
	emaPeriod int
	rsiPeriod int
	sma       []float64
	ema       []float64
	rsi       []float64
}

// ComputeOverlays рассчитывает индикаторы по ряду свечей.
// Для слишком короткого ряда возвращает пустой набор.
func ComputeOverlays(candles []*models.Candle, cfg config.OverlayConfig) *OverlaySet {
	set := &OverlaySet{
		smaPeriod: cfg.SMAPeriod,
		emaPeriod: cfg.EMAPeriod,
		rsiPeriod: cfg.RSIPeriod,
	}

	maxPeriod := cfg.SMAPeriod
	if cfg.EMAPeriod > maxPeriod {
		maxPeriod = cfg.EMAPeriod
	}
	if cfg.RSIPeriod > maxPeriod {
		maxPeriod = cfg.RSIPeriod
	}
	if len(candles) <= maxPeriod {
		return set
	}

	// Подготавливаем данные для расчета
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	set.sma = talib.Sma(closes, cfg.SMAPeriod)
	set.ema = talib.Ema(closes, cfg.EMAPeriod)
	set.rsi = talib.Rsi(closes, cfg.RSIPeriod)

	return set
}

// SMAAt возвращает значение SMA на индексе. Второй результат false,
// если значение еще не определено (разогрев периода или пустой набор).
func (o *OverlaySet) SMAAt(i int) (float64, bool) {
	// первое определенное значение SMA стоит на индексе period-1
	return valueAt(o.sma, i, o.smaPeriod-1)
}

// EMAAt возвращает значение EMA на индексе
func (o *OverlaySet) EMAAt(i int) (float64, bool) {
	return valueAt(o.ema, i, o.emaPeriod-1)
}

// RSIAt возвращает значение RSI на индексе
func (o *OverlaySet) RSIAt(i int) (float64, bool) {
	// RSI разогревается на одну свечу дольше скользящих средних
	return valueAt(o.rsi, i, o.rsiPeriod)
}

// SMASlice возвращает срез SMA для окна [start, end] включительно.
// Недоопределенные значения разогрева остаются нулями, как их
// возвращает talib.
func (o *OverlaySet) SMASlice(start, end int) []float64 {
	return sliceAt(o.sma, start, end)
}

// EMASlice возвращает срез EMA для окна [start, end] включительно
func (o *OverlaySet) EMASlice(start, end int) []float64 {
	return sliceAt(o.ema, start, end)
}

func valueAt(series []float64, i, firstValid int) (float64, bool) {
	// talib заполняет позиции до первого определенного значения нулями
	if i < 0 || i >= len(series) || i < firstValid {
		return 0, false
	}
	return series[i], true
}

func sliceAt(series []float64, start, end int) []float64 {
	if start < 0 || end >= len(series) || end < start {
		return nil
	}
	return series[start : end+1]
}
