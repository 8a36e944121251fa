package quality

import (
	"fmt"
	"sort"
	"time"

	"github.com/skalibog/bbrt/pkg/models"
)

// Ограничение на количество примеров в отчете, чтобы отчет по
// дырявому ряду не разрастался до размера самого ряда
const maxSamples = 20

// Checker проверяет ряд свечей на типовые проблемы качества:
// пропуски интервалов, дубликаты по времени открытия, нулевой
// объем и несогласованные OHLC
type Checker struct {
	interval string
}

// NewChecker создает проверку для заданного таймфрейма
func NewChecker(interval string) *Checker {
	return &Checker{interval: interval}
}

// Check строит отчет о качестве ряда. Ряд не модифицируется.
func (c *Checker) Check(symbol string, candles []*models.Candle) *models.QualityReport {
	report := &models.QualityReport{
		Symbol:      symbol,
		Interval:    c.interval,
		GeneratedAt: time.Now(),
		BarsChecked: len(candles),
		Counts: map[models.QualityIssueKind]int{
			models.QualityGap:       0,
			models.QualityDuplicate: 0,
			models.QualityZeroVol:   0,
			models.QualityBadOHLC:   0,
		},
	}

	step := models.IntervalDuration(c.interval)

	for i, candle := range candles {
		if candle.Volume <= 0 {
			c.addIssue(report, models.QualityZeroVol, candle.OpenTime, "нулевой или отрицательный объем")
		}
		if badOHLC(candle) {
			c.addIssue(report, models.QualityBadOHLC, candle.OpenTime,
				fmt.Sprintf("O=%.8g H=%.8g L=%.8g C=%.8g", candle.Open, candle.High, candle.Low, candle.Close))
		}
		if i == 0 {
			continue
		}

		prev := candles[i-1]
		diff := candle.OpenTime.Sub(prev.OpenTime)
		switch {
		case diff == 0:
			c.addIssue(report, models.QualityDuplicate, candle.OpenTime, "повтор времени открытия")
		case diff > step:
			missing := int(diff/step) - 1
			if missing < 1 {
				// шаг больше интервала, но не кратен ему
				missing = 1
			}
			c.addIssue(report, models.QualityGap, prev.OpenTime.Add(step),
				fmt.Sprintf("пропущено свечей: %d", missing))
			report.Counts[models.QualityGap] += missing - 1
		case diff < 0:
			// Нарушение порядка учитываем как дубликат времени:
			// после Deduplicate ряд обязан быть строго возрастающим
			c.addIssue(report, models.QualityDuplicate, candle.OpenTime, "нарушение порядка времени")
		}
	}

	return report
}

// addIssue увеличивает счетчик и добавляет пример, пока есть место
func (c *Checker) addIssue(report *models.QualityReport, kind models.QualityIssueKind, ts time.Time, note string) {
	report.Counts[kind]++
	if len(report.Samples) < maxSamples {
		report.Samples = append(report.Samples, models.QualityIssue{
			Kind:      kind,
			Timestamp: ts,
			Note:      note,
		})
	}
}

// badOHLC проверяет внутреннюю согласованность свечи
func badOHLC(c *models.Candle) bool {
	if c.High < c.Low {
		return true
	}
	if c.Open > c.High || c.Open < c.Low {
		return true
	}
	if c.Close > c.High || c.Close < c.Low {
		return true
	}
	return false
}

// Deduplicate возвращает копию ряда, отсортированную по времени
// открытия, без дубликатов. При повторе времени побеждает более
// поздняя запись: источник перезаписывает свечу при обновлении.
func Deduplicate(candles []*models.Candle) []*models.Candle {
	if len(candles) == 0 {
		return nil
	}

	sorted := make([]*models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	result := sorted[:0]
	for _, candle := range sorted {
		if n := len(result); n > 0 && result[n-1].OpenTime.Equal(candle.OpenTime) {
			// Более поздняя запись побеждает
			result[n-1] = candle
			continue
		}
		result = append(result, candle)
	}
	return result
}
