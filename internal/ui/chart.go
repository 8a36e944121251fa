package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/skalibog/bbrt/internal/replay"
	"github.com/skalibog/bbrt/pkg/models"
)

// Руны графика
const (
	runeBody   = '█'
	runeWick   = '│'
	runeSMA    = '·'
	runeEntry  = '▲'
	runeExit   = '✕'
	runeEmpty  = ' '
	runeShort  = '▼'
)

// renderChart рисует свечи видимого окна в колонку на свечу.
// windowStart — индекс первой свечи окна в полном ряду, он нужен,
// чтобы взять значения индикаторов без заглядывания вперед.
func renderChart(bars []*models.Candle, overlays *replay.OverlaySet, windowStart int, signals []*models.TradeSignal, width, height int) string {
	if len(bars) == 0 {
		return emptyChartStyle.Render("Нет данных для отображения")
	}
	if width < 10 {
		width = 10
	}
	if height < 5 {
		height = 5
	}

	// Если окно шире графика, показываем правый край окна
	if len(bars) > width {
		cut := len(bars) - width
		bars = bars[cut:]
		windowStart += cut
	}

	lo, hi := priceBounds(bars)

	// Сетка: строка 0 — максимум цены
	grid := make([][]rune, height)
	colors := make([][]lipgloss.Style, height)
	for y := range grid {
		grid[y] = make([]rune, len(bars))
		colors[y] = make([]lipgloss.Style, len(bars))
		for x := range grid[y] {
			grid[y][x] = runeEmpty
		}
	}

	for x, bar := range bars {
		style := upStyle
		if bar.Close < bar.Open {
			style = downStyle
		}

		hiRow := priceRow(bar.High, lo, hi, height)
		loRow := priceRow(bar.Low, lo, hi, height)
		top, bottom := bar.Open, bar.Close
		if bottom > top {
			top, bottom = bottom, top
		}
		topRow := priceRow(top, lo, hi, height)
		bottomRow := priceRow(bottom, lo, hi, height)

		for y := hiRow; y <= loRow; y++ {
			grid[y][x] = runeWick
			colors[y][x] = style
		}
		for y := topRow; y <= bottomRow; y++ {
			grid[y][x] = runeBody
			colors[y][x] = style
		}
	}

	// Индикатор поверх пустых клеток, свечи не затираем
	if overlays != nil {
		for x := range bars {
			if v, ok := overlays.SMAAt(windowStart + x); ok && v >= lo && v <= hi {
				y := priceRow(v, lo, hi, height)
				if grid[y][x] == runeEmpty {
					grid[y][x] = runeSMA
					colors[y][x] = smaStyle
				}
			}
		}
	}

	var b strings.Builder
	b.WriteString(axisStyle.Render(fmt.Sprintf("%12.4f", hi)))
	b.WriteByte('\n')
	for y := 0; y < height; y++ {
		for x := 0; x < len(bars); x++ {
			if grid[y][x] == runeEmpty {
				b.WriteRune(runeEmpty)
				continue
			}
			b.WriteString(colors[y][x].Render(string(grid[y][x])))
		}
		b.WriteByte('\n')
	}
	b.WriteString(axisStyle.Render(fmt.Sprintf("%12.4f", lo)))
	b.WriteByte('\n')
	b.WriteString(renderMarkerLine(bars, signals))

	return b.String()
}

// renderMarkerLine рисует строку маркеров сделок под графиком
func renderMarkerLine(bars []*models.Candle, signals []*models.TradeSignal) string {
	marks := markerRunes(bars, signals)

	var b strings.Builder
	for i, r := range marks {
		switch r {
		case runeEntry:
			b.WriteString(upStyle.Render(string(r)))
		case runeShort:
			b.WriteString(downStyle.Render(string(r)))
		case runeExit:
			b.WriteString(exitStyle.Render(string(r)))
		default:
			b.WriteRune(marks[i])
		}
	}
	return b.String()
}

// markerRunes сопоставляет сделки колонкам графика.
// Вход в сделку побеждает выход, если оба пришлись на одну свечу.
func markerRunes(bars []*models.Candle, signals []*models.TradeSignal) []rune {
	marks := make([]rune, len(bars))
	for i := range marks {
		marks[i] = runeEmpty
	}

	for _, s := range signals {
		if col, ok := barColumn(bars, s.ExitTime); ok {
			marks[col] = runeExit
		}
	}
	for _, s := range signals {
		if col, ok := barColumn(bars, s.EntryTime); ok {
			if s.Side == models.SideShort {
				marks[col] = runeShort
			} else {
				marks[col] = runeEntry
			}
		}
	}
	return marks
}

// barColumn находит колонку свечи, на которую попадает момент времени.
// Правая граница последней свечи включается: фильтр видимых сделок
// считает ее частью окна, маркер обязан найтись.
func barColumn(bars []*models.Candle, t time.Time) (int, bool) {
	for i, bar := range bars {
		if !t.Before(bar.OpenTime) && t.Before(bar.CloseTime) {
			return i, true
		}
	}
	if n := len(bars); n > 0 && t.Equal(bars[n-1].CloseTime) {
		return n - 1, true
	}
	return 0, false
}

// priceBounds возвращает диапазон цен по теням свечей
func priceBounds(bars []*models.Candle) (float64, float64) {
	lo, hi := bars[0].Low, bars[0].High
	for _, bar := range bars {
		if bar.Low < lo {
			lo = bar.Low
		}
		if bar.High > hi {
			hi = bar.High
		}
	}
	if hi == lo {
		// Плоский ряд: растягиваем диапазон, чтобы не делить на ноль
		hi = lo + 1
	}
	return lo, hi
}

// priceRow переводит цену в строку сетки, строка 0 — максимум
func priceRow(price, lo, hi float64, height int) int {
	frac := (hi - price) / (hi - lo)
	row := int(frac*float64(height-1) + 0.5)
	if row < 0 {
		row = 0
	}
	if row > height-1 {
		row = height - 1
	}
	return row
}

// equityAt возвращает последнюю точку капитала не позже момента времени
func equityAt(equity []*models.EquityPoint, t time.Time) *models.EquityPoint {
	var last *models.EquityPoint
	for _, p := range equity {
		if p.Timestamp.After(t) {
			break
		}
		last = p
	}
	return last
}
