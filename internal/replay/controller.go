package replay

import (
	"time"

	"github.com/skalibog/bbrt/pkg/models"
)

// State представляет состояние воспроизведения
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

// String возвращает читаемое имя состояния
func (s State) String() string {
	switch s {
	case Playing:
		return "PLAY"
	case Paused:
		return "PAUSE"
	default:
		return "STOP"
	}
}

// Controller ведет курсор по неизменяемому ряду свечей.
// Таймер контроллеру не принадлежит: внешний цикл (UI или тест)
// планирует тики с периодом Interval() и вызывает Advance().
// Поколение Generation() растет при каждой смене режима тикания,
// чтобы запоздавший тик старого таймера можно было отбросить.
type Controller struct {
	bars     []*models.Candle
	signals  []*models.TradeSignal
	state    State
	index    int
	speed    float64
	baseTick time.Duration
	lookback int
	gen      int
}

// NewController создает контроллер для готового ряда свечей.
// Ряд и сигналы после создания считаются неизменяемыми.
func NewController(bars []*models.Candle, signals []*models.TradeSignal, lookback int, baseTick time.Duration, speed float64) *Controller {
	if lookback <= 0 {
		lookback = 100
	}
	if baseTick <= 0 {
		baseTick = time.Second
	}
	if speed <= 0 {
		speed = 1.0
	}
	return &Controller{
		bars:     bars,
		signals:  signals,
		state:    Stopped,
		speed:    speed,
		baseTick: baseTick,
		lookback: lookback,
	}
}

// Play запускает воспроизведение. Ничего не делает, если ряд пуст,
// уже играем или курсор стоит на последней свече.
func (c *Controller) Play() bool {
	if len(c.bars) == 0 || c.state == Playing || c.index >= len(c.bars)-1 {
		return false
	}
	c.state = Playing
	c.gen++
	return true
}

// Pause останавливает продвижение курсора. Идемпотентна.
func (c *Controller) Pause() {
	if c.state != Playing {
		return
	}
	c.state = Paused
	c.gen++
}

// Stop останавливает воспроизведение и возвращает курсор в начало
func (c *Controller) Stop() {
	c.state = Stopped
	c.index = 0
	c.gen++
}

// Seek переводит курсор на указанный индекс. Выход за границы
// обрезается до ближайшей допустимой границы, ошибки не бывает.
// Видимое окно пересчитывается синхронно (оно производное от курсора).
func (c *Controller) Seek(index int) {
	if len(c.bars) == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(c.bars)-1 {
		index = len(c.bars) - 1
	}
	c.index = index
}

// SetSpeed меняет множитель скорости. Курсор не сбрасывается.
// Если воспроизведение идет, поколение растет: старый таймер
// должен быть перезапущен с новым периодом.
func (c *Controller) SetSpeed(multiplier float64) {
	if multiplier <= 0 {
		return
	}
	c.speed = multiplier
	if c.state == Playing {
		c.gen++
	}
}

// Advance продвигает курсор на одну свечу по тику таймера.
// Достижение последней свечи автоматически ставит паузу.
// Возвращает false, если тик ничего не изменил.
func (c *Controller) Advance() bool {
	if c.state != Playing || len(c.bars) == 0 {
		return false
	}
	if c.index >= len(c.bars)-1 {
		c.state = Paused
		c.gen++
		return false
	}
	c.index++
	if c.index == len(c.bars)-1 {
		c.state = Paused
		c.gen++
	}
	return true
}

// Interval возвращает текущий период тика: база / множитель скорости
func (c *Controller) Interval() time.Duration {
	return time.Duration(float64(c.baseTick) / c.speed)
}

// Window возвращает границы видимого окна [start, end] включительно.
// Для пустого ряда end < start.
func (c *Controller) Window() (int, int) {
	if len(c.bars) == 0 {
		return 0, -1
	}
	start := c.index - c.lookback + 1
	if start < 0 {
		start = 0
	}
	return start, c.index
}

// VisibleBars возвращает срез свечей видимого окна
func (c *Controller) VisibleBars() []*models.Candle {
	start, end := c.Window()
	if end < start {
		return nil
	}
	return c.bars[start : end+1]
}

// VisibleSignals возвращает сделки, вход или выход которых попадает
// во временные границы видимого окна
func (c *Controller) VisibleSignals() []*models.TradeSignal {
	start, end := c.Window()
	if end < start {
		return nil
	}
	from := c.bars[start].OpenTime
	to := c.bars[end].CloseTime

	var visible []*models.TradeSignal
	for _, s := range c.signals {
		if inRange(s.EntryTime, from, to) || inRange(s.ExitTime, from, to) {
			visible = append(visible, s)
		}
	}
	return visible
}

// inRange проверяет попадание t в [from, to] включительно
func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// Index возвращает текущий индекс курсора
func (c *Controller) Index() int {
	return c.index
}

// Len возвращает длину ряда свечей
func (c *Controller) Len() int {
	return len(c.bars)
}

// Current возвращает свечу под курсором, nil для пустого ряда
func (c *Controller) Current() *models.Candle {
	if len(c.bars) == 0 {
		return nil
	}
	return c.bars[c.index]
}

// State возвращает текущее состояние воспроизведения
func (c *Controller) State() State {
	return c.state
}

// IsPlaying сообщает, идет ли воспроизведение
func (c *Controller) IsPlaying() bool {
	return c.state == Playing
}

// Speed возвращает текущий множитель скорости
func (c *Controller) Speed() float64 {
	return c.speed
}

// Generation возвращает поколение таймера. Тик, запланированный
// для другого поколения, обрабатывать нельзя.
func (c *Controller) Generation() int {
	return c.gen
}
