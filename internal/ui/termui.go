package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/skalibog/bbrt/internal/backtest"
	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/internal/datapool"
	"github.com/skalibog/bbrt/internal/replay"
	"github.com/skalibog/bbrt/pkg/logger"
	"github.com/skalibog/bbrt/pkg/models"
	"go.uber.org/zap"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	// Главный контейнер
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	// Заголовок
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	// Секция графика
	chartSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)
	emptyChartStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(2, 4)
	// Свечи и маркеры
	upStyle   = lipgloss.NewStyle().Foreground(successColor)
	downStyle = lipgloss.NewStyle().Foreground(errorColor)
	smaStyle  = lipgloss.NewStyle().Foreground(warningColor)
	exitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff"))
	axisStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	// Строка состояния
	statusStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	// Секция логов
	logsHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	logsSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)
	// Футер
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// DataSource загружает данные воспроизведения для символа
type DataSource interface {
	Load(ctx context.Context, symbol string) (*backtest.LoadedData, error)
}

// TermUI представляет терминальный интерфейс воспроизведения
type TermUI struct {
	source   DataSource
	pools    *datapool.Store
	poolName string
	symbols  []string
	symIdx   int

	ctrl     *replay.Controller
	overlays *replay.OverlaySet
	result   *models.BacktestResult
	report   *models.QualityReport

	replayCfg  config.ReplayConfig
	overlayCfg config.OverlayConfig

	// Токен текущей загрузки: ответ с чужим токеном отбрасывается
	token   string
	epoch   int
	loading bool
	status  string

	logs     []string
	logFile  string
	logLines int

	program *tea.Program
	width   int
	height  int
}

// Сообщения для обновления UI.
// Тик несет эпоху загрузки и поколение таймера: совпасть должны оба,
// иначе тик старого контроллера доберется до нового.
type tickMsg struct {
	epoch int
	gen   int
}
type loadedMsg struct {
	token string
	data  *backtest.LoadedData
}
type loadErrMsg struct {
	token  string
	symbol string
	err    error
}
type logTickMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

// NewTermUI создает терминальный интерфейс. Символы берутся из
// активного пула, при пустых пулах — из запасного списка (символ
// файла результата).
func NewTermUI(cfg *config.Config, source DataSource, pools *datapool.Store, fallbackSymbols []string) (*TermUI, error) {
	ui := &TermUI{
		source:     source,
		pools:      pools,
		replayCfg:  cfg.Replay,
		overlayCfg: cfg.Overlays,
		logs:       []string{"BBRT запущен. Загрузка данных..."},
		logFile:    logger.JSONPath(),
		logLines:   cfg.UI.LogLines,
		width:      120,
		height:     40,
	}

	ui.poolName = cfg.Pools.Active
	if _, ok := pools.Get(ui.poolName); !ok {
		names := pools.Names()
		if len(names) > 0 {
			ui.poolName = names[0]
		} else {
			ui.poolName = ""
		}
	}
	if pool, ok := pools.Get(ui.poolName); ok {
		ui.symbols = pool.Symbols
	} else {
		ui.symbols = fallbackSymbols
	}
	if len(ui.symbols) == 0 {
		return nil, fmt.Errorf("нет ни одного символа: пулы пусты и файл результата не задан")
	}

	return ui, nil
}

// Start запускает UI и блокируется до выхода
func (ui *TermUI) Start() error {
	ui.program = tea.NewProgram(bubbleModel{ui: ui}, tea.WithAltScreen())
	if _, err := ui.program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

// currentSymbol возвращает выбранный символ
func (ui *TermUI) currentSymbol() string {
	return ui.symbols[ui.symIdx]
}

// loadCmd начинает загрузку данных символа с новым токеном
func (ui *TermUI) loadCmd(symbol string) tea.Cmd {
	token := uuid.NewString()
	ui.token = token
	ui.loading = true
	ui.status = fmt.Sprintf("Загрузка %s...", symbol)

	source := ui.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		data, err := source.Load(ctx, symbol)
		if err != nil {
			return loadErrMsg{token: token, symbol: symbol, err: err}
		}
		return loadedMsg{token: token, data: data}
	}
}

// tickCmd планирует следующий тик воспроизведения для текущего
// поколения таймера
func (ui *TermUI) tickCmd() tea.Cmd {
	epoch := ui.epoch
	gen := ui.ctrl.Generation()
	return tea.Tick(ui.ctrl.Interval(), func(time.Time) tea.Msg {
		return tickMsg{epoch: epoch, gen: gen}
	})
}

// logTickCmd планирует перечитывание файла логов
func (ui *TermUI) logTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return logTickMsg{}
	})
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return tea.Batch(
		m.ui.loadCmd(m.ui.currentSymbol()),
		m.ui.logTickCmd(),
	)
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ui := m.ui

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, ui.handleKey(msg)

	case tickMsg:
		if ui.ctrl == nil || msg.epoch != ui.epoch || msg.gen != ui.ctrl.Generation() {
			// Тик от старого таймера: пауза, смена скорости или
			// перезагрузка успели его обогнать
			return m, nil
		}
		ui.ctrl.Advance()
		if ui.ctrl.IsPlaying() {
			return m, ui.tickCmd()
		}
		return m, nil

	case loadedMsg:
		if msg.token != ui.token {
			// Устаревший ответ после переключения символа
			logger.Debug("Отброшен устаревший ответ загрузки")
			return m, nil
		}
		ui.applyLoaded(msg.data)
		return m, nil

	case loadErrMsg:
		if msg.token != ui.token {
			return m, nil
		}
		// Прежнее состояние не трогаем, только сообщаем
		ui.loading = false
		ui.status = fmt.Sprintf("Ошибка загрузки %s: %v", msg.symbol, msg.err)
		logger.Error("Ошибка загрузки данных", zap.String("symbol", msg.symbol), zap.Error(msg.err))
		return m, nil

	case logTickMsg:
		if err := ui.loadLogsFromFile(); err != nil {
			logger.Warn("Ошибка загрузки логов", zap.Error(err))
		}
		return m, ui.logTickCmd()

	case tea.WindowSizeMsg:
		ui.width = msg.Width
		ui.height = msg.Height
	}

	return m, nil
}

// handleKey обрабатывает клавиши управления воспроизведением
func (ui *TermUI) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit

	case " ":
		if ui.ctrl == nil {
			return nil
		}
		if ui.ctrl.IsPlaying() {
			ui.ctrl.Pause()
			return nil
		}
		if ui.ctrl.Play() {
			return ui.tickCmd()
		}

	case "s":
		if ui.ctrl != nil {
			ui.ctrl.Stop()
		}

	case "left":
		if ui.ctrl != nil {
			ui.ctrl.Seek(ui.ctrl.Index() - 1)
		}

	case "right":
		if ui.ctrl != nil {
			ui.ctrl.Seek(ui.ctrl.Index() + 1)
		}

	case "home":
		if ui.ctrl != nil {
			ui.ctrl.Seek(0)
		}

	case "end":
		if ui.ctrl != nil {
			ui.ctrl.Seek(ui.ctrl.Len() - 1)
		}

	case "+", "=":
		return ui.changeSpeed(2)

	case "-", "_":
		return ui.changeSpeed(0.5)

	case "tab":
		if len(ui.symbols) > 1 {
			ui.symIdx = (ui.symIdx + 1) % len(ui.symbols)
			return ui.loadCmd(ui.currentSymbol())
		}

	case "p":
		return ui.nextPool()

	case "x":
		return ui.removeSymbol()
	}

	return nil
}

// removeSymbol убирает текущий символ из активного пула и сохраняет
// файл пулов. Последний символ пула не удаляется: смотреть стало бы
// не на что.
func (ui *TermUI) removeSymbol() tea.Cmd {
	if ui.poolName == "" || len(ui.symbols) < 2 {
		return nil
	}

	removed := ui.currentSymbol()
	ui.pools.Remove(ui.poolName, removed)
	if err := ui.pools.Save(); err != nil {
		logger.Warn("Файл пулов не сохранен", zap.Error(err))
	}

	pool, ok := ui.pools.Get(ui.poolName)
	if !ok {
		return nil
	}
	ui.symbols = pool.Symbols
	if ui.symIdx >= len(ui.symbols) {
		ui.symIdx = 0
	}
	logger.Info("Символ убран из пула", zap.String("symbol", removed), zap.String("pool", ui.poolName))
	return ui.loadCmd(ui.currentSymbol())
}

// changeSpeed умножает скорость, границы 0.25x..16x
func (ui *TermUI) changeSpeed(factor float64) tea.Cmd {
	if ui.ctrl == nil {
		return nil
	}
	speed := ui.ctrl.Speed() * factor
	if speed < 0.25 {
		speed = 0.25
	}
	if speed > 16 {
		speed = 16
	}
	ui.ctrl.SetSpeed(speed)
	if ui.ctrl.IsPlaying() {
		// Таймер перезапускается с новым периодом, курсор на месте
		return ui.tickCmd()
	}
	return nil
}

// nextPool переключает активный пул и загружает его первый символ
func (ui *TermUI) nextPool() tea.Cmd {
	next := ui.pools.Next(ui.poolName)
	if next == "" || next == ui.poolName {
		return nil
	}
	pool, ok := ui.pools.Get(next)
	if !ok || len(pool.Symbols) == 0 {
		return nil
	}
	ui.poolName = next
	ui.symbols = pool.Symbols
	ui.symIdx = 0
	return ui.loadCmd(ui.currentSymbol())
}

// applyLoaded заменяет данные вида на свежезагруженные.
// Скорость пользователя переживает переключение символа.
func (ui *TermUI) applyLoaded(data *backtest.LoadedData) {
	speed := ui.replayCfg.Speed
	if ui.ctrl != nil {
		speed = ui.ctrl.Speed()
	}

	ui.epoch++
	ui.result = data.Result
	ui.report = data.Report
	ui.overlays = replay.ComputeOverlays(data.Result.Candles, ui.overlayCfg)
	ui.ctrl = replay.NewController(
		data.Result.Candles,
		data.Result.Signals,
		ui.replayCfg.Lookback,
		time.Duration(ui.replayCfg.BaseTickMs)*time.Millisecond,
		speed,
	)
	ui.loading = false
	ui.status = fmt.Sprintf("%s: %d свечей, %d сделок",
		data.Result.Symbol, len(data.Result.Candles), len(data.Result.Signals))

	logger.Info("Данные загружены",
		zap.String("symbol", data.Result.Symbol),
		zap.Int("candles", len(data.Result.Candles)),
		zap.Int("signals", len(data.Result.Signals)))
}

func (m bubbleModel) View() string {
	ui := m.ui

	title := titleStyle.Render("BBRT - Backtest Bar Replay Terminal")
	chart := ui.renderChartSection()
	status := ui.renderStatusLine()
	summary := ui.renderSummaryLine()
	qualityLine := ui.renderQualityLine()
	logs := renderLogsSection(ui.logs, ui.logLines)
	footer := footerStyle.Render(
		"Клавиши: Space - play/pause, S - стоп, ←/→ - шаг, Home/End - края, +/- - скорость, Tab - символ, P - пул, X - убрать символ, Q - выход")

	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			chart,
			status,
			summary,
			qualityLine,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

// renderChartSection рисует график видимого окна
func (ui *TermUI) renderChartSection() string {
	if ui.ctrl == nil {
		return chartSectionStyle.Render(emptyChartStyle.Render("Ожидание данных..."))
	}

	chartWidth := ui.width - 10
	chartHeight := ui.height - 18
	windowStart, _ := ui.ctrl.Window()

	chart := renderChart(
		ui.ctrl.VisibleBars(),
		ui.overlays,
		windowStart,
		ui.ctrl.VisibleSignals(),
		chartWidth,
		chartHeight,
	)
	return chartSectionStyle.Render(chart)
}

// renderStatusLine рисует строку состояния воспроизведения
func (ui *TermUI) renderStatusLine() string {
	if ui.ctrl == nil || ui.ctrl.Len() == 0 {
		return statusStyle.Render(ui.status)
	}

	current := ui.ctrl.Current()
	line := fmt.Sprintf("[%s] %s %s  %d/%d  %.2fx  %s  C=%.4f",
		ui.ctrl.State(),
		ui.currentSymbol(),
		ui.poolLabel(),
		ui.ctrl.Index()+1,
		ui.ctrl.Len(),
		ui.ctrl.Speed(),
		current.OpenTime.Format("02.01 15:04"),
		current.Close,
	)
	if rsi, ok := ui.overlays.RSIAt(ui.ctrl.Index()); ok {
		line += fmt.Sprintf("  RSI=%.1f", rsi)
	}
	if ui.loading {
		line += "  " + ui.status
	}
	return statusStyle.Render(line)
}

// poolLabel возвращает метку пула для строки состояния
func (ui *TermUI) poolLabel() string {
	if ui.poolName == "" {
		return "(без пула)"
	}
	return "пул:" + ui.poolName
}

// renderSummaryLine рисует сводку бэктеста и капитал на курсоре
func (ui *TermUI) renderSummaryLine() string {
	if ui.result == nil {
		return ""
	}
	s := ui.result.Summary
	line := fmt.Sprintf("  Сделок: %d  Прибыльных: %d  WinRate: %.0f%%  PnL: %s  MaxDD: %s",
		s.TotalTrades, s.WinningTrades, s.WinRate*100, s.TotalPnL.String(), s.MaxDrawdown.String())

	if ui.ctrl != nil && ui.ctrl.Current() != nil {
		if point := equityAt(ui.result.Equity, ui.ctrl.Current().CloseTime); point != nil {
			line += fmt.Sprintf("  Капитал: %s", point.Balance.String())
			if !point.Drawdown.IsZero() {
				line += fmt.Sprintf(" (просадка %s)", point.Drawdown.String())
			}
		}
	}
	return line
}

// renderQualityLine рисует итог проверки качества данных
func (ui *TermUI) renderQualityLine() string {
	if ui.report == nil {
		return ""
	}
	if ui.report.Clean() {
		return "  " + upStyle.Render(fmt.Sprintf("Качество данных: OK (%d свечей)", ui.report.BarsChecked))
	}
	return "  " + downStyle.Render(fmt.Sprintf(
		"Качество данных: пропуски=%d дубликаты=%d нулевой_объем=%d плохой_OHLC=%d",
		ui.report.Counts[models.QualityGap],
		ui.report.Counts[models.QualityDuplicate],
		ui.report.Counts[models.QualityZeroVol],
		ui.report.Counts[models.QualityBadOHLC],
	))
}

// loadLogsFromFile перечитывает JSON-логи текущего запуска
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			// Файл не существует, это не ошибка
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	// Регулярное выражение для удаления ANSI-цветов
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	for scanner.Scan() {
		line := scanner.Text()

		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			level = ansiRegex.ReplaceAllString(level, "")

			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}
			logs = append(logs, formattedMsg)
		} else {
			logs = append(logs, line)
		}

		if len(logs) > ui.logLines {
			logs = logs[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if len(logs) > 0 {
		ui.logs = logs
	}
	return nil
}

// renderLogsSection рисует хвост логов
func renderLogsSection(logs []string, maxLines int) string {
	header := logsHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	start := 0
	if len(logs) > maxLines {
		start = len(logs) - maxLines
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		// Выделение по уровню логирования
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return logsSectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}
