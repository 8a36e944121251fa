package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalibog/bbrt/internal/backtest"
	"github.com/skalibog/bbrt/internal/config"
	"github.com/skalibog/bbrt/internal/datapool"
	"github.com/skalibog/bbrt/internal/exchange"
	"github.com/skalibog/bbrt/internal/storage"
	"github.com/skalibog/bbrt/internal/ui"
	"github.com/skalibog/bbrt/pkg/logger"
	"github.com/skalibog/bbrt/pkg/models"
	"go.uber.org/zap"
)

func main() {
	logger.Init("app")
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	resultPath := flag.String("result", "", "файл результата бэктеста (перекрывает конфигурацию)")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Настраиваем обработку сигналов завершения: освобождаем фоновый
	// сборщик, сам UI завершается своей клавишей выхода
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Инициализируем хранилище. Без него работаем тоже: кеш и записи
	// бэктеста просто недоступны, история пойдет напрямую с биржи.
	var store storage.Storage
	if influx, err := storage.NewInfluxDBStorage(cfg.Storage); err != nil {
		logger.Warn("Хранилище недоступно, работаем без кеша", zap.Error(err))
	} else {
		store = influx
		defer influx.Close()
	}

	// Инициализируем клиент биржи
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		logger.Fatal("Ошибка инициализации клиента биржи", zap.Error(err))
	}

	// Файл результата внешнего движка, если задан
	var fileResult *models.BacktestResult
	path := cfg.Backtest.ResultFile
	if *resultPath != "" {
		path = *resultPath
	}
	if path != "" {
		fileResult, err = backtest.LoadFile(path)
		if err != nil {
			logger.Fatal("Ошибка загрузки файла результата", zap.String("path", path), zap.Error(err))
		}
		logger.Info("Загружен файл результата",
			zap.String("path", path),
			zap.String("symbol", fileResult.Symbol),
			zap.Int("trades", len(fileResult.Signals)))
	}

	// Загружаем пулы символов
	pools, err := datapool.Load(cfg.Pools.File)
	if err != nil {
		logger.Fatal("Ошибка загрузки пулов символов", zap.Error(err))
	}

	// Первый запуск с файлом результата: заводим пул под его символ,
	// чтобы файл пулов появился и дальше курировался из UI
	if pools.Len() == 0 && fileResult != nil {
		pools.Add("default", fileResult.Symbol)
		if err := pools.Save(); err != nil {
			logger.Warn("Файл пулов не сохранен", zap.Error(err))
		}
	}

	// Источник данных воспроизведения
	source := backtest.NewSource(store, client, cfg.Replay, fileResult)

	// Запасной список символов на случай пустых пулов
	var fallback []string
	if fileResult != nil {
		fallback = []string{fileResult.Symbol}
	}

	// Инициализируем UI
	userInterface, err := ui.NewTermUI(cfg, source, pools, fallback)
	if err != nil {
		logger.Fatal("Ошибка инициализации пользовательского интерфейса", zap.Error(err))
	}

	// Фоновый сборщик свежих свечей, пишет в кеш
	if cfg.Collector.Enabled && store != nil {
		symbols := collectorSymbols(pools, fallback)
		if len(symbols) > 0 {
			collector := exchange.NewKlineCollector(store, symbols, cfg.Replay.Interval)
			go func() {
				defer collector.Stop()
				if err := collector.Start(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("Сборщик свечей остановился", zap.Error(err))
				}
			}()
		}
	}

	// Запускаем UI в основном потоке (блокирующий вызов)
	if err := userInterface.Start(); err != nil {
		logger.Fatal("Ошибка работы UI", zap.Error(err))
	}
}

// collectorSymbols собирает все символы всех пулов без повторов
func collectorSymbols(pools *datapool.Store, fallback []string) []string {
	seen := make(map[string]bool)
	var symbols []string

	add := func(symbol string) {
		if symbol != "" && !seen[symbol] {
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}

	for _, name := range pools.Names() {
		if pool, ok := pools.Get(name); ok {
			for _, symbol := range pool.Symbols {
				add(symbol)
			}
		}
	}
	for _, symbol := range fallback {
		add(symbol)
	}
	return symbols
}
