package config

import (
	"fmt"
	"os"

	"github.com/skalibog/bbrt/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Replay    ReplayConfig    `yaml:"replay"`
	Overlays  OverlayConfig   `yaml:"overlays"`
	Storage   StorageConfig   `yaml:"storage"`
	Pools     PoolsConfig     `yaml:"pools"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Collector CollectorConfig `yaml:"collector"`
	UI        UIConfig        `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// ReplayConfig содержит настройки воспроизведения
type ReplayConfig struct {
	Interval    string  `yaml:"interval"`      // таймфрейм свечей, например "1m"
	BaseTickMs  int     `yaml:"base_tick_ms"`  // базовый период тика при скорости 1x
	Lookback    int     `yaml:"lookback"`      // ширина видимого окна в свечах
	Speed       float64 `yaml:"speed"`         // начальный множитель скорости
	HistoryBars int     `yaml:"history_bars"`  // сколько свечей загружать, если нет файла результата
}

// OverlayConfig содержит периоды индикаторов, накладываемых на график
type OverlayConfig struct {
	SMAPeriod int `yaml:"sma_period"`
	EMAPeriod int `yaml:"ema_period"`
	RSIPeriod int `yaml:"rsi_period"`
}

// StorageConfig содержит настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// PoolsConfig содержит настройки пулов символов
type PoolsConfig struct {
	File   string `yaml:"file"`   // путь к yaml-файлу с пулами
	Active string `yaml:"active"` // имя пула по умолчанию
}

// BacktestConfig содержит настройки загрузки результатов бэктеста
type BacktestConfig struct {
	ResultFile string `yaml:"result_file"` // JSON-файл внешнего движка, опционально
}

// CollectorConfig содержит настройки фонового сборщика свечей
type CollectorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// UIConfig содержит настройки пользовательского интерфейса
type UIConfig struct {
	LogLines int `yaml:"log_lines"` // сколько строк логов показывать
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}
	config.applyDefaults()

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", config))

	return &config, nil
}

// applyDefaults подставляет значения по умолчанию вместо нулевых
func (c *Config) applyDefaults() {
	if c.Replay.Interval == "" {
		c.Replay.Interval = "1m"
	}
	if c.Replay.BaseTickMs <= 0 {
		c.Replay.BaseTickMs = 1000
	}
	if c.Replay.Lookback <= 0 {
		c.Replay.Lookback = 100
	}
	if c.Replay.Speed <= 0 {
		c.Replay.Speed = 1.0
	}
	if c.Replay.HistoryBars <= 0 {
		c.Replay.HistoryBars = 1000
	}
	if c.Overlays.SMAPeriod <= 0 {
		c.Overlays.SMAPeriod = 20
	}
	if c.Overlays.EMAPeriod <= 0 {
		c.Overlays.EMAPeriod = 12
	}
	if c.Overlays.RSIPeriod <= 0 {
		c.Overlays.RSIPeriod = 14
	}
	if c.Pools.File == "" {
		c.Pools.File = "pools.yaml"
	}
	if c.UI.LogLines <= 0 {
		c.UI.LogLines = 50
	}
}
