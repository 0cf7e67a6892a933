package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Trading    TradingConfig   `yaml:"trading"`
	Feeds      FeedsConfig     `yaml:"feeds"`
	Backtest   BacktestConfig  `yaml:"backtest"`
	Storage    StorageConfig   `yaml:"storage"`
	API        APIConfig       `yaml:"api"`
	Log        LogConfig       `yaml:"log"`
	Strategies []StrategyEntry `yaml:"strategies"`
}

// TradingConfig controla el modo y los límites de ejecución.
type TradingConfig struct {
	// Mode selecciona el broker: "dry_run" (simulado) o "live".
	// El default es dry_run; live exige credenciales.
	Mode                string  `yaml:"mode"`
	InitialCapital      float64 `yaml:"initial_capital"`
	SafetyCapUSD        float64 `yaml:"safety_cap_usd"` // techo por orden; <=0 usa el default duro
	OrderTimeoutSeconds int     `yaml:"order_timeout_seconds"`
}

// FeedsConfig contiene los endpoints y cadencias de los dos feeds.
type FeedsConfig struct {
	ScoreboardBase      string  `yaml:"scoreboard_base"`
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`
	KalshiWSURL         string  `yaml:"kalshi_ws_url"`
	KalshiAPIBase       string  `yaml:"kalshi_api_base"`
	// ReconnectMaxSeconds acota el backoff exponencial de reconexión
	// del websocket de precios.
	ReconnectMaxSeconds int `yaml:"reconnect_max_seconds"`
}

// BacktestConfig controla el replay offline.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Settlement     string  `yaml:"settlement"` // winner | last_price
}

// StorageConfig controla dónde se persisten estados y resultados.
type StorageConfig struct {
	StatesDir  string `yaml:"states_dir"`  // árbol JSONL: states/{sport}/{game_id}.jsonl
	ResultsDSN string `yaml:"results_dsn"` // ruta al archivo SQLite, o ":memory:"
}

// APIConfig controla el endpoint HTTP que dispara backtests.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato, nivel y destino del logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file"`   // vacío = solo stderr; si no, rotación de archivo
}

// StrategyEntry es una estrategia habilitada en la config. Un nombre
// desconocido o params inválidos son fatales en el arranque.
type StrategyEntry struct {
	Name    string         `yaml:"name"`
	Enabled bool           `yaml:"enabled"`
	Params  map[string]any `yaml:"params"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env
// si existe. Las variables de entorno sobreescriben el YAML para las
// keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Live devuelve true si el modo es trading real.
func (c *Config) Live() bool {
	return c.Trading.Mode == "live"
}

// OrderTimeout devuelve el timeout de órdenes como time.Duration.
func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Trading.OrderTimeoutSeconds) * time.Second
}

// PollInterval devuelve el intervalo de polling del scoreboard.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Feeds.PollIntervalSeconds * float64(time.Second))
}

// EnabledStrategies devuelve las entradas habilitadas, en orden de config.
func (c *Config) EnabledStrategies() []StrategyEntry {
	var out []StrategyEntry
	for _, e := range c.Strategies {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// applyEnvOverrides sobreescribe valores con variables de entorno si
// están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "dry_run"
	}
	if cfg.Trading.InitialCapital <= 0 {
		cfg.Trading.InitialCapital = 1000
	}
	if cfg.Trading.OrderTimeoutSeconds <= 0 {
		cfg.Trading.OrderTimeoutSeconds = 10
	}
	if cfg.Feeds.PollIntervalSeconds <= 0 {
		cfg.Feeds.PollIntervalSeconds = 1.0
	}
	if cfg.Feeds.KalshiWSURL == "" {
		cfg.Feeds.KalshiWSURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"
	}
	if cfg.Feeds.KalshiAPIBase == "" {
		cfg.Feeds.KalshiAPIBase = "https://api.elections.kalshi.com"
	}
	if cfg.Feeds.ReconnectMaxSeconds <= 0 {
		cfg.Feeds.ReconnectMaxSeconds = 30
	}
	if cfg.Backtest.InitialCapital <= 0 {
		cfg.Backtest.InitialCapital = 10000
	}
	if cfg.Backtest.Settlement == "" {
		cfg.Backtest.Settlement = "winner"
	}
	if cfg.Storage.StatesDir == "" {
		cfg.Storage.StatesDir = "states"
	}
	if cfg.Storage.ResultsDSN == "" {
		cfg.Storage.ResultsDSN = "kalshibot.db"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza configuraciones que no deben llegar a runtime.
func (c *Config) validate() error {
	switch c.Trading.Mode {
	case "dry_run", "live":
	default:
		return fmt.Errorf("trading.mode must be dry_run or live, got %q", c.Trading.Mode)
	}
	switch c.Backtest.Settlement {
	case "winner", "last_price":
	default:
		return fmt.Errorf("backtest.settlement must be winner or last_price, got %q", c.Backtest.Settlement)
	}
	if c.Live() && os.Getenv("KALSHI_API_KEY") == "" {
		return fmt.Errorf("trading.mode is live but KALSHI_API_KEY is not set")
	}
	return nil
}
