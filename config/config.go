package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Perps    PerpsConfig    `yaml:"perps"`
	Storage  StorageConfig  `yaml:"storage"`
	Paper    PaperConfig    `yaml:"paper"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig controla qué estrategia corre y con qué límites.
type StrategyConfig struct {
	Name               string   `yaml:"name"`
	IntervalSeconds    int      `yaml:"interval_seconds"`
	Leverage           float64  `yaml:"leverage"`
	CollateralUSDC     float64  `yaml:"collateral_usdc"`
	CollateralFraction float64  `yaml:"collateral_fraction"` // si > 0, colateral = balance × fracción
	MinCollateral      *float64 `yaml:"min_collateral"`      // nil → 1; 0 desactiva el mínimo
	MaxPositions       int      `yaml:"max_positions"`
	EnabledAssets      []string `yaml:"enabled_assets"`    // vacío = todos los mercados habilitados
	BlacklistMinutes   *int     `yaml:"blacklist_minutes"` // nil → 60; 0 desactiva el blacklist
	TakeProfitPct      float64  `yaml:"take_profit_pct"`   // sobre colateral: 0.2 = +20%
	StopLossPct        float64  `yaml:"stop_loss_pct"`
	MaxHoldHours       float64  `yaml:"max_hold_hours"` // 0 = sin límite
	OpenDelaySeconds   *int     `yaml:"open_delay_seconds"`
	OpenWaitBlocks     int      `yaml:"open_wait_blocks"` // requiere perps.rpc_ws
	RetryDelaySeconds  int      `yaml:"retry_delay_seconds"`
	RetryAttempts      *int     `yaml:"retry_attempts"` // nil → 2; 0 desactiva los reintentos
	HistoryLength      int      `yaml:"history_length"`
	StopFile           string   `yaml:"stop_file"`

	// Params son los umbrales de cada estrategia, indexados por nombre.
	Params map[string]map[string]float64 `yaml:"params"`
}

// PerpsConfig contiene los endpoints de la plataforma.
type PerpsConfig struct {
	LCDBase         string `yaml:"lcd_base"`
	GatewayBase     string `yaml:"gateway_base"`
	RPCWebsocket    string `yaml:"rpc_ws"`
	Contract        string `yaml:"contract"`
	CollateralDenom string `yaml:"collateral_denom"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	PrivateKey      string `yaml:"-"` // solo desde PERPS_PRIVATE_KEY
}

// StorageConfig controla dónde se persisten state e histórico.
type StorageConfig struct {
	CacheDir         string `yaml:"cache_dir"`
	HistoryBackend   string `yaml:"history_backend"` // json | sqlite
	DSN              string `yaml:"dsn"`             // ruta al archivo SQLite, o ":memory:"
	LockStaleMinutes int    `yaml:"lock_stale_minutes"`
}

// PaperConfig controla el modo -dry-run.
type PaperConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
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

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// Interval devuelve el intervalo entre runs.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Strategy.IntervalSeconds) * time.Second
}

// BlacklistFor devuelve cuánto tiempo queda bloqueado un activo tras cerrarse.
func (c *Config) BlacklistFor() time.Duration {
	return time.Duration(*c.Strategy.BlacklistMinutes) * time.Minute
}

// MinCollateral devuelve el colateral mínimo por posición, en USDC.
func (c *Config) MinCollateral() float64 {
	return *c.Strategy.MinCollateral
}

// MaxHold devuelve el tiempo máximo que se mantiene una posición (0 = sin límite).
func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.Strategy.MaxHoldHours * float64(time.Hour))
}

// OpenDelay devuelve la espera entre aperturas consecutivas.
func (c *Config) OpenDelay() time.Duration {
	return time.Duration(*c.Strategy.OpenDelaySeconds) * time.Second
}

// RetryDelay devuelve la espera antes de reintentar tras un sequence mismatch.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Strategy.RetryDelaySeconds) * time.Second
}

// LockStaleAfter devuelve la edad a partir de la cual un lock se considera abandonado.
func (c *Config) LockStaleAfter() time.Duration {
	return time.Duration(c.Storage.LockStaleMinutes) * time.Minute
}

// Timeout devuelve el timeout HTTP de las llamadas a la plataforma.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Perps.TimeoutSeconds) * time.Second
}

// StrategyParams devuelve los umbrales configurados para la estrategia name.
func (c *Config) StrategyParams(name string) map[string]float64 {
	if p, ok := c.Strategy.Params[name]; ok {
		return p
	}
	return map[string]float64{}
}

// Validate rechaza combinaciones imposibles.
func (c *Config) Validate() error {
	s := c.Strategy
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("strategy.name is required"))
	}
	if s.Leverage <= 0 {
		errs = append(errs, fmt.Errorf("strategy.leverage must be > 0, got %v", s.Leverage))
	}
	if s.CollateralFraction < 0 || s.CollateralFraction > 1 {
		errs = append(errs, fmt.Errorf("strategy.collateral_fraction must be in [0, 1], got %v", s.CollateralFraction))
	}
	if s.CollateralFraction == 0 && s.CollateralUSDC <= 0 {
		errs = append(errs, errors.New("one of strategy.collateral_usdc or strategy.collateral_fraction must be > 0"))
	}
	if *s.MinCollateral < 0 {
		errs = append(errs, fmt.Errorf("strategy.min_collateral must be >= 0, got %v", *s.MinCollateral))
	}
	if *s.BlacklistMinutes < 0 {
		errs = append(errs, fmt.Errorf("strategy.blacklist_minutes must be >= 0, got %d", *s.BlacklistMinutes))
	}
	if s.MaxPositions <= 0 {
		errs = append(errs, fmt.Errorf("strategy.max_positions must be > 0, got %d", s.MaxPositions))
	}
	if s.TakeProfitPct < 0 || s.StopLossPct < 0 {
		errs = append(errs, errors.New("strategy.take_profit_pct and stop_loss_pct must be >= 0"))
	}
	if s.MaxHoldHours < 0 {
		errs = append(errs, fmt.Errorf("strategy.max_hold_hours must be >= 0, got %v", s.MaxHoldHours))
	}
	if *s.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("strategy.retry_attempts must be >= 0, got %d", *s.RetryAttempts))
	}
	if *s.OpenDelaySeconds < 0 {
		errs = append(errs, fmt.Errorf("strategy.open_delay_seconds must be >= 0, got %d", *s.OpenDelaySeconds))
	}
	if s.OpenWaitBlocks < 0 {
		errs = append(errs, fmt.Errorf("strategy.open_wait_blocks must be >= 0, got %d", s.OpenWaitBlocks))
	}
	switch c.Storage.HistoryBackend {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.history_backend must be json or sqlite, got %q", c.Storage.HistoryBackend))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ValidateLive comprueba lo que hace falta para operar contra la cadena.
func (c *Config) ValidateLive() error {
	var errs []error
	if c.Perps.PrivateKey == "" {
		errs = append(errs, errors.New("PERPS_PRIVATE_KEY is required for live trading"))
	}
	if c.Perps.LCDBase == "" {
		errs = append(errs, errors.New("perps.lcd_base is required"))
	}
	if c.Perps.GatewayBase == "" {
		errs = append(errs, errors.New("perps.gateway_base is required"))
	}
	if c.Perps.Contract == "" {
		errs = append(errs, errors.New("perps.contract is required"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("STRATEGY"); v != "" {
		cfg.Strategy.Name = v
	}
	// INTERVAL viene de los runners shell, en segundos
	if v := os.Getenv("INTERVAL"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("INTERVAL must be an integer number of seconds: %w", err)
		}
		cfg.Strategy.IntervalSeconds = n
	}
	if v := os.Getenv("PERPS_PRIVATE_KEY"); v != "" {
		cfg.Perps.PrivateKey = v
	}
	if v := os.Getenv("PERPS_LCD"); v != "" {
		cfg.Perps.LCDBase = v
	}
	if v := os.Getenv("PERPS_GATEWAY"); v != "" {
		cfg.Perps.GatewayBase = v
	}
	if v := os.Getenv("PERPS_RPC_WS"); v != "" {
		cfg.Perps.RPCWebsocket = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Storage.CacheDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	s := &cfg.Strategy
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = 300
	}
	if s.Leverage == 0 {
		s.Leverage = 2
	}
	if s.CollateralUSDC == 0 && s.CollateralFraction == 0 {
		s.CollateralUSDC = 10
	}
	if s.MinCollateral == nil {
		s.MinCollateral = floatPtr(1)
	}
	if s.MaxPositions == 0 {
		s.MaxPositions = 3
	}
	if s.BlacklistMinutes == nil {
		s.BlacklistMinutes = intPtr(60)
	}
	if s.OpenDelaySeconds == nil {
		s.OpenDelaySeconds = intPtr(15)
	}
	if s.RetryDelaySeconds <= 0 {
		s.RetryDelaySeconds = 15
	}
	if s.RetryAttempts == nil {
		s.RetryAttempts = intPtr(2)
	}
	if s.HistoryLength <= 0 {
		s.HistoryLength = 200
	}
	if s.StopFile == "" {
		s.StopFile = "STOP"
	}
	if cfg.Perps.CollateralDenom == "" {
		cfg.Perps.CollateralDenom = "uusdc"
	}
	if cfg.Perps.TimeoutSeconds <= 0 {
		cfg.Perps.TimeoutSeconds = 10
	}
	if cfg.Storage.CacheDir == "" {
		cfg.Storage.CacheDir = ".cache"
	}
	if cfg.Storage.HistoryBackend == "" {
		cfg.Storage.HistoryBackend = "json"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = filepath.Join(cfg.Storage.CacheDir, "perpbot.db")
	}
	if cfg.Storage.LockStaleMinutes <= 0 {
		cfg.Storage.LockStaleMinutes = 30
	}
	if cfg.Paper.InitialBalance <= 0 {
		cfg.Paper.InitialBalance = 1000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }
