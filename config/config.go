package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de squarebot.
type Config struct {
	Sync        SyncConfig        `yaml:"sync"`
	Provider    ProviderConfig    `yaml:"provider"`
	Storage     StorageConfig     `yaml:"storage"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// SyncConfig controla el loop del poller.
type SyncConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	FetchHorizonHours   float64 `yaml:"fetch_horizon_hours"` // pools sin bloquear más lejos no se consultan
	Workers             int     `yaml:"workers"`
	AutoLockLeadMinutes int     `yaml:"auto_lock_lead_minutes"` // 0 = sin auto-lock
}

// ProviderConfig apunta al feed de marcadores.
type ProviderConfig struct {
	BaseURL string  `yaml:"base_url"`
	Rate    float64 `yaml:"rate"` // requests por segundo
}

// StorageConfig controla dónde se persisten los pools.
type StorageConfig struct {
	Driver   string `yaml:"driver"`    // sqlite | postgres
	DSN      string `yaml:"dsn"`       // ruta SQLite, ":memory:" o DSN de Postgres
	MaxConns int    `yaml:"max_conns"` // solo postgres
}

// CoordinatorConfig controla los reintentos ante conflictos de versión.
type CoordinatorConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
}

// MetricsConfig expone /metrics si Addr no está vacío.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML.
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

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// SyncInterval devuelve el intervalo del poller como time.Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// FetchHorizon devuelve el horizonte de la regla de skip.
func (c *Config) FetchHorizon() time.Duration {
	return time.Duration(c.Sync.FetchHorizonHours * float64(time.Hour))
}

// AutoLockLead devuelve con cuánta antelación se bloquean los pools auto_lock.
func (c *Config) AutoLockLead() time.Duration {
	return time.Duration(c.Sync.AutoLockLeadMinutes) * time.Minute
}

// RetryBackoff devuelve el backoff base del coordinator.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Coordinator.RetryBackoffMS) * time.Millisecond
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SQUARES_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SQUARES_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SQUARES_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("SQUARES_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SQUARES_SYNC_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SQUARES_SYNC_WORKERS: %w", err)
		}
		cfg.Sync.Workers = n
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 30
	}
	if cfg.Sync.FetchHorizonHours <= 0 {
		cfg.Sync.FetchHorizonHours = 2
	}
	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://site.api.espn.com/apis/site/v2/sports"
	}
	if cfg.Provider.Rate <= 0 {
		cfg.Provider.Rate = 2
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "squares.db"
	}
	if cfg.Storage.MaxConns <= 0 {
		cfg.Storage.MaxConns = 8
	}
	if cfg.Coordinator.MaxAttempts <= 0 {
		cfg.Coordinator.MaxAttempts = 5
	}
	if cfg.Coordinator.RetryBackoffMS <= 0 {
		cfg.Coordinator.RetryBackoffMS = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
