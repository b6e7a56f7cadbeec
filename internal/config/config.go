package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"phase-gap-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Mesh      MeshConfig      `mapstructure:"mesh"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EngineConfig enumerates every threshold the convergence engine reads.
// Validate rejects combinations that would defeat the hysteresis or
// persistence guarantees.
type EngineConfig struct {
	// Trigger thresholds.
	EnterThresholdDeg float64       `mapstructure:"enter_threshold_deg"`
	ExitThresholdDeg  float64       `mapstructure:"exit_threshold_deg"`
	ClarityThreshold  float64       `mapstructure:"clarity_threshold"`
	ConfirmSamples    int           `mapstructure:"confirm_samples"`
	FreshnessMax      time.Duration `mapstructure:"freshness_max"`

	// Fit window selection.
	WindowMaxDays    int `mapstructure:"window_max_days"`
	WindowMinSamples int `mapstructure:"window_min_samples"`
	FallbackSamples  int `mapstructure:"fallback_samples"`
	MinSpanDays      int `mapstructure:"min_span_days"`
	MaxGapDays       int `mapstructure:"max_gap_days"`

	// Robust fitting.
	TrimIterations int     `mapstructure:"trim_iterations"`
	TrimLowPct     float64 `mapstructure:"trim_low_pct"`
	TrimHighPct    float64 `mapstructure:"trim_high_pct"`
	FitMinSamples  int     `mapstructure:"fit_min_samples"`

	// Projection and validation.
	MaxETADays   float64 `mapstructure:"max_eta_days"`
	RequireTau   bool    `mapstructure:"require_tau"`
	TauAlpha     float64 `mapstructure:"tau_alpha"`
	TauMinPoints int     `mapstructure:"tau_min_points"`

	// Confidence scoring.
	DispersionScaleDays float64 `mapstructure:"dispersion_scale_days"`

	// History retention.
	HistoryCap int `mapstructure:"history_cap"`
}

// IngestConfig covers the upstream sample and clarity endpoints.
type IngestConfig struct {
	SampleURL      string        `mapstructure:"sample_url"`
	ClarityURL     string        `mapstructure:"clarity_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MeshConfig parameterises the diagnostic time-reference mesh.
type MeshConfig struct {
	HTTPPeers      []string      `mapstructure:"http_peers"`
	EthRPCURL      string        `mapstructure:"eth_rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BaselineWindow time.Duration `mapstructure:"baseline_window"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PHASEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "phasewatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70686173))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("engine.enter_threshold_deg", 1.0)
	v.SetDefault("engine.exit_threshold_deg", 1.5)
	v.SetDefault("engine.clarity_threshold", 0.65)
	v.SetDefault("engine.confirm_samples", 3)
	v.SetDefault("engine.freshness_max", "24h")
	v.SetDefault("engine.window_max_days", 300)
	v.SetDefault("engine.window_min_samples", 20)
	v.SetDefault("engine.fallback_samples", 200)
	v.SetDefault("engine.min_span_days", 0)
	v.SetDefault("engine.max_gap_days", 30)
	v.SetDefault("engine.trim_iterations", 2)
	v.SetDefault("engine.trim_low_pct", 5.0)
	v.SetDefault("engine.trim_high_pct", 95.0)
	v.SetDefault("engine.fit_min_samples", 10)
	v.SetDefault("engine.max_eta_days", 36500.0)
	v.SetDefault("engine.require_tau", false)
	v.SetDefault("engine.tau_alpha", 0.05)
	v.SetDefault("engine.tau_min_points", 8)
	v.SetDefault("engine.dispersion_scale_days", 90.0)
	v.SetDefault("engine.history_cap", 5000)

	v.SetDefault("ingest.request_timeout", "10s")
	v.SetDefault("ingest.user_agent", "phasewatcher/1.0")

	v.SetDefault("mesh.request_timeout", "5s")
	v.SetDefault("mesh.baseline_window", "24h")
	v.SetDefault("mesh.http_peers", []string{
		"https://www.google.com",
		"https://www.cloudflare.com",
		"https://github.com",
	})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	e := c.Engine
	if e.EnterThresholdDeg <= 0 {
		return fmt.Errorf("engine.enter_threshold_deg must be greater than zero")
	}
	if e.ExitThresholdDeg <= e.EnterThresholdDeg {
		return fmt.Errorf("engine.exit_threshold_deg must be strictly greater than enter_threshold_deg")
	}
	if e.ClarityThreshold < 0 || e.ClarityThreshold > 1 {
		return fmt.Errorf("engine.clarity_threshold must be within [0,1]")
	}
	if e.ConfirmSamples < 1 {
		return fmt.Errorf("engine.confirm_samples must be at least 1")
	}
	if e.FreshnessMax <= 0 {
		return fmt.Errorf("engine.freshness_max must be greater than zero")
	}
	if e.WindowMinSamples < 2 {
		return fmt.Errorf("engine.window_min_samples must be at least 2")
	}
	if e.FitMinSamples < 2 {
		return fmt.Errorf("engine.fit_min_samples must be at least 2")
	}
	if e.TrimLowPct < 0 || e.TrimHighPct > 100 || e.TrimLowPct >= e.TrimHighPct {
		return fmt.Errorf("engine trim percentiles must satisfy 0 <= low < high <= 100")
	}
	if e.HistoryCap < e.WindowMinSamples {
		return fmt.Errorf("engine.history_cap must not be smaller than window_min_samples")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
