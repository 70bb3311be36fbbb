package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"spacebook/internal/grid"
	"spacebook/internal/timezone"
)

type Config struct {
	Tenant struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"tenant"`

	Grid struct {
		HourStart   int `yaml:"hour_start"`
		HourEnd     int `yaml:"hour_end"`
		SlotMinutes int `yaml:"slot_minutes"`
	} `yaml:"grid"`

	Feed struct {
		// TimeReference is how feed keys are read: utc, local or dual.
		TimeReference   string `yaml:"time_reference"`
		BaseURL         string `yaml:"base_url"`
		APIKey          string `yaml:"api_key"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		MaxConcurrent   int    `yaml:"max_concurrent"`
	} `yaml:"feed"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	API struct {
		ListenPort   int     `yaml:"listen_port"`
		APIKey       string  `yaml:"api_key"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
		Burst        int     `yaml:"burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Booking struct {
		MaxAdvanceDays int `yaml:"max_advance_days"`
	} `yaml:"booking"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	ResourcesConfigPath string `yaml:"resources_config_path"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Tenant.Timezone == "" {
		c.Tenant.Timezone = "UTC"
	}
	if c.Grid.HourStart == 0 && c.Grid.HourEnd == 0 {
		c.Grid.HourStart = grid.DefaultHourStart
		c.Grid.HourEnd = grid.DefaultHourEnd
	}
	if c.Grid.SlotMinutes == 0 {
		c.Grid.SlotMinutes = grid.DefaultSlotMinutes
	}
	if c.Feed.MaxConcurrent <= 0 {
		c.Feed.MaxConcurrent = 8
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/spacebook.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.API.ListenPort == 0 {
		c.API.ListenPort = 8080
	}
	if c.API.RateLimitRPS <= 0 {
		c.API.RateLimitRPS = 20
	}
	if c.API.Burst <= 0 {
		c.API.Burst = 40
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.ResourcesConfigPath == "" {
		c.ResourcesConfigPath = "configs/resources.yaml"
	}
}

// Validate checks the settings that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if _, err := c.Zone(); err != nil {
		return fmt.Errorf("tenant.timezone: %w", err)
	}
	if err := c.GridSpec().Validate(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// GridSpec returns the configured display grid.
func (c *Config) GridSpec() grid.Grid {
	return grid.Grid{HourStart: c.Grid.HourStart, HourEnd: c.Grid.HourEnd, SlotMinutes: c.Grid.SlotMinutes}
}

// Zone returns the tenant zone with the feed time reference.
func (c *Config) Zone() (*timezone.Zone, error) {
	ref, err := timezone.ParseReference(c.Feed.TimeReference)
	if err != nil {
		return nil, err
	}
	return timezone.New(c.Tenant.Timezone, ref)
}

func (c *Config) FeedCacheTTL() time.Duration {
	if c.Feed.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Feed.CacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BookingMaxAdvance() time.Duration {
	if c.Booking.MaxAdvanceDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Booking.MaxAdvanceDays) * 24 * time.Hour
}
