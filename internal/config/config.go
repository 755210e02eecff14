package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"panel-energy/internal/reporting/domain/window"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultUTCOffsetMinutes = 7 * 60
	defaultSamplingInterval = 5 * time.Second
	defaultSettleMinute     = 5
	defaultDayCloseAt       = "07:10"
	defaultLiveInterval     = time.Second
	defaultTopicPrefix      = "panel:raw"
	defaultMaxRangeDays     = 366
)

var (
	// ErrNoSources is returned when no source is configured.
	ErrNoSources = errors.New("config: at least one source is required")
	// ErrDuplicateSource is returned when a source id repeats.
	ErrDuplicateSource = errors.New("config: duplicate source id")
)

// Config is the process configuration.
type Config struct {
	DatabaseURL string      `yaml:"-"`
	HTTPAddr    string      `yaml:"http_addr"`
	Redis       RedisConfig `yaml:"redis"`
	LogLevel    string      `yaml:"log_level"`
	LogFormat   string      `yaml:"log_format"`

	UTCOffsetMinutes   int                `yaml:"utc_offset_minutes"`
	SamplingInterval   time.Duration      `yaml:"sampling_interval"`
	HourlySettleMinute int                `yaml:"hourly_settle_minute"`
	DayCloseAt         string             `yaml:"day_close_at"`
	RetentionDays      int                `yaml:"retention_days"`
	MaxRangeDays       int                `yaml:"max_range_days"`
	Shifts             []window.ShiftSpec `yaml:"shifts"`
	Sources            []SourceConfig     `yaml:"sources"`
	Live               LiveConfig         `yaml:"live"`
	ReportWebhookURL   string             `yaml:"report_webhook_url"`
}

// RedisConfig configures the live publish sink. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
}

// SourceConfig describes one panel. Shifts override the global shifts.
// CapacityKW is the installed capacity used for utilization.
type SourceConfig struct {
	ID         string             `yaml:"id"`
	View       string             `yaml:"view"`
	CapacityKW float64            `yaml:"capacity_kw"`
	Shifts     []window.ShiftSpec `yaml:"shifts"`
}

// LiveConfig configures the live change broadcaster.
type LiveConfig struct {
	Interval    time.Duration `yaml:"interval"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Autostart   []string      `yaml:"autostart"`
}

// Load reads the optional YAML file named by REPORTING_CONFIG and applies
// environment overrides on top.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("REPORTING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTPAddr:           defaultHTTPAddr,
		LogLevel:           "info",
		LogFormat:          "json",
		UTCOffsetMinutes:   defaultUTCOffsetMinutes,
		SamplingInterval:   defaultSamplingInterval,
		HourlySettleMinute: defaultSettleMinute,
		DayCloseAt:         defaultDayCloseAt,
		MaxRangeDays:       defaultMaxRangeDays,
		Shifts:             window.DefaultShifts(),
		Live: LiveConfig{
			Interval:    defaultLiveInterval,
			TopicPrefix: defaultTopicPrefix,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenvDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.UTCOffsetMinutes = getenvIntDefault("UTC_OFFSET_MINUTES", cfg.UTCOffsetMinutes)
	cfg.MaxRangeDays = getenvIntDefault("MAX_RANGE_DAYS", cfg.MaxRangeDays)
	cfg.ReportWebhookURL = getenvDefault("REPORT_WEBHOOK_URL", cfg.ReportWebhookURL)
	if sources := parseSources(os.Getenv("SOURCES")); len(sources) > 0 {
		cfg.Sources = sources
	}
	if autostart := splitCSV(os.Getenv("LIVE_AUTOSTART")); len(autostart) > 0 {
		cfg.Live.Autostart = autostart
	}
}

// Validate checks shift clocks, shift indexes and the source list.
func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	if c.HourlySettleMinute < 0 || c.HourlySettleMinute > 59 {
		return fmt.Errorf("config: hourly_settle_minute %d out of range", c.HourlySettleMinute)
	}
	if _, err := window.ParseClock(c.DayCloseAt); err != nil {
		return fmt.Errorf("config: day_close_at: %w", err)
	}
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("config: sampling_interval must be positive")
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("config: retention_days must not be negative")
	}
	if c.MaxRangeDays < 0 {
		return fmt.Errorf("config: max_range_days must not be negative")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if strings.TrimSpace(src.ID) == "" {
			return fmt.Errorf("config: source id required")
		}
		if seen[src.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateSource, src.ID)
		}
		seen[src.ID] = true
		if src.CapacityKW < 0 {
			return fmt.Errorf("config: source %s: capacity_kw must not be negative", src.ID)
		}
		if _, err := window.NewSchedule(c.UTCOffsetMinutes, c.shiftsFor(src)); err != nil {
			return fmt.Errorf("config: source %s: %w", src.ID, err)
		}
	}
	for _, id := range c.Live.Autostart {
		if !seen[id] {
			return fmt.Errorf("config: live autostart source %s is not configured", id)
		}
	}
	return nil
}

// SourceIDs returns the configured source ids in order.
func (c Config) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for _, src := range c.Sources {
		ids = append(ids, src.ID)
	}
	return ids
}

// Views maps source ids to their telemetry view names.
func (c Config) Views() map[string]string {
	views := make(map[string]string, len(c.Sources))
	for _, src := range c.Sources {
		view := src.View
		if view == "" {
			view = src.ID
		}
		views[src.ID] = view
	}
	return views
}

// Schedules builds the shift schedule of every source.
func (c Config) Schedules() (map[string]*window.Schedule, error) {
	schedules := make(map[string]*window.Schedule, len(c.Sources))
	for _, src := range c.Sources {
		schedule, err := window.NewSchedule(c.UTCOffsetMinutes, c.shiftsFor(src))
		if err != nil {
			return nil, fmt.Errorf("config: source %s: %w", src.ID, err)
		}
		schedules[src.ID] = schedule
	}
	return schedules, nil
}

func (c Config) shiftsFor(src SourceConfig) []window.ShiftSpec {
	if len(src.Shifts) > 0 {
		return src.Shifts
	}
	return c.Shifts
}

// parseSources reads "id[=view],..." lists.
func parseSources(value string) []SourceConfig {
	var sources []SourceConfig
	for _, part := range splitCSV(value) {
		id, view, _ := strings.Cut(part, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		sources = append(sources, SourceConfig{ID: id, View: strings.TrimSpace(view)})
	}
	return sources
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
