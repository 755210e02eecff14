package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REPORTING_CONFIG", "DATABASE_URL", "PG_DSN", "HTTP_ADDR", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "LOG_LEVEL", "LOG_FORMAT", "UTC_OFFSET_MINUTES", "SOURCES", "LIVE_AUTOSTART",
		"REPORT_WEBHOOK_URL", "MAX_RANGE_DAYS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_YAMLWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "reporting.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
utc_offset_minutes: 420
sampling_interval: 10s
hourly_settle_minute: 7
retention_days: 90
max_range_days: 31
shifts:
  - {index: 1, start: "07:01", end: "14:30"}
  - {index: 2, start: "14:31", end: "22:00"}
  - {index: 3, start: "22:01", end: "07:00"}
sources:
  - id: panel-a
    view: v_panel_a
    capacity_kw: 1250
  - id: panel-b
    shifts:
      - {index: 1, start: "06:00", end: "17:59"}
      - {index: 2, start: "18:00", end: "05:59"}
live:
  interval: 2s
  autostart: [panel-a]
`), 0o600))
	t.Setenv("REPORTING_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("PG_DSN", "postgres://localhost/panel")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres://localhost/panel", cfg.DatabaseURL)
	assert.Equal(t, 10*time.Second, cfg.SamplingInterval)
	assert.Equal(t, 7, cfg.HourlySettleMinute)
	assert.Equal(t, "07:10", cfg.DayCloseAt)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.Equal(t, 31, cfg.MaxRangeDays)
	assert.InDelta(t, 1250, cfg.Sources[0].CapacityKW, 1e-9)
	assert.Zero(t, cfg.Sources[1].CapacityKW)
	assert.Equal(t, 2*time.Second, cfg.Live.Interval)
	assert.Equal(t, "panel:raw", cfg.Live.TopicPrefix)
	assert.Equal(t, []string{"panel-a", "panel-b"}, cfg.SourceIDs())
	assert.Equal(t, map[string]string{"panel-a": "v_panel_a", "panel-b": "panel-b"}, cfg.Views())

	schedules, err := cfg.Schedules()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, schedules["panel-a"].ShiftIndexes())
	assert.Equal(t, []int{1, 2}, schedules["panel-b"].ShiftIndexes())
}

func TestLoad_SourcesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOURCES", "lvmdp1=v_lvmdp1, lvmdp2")
	t.Setenv("UTC_OFFSET_MINUTES", "480")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 480, cfg.UTCOffsetMinutes)
	assert.Equal(t, 366, cfg.MaxRangeDays)
	assert.Equal(t, map[string]string{"lvmdp1": "v_lvmdp1", "lvmdp2": "lvmdp2"}, cfg.Views())
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.ErrorIs(t, cfg.Validate(), ErrNoSources)

	cfg.Sources = []SourceConfig{{ID: "a"}, {ID: "a"}}
	assert.ErrorIs(t, cfg.Validate(), ErrDuplicateSource)

	cfg.Sources = []SourceConfig{{ID: "a", Shifts: nil}}
	cfg.Shifts[0].End = "25:00"
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Sources = []SourceConfig{{ID: "a"}}
	cfg.Shifts[1].Index = 1
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Sources = []SourceConfig{{ID: "a"}}
	cfg.Live.Autostart = []string{"b"}
	assert.Error(t, cfg.Validate())

	cfg.Live.Autostart = []string{"a"}
	assert.NoError(t, cfg.Validate())

	cfg.MaxRangeDays = -1
	assert.Error(t, cfg.Validate())
	cfg.MaxRangeDays = 0
	assert.NoError(t, cfg.Validate())

	cfg.Sources = []SourceConfig{{ID: "a", CapacityKW: -5}}
	assert.Error(t, cfg.Validate())
}

func TestLoad_MaxRangeDaysFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOURCES", "lvmdp1")
	t.Setenv("MAX_RANGE_DAYS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.MaxRangeDays)
}
