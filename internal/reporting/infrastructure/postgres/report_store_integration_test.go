package postgres

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-energy/internal/reporting/domain/statistic"
)

func TestReportStore_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, applyMigrations(db))

	ctx := context.Background()
	sourceID := "panel-integration-001"
	for _, table := range []string{"hourly_reports", "daily_reports"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE source_id = $1", sourceID)
		require.NoError(t, err)
	}

	store, err := NewReportStore(db)
	require.NoError(t, err)
	updated := time.Date(2024, 3, 1, 1, 5, 0, 0, time.UTC)

	hour := statistic.HourlyAggregate{SourceID: sourceID, BusinessDate: "2024-03-01", Hour: 0, UpdatedAt: updated}
	hour.SampleCount = 2
	hour.TotalEnergyKWh = 20
	hour.AvgPowerKW = 20
	hour.FirstAt = updated.Add(-time.Hour)
	require.NoError(t, store.UpsertHourly(ctx, hour))
	require.NoError(t, store.UpsertHourly(ctx, hour))

	hours, err := store.ListHourly(ctx, sourceID, "2024-03-01", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.Equal(t, 20.0, hours[0].TotalEnergyKWh)
	assert.True(t, hours[0].FirstAt.Equal(hour.FirstAt))
	assert.True(t, hours[0].PeakAt.IsZero())

	shift := statistic.ShiftAggregate{
		SourceID:     sourceID,
		BusinessDate: "2024-03-01",
		Shift:        1,
		WindowStart:  updated,
		WindowEnd:    updated.Add(7*time.Hour + 30*time.Minute),
		UpdatedAt:    updated,
	}
	shift.TotalEnergyKWh = 15
	require.NoError(t, store.UpsertShift(ctx, shift))

	report, err := store.GetByDate(ctx, sourceID, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, report.Shifts, 1)
	assert.Equal(t, 15.0, report.Shifts[0].TotalEnergyKWh)
	id := report.ID

	report.TotalEnergyKWh = 20
	report.PeakPowerKW = 35
	report.PeakAt = updated.Add(-30 * time.Minute)
	report.CompletenessPct = 4.2
	require.NoError(t, store.UpsertDailyReport(ctx, *report))
	all, err := store.GetAll(ctx, sourceID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, id, all[0].ID)
	assert.Equal(t, 20.0, all[0].TotalEnergyKWh)
	assert.Equal(t, 35.0, all[0].PeakPowerKW)
	assert.True(t, all[0].PeakAt.Equal(report.PeakAt))
	assert.InDelta(t, 4.2, all[0].CompletenessPct, 1e-9)

	ranged, err := store.ListDaily(ctx, sourceID, "2024-03-01", "2024-03-31")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Len(t, ranged[0].Shifts, 1)
	ranged, err = store.ListDaily(ctx, sourceID, "2024-03-02", "2024-03-31")
	require.NoError(t, err)
	assert.Empty(t, ranged)

	_, err = store.GetByDate(ctx, sourceID, "2024-03-02")
	assert.ErrorIs(t, err, statistic.ErrNotFound)

	_, err = store.DeleteOlderThan(ctx, "2024-03-02")
	require.NoError(t, err)
	_, err = store.GetByDate(ctx, sourceID, "2024-03-01")
	assert.ErrorIs(t, err, statistic.ErrNotFound)
}

func applyMigrations(db *sql.DB) error {
	files, err := filepath.Glob(filepath.Join(projectRoot(), "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..")
}
