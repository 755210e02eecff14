package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panel-energy/internal/reporting/domain/statistic"
	"panel-energy/internal/reporting/domain/window"
	"panel-energy/internal/reporting/infrastructure/memory"
)

func TestScheduler_Tasks(t *testing.T) {
	svc := newService(t, newStubSource(), memory.NewReportStore(), local("2024-03-01", "12:00"), "p1", "p2")
	sched, err := NewScheduler(svc, SchedulerConfig{HourlySettleMinute: 5, RetentionDays: 30}, nil)
	require.NoError(t, err)

	tasks := sched.Tasks()
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	assert.Equal(t, []string{
		"hourly",
		"shift-1-end@14:31",
		"shift-2-end@22:01",
		"shift-3-end@07:01",
		"day-close",
		"retention",
	}, names)

	now := local("2024-03-01", "12:00")
	assertInstant(t, local("2024-03-01", "12:05"), tasks[0].Trigger.Next(now))
	assertInstant(t, local("2024-03-01", "14:31"), tasks[1].Trigger.Next(now))
	assertInstant(t, local("2024-03-02", "07:01"), tasks[3].Trigger.Next(now))
	assertInstant(t, local("2024-03-02", "07:10"), tasks[4].Trigger.Next(now))
	assertInstant(t, local("2024-03-02", "07:40"), tasks[5].Trigger.Next(now))
}

func TestScheduler_RejectsBadConfig(t *testing.T) {
	svc := newService(t, newStubSource(), memory.NewReportStore(), local("2024-03-01", "12:00"), "p1")
	_, err := NewScheduler(svc, SchedulerConfig{HourlySettleMinute: 60}, nil)
	assert.Error(t, err)
	_, err = NewScheduler(svc, SchedulerConfig{DayCloseAt: "7:10"}, nil)
	assert.True(t, window.IsValidation(err))
	_, err = NewScheduler(nil, SchedulerConfig{}, nil)
	assert.Error(t, err)
}

func TestScheduler_RunsPreviousHourAndDayClose(t *testing.T) {
	ctx := context.Background()
	src := newStubSource()
	src.add("p1", local("2024-03-01", "11:00"), 10)
	src.add("p1", local("2024-03-01", "11:30"), 10)
	store := memory.NewReportStore()
	svc := newService(t, src, store, local("2024-03-01", "12:05"), "p1")
	sched, err := NewScheduler(svc, SchedulerConfig{HourlySettleMinute: 5}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.runHourly(ctx, local("2024-03-01", "12:05")))
	hours, err := store.ListHourly(ctx, "p1", "2024-03-01", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.Equal(t, 11, hours[0].Hour)

	require.NoError(t, sched.runDayClose(ctx, local("2024-03-02", "07:10")))
	report, err := store.GetByDate(ctx, "p1", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, report.Shifts, 3)
	assert.InDelta(t, 5.0, report.TotalEnergyKWh, 1e-9)

	_, err = store.GetByDate(ctx, "p1", "2024-03-02")
	assert.ErrorIs(t, err, statistic.ErrNotFound)
}

func assertInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}
