package statistic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	telemetry "panel-energy/internal/telemetry/domain"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusInterim, StatusFor("2025-11-14", "2025-11-14", false))
	assert.Equal(t, StatusInterim, StatusFor("2025-11-14", "2025-11-14", true))
	assert.Equal(t, StatusFinal, StatusFor("2025-11-13", "2025-11-14", true))
	assert.Equal(t, StatusNotStarted, StatusFor("2025-11-13", "2025-11-14", false))
	assert.Equal(t, StatusNotStarted, StatusFor("2025-11-15", "2025-11-14", true))
}

func TestWithShift_KeepsOrderAndReplaces(t *testing.T) {
	r := DailyReport{SourceID: "LVMDP_1", BusinessDate: "2025-11-14"}
	r = r.WithShift(ShiftAggregate{Shift: 3})
	r = r.WithShift(ShiftAggregate{Shift: 1})
	r = r.WithShift(ShiftAggregate{Shift: 2})
	r = r.WithShift(ShiftAggregate{Shift: 1, Summary: Summary{SampleCount: 7}})

	assert.Len(t, r.Shifts, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{r.Shifts[0].Shift, r.Shifts[1].Shift, r.Shifts[2].Shift})
	s1, ok := r.Shift(1)
	assert.True(t, ok)
	assert.Equal(t, 7, s1.SampleCount)
}

func TestSumHourlyEnergy_OnlyListedBuckets(t *testing.T) {
	hours := []HourlyAggregate{
		{BusinessDate: "2025-11-14", Hour: 22, Summary: Summary{TotalEnergyKWh: 1.5}},
		{BusinessDate: "2025-11-14", Hour: 23, Summary: Summary{TotalEnergyKWh: 2}},
		{BusinessDate: "2025-11-15", Hour: 0, Summary: Summary{TotalEnergyKWh: 4}},
		{BusinessDate: "2025-11-15", Hour: 8, Summary: Summary{TotalEnergyKWh: 100}},
	}
	buckets := []Bucket{{"2025-11-14", 22}, {"2025-11-14", 23}, {"2025-11-15", 0}, {"2025-11-15", 1}}
	assert.InDelta(t, 7.5, SumHourlyEnergy(hours, buckets), 1e-9)
}

func TestRollupShift_EnergyFromHoursStatsFromWindow(t *testing.T) {
	start := base.Add(7*time.Hour + time.Minute)
	end := base.Add(14*time.Hour + 31*time.Minute)
	readings := []telemetry.Reading{
		powerAt(6*time.Hour, 999),
		powerAt(8*time.Hour, 10),
		powerAt(9*time.Hour, 30),
	}
	hours := []HourlyAggregate{
		{BusinessDate: "2025-11-14", Hour: 8, Summary: Summary{TotalEnergyKWh: 20}},
		{BusinessDate: "2025-11-14", Hour: 9, Summary: Summary{TotalEnergyKWh: 5}},
	}
	buckets := []Bucket{{"2025-11-14", 7}, {"2025-11-14", 8}, {"2025-11-14", 9}}

	got := RollupShift("LVMDP_1", "2025-11-14", 1, start, end, readings, hours, buckets, time.Hour, base)
	assert.Equal(t, 2, got.SampleCount)
	assert.InDelta(t, 25, got.TotalEnergyKWh, 1e-9)
	assert.InDelta(t, 20, got.AvgPowerKW, 1e-9)
	assert.Equal(t, ShiftKey{SourceID: "LVMDP_1", BusinessDate: "2025-11-14", Shift: 1}, got.Key())
}

func TestRollupDay_StatisticsFromCalendarHours(t *testing.T) {
	report := DailyReport{SourceID: "LVMDP_1", BusinessDate: "2025-11-14"}
	report = report.WithShift(ShiftAggregate{Shift: 1, Summary: Summary{SampleCount: 3}})
	report = report.WithShift(ShiftAggregate{Shift: 2, Summary: Summary{SampleCount: 1}})
	hours := []HourlyAggregate{
		{SourceID: "LVMDP_1", BusinessDate: "2025-11-14", Hour: 8, CompletenessPct: 100, Summary: Summary{
			SampleCount: 3, TotalEnergyKWh: 30, AvgPowerKW: 30, PeakPowerKW: 50, PeakAt: base.Add(8 * time.Hour),
			AvgCurrent: 40, AvgPowerFactor: 0.9, AvgVoltageLL: 400,
		}},
		{SourceID: "LVMDP_1", BusinessDate: "2025-11-14", Hour: 9, CompletenessPct: 20, Summary: Summary{
			SampleCount: 1, TotalEnergyKWh: 10, AvgPowerKW: 10, PeakPowerKW: 50, PeakAt: base.Add(9 * time.Hour),
			AvgCurrent: 20, AvgPowerFactor: 0.5, AvgVoltageLL: 380,
		}},
		{SourceID: "LVMDP_1", BusinessDate: "2025-11-15", Hour: 0, Summary: Summary{
			SampleCount: 5, TotalEnergyKWh: 999, PeakPowerKW: 999, PeakAt: base.Add(24 * time.Hour),
		}},
		{SourceID: "LVMDP_2", BusinessDate: "2025-11-14", Hour: 8, Summary: Summary{
			SampleCount: 5, TotalEnergyKWh: 999, PeakPowerKW: 999, PeakAt: base.Add(8 * time.Hour),
		}},
	}

	got := RollupDay(report, hours)
	assert.InDelta(t, 40, got.TotalEnergyKWh, 1e-9)
	assert.Equal(t, 4, got.SampleCount)
	assert.InDelta(t, 50, got.PeakPowerKW, 1e-9)
	assert.True(t, got.PeakAt.Equal(base.Add(8*time.Hour)), "earliest hour wins a tie")
	assert.InDelta(t, 25, got.AvgPowerKW, 1e-9)
	assert.InDelta(t, 35, got.AvgCurrent, 1e-9)
	assert.InDelta(t, 0.8, got.AvgPowerFactor, 1e-9)
	assert.InDelta(t, 395, got.AvgVoltageLL, 1e-9)
	assert.InDelta(t, 5, got.CompletenessPct, 1e-9)
}

func TestRollupDay_NoHoursLeavesZeroStatistics(t *testing.T) {
	got := RollupDay(DailyReport{SourceID: "LVMDP_1", BusinessDate: "2025-11-14"}, nil)
	assert.Equal(t, DayStats{}, got.DayStats)
	assert.Zero(t, got.TotalEnergyKWh)
}
