package statistic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(source, date string, energy, avg, peak float64, peakAt time.Time, samples int, completeness float64) DailyReport {
	return DailyReport{
		SourceID:       source,
		BusinessDate:   date,
		TotalEnergyKWh: energy,
		SampleCount:    samples,
		DayStats: DayStats{
			PeakPowerKW:     peak,
			PeakAt:          peakAt,
			AvgPowerKW:      avg,
			AvgPowerFactor:  0.9,
			CompletenessPct: completeness,
		},
	}
}

func hour(source, date string, h int, avg float64) HourlyAggregate {
	return HourlyAggregate{SourceID: source, BusinessDate: date, Hour: h, Summary: Summary{SampleCount: 10, AvgPowerKW: avg}}
}

func TestSummarizePeriod_PlantTotals(t *testing.T) {
	inputs := []PeriodInput{
		{
			SourceID:   "LVMDP_2",
			CapacityKW: 1000,
			Days: []DailyReport{
				day("LVMDP_2", "2025-11-14", 100, 50, 90, base.Add(9*time.Hour), 100, 100),
			},
			Hours: []HourlyAggregate{
				hour("LVMDP_2", "2025-11-14", 9, 60),
				hour("LVMDP_2", "2025-11-14", 10, 80),
			},
		},
		{
			SourceID:   "LVMDP_1",
			CapacityKW: 1000,
			Days: []DailyReport{
				day("LVMDP_1", "2025-11-14", 200, 100, 150, base.Add(8*time.Hour), 100, 80),
				day("LVMDP_1", "2025-11-15", 100, 40, 160, base.Add(32*time.Hour), 300, 20),
			},
			Hours: []HourlyAggregate{
				hour("LVMDP_1", "2025-11-14", 9, 100),
				hour("LVMDP_1", "2025-11-14", 10, 70),
			},
		},
	}

	got := SummarizePeriod("week", "2025-11-14", "2025-11-20", 7, inputs)
	assert.Equal(t, "week", got.Period)
	assert.InDelta(t, 400, got.TotalEnergyKWh, 1e-9)
	assert.InDelta(t, 2000, got.InstalledCapacityKW, 1e-9)
	assert.Equal(t, 500, got.SampleCount)

	require.Len(t, got.Sources, 2)
	first, second := got.Sources[0], got.Sources[1]
	assert.Equal(t, "LVMDP_1", first.SourceID)
	assert.Equal(t, 2, first.Days)
	assert.InDelta(t, 55, first.AvgPowerKW, 1e-9)
	assert.InDelta(t, 160, first.PeakPowerKW, 1e-9)
	assert.True(t, first.PeakAt.Equal(base.Add(32*time.Hour)))
	assert.InDelta(t, 75, first.SharePct, 1e-9)
	assert.InDelta(t, 100.0/7, first.CompletenessPct, 1e-9)
	assert.False(t, first.Online)
	assert.InDelta(t, 5.5, first.UtilizationPct, 1e-9)
	assert.Equal(t, "LVMDP_2", second.SourceID)
	assert.InDelta(t, 25, second.SharePct, 1e-9)

	// Hour 9 is 160 kW across both panels and hour 10 is 150 kW.
	assert.InDelta(t, 160, got.PeakDemandKW, 1e-9)
	assert.Equal(t, "2025-11-14", got.PeakDemandDate)
	assert.Equal(t, 9, got.PeakDemandHour)
	assert.InDelta(t, 155, got.AvgPowerKW, 1e-9)
	assert.InDelta(t, 96.875, got.LoadFactorPct, 1e-9)
	assert.InDelta(t, 7.75, got.UtilizationPct, 1e-9)
	assert.InDelta(t, 0.9, got.AvgPowerFactor, 1e-9)
}

func TestSummarizePeriod_EmptyInputsStayZero(t *testing.T) {
	got := SummarizePeriod("day", "2025-11-14", "2025-11-14", 1, []PeriodInput{{SourceID: "LVMDP_1"}})
	assert.Zero(t, got.TotalEnergyKWh)
	assert.Zero(t, got.PeakDemandKW)
	assert.Zero(t, got.LoadFactorPct)
	assert.Zero(t, got.UtilizationPct)
	require.Len(t, got.Sources, 1)
	assert.Zero(t, got.Sources[0].SharePct)
	assert.Empty(t, got.PeakDemandDate)
}

func TestPeriodComparison(t *testing.T) {
	previous := Totals([]PeriodInput{{
		SourceID: "LVMDP_1",
		Days:     []DailyReport{day("LVMDP_1", "2025-11-13", 80, 0, 0, time.Time{}, 0, 0)},
		Hours:    []HourlyAggregate{hour("LVMDP_1", "2025-11-13", 3, 40), hour("LVMDP_2", "2025-11-13", 3, 999)},
	}})
	assert.Equal(t, PeriodTotals{TotalEnergyKWh: 80, PeakDemandKW: 40}, previous)

	current := PeriodSummary{PeriodTotals: PeriodTotals{TotalEnergyKWh: 100, PeakDemandKW: 30}}.CompareWith(previous)
	assert.InDelta(t, 25, current.Comparison.EnergyChangePct, 1e-9)
	assert.InDelta(t, -25, current.Comparison.PeakChangePct, 1e-9)
	assert.Equal(t, previous, current.Comparison.Previous)

	fresh := PeriodSummary{PeriodTotals: PeriodTotals{TotalEnergyKWh: 100}}.CompareWith(PeriodTotals{})
	assert.Zero(t, fresh.Comparison.EnergyChangePct)
}
