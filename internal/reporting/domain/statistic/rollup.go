package statistic

import (
	"time"

	telemetry "panel-energy/internal/telemetry/domain"
)

// Bucket identifies an hour bucket by calendar date and hour.
type Bucket struct {
	Date string
	Hour int
}

// SumHourlyEnergy sums TotalEnergyKWh over the hourly aggregates whose
// bucket is listed. Buckets without an aggregate contribute zero.
func SumHourlyEnergy(hours []HourlyAggregate, buckets []Bucket) float64 {
	wanted := make(map[Bucket]bool, len(buckets))
	for _, b := range buckets {
		wanted[b] = true
	}
	var sum float64
	for _, h := range hours {
		b := Bucket{Date: h.BusinessDate, Hour: h.Hour}
		if wanted[b] {
			sum += h.TotalEnergyKWh
			delete(wanted, b)
		}
	}
	return sum
}

// RollupShift builds a shift aggregate. Statistics come from the readings
// inside the window; energy comes from the hourly totals.
func RollupShift(
	sourceID, businessDate string,
	shift int,
	windowStart, windowEnd time.Time,
	readings []telemetry.Reading,
	hours []HourlyAggregate,
	buckets []Bucket,
	interval time.Duration,
	updatedAt time.Time,
) ShiftAggregate {
	inWindow := make([]telemetry.Reading, 0, len(readings))
	for _, r := range readings {
		if !r.At.Before(windowStart) && r.At.Before(windowEnd) {
			inWindow = append(inWindow, r)
		}
	}
	summary := Aggregate(inWindow)
	summary.TotalEnergyKWh = SumHourlyEnergy(hours, buckets)

	return ShiftAggregate{
		SourceID:        sourceID,
		BusinessDate:    businessDate,
		Shift:           shift,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		Summary:         summary,
		CompletenessPct: Completeness(summary.SampleCount, windowEnd.Sub(windowStart), interval),
		UpdatedAt:       updatedAt,
	}
}

// RollupDay fills the daily totals of a report. Energy is the sum of the
// hourly totals of the business date's calendar hours; the day statistics
// come from the same hours.
func RollupDay(report DailyReport, hours []HourlyAggregate) DailyReport {
	var (
		energy, completeness     float64
		power, current, pf, volt weighted
		stats                    DayStats
		hasPeak                  bool
	)
	for _, h := range hours {
		if h.BusinessDate != report.BusinessDate || h.SourceID != report.SourceID {
			continue
		}
		energy += h.TotalEnergyKWh
		completeness += h.CompletenessPct
		if h.SampleCount == 0 {
			continue
		}
		if !h.PeakAt.IsZero() && (!hasPeak || h.PeakPowerKW > stats.PeakPowerKW) {
			stats.PeakPowerKW, stats.PeakAt, hasPeak = h.PeakPowerKW, h.PeakAt, true
		}
		power.add(h.AvgPowerKW, h.SampleCount)
		current.add(h.AvgCurrent, h.SampleCount)
		pf.add(h.AvgPowerFactor, h.SampleCount)
		volt.add(h.AvgVoltageLL, h.SampleCount)
	}
	stats.AvgPowerKW = power.value()
	stats.AvgCurrent = current.value()
	stats.AvgPowerFactor = pf.value()
	stats.AvgVoltageLL = volt.value()
	stats.CompletenessPct = completeness / 24

	samples := 0
	for _, s := range report.Shifts {
		samples += s.SampleCount
	}
	report.TotalEnergyKWh = energy
	report.SampleCount = samples
	report.DayStats = stats
	return report
}

// weighted is a mean where each value carries a sample-count weight.
type weighted struct {
	sum    float64
	weight float64
}

func (w *weighted) add(v float64, n int) {
	if n <= 0 {
		return
	}
	w.sum += v * float64(n)
	w.weight += float64(n)
}

func (w weighted) value() float64 {
	if w.weight == 0 {
		return 0
	}
	return w.sum / w.weight
}
