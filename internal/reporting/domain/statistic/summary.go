package statistic

import (
	"math"
	"sort"
	"time"

	telemetry "panel-energy/internal/telemetry/domain"
)

// Summary is the statistical result over the readings of one window.
// Every field is zero when SampleCount is zero.
type Summary struct {
	SampleCount    int       `json:"sampleCount"`
	TotalEnergyKWh float64   `json:"totalEnergyKwh"`
	AvgPowerKW     float64   `json:"avgPowerKw"`
	PeakPowerKW    float64   `json:"peakPowerKw"`
	PeakAt         time.Time `json:"peakAt,omitempty"`
	AvgCurrent     float64   `json:"avgCurrent"`
	MinCurrent     float64   `json:"minCurrent"`
	MaxCurrent     float64   `json:"maxCurrent"`
	AvgPowerFactor float64   `json:"avgPowerFactor"`
	AvgVoltageLL   float64   `json:"avgVoltageLL"`
	AvgVoltageLN   float64   `json:"avgVoltageLN"`
	AvgFrequency   float64   `json:"avgFrequency"`
	FirstAt        time.Time `json:"firstAt,omitempty"`
	LastAt         time.Time `json:"lastAt,omitempty"`
}

type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.count++
}

func (m mean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// Aggregate computes energy and statistics over readings of one source and
// one window. Energy is integrated with the trapezoidal rule between
// consecutive samples carrying a valid power value, so irregular intervals
// and gaps are weighted by their actual duration.
//
// Average current is the mean over samples of each sample's mean valid phase
// current. Min and max current track individual valid phase values.
func Aggregate(readings []telemetry.Reading) Summary {
	if len(readings) == 0 {
		return Summary{}
	}
	sorted := make([]telemetry.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	var (
		summary                   Summary
		power, current, pf        mean
		voltageLL, voltageLN, frq mean
		prevPower                 float64
		prevAt                    time.Time
		hasPrev, hasCurrent       bool
		hasPeak                   bool
	)
	for _, r := range sorted {
		contributed := false

		if p, ok := telemetry.Value(r.PowerKW); ok {
			if hasPrev {
				hours := r.At.Sub(prevAt).Hours()
				summary.TotalEnergyKWh += (p + prevPower) / 2 * hours
			}
			prevPower, prevAt, hasPrev = p, r.At, true
			power.add(p)
			if !hasPeak || p > summary.PeakPowerKW {
				summary.PeakPowerKW, summary.PeakAt, hasPeak = p, r.At, true
			}
			contributed = true
		}

		if phases := r.ValidPhaseCurrents(); len(phases) > 0 {
			var sum float64
			for _, v := range phases {
				sum += v
				if !hasCurrent || v < summary.MinCurrent {
					summary.MinCurrent = v
				}
				if !hasCurrent || v > summary.MaxCurrent {
					summary.MaxCurrent = v
				}
				hasCurrent = true
			}
			current.add(sum / float64(len(phases)))
			contributed = true
		}

		if v, ok := telemetry.Value(r.PowerFactor); ok {
			pf.add(v)
			contributed = true
		}
		if v, ok := telemetry.Value(r.VoltageLL); ok {
			voltageLL.add(v)
			contributed = true
		}
		if v, ok := telemetry.Value(r.VoltageLN); ok {
			voltageLN.add(v)
			contributed = true
		}
		if v, ok := telemetry.Value(r.FrequencyHz); ok {
			frq.add(v)
			contributed = true
		}

		if !contributed {
			continue
		}
		if summary.SampleCount == 0 {
			summary.FirstAt = r.At
		}
		summary.LastAt = r.At
		summary.SampleCount++
	}

	if summary.SampleCount == 0 {
		return Summary{}
	}
	summary.AvgPowerKW = power.value()
	summary.AvgCurrent = current.value()
	summary.AvgPowerFactor = pf.value()
	summary.AvgVoltageLL = voltageLL.value()
	summary.AvgVoltageLN = voltageLN.value()
	summary.AvgFrequency = frq.value()
	return summary
}

// NominalEnergyKWh is the fixed-interval approximation Σ P × interval.
// It matches Aggregate only for equidistant samples and is never stored.
func NominalEnergyKWh(readings []telemetry.Reading, interval time.Duration) float64 {
	var total float64
	for _, r := range readings {
		if p, ok := telemetry.Value(r.PowerKW); ok {
			total += p * interval.Hours()
		}
	}
	return total
}

// Completeness returns the observed share of expected samples in percent.
func Completeness(sampleCount int, window, interval time.Duration) float64 {
	if sampleCount <= 0 || window <= 0 || interval <= 0 {
		return 0
	}
	expected := float64(window) / float64(interval)
	return math.Min(100, float64(sampleCount)/expected*100)
}
