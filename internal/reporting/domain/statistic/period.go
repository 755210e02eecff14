package statistic

import (
	"sort"
	"time"
)

// onlineCompletenessPct is the completeness from which a source counts as
// reporting over a period.
const onlineCompletenessPct = 50

// PeriodInput is the stored data of one source over a period.
type PeriodInput struct {
	SourceID   string
	CapacityKW float64
	Days       []DailyReport
	Hours      []HourlyAggregate
}

// SourcePeriod is one source's part of a period summary.
type SourcePeriod struct {
	SourceID        string    `json:"sourceId"`
	Days            int       `json:"days"`
	EnergyKWh       float64   `json:"energyKwh"`
	AvgPowerKW      float64   `json:"avgPowerKw"`
	PeakPowerKW     float64   `json:"peakPowerKw"`
	PeakAt          time.Time `json:"peakAt,omitempty"`
	AvgCurrent      float64   `json:"avgCurrent"`
	AvgPowerFactor  float64   `json:"avgPowerFactor"`
	AvgVoltageLL    float64   `json:"avgVoltageLL"`
	CapacityKW      float64   `json:"capacityKw"`
	UtilizationPct  float64   `json:"utilizationPct"`
	SharePct        float64   `json:"sharePct"`
	CompletenessPct float64   `json:"completenessPct"`
	Online          bool      `json:"online"`
}

// PeriodTotals are the figures compared between consecutive periods.
// PeakDemandKW is the highest coincident hourly demand: the sum over sources
// of the hourly average power of the same hour bucket.
type PeriodTotals struct {
	TotalEnergyKWh float64 `json:"totalEnergyKwh"`
	PeakDemandKW   float64 `json:"peakDemandKw"`
}

// PeriodComparison relates a period to the one before it. Changes are zero
// when the previous figure is zero.
type PeriodComparison struct {
	Previous        PeriodTotals `json:"previous"`
	EnergyChangePct float64      `json:"energyChangePct"`
	PeakChangePct   float64      `json:"peakChangePct"`
}

// PeriodSummary is the plant-wide rollup of stored reports over an inclusive
// date range. PeakDemandAt is the start of the peak hour bucket and is set by
// the caller, which owns the reporting location.
type PeriodSummary struct {
	Period string `json:"period"`
	From   string `json:"from"`
	To     string `json:"to"`
	PeriodTotals
	PeakDemandDate      string           `json:"peakDemandDate,omitempty"`
	PeakDemandHour      int              `json:"peakDemandHour"`
	PeakDemandAt        time.Time        `json:"peakDemandAt,omitempty"`
	AvgPowerKW          float64          `json:"avgPowerKw"`
	InstalledCapacityKW float64          `json:"installedCapacityKw"`
	UtilizationPct      float64          `json:"utilizationPct"`
	LoadFactorPct       float64          `json:"loadFactorPct"`
	AvgPowerFactor      float64          `json:"avgPowerFactor"`
	SampleCount         int              `json:"sampleCount"`
	CompletenessPct     float64          `json:"completenessPct"`
	Sources             []SourcePeriod   `json:"sources"`
	Comparison          PeriodComparison `json:"comparison"`
}

// SummarizePeriod rolls the stored daily and hourly rows of every source up
// to plant level. days is the number of calendar dates in the period; dates
// without a stored row count as zero completeness.
//
// Per-source averages are weighted by daily sample count. Plant average power
// is the mean coincident hourly demand over the hours holding samples, so the
// load factor against the peak hour never exceeds 100%. Utilization relates
// it to the installed capacity.
func SummarizePeriod(period, from, to string, days int, inputs []PeriodInput) PeriodSummary {
	summary := PeriodSummary{
		Period:  period,
		From:    from,
		To:      to,
		Sources: make([]SourcePeriod, 0, len(inputs)),
	}
	var pf weighted
	for _, in := range inputs {
		src := summarizeSource(in, days)
		summary.TotalEnergyKWh += src.EnergyKWh
		summary.InstalledCapacityKW += src.CapacityKW
		summary.CompletenessPct += src.CompletenessPct
		pf.sum += src.AvgPowerFactor * src.AvgPowerKW
		pf.weight += src.AvgPowerKW
		for _, d := range in.Days {
			if d.SourceID == in.SourceID {
				summary.SampleCount += d.SampleCount
			}
		}
		summary.Sources = append(summary.Sources, src)
	}
	sort.Slice(summary.Sources, func(i, j int) bool { return summary.Sources[i].SourceID < summary.Sources[j].SourceID })

	for i := range summary.Sources {
		summary.Sources[i].SharePct = percent(summary.Sources[i].EnergyKWh, summary.TotalEnergyKWh)
	}
	if len(inputs) > 0 {
		summary.CompletenessPct /= float64(len(inputs))
	}
	summary.AvgPowerFactor = pf.value()

	if peak, mean, ok := coincidentDemand(inputs); ok {
		summary.PeakDemandKW = peak.kw
		summary.PeakDemandDate = peak.bucket.Date
		summary.PeakDemandHour = peak.bucket.Hour
		summary.AvgPowerKW = mean
	}
	summary.LoadFactorPct = percent(summary.AvgPowerKW, summary.PeakDemandKW)
	summary.UtilizationPct = percent(summary.AvgPowerKW, summary.InstalledCapacityKW)
	return summary
}

// Totals returns the comparable figures of inputs.
func Totals(inputs []PeriodInput) PeriodTotals {
	var totals PeriodTotals
	for _, in := range inputs {
		for _, d := range in.Days {
			if d.SourceID == in.SourceID {
				totals.TotalEnergyKWh += d.TotalEnergyKWh
			}
		}
	}
	if peak, _, ok := coincidentDemand(inputs); ok {
		totals.PeakDemandKW = peak.kw
	}
	return totals
}

// CompareWith fills the comparison against the previous period.
func (s PeriodSummary) CompareWith(previous PeriodTotals) PeriodSummary {
	s.Comparison = PeriodComparison{
		Previous:        previous,
		EnergyChangePct: change(s.TotalEnergyKWh, previous.TotalEnergyKWh),
		PeakChangePct:   change(s.PeakDemandKW, previous.PeakDemandKW),
	}
	return s
}

func summarizeSource(in PeriodInput, days int) SourcePeriod {
	src := SourcePeriod{SourceID: in.SourceID, CapacityKW: in.CapacityKW}
	var (
		power, current, pf, volt weighted
		completeness             float64
		hasPeak                  bool
	)
	for _, d := range in.Days {
		if d.SourceID != in.SourceID {
			continue
		}
		src.Days++
		src.EnergyKWh += d.TotalEnergyKWh
		completeness += d.CompletenessPct
		if !d.PeakAt.IsZero() && (!hasPeak || d.PeakPowerKW > src.PeakPowerKW) {
			src.PeakPowerKW, src.PeakAt, hasPeak = d.PeakPowerKW, d.PeakAt, true
		}
		power.add(d.AvgPowerKW, d.SampleCount)
		current.add(d.AvgCurrent, d.SampleCount)
		pf.add(d.AvgPowerFactor, d.SampleCount)
		volt.add(d.AvgVoltageLL, d.SampleCount)
	}
	src.AvgPowerKW = power.value()
	src.AvgCurrent = current.value()
	src.AvgPowerFactor = pf.value()
	src.AvgVoltageLL = volt.value()
	if days > 0 {
		src.CompletenessPct = completeness / float64(days)
	}
	src.Online = src.CompletenessPct >= onlineCompletenessPct
	src.UtilizationPct = percent(src.AvgPowerKW, src.CapacityKW)
	return src
}

type demand struct {
	bucket Bucket
	kw     float64
}

// coincidentDemand sums the hourly average power of every source per hour
// bucket. It returns the highest bucket, ties going to the earliest, and the
// mean demand over the buckets holding samples.
func coincidentDemand(inputs []PeriodInput) (demand, float64, bool) {
	byBucket := make(map[Bucket]*demand)
	for _, in := range inputs {
		for _, h := range in.Hours {
			if h.SourceID != in.SourceID || h.SampleCount == 0 {
				continue
			}
			key := Bucket{Date: h.BusinessDate, Hour: h.Hour}
			d, ok := byBucket[key]
			if !ok {
				d = &demand{bucket: key}
				byBucket[key] = d
			}
			d.kw += h.AvgPowerKW
		}
	}
	if len(byBucket) == 0 {
		return demand{}, 0, false
	}
	keys := make([]Bucket, 0, len(byBucket))
	for key := range byBucket {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Hour < keys[j].Hour
	})
	best := *byBucket[keys[0]]
	var sum float64
	for _, key := range keys {
		d := byBucket[key]
		sum += d.kw
		if d.kw > best.kw {
			best = *d
		}
	}
	return best, sum / float64(len(keys)), true
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

func change(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
