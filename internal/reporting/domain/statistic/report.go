package statistic

import (
	"fmt"
	"time"
)

// ReportStatus is the lifecycle state of a business date's report.
type ReportStatus string

const (
	StatusNotStarted ReportStatus = "NOT_STARTED"
	StatusInterim    ReportStatus = "INTERIM"
	StatusFinal      ReportStatus = "FINAL"
)

// StatusFor derives the status of businessDate relative to the current
// business date. Dates compare lexically in YYYY-MM-DD form.
func StatusFor(businessDate, currentBusinessDate string, stored bool) ReportStatus {
	switch {
	case businessDate == currentBusinessDate:
		return StatusInterim
	case businessDate < currentBusinessDate && stored:
		return StatusFinal
	default:
		return StatusNotStarted
	}
}

// HourKey is the natural key of an hourly aggregate.
type HourKey struct {
	SourceID     string
	BusinessDate string
	Hour         int
}

func (k HourKey) String() string {
	return fmt.Sprintf("%s:%s:%02d", k.SourceID, k.BusinessDate, k.Hour)
}

// ShiftKey is the natural key of a shift aggregate.
type ShiftKey struct {
	SourceID     string
	BusinessDate string
	Shift        int
}

func (k ShiftKey) String() string {
	return fmt.Sprintf("%s:%s:shift%d", k.SourceID, k.BusinessDate, k.Shift)
}

// DayKey is the natural key of a daily report.
type DayKey struct {
	SourceID     string
	BusinessDate string
}

func (k DayKey) String() string {
	return fmt.Sprintf("%s:%s", k.SourceID, k.BusinessDate)
}

// HourlyAggregate holds the statistics of one local clock hour.
// BusinessDate is the local calendar date of the hour.
type HourlyAggregate struct {
	SourceID     string `json:"sourceId"`
	BusinessDate string `json:"businessDate"`
	Hour         int    `json:"hour"`
	Summary
	CompletenessPct float64   `json:"completenessPct"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Key returns the natural key.
func (a HourlyAggregate) Key() HourKey {
	return HourKey{SourceID: a.SourceID, BusinessDate: a.BusinessDate, Hour: a.Hour}
}

// ShiftAggregate holds the statistics of one shift. TotalEnergyKWh is the sum
// of the hourly totals of every hour bucket intersecting the shift window.
type ShiftAggregate struct {
	SourceID     string    `json:"sourceId"`
	BusinessDate string    `json:"businessDate"`
	Shift        int       `json:"shift"`
	WindowStart  time.Time `json:"windowStart"`
	WindowEnd    time.Time `json:"windowEnd"`
	Summary
	CompletenessPct float64   `json:"completenessPct"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Key returns the natural key.
func (a ShiftAggregate) Key() ShiftKey {
	return ShiftKey{SourceID: a.SourceID, BusinessDate: a.BusinessDate, Shift: a.Shift}
}

// DayStats holds the day-level statistics rolled up from the hourly
// aggregates of a calendar date. Averages are weighted by hourly sample
// count; completeness counts missing hours as zero.
type DayStats struct {
	PeakPowerKW     float64   `json:"peakPowerKw"`
	PeakAt          time.Time `json:"peakAt,omitempty"`
	AvgPowerKW      float64   `json:"avgPowerKw"`
	AvgCurrent      float64   `json:"avgCurrent"`
	AvgPowerFactor  float64   `json:"avgPowerFactor"`
	AvgVoltageLL    float64   `json:"avgVoltageLL"`
	CompletenessPct float64   `json:"completenessPct"`
}

// DailyReport collects the shifts of one business date for a source.
type DailyReport struct {
	ID             string           `json:"id,omitempty"`
	SourceID       string           `json:"sourceId"`
	BusinessDate   string           `json:"businessDate"`
	Status         ReportStatus     `json:"status"`
	Shifts         []ShiftAggregate `json:"shifts"`
	TotalEnergyKWh float64          `json:"totalEnergyKwh"`
	SampleCount    int              `json:"sampleCount"`
	DayStats
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the natural key.
func (r DailyReport) Key() DayKey {
	return DayKey{SourceID: r.SourceID, BusinessDate: r.BusinessDate}
}

// Shift returns the aggregate for a shift index.
func (r DailyReport) Shift(index int) (ShiftAggregate, bool) {
	for _, s := range r.Shifts {
		if s.Shift == index {
			return s, true
		}
	}
	return ShiftAggregate{}, false
}

// WithShift returns a copy of r with the shift aggregate inserted or replaced,
// keeping shifts ordered by index.
func (r DailyReport) WithShift(agg ShiftAggregate) DailyReport {
	shifts := make([]ShiftAggregate, 0, len(r.Shifts)+1)
	inserted := false
	for _, s := range r.Shifts {
		switch {
		case s.Shift == agg.Shift:
			shifts = append(shifts, agg)
			inserted = true
		case s.Shift > agg.Shift && !inserted:
			shifts = append(shifts, agg, s)
			inserted = true
		default:
			shifts = append(shifts, s)
		}
	}
	if !inserted {
		shifts = append(shifts, agg)
	}
	r.Shifts = shifts
	return r
}
