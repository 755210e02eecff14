package events

import "time"

// Report kinds carried by ReportCalculated.
const (
	KindHourly = "hourly"
	KindShift  = "shift"
	KindDaily  = "daily"
)

// ReportCalculated is emitted after an aggregate has been persisted.
// Hour is set for hourly reports, Shift for shift reports.
type ReportCalculated struct {
	SourceID       string    `json:"sourceId"`
	Kind           string    `json:"kind"`
	BusinessDate   string    `json:"businessDate"`
	Hour           *int      `json:"hour,omitempty"`
	Shift          int       `json:"shift,omitempty"`
	TotalEnergyKWh float64   `json:"totalEnergyKwh"`
	SampleCount    int       `json:"sampleCount"`
	OccurredAt     time.Time `json:"occurredAt"`
	Backfill       bool      `json:"backfill,omitempty"`
}
