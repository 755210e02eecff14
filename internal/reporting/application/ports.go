package application

import (
	"context"
	"time"

	"panel-energy/internal/reporting/domain/statistic"
	telemetry "panel-energy/internal/telemetry/domain"
)

// ReadingSource provides raw readings of a source over [start, end).
type ReadingSource interface {
	Readings(ctx context.Context, sourceID string, start, end time.Time) ([]telemetry.Reading, error)
}

// ReportStore persists aggregates with keyed upserts.
type ReportStore interface {
	UpsertHourly(ctx context.Context, agg statistic.HourlyAggregate) error
	UpsertShift(ctx context.Context, agg statistic.ShiftAggregate) error
	UpsertDailyReport(ctx context.Context, report statistic.DailyReport) error
	// GetByDate returns statistic.ErrNotFound when no row exists.
	GetByDate(ctx context.Context, sourceID, businessDate string) (*statistic.DailyReport, error)
	GetAll(ctx context.Context, sourceID string) ([]statistic.DailyReport, error)
	ListDaily(ctx context.Context, sourceID, fromDate, toDate string) ([]statistic.DailyReport, error)
	ListHourly(ctx context.Context, sourceID, fromDate, toDate string) ([]statistic.HourlyAggregate, error)
	DeleteOlderThan(ctx context.Context, date string) (int64, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }
