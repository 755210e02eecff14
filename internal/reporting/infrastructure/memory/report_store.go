package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"panel-energy/internal/reporting/domain/statistic"
)

// ReportStore is an in-memory report store for demo/testing.
// Writes are keyed upserts; values are copied in and out.
type ReportStore struct {
	mu     sync.RWMutex
	hourly map[statistic.HourKey]statistic.HourlyAggregate
	daily  map[statistic.DayKey]statistic.DailyReport
}

// NewReportStore constructs a store.
func NewReportStore() *ReportStore {
	return &ReportStore{
		hourly: make(map[statistic.HourKey]statistic.HourlyAggregate),
		daily:  make(map[statistic.DayKey]statistic.DailyReport),
	}
}

// UpsertHourly stores an hourly aggregate by its natural key.
func (s *ReportStore) UpsertHourly(ctx context.Context, agg statistic.HourlyAggregate) error {
	_ = ctx
	if agg.SourceID == "" {
		return statistic.ErrEmptySource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hourly[agg.Key()] = agg
	return nil
}

// UpsertShift stores a shift aggregate inside its daily report, creating the
// report row when missing.
func (s *ReportStore) UpsertShift(ctx context.Context, agg statistic.ShiftAggregate) error {
	_ = ctx
	if agg.SourceID == "" {
		return statistic.ErrEmptySource
	}
	key := statistic.DayKey{SourceID: agg.SourceID, BusinessDate: agg.BusinessDate}

	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.daily[key]
	if !ok {
		report = statistic.DailyReport{ID: uuid.NewString(), SourceID: agg.SourceID, BusinessDate: agg.BusinessDate}
	}
	report = report.WithShift(agg)
	if agg.UpdatedAt.After(report.UpdatedAt) {
		report.UpdatedAt = agg.UpdatedAt
	}
	s.daily[key] = report
	return nil
}

// UpsertDailyReport replaces the daily report row and its shifts. The row id
// is kept stable across upserts.
func (s *ReportStore) UpsertDailyReport(ctx context.Context, report statistic.DailyReport) error {
	_ = ctx
	if report.SourceID == "" {
		return statistic.ErrEmptySource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := report.Key()
	if existing, ok := s.daily[key]; ok {
		report.ID = existing.ID
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.Status = ""
	report.Shifts = append([]statistic.ShiftAggregate(nil), report.Shifts...)
	s.daily[key] = report
	return nil
}

// GetByDate loads a daily report.
func (s *ReportStore) GetByDate(ctx context.Context, sourceID, businessDate string) (*statistic.DailyReport, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.daily[statistic.DayKey{SourceID: sourceID, BusinessDate: businessDate}]
	if !ok {
		return nil, statistic.ErrNotFound
	}
	report.Shifts = append([]statistic.ShiftAggregate(nil), report.Shifts...)
	return &report, nil
}

// GetAll lists the daily reports of a source by business date.
func (s *ReportStore) GetAll(ctx context.Context, sourceID string) ([]statistic.DailyReport, error) {
	return s.listDaily(ctx, sourceID, func(string) bool { return true })
}

// ListDaily lists the daily reports of a source for an inclusive date range.
func (s *ReportStore) ListDaily(ctx context.Context, sourceID, fromDate, toDate string) ([]statistic.DailyReport, error) {
	return s.listDaily(ctx, sourceID, func(date string) bool { return date >= fromDate && date <= toDate })
}

func (s *ReportStore) listDaily(ctx context.Context, sourceID string, keep func(date string) bool) ([]statistic.DailyReport, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]statistic.DailyReport, 0)
	for key, report := range s.daily {
		if key.SourceID != sourceID || !keep(key.BusinessDate) {
			continue
		}
		report.Shifts = append([]statistic.ShiftAggregate(nil), report.Shifts...)
		result = append(result, report)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BusinessDate < result[j].BusinessDate })
	return result, nil
}

// ListHourly lists hourly aggregates for an inclusive date range.
func (s *ReportStore) ListHourly(ctx context.Context, sourceID, fromDate, toDate string) ([]statistic.HourlyAggregate, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]statistic.HourlyAggregate, 0)
	for key, agg := range s.hourly {
		if key.SourceID != sourceID || key.BusinessDate < fromDate || key.BusinessDate > toDate {
			continue
		}
		result = append(result, agg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BusinessDate != result[j].BusinessDate {
			return result[i].BusinessDate < result[j].BusinessDate
		}
		return result[i].Hour < result[j].Hour
	})
	return result, nil
}

// DeleteOlderThan removes hourly and daily rows dated strictly before date.
func (s *ReportStore) DeleteOlderThan(ctx context.Context, date string) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key := range s.hourly {
		if key.BusinessDate < date {
			delete(s.hourly, key)
			deleted++
		}
	}
	for key := range s.daily {
		if key.BusinessDate < date {
			delete(s.daily, key)
			deleted++
		}
	}
	return deleted, nil
}
