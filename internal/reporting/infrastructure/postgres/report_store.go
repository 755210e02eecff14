package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"panel-energy/internal/reporting/domain/statistic"
	"panel-energy/internal/reporting/domain/window"
)

const dailyColumns = `id, source_id, business_date, total_energy_kwh, sample_count,
	peak_power_kw, peak_at, avg_power_kw, avg_current, avg_power_factor, avg_voltage_ll,
	completeness_pct, updated_at`

const (
	defaultHourlyTable = "hourly_reports"
	defaultDailyTable  = "daily_reports"
	defaultShiftTable  = "shift_reports"
)

// ReportStore persists report aggregates in Postgres with keyed upserts.
type ReportStore struct {
	db          *sql.DB
	hourlyTable string
	dailyTable  string
	shiftTable  string
}

// StoreOption configures the store.
type StoreOption func(*ReportStore)

// WithTablePrefix prefixes every table name, e.g. "staging_".
func WithTablePrefix(prefix string) StoreOption {
	return func(s *ReportStore) {
		if prefix != "" {
			s.hourlyTable = prefix + defaultHourlyTable
			s.dailyTable = prefix + defaultDailyTable
			s.shiftTable = prefix + defaultShiftTable
		}
	}
}

// NewReportStore creates a store using the default table names.
func NewReportStore(db *sql.DB, opts ...StoreOption) (*ReportStore, error) {
	if db == nil {
		return nil, errors.New("report store: nil db")
	}
	s := &ReportStore{
		db:          db,
		hourlyTable: defaultHourlyTable,
		dailyTable:  defaultDailyTable,
		shiftTable:  defaultShiftTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UpsertHourly writes an hourly aggregate keyed by (source, date, hour).
func (s *ReportStore) UpsertHourly(ctx context.Context, agg statistic.HourlyAggregate) error {
	if agg.SourceID == "" {
		return statistic.ErrEmptySource
	}
	date, err := parseDate(agg.BusinessDate)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	source_id, business_date, hour,
	sample_count, total_energy_kwh, avg_power_kw, peak_power_kw, peak_at,
	avg_current, min_current, max_current, avg_power_factor,
	avg_voltage_ll, avg_voltage_ln, avg_frequency, first_at, last_at,
	completeness_pct, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
)
ON CONFLICT (source_id, business_date, hour)
DO UPDATE SET
	sample_count = EXCLUDED.sample_count,
	total_energy_kwh = EXCLUDED.total_energy_kwh,
	avg_power_kw = EXCLUDED.avg_power_kw,
	peak_power_kw = EXCLUDED.peak_power_kw,
	peak_at = EXCLUDED.peak_at,
	avg_current = EXCLUDED.avg_current,
	min_current = EXCLUDED.min_current,
	max_current = EXCLUDED.max_current,
	avg_power_factor = EXCLUDED.avg_power_factor,
	avg_voltage_ll = EXCLUDED.avg_voltage_ll,
	avg_voltage_ln = EXCLUDED.avg_voltage_ln,
	avg_frequency = EXCLUDED.avg_frequency,
	first_at = EXCLUDED.first_at,
	last_at = EXCLUDED.last_at,
	completeness_pct = EXCLUDED.completeness_pct,
	updated_at = EXCLUDED.updated_at`, s.hourlyTable)

	args := append([]any{agg.SourceID, date, agg.Hour}, summaryArgs(agg.Summary)...)
	args = append(args, agg.CompletenessPct, agg.UpdatedAt)
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertShift writes a shift aggregate, creating the daily row when missing.
func (s *ReportStore) UpsertShift(ctx context.Context, agg statistic.ShiftAggregate) error {
	if agg.SourceID == "" {
		return statistic.ErrEmptySource
	}
	date, err := parseDate(agg.BusinessDate)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		ensure := fmt.Sprintf(`
INSERT INTO %s (id, source_id, business_date, total_energy_kwh, sample_count, updated_at)
VALUES ($1, $2, $3, 0, 0, $4)
ON CONFLICT (source_id, business_date) DO NOTHING`, s.dailyTable)
		if _, err := tx.ExecContext(ctx, ensure, uuid.NewString(), agg.SourceID, date, agg.UpdatedAt); err != nil {
			return err
		}
		return s.upsertShift(ctx, tx, date, agg)
	})
}

// UpsertDailyReport writes the daily row and all of its shifts. The row id
// assigned on first insert is kept.
func (s *ReportStore) UpsertDailyReport(ctx context.Context, report statistic.DailyReport) error {
	if report.SourceID == "" {
		return statistic.ErrEmptySource
	}
	date, err := parseDate(report.BusinessDate)
	if err != nil {
		return err
	}
	id := report.ID
	if id == "" {
		id = uuid.NewString()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (source_id, business_date)
DO UPDATE SET
	total_energy_kwh = EXCLUDED.total_energy_kwh,
	sample_count = EXCLUDED.sample_count,
	peak_power_kw = EXCLUDED.peak_power_kw,
	peak_at = EXCLUDED.peak_at,
	avg_power_kw = EXCLUDED.avg_power_kw,
	avg_current = EXCLUDED.avg_current,
	avg_power_factor = EXCLUDED.avg_power_factor,
	avg_voltage_ll = EXCLUDED.avg_voltage_ll,
	completeness_pct = EXCLUDED.completeness_pct,
	updated_at = EXCLUDED.updated_at`, s.dailyTable, dailyColumns)
		stats := report.DayStats
		if _, err := tx.ExecContext(ctx, query,
			id, report.SourceID, date, report.TotalEnergyKWh, report.SampleCount,
			stats.PeakPowerKW, nullTime(stats.PeakAt), stats.AvgPowerKW, stats.AvgCurrent,
			stats.AvgPowerFactor, stats.AvgVoltageLL, stats.CompletenessPct, report.UpdatedAt,
		); err != nil {
			return err
		}
		for _, shift := range report.Shifts {
			shift.SourceID = report.SourceID
			shift.BusinessDate = report.BusinessDate
			if err := s.upsertShift(ctx, tx, date, shift); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByDate loads a daily report with its shifts.
func (s *ReportStore) GetByDate(ctx context.Context, sourceID, businessDate string) (*statistic.DailyReport, error) {
	date, err := parseDate(businessDate)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE source_id = $1 AND business_date = $2
LIMIT 1`, dailyColumns, s.dailyTable)
	report, err := scanDaily(s.db.QueryRowContext(ctx, query, sourceID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, statistic.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	shifts, err := s.listShifts(ctx, sourceID, &date)
	if err != nil {
		return nil, err
	}
	report.Shifts = shifts[report.BusinessDate]
	return report, nil
}

// GetAll lists the daily reports of a source ordered by business date.
func (s *ReportStore) GetAll(ctx context.Context, sourceID string) ([]statistic.DailyReport, error) {
	return s.listDaily(ctx, sourceID, sql.NullTime{}, sql.NullTime{})
}

// ListDaily lists the daily reports of a source for an inclusive date range.
func (s *ReportStore) ListDaily(ctx context.Context, sourceID, fromDate, toDate string) ([]statistic.DailyReport, error) {
	from, err := parseDate(fromDate)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(toDate)
	if err != nil {
		return nil, err
	}
	return s.listDaily(ctx, sourceID, sql.NullTime{Time: from, Valid: true}, sql.NullTime{Time: to, Valid: true})
}

// listDaily loads daily rows with their shifts. Null bounds are open.
func (s *ReportStore) listDaily(ctx context.Context, sourceID string, from, to sql.NullTime) ([]statistic.DailyReport, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE source_id = $1
	AND ($2::date IS NULL OR business_date >= $2::date)
	AND ($3::date IS NULL OR business_date <= $3::date)
ORDER BY business_date ASC`, dailyColumns, s.dailyTable)
	rows, err := s.db.QueryContext(ctx, query, sourceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]statistic.DailyReport, 0)
	for rows.Next() {
		report, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	shifts, err := s.listShifts(ctx, sourceID, nil)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Shifts = shifts[result[i].BusinessDate]
	}
	return result, nil
}

// ListHourly lists hourly aggregates for an inclusive date range.
func (s *ReportStore) ListHourly(ctx context.Context, sourceID, fromDate, toDate string) ([]statistic.HourlyAggregate, error) {
	from, err := parseDate(fromDate)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(toDate)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT
	source_id, business_date, hour,
	sample_count, total_energy_kwh, avg_power_kw, peak_power_kw, peak_at,
	avg_current, min_current, max_current, avg_power_factor,
	avg_voltage_ll, avg_voltage_ln, avg_frequency, first_at, last_at,
	completeness_pct, updated_at
FROM %s
WHERE source_id = $1 AND business_date >= $2 AND business_date <= $3
ORDER BY business_date ASC, hour ASC`, s.hourlyTable)
	rows, err := s.db.QueryContext(ctx, query, sourceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]statistic.HourlyAggregate, 0)
	for rows.Next() {
		var (
			agg  statistic.HourlyAggregate
			date time.Time
			sum  summaryScan
		)
		dest := append([]any{&agg.SourceID, &date, &agg.Hour}, sum.dest()...)
		dest = append(dest, &agg.CompletenessPct, &agg.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		agg.BusinessDate = date.Format(window.DateLayout)
		agg.Summary = sum.summary()
		result = append(result, agg)
	}
	return result, rows.Err()
}

// DeleteOlderThan removes rows dated strictly before date. Shift rows go with
// their daily row.
func (s *ReportStore) DeleteOlderThan(ctx context.Context, date string) (int64, error) {
	cutoff, err := parseDate(date)
	if err != nil {
		return 0, err
	}
	var deleted int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{s.hourlyTable, s.dailyTable} {
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE business_date < $1`, table), cutoff)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return nil
	})
	return deleted, err
}

func (s *ReportStore) upsertShift(ctx context.Context, tx *sql.Tx, date time.Time, agg statistic.ShiftAggregate) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	source_id, business_date, shift, window_start, window_end,
	sample_count, total_energy_kwh, avg_power_kw, peak_power_kw, peak_at,
	avg_current, min_current, max_current, avg_power_factor,
	avg_voltage_ll, avg_voltage_ln, avg_frequency, first_at, last_at,
	completeness_pct, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
)
ON CONFLICT (source_id, business_date, shift)
DO UPDATE SET
	window_start = EXCLUDED.window_start,
	window_end = EXCLUDED.window_end,
	sample_count = EXCLUDED.sample_count,
	total_energy_kwh = EXCLUDED.total_energy_kwh,
	avg_power_kw = EXCLUDED.avg_power_kw,
	peak_power_kw = EXCLUDED.peak_power_kw,
	peak_at = EXCLUDED.peak_at,
	avg_current = EXCLUDED.avg_current,
	min_current = EXCLUDED.min_current,
	max_current = EXCLUDED.max_current,
	avg_power_factor = EXCLUDED.avg_power_factor,
	avg_voltage_ll = EXCLUDED.avg_voltage_ll,
	avg_voltage_ln = EXCLUDED.avg_voltage_ln,
	avg_frequency = EXCLUDED.avg_frequency,
	first_at = EXCLUDED.first_at,
	last_at = EXCLUDED.last_at,
	completeness_pct = EXCLUDED.completeness_pct,
	updated_at = EXCLUDED.updated_at`, s.shiftTable)

	args := append([]any{agg.SourceID, date, agg.Shift, agg.WindowStart, agg.WindowEnd}, summaryArgs(agg.Summary)...)
	args = append(args, agg.CompletenessPct, agg.UpdatedAt)
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// listShifts groups shift rows by business date. A nil date lists all dates.
func (s *ReportStore) listShifts(ctx context.Context, sourceID string, date *time.Time) (map[string][]statistic.ShiftAggregate, error) {
	query := fmt.Sprintf(`
SELECT
	source_id, business_date, shift, window_start, window_end,
	sample_count, total_energy_kwh, avg_power_kw, peak_power_kw, peak_at,
	avg_current, min_current, max_current, avg_power_factor,
	avg_voltage_ll, avg_voltage_ln, avg_frequency, first_at, last_at,
	completeness_pct, updated_at
FROM %s
WHERE source_id = $1 AND ($2::date IS NULL OR business_date = $2::date)
ORDER BY business_date ASC, shift ASC`, s.shiftTable)

	var dateArg sql.NullTime
	if date != nil {
		dateArg = sql.NullTime{Time: *date, Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, query, sourceID, dateArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]statistic.ShiftAggregate)
	for rows.Next() {
		var (
			agg statistic.ShiftAggregate
			day time.Time
			sum summaryScan
		)
		dest := append([]any{&agg.SourceID, &day, &agg.Shift, &agg.WindowStart, &agg.WindowEnd}, sum.dest()...)
		dest = append(dest, &agg.CompletenessPct, &agg.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		agg.BusinessDate = day.Format(window.DateLayout)
		agg.Summary = sum.summary()
		result[agg.BusinessDate] = append(result[agg.BusinessDate], agg)
	}
	return result, rows.Err()
}

func (s *ReportStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanDaily(scanner interface{ Scan(dest ...any) error }) (*statistic.DailyReport, error) {
	var (
		report statistic.DailyReport
		date   time.Time
		peakAt sql.NullTime
	)
	stats := &report.DayStats
	if err := scanner.Scan(
		&report.ID, &report.SourceID, &date, &report.TotalEnergyKWh, &report.SampleCount,
		&stats.PeakPowerKW, &peakAt, &stats.AvgPowerKW, &stats.AvgCurrent,
		&stats.AvgPowerFactor, &stats.AvgVoltageLL, &stats.CompletenessPct, &report.UpdatedAt,
	); err != nil {
		return nil, err
	}
	report.BusinessDate = date.Format(window.DateLayout)
	if peakAt.Valid {
		stats.PeakAt = peakAt.Time
	}
	return &report, nil
}

func summaryArgs(s statistic.Summary) []any {
	return []any{
		s.SampleCount,
		s.TotalEnergyKWh,
		s.AvgPowerKW,
		s.PeakPowerKW,
		nullTime(s.PeakAt),
		s.AvgCurrent,
		s.MinCurrent,
		s.MaxCurrent,
		s.AvgPowerFactor,
		s.AvgVoltageLL,
		s.AvgVoltageLN,
		s.AvgFrequency,
		nullTime(s.FirstAt),
		nullTime(s.LastAt),
	}
}

// summaryScan mirrors the column order of summaryArgs.
type summaryScan struct {
	s       statistic.Summary
	peakAt  sql.NullTime
	firstAt sql.NullTime
	lastAt  sql.NullTime
}

func (m *summaryScan) dest() []any {
	return []any{
		&m.s.SampleCount,
		&m.s.TotalEnergyKWh,
		&m.s.AvgPowerKW,
		&m.s.PeakPowerKW,
		&m.peakAt,
		&m.s.AvgCurrent,
		&m.s.MinCurrent,
		&m.s.MaxCurrent,
		&m.s.AvgPowerFactor,
		&m.s.AvgVoltageLL,
		&m.s.AvgVoltageLN,
		&m.s.AvgFrequency,
		&m.firstAt,
		&m.lastAt,
	}
}

func (m *summaryScan) summary() statistic.Summary {
	out := m.s
	if m.peakAt.Valid {
		out.PeakAt = m.peakAt.Time
	}
	if m.firstAt.Valid {
		out.FirstAt = m.firstAt.Time
	}
	if m.lastAt.Valid {
		out.LastAt = m.lastAt.Time
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func parseDate(value string) (time.Time, error) {
	return window.ParseDate(value, time.UTC)
}
