package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"panel-energy/internal/observability/metrics"
	"panel-energy/internal/reporting/application/eventbus"
	"panel-energy/internal/reporting/application/events"
	"panel-energy/internal/reporting/domain/statistic"
	"panel-energy/internal/reporting/domain/window"
	telemetry "panel-energy/internal/telemetry/domain"
)

const (
	defaultSamplingInterval = 5 * time.Second
	defaultMaxRangeDays     = 366
	nominalTolerance        = 0.2
)

// ErrUnknownSource is returned for a source id that is not configured.
var ErrUnknownSource = fmt.Errorf("%w: unknown source", statistic.ErrNotFound)

// Source binds a panel to its shift schedule. CapacityKW is the installed
// capacity used for utilization in period summaries.
type Source struct {
	ID         string
	Schedule   *window.Schedule
	CapacityKW float64
}

// ShiftView is a shift aggregate with its lifecycle status.
type ShiftView struct {
	Status statistic.ReportStatus `json:"status"`
	statistic.ShiftAggregate
}

// ServiceOption configures a ReportService.
type ServiceOption func(*ReportService)

// WithClock overrides the clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *ReportService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *ReportService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventBus publishes ReportCalculated events after each persisted aggregate.
func WithEventBus(bus eventbus.EventBus) ServiceOption {
	return func(s *ReportService) { s.bus = bus }
}

// WithSamplingInterval sets the nominal telemetry cadence used for completeness.
func WithSamplingInterval(interval time.Duration) ServiceOption {
	return func(s *ReportService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithMaxRangeDays caps the number of dates a range read or backfill may
// span. Zero or less removes the cap.
func WithMaxRangeDays(days int) ServiceOption {
	return func(s *ReportService) { s.maxRangeDays = days }
}

// ReportService generates and serves hourly, shift and daily reports for a
// fixed set of sources. Multi-source runs fan out one goroutine per source;
// a failing source never aborts its siblings.
type ReportService struct {
	readings ReadingSource
	store    ReportStore
	sources  []Source
	byID     map[string]Source
	clock    Clock
	bus      eventbus.EventBus
	logger   *zap.Logger
	interval time.Duration

	maxRangeDays int
}

// NewReportService builds a ReportService.
func NewReportService(readings ReadingSource, store ReportStore, sources []Source, opts ...ServiceOption) (*ReportService, error) {
	if readings == nil {
		return nil, errors.New("report service: nil reading source")
	}
	if store == nil {
		return nil, errors.New("report service: nil report store")
	}
	if len(sources) == 0 {
		return nil, errors.New("report service: no sources")
	}
	byID := make(map[string]Source, len(sources))
	for _, src := range sources {
		if src.ID == "" || src.Schedule == nil {
			return nil, errors.New("report service: source requires id and schedule")
		}
		if _, dup := byID[src.ID]; dup {
			return nil, fmt.Errorf("report service: duplicate source %s", src.ID)
		}
		byID[src.ID] = src
	}
	s := &ReportService{
		readings: readings,
		store:    store,
		sources:  append([]Source(nil), sources...),
		byID:     byID,
		clock:    SystemClock{},
		logger:   zap.NewNop(),
		interval: defaultSamplingInterval,

		maxRangeDays: defaultMaxRangeDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SourceIDs lists the configured sources.
func (s *ReportService) SourceIDs() []string {
	ids := make([]string, len(s.sources))
	for i, src := range s.sources {
		ids[i] = src.ID
	}
	return ids
}

// GenerateHourly recomputes and upserts the hourly aggregates of date for
// every source. A nil hour regenerates all 24 hours. Only buckets with
// samples are written.
func (s *ReportService) GenerateHourly(ctx context.Context, date string, hour *int) ([]statistic.HourlyAggregate, error) {
	return s.generateHourly(ctx, s.sources, date, hour, false)
}

// GenerateShift recomputes one shift of date for every source that has it.
func (s *ReportService) GenerateShift(ctx context.Context, date string, shift int) ([]statistic.ShiftAggregate, error) {
	return s.generateShift(ctx, date, shift, false)
}

// GenerateDaily recomputes every shift and the daily total of date for every source.
func (s *ReportService) GenerateDaily(ctx context.Context, date string) ([]statistic.DailyReport, error) {
	return s.generateDaily(ctx, date, false)
}

// HourlyReport returns the 24 stored hours of date; missing hours are zero.
func (s *ReportService) HourlyReport(ctx context.Context, sourceID, date string) ([]statistic.HourlyAggregate, error) {
	return s.HourlyRange(ctx, sourceID, date, date)
}

// HourlyRange returns stored hours for an inclusive date range, zero-filled.
func (s *ReportService) HourlyRange(ctx context.Context, sourceID, from, to string) ([]statistic.HourlyAggregate, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}
	dates, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListHourly(ctx, src.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list hourly %s: %w", src.ID, err)
	}
	return zeroFill(src.ID, dates, rows), nil
}

// DailyReport serves the report of a business date. The current business
// date is recomputed live as INTERIM and never persisted; past dates are
// served FINAL from the store; future or missing dates are NOT_STARTED.
func (s *ReportService) DailyReport(ctx context.Context, sourceID, date string) (*statistic.DailyReport, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}
	if _, err := window.ParseDate(date, src.Schedule.Location()); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	current := src.Schedule.BusinessDate(now)

	switch {
	case date == current:
		report, err := s.liveDay(ctx, src, date, now)
		if err != nil {
			return nil, err
		}
		return &report, nil
	case date > current:
		return notStarted(src.ID, date), nil
	}

	stored, err := s.store.GetByDate(ctx, src.ID, date)
	if errors.Is(err, statistic.ErrNotFound) {
		return notStarted(src.ID, date), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load daily report %s %s: %w", src.ID, date, err)
	}
	stored.Status = statistic.StatusFinal
	return stored, nil
}

// ShiftReport serves one shift with the same lifecycle rule as DailyReport.
func (s *ReportService) ShiftReport(ctx context.Context, sourceID, date string, shift int) (*ShiftView, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}
	w, err := src.Schedule.ShiftWindow(date, shift)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	current := src.Schedule.BusinessDate(now)
	empty := statistic.ShiftAggregate{
		SourceID:     src.ID,
		BusinessDate: date,
		Shift:        shift,
		WindowStart:  w.Start,
		WindowEnd:    w.End,
	}

	switch {
	case date == current:
		day, err := s.compute(ctx, src, date, []int{shift}, false, now)
		if err != nil {
			return nil, err
		}
		return &ShiftView{Status: statistic.StatusInterim, ShiftAggregate: day.shifts[0]}, nil
	case date > current:
		return &ShiftView{Status: statistic.StatusNotStarted, ShiftAggregate: empty}, nil
	}

	stored, err := s.store.GetByDate(ctx, src.ID, date)
	if errors.Is(err, statistic.ErrNotFound) {
		return &ShiftView{Status: statistic.StatusNotStarted, ShiftAggregate: empty}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load daily report %s %s: %w", src.ID, date, err)
	}
	agg, ok := stored.Shift(shift)
	if !ok {
		return &ShiftView{Status: statistic.StatusNotStarted, ShiftAggregate: empty}, nil
	}
	return &ShiftView{Status: statistic.StatusFinal, ShiftAggregate: agg}, nil
}

// DailyReports lists every stored report of a source. The current business
// date is always present as a live INTERIM row.
func (s *ReportService) DailyReports(ctx context.Context, sourceID string) ([]statistic.DailyReport, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.GetAll(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("list daily reports %s: %w", src.ID, err)
	}
	now := s.clock.Now()
	current := src.Schedule.BusinessDate(now)
	live, err := s.liveDay(ctx, src, current, now)
	if err != nil {
		return nil, err
	}

	result := make([]statistic.DailyReport, 0, len(rows)+1)
	injected := false
	for _, row := range rows {
		if row.BusinessDate == current {
			result = append(result, live)
			injected = true
			continue
		}
		row.Status = statistic.StatusFor(row.BusinessDate, current, true)
		result = append(result, row)
	}
	if !injected {
		result = append(result, live)
		sort.SliceStable(result, func(i, j int) bool { return result[i].BusinessDate < result[j].BusinessDate })
	}
	return result, nil
}

// DailyReportsRange serves one report per date of an inclusive range with
// the lifecycle rule of DailyReport. Stored rows are read in one pass.
func (s *ReportService) DailyReportsRange(ctx context.Context, sourceID, from, to string) ([]statistic.DailyReport, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}
	dates, err := s.dateRange(from, to)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListDaily(ctx, src.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily reports %s: %w", src.ID, err)
	}
	stored := make(map[string]statistic.DailyReport, len(rows))
	for _, row := range rows {
		stored[row.BusinessDate] = row
	}

	now := s.clock.Now()
	current := src.Schedule.BusinessDate(now)
	result := make([]statistic.DailyReport, 0, len(dates))
	for _, date := range dates {
		if date == current {
			live, err := s.liveDay(ctx, src, date, now)
			if err != nil {
				return nil, err
			}
			result = append(result, live)
			continue
		}
		row, ok := stored[date]
		if !ok || date > current {
			result = append(result, *notStarted(src.ID, date))
			continue
		}
		row.Status = statistic.StatusFinal
		result = append(result, row)
	}
	return result, nil
}

// MonthlyReports serves the reports of every date of a "YYYY-MM" month.
func (s *ReportService) MonthlyReports(ctx context.Context, sourceID, month string) ([]statistic.DailyReport, error) {
	from, to, err := window.MonthRange(month)
	if err != nil {
		return nil, err
	}
	return s.DailyReportsRange(ctx, sourceID, from, to)
}

// PeriodSummary rolls the stored reports of every source up to plant level
// for the day, week or month anchored at date, compared with the period
// before it.
func (s *ReportService) PeriodSummary(ctx context.Context, period, date string) (summary statistic.PeriodSummary, err error) {
	rng, err := window.ResolvePeriod(period, date)
	if err != nil {
		return statistic.PeriodSummary{}, err
	}
	defer s.observe("period", time.Now(), &err)

	current, err := s.periodInputs(ctx, rng.From, rng.To)
	if err != nil {
		return statistic.PeriodSummary{}, err
	}
	previous, err := s.periodInputs(ctx, rng.PrevFrom, rng.PrevTo)
	if err != nil {
		return statistic.PeriodSummary{}, err
	}
	summary = statistic.SummarizePeriod(rng.Period, rng.From, rng.To, rng.Days, current).
		CompareWith(statistic.Totals(previous))
	if summary.PeakDemandDate != "" {
		bucket, err := s.sources[0].Schedule.Hour(summary.PeakDemandDate, summary.PeakDemandHour)
		if err != nil {
			return statistic.PeriodSummary{}, err
		}
		summary.PeakDemandAt = bucket.Start
	}
	return summary, nil
}

func (s *ReportService) periodInputs(ctx context.Context, from, to string) ([]statistic.PeriodInput, error) {
	inputs := make([]statistic.PeriodInput, 0, len(s.sources))
	for _, src := range s.sources {
		days, err := s.store.ListDaily(ctx, src.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("list daily reports %s: %w", src.ID, err)
		}
		hours, err := s.store.ListHourly(ctx, src.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("list hourly %s: %w", src.ID, err)
		}
		inputs = append(inputs, statistic.PeriodInput{
			SourceID:   src.ID,
			CapacityKW: src.CapacityKW,
			Days:       days,
			Hours:      hours,
		})
	}
	return inputs, nil
}

// Prune deletes stored rows older than retainDays before today.
func (s *ReportService) Prune(ctx context.Context, retainDays int) (int64, error) {
	if retainDays <= 0 {
		return 0, &window.ValidationError{Field: "retention_days", Value: strconv.Itoa(retainDays), Reason: "must be positive"}
	}
	today := window.FormatDate(s.clock.Now(), s.sources[0].Schedule.Location())
	cutoff, err := window.AddDays(today, -retainDays)
	if err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff, err)
	}
	s.logger.Info("report retention applied", zap.String("cutoff", cutoff), zap.Int64("deleted", deleted))
	return deleted, nil
}

func (s *ReportService) generateHourly(ctx context.Context, sources []Source, date string, hour *int, backfill bool) (written []statistic.HourlyAggregate, err error) {
	if _, err := window.ParseDate(date, time.UTC); err != nil {
		return nil, err
	}
	if hour != nil {
		if err := window.ValidateHour(*hour); err != nil {
			return nil, err
		}
	}
	defer s.observe(events.KindHourly, time.Now(), &err)

	var mu sync.Mutex
	err = s.fanOut(ctx, sources, func(ctx context.Context, src Source) error {
		rows, err := s.hourlyForSource(ctx, src, date, hour, backfill)
		mu.Lock()
		written = append(written, rows...)
		mu.Unlock()
		return err
	})
	sortHourly(written)
	return written, err
}

func (s *ReportService) generateShift(ctx context.Context, date string, shift int, backfill bool) (written []statistic.ShiftAggregate, err error) {
	if _, err := window.ParseDate(date, time.UTC); err != nil {
		return nil, err
	}
	var targets []Source
	for _, src := range s.sources {
		if src.Schedule.ValidateShiftIndex(shift) == nil {
			targets = append(targets, src)
		}
	}
	if len(targets) == 0 {
		return nil, &window.ValidationError{Field: "shift", Value: strconv.Itoa(shift), Reason: "unknown shift index"}
	}
	defer s.observe(events.KindShift, time.Now(), &err)

	var mu sync.Mutex
	err = s.fanOut(ctx, targets, func(ctx context.Context, src Source) error {
		agg, err := s.shiftForSource(ctx, src, date, shift, backfill)
		mu.Lock()
		written = append(written, agg)
		mu.Unlock()
		return err
	})
	sort.Slice(written, func(i, j int) bool { return written[i].SourceID < written[j].SourceID })
	return written, err
}

// runShiftEnd regenerates the shift that most recently ended at firedAt for
// the named sources. Each source derives its own business date, so the
// overnight shift firing on D+1 writes D.
func (s *ReportService) runShiftEnd(ctx context.Context, sourceIDs []string, shift int, firedAt time.Time) (err error) {
	defer s.observe(events.KindShift, time.Now(), &err)
	targets := make([]Source, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		src, err := s.source(id)
		if err != nil {
			return err
		}
		targets = append(targets, src)
	}
	return s.fanOut(ctx, targets, func(ctx context.Context, src Source) error {
		w, err := src.Schedule.LastEnded(shift, firedAt)
		if err != nil {
			return err
		}
		s.logger.Info("shift ended",
			zap.String("source", src.ID),
			zap.String("date", w.BusinessDate),
			zap.Int("shift", shift),
		)
		_, err = s.shiftForSource(ctx, src, w.BusinessDate, shift, false)
		return err
	})
}

func (s *ReportService) generateDaily(ctx context.Context, date string, backfill bool) (written []statistic.DailyReport, err error) {
	if _, err := window.ParseDate(date, time.UTC); err != nil {
		return nil, err
	}
	defer s.observe(events.KindDaily, time.Now(), &err)

	var mu sync.Mutex
	err = s.fanOut(ctx, s.sources, func(ctx context.Context, src Source) error {
		report, err := s.dayForSource(ctx, src, date, backfill)
		mu.Lock()
		written = append(written, report)
		mu.Unlock()
		return err
	})
	sort.Slice(written, func(i, j int) bool { return written[i].SourceID < written[j].SourceID })
	return written, err
}

func (s *ReportService) hourlyForSource(ctx context.Context, src Source, date string, hour *int, backfill bool) ([]statistic.HourlyAggregate, error) {
	now := s.clock.Now()
	buckets, err := dayBuckets(src.Schedule, date, hour)
	if err != nil {
		return nil, err
	}
	_, hours := s.aggregateHours(ctx, src, buckets, now)

	var (
		written []statistic.HourlyAggregate
		errs    []error
	)
	for _, agg := range sortedHours(hours) {
		if err := s.persistHourly(ctx, agg, backfill); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, agg)
	}
	return written, errors.Join(errs...)
}

func (s *ReportService) shiftForSource(ctx context.Context, src Source, date string, shift int, backfill bool) (statistic.ShiftAggregate, error) {
	now := s.clock.Now()
	day, err := s.compute(ctx, src, date, []int{shift}, false, now)
	if err != nil {
		return statistic.ShiftAggregate{}, err
	}

	var errs []error
	for _, agg := range sortedHours(day.hours) {
		if err := s.persistHourly(ctx, agg, backfill); err != nil {
			errs = append(errs, err)
		}
	}

	agg := day.shifts[0]
	if err := s.persist(events.KindShift, src.ID, agg.Key(), func() error { return s.store.UpsertShift(ctx, agg) }); err != nil {
		return agg, errors.Join(append(errs, err)...)
	}
	s.publish(ctx, events.ReportCalculated{
		SourceID:       src.ID,
		Kind:           events.KindShift,
		BusinessDate:   date,
		Shift:          shift,
		TotalEnergyKWh: agg.TotalEnergyKWh,
		SampleCount:    agg.SampleCount,
		OccurredAt:     now,
		Backfill:       backfill,
	})

	if err := s.refreshDay(ctx, src, date, now, backfill); err != nil {
		errs = append(errs, err)
	}
	return agg, errors.Join(errs...)
}

// refreshDay recomputes the daily totals of a stored report from its stored
// shifts and hours.
func (s *ReportService) refreshDay(ctx context.Context, src Source, date string, now time.Time, backfill bool) error {
	key := statistic.DayKey{SourceID: src.ID, BusinessDate: date}
	report, err := s.store.GetByDate(ctx, src.ID, date)
	if err != nil {
		return &statistic.PersistenceError{SourceID: src.ID, Key: key.String(), Err: err}
	}
	hours, err := s.store.ListHourly(ctx, src.ID, date, date)
	if err != nil {
		return &statistic.PersistenceError{SourceID: src.ID, Key: key.String(), Err: err}
	}
	rolled := statistic.RollupDay(*report, hours)
	rolled.UpdatedAt = now
	return s.persistDaily(ctx, rolled, now, backfill)
}

func (s *ReportService) dayForSource(ctx context.Context, src Source, date string, backfill bool) (statistic.DailyReport, error) {
	now := s.clock.Now()
	day, err := s.compute(ctx, src, date, src.Schedule.ShiftIndexes(), true, now)
	if err != nil {
		return statistic.DailyReport{}, err
	}

	var errs []error
	for _, agg := range sortedHours(day.hours) {
		if err := s.persistHourly(ctx, agg, backfill); err != nil {
			errs = append(errs, err)
		}
	}
	report := day.report(src.ID, date, now)
	if err := s.persistDaily(ctx, report, now, backfill); err != nil {
		errs = append(errs, err)
	}
	return report, errors.Join(errs...)
}

func (s *ReportService) liveDay(ctx context.Context, src Source, date string, now time.Time) (statistic.DailyReport, error) {
	day, err := s.compute(ctx, src, date, src.Schedule.ShiftIndexes(), true, now)
	if err != nil {
		return statistic.DailyReport{}, err
	}
	report := day.report(src.ID, date, now)
	report.Status = statistic.StatusInterim
	return report, nil
}

func (s *ReportService) persistHourly(ctx context.Context, agg statistic.HourlyAggregate, backfill bool) error {
	if err := s.persist(events.KindHourly, agg.SourceID, agg.Key(), func() error { return s.store.UpsertHourly(ctx, agg) }); err != nil {
		return err
	}
	hour := agg.Hour
	s.publish(ctx, events.ReportCalculated{
		SourceID:       agg.SourceID,
		Kind:           events.KindHourly,
		BusinessDate:   agg.BusinessDate,
		Hour:           &hour,
		TotalEnergyKWh: agg.TotalEnergyKWh,
		SampleCount:    agg.SampleCount,
		OccurredAt:     agg.UpdatedAt,
		Backfill:       backfill,
	})
	return nil
}

func (s *ReportService) persistDaily(ctx context.Context, report statistic.DailyReport, now time.Time, backfill bool) error {
	if err := s.persist(events.KindDaily, report.SourceID, report.Key(), func() error { return s.store.UpsertDailyReport(ctx, report) }); err != nil {
		return err
	}
	s.publish(ctx, events.ReportCalculated{
		SourceID:       report.SourceID,
		Kind:           events.KindDaily,
		BusinessDate:   report.BusinessDate,
		TotalEnergyKWh: report.TotalEnergyKWh,
		SampleCount:    report.SampleCount,
		OccurredAt:     now,
		Backfill:       backfill,
	})
	return nil
}

func (s *ReportService) persist(kind, sourceID string, key fmt.Stringer, write func() error) error {
	if err := write(); err != nil {
		metrics.IncPersistError(kind)
		s.logger.Error("report upsert failed",
			zap.String("kind", kind),
			zap.String("source", sourceID),
			zap.String("key", key.String()),
			zap.Error(err),
		)
		return &statistic.PersistenceError{SourceID: sourceID, Key: key.String(), Err: err}
	}
	return nil
}

func (s *ReportService) publish(ctx context.Context, evt events.ReportCalculated) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, evt); err != nil {
		s.logger.Warn("report event delivery failed",
			zap.String("source", evt.SourceID),
			zap.String("kind", evt.Kind),
			zap.String("date", evt.BusinessDate),
			zap.Error(err),
		)
	}
}

func (s *ReportService) observe(kind string, start time.Time, err *error) {
	result := metrics.ResultSuccess
	if err != nil && *err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveReportRun(kind, result, time.Since(start))
}

// dateRange expands an inclusive date range and enforces the range cap.
func (s *ReportService) dateRange(from, to string) ([]string, error) {
	dates, err := window.DateRange(from, to)
	if err != nil {
		return nil, err
	}
	if s.maxRangeDays > 0 && len(dates) > s.maxRangeDays {
		return nil, &window.ValidationError{
			Field:  "range",
			Value:  from + ".." + to,
			Reason: fmt.Sprintf("at most %d days", s.maxRangeDays),
		}
	}
	return dates, nil
}

// fanOut runs fn for every source concurrently and joins their errors.
func (s *ReportService) fanOut(ctx context.Context, sources []Source, fn func(context.Context, Source) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					s.logger.Error("source run panicked", zap.String("source", src.ID), zap.Any("panic", rec))
					collect(fmt.Errorf("source %s: panic: %v", src.ID, rec))
				}
			}()
			if err := fn(ctx, src); err != nil {
				collect(err)
			}
		}(src)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (s *ReportService) source(id string) (Source, error) {
	src, ok := s.byID[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return src, nil
}

// fetch loads readings; a telemetry failure yields no readings.
func (s *ReportService) fetch(ctx context.Context, sourceID string, start, end time.Time) []telemetry.Reading {
	readings, err := s.readings.Readings(ctx, sourceID, start, end)
	if err != nil {
		dsErr := &statistic.DataSourceError{
			SourceID: sourceID,
			Scope:    start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339),
			Err:      err,
		}
		metrics.IncTelemetryError(sourceID)
		s.logger.Warn("telemetry fetch failed, treating as empty", zap.String("source", sourceID), zap.Error(dsErr))
		return nil
	}
	return readings
}

// computation holds the fresh aggregates of one source for one business date.
type computation struct {
	hours  map[statistic.Bucket]statistic.HourlyAggregate
	shifts []statistic.ShiftAggregate
}

func (c computation) report(sourceID, date string, now time.Time) statistic.DailyReport {
	report := statistic.DailyReport{SourceID: sourceID, BusinessDate: date, UpdatedAt: now}
	for _, shift := range c.shifts {
		report = report.WithShift(shift)
	}
	return statistic.RollupDay(report, sortedHours(c.hours))
}

// compute aggregates the given shifts of date and, when withCalendarDay is
// set, every hour of the calendar date. Readings are fetched once for the
// union of all buckets.
func (s *ReportService) compute(ctx context.Context, src Source, date string, shifts []int, withCalendarDay bool, now time.Time) (computation, error) {
	var (
		windows []window.ShiftWindow
		buckets []window.HourBucket
	)
	if withCalendarDay {
		all, err := dayBuckets(src.Schedule, date, nil)
		if err != nil {
			return computation{}, err
		}
		buckets = append(buckets, all...)
	}
	for _, idx := range shifts {
		w, err := src.Schedule.ShiftWindow(date, idx)
		if err != nil {
			return computation{}, err
		}
		windows = append(windows, w)
		buckets = append(buckets, src.Schedule.HourBuckets(w)...)
	}

	readings, hours := s.aggregateHours(ctx, src, buckets, now)
	all := sortedHours(hours)

	result := computation{hours: hours}
	for _, w := range windows {
		keys := make([]statistic.Bucket, 0, 24)
		for _, b := range src.Schedule.HourBuckets(w) {
			keys = append(keys, statistic.Bucket{Date: b.Date, Hour: b.Hour})
		}
		result.shifts = append(result.shifts, statistic.RollupShift(
			src.ID, w.BusinessDate, w.Index, w.Start, w.End,
			readings, all, keys, s.interval, now,
		))
	}
	return result, nil
}

// aggregateHours fetches the readings spanning buckets and aggregates each
// bucket. Buckets without samples are omitted.
func (s *ReportService) aggregateHours(ctx context.Context, src Source, buckets []window.HourBucket, now time.Time) ([]telemetry.Reading, map[statistic.Bucket]statistic.HourlyAggregate) {
	hours := make(map[statistic.Bucket]statistic.HourlyAggregate)
	if len(buckets) == 0 {
		return nil, hours
	}
	start, end := buckets[0].Start, buckets[0].End()
	for _, b := range buckets[1:] {
		if b.Start.Before(start) {
			start = b.Start
		}
		if b.End().After(end) {
			end = b.End()
		}
	}
	readings := s.fetch(ctx, src.ID, start, end)

	wanted := make(map[statistic.Bucket]bool, len(buckets))
	var dates []string
	for _, b := range buckets {
		if !slices.Contains(dates, b.Date) {
			dates = append(dates, b.Date)
		}
		wanted[statistic.Bucket{Date: b.Date, Hour: b.Hour}] = true
	}

	// Readings are keyed against the requested dates only, so rows outside
	// the requested buckets never reach an aggregate.
	loc := src.Schedule.Location()
	grouped := make(map[statistic.Bucket][]telemetry.Reading)
	for _, r := range readings {
		for _, date := range dates {
			hour, ok := window.HourBucketKey(r.At, date, loc)
			if !ok {
				continue
			}
			if key := (statistic.Bucket{Date: date, Hour: hour}); wanted[key] {
				grouped[key] = append(grouped[key], r)
			}
			break
		}
	}

	for _, b := range buckets {
		key := statistic.Bucket{Date: b.Date, Hour: b.Hour}
		if _, done := hours[key]; done {
			continue
		}
		rows := grouped[key]
		summary := statistic.Aggregate(rows)
		if summary.SampleCount == 0 {
			continue
		}
		s.checkNominal(src.ID, key, rows, summary)
		hours[key] = statistic.HourlyAggregate{
			SourceID:        src.ID,
			BusinessDate:    b.Date,
			Hour:            b.Hour,
			Summary:         summary,
			CompletenessPct: statistic.Completeness(summary.SampleCount, time.Hour, s.interval),
			UpdatedAt:       now,
		}
	}
	return readings, hours
}

func (s *ReportService) checkNominal(sourceID string, key statistic.Bucket, rows []telemetry.Reading, summary statistic.Summary) {
	if summary.TotalEnergyKWh <= 0 {
		return
	}
	nominal := statistic.NominalEnergyKWh(rows, s.interval)
	if math.Abs(nominal-summary.TotalEnergyKWh)/summary.TotalEnergyKWh > nominalTolerance {
		s.logger.Debug("nominal energy deviates from integrated energy",
			zap.String("source", sourceID),
			zap.String("date", key.Date),
			zap.Int("hour", key.Hour),
			zap.Float64("integrated_kwh", summary.TotalEnergyKWh),
			zap.Float64("nominal_kwh", nominal),
		)
	}
}

func dayBuckets(schedule *window.Schedule, date string, hour *int) ([]window.HourBucket, error) {
	if hour != nil {
		b, err := schedule.Hour(date, *hour)
		if err != nil {
			return nil, err
		}
		return []window.HourBucket{b}, nil
	}
	buckets := make([]window.HourBucket, 0, 24)
	for h := 0; h < 24; h++ {
		b, err := schedule.Hour(date, h)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func sortedHours(hours map[statistic.Bucket]statistic.HourlyAggregate) []statistic.HourlyAggregate {
	result := make([]statistic.HourlyAggregate, 0, len(hours))
	for _, agg := range hours {
		result = append(result, agg)
	}
	sortHourly(result)
	return result
}

func sortHourly(rows []statistic.HourlyAggregate) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SourceID != rows[j].SourceID {
			return rows[i].SourceID < rows[j].SourceID
		}
		if rows[i].BusinessDate != rows[j].BusinessDate {
			return rows[i].BusinessDate < rows[j].BusinessDate
		}
		return rows[i].Hour < rows[j].Hour
	})
}

func zeroFill(sourceID string, dates []string, rows []statistic.HourlyAggregate) []statistic.HourlyAggregate {
	stored := make(map[statistic.Bucket]statistic.HourlyAggregate, len(rows))
	for _, row := range rows {
		stored[statistic.Bucket{Date: row.BusinessDate, Hour: row.Hour}] = row
	}
	result := make([]statistic.HourlyAggregate, 0, len(dates)*24)
	for _, date := range dates {
		for h := 0; h < 24; h++ {
			if row, ok := stored[statistic.Bucket{Date: date, Hour: h}]; ok {
				result = append(result, row)
				continue
			}
			result = append(result, statistic.HourlyAggregate{SourceID: sourceID, BusinessDate: date, Hour: h})
		}
	}
	return result
}

func notStarted(sourceID, date string) *statistic.DailyReport {
	return &statistic.DailyReport{
		SourceID:     sourceID,
		BusinessDate: date,
		Status:       statistic.StatusNotStarted,
		Shifts:       []statistic.ShiftAggregate{},
	}
}
