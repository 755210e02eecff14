package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"panel-energy/internal/reporting/domain/window"
	"panel-energy/internal/scheduling"
)

const retentionDelay = 30 * time.Minute

// SchedulerConfig configures the recurring report tasks.
type SchedulerConfig struct {
	// HourlySettleMinute is the minute past each hour at which the previous
	// hour is generated.
	HourlySettleMinute int
	// DayCloseAt is the local time at which the previous business date is
	// regenerated in full.
	DayCloseAt string
	// RetentionDays enables a daily prune when positive.
	RetentionDays int
}

// Scheduler derives wall-clock tasks from the sources' shift schedules.
type Scheduler struct {
	svc     *ReportService
	cfg     SchedulerConfig
	closeAt window.Clock
	logger  *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(svc *ReportService, cfg SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	if svc == nil {
		return nil, errors.New("report scheduler: nil service")
	}
	if cfg.HourlySettleMinute < 0 || cfg.HourlySettleMinute > 59 {
		return nil, fmt.Errorf("report scheduler: settle minute %d out of range", cfg.HourlySettleMinute)
	}
	if cfg.DayCloseAt == "" {
		cfg.DayCloseAt = "07:10"
	}
	closeAt, err := window.ParseClock(cfg.DayCloseAt)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{svc: svc, cfg: cfg, closeAt: closeAt, logger: logger}, nil
}

// Tasks returns the hourly, shift-end, day-close and retention tasks.
// Shift-end tasks are grouped by trigger time and shift index so sources
// sharing a schedule run together.
func (s *Scheduler) Tasks() []scheduling.Task {
	loc := s.svc.sources[0].Schedule.Location()
	tasks := []scheduling.Task{
		{
			Name:    "hourly",
			Trigger: scheduling.HourlyAt{Minute: s.cfg.HourlySettleMinute, Location: loc},
			Run:     s.runHourly,
		},
	}
	tasks = append(tasks, s.shiftTasks()...)
	tasks = append(tasks, scheduling.Task{
		Name:    "day-close",
		Trigger: scheduling.DailyAt{Hour: s.closeAt.Hour, Minute: s.closeAt.Minute, Location: loc},
		Run:     s.runDayClose,
	})
	if s.cfg.RetentionDays > 0 {
		at := s.closeAt.Add(retentionDelay)
		tasks = append(tasks, scheduling.Task{
			Name:    "retention",
			Trigger: scheduling.DailyAt{Hour: at.Hour, Minute: at.Minute, Location: loc},
			Run: func(ctx context.Context, _ time.Time) error {
				_, err := s.svc.Prune(ctx, s.cfg.RetentionDays)
				return err
			},
		})
	}
	return tasks
}

type shiftGroup struct {
	at      window.Clock
	shift   int
	sources []string
	loc     *time.Location
}

func (s *Scheduler) shiftTasks() []scheduling.Task {
	groups := make(map[string]*shiftGroup)
	for _, src := range s.svc.sources {
		for _, idx := range src.Schedule.ShiftIndexes() {
			at, err := src.Schedule.EndTrigger(idx)
			if err != nil {
				continue
			}
			key := fmt.Sprintf("shift-%d-end@%s", idx, at)
			g, ok := groups[key]
			if !ok {
				g = &shiftGroup{at: at, shift: idx, loc: src.Schedule.Location()}
				groups[key] = g
			}
			g.sources = append(g.sources, src.ID)
		}
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	tasks := make([]scheduling.Task, 0, len(names))
	for _, name := range names {
		g := groups[name]
		tasks = append(tasks, scheduling.Task{
			Name:    name,
			Trigger: scheduling.DailyAt{Hour: g.at.Hour, Minute: g.at.Minute, Location: g.loc},
			Run: func(ctx context.Context, firedAt time.Time) error {
				return s.svc.runShiftEnd(ctx, g.sources, g.shift, firedAt)
			},
		})
	}
	return tasks
}

func (s *Scheduler) runHourly(ctx context.Context, firedAt time.Time) error {
	bucket := s.svc.sources[0].Schedule.PreviousHour(firedAt)
	hour := bucket.Hour
	rows, err := s.svc.GenerateHourly(ctx, bucket.Date, &hour)
	s.logger.Info("hourly run",
		zap.String("date", bucket.Date),
		zap.Int("hour", hour),
		zap.Int("rows", len(rows)),
	)
	return err
}

// runDayClose regenerates the business date before the one in progress.
func (s *Scheduler) runDayClose(ctx context.Context, firedAt time.Time) error {
	current := s.svc.sources[0].Schedule.BusinessDate(firedAt)
	previous, err := window.AddDays(current, -1)
	if err != nil {
		return err
	}
	reports, err := s.svc.GenerateDaily(ctx, previous)
	s.logger.Info("day close",
		zap.String("date", previous),
		zap.Int("reports", len(reports)),
	)
	return err
}
