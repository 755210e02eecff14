package window

import (
	"sort"
	"strconv"
	"time"
)

// ShiftSpec is the configured local time span of one shift.
// End is inclusive at minute resolution: "14:30" covers 14:30:00-14:30:59.
type ShiftSpec struct {
	Index int    `yaml:"index" json:"index"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// DefaultShifts is the three-shift plant schedule.
func DefaultShifts() []ShiftSpec {
	return []ShiftSpec{
		{Index: 1, Start: "07:01", End: "14:30"},
		{Index: 2, Start: "14:31", End: "22:00"},
		{Index: 3, Start: "22:01", End: "07:00"},
	}
}

// ShiftWindow is the half-open interval [Start, End) of a shift on a business date.
type ShiftWindow struct {
	BusinessDate string
	Index        int
	Start        time.Time
	End          time.Time
}

// Contains reports whether t falls in [Start, End).
func (w ShiftWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// HourBucket identifies one local clock hour.
type HourBucket struct {
	Date  string
	Hour  int
	Start time.Time
}

// End returns the exclusive end of the bucket.
func (b HourBucket) End() time.Time { return b.Start.Add(time.Hour) }

type shift struct {
	index int
	start Clock
	end   Clock
}

// Schedule classifies instants into business dates, shifts and hour buckets
// for one UTC offset and shift configuration.
type Schedule struct {
	loc    *time.Location
	shifts []shift
}

// NewSchedule validates the shift specs. Shift indexes must be 1..n without gaps.
func NewSchedule(offsetMinutes int, specs []ShiftSpec) (*Schedule, error) {
	if offsetMinutes <= -24*60 || offsetMinutes >= 24*60 {
		return nil, invalid("utc_offset_minutes", strconv.Itoa(offsetMinutes), "out of range")
	}
	if len(specs) == 0 {
		return nil, invalid("shifts", "", "at least one shift is required")
	}
	shifts := make([]shift, 0, len(specs))
	seen := make(map[int]bool, len(specs))
	for _, spec := range specs {
		if spec.Index < 1 || spec.Index > len(specs) || seen[spec.Index] {
			return nil, invalid("shift index", strconv.Itoa(spec.Index), "expected unique indexes 1..n")
		}
		seen[spec.Index] = true
		start, err := ParseClock(spec.Start)
		if err != nil {
			return nil, err
		}
		end, err := ParseClock(spec.End)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, shift{index: spec.Index, start: start, end: end})
	}
	sort.Slice(shifts, func(i, j int) bool { return shifts[i].index < shifts[j].index })
	return &Schedule{loc: Zone(offsetMinutes), shifts: shifts}, nil
}

// Location returns the fixed reporting location.
func (s *Schedule) Location() *time.Location { return s.loc }

// ShiftIndexes returns the configured shift indexes in order.
func (s *Schedule) ShiftIndexes() []int {
	indexes := make([]int, len(s.shifts))
	for i, sh := range s.shifts {
		indexes[i] = sh.index
	}
	return indexes
}

// ValidateShiftIndex rejects indexes not present in the schedule.
func (s *Schedule) ValidateShiftIndex(index int) error {
	if _, ok := s.lookup(index); !ok {
		return invalid("shift", strconv.Itoa(index), "unknown shift index")
	}
	return nil
}

// ShiftWindow computes the window of a shift on a business date.
func (s *Schedule) ShiftWindow(businessDate string, index int) (ShiftWindow, error) {
	sh, ok := s.lookup(index)
	if !ok {
		return ShiftWindow{}, invalid("shift", strconv.Itoa(index), "unknown shift index")
	}
	day, err := ParseDate(businessDate, s.loc)
	if err != nil {
		return ShiftWindow{}, err
	}
	return s.window(day, sh), nil
}

// EndTrigger returns the local time of day at which a shift has fully elapsed.
func (s *Schedule) EndTrigger(index int) (Clock, error) {
	sh, ok := s.lookup(index)
	if !ok {
		return Clock{}, invalid("shift", strconv.Itoa(index), "unknown shift index")
	}
	return sh.end.Add(time.Minute), nil
}

// BusinessDate returns the business date that t is filed under. A business
// day starts at the first shift's start; earlier instants belong to the
// previous day.
func (s *Schedule) BusinessDate(t time.Time) string {
	day := s.midnight(t)
	first := s.window(day, s.shifts[0])
	if t.Before(first.Start) {
		day = day.AddDate(0, 0, -1)
	}
	return day.Format(DateLayout)
}

// ShiftOf classifies t into a shift window. It returns false when t falls
// into a gap between configured shifts.
func (s *Schedule) ShiftOf(t time.Time) (ShiftWindow, bool) {
	day, _ := ParseDate(s.BusinessDate(t), s.loc)
	for _, sh := range s.shifts {
		w := s.window(day, sh)
		if w.Contains(t) {
			return w, true
		}
	}
	return ShiftWindow{}, false
}

// LastEnded returns the most recent window of the shift that ended at or before at.
func (s *Schedule) LastEnded(index int, at time.Time) (ShiftWindow, error) {
	sh, ok := s.lookup(index)
	if !ok {
		return ShiftWindow{}, invalid("shift", strconv.Itoa(index), "unknown shift index")
	}
	day := s.midnight(at).AddDate(0, 0, 1)
	for i := 0; i < 4; i++ {
		w := s.window(day, sh)
		if !w.End.After(at) {
			return w, nil
		}
		day = day.AddDate(0, 0, -1)
	}
	return s.window(day, sh), nil
}

// HourBuckets lists every local hour bucket intersecting the window.
func (s *Schedule) HourBuckets(w ShiftWindow) []HourBucket {
	local := w.Start.In(s.loc)
	hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, s.loc)
	var buckets []HourBucket
	for ; hour.Before(w.End); hour = hour.Add(time.Hour) {
		buckets = append(buckets, HourBucket{Date: hour.Format(DateLayout), Hour: hour.Hour(), Start: hour})
	}
	return buckets
}

// Hour returns the bucket for a date and hour.
func (s *Schedule) Hour(date string, hour int) (HourBucket, error) {
	if err := ValidateHour(hour); err != nil {
		return HourBucket{}, err
	}
	day, err := ParseDate(date, s.loc)
	if err != nil {
		return HourBucket{}, err
	}
	return HourBucket{Date: date, Hour: hour, Start: day.Add(time.Duration(hour) * time.Hour)}, nil
}

// PreviousHour returns the last fully elapsed hour bucket before now.
func (s *Schedule) PreviousHour(now time.Time) HourBucket {
	local := now.In(s.loc)
	current := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, s.loc)
	prev := current.Add(-time.Hour)
	return HourBucket{Date: prev.Format(DateLayout), Hour: prev.Hour(), Start: prev}
}

func (s *Schedule) window(day time.Time, sh shift) ShiftWindow {
	start := day.Add(sh.start.offset())
	end := day.Add(sh.end.offset() + time.Minute)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return ShiftWindow{BusinessDate: day.Format(DateLayout), Index: sh.index, Start: start, End: end}
}

func (s *Schedule) midnight(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Schedule) lookup(index int) (shift, bool) {
	for _, sh := range s.shifts {
		if sh.index == index {
			return sh, true
		}
	}
	return shift{}, false
}
