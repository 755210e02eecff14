package window

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// DateLayout is the business date format.
const DateLayout = "2006-01-02"

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Zone returns a fixed location for the configured UTC offset.
// The host timezone is never consulted.
func Zone(offsetMinutes int) *time.Location {
	sign := '+'
	abs := offsetMinutes
	if abs < 0 {
		sign = '-'
		abs = -abs
	}
	return time.FixedZone(fmt.Sprintf("UTC%c%02d:%02d", sign, abs/60, abs%60), offsetMinutes*60)
}

// Clock is a local time of day with minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(value string) (Clock, error) {
	if !clockPattern.MatchString(value) {
		return Clock{}, invalid("time", value, "expected HH:MM")
	}
	hour, _ := strconv.Atoi(value[:2])
	minute, _ := strconv.Atoi(value[3:])
	if hour > 23 || minute > 59 {
		return Clock{}, invalid("time", value, "out of range")
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Add shifts the clock by d, wrapping around midnight.
func (c Clock) Add(d time.Duration) Clock {
	minutes := (c.Hour*60 + c.Minute + int(d/time.Minute)) % (24 * 60)
	if minutes < 0 {
		minutes += 24 * 60
	}
	return Clock{Hour: minutes / 60, Minute: minutes % 60}
}

func (c Clock) offset() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

// ParseDate parses "YYYY-MM-DD" and returns local midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if !datePattern.MatchString(value) {
		return time.Time{}, invalid("date", value, "expected YYYY-MM-DD")
	}
	parsed, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, invalid("date", value, "not a calendar date")
	}
	return parsed, nil
}

// FormatDate returns the local calendar date of t.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// LocalInstant converts a calendar date plus a local time of day into an instant.
func LocalInstant(date, hhmm string, offsetMinutes int) (time.Time, error) {
	loc := Zone(offsetMinutes)
	day, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	clock, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(clock.offset()), nil
}

// AddDays returns date shifted by n calendar days.
func AddDays(date string, n int) (string, error) {
	day, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}
	return day.AddDate(0, 0, n).Format(DateLayout), nil
}

// DateRange expands an inclusive date range.
func DateRange(from, to string) ([]string, error) {
	start, err := ParseDate(from, time.UTC)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to, time.UTC)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, invalid("range", from+".."+to, "end before start")
	}
	var dates []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day.Format(DateLayout))
	}
	return dates, nil
}

// ValidateHour rejects hours outside [0, 23].
func ValidateHour(hour int) error {
	if hour < 0 || hour > 23 {
		return invalid("hour", strconv.Itoa(hour), "expected 0..23")
	}
	return nil
}

// HourBucketKey returns the local hour of at, or false when the local
// calendar date of at is not businessDate.
func HourBucketKey(at time.Time, businessDate string, loc *time.Location) (int, bool) {
	local := at.In(loc)
	if local.Format(DateLayout) != businessDate {
		return 0, false
	}
	return local.Hour(), true
}
