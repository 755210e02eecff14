package scheduling

import (
	"fmt"
	"time"
)

// Trigger computes the next fire instant strictly after now.
type Trigger interface {
	Next(now time.Time) time.Time
	String() string
}

// DailyAt fires once a day at a local time of day.
type DailyAt struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns today's occurrence if it is still ahead of now, otherwise tomorrow's.
func (d DailyAt) Next(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d DailyAt) String() string { return fmt.Sprintf("daily@%02d:%02d", d.Hour, d.Minute) }

// HourlyAt fires every hour at a fixed minute.
type HourlyAt struct {
	Minute   int
	Location *time.Location
}

// Next returns the next HH:Minute strictly after now.
func (h HourlyAt) Next(now time.Time) time.Time {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), h.Minute, 0, 0, loc)
	if !next.After(local) {
		next = next.Add(time.Hour)
	}
	return next
}

func (h HourlyAt) String() string { return fmt.Sprintf("hourly@:%02d", h.Minute) }
