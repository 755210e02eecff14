package window

import (
	"regexp"
	"time"
)

// Period kinds accepted by ResolvePeriod.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

var monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// PeriodRange is an inclusive date range together with the range of the
// same kind immediately before it.
type PeriodRange struct {
	Period   string
	From     string
	To       string
	PrevFrom string
	PrevTo   string
	Days     int
}

// ResolvePeriod returns the range of period anchored at date. A day is date
// itself, a week is the seven days starting at date and a month is the
// calendar month containing date.
func ResolvePeriod(period, date string) (PeriodRange, error) {
	day, err := ParseDate(date, time.UTC)
	if err != nil {
		return PeriodRange{}, err
	}
	var from, to, prevFrom, prevTo time.Time
	switch period {
	case PeriodDay:
		from, to = day, day
		prevFrom, prevTo = day.AddDate(0, 0, -1), day.AddDate(0, 0, -1)
	case PeriodWeek:
		from, to = day, day.AddDate(0, 0, 6)
		prevFrom, prevTo = day.AddDate(0, 0, -7), day.AddDate(0, 0, -1)
	case PeriodMonth:
		from = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, -1)
		prevFrom, prevTo = from.AddDate(0, -1, 0), from.AddDate(0, 0, -1)
	default:
		return PeriodRange{}, invalid("period", period, "expected day, week or month")
	}
	return PeriodRange{
		Period:   period,
		From:     from.Format(DateLayout),
		To:       to.Format(DateLayout),
		PrevFrom: prevFrom.Format(DateLayout),
		PrevTo:   prevTo.Format(DateLayout),
		Days:     int(to.Sub(from).Hours()/24) + 1,
	}, nil
}

// MonthRange returns the first and last date of a "YYYY-MM" month.
func MonthRange(month string) (string, string, error) {
	if !monthPattern.MatchString(month) {
		return "", "", invalid("month", month, "expected YYYY-MM")
	}
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", invalid("month", month, "not a calendar month")
	}
	return first.Format(DateLayout), first.AddDate(0, 1, -1).Format(DateLayout), nil
}
