package accounting

import (
	"fmt"
	"time"
)

// FiscalPeriod addresses one month of a fiscal year. Year is the calendar year
// in which the fiscal year starts; Period runs 1..12.
type FiscalPeriod struct {
	Year   int `json:"year"`
	Period int `json:"period"`
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%04d-P%02d", p.Year, p.Period)
}

// Valid reports whether the period index is in range.
func (p FiscalPeriod) Valid() bool {
	return p.Year > 0 && p.Period >= 1 && p.Period <= 12
}

// Before reports whether p precedes other.
func (p FiscalPeriod) Before(other FiscalPeriod) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Period < other.Period
}

// Next returns the following fiscal period.
func (p FiscalPeriod) Next() FiscalPeriod {
	if p.Period >= 12 {
		return FiscalPeriod{Year: p.Year + 1, Period: 1}
	}
	return FiscalPeriod{Year: p.Year, Period: p.Period + 1}
}

// Prev returns the preceding fiscal period.
func (p FiscalPeriod) Prev() FiscalPeriod {
	if p.Period <= 1 {
		return FiscalPeriod{Year: p.Year - 1, Period: 12}
	}
	return FiscalPeriod{Year: p.Year, Period: p.Period - 1}
}

// FiscalCalendar maps calendar dates onto fiscal periods.
type FiscalCalendar struct {
	StartMonth time.Month
}

// DefaultCalendar uses January as the first fiscal month.
var DefaultCalendar = FiscalCalendar{StartMonth: time.January}

func (c FiscalCalendar) start() time.Month {
	if c.StartMonth < time.January || c.StartMonth > time.December {
		return time.January
	}
	return c.StartMonth
}

// PeriodOf returns the fiscal period containing date.
func (c FiscalCalendar) PeriodOf(date time.Time) FiscalPeriod {
	start := c.start()
	month := date.Month()
	year := date.Year()
	if month < start {
		year--
	}
	idx := (int(month)-int(start)+12)%12 + 1
	return FiscalPeriod{Year: year, Period: idx}
}

// Window returns the first and last calendar day of the fiscal period.
func (c FiscalCalendar) Window(p FiscalPeriod) (time.Time, time.Time) {
	first := time.Date(p.Year, c.start()+time.Month(p.Period-1), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// DateOnly truncates t to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
