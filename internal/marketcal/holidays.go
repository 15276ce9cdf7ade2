package marketcal

import (
	"sync"
	"time"
)

// NYSE full-session holidays, computed by rule so the calendar works for any
// year. Weekend holidays shift per exchange practice: Saturday observes on
// Friday, Sunday on Monday. A New Year's Day falling on Saturday is not
// observed at all, so the preceding year gains no extra holiday.
func holidaysFor(year int) map[string]bool {
	set := make(map[string]bool, 10)
	add := func(t time.Time) {
		set[dateKey(t.Year(), t.Month(), t.Day())] = true
	}

	newYears := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	switch newYears.Weekday() {
	case time.Saturday:
		// not observed
	case time.Sunday:
		add(newYears.AddDate(0, 0, 1))
	default:
		add(newYears)
	}

	add(nthWeekday(year, time.January, time.Monday, 3))  // Martin Luther King, Jr. Day
	add(nthWeekday(year, time.February, time.Monday, 3)) // Washington's Birthday
	add(easter(year).AddDate(0, 0, -2))                  // Good Friday
	add(lastWeekday(year, time.May, time.Monday))        // Memorial Day
	add(observed(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC)))     // Juneteenth
	add(observed(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)))      // Independence Day
	add(nthWeekday(year, time.September, time.Monday, 1))                   // Labor Day
	add(nthWeekday(year, time.November, time.Thursday, 4))                  // Thanksgiving Day
	add(observed(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC))) // Christmas Day

	return set
}

func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(t.Weekday()) - int(weekday) + 7) % 7
	return t.AddDate(0, 0, -offset)
}

// easter returns Easter Sunday for a year in the Gregorian calendar
// (anonymous computus).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

var (
	holidayMu  sync.Mutex
	holidaySet = map[int]map[string]bool{}
)

// isHoliday expects t already converted to Eastern time.
func isHoliday(t time.Time) bool {
	holidayMu.Lock()
	defer holidayMu.Unlock()
	set, ok := holidaySet[t.Year()]
	if !ok {
		set = holidaysFor(t.Year())
		holidaySet[t.Year()] = set
	}
	return set[dateKey(t.Year(), t.Month(), t.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
