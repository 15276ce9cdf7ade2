// Package marketcal answers one question for the monitor loop: is the US
// options market trading right now. Regular session only, 9:30 AM to 4:00 PM
// Eastern, Monday through Friday, minus exchange holidays.
package marketcal

import (
	"fmt"
	"time"
)

// Regular session bounds in Eastern time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// Calendar reports US equity market hours. Implements domain.MarketCalendar.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New loads the Eastern timezone and returns a Calendar on the real clock.
func New() (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("marketcal: load timezone: %w", err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewWithClock is New with an injectable clock for tests.
func NewWithClock(now func() time.Time) (*Calendar, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}
	c.now = now
	return c, nil
}

// IsOpenNow reports whether the regular session is trading at this instant.
func (c *Calendar) IsOpenNow() bool {
	return c.IsOpen(c.now())
}

// IsOpen reports whether the regular session is trading at t.
func (c *Calendar) IsOpen(t time.Time) bool {
	et := t.In(c.loc)
	if !c.IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsTradingDay reports whether t falls on a weekday that is not an exchange
// holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	et := t.In(c.loc)
	wd := et.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !isHoliday(et)
}

// NextOpen returns the next session open at or after t. If t precedes
// today's open on a trading day, today's open is returned.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	et := t.In(c.loc)

	todayOpen := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, c.loc)
	if et.Before(todayOpen) && c.IsTradingDay(et) {
		return todayOpen
	}

	d := et.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if c.IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, c.loc)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(et.Year(), et.Month(), et.Day()+1, OpenHour, OpenMinute, 0, 0, c.loc)
}

// TodayClose returns the close time for t's date.
func (c *Calendar) TodayClose(t time.Time) time.Time {
	et := t.In(c.loc)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, c.loc)
}
