package planning

import (
	"fmt"
	"time"
)

// ClosedDayChecker decides whether the pharmacy is closed on a day.
type ClosedDayChecker interface {
	IsClosed(day time.Time) bool
}

// Holidays are the fixed public holidays keyed by "MM-DD". The religious
// feasts move with the lunar calendar; their dates here are approximations.
var Holidays = map[string]string{
	"01-01": "Nouvel An",
	"01-12": "Yennayer",
	"05-01": "Fête du Travail",
	"07-05": "Indépendance",
	"11-01": "Révolution",
	"04-10": "Aïd el-Fitr",
	"06-16": "Aïd el-Adha",
	"07-07": "Mouharram",
	"09-15": "Mawlid",
}

// Calendar is the facility calendar: weekend on Friday and Saturday plus the
// holiday table, evaluated in the facility location.
type Calendar struct {
	loc      *time.Location
	holidays map[string]string
}

func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{loc: loc, holidays: Holidays}
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) IsClosed(day time.Time) bool {
	day = day.In(c.loc)
	if wd := day.Weekday(); wd == time.Friday || wd == time.Saturday {
		return true
	}
	_, ok := c.HolidayName(day)
	return ok
}

// HolidayName returns the holiday falling on day, if any.
func (c *Calendar) HolidayName(day time.Time) (string, bool) {
	name, ok := c.holidays[day.In(c.loc).Format("01-02")]
	return name, ok
}

// FormatDate renders the calendar day of t in the facility location.
func (c *Calendar) FormatDate(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD key as midnight in the facility location.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}
