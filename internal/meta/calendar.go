package meta

import "time"

// Calendar is a calendar-typed attribute value: an instant together with
// the location it is expressed in.
//
// Calendars are stored as native temporal values; decoding always builds a
// fresh Calendar around the stored instant.
type Calendar struct {
	Time time.Time
}

// NewCalendar returns a calendar set to t.
func NewCalendar(t time.Time) *Calendar {
	return &Calendar{Time: t}
}

// Equal reports whether both calendars denote the same instant.
func (c *Calendar) Equal(o *Calendar) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.Time.Equal(o.Time)
}

// String formats the calendar as RFC 3339 with nanoseconds.
func (c *Calendar) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Time.Format(time.RFC3339Nano)
}
