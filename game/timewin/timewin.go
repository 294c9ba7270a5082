package timewin

import "time"

// Unit is a time window unit.
type Unit string

const (
	UnitSecond Unit = "second"
	UnitMinute Unit = "minute"
	UnitHour   Unit = "hour"
	UnitDay    Unit = "day"
	UnitWeek   Unit = "week"
	UnitMonth  Unit = "month" // approximated as exactly 30 days
)

// ToDuration converts an (amount, unit) window into a duration.
// An unrecognized unit treats amount as seconds.
func ToDuration(amount float64, unit Unit) time.Duration {
	seconds := amount
	switch unit {
	case UnitSecond:
	case UnitMinute:
		seconds = amount * 60
	case UnitHour:
		seconds = amount * 3600
	case UnitDay:
		seconds = amount * 86400
	case UnitWeek:
		seconds = amount * 7 * 86400
	case UnitMonth:
		seconds = amount * 30 * 86400
	}
	return time.Duration(seconds * float64(time.Second))
}

// RestCycle is a recurring nightly window on a 24-hour clock.
type RestCycle struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// Duration returns the length of the rest window. An end earlier than the
// start means the window crosses midnight.
func (rc RestCycle) Duration() time.Duration {
	start := rc.StartHour*60 + rc.StartMinute
	end := rc.EndHour*60 + rc.EndMinute
	minutes := end - start
	if minutes < 0 {
		minutes = (1440 - start) + end
	}
	return time.Duration(minutes) * time.Minute
}

// NextEnd returns the next occurrence of the rest-end clock time strictly
// after now, in now's location.
func (rc RestCycle) NextEnd(now time.Time) time.Time {
	end := time.Date(now.Year(), now.Month(), now.Day(), rc.EndHour, rc.EndMinute, 0, 0, now.Location())
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}

// SameCalendarDay reports whether a and b fall on the same calendar day in
// a's location.
func SameCalendarDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.In(a.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
