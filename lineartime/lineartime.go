// Package lineartime implements the fixed-point time scale used by the engine.
//
// A Time is a signed count of milliseconds since the start of Julian Day 0,
// which is -4712-01-01T00:00 in the proleptic Julian calendar. Every date the
// engine deals with lies after that epoch, so valid values are non-negative.
// Dates before 1582-10-15 follow the Julian leap year rule, dates from then on
// the Gregorian one. The ten days 1582-10-05 through 1582-10-14 never existed
// and are not valid inputs.
//
// A Time carries no zone. Whether it denotes a UTC instant, a wall clock
// reading or a duration is decided by the tzctx.Context stored next to it.
package lineartime

import (
	"fmt"
	"math"
)

// Time is a point on the linear time scale, in ticks since the epoch.
type Time int64

// Tick granularity. A tick is one millisecond.
const (
	TicksPerSecond Time = 1000
	TicksPerMinute      = 60 * TicksPerSecond
	TicksPerHour        = 60 * TicksPerMinute
	TicksPerDay         = 24 * TicksPerHour
	TicksPerWeek        = 7 * TicksPerDay
)

const (
	// NoTime is the sentinel for "no time given". Conversions pass it through unchanged.
	NoTime Time = math.MinInt64
	// MaxTime is the largest representable Time.
	MaxTime Time = math.MaxInt64
)

const (
	// gregorianStartDay is the day number of 1582-10-15, the first Gregorian date.
	gregorianStartDay = 2299161
	// unixEpochDay is the day number of 1970-01-01.
	unixEpochDay = 2440588
	// epochWeekday is the weekday of day number 0 (a Monday), 0 meaning Sunday.
	epochWeekday = 1
)

// Weekdays as returned by WeekdayOf.
const (
	Sunday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorMod is the remainder matching floorDiv; its sign follows b.
func floorMod(a, b int64) int64 {
	return a - b*floorDiv(a, b)
}

// isGregorian reports whether the date falls on or after the calendar reform.
func isGregorian(year, month, day int) bool {
	if year != 1582 {
		return year > 1582
	}
	if month != 10 {
		return month > 10
	}
	return day >= 15
}

// DayNumber returns the Julian Day Number of the given calendar date.
func DayNumber(year, month, day int) int64 {
	a := int64((14 - month) / 12)
	y := int64(year) + 4800 - a
	m := int64(month) + 12*a - 3
	jdn := int64(day) + floorDiv(153*m+2, 5) + 365*y + floorDiv(y, 4)
	if isGregorian(year, month, day) {
		return jdn - floorDiv(y, 100) + floorDiv(y, 400) - 32045
	}
	return jdn - 32083
}

// dateOfDayNumber is the inverse of DayNumber.
func dateOfDayNumber(jdn int64) (year, month, day int) {
	var b, c int64
	if jdn >= gregorianStartDay {
		a := jdn + 32044
		b = floorDiv(4*a+3, 146097)
		c = a - floorDiv(146097*b, 4)
	} else {
		c = jdn + 32082
	}
	d := floorDiv(4*c+3, 1461)
	e := c - floorDiv(1461*d, 4)
	m := floorDiv(5*e+2, 153)
	day = int(e - floorDiv(153*m+2, 5) + 1)
	month = int(m + 3 - 12*floorDiv(m, 10))
	year = int(100*b + d - 4800 + floorDiv(m, 10))
	return year, month, day
}

// DateToLinear returns the Time of midnight at the start of the given date.
func DateToLinear(year, month, day int) Time {
	return Time(DayNumber(year, month, day)) * TicksPerDay
}

// LinearToDate returns the calendar date t falls on.
func LinearToDate(t Time) (year, month, day int) {
	return dateOfDayNumber(floorDiv(int64(t), int64(TicksPerDay)))
}

// TimeToLinear returns the number of ticks from midnight to the given time of day.
// Out of range components are not normalized, they simply add up.
func TimeToLinear(hour, minute, second, millisecond int) Time {
	return ((Time(hour)*60+Time(minute))*60+Time(second))*TicksPerSecond + Time(millisecond)
}

// LinearToTime returns the time of day of t. Negative values count back from
// the following midnight, so the result is always a valid time of day.
func LinearToTime(t Time) (hour, minute, second, millisecond int) {
	r := floorMod(int64(t), int64(TicksPerDay))
	millisecond = int(r % 1000)
	r /= 1000
	second = int(r % 60)
	r /= 60
	minute = int(r % 60)
	hour = int(r / 60)
	return hour, minute, second, millisecond
}

// WeekdayOf returns the day of the week of t, 0 (Sunday) through 6 (Saturday).
func WeekdayOf(t Time) int {
	jdn := floorDiv(int64(t), int64(TicksPerDay))
	return int(floorMod(jdn+epochWeekday, 7))
}

// DateTime combines DateToLinear and TimeToLinear.
func DateTime(year, month, day, hour, minute, second, millisecond int) Time {
	return DateToLinear(year, month, day) + TimeToLinear(hour, minute, second, millisecond)
}

// Date returns the calendar date of t.
func (t Time) Date() (year, month, day int) {
	return LinearToDate(t)
}

// Clock returns the time of day of t.
func (t Time) Clock() (hour, minute, second, millisecond int) {
	return LinearToTime(t)
}

// Year returns the calendar year of t.
func (t Time) Year() int {
	y, _, _ := LinearToDate(t)
	return y
}

// Weekday returns the day of the week of t, 0 being Sunday.
func (t Time) Weekday() int {
	return WeekdayOf(t)
}

// Midnight returns t truncated to the start of its day.
func (t Time) Midnight() Time {
	return Time(floorDiv(int64(t), int64(TicksPerDay))) * TicksPerDay
}

// TimeOfDay returns the ticks elapsed since the start of t's day.
func (t Time) TimeOfDay() Time {
	return Time(floorMod(int64(t), int64(TicksPerDay)))
}

// Minutes returns a span of n minutes.
func Minutes(n int) Time {
	return Time(n) * TicksPerMinute
}

// Seconds returns a span of n seconds.
func Seconds(n int64) Time {
	return Time(n) * TicksPerSecond
}

// String renders t as an extended ISO date and time for diagnostics.
func (t Time) String() string {
	if t == NoTime {
		return "<no time>"
	}
	y, mo, d := t.Date()
	h, mi, s, ms := t.Clock()
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03d", y, mo, d, h, mi, s, ms)
}
