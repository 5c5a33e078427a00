package lineartime

// IsLeapYear reports whether year has a February 29th. Years up to 1582 use
// the Julian rule.
func IsLeapYear(year int) bool {
	if floorMod(int64(year), 4) != 0 {
		return false
	}
	if year <= 1582 {
		return true
	}
	return year%100 != 0 || year%400 == 0
}

// DaysInMonth returns the number of days in month of year.
func DaysInMonth(year, month int) int {
	switch month {
	case 2:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case 4, 6, 9, 11:
		return 30
	}
	return 31
}

// ClampDay limits day to the range of days of the given month.
func ClampDay(year, month, day int) int {
	if day < 1 {
		return 1
	}
	if n := DaysInMonth(year, month); day > n {
		return n
	}
	return day
}

// ValidDate reports whether the date exists in the calendar.
func ValidDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 || day > DaysInMonth(year, month) {
		return false
	}
	// Skipped by the calendar reform.
	return !(year == 1582 && month == 10 && day > 4 && day < 15)
}

// WeekdayOfDate returns the day of the week of a calendar date, 0 being Sunday.
func WeekdayOfDate(year, month, day int) int {
	return int(floorMod(DayNumber(year, month, day)+epochWeekday, 7))
}

// NthWeekdayOfMonth returns the day of month of the n-th occurrence of weekday
// in the given month. n counts from 1; 5 (or more) selects the last occurrence,
// which may be the fourth.
func NthWeekdayOfMonth(year, month, weekday, n int) int {
	if n >= 5 {
		return LastWeekdayOfMonth(year, month, weekday)
	}
	first := WeekdayOfDate(year, month, 1)
	day := 1 + (weekday-first+7)%7 + (n-1)*7
	return day
}

// LastWeekdayOfMonth returns the day of month of the last occurrence of weekday.
func LastWeekdayOfMonth(year, month, weekday int) int {
	last := DaysInMonth(year, month)
	offset := (WeekdayOfDate(year, month, last) - weekday + 7) % 7
	return last - offset
}

// WeekOfMonth returns which occurrence of its weekday the given day is,
// counting from 1. When lastIsFive is set, a day that is the last occurrence
// in its month is reported as 5.
func WeekOfMonth(year, month, day int, lastIsFive bool) int {
	if lastIsFive && day+7 > DaysInMonth(year, month) {
		return 5
	}
	return (day-1)/7 + 1
}

// DayOfYear returns the 1-based ordinal day of the date within its year.
func DayOfYear(year, month, day int) int {
	return int(DayNumber(year, month, day)-DayNumber(year, 1, 1)) + 1
}
