// Package rrule converts between RFC 5545 recurrence rules and the yearly
// change points of timezone rules.
//
// Only what VTIMEZONE blocks use is supported: yearly rules selecting one
// day in one month, either as the n-th (or last) weekday or as a fixed day
// of month. Outlook style rules that select a weekday within a seven day
// BYMONTHDAY window are understood as well.
package rrule

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzreg"
)

// ErrUnsupported is returned for rules that do not describe one yearly date.
var ErrUnsupported = errors.New("unsupported recurrence rule")

var weekdays = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// WeekdayNum is an entry of BYDAY: an optional occurrence and a weekday.
type WeekdayNum struct {
	// N is the occurrence in the month, negative counting from the end,
	// 0 meaning every occurrence.
	N       int
	Weekday int
}

func (w WeekdayNum) String() string {
	if w.N == 0 {
		return weekdays[w.Weekday]
	}
	return strconv.Itoa(w.N) + weekdays[w.Weekday]
}

// Rule is a parsed recurrence rule.
type Rule struct {
	Freq       string
	Interval   int
	ByMonth    []int
	ByDay      []WeekdayNum
	ByMonthDay []int
	// Until and Count are kept verbatim; they do not change the yearly date.
	Until string
	Count int
}

// Parse reads a recurrence rule value such as FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU.
func Parse(s string) (Rule, error) {
	var r Rule
	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, fmt.Errorf("rrule part %q: missing '='", part)
		}
		var err error
		switch strings.ToUpper(key) {
		case "FREQ":
			r.Freq = strings.ToUpper(value)
		case "INTERVAL":
			r.Interval, err = strconv.Atoi(value)
		case "BYMONTH":
			r.ByMonth, err = parseInts(value, 1, 12)
		case "BYMONTHDAY":
			r.ByMonthDay, err = parseInts(value, -31, 31)
		case "BYDAY":
			r.ByDay, err = parseByDay(value)
		case "UNTIL":
			r.Until = value
		case "COUNT":
			r.Count, err = strconv.Atoi(value)
		case "WKST":
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupported, key)
		}
		if err != nil {
			return Rule{}, fmt.Errorf("rrule part %q: %w", part, err)
		}
	}
	if r.Freq == "" {
		return Rule{}, errors.New("rrule: missing FREQ")
	}
	return r, nil
}

func parseInts(s string, lo, hi int) ([]int, error) {
	var vs []int
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimPrefix(f, "+"))
		if err != nil {
			return nil, err
		}
		if v < lo || v > hi || v == 0 {
			return nil, fmt.Errorf("value %d out of range", v)
		}
		vs = append(vs, v)
	}
	return vs, nil
}

func parseByDay(s string) ([]WeekdayNum, error) {
	var ds []WeekdayNum
	for _, f := range strings.Split(s, ",") {
		f = strings.ToUpper(f)
		if len(f) < 2 {
			return nil, fmt.Errorf("invalid weekday %q", f)
		}
		day := slices.Index(weekdays[:], f[len(f)-2:])
		if day < 0 {
			return nil, fmt.Errorf("invalid weekday %q", f)
		}
		var n int
		if num := strings.TrimPrefix(f[:len(f)-2], "+"); num != "" {
			var err error
			if n, err = strconv.Atoi(num); err != nil || n < -5 || n > 5 || n == 0 {
				return nil, fmt.Errorf("invalid occurrence in %q", f)
			}
		}
		ds = append(ds, WeekdayNum{N: n, Weekday: day})
	}
	return ds, nil
}

// String renders r with the parts in the order FREQ, INTERVAL, BYMONTH,
// BYMONTHDAY, BYDAY, UNTIL, COUNT.
func (r Rule) String() string {
	parts := []string{"FREQ=" + r.Freq}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if len(r.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(r.ByMonth))
	}
	if len(r.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.ByMonthDay))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = d.String()
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	if r.Until != "" {
		parts = append(parts, "UNTIL="+r.Until)
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	return strings.Join(parts, ";")
}

func joinInts(vs []int) string {
	s := make([]string, len(vs))
	for i, v := range vs {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

// Engine converts between recurrence rules and change points.
type Engine struct{}

// ChangePoint returns the change point described by the rule text and its
// first occurrence dtstart, a local wall time. Parts missing from the rule
// are taken from dtstart. The second result is the first occurrence of the
// change point at or after dtstart, which differs from dtstart when dtstart
// is not an occurrence itself.
func (Engine) ChangePoint(rule string, dtstart lineartime.Time) (tzreg.ChangePoint, lineartime.Time, error) {
	r, err := Parse(rule)
	if err != nil {
		return tzreg.ChangePoint{}, dtstart, err
	}
	cp, err := r.changePoint(dtstart)
	if err != nil {
		return tzreg.ChangePoint{}, dtstart, err
	}
	year := dtstart.Year()
	start := cp.At(year)
	if start < dtstart {
		start = cp.At(year + 1)
	}
	return cp, start, nil
}

func (r Rule) changePoint(dtstart lineartime.Time) (tzreg.ChangePoint, error) {
	if r.Freq != "YEARLY" || r.Interval > 1 {
		return tzreg.ChangePoint{}, fmt.Errorf("%w: FREQ=%s;INTERVAL=%d", ErrUnsupported, r.Freq, r.Interval)
	}
	year, month, day := dtstart.Date()
	hour, minute, _, _ := dtstart.Clock()
	cp := tzreg.ChangePoint{Month: month, Hour: hour, Minute: minute}

	switch len(r.ByMonth) {
	case 0:
	case 1:
		cp.Month = r.ByMonth[0]
	default:
		return tzreg.ChangePoint{}, fmt.Errorf("%w: more than one month", ErrUnsupported)
	}

	switch {
	case len(r.ByDay) > 1:
		return tzreg.ChangePoint{}, fmt.Errorf("%w: more than one weekday", ErrUnsupported)
	case len(r.ByDay) == 1 && r.ByDay[0].N != 0:
		d := r.ByDay[0]
		if len(r.ByMonthDay) > 0 {
			return tzreg.ChangePoint{}, fmt.Errorf("%w: BYDAY with occurrence and BYMONTHDAY", ErrUnsupported)
		}
		switch {
		case d.N == -1:
			cp.Nth = 5
		case d.N > 0 && d.N < 5:
			cp.Nth = d.N
		default:
			return tzreg.ChangePoint{}, fmt.Errorf("%w: occurrence %d", ErrUnsupported, d.N)
		}
		cp.Weekday = d.Weekday
	case len(r.ByDay) == 1:
		cp.Weekday = r.ByDay[0].Weekday
		if len(r.ByMonthDay) == 0 {
			cp.Nth = lineartime.WeekOfMonth(year, cp.Month, lineartime.ClampDay(year, cp.Month, day), false)
			break
		}
		nth, ok := windowOccurrence(r.ByMonthDay)
		if !ok {
			return tzreg.ChangePoint{}, fmt.Errorf("%w: BYMONTHDAY=%s", ErrUnsupported, joinInts(r.ByMonthDay))
		}
		cp.Nth = nth
	case len(r.ByMonthDay) == 1 && r.ByMonthDay[0] > 0:
		cp.Weekday, cp.Nth = tzreg.FixedDay, r.ByMonthDay[0]
	case len(r.ByMonthDay) == 0:
		cp.Weekday, cp.Nth = tzreg.FixedDay, day
	default:
		return tzreg.ChangePoint{}, fmt.Errorf("%w: BYMONTHDAY=%s", ErrUnsupported, joinInts(r.ByMonthDay))
	}
	if err := cp.Validate(); err != nil {
		return tzreg.ChangePoint{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return cp, nil
}

// windowOccurrence maps a seven day BYMONTHDAY window to the occurrence of
// the weekday it contains: 1-7 is the first, 8-14 the second and so on, the
// last seven days of the month (written -7..-1 or 25..31) the last.
func windowOccurrence(days []int) (int, bool) {
	if len(days) != 7 {
		return 0, false
	}
	sorted := slices.Clone(days)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return 0, false
		}
	}
	switch first := sorted[0]; {
	case first == -7 || first == 25:
		return 5, true
	case first > 0 && first%7 == 1 && first <= 22:
		return first/7 + 1, true
	}
	return 0, false
}

// RRule renders cp as a yearly rule and returns it with its occurrence in
// anchorYear, to be used as DTSTART.
func (Engine) RRule(cp tzreg.ChangePoint, anchorYear int) (string, lineartime.Time, error) {
	if cp.IsZero() {
		return "", lineartime.NoTime, fmt.Errorf("%w: no transition", ErrUnsupported)
	}
	if err := cp.Validate(); err != nil {
		return "", lineartime.NoTime, err
	}
	r := Rule{Freq: "YEARLY", ByMonth: []int{cp.Month}}
	if cp.Weekday == tzreg.FixedDay {
		r.ByMonthDay = []int{cp.Nth}
	} else {
		n := cp.Nth
		if n >= 5 {
			n = -1
		}
		r.ByDay = []WeekdayNum{{N: n, Weekday: cp.Weekday}}
	}
	return r.String(), cp.At(anchorYear), nil
}
