// Package iso8601 reads and writes ISO 8601 timestamps, durations and UTC
// offsets as exchanged with SyncML peers.
//
// Basic format:    20040101T120000[.mmm][Z|+HHMM]
// Extended format: 2004-01-01T12:00:00[.mmm][Z|+HH:MM]
// Durations:       [+|-]PnYnMnWnDTnHnMnS[.mmm]
//
// The first separator after the year decides between basic and extended
// format for the rest of the timestamp.
//
// Parse functions return the number of bytes consumed, 0 meaning the input
// is malformed. Trailing input is left to the caller.
package iso8601

import (
	"strconv"
	"strings"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
)

// Duration units. Years and months are fixed approximations.
const (
	durationYear  = 365 * lineartime.TicksPerDay
	durationMonth = 30 * lineartime.TicksPerDay
)

// scanner walks over an input string.
type scanner struct {
	s   string
	pos int
}

func (sc *scanner) peek() byte {
	if sc.pos < len(sc.s) {
		return sc.s[sc.pos]
	}
	return 0
}

func (sc *scanner) accept(c byte) bool {
	if sc.peek() == c {
		sc.pos++
		return true
	}
	return false
}

// digits reads exactly n decimal digits.
func (sc *scanner) digits(n int) (int, bool) {
	if sc.pos+n > len(sc.s) {
		return 0, false
	}
	v := 0
	for i := 0; i < n; i++ {
		c := sc.s[sc.pos+i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int(c-'0')
	}
	sc.pos += n
	return v, true
}

// number reads one or more decimal digits.
func (sc *scanner) number() (int64, bool) {
	start := sc.pos
	for sc.pos < len(sc.s) && sc.s[sc.pos] >= '0' && sc.s[sc.pos] <= '9' {
		sc.pos++
	}
	if sc.pos == start {
		return 0, false
	}
	v, err := strconv.ParseInt(sc.s[start:sc.pos], 10, 64)
	return v, err == nil
}

func (sc *scanner) isDigit() bool {
	c := sc.peek()
	return c >= '0' && c <= '9'
}

// fraction reads the digits after a decimal mark as milliseconds. Digits
// beyond the third are consumed and dropped.
func (sc *scanner) fraction() (int, bool) {
	if !sc.accept('.') && !sc.accept(',') {
		return 0, true
	}
	if !sc.isDigit() {
		return 0, false
	}
	ms, scale := 0, 100
	for sc.isDigit() {
		ms += int(sc.peek()-'0') * scale
		scale /= 10
		sc.pos++
	}
	return ms, true
}

// ParseTimestamp parses a timestamp or a duration. Timestamps without a
// time of day get a DateOnly context, times without a date (written with a
// leading T) a TimeOnly context holding the time since midnight. Without a
// zone designator the context is tzctx.Unknown. Durations get a context
// flagged tzctx.Duration and hold the span in ticks.
func ParseTimestamp(s string) (int, lineartime.Time, tzctx.Context) {
	sc := &scanner{s: s}
	if c := sc.peek(); c == 'P' || ((c == '+' || c == '-') && len(s) > 1 && s[1] == 'P') {
		return parseDuration(sc)
	}

	var (
		t        lineartime.Time
		flags    tzctx.Flags
		extended bool
	)
	if sc.peek() == 'T' {
		flags = tzctx.TimeOnly
	} else {
		year, ok := sc.digits(4)
		if !ok {
			return 0, 0, tzctx.Unknown
		}
		extended = sc.accept('-')
		month, ok := sc.digits(2)
		if !ok || (extended && !sc.accept('-')) {
			return 0, 0, tzctx.Unknown
		}
		day, ok := sc.digits(2)
		if !ok || !lineartime.ValidDate(year, month, day) {
			return 0, 0, tzctx.Unknown
		}
		t = lineartime.DateToLinear(year, month, day)
		if sc.peek() != 'T' {
			return sc.pos, t, tzctx.Unknown.WithFlags(tzctx.DateOnly)
		}
	}

	sc.accept('T')
	if flags == tzctx.TimeOnly {
		// A time on its own decides its format by itself.
		extended = len(s) > 3 && s[3] == ':'
	}
	tod, ok := parseTime(sc, extended)
	if !ok {
		return 0, 0, tzctx.Unknown
	}
	t += tod

	ctx := tzctx.Unknown
	if n, zone := ParseOffset(s[sc.pos:]); n > 0 {
		sc.pos += n
		ctx = zone
	}
	return sc.pos, t, ctx.WithFlags(flags)
}

// parseTime reads hh[mm[ss]][.fff] (basic) or hh:mm:ss[.fff] (extended).
func parseTime(sc *scanner, extended bool) (lineartime.Time, bool) {
	hour, ok := sc.digits(2)
	if !ok {
		return 0, false
	}
	var minute, second, ms int
	withSeconds := true
	if extended {
		if !sc.accept(':') {
			return 0, false
		}
		if minute, ok = sc.digits(2); !ok || !sc.accept(':') {
			return 0, false
		}
		if second, ok = sc.digits(2); !ok {
			return 0, false
		}
	} else {
		withSeconds = false
		if sc.isDigit() {
			if minute, ok = sc.digits(2); !ok {
				return 0, false
			}
			if sc.isDigit() {
				if second, ok = sc.digits(2); !ok {
					return 0, false
				}
				withSeconds = true
			}
		}
		if !withSeconds && (sc.peek() == '.' || sc.peek() == ',') {
			// Only seconds may have a fraction.
			return 0, false
		}
	}
	if withSeconds {
		if ms, ok = sc.fraction(); !ok {
			return 0, false
		}
	}
	if hour > 23 || minute > 59 || second > 60 {
		return 0, false
	}
	if second == 60 {
		// Leap seconds are folded into the last second of the minute.
		second, ms = 59, 999
	}
	return lineartime.TimeToLinear(hour, minute, second, ms), true
}

// ParseOffset parses a zone designator: Z for UTC or ±HH[[:]MM] for a
// fixed offset. Anything else yields tzctx.Unknown and 0.
func ParseOffset(s string) (int, tzctx.Context) {
	sc := &scanner{s: s}
	if sc.accept('Z') {
		return sc.pos, tzctx.UTC
	}
	sign := 1
	switch {
	case sc.accept('+'):
	case sc.accept('-'):
		sign = -1
	default:
		return 0, tzctx.Unknown
	}
	hours, ok := sc.digits(2)
	if !ok || hours > 23 {
		return 0, tzctx.Unknown
	}
	minutes := 0
	mark := sc.pos
	colon := sc.accept(':')
	if sc.isDigit() {
		if minutes, ok = sc.digits(2); !ok || minutes > 59 {
			return 0, tzctx.Unknown
		}
	} else if colon {
		// A lone colon belongs to whatever follows.
		sc.pos = mark
	}
	return sc.pos, tzctx.FromMinutes(sign * (hours*60 + minutes))
}

// parseDuration reads [+|-]PnYnMnWnDTnHnMnS[.fff].
func parseDuration(sc *scanner) (int, lineartime.Time, tzctx.Context) {
	fail := func() (int, lineartime.Time, tzctx.Context) { return 0, 0, tzctx.Unknown }

	negative := false
	if sc.accept('-') {
		negative = true
	} else {
		sc.accept('+')
	}
	if !sc.accept('P') {
		return fail()
	}

	dateUnits := map[byte]lineartime.Time{
		'Y': durationYear,
		'M': durationMonth,
		'W': lineartime.TicksPerWeek,
		'D': lineartime.TicksPerDay,
	}
	timeUnits := map[byte]lineartime.Time{
		'H': lineartime.TicksPerHour,
		'M': lineartime.TicksPerMinute,
		'S': lineartime.TicksPerSecond,
	}

	var total lineartime.Time
	components := 0
	units, order := dateUnits, "YMWD"
	inTime := false
	for {
		if !inTime && sc.accept('T') {
			units, order, inTime = timeUnits, "HMS", true
			continue
		}
		if !sc.isDigit() {
			break
		}
		n, ok := sc.number()
		if !ok {
			return fail()
		}
		ms := 0
		if inTime {
			if ms, ok = sc.fraction(); !ok {
				return fail()
			}
		}
		unit := sc.peek()
		i := strings.IndexByte(order, unit)
		if i < 0 || (ms != 0 && unit != 'S') {
			return fail()
		}
		// Units appear at most once and in order.
		order = order[i+1:]
		sc.pos++
		total += lineartime.Time(n)*units[unit] + lineartime.Time(ms)
		components++
	}
	if components == 0 || (inTime && sc.s[sc.pos-1] == 'T') {
		return fail()
	}
	if negative {
		total = -total
	}
	return sc.pos, total, tzctx.Unknown.WithFlags(tzctx.Duration)
}
