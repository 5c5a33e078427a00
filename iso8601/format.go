package iso8601

import (
	"fmt"
	"strings"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
)

// FormatTimestamp renders t as ParseTimestamp reads it. The date is left
// out for time-only contexts, the time and zone for date-only contexts.
// Symbolic zones other than UTC are not written; resolve them to an offset
// first. Milliseconds are written only when fractional is set.
func FormatTimestamp(t lineartime.Time, ctx tzctx.Context, extended, fractional bool) string {
	if ctx.IsDuration() {
		return formatDuration(t, fractional)
	}
	var b strings.Builder
	if !ctx.IsTimeOnly() {
		y, mo, d := t.Date()
		if extended {
			fmt.Fprintf(&b, "%04d-%02d-%02d", y, mo, d)
		} else {
			fmt.Fprintf(&b, "%04d%02d%02d", y, mo, d)
		}
		if ctx.IsDateOnly() {
			return b.String()
		}
	}
	h, mi, s, ms := t.Clock()
	if extended {
		fmt.Fprintf(&b, "T%02d:%02d:%02d", h, mi, s)
	} else {
		fmt.Fprintf(&b, "T%02d%02d%02d", h, mi, s)
	}
	if fractional {
		fmt.Fprintf(&b, ".%03d", ms)
	}
	if zone, ok := FormatOffset(ctx, extended); ok {
		b.WriteString(zone)
	}
	return b.String()
}

// FormatOffset renders the zone designator of ctx: Z for UTC and ±HH[:MM]
// for offsets. Extended format always writes the minutes, basic format
// only when they are not zero. Other symbolic contexts have no designator
// and yield false.
func FormatOffset(ctx tzctx.Context, extended bool) (string, bool) {
	if ctx.IsUTC() {
		return "Z", true
	}
	if ctx.IsSymbolic() {
		return "", false
	}
	m := ctx.Minutes()
	sign := byte('+')
	if m < 0 {
		sign = '-'
		m = -m
	}
	switch {
	case extended:
		return fmt.Sprintf("%c%02d:%02d", sign, m/60, m%60), true
	case m%60 != 0:
		return fmt.Sprintf("%c%02d%02d", sign, m/60, m%60), true
	default:
		return fmt.Sprintf("%c%02d", sign, m/60), true
	}
}

// formatDuration writes [-]P[nD][T[nH][nM][nS]], or PT0S for an empty span.
func formatDuration(t lineartime.Time, fractional bool) string {
	var b strings.Builder
	if t < 0 {
		b.WriteByte('-')
		t = -t
	}
	b.WriteByte('P')

	days := t / lineartime.TicksPerDay
	t %= lineartime.TicksPerDay
	hours := t / lineartime.TicksPerHour
	t %= lineartime.TicksPerHour
	minutes := t / lineartime.TicksPerMinute
	t %= lineartime.TicksPerMinute
	seconds := t / lineartime.TicksPerSecond
	ms := t % lineartime.TicksPerSecond
	if !fractional {
		ms = 0
	}

	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 || ms > 0 {
		b.WriteByte('T')
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		switch {
		case ms > 0:
			fmt.Fprintf(&b, "%d.%03dS", seconds, ms)
		case seconds > 0:
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	if b.Len() == 1 || (b.Len() == 2 && b.String()[0] == '-') {
		return "PT0S"
	}
	return b.String()
}
