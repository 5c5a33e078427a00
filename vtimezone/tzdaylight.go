package vtimezone

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ngrash/synctz/iso8601"
	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

// ParseTzDaylight resolves the vCalendar 1.0 pair TZ and DAYLIGHT. std is
// the context read from TZ, daylight the DAYLIGHT value:
//
//	TRUE;+02;20040328T020000;20041031T030000;CET;CEST
//
// The instants are local times unless they carry a zone designator. A
// FALSE, empty or garbled value yields std; the second result is false only
// for garbled values.
//
// A daylight rule is resolved to the preferred context if its rules are the
// same, otherwise to the best registry match. The last resort is an entry
// found or created by offsets alone.
func (c *Codec) ParseTzDaylight(daylight string, std, preferred tzctx.Context) (tzctx.Context, bool) {
	fields := strings.Split(strings.TrimSpace(daylight), ";")
	switch strings.ToUpper(fields[0]) {
	case "", "FALSE":
		return std, true
	case "TRUE":
	default:
		return std, false
	}
	if std.IsSymbolic() || len(fields) < 4 {
		c.logger.Debug("cannot use DAYLIGHT", "value", daylight, "tz", std)
		return std, false
	}

	n, dstCtx := iso8601.ParseOffset(fields[1])
	if n != len(fields[1]) || dstCtx.IsSymbolic() {
		return std, false
	}
	bias, dstBias := std.Minutes(), dstCtx.Minutes()-std.Minutes()
	if dstBias == 0 {
		return std, true
	}

	// Daylight time starts in standard time and ends in daylight time.
	dstStart, ok := localInstant(fields[2], bias)
	if !ok {
		return std, false
	}
	stdStart, ok := localInstant(fields[3], bias+dstBias)
	if !ok {
		return std, false
	}

	cand := tzreg.Rule{
		Bias:    bias,
		DSTBias: dstBias,
		DST:     changePointAt(dstStart),
		Std:     changePointAt(stdStart),
		DynYear: strconv.Itoa(dstStart.Year()),
	}
	if len(fields) > 4 {
		cand.StdName = fields[4]
	}
	if len(fields) > 5 {
		cand.DSTName = fields[5]
	}
	cand.Name = cand.StdName

	if preferred.IsSymbolic() && !preferred.IsUnknown() && !preferred.IsSystem() {
		if rule, ok := c.reg.GetForYear(preferred, dstStart.Year()); ok && tzreg.SameRules(cand, rule) {
			c.logger.Debug("DAYLIGHT matches preferred zone", "context", preferred)
			return c.reg.Lead(preferred.Zone()), true
		}
	}

	m, found := c.reg.BestMatch(cand)
	switch {
	case found && m.RuleMatch:
		c.logger.Debug("DAYLIGHT matches registry entry", "context", m.Context, "exact", m.Exact)
		return m.Context, true
	case found && m.LocationMatch:
		if rule, ok := c.reg.Get(m.Context); ok && rule.Bias == bias && rule.DSTBias == dstBias {
			c.logger.Debug("DAYLIGHT matches location", "context", m.Context)
			return m.Context, true
		}
	}

	cand.DynYear = ""
	cand.Kind = tzreg.OffsetOnly
	if cand.Name == "" || cand.DSTName == "" {
		stdText, _ := iso8601.FormatOffset(std, true)
		dstText, _ := iso8601.FormatOffset(dstCtx, true)
		cand.Name = "UTC" + stdText + "/" + dstText
	} else {
		cand.Name = cand.StdName + "/" + cand.DSTName
	}
	ctx, name, _ := c.reg.Find(cand, tzreg.MatchOffsetOnly, tzreg.FindOptions{Create: true})
	c.logger.Info("DAYLIGHT resolved by offsets", "context", ctx, "name", name)
	return ctx, true
}

// localInstant parses an ISO 8601 date-time and converts it to local time
// at offset minutes if it carries a zone designator.
func localInstant(s string, offset int) (lineartime.Time, bool) {
	n, t, ctx := iso8601.ParseTimestamp(s)
	if n == 0 || n != len(s) || ctx.IsDateOnly() || ctx.IsTimeOnly() || ctx.IsDuration() {
		return lineartime.NoTime, false
	}
	switch {
	case ctx.IsUTC():
		t += lineartime.Minutes(offset)
	case !ctx.IsSymbolic():
		t += lineartime.Minutes(offset - ctx.Minutes())
	}
	return t, true
}

// changePointAt returns the yearly change point that has an occurrence at t.
func changePointAt(t lineartime.Time) tzreg.ChangePoint {
	year, month, day := t.Date()
	hour, minute, _, _ := t.Clock()
	return tzreg.ChangePoint{
		Month:   month,
		Weekday: t.Weekday(),
		Nth:     lineartime.WeekOfMonth(year, month, day, true),
		Hour:    hour,
		Minute:  minute,
	}
}

// EmitTzDaylight returns the DAYLIGHT value for ctx describing the first
// daylight period that starts at or after the local time sample, and the
// context to write as TZ. Zones without daylight saving time yield FALSE.
func (c *Codec) EmitTzDaylight(ctx tzctx.Context, sample lineartime.Time) (string, tzctx.Context, error) {
	if !ctx.IsSymbolic() {
		return "FALSE", ctx.Zone(), nil
	}
	if ctx.IsUnknown() || ctx.IsSystem() {
		return "", tzctx.Unknown, fmt.Errorf("%w: %v", ErrNoRule, ctx)
	}
	year := sample.Year()
	rule, ok := c.reg.GetForYear(ctx, year)
	if !ok {
		return "", tzctx.Unknown, fmt.Errorf("%w: %v: %w", ErrNoRule, ctx, tzreg.ErrNotFound)
	}
	if rule.IsOpaque() {
		return "", tzctx.Unknown, fmt.Errorf("%w: %v: %w", ErrNoRule, ctx, tzreg.ErrOpaque)
	}
	std := tzctx.FromMinutes(rule.Bias)
	if !rule.HasDST() {
		return "FALSE", std, nil
	}

	dstStart := rule.DST.At(year)
	if dstStart < sample {
		year++
		if rule, ok = c.reg.GetForYear(ctx, year); !ok || !rule.HasDST() {
			return "FALSE", std, nil
		}
		std = tzctx.FromMinutes(rule.Bias)
		dstStart = rule.DST.At(year)
	}
	stdStart := rule.Std.At(year)
	if stdStart <= dstStart {
		stdStart = rule.Std.At(year + 1)
	}

	dst, _ := iso8601.FormatOffset(tzctx.FromMinutes(rule.Bias+rule.DSTBias), false)
	fields := []string{
		"TRUE",
		dst,
		iso8601.FormatTimestamp(dstStart, tzctx.Unknown, false, false),
		iso8601.FormatTimestamp(stdStart, tzctx.Unknown, false, false),
	}
	if rule.StdName != "" || rule.DSTName != "" {
		fields = append(fields, rule.StdName, rule.DSTName)
	}
	return strings.Join(fields, ";"), std, nil
}
