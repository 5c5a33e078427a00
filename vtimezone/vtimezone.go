// Package vtimezone converts registry rules to and from VTIMEZONE blocks
// (RFC 5545) and the TZ/DAYLIGHT property pair of vCalendar 1.0.
package vtimezone

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ngrash/synctz/internal/rrule"
	"github.com/ngrash/synctz/iso8601"
	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

var (
	// ErrMalformed is returned for text that is not a usable definition.
	ErrMalformed = errors.New("malformed timezone definition")
	// ErrNoRule is returned when a context has no rule to write.
	ErrNoRule = errors.New("no timezone rule")
)

// Anchor years for DTSTART of emitted blocks. A variant that applies
// from a later year starts in that year.
const (
	StandardAnchorYear = 1967
	DaylightAnchorYear = 1987
)

// Recurrence converts between recurrence rules and change points.
type Recurrence interface {
	// ChangePoint returns the change point of a yearly rule whose first
	// occurrence is dtstart, and the first actual occurrence at or after
	// dtstart.
	ChangePoint(rule string, dtstart lineartime.Time) (tzreg.ChangePoint, lineartime.Time, error)
	// RRule renders a change point and returns its occurrence in anchorYear.
	RRule(cp tzreg.ChangePoint, anchorYear int) (string, lineartime.Time, error)
}

// Codec reads and writes definitions against one registry.
type Codec struct {
	reg    *tzreg.Registry
	rec    Recurrence
	logger *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger for import diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = logger
	}
}

// WithRecurrence replaces the recurrence rule converter.
func WithRecurrence(rec Recurrence) Option {
	return func(c *Codec) {
		c.rec = rec
	}
}

// New returns a codec for reg.
func New(reg *tzreg.Registry, opts ...Option) *Codec {
	c := &Codec{
		reg:    reg,
		rec:    rrule.Engine{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// observance is a STANDARD or DAYLIGHT sub-block.
type observance struct {
	dtstart    lineartime.Time
	rrule      string
	offsetFrom int
	offsetTo   int
	name       string
	hasOffset  bool
}

// Parse reads a VTIMEZONE block. The BEGIN:VTIMEZONE and END:VTIMEZONE
// lines are optional. The last STANDARD and the last DAYLIGHT sub-block
// define the rule. A definition with more than one of either kind yields
// an Opaque rule that keeps the text.
func (c *Codec) Parse(text string) (tzreg.Rule, error) {
	var (
		rule          tzreg.Rule
		std, dst      *observance
		nStd, nDST    int
		current       *observance
		currentKind   string
		contentLines  []string
		sawProperties bool
	)
	for _, line := range unfold(text) {
		p, ok := parseProperty(line)
		if !ok {
			return tzreg.Rule{}, fmt.Errorf("%w: line %q", ErrMalformed, line)
		}
		value := strings.ToUpper(strings.TrimSpace(p.Value))
		switch {
		case p.Name == "BEGIN" && value == "VTIMEZONE", p.Name == "END" && value == "VTIMEZONE":
			continue
		case p.Name == "BEGIN" && (value == "STANDARD" || value == "DAYLIGHT"):
			if current != nil {
				return tzreg.Rule{}, fmt.Errorf("%w: BEGIN:%s inside %s", ErrMalformed, value, currentKind)
			}
			current, currentKind = &observance{dtstart: lineartime.NoTime}, value
		case p.Name == "END" && (value == "STANDARD" || value == "DAYLIGHT"):
			if current == nil || value != currentKind {
				return tzreg.Rule{}, fmt.Errorf("%w: unexpected END:%s", ErrMalformed, value)
			}
			if !current.hasOffset || current.dtstart == lineartime.NoTime {
				return tzreg.Rule{}, fmt.Errorf("%w: %s without DTSTART or TZOFFSETTO", ErrMalformed, value)
			}
			if value == "STANDARD" {
				std = current
				nStd++
			} else {
				dst = current
				nDST++
			}
			current = nil
		case current != nil:
			if err := current.set(p); err != nil {
				return tzreg.Rule{}, fmt.Errorf("%w: %s: %v", ErrMalformed, currentKind, err)
			}
		case p.Name == "TZID":
			rule.Name = Unescape(p.Value)
			sawProperties = true
		case p.Name == "X-LIC-LOCATION":
			rule.Location = Unescape(p.Value)
		}
		contentLines = append(contentLines, line)
	}
	if current != nil {
		return tzreg.Rule{}, fmt.Errorf("%w: unterminated %s", ErrMalformed, currentKind)
	}
	if !sawProperties && std == nil && dst == nil {
		return tzreg.Rule{}, fmt.Errorf("%w: empty definition", ErrMalformed)
	}

	switch {
	case std != nil && dst != nil:
		rule.Bias = std.offsetTo
		rule.StdName, rule.DSTName = std.name, dst.name
		if dst.offsetTo != std.offsetTo {
			rule.DSTBias = dst.offsetTo - std.offsetTo
		}
	case std != nil:
		rule.Bias, rule.StdName, rule.Kind = std.offsetTo, std.name, tzreg.StandardOnly
	case dst != nil:
		rule.Bias, rule.StdName, rule.Kind = dst.offsetTo, dst.name, tzreg.DaylightOnly
	default:
		return tzreg.Rule{}, fmt.Errorf("%w: neither STANDARD nor DAYLIGHT", ErrMalformed)
	}

	if nStd > 1 || nDST > 1 {
		rule.Kind = tzreg.Opaque
		rule.Raw = strings.Join(contentLines, "\r\n")
		return rule, nil
	}

	if rule.DSTBias != 0 {
		if std.rrule == "" || dst.rrule == "" {
			// One-off transitions cannot be repeated every year.
			rule.DSTBias = 0
			rule.DSTName = ""
			return rule, nil
		}
		var err error
		if rule.Std, _, err = c.rec.ChangePoint(std.rrule, std.dtstart); err != nil {
			return tzreg.Rule{}, fmt.Errorf("STANDARD: %w", err)
		}
		if rule.DST, _, err = c.rec.ChangePoint(dst.rrule, dst.dtstart); err != nil {
			return tzreg.Rule{}, fmt.Errorf("DAYLIGHT: %w", err)
		}
	}
	return rule, nil
}

func (o *observance) set(p property) error {
	switch p.Name {
	case "DTSTART":
		n, t, ctx := iso8601.ParseTimestamp(strings.TrimSpace(p.Value))
		if n == 0 || ctx.IsDateOnly() || ctx.IsTimeOnly() || ctx.IsDuration() {
			return fmt.Errorf("DTSTART %q", p.Value)
		}
		o.dtstart = t
	case "RRULE":
		o.rrule = strings.TrimSpace(p.Value)
	case "TZOFFSETFROM", "TZOFFSETTO":
		m, err := parseUTCOffset(p.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if p.Name == "TZOFFSETTO" {
			o.offsetTo, o.hasOffset = m, true
		} else {
			o.offsetFrom = m
		}
	case "TZNAME":
		o.name = Unescape(p.Value)
	}
	return nil
}

// parseUTCOffset reads ±HHMM[SS]. Seconds are dropped.
func parseUTCOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 && len(s) != 7 || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("invalid UTC offset %q", s)
	}
	hhmm, err := strconv.Atoi(s[1:5])
	if err != nil || hhmm%100 > 59 {
		return 0, fmt.Errorf("invalid UTC offset %q", s)
	}
	m := hhmm/100*60 + hhmm%100
	if s[0] == '-' {
		m = -m
	}
	return m, nil
}

func formatUTCOffset(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign, minutes = '-', -minutes
	}
	return fmt.Sprintf("%c%02d%02d", sign, minutes/60, minutes%60)
}

// Import parses a VTIMEZONE block and returns the context of the registry
// entry it denotes. An entry with the same rules is reused; otherwise the
// rule is added as a dynamic entry.
func (c *Codec) Import(text string) (tzctx.Context, error) {
	rule, err := c.Parse(text)
	if err != nil {
		return tzctx.Unknown, err
	}
	if !rule.IsOpaque() {
		if m, ok := c.reg.BestMatch(rule); ok && m.RuleMatch {
			c.logger.Debug("vtimezone matches registry entry", "tzid", rule.Name, "context", m.Context, "exact", m.Exact, "location", m.LocationMatch)
			return m.Context, nil
		}
	}
	ctx, name, _ := c.reg.Find(rule, tzreg.MatchStrict, tzreg.FindOptions{Create: true})
	c.logger.Info("vtimezone registered", "tzid", rule.Name, "name", name, "context", ctx, "kind", rule.Kind)
	return ctx, nil
}

// Emit writes the VTIMEZONE block for ctx, using the variant that applies
// in year. Offset contexts yield a standard-only block. Opaque rules are
// written as they were read.
func (c *Codec) Emit(ctx tzctx.Context, year int) (string, error) {
	var rule tzreg.Rule
	switch {
	case !ctx.IsSymbolic():
		name, _ := iso8601.FormatOffset(ctx, true)
		rule = tzreg.Rule{Name: "UTC" + name, Bias: ctx.Minutes(), Kind: tzreg.StandardOnly}
	case ctx.IsUnknown(), ctx.IsSystem():
		return "", fmt.Errorf("%w: %v", ErrNoRule, ctx)
	default:
		var ok bool
		if rule, ok = c.reg.GetForYear(ctx, year); !ok {
			return "", fmt.Errorf("%w: %v: %w", ErrNoRule, ctx, tzreg.ErrNotFound)
		}
	}

	if rule.IsOpaque() {
		return "BEGIN:VTIMEZONE\r\n" + rule.Raw + "\r\nEND:VTIMEZONE\r\n", nil
	}

	var b strings.Builder
	line := func(name, value string) {
		b.WriteString(fold(name + ":" + value))
		b.WriteString("\r\n")
	}
	line("BEGIN", "VTIMEZONE")
	line("TZID", Escape(rule.Name))
	if rule.Location != "" {
		line("X-LIC-LOCATION", Escape(rule.Location))
	}

	stdYear, dstYear := StandardAnchorYear, DaylightAnchorYear
	if y, err := strconv.Atoi(rule.DynYear); err == nil {
		stdYear, dstYear = max(stdYear, y), max(dstYear, y)
	}

	if !rule.HasDST() {
		name := rule.StdName
		block := "STANDARD"
		if rule.Kind == tzreg.DaylightOnly {
			block = "DAYLIGHT"
		}
		line("BEGIN", block)
		line("DTSTART", iso8601.FormatTimestamp(lineartime.DateToLinear(stdYear, 1, 1), tzctx.Unknown, false, false))
		line("TZOFFSETFROM", formatUTCOffset(rule.Bias))
		line("TZOFFSETTO", formatUTCOffset(rule.Bias))
		if name != "" {
			line("TZNAME", Escape(name))
		}
		line("END", block)
		line("END", "VTIMEZONE")
		return b.String(), nil
	}

	dstOffset := rule.Bias + rule.DSTBias
	for _, o := range []struct {
		block    string
		cp       tzreg.ChangePoint
		year     int
		from, to int
		tzname   string
	}{
		{"STANDARD", rule.Std, stdYear, dstOffset, rule.Bias, rule.StdName},
		{"DAYLIGHT", rule.DST, dstYear, rule.Bias, dstOffset, rule.DSTName},
	} {
		rr, start, err := c.rec.RRule(o.cp, o.year)
		if err != nil {
			return "", fmt.Errorf("%s: %w", o.block, err)
		}
		line("BEGIN", o.block)
		line("DTSTART", iso8601.FormatTimestamp(start, tzctx.Unknown, false, false))
		line("RRULE", rr)
		line("TZOFFSETFROM", formatUTCOffset(o.from))
		line("TZOFFSETTO", formatUTCOffset(o.to))
		if o.tzname != "" {
			line("TZNAME", Escape(o.tzname))
		}
		line("END", o.block)
	}
	line("END", "VTIMEZONE")
	return b.String(), nil
}
