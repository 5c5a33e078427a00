// Package posixtz converts POSIX TZ strings such as
// "CET-1CEST,M3.5.0,M10.5.0/3" to and from registry rules.
//
// Only the Mm.w.d form of transition dates is supported, since registry
// rules cannot express a fixed day of the year.
package posixtz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ngrash/synctz/tzreg"
)

// ErrUnsupported is returned for valid TZ strings that have no rule form.
var ErrUnsupported = errors.New("unsupported TZ string")

// US rules since 2007, used when a TZ string names a daylight zone without
// giving its rules.
var (
	defaultDST = tzreg.ChangePoint{Month: 3, Weekday: 0, Nth: 2, Hour: 2}
	defaultStd = tzreg.ChangePoint{Month: 11, Weekday: 0, Nth: 1, Hour: 2}
)

type parser struct {
	s   string
	pos int
}

func (p *parser) done() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("TZ %q at %d: %s", p.s, p.pos, fmt.Sprintf(format, args...))
}

// name reads an abbreviation: three or more letters, or anything but '>'
// between angle brackets.
func (p *parser) name() (string, error) {
	if p.peek() == '<' {
		end := strings.IndexByte(p.s[p.pos:], '>')
		if end < 0 {
			return "", p.errorf("unterminated <")
		}
		name := p.s[p.pos+1 : p.pos+end]
		p.pos += end + 1
		if len(name) < 3 {
			return "", p.errorf("name %q too short", name)
		}
		return name, nil
	}
	start := p.pos
	for !p.done() && (p.peek() >= 'A' && p.peek() <= 'Z' || p.peek() >= 'a' && p.peek() <= 'z') {
		p.pos++
	}
	if p.pos-start < 3 {
		return "", p.errorf("name too short")
	}
	return p.s[start:p.pos], nil
}

func (p *parser) number(limit int) (int, error) {
	start := p.pos
	for !p.done() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected number")
	}
	n, err := strconv.Atoi(p.s[start:p.pos])
	if err != nil || n > limit {
		return 0, p.errorf("number %s out of range", p.s[start:p.pos])
	}
	return n, nil
}

// clock reads [+|-]hh[:mm[:ss]] and returns minutes. Seconds are dropped.
func (p *parser) clock(maxHour int) (int, error) {
	sign := 1
	switch p.peek() {
	case '-':
		sign = -1
		p.pos++
	case '+':
		p.pos++
	}
	h, err := p.number(maxHour)
	if err != nil {
		return 0, err
	}
	m := h * 60
	for part := 0; part < 2 && p.peek() == ':'; part++ {
		p.pos++
		n, err := p.number(59)
		if err != nil {
			return 0, err
		}
		if part == 0 {
			m += n
		}
	}
	return sign * m, nil
}

// changePoint reads Mm.w.d[/time].
func (p *parser) changePoint() (tzreg.ChangePoint, error) {
	switch p.peek() {
	case 'M':
		p.pos++
	case 'J':
		return tzreg.ChangePoint{}, fmt.Errorf("%w: Julian day rule in %q", ErrUnsupported, p.s)
	default:
		if p.peek() >= '0' && p.peek() <= '9' {
			return tzreg.ChangePoint{}, fmt.Errorf("%w: day of year rule in %q", ErrUnsupported, p.s)
		}
		return tzreg.ChangePoint{}, p.errorf("expected M")
	}
	var cp tzreg.ChangePoint
	var err error
	if cp.Month, err = p.number(12); err != nil || cp.Month == 0 {
		return cp, p.errorf("invalid month")
	}
	if p.peek() != '.' {
		return cp, p.errorf("expected .")
	}
	p.pos++
	if cp.Nth, err = p.number(5); err != nil || cp.Nth == 0 {
		return cp, p.errorf("invalid week")
	}
	if p.peek() != '.' {
		return cp, p.errorf("expected .")
	}
	p.pos++
	if cp.Weekday, err = p.number(6); err != nil {
		return cp, err
	}
	cp.Hour = 2
	if p.peek() == '/' {
		p.pos++
		m, err := p.clock(167)
		if err != nil {
			return cp, err
		}
		if m < 0 || m > 24*60 {
			return cp, fmt.Errorf("%w: transition time %d minutes in %q", ErrUnsupported, m, p.s)
		}
		cp.Hour, cp.Minute = m/60, m%60
	}
	return cp, nil
}

// Parse converts a TZ string into a rule. The rule is named after the
// standard time abbreviation. A leading colon is not allowed, since it
// introduces an implementation defined zone name.
func Parse(s string) (tzreg.Rule, error) {
	p := &parser{s: s}
	var rule tzreg.Rule
	var err error
	if rule.StdName, err = p.name(); err != nil {
		return tzreg.Rule{}, err
	}
	offset, err := p.clock(24)
	if err != nil {
		return tzreg.Rule{}, err
	}
	// POSIX offsets count west of Greenwich.
	rule.Bias = -offset
	rule.Name = rule.StdName
	if p.done() {
		return rule, nil
	}

	if rule.DSTName, err = p.name(); err != nil {
		return tzreg.Rule{}, err
	}
	rule.DSTBias = 60
	if c := p.peek(); c != ',' && c != 0 {
		dstOffset, err := p.clock(24)
		if err != nil {
			return tzreg.Rule{}, err
		}
		rule.DSTBias = -dstOffset - rule.Bias
	}
	if p.done() {
		rule.DST, rule.Std = defaultDST, defaultStd
		return rule, nil
	}
	if p.peek() != ',' {
		return tzreg.Rule{}, p.errorf("expected ,")
	}
	p.pos++
	if rule.DST, err = p.changePoint(); err != nil {
		return tzreg.Rule{}, err
	}
	if p.peek() != ',' {
		return tzreg.Rule{}, p.errorf("expected ,")
	}
	p.pos++
	if rule.Std, err = p.changePoint(); err != nil {
		return tzreg.Rule{}, err
	}
	if !p.done() {
		return tzreg.Rule{}, p.errorf("trailing characters")
	}
	return rule, nil
}

// Format returns the TZ string of rule. Rules with fixed day transitions
// and opaque rules have none.
func Format(rule tzreg.Rule) (string, error) {
	if rule.IsOpaque() {
		return "", fmt.Errorf("%w: opaque rule %q", ErrUnsupported, rule.Name)
	}
	var b strings.Builder
	b.WriteString(formatName(rule.StdName, rule.Bias))
	b.WriteString(formatClock(-rule.Bias))
	if !rule.HasDST() {
		return b.String(), nil
	}
	if rule.DST.Weekday == tzreg.FixedDay || rule.Std.Weekday == tzreg.FixedDay {
		return "", fmt.Errorf("%w: fixed day transition in %q", ErrUnsupported, rule.Name)
	}
	b.WriteString(formatName(rule.DSTName, rule.Bias+rule.DSTBias))
	if rule.DSTBias != 60 {
		b.WriteString(formatClock(-(rule.Bias + rule.DSTBias)))
	}
	for _, cp := range []tzreg.ChangePoint{rule.DST, rule.Std} {
		fmt.Fprintf(&b, ",M%d.%d.%d", cp.Month, cp.Nth, cp.Weekday)
		if cp.Hour != 2 || cp.Minute != 0 {
			b.WriteString("/" + formatClock(cp.Hour*60+cp.Minute))
		}
	}
	return b.String(), nil
}

func formatName(name string, bias int) string {
	if len(name) >= 3 && strings.Trim(name, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz") == "" {
		return name
	}
	if len(name) < 3 {
		// Numeric abbreviation such as +0530.
		sign := '+'
		if bias < 0 {
			sign, bias = '-', -bias
		}
		name = fmt.Sprintf("%c%02d", sign, bias/60)
		if bias%60 != 0 {
			name += fmt.Sprintf("%02d", bias%60)
		}
	}
	return "<" + name + ">"
}

func formatClock(m int) string {
	sign := ""
	if m < 0 {
		sign, m = "-", -m
	}
	if m%60 == 0 {
		return sign + strconv.Itoa(m/60)
	}
	return fmt.Sprintf("%s%d:%02d", sign, m/60, m%60)
}
