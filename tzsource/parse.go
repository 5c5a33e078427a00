// Package tzsource reads the source files of the IANA time zone database
// (https://www.iana.org/time-zones) and imports their zones into a
// registry.
//
// Only Rule, Zone and Link lines are interpreted. Leap and Expires lines,
// which appear in the leapseconds file, are skipped.
package tzsource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// File is the content of one or more source files.
type File struct {
	Rules []RuleLine
	Zones []Zone
	Links []Link
}

// Zone is a zone line with its continuation lines.
type Zone struct {
	Name  string
	Lines []ZoneLine
}

// ZoneLine is one period of a zone. Only the last line of a zone has no
// Until.
type ZoneLine struct {
	Offset time.Duration
	Rules  ZoneRules
	Format string
	Until  Until
}

// ZoneRulesForm tells how the RULES column of a zone line is to be read.
type ZoneRulesForm int

const (
	// RulesNone means standard time always applies ("-").
	RulesNone ZoneRulesForm = iota
	// RulesNamed refers to the rule lines with the given name.
	RulesNamed
	// RulesFixed adds a constant amount to standard time.
	RulesFixed
)

// ZoneRules is the RULES column of a zone line.
type ZoneRules struct {
	Form ZoneRulesForm
	Name string
	Save time.Duration
}

// Year is a FROM or TO year.
type Year int

const (
	MinYear Year = math.MinInt32
	MaxYear Year = math.MaxInt32
)

func (y Year) String() string {
	switch y {
	case MinYear:
		return "min"
	case MaxYear:
		return "max"
	}
	return strconv.Itoa(int(y))
}

// TimeForm is the clock an AT or UNTIL time refers to.
type TimeForm int

const (
	WallClock TimeForm = iota
	StandardTime
	UniversalTime
)

// Time is a time of day, possibly outside 0..24h.
type Time struct {
	time.Duration
	Form TimeForm
}

// DayForm is the shape of an ON column.
type DayForm int

const (
	DayNum    DayForm = iota // 5
	DayLast                  // lastSun
	DayAfter                 // Sun>=8
	DayBefore                // Sun<=25
)

// Day is an ON column.
type Day struct {
	Form    DayForm
	Num     int
	Weekday time.Weekday
}

// RuleLine is a Rule line.
type RuleLine struct {
	Name     string
	From, To Year
	In       time.Month
	On       Day
	At       Time
	Save     time.Duration
	Letter   string
}

// Until is the UNTIL column of a zone line. Omitted trailing fields keep
// their earliest value.
type Until struct {
	Defined bool
	Year    int
	Month   time.Month
	Day     Day
	Time    Time
}

// Link is a Link line: Name is an alias for Target.
type Link struct {
	Target string
	Name   string
}

type parseError struct {
	line int
	text string
	err  error
}

func (e *parseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.line, e.text, e.err)
}

func (e *parseError) Unwrap() error { return e.err }

// Parse reads a source file.
func Parse(r io.Reader) (File, error) {
	var (
		f            File
		lineNumber   int
		continuation bool
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		fields, err := splitLine(line)
		if err != nil {
			return f, &parseError{lineNumber, line, err}
		}
		if len(fields) == 0 {
			continue
		}

		if continuation {
			zl, err := parseZoneFields(fields)
			if err != nil {
				return f, &parseError{lineNumber, line, fmt.Errorf("zone continuation: %w", err)}
			}
			z := &f.Zones[len(f.Zones)-1]
			z.Lines = append(z.Lines, zl)
			continuation = zl.Until.Defined
			continue
		}

		switch {
		case isAbbrev(fields[0], "Zone", "Z"):
			if len(fields) < 2 {
				return f, &parseError{lineNumber, line, errors.New("zone: missing name")}
			}
			zl, err := parseZoneFields(fields[2:])
			if err == nil {
				err = checkZoneName(fields[1])
			}
			if err != nil {
				return f, &parseError{lineNumber, line, fmt.Errorf("zone: %w", err)}
			}
			f.Zones = append(f.Zones, Zone{Name: fields[1], Lines: []ZoneLine{zl}})
			continuation = zl.Until.Defined
		case isAbbrev(fields[0], "Rule", "R"):
			rl, err := parseRuleLine(fields)
			if err != nil {
				return f, &parseError{lineNumber, line, fmt.Errorf("rule: %w", err)}
			}
			f.Rules = append(f.Rules, rl)
		case isAbbrev(fields[0], "Link", "L"):
			if len(fields) != 3 {
				return f, &parseError{lineNumber, line, fmt.Errorf("link: expected 3 fields, got %d", len(fields))}
			}
			f.Links = append(f.Links, Link{Target: fields[1], Name: fields[2]})
		case fields[0] == "Leap" || fields[0] == "Expires":
		default:
			return f, &parseError{lineNumber, line, errors.New("unexpected line")}
		}
	}
	if err := scanner.Err(); err != nil {
		return f, fmt.Errorf("scanner: %w", err)
	}
	if continuation {
		return f, fmt.Errorf("zone %q: missing continuation line", f.Zones[len(f.Zones)-1].Name)
	}
	return f, nil
}

// Merge concatenates files, so that rules and links may refer to zones of
// other files.
func Merge(files ...File) File {
	var m File
	for _, f := range files {
		m.Rules = append(m.Rules, f.Rules...)
		m.Zones = append(m.Zones, f.Zones...)
		m.Links = append(m.Links, f.Links...)
	}
	return m
}

// splitLine drops the comment and splits the rest into fields. Double
// quotes protect white space and '#'.
func splitLine(line string) ([]string, error) {
	var (
		fields []string
		field  strings.Builder
		quoted bool
		inside bool
	)
	for _, c := range line {
		switch {
		case c == '"':
			quoted = !quoted
			inside = true
		case quoted:
			field.WriteRune(c)
		case c == '#':
			if inside {
				fields = append(fields, field.String())
			}
			return fields, nil
		case strings.ContainsRune(" \t\f\r\n\v", c):
			if inside {
				fields = append(fields, field.String())
				field.Reset()
				inside = false
			}
		default:
			field.WriteRune(c)
			inside = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if inside {
		fields = append(fields, field.String())
	}
	return fields, nil
}

func checkZoneName(s string) error {
	for _, part := range strings.Split(s, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid name %q", s)
		}
	}
	return nil
}

// parseZoneFields reads STDOFF RULES FORMAT [UNTIL].
func parseZoneFields(fields []string) (ZoneLine, error) {
	if len(fields) < 3 || len(fields) > 7 {
		return ZoneLine{}, fmt.Errorf("expected 3 to 7 fields, got %d", len(fields))
	}
	var (
		z    ZoneLine
		errs []error
		err  error
	)
	if z.Offset, err = parseDuration(fields[0]); err != nil {
		errs = append(errs, fmt.Errorf("STDOFF %q: %w", fields[0], err))
	}
	switch s := fields[1]; {
	case s == "-":
		z.Rules = ZoneRules{Form: RulesNone}
	case s[0] == '-' || s[0] >= '0' && s[0] <= '9':
		save, err := parseSave(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("RULES %q: %w", s, err))
		}
		z.Rules = ZoneRules{Form: RulesFixed, Save: save}
	default:
		z.Rules = ZoneRules{Form: RulesNamed, Name: s}
	}
	z.Format = fields[2]
	if len(fields) > 3 {
		if z.Until, err = parseUntil(fields[3:]); err != nil {
			errs = append(errs, fmt.Errorf("UNTIL %q: %w", strings.Join(fields[3:], " "), err))
		}
	}
	return z, errors.Join(errs...)
}

func parseUntil(fields []string) (Until, error) {
	u := Until{Defined: true, Month: time.January, Day: Day{Form: DayNum, Num: 1}}
	var err error
	if u.Year, err = strconv.Atoi(fields[0]); err != nil {
		return Until{}, fmt.Errorf("year: %w", err)
	}
	if len(fields) > 1 {
		if u.Month, err = parseMonth(fields[1]); err != nil {
			return Until{}, err
		}
	}
	if len(fields) > 2 {
		if u.Day, err = parseDay(fields[2]); err != nil {
			return Until{}, fmt.Errorf("day: %w", err)
		}
	}
	if len(fields) > 3 {
		if u.Time, err = parseAt(fields[3]); err != nil {
			return Until{}, fmt.Errorf("time: %w", err)
		}
	}
	return u, nil
}

// parseRuleLine reads Rule NAME FROM TO - IN ON AT SAVE LETTER/S.
func parseRuleLine(fields []string) (RuleLine, error) {
	if len(fields) != 10 {
		return RuleLine{}, fmt.Errorf("expected 10 fields, got %d", len(fields))
	}
	var (
		r    RuleLine
		errs []error
		err  error
	)
	r.Name = fields[1]
	if c := r.Name[0]; c == '-' || c == '+' || c >= '0' && c <= '9' {
		errs = append(errs, fmt.Errorf("NAME %q: must not start with a digit or sign", r.Name))
	}
	if r.From, err = parseYear(fields[2], 0); err != nil {
		errs = append(errs, fmt.Errorf("FROM %q: %w", fields[2], err))
	}
	if r.To, err = parseYear(fields[3], r.From); err != nil {
		errs = append(errs, fmt.Errorf("TO %q: %w", fields[3], err))
	}
	if fields[4] != "-" {
		errs = append(errs, fmt.Errorf("reserved field %q is not -", fields[4]))
	}
	if r.In, err = parseMonth(fields[5]); err != nil {
		errs = append(errs, fmt.Errorf("IN: %w", err))
	}
	if r.On, err = parseDay(fields[6]); err != nil {
		errs = append(errs, fmt.Errorf("ON %q: %w", fields[6], err))
	}
	if r.At, err = parseAt(fields[7]); err != nil {
		errs = append(errs, fmt.Errorf("AT %q: %w", fields[7], err))
	}
	if r.Save, err = parseSave(fields[8]); err != nil {
		errs = append(errs, fmt.Errorf("SAVE %q: %w", fields[8], err))
	}
	if r.Letter = fields[9]; r.Letter == "-" {
		r.Letter = ""
	}
	return r, errors.Join(errs...)
}

// parseYear reads a year, "minimum", "maximum" or (for TO) "only", all of
// which may be abbreviated.
func parseYear(s string, from Year) (Year, error) {
	l := strings.ToLower(s)
	switch {
	case isAbbrev(l, "minimum", "mi"):
		return MinYear, nil
	case isAbbrev(l, "maximum", "ma"):
		return MaxYear, nil
	case from != 0 && isAbbrev(l, "only", "o"):
		return from, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return Year(n), nil
}

var months = []string{"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december"}

func parseMonth(s string) (time.Month, error) {
	l := strings.ToLower(s)
	for i, m := range months {
		if isAbbrev(l, m, m[:3]) {
			return time.Month(i + 1), nil
		}
	}
	return 0, fmt.Errorf("invalid month %q", s)
}

var weekdays = []struct {
	name, shortest string
}{
	{"sunday", "su"}, {"monday", "m"}, {"tuesday", "tu"}, {"wednesday", "w"},
	{"thursday", "th"}, {"friday", "f"}, {"saturday", "sa"},
}

func parseWeekday(s string) (time.Weekday, error) {
	l := strings.ToLower(s)
	for i, wd := range weekdays {
		if isAbbrev(l, wd.name, wd.shortest) {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// parseDay reads 5, lastSun, Sun>=8 or Sun<=25.
func parseDay(s string) (Day, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 31 {
			return Day{}, fmt.Errorf("day %d out of range", n)
		}
		return Day{Form: DayNum, Num: n}, nil
	}
	if rest, ok := strings.CutPrefix(s, "last"); ok {
		wd, err := parseWeekday(rest)
		return Day{Form: DayLast, Weekday: wd}, err
	}
	for _, op := range []struct {
		sep  string
		form DayForm
	}{{">=", DayAfter}, {"<=", DayBefore}} {
		name, num, ok := strings.Cut(s, op.sep)
		if !ok {
			continue
		}
		wd, err := parseWeekday(name)
		if err != nil {
			return Day{}, err
		}
		n, err := strconv.Atoi(num)
		if err != nil || n < 1 || n > 31 {
			return Day{}, fmt.Errorf("invalid day of month %q", num)
		}
		return Day{Form: op.form, Num: n, Weekday: wd}, nil
	}
	return Day{}, errors.New("invalid day")
}

// parseAt reads a time with an optional w, s, u, g or z suffix.
func parseAt(s string) (Time, error) {
	form := WallClock
	if n := len(s); n > 1 {
		switch s[n-1] {
		case 'w':
			s = s[:n-1]
		case 's':
			form, s = StandardTime, s[:n-1]
		case 'u', 'g', 'z':
			form, s = UniversalTime, s[:n-1]
		}
	}
	d, err := parseDuration(s)
	return Time{Duration: d, Form: form}, err
}

// parseSave reads a SAVE amount. The s and d suffixes are accepted and
// ignored; a nonzero amount is daylight time.
func parseSave(s string) (time.Duration, error) {
	if n := len(s); n > 1 && (s[n-1] == 's' || s[n-1] == 'd') {
		s = s[:n-1]
	}
	return parseDuration(s)
}

// parseDuration reads [-]hh[:mm[:ss[.frac]]] or "-". Fractions are kept
// to the millisecond.
func parseDuration(s string) (time.Duration, error) {
	if s == "-" {
		return 0, nil
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	parts := strings.Split(s, ":")
	if len(parts) > 3 || parts[0] == "" {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, p := range parts {
		if i == 2 {
			if whole, frac, ok := strings.Cut(p, "."); ok {
				p = whole
				frac = (frac + "000")[:3]
				ms, err := strconv.Atoi(frac)
				if err != nil {
					return 0, fmt.Errorf("invalid fraction in %q", s)
				}
				d += time.Duration(ms) * time.Millisecond
			}
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		d += time.Duration(n) * units[i]
	}
	if neg {
		d = -d
	}
	return d, nil
}

// isAbbrev reports whether s abbreviates long to at least shortest.
func isAbbrev(s, long, shortest string) bool {
	return strings.HasPrefix(s, shortest) && strings.HasPrefix(long, s)
}
