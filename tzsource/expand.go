package tzsource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzreg"
)

// ErrUnsupported is returned for zones whose rules in a year cannot be
// written as a registry rule, such as more than two transitions a year or
// a transition on the first Sunday after the 10th.
var ErrUnsupported = errors.New("rules not representable")

// RuleSets indexes rule lines by name.
func (f File) RuleSets() map[string][]RuleLine {
	sets := make(map[string][]RuleLine)
	for _, r := range f.Rules {
		sets[r.Name] = append(sets[r.Name], r)
	}
	return sets
}

// lineAt returns the zone line in force at the end of year.
func (z Zone) lineAt(year int) ZoneLine {
	for _, l := range z.Lines {
		if !l.Until.Defined || l.Until.Year > year {
			return l
		}
	}
	return z.Lines[len(z.Lines)-1]
}

// Expand returns the rule of zone z in year, named after the zone.
func Expand(z Zone, sets map[string][]RuleLine, year int) (tzreg.Rule, error) {
	line := z.lineAt(year)
	rule := tzreg.Rule{Name: z.Name, Location: z.Name, Bias: minutes(line.Offset)}

	switch line.Rules.Form {
	case RulesNone:
		rule.StdName = abbrev(line.Format, "", false, rule.Bias)
		return rule, nil
	case RulesFixed:
		// Permanent daylight time is a standard offset to a registry rule.
		rule.Bias += minutes(line.Rules.Save)
		rule.StdName = abbrev(line.Format, "", line.Rules.Save != 0, rule.Bias)
		return rule, nil
	}

	set, ok := sets[line.Rules.Name]
	if !ok {
		return tzreg.Rule{}, fmt.Errorf("zone %s: no rules named %q", z.Name, line.Rules.Name)
	}
	var dsts, stds []RuleLine
	for _, r := range set {
		if int(r.From) > year || int(r.To) < year {
			continue
		}
		if r.Save != 0 {
			dsts = append(dsts, r)
		} else {
			stds = append(stds, r)
		}
	}
	if len(dsts) == 0 {
		rule.StdName = abbrev(line.Format, lastLetter(set, year, stds), false, rule.Bias)
		return rule, nil
	}
	if len(dsts) != 1 || len(stds) != 1 {
		return tzreg.Rule{}, fmt.Errorf("%w: zone %s has %d transitions in %d", ErrUnsupported, z.Name, len(dsts)+len(stds), year)
	}
	dst, std := dsts[0], stds[0]
	save := minutes(dst.Save)
	rule.StdName = abbrev(line.Format, std.Letter, false, rule.Bias)
	rule.DSTName = abbrev(line.Format, dst.Letter, true, rule.Bias+save)
	if save < 0 {
		// Negative saving in winter, as in Europe/Dublin: the saving
		// period becomes standard time and the zero line daylight time.
		dst, std = std, dst
		rule.Bias += save
		save = -save
		rule.StdName, rule.DSTName = rule.DSTName, rule.StdName
	}
	rule.DSTBias = save

	var err error
	if rule.DST, err = changePoint(dst, year, rule.Bias, 0); err != nil {
		return tzreg.Rule{}, fmt.Errorf("zone %s in %d: daylight: %w", z.Name, year, err)
	}
	if rule.Std, err = changePoint(std, year, rule.Bias, save); err != nil {
		return tzreg.Rule{}, fmt.Errorf("zone %s in %d: standard: %w", z.Name, year, err)
	}
	return rule, nil
}

// lastLetter returns the letter of the standard time rule in force in a
// year without transitions: the one of the year if any, otherwise the
// latest earlier one.
func lastLetter(set []RuleLine, year int, stds []RuleLine) string {
	if len(stds) > 0 {
		return stds[0].Letter
	}
	var (
		letter string
		best   Year = MinYear
		bestIn time.Month
	)
	for _, r := range set {
		if r.Save != 0 || int(r.From) > year {
			continue
		}
		to := r.To
		if int(to) > year {
			to = Year(year)
		}
		if to > best || to == best && r.In > bestIn {
			letter, best, bestIn = r.Letter, to, r.In
		}
	}
	return letter
}

// changePoint converts the date and time of r into local wall clock time
// of the state before the transition, which is bias plus the saving in
// force before.
func changePoint(r RuleLine, year, bias, before int) (tzreg.ChangePoint, error) {
	cp := tzreg.ChangePoint{Month: int(r.In)}
	days := lineartime.DaysInMonth(year, int(r.In))
	switch r.On.Form {
	case DayNum:
		cp.Weekday, cp.Nth = tzreg.FixedDay, r.On.Num
	case DayLast:
		cp.Weekday, cp.Nth = int(r.On.Weekday), 5
	case DayAfter:
		cp.Weekday = int(r.On.Weekday)
		switch {
		case r.On.Num+6 == days:
			cp.Nth = 5
		case (r.On.Num-1)%7 == 0 && r.On.Num <= 22:
			cp.Nth = (r.On.Num-1)/7 + 1
		default:
			return cp, fmt.Errorf("%w: %s>=%d", ErrUnsupported, r.On.Weekday, r.On.Num)
		}
	case DayBefore:
		cp.Weekday = int(r.On.Weekday)
		switch {
		case r.On.Num == days:
			cp.Nth = 5
		case r.On.Num%7 == 0 && r.On.Num <= 28:
			cp.Nth = r.On.Num / 7
		default:
			return cp, fmt.Errorf("%w: %s<=%d", ErrUnsupported, r.On.Weekday, r.On.Num)
		}
	}

	at := minutes(r.At.Duration)
	switch r.At.Form {
	case StandardTime:
		at += before
	case UniversalTime:
		at += bias + before
	}
	if at < 0 || at > 24*60 {
		return cp, fmt.Errorf("%w: transition at %d minutes", ErrUnsupported, at)
	}
	cp.Hour, cp.Minute = at/60, at%60
	return cp, cp.Validate()
}

// abbrev expands a FORMAT column. offset is the total offset in minutes,
// used for %z.
func abbrev(format, letter string, dst bool, offset int) string {
	if std, daylight, ok := strings.Cut(format, "/"); ok {
		if dst {
			return daylight
		}
		return std
	}
	format = strings.Replace(format, "%s", letter, 1)
	if strings.Contains(format, "%z") {
		format = strings.Replace(format, "%z", numericAbbrev(offset), 1)
	}
	return format
}

// numericAbbrev formats an offset as ±hh or ±hhmm.
func numericAbbrev(offset int) string {
	sign := '+'
	if offset < 0 {
		sign, offset = '-', -offset
	}
	s := fmt.Sprintf("%c%02d", sign, offset/60)
	if offset%60 != 0 {
		s += fmt.Sprintf("%02d", offset%60)
	}
	return s
}

func minutes(d time.Duration) int {
	return int(d.Round(time.Minute) / time.Minute)
}

// run is a span of years with the same rule.
type run struct {
	from int
	rule tzreg.Rule
}

func sameRun(a, b tzreg.Rule) bool {
	return tzreg.SameRules(a, b) && a.StdName == b.StdName && a.DSTName == b.DSTName
}

// ExpandGroup expands zone z year by year from since to until and returns
// one rule per run of years with the same rule, ready for AddGroup. If
// some years cannot be represented, the group starts after the last of
// them; the error is returned only if the final year fails.
func ExpandGroup(z Zone, sets map[string][]RuleLine, since, until int) ([]tzreg.Rule, error) {
	if len(z.Lines) == 0 {
		return nil, fmt.Errorf("zone %s: no lines", z.Name)
	}
	if since > until {
		return nil, fmt.Errorf("zone %s: empty year range %d..%d", z.Name, since, until)
	}
	var (
		runs    []run
		lastErr error
	)
	for year := since; year <= until; year++ {
		rule, err := Expand(z, sets, year)
		if err != nil {
			runs, lastErr = nil, err
			continue
		}
		if n := len(runs); n > 0 && sameRun(runs[n-1].rule, rule) {
			continue
		}
		runs = append(runs, run{from: year, rule: rule})
	}
	if len(runs) == 0 {
		return nil, lastErr
	}
	group := make([]tzreg.Rule, len(runs))
	for i, r := range runs {
		group[i] = r.rule
		if i > 0 {
			group[i].DynYear = strconv.Itoa(r.from)
		}
	}
	return group, nil
}
