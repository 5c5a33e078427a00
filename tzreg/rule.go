package tzreg

import (
	"fmt"
	"strings"

	"github.com/ngrash/synctz/lineartime"
)

// Kind classifies a registry entry.
type Kind int

const (
	// Generic is a full rule: a standard offset and optionally a DST rule.
	Generic Kind = iota
	// StandardOnly is a rule learned from a definition that only had a
	// standard period.
	StandardOnly
	// DaylightOnly is a rule learned from a definition that only had a
	// daylight period, i.e. a zone on permanent summer time.
	DaylightOnly
	// OffsetOnly marks rules whose transition dates are unknown. They are
	// compared by offsets alone.
	OffsetOnly
	// Removed marks a soft-deleted entry. Its index stays valid.
	Removed
	// Opaque marks a rule that could not be reconstructed. Raw holds the
	// definition text.
	Opaque
)

func (k Kind) String() string {
	switch k {
	case Generic:
		return "generic"
	case StandardOnly:
		return "standard-only"
	case DaylightOnly:
		return "daylight-only"
	case OffsetOnly:
		return "offset-only"
	case Removed:
		return "removed"
	case Opaque:
		return "opaque"
	default:
		return fmt.Sprintf("<undefined kind (%d)>", int(k))
	}
}

// MatchMode selects how Find compares a candidate with registry entries.
type MatchMode int

const (
	// MatchNameOrRule accepts an entry with the same name or the same rules.
	MatchNameOrRule MatchMode = iota
	// MatchNameOnly accepts an entry with the same name.
	MatchNameOnly
	// MatchOffsetOnly accepts an entry with the same bias and DST bias,
	// whatever its transition dates. Used for platforms that report offsets
	// without rules.
	MatchOffsetOnly
	// MatchStrict requires the same rules, and the same name unless the
	// candidate has none.
	MatchStrict
)

func (m MatchMode) String() string {
	switch m {
	case MatchNameOrRule:
		return "name-or-rule"
	case MatchNameOnly:
		return "name-only"
	case MatchOffsetOnly:
		return "offset-only"
	case MatchStrict:
		return "strict"
	default:
		return fmt.Sprintf("<undefined match mode (%d)>", int(m))
	}
}

// FixedDay is the ChangePoint.Weekday value for transitions on a fixed day of month.
const FixedDay = -1

// ChangePoint describes the yearly transition into a state.
type ChangePoint struct {
	// Month is 1-12, 0 meaning there is no transition.
	Month int
	// Weekday is 0 (Sunday) through 6, or FixedDay.
	Weekday int
	// Nth is the occurrence of Weekday in the month, 5 meaning the last
	// one. For FixedDay it is the day of month.
	Nth int
	// Hour and Minute give the local wall clock time of the transition.
	Hour, Minute int
}

// IsZero reports whether cp describes no transition.
func (cp ChangePoint) IsZero() bool { return cp.Month == 0 }

// Day returns the day of month on which cp occurs in year.
func (cp ChangePoint) Day(year int) int {
	if cp.Weekday == FixedDay {
		return lineartime.ClampDay(year, cp.Month, cp.Nth)
	}
	return lineartime.NthWeekdayOfMonth(year, cp.Month, cp.Weekday, cp.Nth)
}

// At returns the local wall time at which cp occurs in year.
func (cp ChangePoint) At(year int) lineartime.Time {
	return lineartime.DateTime(year, cp.Month, cp.Day(year), cp.Hour, cp.Minute, 0, 0)
}

var weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

var monthNames = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func (cp ChangePoint) String() string {
	if cp.IsZero() {
		return "-"
	}
	month := fmt.Sprint(cp.Month)
	if cp.Month > 0 && cp.Month < len(monthNames) {
		month = monthNames[cp.Month]
	}
	var on string
	switch {
	case cp.Weekday == FixedDay:
		on = fmt.Sprint(cp.Nth)
	case cp.Weekday < 0 || cp.Weekday > 6:
		on = fmt.Sprintf("<weekday %d>#%d", cp.Weekday, cp.Nth)
	case cp.Nth >= 5:
		on = "last" + weekdayNames[cp.Weekday]
	default:
		on = fmt.Sprintf("%s#%d", weekdayNames[cp.Weekday], cp.Nth)
	}
	return fmt.Sprintf("%s %s %02d:%02d", month, on, cp.Hour, cp.Minute)
}

// Validate checks the ranges of the fields of a non-zero change point.
func (cp ChangePoint) Validate() error {
	if cp.IsZero() {
		return nil
	}
	var errs []string
	if cp.Month < 1 || cp.Month > 12 {
		errs = append(errs, fmt.Sprintf("month %d out of range", cp.Month))
	}
	if cp.Weekday == FixedDay {
		if cp.Nth < 1 || cp.Nth > 31 {
			errs = append(errs, fmt.Sprintf("day %d out of range", cp.Nth))
		}
	} else {
		if cp.Weekday < 0 || cp.Weekday > 6 {
			errs = append(errs, fmt.Sprintf("weekday %d out of range", cp.Weekday))
		}
		if cp.Nth < 1 || cp.Nth > 5 {
			errs = append(errs, fmt.Sprintf("occurrence %d out of range", cp.Nth))
		}
	}
	if cp.Hour < 0 || cp.Hour > 24 || cp.Minute < 0 || cp.Minute > 59 {
		errs = append(errs, fmt.Sprintf("time %02d:%02d out of range", cp.Hour, cp.Minute))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid change point: %s", strings.Join(errs, ", "))
	}
	return nil
}

// CurrentYear is the DynYear sentinel for "the current year".
const CurrentYear = "CUR"

// Rule is a registry entry.
type Rule struct {
	// Name is the display name or TZID.
	Name string
	// StdName and DSTName are the abbreviations used in each state.
	StdName, DSTName string
	// Location is a free-text identifier, usually an IANA zone name,
	// matched as a substring of the identifiers of imported definitions.
	Location string
	// Bias is the standard offset in minutes east of UTC.
	Bias int
	// DSTBias is added to Bias during daylight saving time.
	DSTBias int
	// Std is the transition into standard time, DST the transition into
	// daylight saving time.
	Std, DST ChangePoint
	Kind     Kind
	// DynYear restricts the years this variant of a named group applies
	// to. Empty or CurrentYear starts a group.
	DynYear string
	// GroupEnd marks the last variant of a group.
	GroupEnd bool
	// Raw holds the definition text of an Opaque rule.
	Raw string
}

// HasDST reports whether r observes daylight saving time.
func (r Rule) HasDST() bool {
	return r.DSTBias != 0 && !r.Std.IsZero() && !r.DST.IsZero()
}

// IsOpaque reports whether r can only be reproduced as raw text.
func (r Rule) IsOpaque() bool {
	return r.Kind == Opaque || r.Raw != ""
}

// EffectiveDSTBias returns DSTBias if r observes DST and 0 otherwise.
func (r Rule) EffectiveDSTBias() int {
	if r.HasDST() {
		return r.DSTBias
	}
	return 0
}

// isLead reports whether r starts a group.
func (r Rule) isLead() bool {
	return r.DynYear == "" || r.DynYear == CurrentYear
}

// Validate reports malformed fields of r.
func (r Rule) Validate() error {
	if r.IsOpaque() {
		return nil
	}
	if r.Bias < -24*60 || r.Bias > 24*60 {
		return fmt.Errorf("bias %d out of range", r.Bias)
	}
	if err := r.Std.Validate(); err != nil {
		return fmt.Errorf("standard: %w", err)
	}
	if err := r.DST.Validate(); err != nil {
		return fmt.Errorf("daylight: %w", err)
	}
	return nil
}

// SameRules reports whether a and b describe the same offsets and, if they
// observe DST, the same transitions. Names are not compared. Opaque rules
// are the same only if their raw text is.
func SameRules(a, b Rule) bool {
	if a.IsOpaque() || b.IsOpaque() {
		return a.IsOpaque() && b.IsOpaque() && a.Raw == b.Raw
	}
	if a.Bias != b.Bias || a.HasDST() != b.HasDST() {
		return false
	}
	if !a.HasDST() {
		return true
	}
	return a.DSTBias == b.DSTBias && a.Std == b.Std && a.DST == b.DST
}

// sameOffsets compares bias and DST bias only. The DST bias is taken as is,
// since offset-only rules have no transitions.
func sameOffsets(a, b Rule) bool {
	if a.IsOpaque() || b.IsOpaque() {
		return false
	}
	return a.Bias == b.Bias && a.DSTBias == b.DSTBias
}

func sameName(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// matches compares a Find candidate with a registry entry.
func matches(cand, entry Rule, mode MatchMode) bool {
	same := SameRules
	if mode == MatchOffsetOnly || entry.Kind == OffsetOnly {
		same = sameOffsets
	}
	switch mode {
	case MatchNameOnly:
		return sameName(cand.Name, entry.Name)
	case MatchOffsetOnly:
		return same(cand, entry)
	case MatchStrict:
		return (cand.Name == "" || sameName(cand.Name, entry.Name)) && same(cand, entry)
	default:
		return sameName(cand.Name, entry.Name) || same(cand, entry)
	}
}
