package tzreg

import (
	"strconv"
	"strings"

	"github.com/ngrash/synctz/tzctx"
)

// Match is the result of BestMatch.
type Match struct {
	// Context is the lead of the matching group.
	Context tzctx.Context
	// Exact is set when name and rules matched.
	Exact bool
	// RuleMatch is set when the rules matched.
	RuleMatch bool
	// LocationMatch is set when the entry's location occurs in the
	// candidate's name or location.
	LocationMatch bool
}

// outcome labels the match for metrics.
func (m Match) outcome() string {
	switch {
	case m.Exact:
		return "exact"
	case m.LocationMatch && m.RuleMatch:
		return "location_rule"
	case m.LocationMatch:
		return "location"
	case m.RuleMatch:
		return "rule"
	}
	return "none"
}

// BestMatch identifies a foreign timezone definition. All active entries
// are visited in index order:
//
//   - an entry with the candidate's name and rules ends the search;
//   - otherwise the first entry whose location occurs in the candidate's
//     identifiers is remembered, and replaced once by a later one that also
//     has matching rules;
//   - without any location match, the first entry with matching rules is
//     remembered.
//
// The result always refers to the lead of the entry's group. The
// candidate's year is its DynYear, or the current year.
func (r *Registry) BestMatch(cand Rule) (Match, bool) {
	candYear := r.currentYear()
	if y, err := strconv.Atoi(cand.DynYear); err == nil {
		candYear = y
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best             Match
		found            bool
		lead             = firstMatchable
		leadName         string
		haveLocation     bool
		haveLocationRule bool
		haveRule         bool
	)
	for i := firstMatchable; i < r.lenLocked(); i++ {
		e := r.entryLocked(i)
		if e.isLead() || !sameName(e.Name, leadName) {
			lead, leadName = i, e.Name
		}
		if r.removed[i] {
			continue
		}

		ruleMatch := SameRules(cand, e) && r.yearFits(e, candYear)
		locationMatch := e.Location != "" &&
			(strings.Contains(cand.Name, e.Location) || strings.Contains(cand.Location, e.Location))

		switch {
		case ruleMatch && sameName(cand.Name, e.Name):
			m := Match{Context: tzctx.FromIndex(lead), Exact: true, RuleMatch: true, LocationMatch: locationMatch}
			r.logger.Debug("best match: name and rules", "candidate", cand.Name, "index", i, "lead", lead)
			r.metrics.bestMatch(m.outcome())
			return m, true
		case locationMatch && (!haveLocation || (!haveLocationRule && ruleMatch)):
			r.logger.Debug("best match: location", "candidate", cand.Name, "location", e.Location, "rules", ruleMatch, "lead", lead)
			best = Match{Context: tzctx.FromIndex(lead), RuleMatch: ruleMatch, LocationMatch: true}
			found = true
			haveLocation, haveLocationRule = true, ruleMatch
		case !haveLocation && ruleMatch && !haveRule:
			r.logger.Debug("best match: rules", "candidate", cand.Name, "entry", e.Name, "lead", lead)
			best = Match{Context: tzctx.FromIndex(lead), RuleMatch: true}
			found = true
			haveRule = true
		}
	}
	r.metrics.bestMatch(best.outcome())
	if !found {
		r.logger.Debug("best match: none", "candidate", cand.Name)
	}
	return best, found
}

// yearFits reports whether a candidate from year may match entry e. The
// last variant of a group fits from its year on, earlier variants up to
// their year.
func (r *Registry) yearFits(e Rule, year int) bool {
	threshold, ok := r.dynYear(e.DynYear)
	if !ok {
		return true
	}
	if e.GroupEnd {
		return year >= threshold
	}
	return year <= threshold
}
