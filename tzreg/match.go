package tzreg

import (
	"github.com/ngrash/synctz/tzctx"
)

// FindOptions modify a Find.
type FindOptions struct {
	// Create adds the candidate when nothing matches. A removed entry with
	// the same rules is reactivated before a new one is appended.
	Create bool
	// Start is the first index to consider.
	Start int
}

// Find scans the registry in index order for the first active entry that
// matches cand in the given mode. It returns the entry's context and name.
func (r *Registry) Find(cand Rule, mode MatchMode, opts FindOptions) (tzctx.Context, string, bool) {
	if opts.Create {
		r.mu.Lock()
		defer r.mu.Unlock()
	} else {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	if i, ok := r.findLocked(cand, mode, opts.Start); ok {
		return tzctx.FromIndex(i), r.entryLocked(i).Name, true
	}
	if !opts.Create {
		return tzctx.Unknown, "", false
	}

	for i := firstMatchable; i < r.lenLocked(); i++ {
		if !r.removed[i] {
			continue
		}
		e := r.entryLocked(i)
		if SameRules(cand, e) || (mode == MatchOffsetOnly && sameOffsets(cand, e)) {
			r.removed[i] = false
			r.metrics.reactivated()
			r.logger.Debug("reactivated timezone", "index", i, "name", e.Name)
			return tzctx.FromIndex(i), e.Name, true
		}
	}

	entry := cand
	if entry.Kind == Removed {
		entry.Kind = Generic
	}
	entry.GroupEnd = false
	i := r.lenLocked()
	r.dynamic = append(r.dynamic, entry)
	r.removed = append(r.removed, false)
	r.metrics.addedEntries(1)
	r.logger.Debug("added timezone", "index", i, "name", entry.Name, "mode", mode)
	return tzctx.FromIndex(i), entry.Name, true
}

func (r *Registry) findLocked(cand Rule, mode MatchMode, start int) (int, bool) {
	if start < firstMatchable {
		start = firstMatchable
	}
	for i := start; i < r.lenLocked(); i++ {
		if r.removed[i] {
			continue
		}
		if matches(cand, r.entryLocked(i), mode) {
			return i, true
		}
	}
	return 0, false
}

// Remove marks the first active entry with the same name (unless cand has
// none) and the same rules as cand as removed. Contexts referring to it
// stay valid.
func (r *Registry) Remove(cand Rule) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.findLocked(cand, MatchStrict, firstMatchable)
	if !ok {
		return false
	}
	r.removed[i] = true
	r.metrics.removed()
	r.logger.Debug("removed timezone", "index", i, "name", r.entryLocked(i).Name)
	return true
}
