// Package tzreg implements the timezone registry.
//
// A Registry is the static table of built-in rules followed by an
// append-only list of rules learned at run time. An entry's index is part of
// every tzctx.Context referring to it, so entries are never moved or
// reused: removal only marks an entry so that searches skip it.
//
// Entries with the same name that follow each other form a group of
// historical variants. The first entry of a group (the lead) has an empty
// DynYear. Each later variant applies from the year in its DynYear on.
package tzreg

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ngrash/synctz/tzctx"
)

var (
	// ErrNotFound is returned when a context does not refer to an entry.
	ErrNotFound = errors.New("timezone not found")
	// ErrOpaque is returned when a rule is only available as raw text.
	ErrOpaque = errors.New("timezone rule is opaque")
)

// Registry holds timezone rules. It is safe for concurrent use.
type Registry struct {
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.RWMutex
	dynamic []Rule
	removed []bool // indexed like the registry, built-in entries included
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for match diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics the registry reports to.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithClock sets the source of the current year, used for CurrentYear and
// for candidates without a year.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New returns a registry containing only the built-in entries.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		now:     time.Now,
		removed: make([]bool, len(builtin)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Default is the registry shared by the command line tools.
var Default = New()

// Len returns the number of entries, built-in ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	return len(builtin) + len(r.dynamic)
}

// entryLocked returns the stored entry at i. Callers hold mu and have
// checked the range.
func (r *Registry) entryLocked(i int) Rule {
	if i < len(builtin) {
		return builtin[i]
	}
	return r.dynamic[i-len(builtin)]
}

// viewLocked is entryLocked with the removal mark applied to Kind.
func (r *Registry) viewLocked(i int) Rule {
	e := r.entryLocked(i)
	if r.removed[i] {
		e.Kind = Removed
	}
	return e
}

func (r *Registry) indexLocked(c tzctx.Context) (int, bool) {
	if !c.IsSymbolic() {
		return 0, false
	}
	i := c.Index()
	return i, i >= 0 && i < r.lenLocked()
}

// leadLocked walks back from i to the first entry of its group.
func (r *Registry) leadLocked(i int) int {
	for i > 0 {
		e := r.entryLocked(i)
		if e.isLead() || !sameName(r.entryLocked(i-1).Name, e.Name) {
			break
		}
		i--
	}
	return i
}

// Get returns the lead rule of the group c refers to. Removed entries are
// returned with Kind set to Removed.
func (r *Registry) Get(c tzctx.Context) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.indexLocked(c)
	if !ok {
		return Rule{}, false
	}
	return r.viewLocked(r.leadLocked(i)), true
}

// Entry returns the rule stored at exactly the index of c, without
// resolving its group.
func (r *Registry) Entry(c tzctx.Context) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.indexLocked(c)
	if !ok {
		return Rule{}, false
	}
	return r.viewLocked(i), true
}

// GetForYear returns the variant of c's group that applies in year: the
// latest entry whose DynYear is not after year, or the lead.
func (r *Registry) GetForYear(c tzctx.Context, year int) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.indexLocked(c)
	if !ok {
		return Rule{}, false
	}
	best := r.leadLocked(i)
	name := r.entryLocked(best).Name
	for j := best + 1; j < r.lenLocked(); j++ {
		e := r.entryLocked(j)
		if e.isLead() || !sameName(e.Name, name) {
			break
		}
		from, ok := r.dynYear(e.DynYear)
		if !ok || from > year {
			break
		}
		best = j
	}
	return r.viewLocked(best), true
}

// Lead returns the context of the first entry of c's group.
func (r *Registry) Lead(c tzctx.Context) tzctx.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.indexLocked(c)
	if !ok {
		return c
	}
	return tzctx.Join(c, tzctx.FromIndex(r.leadLocked(i)))
}

// Lookup returns the context of the first active entry called name.
func (r *Registry) Lookup(name string) (tzctx.Context, bool) {
	c, _, ok := r.Find(Rule{Name: name}, MatchNameOnly, FindOptions{})
	return c, ok
}

// Entry is a registry slot as listed by Entries.
type Entry struct {
	Context tzctx.Context
	Rule    Rule
	Builtin bool
}

// Entries returns a snapshot of all entries, the placeholders for the
// unknown and system contexts excluded.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, r.lenLocked()-firstMatchable)
	for i := firstMatchable; i < r.lenLocked(); i++ {
		entries = append(entries, Entry{
			Context: tzctx.FromIndex(i),
			Rule:    r.viewLocked(i),
			Builtin: IsBuiltinIndex(i),
		})
	}
	return entries
}

// Add appends rule as a new dynamic entry and returns its context.
func (r *Registry) Add(rule Rule) (tzctx.Context, error) {
	return r.AddGroup([]Rule{rule})
}

// AddGroup appends the variants of one group as contiguous dynamic entries
// and returns the context of the lead. The first variant must have an
// empty DynYear (or CurrentYear), the others ascending years. GroupEnd is
// set on the last variant of groups with more than one entry.
func (r *Registry) AddGroup(rules []Rule) (tzctx.Context, error) {
	if len(rules) == 0 {
		return tzctx.Unknown, errors.New("empty group")
	}
	group := make([]Rule, len(rules))
	copy(group, rules)
	var errs []error
	prev := -1 << 31
	for i, rule := range group {
		if err := rule.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("variant %d: %w", i, err))
		}
		if !sameName(rule.Name, group[0].Name) {
			errs = append(errs, fmt.Errorf("variant %d: name %q differs from %q", i, rule.Name, group[0].Name))
		}
		if i == 0 {
			if !rule.isLead() {
				errs = append(errs, fmt.Errorf("variant 0: lead has year %q", rule.DynYear))
			}
			continue
		}
		year, err := strconv.Atoi(rule.DynYear)
		if err != nil {
			errs = append(errs, fmt.Errorf("variant %d: invalid year %q", i, rule.DynYear))
			continue
		}
		if year <= prev {
			errs = append(errs, fmt.Errorf("variant %d: year %d not after %d", i, year, prev))
		}
		prev = year
	}
	if err := errors.Join(errs...); err != nil {
		return tzctx.Unknown, fmt.Errorf("group %q: %w", group[0].Name, err)
	}
	for i := range group {
		if group[i].Kind == Removed {
			group[i].Kind = Generic
		}
		group[i].GroupEnd = len(group) > 1 && i == len(group)-1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	lead := r.lenLocked()
	r.dynamic = append(r.dynamic, group...)
	r.removed = append(r.removed, make([]bool, len(group))...)
	r.metrics.addedEntries(len(group))
	return tzctx.FromIndex(lead), nil
}

// dynYear evaluates a DynYear string.
func (r *Registry) dynYear(s string) (int, bool) {
	switch s {
	case "":
		return 0, false
	case CurrentYear:
		return r.currentYear(), true
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return y, true
}

func (r *Registry) currentYear() int {
	return r.now().Year()
}
