package tzsource

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngrash/synctz/tzreg"
)

// DefaultSince is the first year expanded by Import.
const DefaultSince = 1970

// ImportOptions control Import. The zero value imports every zone from
// DefaultSince to next year.
type ImportOptions struct {
	Since, Until int
	// Zones restricts the import to these zone and link names.
	Zones []string
	// Concurrency limits the zones expanded in parallel. Zero means
	// GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
	// Now defaults to time.Now and sets the default for Until.
	Now func() time.Time
}

// Report lists the outcome of an Import by zone name.
type Report struct {
	Added   []string
	Skipped []string
	Failed  map[string]error
}

// Import expands the zones of f and appends them to reg as groups. Zones
// whose name is already in reg are skipped. Links become groups of their
// own with the link's name and the target's rules.
func Import(ctx context.Context, reg *tzreg.Registry, f File, opts ImportOptions) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	since, until := opts.Since, opts.Until
	if since == 0 {
		since = DefaultSince
	}
	if until == 0 {
		until = now().Year() + 1
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	wanted := func(name string) bool {
		return len(opts.Zones) == 0 || slices.Contains(opts.Zones, name)
	}
	targets := make(map[string]bool)
	for _, l := range f.Links {
		if wanted(l.Name) {
			targets[l.Target] = true
		}
	}

	var zones []Zone
	for _, z := range f.Zones {
		if wanted(z.Name) || targets[z.Name] {
			zones = append(zones, z)
		}
	}

	sets := f.RuleSets()
	groups := make([][]tzreg.Rule, len(zones))
	errs := make([]error, len(zones))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, z := range zones {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			groups[i], errs[i] = ExpandGroup(z, sets, since, until)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Failed: make(map[string]error)}
	byName := make(map[string][]tzreg.Rule, len(zones))
	add := func(name string, group []tzreg.Rule) {
		if _, ok := reg.Lookup(name); ok {
			report.Skipped = append(report.Skipped, name)
			return
		}
		if _, err := reg.AddGroup(group); err != nil {
			report.Failed[name] = err
			return
		}
		report.Added = append(report.Added, name)
		logger.Debug("imported zone", "name", name, "variants", len(group))
	}
	for i, z := range zones {
		if errs[i] != nil {
			report.Failed[z.Name] = errs[i]
			logger.Info("zone not imported", "name", z.Name, "error", errs[i])
			continue
		}
		byName[z.Name] = groups[i]
		if wanted(z.Name) {
			add(z.Name, groups[i])
		}
	}
	for _, l := range f.Links {
		if !wanted(l.Name) {
			continue
		}
		target, ok := byName[l.Target]
		if !ok {
			if _, failed := report.Failed[l.Target]; !failed {
				report.Failed[l.Name] = fmt.Errorf("link %s: unknown target %s", l.Name, l.Target)
			}
			continue
		}
		alias := slices.Clone(target)
		for j := range alias {
			alias[j].Name = l.Name
		}
		add(l.Name, alias)
	}
	logger.Info("imported time zone data",
		"added", len(report.Added), "skipped", len(report.Skipped), "failed", len(report.Failed),
		"since", since, "until", until)
	return report, nil
}
