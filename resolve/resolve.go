// Package resolve turns time contexts into UTC offsets and converts times
// between contexts.
package resolve

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

// HostZone reports the context of the host's zone.
type HostZone func() (tzctx.Context, error)

// Resolver resolves contexts against one registry. The host zone is asked
// for once and cached until ResetCache.
type Resolver struct {
	reg    *tzreg.Registry
	host   HostZone
	logger *slog.Logger
	flight singleflight.Group

	mu     sync.RWMutex
	system tzctx.Context
	cached bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithHostZone sets the function that detects the host zone. The default
// uses the fixed offset the Go runtime reports for the local zone now.
func WithHostZone(host HostZone) Option {
	return func(r *Resolver) {
		r.host = host
	}
}

// New returns a Resolver for reg.
func New(reg *tzreg.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		reg:    reg,
		host:   localOffset,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func localOffset() (tzctx.Context, error) {
	_, sec := time.Now().Zone()
	return tzctx.FromMinutes(sec / 60), nil
}

// ResolveMeta replaces the System zone by the host zone, keeping the
// rendering flags. Other contexts are returned unchanged.
func (r *Resolver) ResolveMeta(c tzctx.Context) tzctx.Context {
	if !c.IsSystem() {
		return c
	}
	r.mu.RLock()
	system, cached := r.system, r.cached
	r.mu.RUnlock()
	if cached {
		return tzctx.Join(c, system)
	}

	v, _, _ := r.flight.Do("system", func() (any, error) {
		system, err := r.host()
		switch {
		case err != nil:
			r.logger.Warn("cannot detect host timezone, using UTC", "error", err)
			system = tzctx.UTC
		case system.IsSystem():
			system = tzctx.UTC
		}
		system = system.Zone()
		r.mu.Lock()
		r.system, r.cached = system, true
		r.mu.Unlock()
		r.logger.Debug("host timezone", "context", system)
		return system, nil
	})
	return tzctx.Join(c, v.(tzctx.Context))
}

// ResetCache forgets the host zone, for example after the host changed it.
func (r *Resolver) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.system, r.cached = tzctx.Unknown, false
}

// ResolveToOffset returns the offset context that c denotes at the instant
// ref, which is a UTC time if refIsUTC and a local wall time otherwise. The
// rendering flags of c are kept. It fails for Unknown, unregistered and
// opaque zones.
//
// Local times in the hour repeated when daylight saving time ends are taken
// as daylight time, as are times in the hour skipped when it starts.
func (r *Resolver) ResolveToOffset(c tzctx.Context, ref lineartime.Time, refIsUTC bool) (tzctx.Context, bool) {
	c = r.ResolveMeta(c)
	if !c.IsSymbolic() {
		return c, true
	}
	if c.IsUnknown() {
		return c, false
	}
	if c.IsUTC() {
		return tzctx.Join(c, tzctx.FromMinutes(0)), true
	}

	rule, ok := r.reg.GetForYear(c, ref.Year())
	if !ok || rule.IsOpaque() {
		return c, false
	}
	local := ref
	if refIsUTC {
		local += lineartime.Minutes(rule.Bias)
		if local.Year() != ref.Year() {
			if rule, ok = r.reg.GetForYear(c, local.Year()); !ok || rule.IsOpaque() {
				return c, false
			}
			local = ref + lineartime.Minutes(rule.Bias)
		}
	}
	offset := rule.Bias
	if inDST(rule, local, refIsUTC) {
		offset += rule.DSTBias
	}
	return tzctx.Join(c, tzctx.FromMinutes(offset)), true
}

// inDST reports whether the wall time t falls into daylight saving time.
// If standard is set, t is standard time throughout the year.
func inDST(rule tzreg.Rule, t lineartime.Time, standard bool) bool {
	if !rule.HasDST() {
		return false
	}
	year := t.Year()
	dstStart := rule.DST.At(year)
	stdStart := rule.Std.At(year)
	if standard {
		// The change to standard time happens at a daylight wall time.
		stdStart -= lineartime.Minutes(rule.DSTBias)
	}
	if dstStart < stdStart {
		return t >= dstStart && t < stdStart
	}
	// Southern hemisphere: daylight time spans the new year.
	return t >= dstStart || t < stdStart
}

// OffsetDeltaSeconds returns how many seconds must be added to a wall time
// t in src to get the wall time of the same instant in dst. Floating times
// are not shifted: if either context is Unknown, the delta is 0.
func (r *Resolver) OffsetDeltaSeconds(t lineartime.Time, src, dst tzctx.Context) (int64, bool) {
	if tzctx.SameZone(src, dst) || src.IsUnknown() || dst.IsUnknown() {
		return 0, true
	}
	if r.sameRules(src, dst, t.Year()) {
		return 0, true
	}
	srcOffset, ok := r.ResolveToOffset(src, t, false)
	if !ok {
		return 0, false
	}
	utc := t - lineartime.Minutes(srcOffset.Minutes())
	dstOffset, ok := r.ResolveToOffset(dst, utc, true)
	if !ok {
		return 0, false
	}
	return int64(dstOffset.Minutes()-srcOffset.Minutes()) * 60, true
}

// sameRules reports whether two registered zones follow the same rules in
// year, so that converting between them changes nothing.
func (r *Resolver) sameRules(a, b tzctx.Context, year int) bool {
	if !a.IsSymbolic() || !b.IsSymbolic() || a.IsSystem() || b.IsSystem() {
		return false
	}
	ra, ok := r.reg.GetForYear(a, year)
	if !ok || ra.IsOpaque() {
		return false
	}
	rb, ok := r.reg.GetForYear(b, year)
	if !ok || rb.IsOpaque() {
		return false
	}
	return tzreg.SameRules(ra, rb)
}

// Convert returns t, a wall time in src, as a wall time in dst. NoTime,
// durations and dates without time are returned unchanged.
func (r *Resolver) Convert(t lineartime.Time, src, dst tzctx.Context) (lineartime.Time, bool) {
	if t == lineartime.NoTime || src.IsDuration() || src.IsDateOnly() {
		return t, true
	}
	delta, ok := r.OffsetDeltaSeconds(t, src, dst)
	if !ok {
		return t, false
	}
	return t + lineartime.Seconds(delta), true
}
