// Package tzc compiles registry zones into zoneinfo (TZif) files.
package tzc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ngrash/synctz/internal/posixtz"
	"github.com/ngrash/synctz/internal/tzif"
	"github.com/ngrash/synctz/iso8601"
	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

// Default range of years with explicit transitions.
const (
	DefaultSince = 1970
	DefaultUntil = 2037
)

// Options select the years written as transitions. Later years follow
// the footer TZ string.
type Options struct {
	Since, Until int
}

// Compile returns the zoneinfo file of the zone c. Each year from Since
// through Until follows the variant of c's group that applies in it. The
// footer holds the TZ string of the variant of Until, or nothing if that
// rule has no TZ string.
func Compile(reg *tzreg.Registry, c tzctx.Context, opts Options) ([]byte, error) {
	f, err := compile(reg, c, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compile(reg *tzreg.Registry, c tzctx.Context, opts Options) (tzif.File, error) {
	since, until := opts.Since, opts.Until
	if since == 0 {
		since = DefaultSince
	}
	if until == 0 {
		until = DefaultUntil
	}
	if since > until {
		return tzif.File{}, fmt.Errorf("empty year range %d-%d", since, until)
	}
	if !c.IsSymbolic() || c.IsUnknown() || c.IsSystem() {
		return tzif.File{}, fmt.Errorf("%v: %w", c, tzreg.ErrNotFound)
	}

	var b builder
	for year := since; year <= until; year++ {
		r, ok := reg.GetForYear(c, year)
		if !ok {
			return tzif.File{}, fmt.Errorf("%v: %w", c, tzreg.ErrNotFound)
		}
		if r.IsOpaque() || r.Kind == tzreg.Removed {
			return tzif.File{}, fmt.Errorf("%s: %w", r.Name, tzreg.ErrOpaque)
		}
		std := b.typeOf(standardType(r))
		if !r.HasDST() {
			if year == since {
				b.initial = std
			}
			// A change of offset between variants happens on New Year.
			b.add(lineartime.DateToLinear(year, 1, 1)-lineartime.Minutes(r.Bias), std)
			continue
		}
		dst := b.typeOf(daylightType(r))
		dstStart := r.DST.At(year) - lineartime.Minutes(r.Bias)
		stdStart := r.Std.At(year) - lineartime.Minutes(r.Bias+r.DSTBias)
		if year == since {
			b.initial = std
			if stdStart < dstStart {
				// Southern hemisphere: the year starts in daylight time.
				b.initial = dst
			}
		}
		if stdStart < dstStart {
			b.add(stdStart, std)
			b.add(dstStart, dst)
		} else {
			b.add(dstStart, dst)
			b.add(stdStart, std)
		}
	}

	last, _ := reg.GetForYear(c, until)
	tz, err := posixtz.Format(last)
	if err != nil && !errors.Is(err, posixtz.ErrUnsupported) {
		return tzif.File{}, err
	}
	return b.file(tz), nil
}

func standardType(r tzreg.Rule) tzif.LocalTimeType {
	return tzif.LocalTimeType{UTOffset: int32(r.Bias * 60), Abbrev: abbrev(r.StdName, r.Bias)}
}

func daylightType(r tzreg.Rule) tzif.LocalTimeType {
	offset := r.Bias + r.DSTBias
	return tzif.LocalTimeType{UTOffset: int32(offset * 60), IsDST: true, Abbrev: abbrev(r.DSTName, offset)}
}

// abbrev falls back to the numeric form, such as -03.
func abbrev(name string, offset int) string {
	if name != "" {
		return name
	}
	s, _ := iso8601.FormatOffset(tzctx.FromMinutes(offset), false)
	return s
}

// builder collects transitions. Transitions to the type already in effect
// are dropped.
type builder struct {
	types   []tzif.LocalTimeType
	times   []int64
	idx     []uint8
	initial uint8
}

func (b *builder) typeOf(t tzif.LocalTimeType) uint8 {
	for i, have := range b.types {
		if have == t {
			return uint8(i)
		}
	}
	b.types = append(b.types, t)
	return uint8(len(b.types) - 1)
}

func (b *builder) current() uint8 {
	if len(b.idx) == 0 {
		return b.initial
	}
	return b.idx[len(b.idx)-1]
}

func (b *builder) add(utc lineartime.Time, typ uint8) {
	at := utc.Unix()
	if typ == b.current() || (len(b.times) > 0 && at <= b.times[len(b.times)-1]) {
		return
	}
	b.times = append(b.times, at)
	b.idx = append(b.idx, typ)
}

// file orders the types so that the type in effect before the first
// transition comes first, as readers expect.
func (b *builder) file(tz string) tzif.File {
	order := []uint8{b.initial}
	for i := range b.types {
		if uint8(i) != b.initial {
			order = append(order, uint8(i))
		}
	}
	remap := make([]uint8, len(b.types))
	types := make([]tzif.LocalTimeType, len(b.types))
	for newIdx, oldIdx := range order {
		remap[oldIdx] = uint8(newIdx)
		types[newIdx] = b.types[oldIdx]
	}
	f := tzif.File{Version: tzif.V2, LocalTimeTypes: types, TZString: tz}
	if len(b.times) > 0 {
		f.Transitions = b.times
		f.Types = make([]uint8, len(b.idx))
		for i, t := range b.idx {
			f.Types[i] = remap[t]
		}
	}
	return f
}
