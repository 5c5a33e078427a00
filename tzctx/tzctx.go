// Package tzctx implements time contexts.
//
// A Context says how a lineartime.Time is to be interpreted and rendered.
// It carries either an explicit offset in minutes east of UTC or a symbolic
// reference to a registry entry, plus a set of rendering flags.
//
// The three lowest registry indices are reserved:
//
//	0  Unknown  floating time, no zone
//	1  System   the host's zone, resolved on demand
//	2  UTC
//
// The zero Context is Unknown without flags.
package tzctx

import (
	"fmt"
	"strings"
)

// Reserved registry indices.
const (
	IndexUnknown = 0
	IndexSystem  = 1
	IndexUTC     = 2
)

// Flags select how a time is rendered.
type Flags uint8

const (
	// DateOnly marks a value that has no meaningful time of day.
	DateOnly Flags = 1 << iota
	// TimeOnly marks a value that has no meaningful date.
	TimeOnly
	// Duration marks a span rather than a point in time.
	Duration
)

// allFlags covers every defined flag bit.
const allFlags = DateOnly | TimeOnly | Duration

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&DateOnly != 0 {
		parts = append(parts, "date-only")
	}
	if f&TimeOnly != 0 {
		parts = append(parts, "time-only")
	}
	if f&Duration != 0 {
		parts = append(parts, "duration")
	}
	return strings.Join(parts, "|")
}

// Context is a zone reference plus rendering flags. It is a comparable value.
type Context struct {
	offset  bool  // payload holds minutes instead of an index
	payload int32 // registry index or minutes east of UTC
	flags   Flags
}

// Sentinel contexts.
var (
	Unknown = Context{}
	System  = Context{payload: IndexSystem}
	UTC     = Context{payload: IndexUTC}
)

// FromIndex returns a symbolic context referring to registry entry i.
func FromIndex(i int) Context {
	return Context{payload: int32(i)}
}

// FromMinutes returns a context with a fixed offset of m minutes east of UTC.
func FromMinutes(m int) Context {
	return Context{offset: true, payload: int32(m)}
}

// IsSymbolic reports whether c refers to a registry entry.
func (c Context) IsSymbolic() bool { return !c.offset }

// Index returns the registry index of a symbolic context and -1 otherwise.
func (c Context) Index() int {
	if c.offset {
		return -1
	}
	return int(c.payload)
}

// Minutes returns the offset in minutes east of UTC. It is only meaningful
// when c is not symbolic.
func (c Context) Minutes() int {
	if !c.offset {
		return 0
	}
	return int(c.payload)
}

// IsUnknown reports whether c is the floating, zone-less context.
func (c Context) IsUnknown() bool { return !c.offset && c.payload == IndexUnknown }

// IsSystem reports whether c refers to the host's zone.
func (c Context) IsSystem() bool { return !c.offset && c.payload == IndexSystem }

// IsUTC reports whether c is the symbolic UTC context. A zero offset is not UTC
// in this sense, even though it resolves to the same instant.
func (c Context) IsUTC() bool { return !c.offset && c.payload == IndexUTC }

// IsDateOnly reports whether only the date of the value is meaningful.
// A context with both DateOnly and TimeOnly set is neither.
func (c Context) IsDateOnly() bool { return c.flags&(DateOnly|TimeOnly) == DateOnly }

// IsTimeOnly reports whether only the time of day of the value is meaningful.
func (c Context) IsTimeOnly() bool { return c.flags&(DateOnly|TimeOnly) == TimeOnly }

// IsDuration reports whether the value is a span.
func (c Context) IsDuration() bool { return c.flags&Duration != 0 }

// Flags returns the rendering flags of c.
func (c Context) Flags() Flags { return c.flags }

// WithFlags returns c with its rendering flags replaced by f.
func (c Context) WithFlags(f Flags) Context {
	c.flags = f & allFlags
	return c
}

// Zone returns c without rendering flags.
func (c Context) Zone() Context {
	c.flags = 0
	return c
}

// SameZone reports whether a and b carry the same zone payload, ignoring flags.
func SameZone(a, b Context) bool {
	return a.Zone() == b.Zone()
}

// Join returns the rendering flags of flagSource combined with the zone of zoneSource.
func Join(flagSource, zoneSource Context) Context {
	return zoneSource.WithFlags(flagSource.flags)
}

// Packed layout of the 32-bit form.
const (
	payloadMask  = 0xffff
	symbolicBit  = 1 << 16
	dateOnlyBit  = 1 << 17
	timeOnlyBit  = 1 << 18
	durationBit  = 1 << 19
	maxPackedIdx = 0xffff
)

// Uint32 returns the packed 32-bit representation of c. Offsets are stored as
// a signed 16 bit number of minutes; indices as an unsigned 16 bit number.
func (c Context) Uint32() uint32 {
	v := uint32(uint16(c.payload))
	if !c.offset {
		v |= symbolicBit
	}
	if c.flags&DateOnly != 0 {
		v |= dateOnlyBit
	}
	if c.flags&TimeOnly != 0 {
		v |= timeOnlyBit
	}
	if c.flags&Duration != 0 {
		v |= durationBit
	}
	return v
}

// FromUint32 is the inverse of Context.Uint32.
func FromUint32(v uint32) Context {
	var c Context
	if v&symbolicBit != 0 {
		c.payload = int32(v & payloadMask)
	} else {
		c.offset = true
		c.payload = int32(int16(v & payloadMask))
	}
	if v&dateOnlyBit != 0 {
		c.flags |= DateOnly
	}
	if v&timeOnlyBit != 0 {
		c.flags |= TimeOnly
	}
	if v&durationBit != 0 {
		c.flags |= Duration
	}
	return c
}

// Packable reports whether c survives a round trip through Uint32.
func (c Context) Packable() bool {
	if c.offset {
		return c.payload >= -1<<15 && c.payload < 1<<15
	}
	return c.payload >= 0 && c.payload <= maxPackedIdx
}

func (c Context) String() string {
	var s string
	switch {
	case c.offset:
		m := c.payload
		sign := '+'
		if m < 0 {
			sign = '-'
			m = -m
		}
		s = fmt.Sprintf("%c%02d:%02d", sign, m/60, m%60)
	case c.payload == IndexUnknown:
		s = "unknown"
	case c.payload == IndexSystem:
		s = "SYSTEM"
	case c.payload == IndexUTC:
		s = "UTC"
	default:
		s = fmt.Sprintf("zone#%d", c.payload)
	}
	if c.flags != 0 {
		s += " [" + c.flags.String() + "]"
	}
	return s
}
