package tzreg

import "github.com/ngrash/synctz/tzctx"

// Weekday numbers as used in ChangePoint.
const (
	sun = 0
	lst = 5 // last occurrence
)

func on(month, nth, hour int) ChangePoint {
	return ChangePoint{Month: month, Weekday: sun, Nth: nth, Hour: hour}
}

// builtin is the static part of every registry. Entries of a group are
// contiguous; the lead comes first.
var builtin = []Rule{
	tzctx.IndexUnknown: {Name: "unknown"},
	tzctx.IndexSystem:  {Name: "SYSTEM"},
	tzctx.IndexUTC:     {Name: "UTC", StdName: "UTC", Location: "Etc/UTC"},

	// Europe
	{Name: "GMT", StdName: "GMT", DSTName: "BST", Location: "Europe/London",
		Bias: 0, DSTBias: 60, Std: on(10, lst, 2), DST: on(3, lst, 1)},
	{Name: "WET", StdName: "WET", DSTName: "WEST", Location: "Europe/Lisbon",
		Bias: 0, DSTBias: 60, Std: on(10, lst, 2), DST: on(3, lst, 1)},
	{Name: "CET", StdName: "CET", DSTName: "CEST", Location: "Europe/Berlin",
		Bias: 60, DSTBias: 60, Std: on(10, lst, 3), DST: on(3, lst, 2)},
	{Name: "EET", StdName: "EET", DSTName: "EEST", Location: "Europe/Helsinki",
		Bias: 120, DSTBias: 60, Std: on(10, lst, 4), DST: on(3, lst, 3)},
	{Name: "MSK", StdName: "MSK", Location: "Europe/Moscow", Bias: 180},
	{Name: "TRT", StdName: "+03", Location: "Europe/Istanbul", Bias: 180},

	// Asia
	{Name: "GST", StdName: "+04", Location: "Asia/Dubai", Bias: 240},
	{Name: "IST", StdName: "IST", Location: "Asia/Kolkata", Bias: 330},
	{Name: "CST China", StdName: "CST", Location: "Asia/Shanghai", Bias: 480},
	{Name: "JST", StdName: "JST", Location: "Asia/Tokyo", Bias: 540},

	// Australia and Oceania
	{Name: "AEST", StdName: "AEST", DSTName: "AEDT", Location: "Australia/Sydney",
		Bias: 600, DSTBias: 60, Std: on(3, lst, 3), DST: on(10, lst, 2)},
	{Name: "AEST", StdName: "AEST", DSTName: "AEDT", Location: "Australia/Sydney",
		Bias: 600, DSTBias: 60, Std: on(4, 1, 3), DST: on(10, 1, 2), DynYear: "2008", GroupEnd: true},
	{Name: "AEST Queensland", StdName: "AEST", Location: "Australia/Brisbane", Bias: 600},
	{Name: "NZST", StdName: "NZST", DSTName: "NZDT", Location: "Pacific/Auckland",
		Bias: 720, DSTBias: 60, Std: on(3, 3, 3), DST: on(10, 1, 2)},
	{Name: "NZST", StdName: "NZST", DSTName: "NZDT", Location: "Pacific/Auckland",
		Bias: 720, DSTBias: 60, Std: on(4, 1, 3), DST: on(9, lst, 2), DynYear: "2007", GroupEnd: true},

	// South America
	{Name: "BRT", StdName: "-03", Location: "America/Sao_Paulo", Bias: -180},

	// North America. The 2007 variants follow the Energy Policy Act of 2005.
	{Name: "AST", StdName: "AST", DSTName: "ADT", Location: "America/Halifax",
		Bias: -240, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "AST", StdName: "AST", DSTName: "ADT", Location: "America/Halifax",
		Bias: -240, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "NST", StdName: "NST", DSTName: "NDT", Location: "America/St_Johns",
		Bias: -210, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "NST", StdName: "NST", DSTName: "NDT", Location: "America/St_Johns",
		Bias: -210, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "EST", StdName: "EST", DSTName: "EDT", Location: "America/New_York",
		Bias: -300, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "EST", StdName: "EST", DSTName: "EDT", Location: "America/New_York",
		Bias: -300, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "CST", StdName: "CST", DSTName: "CDT", Location: "America/Chicago",
		Bias: -360, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "CST", StdName: "CST", DSTName: "CDT", Location: "America/Chicago",
		Bias: -360, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "CST Mexico", StdName: "CST", Location: "America/Mexico_City", Bias: -360},
	{Name: "MST", StdName: "MST", DSTName: "MDT", Location: "America/Denver",
		Bias: -420, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "MST", StdName: "MST", DSTName: "MDT", Location: "America/Denver",
		Bias: -420, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "MST Arizona", StdName: "MST", Location: "America/Phoenix", Bias: -420},
	{Name: "PST", StdName: "PST", DSTName: "PDT", Location: "America/Los_Angeles",
		Bias: -480, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "PST", StdName: "PST", DSTName: "PDT", Location: "America/Los_Angeles",
		Bias: -480, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "AKST", StdName: "AKST", DSTName: "AKDT", Location: "America/Anchorage",
		Bias: -540, DSTBias: 60, Std: on(10, lst, 2), DST: on(4, 1, 2)},
	{Name: "AKST", StdName: "AKST", DSTName: "AKDT", Location: "America/Anchorage",
		Bias: -540, DSTBias: 60, Std: on(11, 1, 2), DST: on(3, 2, 2), DynYear: "2007", GroupEnd: true},
	{Name: "HST", StdName: "HST", Location: "Pacific/Honolulu", Bias: -600},
}

// IsBuiltinIndex reports whether i refers to the static table.
func IsBuiltinIndex(i int) bool {
	return i >= 0 && i < len(builtin)
}

// IsBuiltin reports whether c is a symbolic context referring to the static table.
func IsBuiltin(c tzctx.Context) bool {
	return c.IsSymbolic() && IsBuiltinIndex(c.Index())
}

// firstMatchable is the lowest index Find and BestMatch consider. The
// unknown and system slots are placeholders.
const firstMatchable = tzctx.IndexUTC
