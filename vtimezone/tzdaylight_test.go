package vtimezone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

func TestEmitTzDaylight(t *testing.T) {
	c, reg := newCodec(t)
	tests := []struct {
		zone    string
		sample  lineartime.Time
		want    string
		wantStd tzctx.Context
	}{
		{"CET", lineartime.DateTime(2004, 1, 1, 0, 0, 0, 0), "TRUE;+02;20040328T020000;20041031T030000;CET;CEST", tzctx.FromMinutes(60)},
		{"CET", lineartime.DateTime(2004, 7, 1, 0, 0, 0, 0), "TRUE;+02;20050327T020000;20051030T030000;CET;CEST", tzctx.FromMinutes(60)},
		{"EST", lineartime.DateTime(2004, 1, 1, 0, 0, 0, 0), "TRUE;-04;20040404T020000;20041031T020000;EST;EDT", tzctx.FromMinutes(-300)},
		{"EST", lineartime.DateTime(2008, 1, 1, 0, 0, 0, 0), "TRUE;-04;20080309T020000;20081102T020000;EST;EDT", tzctx.FromMinutes(-300)},
		{"AEST", lineartime.DateTime(2010, 1, 1, 0, 0, 0, 0), "TRUE;+11;20101003T020000;20110403T030000;AEST;AEDT", tzctx.FromMinutes(600)},
		{"JST", lineartime.DateTime(2004, 1, 1, 0, 0, 0, 0), "FALSE", tzctx.FromMinutes(540)},
	}
	for _, tt := range tests {
		got, std, err := c.EmitTzDaylight(lookup(t, reg, tt.zone), tt.sample)
		require.NoError(t, err, tt.zone)
		assert.Equal(t, tt.want, got, "%s at %v", tt.zone, tt.sample)
		assert.Equal(t, tt.wantStd, std, tt.zone)
	}

	got, std, err := c.EmitTzDaylight(tzctx.FromMinutes(60).WithFlags(tzctx.DateOnly), 0)
	require.NoError(t, err)
	assert.Equal(t, "FALSE", got)
	assert.Equal(t, tzctx.FromMinutes(60), std)

	_, _, err = c.EmitTzDaylight(tzctx.System, 0)
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestParseTzDaylight(t *testing.T) {
	c, reg := newCodec(t)
	cet, est := lookup(t, reg, "CET"), lookup(t, reg, "EST")
	plus1 := tzctx.FromMinutes(60)

	tests := []struct {
		name     string
		daylight string
		std      tzctx.Context
		want     tzctx.Context
		wantOK   bool
	}{
		{"false", "FALSE", plus1, plus1, true},
		{"empty", "", plus1, plus1, true},
		{"garbled", "MAYBE", plus1, plus1, false},
		{"short", "TRUE;+02", plus1, plus1, false},
		{"bad offset", "TRUE;2;20040328T020000;20041031T030000", plus1, plus1, false},
		{"bad instant", "TRUE;+02;20040328;20041031T030000", plus1, plus1, false},
		{"symbolic std", "TRUE;+02;20040328T020000;20041031T030000", cet, cet, false},
		{"no shift", "TRUE;+01;20040328T020000;20041031T030000", plus1, plus1, true},
		{"named", "TRUE;+02;20040328T020000;20041031T030000;CET;CEST", plus1, cet, true},
		{"utc instants", "TRUE;+02:00;20040328T010000Z;20041031T010000Z", plus1, cet, true},
		{"us before 2007", "TRUE;-04;20040404T020000;20041031T020000;EST;EDT", tzctx.FromMinutes(-300), est, true},
		{"us since 2007", "TRUE;-04;20080309T020000;20081102T020000;EST;EDT", tzctx.FromMinutes(-300), est, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.ParseTzDaylight(tt.daylight, tt.std, tzctx.Unknown)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTzDaylight_Preferred(t *testing.T) {
	c, reg := newCodec(t)
	cetRule, ok := reg.Get(lookup(t, reg, "CET"))
	require.True(t, ok)
	paris := cetRule
	paris.Name, paris.Location = "Romance Standard Time", "Europe/Paris"
	preferred, err := reg.Add(paris)
	require.NoError(t, err)

	got, ok := c.ParseTzDaylight("TRUE;+02;20040328T020000;20041031T030000", tzctx.FromMinutes(60), preferred)
	require.True(t, ok)
	assert.Equal(t, preferred, got)

	// A preferred zone with other rules is ignored.
	got, ok = c.ParseTzDaylight("TRUE;+02;20040328T020000;20041031T030000", tzctx.FromMinutes(60), lookup(t, reg, "EST"))
	require.True(t, ok)
	assert.Equal(t, lookup(t, reg, "CET"), got)
}

func TestParseTzDaylight_CreatesOffsetEntry(t *testing.T) {
	c, reg := newCodec(t)
	n := reg.Len()
	daylight := "TRUE;+02:30;20040404T020000;20041010T030000;XST;XDT"

	got, ok := c.ParseTzDaylight(daylight, tzctx.FromMinutes(90), tzctx.Unknown)
	require.True(t, ok)
	assert.Equal(t, n+1, reg.Len())

	rule, found := reg.Get(got)
	require.True(t, found)
	assert.Equal(t, "XST/XDT", rule.Name)
	assert.Equal(t, tzreg.OffsetOnly, rule.Kind)
	assert.Equal(t, 90, rule.Bias)
	assert.Equal(t, 60, rule.DSTBias)
	assert.Equal(t, tzreg.ChangePoint{Month: 4, Weekday: 0, Nth: 1, Hour: 2}, rule.DST)
	assert.Equal(t, tzreg.ChangePoint{Month: 10, Weekday: 0, Nth: 2, Hour: 3}, rule.Std)

	again, ok := c.ParseTzDaylight(daylight, tzctx.FromMinutes(90), tzctx.Unknown)
	require.True(t, ok)
	assert.Equal(t, got, again)
	assert.Equal(t, n+1, reg.Len())

	// Unnamed rules get a name from their offsets.
	other, ok := c.ParseTzDaylight("TRUE;+03:45;20040404T020000;20041010T030000", tzctx.FromMinutes(195), tzctx.Unknown)
	require.True(t, ok)
	rule, _ = reg.Get(other)
	assert.Equal(t, "UTC+03:15/+03:45", rule.Name)
}

func TestTzDaylight_RoundTrip(t *testing.T) {
	c, reg := newCodec(t)
	for _, zone := range []string{"GMT", "CET", "EET", "EST", "CST", "PST", "NZST"} {
		ctx := lookup(t, reg, zone)
		for _, year := range []int{2001, 2006, 2010, 2024} {
			daylight, std, err := c.EmitTzDaylight(ctx, lineartime.DateTime(year, 1, 1, 0, 0, 0, 0))
			require.NoError(t, err)
			got, ok := c.ParseTzDaylight(daylight, std, tzctx.Unknown)
			require.True(t, ok, "%s %d: %s", zone, year, daylight)
			assert.Equal(t, ctx, got, "%s %d: %s", zone, year, daylight)
		}
	}
}
