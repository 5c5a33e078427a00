package vtimezone

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

func newCodec(t *testing.T) (*Codec, *tzreg.Registry) {
	t.Helper()
	reg := tzreg.New(tzreg.WithClock(func() time.Time {
		return time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	}))
	return New(reg), reg
}

func lookup(t *testing.T, reg *tzreg.Registry, name string) tzctx.Context {
	t.Helper()
	ctx, ok := reg.Lookup(name)
	require.True(t, ok, "zone %s", name)
	return ctx
}

var ctxCmp = cmp.Comparer(func(a, b tzctx.Context) bool { return a == b })

const cetBlock = "BEGIN:VTIMEZONE\r\n" +
	"TZID:CET\r\n" +
	"X-LIC-LOCATION:Europe/Berlin\r\n" +
	"BEGIN:STANDARD\r\n" +
	"DTSTART:19671029T030000\r\n" +
	"RRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU\r\n" +
	"TZOFFSETFROM:+0200\r\n" +
	"TZOFFSETTO:+0100\r\n" +
	"TZNAME:CET\r\n" +
	"END:STANDARD\r\n" +
	"BEGIN:DAYLIGHT\r\n" +
	"DTSTART:19870329T020000\r\n" +
	"RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU\r\n" +
	"TZOFFSETFROM:+0100\r\n" +
	"TZOFFSETTO:+0200\r\n" +
	"TZNAME:CEST\r\n" +
	"END:DAYLIGHT\r\n" +
	"END:VTIMEZONE\r\n"

func TestEmit(t *testing.T) {
	c, reg := newCodec(t)
	got, err := c.Emit(lookup(t, reg, "CET"), 2024)
	require.NoError(t, err)
	if diff := cmp.Diff(cetBlock, got); diff != "" {
		t.Errorf("Emit(CET) mismatch (-want +got):\n%s", diff)
	}
}

func TestEmit_LaterVariant(t *testing.T) {
	c, reg := newCodec(t)
	got, err := c.Emit(lookup(t, reg, "EST"), 2024)
	require.NoError(t, err)
	assert.Contains(t, got, "DTSTART:20071104T020000\r\nRRULE:FREQ=YEARLY;BYMONTH=11;BYDAY=1SU\r\n")
	assert.Contains(t, got, "DTSTART:20070311T020000\r\nRRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=2SU\r\n")

	got, err = c.Emit(lookup(t, reg, "EST"), 2000)
	require.NoError(t, err)
	assert.Contains(t, got, "RRULE:FREQ=YEARLY;BYMONTH=4;BYDAY=1SU\r\n")
	assert.Contains(t, got, "DTSTART:19671029T020000\r\n")
}

func TestEmit_NoDST(t *testing.T) {
	c, reg := newCodec(t)
	got, err := c.Emit(lookup(t, reg, "JST"), 2024)
	require.NoError(t, err)
	want := "BEGIN:VTIMEZONE\r\n" +
		"TZID:JST\r\n" +
		"X-LIC-LOCATION:Asia/Tokyo\r\n" +
		"BEGIN:STANDARD\r\n" +
		"DTSTART:19670101T000000\r\n" +
		"TZOFFSETFROM:+0900\r\n" +
		"TZOFFSETTO:+0900\r\n" +
		"TZNAME:JST\r\n" +
		"END:STANDARD\r\n" +
		"END:VTIMEZONE\r\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Emit(JST) mismatch (-want +got):\n%s", diff)
	}

	got, err = c.Emit(tzctx.FromMinutes(-330), 2024)
	require.NoError(t, err)
	assert.Contains(t, got, "TZID:UTC-05:30\r\n")
	assert.Contains(t, got, "TZOFFSETTO:-0530\r\n")
}

func TestEmit_Errors(t *testing.T) {
	c, _ := newCodec(t)
	for _, ctx := range []tzctx.Context{tzctx.Unknown, tzctx.System, tzctx.FromIndex(10000)} {
		if _, err := c.Emit(ctx, 2024); !errors.Is(err, ErrNoRule) {
			t.Errorf("Emit(%v) = %v, want ErrNoRule", ctx, err)
		}
	}
}

func TestEmitParse_RoundTrip(t *testing.T) {
	c, reg := newCodec(t)
	for _, name := range []string{"GMT", "CET", "EET", "AEST", "NZST", "EST", "NST", "PST"} {
		for _, year := range []int{2000, 2024} {
			ctx := lookup(t, reg, name)
			want, ok := reg.GetForYear(ctx, year)
			require.True(t, ok)

			text, err := c.Emit(ctx, year)
			require.NoError(t, err, "%s %d", name, year)
			got, err := c.Parse(text)
			require.NoError(t, err, "%s %d:\n%s", name, year, text)

			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(tzreg.Rule{}, "DynYear", "GroupEnd")); diff != "" {
				t.Errorf("%s %d: Parse(Emit()) mismatch (-want +got):\n%s", name, year, diff)
			}
		}
	}
}

func TestParse_WithoutWrapper(t *testing.T) {
	c, reg := newCodec(t)
	inner := strings.TrimPrefix(strings.TrimSuffix(cetBlock, "END:VTIMEZONE\r\n"), "BEGIN:VTIMEZONE\r\n")
	got, err := c.Parse(strings.ReplaceAll(inner, "\r\n", "\n"))
	require.NoError(t, err)
	want, _ := reg.Get(lookup(t, reg, "CET"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Outlook(t *testing.T) {
	c, _ := newCodec(t)
	text := "BEGIN:VTIMEZONE\n" +
		"TZID:W. Europe Standard Time\n" +
		"BEGIN:STANDARD\n" +
		"DTSTART;VALUE=DATE-TIME:16011028T030000\n" +
		"RRULE:FREQ=YEARLY;BYDAY=-1SU;BYMONTH=10\n" +
		"TZOFFSETFROM:+0200\n" +
		"TZOFFSETTO:+0100\n" +
		"END:STANDARD\n" +
		"BEGIN:DAYLIGHT\n" +
		"DTSTART:16010325T020000\n" +
		"RRULE:FREQ=YEARLY;BYDAY=-1SU;BYMONTH=3\n" +
		"TZOFFSETFROM:+0100\n" +
		"TZOFFSETTO:+0200\n" +
		"END:DAYLIGHT\n" +
		"END:VTIMEZONE\n"
	got, err := c.Parse(text)
	require.NoError(t, err)
	want := tzreg.Rule{
		Name:    "W. Europe Standard Time",
		Bias:    60,
		DSTBias: 60,
		Std:     tzreg.ChangePoint{Month: 10, Nth: 5, Hour: 3},
		DST:     tzreg.ChangePoint{Month: 3, Nth: 5, Hour: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Variants(t *testing.T) {
	c, _ := newCodec(t)
	tests := []struct {
		name string
		text string
		want tzreg.Rule
	}{
		{
			name: "standard only",
			text: "TZID:Asia/Tokyo\nBEGIN:STANDARD\nDTSTART:19700101T000000\nTZOFFSETFROM:+0900\nTZOFFSETTO:+0900\nTZNAME:JST\nEND:STANDARD\n",
			want: tzreg.Rule{Name: "Asia/Tokyo", StdName: "JST", Bias: 540, Kind: tzreg.StandardOnly},
		},
		{
			name: "daylight only",
			text: "TZID:Odd\nBEGIN:DAYLIGHT\nDTSTART:19700101T000000\nTZOFFSETFROM:+0100\nTZOFFSETTO:+0200\nTZNAME:ODT\nEND:DAYLIGHT\n",
			want: tzreg.Rule{Name: "Odd", StdName: "ODT", Bias: 120, Kind: tzreg.DaylightOnly},
		},
		{
			name: "same offsets",
			text: "TZID:Flat\nBEGIN:STANDARD\nDTSTART:19701025T030000\nRRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU\nTZOFFSETTO:+0100\nEND:STANDARD\n" +
				"BEGIN:DAYLIGHT\nDTSTART:19700329T020000\nRRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU\nTZOFFSETTO:+0100\nEND:DAYLIGHT\n",
			want: tzreg.Rule{Name: "Flat", Bias: 60},
		},
		{
			name: "no recurrence",
			text: "TZID:Once\nBEGIN:STANDARD\nDTSTART:19701025T030000\nTZOFFSETTO:+0100\nTZNAME:X\nEND:STANDARD\n" +
				"BEGIN:DAYLIGHT\nDTSTART:19700329T020000\nTZOFFSETTO:+0200\nTZNAME:Y\nEND:DAYLIGHT\n",
			want: tzreg.Rule{Name: "Once", StdName: "X", Bias: 60},
		},
		{
			name: "escaped and folded",
			text: "TZID:Zone\\, Test\\; \n one\nBEGIN:STANDARD\nDTSTART:19700101T000000\nTZOFFSETTO:-023030\nEND:STANDARD\n",
			want: tzreg.Rule{Name: "Zone, Test; one", Bias: -150, Kind: tzreg.StandardOnly},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Parse(tt.text)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	c, _ := newCodec(t)
	for _, text := range []string{
		"",
		"BEGIN:VTIMEZONE\nEND:VTIMEZONE\n",
		"TZID:X\n",
		"TZID:X\nno colon here\n",
		"TZID:X\nBEGIN:STANDARD\nTZOFFSETTO:+0100\nEND:STANDARD\n",
		"TZID:X\nBEGIN:STANDARD\nDTSTART:19700101T000000\nEND:STANDARD\n",
		"TZID:X\nBEGIN:STANDARD\nDTSTART:19700101T000000\nTZOFFSETTO:+1\nEND:STANDARD\n",
		"TZID:X\nBEGIN:STANDARD\nDTSTART:19700101\nTZOFFSETTO:+0100\nEND:STANDARD\n",
		"TZID:X\nBEGIN:STANDARD\nDTSTART:19700101T000000\nTZOFFSETTO:+0100\n",
		"TZID:X\nBEGIN:STANDARD\nDTSTART:19700101T000000\nTZOFFSETTO:+0100\nEND:DAYLIGHT\n",
		"TZID:X\nBEGIN:STANDARD\nBEGIN:DAYLIGHT\n",
	} {
		if _, err := c.Parse(text); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) = %v, want ErrMalformed", text, err)
		}
	}
}

func TestParse_UnsupportedRecurrence(t *testing.T) {
	c, _ := newCodec(t)
	text := "TZID:X\nBEGIN:STANDARD\nDTSTART:19701025T030000\nRRULE:FREQ=MONTHLY;BYDAY=-1SU\nTZOFFSETTO:+0100\nEND:STANDARD\n" +
		"BEGIN:DAYLIGHT\nDTSTART:19700329T020000\nRRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU\nTZOFFSETTO:+0200\nEND:DAYLIGHT\n"
	_, err := c.Parse(text)
	assert.Error(t, err)
}

const historicBlock = "TZID:Europe/Historic\r\n" +
	"BEGIN:STANDARD\r\n" +
	"DTSTART:19961027T030000\r\n" +
	"RRULE:FREQ=YEARLY;BYMONTH=10;BYDAY=-1SU\r\n" +
	"TZOFFSETFROM:+0200\r\n" +
	"TZOFFSETTO:+0100\r\n" +
	"END:STANDARD\r\n" +
	"BEGIN:STANDARD\r\n" +
	"DTSTART:19800928T030000\r\n" +
	"RRULE:FREQ=YEARLY;UNTIL=19950924T010000Z;BYMONTH=9;BYDAY=-1SU\r\n" +
	"TZOFFSETFROM:+0200\r\n" +
	"TZOFFSETTO:+0100\r\n" +
	"END:STANDARD\r\n" +
	"BEGIN:DAYLIGHT\r\n" +
	"DTSTART:19810329T020000\r\n" +
	"RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=-1SU\r\n" +
	"TZOFFSETFROM:+0100\r\n" +
	"TZOFFSETTO:+0200\r\n" +
	"END:DAYLIGHT"

func TestOpaque(t *testing.T) {
	c, reg := newCodec(t)
	rule, err := c.Parse("BEGIN:VTIMEZONE\r\n" + historicBlock + "\r\nEND:VTIMEZONE\r\n")
	require.NoError(t, err)
	assert.Equal(t, tzreg.Opaque, rule.Kind)
	assert.Equal(t, historicBlock, rule.Raw)
	assert.Equal(t, 60, rule.Bias)

	ctx, err := c.Import(historicBlock)
	require.NoError(t, err)
	again, err := c.Import(historicBlock)
	require.NoError(t, err)
	assert.Equal(t, ctx, again)

	text, err := c.Emit(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VTIMEZONE\r\n"+historicBlock+"\r\nEND:VTIMEZONE\r\n", text)

	got, ok := reg.Get(ctx)
	require.True(t, ok)
	assert.True(t, got.IsOpaque())
}

func TestImport(t *testing.T) {
	c, reg := newCodec(t)
	cet := lookup(t, reg, "CET")

	ctx, err := c.Import(cetBlock)
	require.NoError(t, err)
	assert.Equal(t, cet, ctx)

	// Matched by location and rules.
	mozilla := strings.Replace(cetBlock, "TZID:CET", "TZID:/mozilla.org/20050126_1/Europe/Berlin", 1)
	mozilla = strings.Replace(mozilla, "X-LIC-LOCATION:Europe/Berlin\r\n", "", 1)
	ctx, err = c.Import(mozilla)
	require.NoError(t, err)
	assert.Equal(t, cet, ctx)

	jst := "TZID:Asia/Tokyo\nBEGIN:STANDARD\nDTSTART:19700101T000000\nTZOFFSETFROM:+0900\nTZOFFSETTO:+0900\nEND:STANDARD\n"
	ctx, err = c.Import(jst)
	require.NoError(t, err)
	assert.Equal(t, lookup(t, reg, "JST"), ctx)

	n := reg.Len()
	mars := strings.NewReplacer("CET", "Test/Mars", "+0100", "+0130", "+0200", "+0230", "Europe/Berlin", "Mars/Olympus").Replace(cetBlock)
	created, err := c.Import(mars)
	require.NoError(t, err)
	assert.Equal(t, n+1, reg.Len())
	assert.False(t, tzreg.IsBuiltin(created))

	again, err := c.Import(mars)
	require.NoError(t, err)
	assert.Equal(t, created, again)
	assert.Equal(t, n+1, reg.Len())

	_, err = c.Import("garbage")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEmit_EscapedName(t *testing.T) {
	c, reg := newCodec(t)
	rule := tzreg.Rule{
		Name:    "Zone, with; \\ specials and a name long enough to need folding across lines",
		Bias:    90,
		DSTBias: 30,
		Std:     tzreg.ChangePoint{Month: 10, Weekday: 0, Nth: 5, Hour: 3},
		DST:     tzreg.ChangePoint{Month: 3, Weekday: 0, Nth: 5, Hour: 2},
	}
	ctx, err := reg.Add(rule)
	require.NoError(t, err)

	text, err := c.Emit(ctx, 2024)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSuffix(text, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), maxLine, "line %q", line)
	}

	got, err := c.Parse(text)
	require.NoError(t, err)
	if diff := cmp.Diff(rule, got); diff != "" {
		t.Errorf("Parse(Emit()) mismatch (-want +got):\n%s", diff)
	}
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a,b;c\\d\ne", `a\,b\;c\\d\ne`},
		{"crlf\r\n", `crlf\n`},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	for _, s := range []string{"plain", "a,b;c\\d\ne", "Ünïcödé, too"} {
		if got := Unescape(Escape(s)); got != s {
			t.Errorf("Unescape(Escape(%q)) = %q", s, got)
		}
	}
	if got := Unescape(`\N\x\`); got != "\nx\\" {
		t.Errorf("Unescape = %q", got)
	}
}

func TestFold(t *testing.T) {
	line := "TZID:" + strings.Repeat("äbc", 60)
	folded := fold(line)
	for _, l := range strings.Split(folded, "\r\n") {
		assert.LessOrEqual(t, len(l), maxLine)
	}
	if diff := cmp.Diff([]string{line}, unfold(folded)); diff != "" {
		t.Errorf("unfold(fold()) mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "short", fold("short"))
}

func TestParseProperty(t *testing.T) {
	tests := []struct {
		in   string
		want property
		ok   bool
	}{
		{"TZID:Europe/Berlin", property{Name: "TZID", Value: "Europe/Berlin"}, true},
		{"dtstart;value=date-time:19700101T000000", property{Name: "DTSTART", Params: "value=date-time", Value: "19700101T000000"}, true},
		{`X-A;P="a:b":v:w`, property{Name: "X-A", Params: `P="a:b"`, Value: "v:w"}, true},
		{"no colon", property{}, false},
		{":value", property{Value: "value"}, false},
	}
	for _, tt := range tests {
		got, ok := parseProperty(tt.in)
		if ok != tt.ok {
			t.Errorf("parseProperty(%q) ok = %t, want %t", tt.in, ok, tt.ok)
			continue
		}
		if diff := cmp.Diff(tt.want, got); ok && diff != "" {
			t.Errorf("parseProperty(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestUTCOffset(t *testing.T) {
	for in, want := range map[string]int{"+0100": 60, "-0530": -330, "+000000": 0, "-023030": -150} {
		got, err := parseUTCOffset(in)
		if err != nil || got != want {
			t.Errorf("parseUTCOffset(%q) = %d, %v, want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "0100", "+01", "+01:00", "+0160"} {
		if _, err := parseUTCOffset(in); err == nil {
			t.Errorf("parseUTCOffset(%q) succeeded", in)
		}
	}
	assert.Equal(t, "-0530", formatUTCOffset(-330))
	assert.Equal(t, "+0000", formatUTCOffset(0))
}

// recorder checks that a Codec uses the configured recurrence converter.
type recorder struct {
	calls int
}

func (r *recorder) ChangePoint(string, lineartime.Time) (tzreg.ChangePoint, lineartime.Time, error) {
	r.calls++
	return tzreg.ChangePoint{Month: 1, Weekday: tzreg.FixedDay, Nth: 1}, lineartime.NoTime, nil
}

func (r *recorder) RRule(tzreg.ChangePoint, int) (string, lineartime.Time, error) {
	r.calls++
	return "FREQ=YEARLY", lineartime.DateTime(2000, 1, 1, 0, 0, 0, 0), nil
}

func TestWithRecurrence(t *testing.T) {
	reg := tzreg.New()
	rec := &recorder{}
	c := New(reg, WithRecurrence(rec))
	_, err := c.Parse(cetBlock)
	require.NoError(t, err)
	ctx, _ := reg.Lookup("CET")
	_, err = c.Emit(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.calls)
}

func TestSplit(t *testing.T) {
	utc := "BEGIN:VTIMEZONE\r\nTZID:UTC\r\nBEGIN:STANDARD\r\nDTSTART:19700101T000000\r\n" +
		"TZOFFSETFROM:+0000\r\nTZOFFSETTO:+0000\r\nEND:STANDARD\r\nEND:VTIMEZONE\r\n"
	calendar := "BEGIN:VCALENDAR\nVERSION:2.0\n" + cetBlock + utc +
		"BEGIN:VEVENT\r\nSUMMARY:Meeting\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

	if diff := cmp.Diff([]string{cetBlock, utc}, Split(calendar)); diff != "" {
		t.Errorf("Split() mismatch (-want +got):\n%s", diff)
	}

	bare := "TZID:X\r\nBEGIN:STANDARD\r\nEND:STANDARD\r\n"
	assert.Equal(t, []string{bare}, Split(bare))
	assert.Empty(t, Split(" \r\n"))
}
