package hostzone

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngrash/synctz/internal/tzif"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRegistry() *tzreg.Registry {
	return tzreg.New(
		tzreg.WithLogger(quiet),
		tzreg.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

// zoneinfo writes a zoneinfo tree below a temporary directory and returns
// the tree's root.
func zoneinfo(t *testing.T, files map[string]tzif.File) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "zoneinfo")
	for name, f := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		var buf bytes.Buffer
		require.NoError(t, f.Encode(&buf))
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	}
	return root
}

func env(vars map[string]string) Option {
	return WithEnv(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
}

var testFiles = map[string]tzif.File{
	"Europe/Berlin": {
		Version:     tzif.V2,
		Transitions: []int64{1698541200, 1711846800, 1729990800},
		Types:       []uint8{0, 1, 0},
		LocalTimeTypes: []tzif.LocalTimeType{
			{UTOffset: 3600, Abbrev: "CET"},
			{UTOffset: 7200, IsDST: true, Abbrev: "CEST"},
		},
		TZString: "CET-1CEST,M3.5.0,M10.5.0/3",
	},
	"Asia/Tokyo": {
		Version:        tzif.V2,
		LocalTimeTypes: []tzif.LocalTimeType{{UTOffset: 32400, Abbrev: "JST"}},
		TZString:       "JST-9",
	},
	"Asia/Kathmandu": {
		Version:        tzif.V2,
		LocalTimeTypes: []tzif.LocalTimeType{{UTOffset: 20700, Abbrev: "+0545"}},
		TZString:       "<+0545>-5:45",
	},
	"Legacy/Paris": {
		Version:     tzif.V1,
		Transitions: []int64{1000, 2000},
		Types:       []uint8{1, 0},
		LocalTimeTypes: []tzif.LocalTimeType{
			{UTOffset: 3600, Abbrev: "CET"},
			{UTOffset: 7200, IsDST: true, Abbrev: "CEST"},
		},
	},
	"Etc/UTC": {
		Version:        tzif.V2,
		LocalTimeTypes: []tzif.LocalTimeType{{Abbrev: "UTC"}},
		TZString:       "UTC0",
	},
}

func TestDetect_Localtime(t *testing.T) {
	root := zoneinfo(t, testFiles)
	localtime := filepath.Join(t.TempDir(), "localtime")
	require.NoError(t, os.Symlink(filepath.Join(root, "Europe/Berlin"), localtime))

	reg := newRegistry()
	d := New(env(nil), WithLocaltime(localtime), WithLogger(quiet))

	rule, err := d.Rule()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", rule.Location)
	assert.Equal(t, 60, rule.Bias)

	got, err := d.Detect(reg)
	require.NoError(t, err)
	cet, _ := reg.Lookup("CET")
	assert.Equal(t, cet, got)
}

func TestDetect_TZ(t *testing.T) {
	root := zoneinfo(t, testFiles)
	reg := newRegistry()
	jst, _ := reg.Lookup("JST")
	cet, _ := reg.Lookup("CET")

	tests := []struct {
		tz   string
		want tzctx.Context
	}{
		{"", tzctx.UTC},
		{":", tzctx.UTC},
		{"Asia/Tokyo", jst},
		{":Asia/Tokyo", jst},
		{filepath.Join(root, "Europe/Berlin"), cet},
		{"Etc/UTC", tzctx.UTC},
		{"CET-1CEST,M3.5.0,M10.5.0/3", cet},
		{"JST-9", jst},
	}
	for _, tt := range tests {
		d := New(env(map[string]string{"TZ": tt.tz}), WithZoneinfoDirs(filepath.Join(t.TempDir(), "missing"), root), WithLogger(quiet))
		got, err := d.Detect(reg)
		require.NoError(t, err, "TZ=%q", tt.tz)
		assert.Equal(t, tt.want, got, "TZ=%q", tt.tz)
	}
}

func TestDetect_RegistersUnknownZones(t *testing.T) {
	root := zoneinfo(t, testFiles)
	reg := newRegistry()
	n := reg.Len()

	d := New(env(map[string]string{"TZ": "Asia/Kathmandu"}), WithZoneinfoDirs(root), WithLogger(quiet))
	ctx, err := d.Detect(reg)
	require.NoError(t, err)
	rule, ok := reg.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, "Asia/Kathmandu", rule.Name)
	assert.Equal(t, 345, rule.Bias)
	assert.Equal(t, n+1, reg.Len())

	// A second detection reuses the entry.
	again, err := d.Detect(reg)
	require.NoError(t, err)
	assert.Equal(t, ctx, again)
	assert.Equal(t, n+1, reg.Len())

	posix := New(env(map[string]string{"TZ": "XST-3:15XDT,M4.1.0,M10.1.0"}), WithZoneinfoDirs(root), WithLogger(quiet))
	ctx, err = posix.Detect(reg)
	require.NoError(t, err)
	got, ok := reg.Lookup("XST")
	require.True(t, ok)
	assert.Equal(t, got, ctx)
}

func TestDetect_OffsetsOnly(t *testing.T) {
	root := zoneinfo(t, testFiles)
	reg := newRegistry()
	d := New(env(map[string]string{"TZ": "Legacy/Paris"}), WithZoneinfoDirs(root), WithLogger(quiet))

	rule, err := d.Rule()
	require.NoError(t, err)
	assert.Equal(t, tzreg.OffsetOnly, rule.Kind)
	assert.Equal(t, "CEST", rule.DSTName)

	ctx, err := d.Detect(reg)
	require.NoError(t, err)
	got, ok := reg.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, 60, got.Bias)
	assert.Equal(t, 60, got.DSTBias)
}

func TestDetect_Fallback(t *testing.T) {
	reg := newRegistry()
	now := func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("X", -150*60))
	}
	for _, opts := range [][]Option{
		{env(map[string]string{"TZ": ":Nowhere/City"}), WithZoneinfoDirs(t.TempDir())},
		{env(map[string]string{"TZ": "not a zone"}), WithZoneinfoDirs(t.TempDir())},
		{env(nil), WithLocaltime(filepath.Join(t.TempDir(), "localtime"))},
	} {
		d := New(append(opts, WithClock(now), WithLogger(quiet))...)
		got, err := d.Detect(reg)
		require.NoError(t, err)
		assert.Equal(t, tzctx.FromMinutes(-150), got)
	}
}

func TestDetect_CorruptFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "zoneinfo")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Bad"), []byte("TZif2 but not really"), 0o644))

	d := New(env(map[string]string{"TZ": ":Bad"}), WithZoneinfoDirs(dir), WithLogger(quiet))
	_, err := d.Rule()
	assert.Error(t, err)
}

func TestZoneName(t *testing.T) {
	for path, want := range map[string]string{
		"/usr/share/zoneinfo/Europe/Berlin":       "Europe/Berlin",
		"/usr/share/zoneinfo/posix/America/Denver": "America/Denver",
		"/etc/localtime.bak":                       "",
	} {
		assert.Equal(t, want, zoneName(path), path)
	}
}
