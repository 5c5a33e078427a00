// Package hostzone detects the zone of the host and maps it to a registry
// context.
//
// The TZ environment variable is consulted first, as the C library does:
// unset means /etc/localtime, empty means UTC, ":name" or "name" is a file
// under one of the zoneinfo directories (an absolute name is the file
// itself), and a name that is no file is read as a POSIX TZ string.
package hostzone

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ngrash/synctz/internal/posixtz"
	"github.com/ngrash/synctz/internal/tzif"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
)

// ZoneinfoDirs are the directories searched for zoneinfo files.
var ZoneinfoDirs = []string{
	"/usr/share/zoneinfo",
	"/usr/share/lib/zoneinfo",
	"/usr/lib/locale/TZ",
	"/etc/zoneinfo",
}

// Detector finds the host zone. The zero value is not usable; use New.
type Detector struct {
	lookupEnv func(string) (string, bool)
	localtime string
	dirs      []string
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithEnv replaces os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(d *Detector) {
		d.lookupEnv = lookup
	}
}

// WithLocaltime sets the path used when TZ is unset.
func WithLocaltime(path string) Option {
	return func(d *Detector) {
		d.localtime = path
	}
}

// WithZoneinfoDirs sets the directories searched for zone names.
func WithZoneinfoDirs(dirs ...string) Option {
	return func(d *Detector) {
		d.dirs = dirs
	}
}

// WithClock sets the clock used for the last resort fixed offset.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// New returns a Detector that looks at the real host.
func New(opts ...Option) *Detector {
	d := &Detector{
		lookupEnv: os.LookupEnv,
		localtime: "/etc/localtime",
		dirs:      ZoneinfoDirs,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Rule returns the rule of the host zone. Its Location is the IANA name
// when it is known.
func (d *Detector) Rule() (tzreg.Rule, error) {
	tz, ok := d.lookupEnv("TZ")
	switch {
	case !ok:
		return d.fromFile(d.localtime)
	case tz == "" || tz == ":":
		return tzreg.Rule{Name: "UTC", StdName: "UTC", Location: "Etc/UTC"}, nil
	}

	colon := tz[0] == ':'
	name := strings.TrimPrefix(tz, ":")
	if filepath.IsAbs(name) {
		return d.fromFile(name)
	}
	var fileErr error
	for _, dir := range d.dirs {
		rule, err := d.fromFile(filepath.Join(dir, name))
		if err == nil {
			rule.Name, rule.Location = name, name
			return rule, nil
		}
		fileErr = errors.Join(fileErr, err)
	}
	if colon {
		return tzreg.Rule{}, fmt.Errorf("zone %q: %w", name, fileErr)
	}
	rule, err := posixtz.Parse(tz)
	if err != nil {
		return tzreg.Rule{}, fmt.Errorf("TZ=%q is neither a zone name nor a TZ string: %w", tz, err)
	}
	return rule, nil
}

// fromFile reads a zoneinfo file. The zone name is taken from the path
// below a zoneinfo directory, following symbolic links.
func (d *Detector) fromFile(path string) (tzreg.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return tzreg.Rule{}, err
	}
	defer f.Close()
	data, err := tzif.Decode(f)
	if err != nil {
		return tzreg.Rule{}, fmt.Errorf("%s: %w", path, err)
	}

	var rule tzreg.Rule
	if data.TZString != "" {
		if rule, err = posixtz.Parse(data.TZString); err != nil {
			d.logger.Debug("ignoring TZ string", "path", path, "error", err)
		}
	}
	if err != nil || data.TZString == "" {
		std, dst, hasDST := data.Current()
		rule = tzreg.Rule{Name: std.Abbrev, StdName: std.Abbrev, Bias: int(std.UTOffset) / 60}
		if hasDST {
			// Without transition rules only the offsets are known.
			rule.DSTName = dst.Abbrev
			rule.DSTBias = int(dst.UTOffset-std.UTOffset) / 60
			rule.Kind = tzreg.OffsetOnly
		}
	}
	if name := zoneName(path); name != "" {
		rule.Name, rule.Location = name, name
	}
	return rule, nil
}

// zoneName returns the part of the resolved path below a directory named
// zoneinfo, such as Europe/Berlin.
func zoneName(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	path = filepath.ToSlash(path)
	if _, name, ok := strings.Cut(path, "/zoneinfo/"); ok {
		name = strings.TrimPrefix(name, "posix/")
		name = strings.TrimPrefix(name, "right/")
		return name
	}
	return ""
}

// Detect registers the host zone in reg and returns its context. A zone
// with the same rules as an existing entry is mapped to that entry. If
// nothing can be read, the current fixed offset of the Go runtime is used.
func (d *Detector) Detect(reg *tzreg.Registry) (tzctx.Context, error) {
	rule, err := d.Rule()
	if err != nil {
		_, sec := d.now().Zone()
		d.logger.Warn("cannot read host timezone, using current offset", "error", err, "offset_minutes", sec/60)
		return tzctx.FromMinutes(sec / 60), nil
	}
	if rule.Location == "Etc/UTC" || (rule.Name == "UTC" && rule.Bias == 0 && !rule.HasDST()) {
		return tzctx.UTC, nil
	}

	if m, ok := reg.BestMatch(rule); ok && m.RuleMatch {
		d.logger.Debug("host timezone matches registry entry", "name", rule.Name, "context", m.Context)
		return m.Context, nil
	}
	mode := tzreg.MatchStrict
	if rule.Kind == tzreg.OffsetOnly {
		mode = tzreg.MatchOffsetOnly
	}
	ctx, name, _ := reg.Find(rule, mode, tzreg.FindOptions{Create: true})
	d.logger.Info("registered host timezone", "name", name, "context", ctx)
	return ctx, nil
}

// HostZone adapts d to the resolver's host zone function.
func (d *Detector) HostZone(reg *tzreg.Registry) func() (tzctx.Context, error) {
	return func() (tzctx.Context, error) {
		return d.Detect(reg)
	}
}
