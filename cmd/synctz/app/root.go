// Package app provides the commands of the synctz tool.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ngrash/synctz/config"
	"github.com/ngrash/synctz/internal/hostzone"
	"github.com/ngrash/synctz/iso8601"
	"github.com/ngrash/synctz/resolve"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
	"github.com/ngrash/synctz/tzsource"
	"github.com/ngrash/synctz/vtimezone"
)

// app holds what the commands share. It is set up before every command
// from the configuration file, the environment and the root flags.
type app struct {
	v          *viper.Viper
	now        func() time.Time
	httpClient *http.Client
	hostOpts   []hostzone.Option

	cfg       *config.Config
	logger    *slog.Logger
	metrics   *prometheus.Registry
	reg       *tzreg.Registry
	codec     *vtimezone.Codec
	resolver  *resolve.Resolver
	detector  *hostzone.Detector
	preferred tzctx.Context
}

// NewRootCmd creates the synctz command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{now: time.Now, httpClient: http.DefaultClient})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "synctz",
		Short: "Inspect and convert SyncML time values and timezones",
		Long: `synctz parses and renders ISO 8601 time values, converts them between
timezones and reads and writes VTIMEZONE and TZ/DAYLIGHT definitions.

Zones are taken from a built-in table, extended by the zones, VTIMEZONE
files and IANA sources named in the configuration file (--config or
SYNCTZ_CONFIG).`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.logMetrics()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to the configuration file (YAML)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("system-zone", "", "Registry zone used as the host zone instead of detecting it")
	flags.String("preferred-zone", "", "Zone preferred when resolving TZ/DAYLIGHT values")

	a.v = config.NewViper()
	for key, flag := range map[string]string{
		"config":         "config",
		"log_level":      "log-level",
		"system_zone":    "system-zone",
		"preferred_zone": "preferred-zone",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			slog.Error("Error binding flag", "flag", flag, "error", err)
		}
	}

	root.AddCommand(
		newParseCmd(a),
		newConvertCmd(a),
		newZonesCmd(a),
		newVTimezoneCmd(a),
		newMatchCmd(a),
		newDaylightCmd(a),
		newHostCmd(a),
		newDiffCmd(a),
		newImportCmd(a),
		newCompileCmd(a),
		newTzifCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(config.WithViper(a.v))
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	a.metrics = prometheus.NewRegistry()
	a.reg = tzreg.New(
		tzreg.WithLogger(a.logger),
		tzreg.WithMetrics(tzreg.NewMetrics(a.metrics)),
		tzreg.WithClock(a.now),
	)
	a.codec = vtimezone.New(a.reg, vtimezone.WithLogger(a.logger))
	a.detector = hostzone.New(append([]hostzone.Option{
		hostzone.WithLogger(a.logger),
		hostzone.WithClock(a.now),
	}, a.hostOpts...)...)

	if err := a.loadZones(cmd); err != nil {
		return err
	}

	host := resolve.HostZone(a.detector.HostZone(a.reg))
	if name := cfg.SystemZone; name != "" {
		host = func() (tzctx.Context, error) {
			if c, ok := a.reg.Lookup(name); ok {
				return c, nil
			}
			return tzctx.Unknown, fmt.Errorf("system zone %q: %w", name, tzreg.ErrNotFound)
		}
	}
	a.resolver = resolve.New(a.reg, resolve.WithLogger(a.logger), resolve.WithHostZone(host))

	a.preferred = tzctx.Unknown
	if name := cfg.PreferredZone; name != "" {
		c, ok := a.reg.Lookup(name)
		if !ok {
			return fmt.Errorf("preferred zone %q: %w", name, tzreg.ErrNotFound)
		}
		a.preferred = c
	}
	return nil
}

// loadZones adds the zones of the configuration to the registry.
func (a *app) loadZones(cmd *cobra.Command) error {
	groups, err := a.cfg.Groups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		if _, err := a.reg.AddGroup(g); err != nil {
			return fmt.Errorf("zone %s: %w", g[0].Name, err)
		}
	}

	for _, path := range a.cfg.VTimezones {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read VTIMEZONE file: %w", err)
		}
		for _, block := range vtimezone.Split(string(data)) {
			if _, err := a.codec.Import(block); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	td := a.cfg.TZData
	if len(td.Files) == 0 && td.Archive == "" {
		return nil
	}
	f, err := readSources(td.Files, td.Archive)
	if err != nil {
		return err
	}
	report, err := tzsource.Import(cmd.Context(), a.reg, f, tzsource.ImportOptions{
		Since:  td.Since,
		Zones:  td.Zones,
		Logger: a.logger,
		Now:    a.now,
	})
	if err != nil {
		return err
	}
	for name, err := range report.Failed {
		a.logger.Debug("tzdata zone not imported", "zone", name, "error", err)
	}
	return nil
}

// logMetrics writes the registry counters at debug level.
func (a *app) logMetrics() {
	if a.metrics == nil {
		return
	}
	families, err := a.metrics.Gather()
	if err != nil {
		a.logger.Warn("cannot gather metrics", "error", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName(), "value", m.GetCounter().GetValue()}
			for _, l := range m.GetLabel() {
				attrs = append(attrs, l.GetName(), l.GetValue())
			}
			a.logger.Debug("registry metric", attrs...)
		}
	}
}

// zone resolves a zone argument: UTC, SYSTEM, a fixed offset such as
// +05:30, or the name of a registry entry.
func (a *app) zone(name string) (tzctx.Context, error) {
	switch strings.ToUpper(name) {
	case "UTC", "Z":
		return tzctx.UTC, nil
	case "SYSTEM", "LOCAL":
		return tzctx.System, nil
	}
	if n, c := iso8601.ParseOffset(name); n > 0 && n == len(name) {
		return c, nil
	}
	if c, ok := a.reg.Lookup(name); ok {
		return c, nil
	}
	return tzctx.Unknown, fmt.Errorf("zone %q: %w", name, tzreg.ErrNotFound)
}

// zoneName returns the registry name of c, or its string form.
func (a *app) zoneName(c tzctx.Context) string {
	if c.IsSymbolic() && !c.IsUnknown() && !c.IsSystem() {
		if r, ok := a.reg.Get(c); ok {
			return r.Name
		}
	}
	return c.Zone().String()
}

func yearFlag(flags *pflag.FlagSet, a *app) (int, error) {
	year, err := flags.GetInt("year")
	if err != nil {
		return 0, err
	}
	if year == 0 {
		year = a.now().Year()
	}
	return year, nil
}
