// Package config loads the synctz configuration from a YAML file and
// SYNCTZ_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ngrash/synctz/tzreg"
)

// EnvPrefix is the prefix of all environment variables.
const EnvPrefix = "SYNCTZ"

// ErrInvalid wraps all validation errors.
var ErrInvalid = errors.New("invalid configuration")

// Option configures Load.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
	env  *viper.Viper
}

// WithPath reads the configuration from a YAML file.
func WithPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return errors.New("path is required")
		}
		cfg.path = path
		return nil
	}
}

// WithViper reads environment overrides through v instead of a new
// instance bound to SYNCTZ_ variables. Flags bound to v override too.
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		cfg.env = v
		return nil
	}
}

// Config is the root of the configuration file.
type Config struct {
	// LogLevel is one of debug, info, warn and error.
	LogLevel string `yaml:"logLevel,omitempty"`
	// SystemZone names the registry entry used as the host zone. Empty
	// means detection from the platform.
	SystemZone string `yaml:"systemZone,omitempty"`
	// PreferredZone is tried first when resolving TZ/DAYLIGHT pairs.
	PreferredZone string `yaml:"preferredZone,omitempty"`
	// Zones are added to the registry at startup. Consecutive zones with
	// the same name form one group.
	Zones []Zone `yaml:"zones,omitempty"`
	// VTimezones are files with VTIMEZONE blocks imported at startup.
	VTimezones []string `yaml:"vtimezones,omitempty"`
	TZData     TZData   `yaml:"tzdata,omitempty"`
}

// Zone is a registry rule.
type Zone struct {
	Name     string      `yaml:"name"`
	StdName  string      `yaml:"stdName,omitempty"`
	DSTName  string      `yaml:"dstName,omitempty"`
	Location string      `yaml:"location,omitempty"`
	Bias     int         `yaml:"bias"`
	DSTBias  int         `yaml:"dstBias,omitempty"`
	Std      ChangePoint `yaml:"std,omitempty"`
	DST      ChangePoint `yaml:"dst,omitempty"`
	DynYear  string      `yaml:"dynYear,omitempty"`
}

// ChangePoint is a yearly transition. Nth 5 is the last occurrence,
// weekday -1 makes Nth a day of the month.
type ChangePoint struct {
	Month   int `yaml:"month"`
	Weekday int `yaml:"weekday"`
	Nth     int `yaml:"nth"`
	Hour    int `yaml:"hour"`
	Minute  int `yaml:"minute,omitempty"`
}

// TZData lists IANA sources imported at startup.
type TZData struct {
	Files   []string `yaml:"files,omitempty"`
	Archive string   `yaml:"archive,omitempty"`
	Since   int      `yaml:"since,omitempty"`
	Zones   []string `yaml:"zones,omitempty"`
}

// Load reads the configuration. Without a path, SYNCTZ_CONFIG names the
// file; without either, the defaults apply. SYNCTZ_LOG_LEVEL,
// SYNCTZ_SYSTEM_ZONE and SYNCTZ_PREFERRED_ZONE override the file.
func Load(opts ...Option) (*Config, error) {
	lc := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(lc); err != nil {
			return nil, err
		}
	}
	v := lc.env
	if v == nil {
		v = NewViper()
	}

	cfg := &Config{LogLevel: "info"}
	path := lc.path
	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	for key, field := range map[string]*string{
		"log_level":      &cfg.LogLevel,
		"system_zone":    &cfg.SystemZone,
		"preferred_zone": &cfg.PreferredZone,
	} {
		if v.IsSet(key) {
			*field = v.GetString(key)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewViper returns a viper instance reading SYNCTZ_ variables, with
// dashes and dots in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"config", "log_level", "system_zone", "preferred_zone"} {
		_ = v.BindEnv(key)
	}
	return v
}

func (c *Config) validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for i, z := range c.Zones {
		if z.Name == "" {
			errs = append(errs, fmt.Errorf("zones[%d]: name is required", i))
			continue
		}
		if err := z.Rule().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("zones[%d] (%s): %w", i, z.Name, err))
		}
	}
	if _, err := c.Groups(); err != nil {
		errs = append(errs, err)
	}
	for i, path := range c.VTimezones {
		if path == "" {
			errs = append(errs, fmt.Errorf("vtimezones[%d]: path is required", i))
		}
	}
	if s := c.TZData.Since; s != 0 && (s < 1900 || s > 2100) {
		errs = append(errs, fmt.Errorf("tzdata.since: year %d out of range", s))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Rule converts z.
func (z Zone) Rule() tzreg.Rule {
	return tzreg.Rule{
		Name:     z.Name,
		StdName:  z.StdName,
		DSTName:  z.DSTName,
		Location: z.Location,
		Bias:     z.Bias,
		DSTBias:  z.DSTBias,
		Std:      tzreg.ChangePoint(z.Std),
		DST:      tzreg.ChangePoint(z.DST),
		DynYear:  z.DynYear,
	}
}

// Groups returns the zones as registry groups. A zone with a dynYear
// continues the group of the zone before it, which must have the same
// name.
func (c *Config) Groups() ([][]tzreg.Rule, error) {
	var groups [][]tzreg.Rule
	for i, z := range c.Zones {
		r := z.Rule()
		if z.DynYear == "" || z.DynYear == tzreg.CurrentYear {
			groups = append(groups, []tzreg.Rule{r})
			continue
		}
		if len(groups) == 0 || !strings.EqualFold(groups[len(groups)-1][0].Name, z.Name) {
			return nil, fmt.Errorf("zones[%d] (%s): variant for %s without a lead", i, z.DynYear, z.Name)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], r)
	}
	return groups, nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
