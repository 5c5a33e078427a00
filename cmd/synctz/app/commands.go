package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/ngrash/synctz/iso8601"
	"github.com/ngrash/synctz/lineartime"
	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzreg"
	"github.com/ngrash/synctz/vtimezone"
)

// parseTimestamp parses all of s.
func parseTimestamp(s string) (lineartime.Time, tzctx.Context, error) {
	n, t, ctx := iso8601.ParseTimestamp(s)
	if n == 0 || n != len(s) {
		return 0, tzctx.Unknown, fmt.Errorf("cannot parse %q as an ISO 8601 time", s)
	}
	return t, ctx, nil
}

func fractional(t lineartime.Time) bool {
	return t%lineartime.TicksPerSecond != 0
}

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <iso8601>",
		Short: "Parse a timestamp or duration and render it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ctx, err := parseTimestamp(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "value:    %d\n", int64(t))
			if !ctx.IsDuration() {
				fmt.Fprintf(out, "time:     %s\n", t)
			}
			fmt.Fprintf(out, "context:  %s\n", ctx)
			fmt.Fprintf(out, "basic:    %s\n", iso8601.FormatTimestamp(t, ctx, false, fractional(t)))
			fmt.Fprintf(out, "extended: %s\n", iso8601.FormatTimestamp(t, ctx, true, fractional(t)))
			return nil
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "convert <iso8601> --to <zone>",
		Short: "Convert a timestamp into another zone",
		Long: `Convert a timestamp into another zone. Zones are UTC, SYSTEM, fixed
offsets such as +05:30 or registry names. A timestamp without a zone
designator needs --from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, src, err := parseTimestamp(args[0])
			if err != nil {
				return err
			}
			switch {
			case from != "" && !src.Zone().IsUnknown():
				return fmt.Errorf("%q already has a zone designator", args[0])
			case from != "":
				z, err := a.zone(from)
				if err != nil {
					return err
				}
				src = tzctx.Join(src, z)
			case src.Zone().IsUnknown() && !src.IsDuration() && !src.IsDateOnly():
				return fmt.Errorf("%q has no zone designator, use --from", args[0])
			}
			z, err := a.zone(to)
			if err != nil {
				return err
			}
			dst := tzctx.Join(src, z)

			out, ok := a.resolver.Convert(t, src, dst)
			if !ok {
				return fmt.Errorf("cannot convert %s from %s to %s", args[0], a.zoneName(src), a.zoneName(dst))
			}
			render := dst
			if !dst.IsUTC() && !src.IsDateOnly() && !src.IsDuration() {
				srcOffset, ok := a.resolver.ResolveToOffset(src, t, false)
				if !ok {
					return fmt.Errorf("cannot resolve %s", a.zoneName(src))
				}
				utc := t - lineartime.Minutes(srcOffset.Minutes())
				if render, ok = a.resolver.ResolveToOffset(dst, utc, true); !ok {
					return fmt.Errorf("cannot resolve %s", a.zoneName(dst))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), iso8601.FormatTimestamp(out, render, true, fractional(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Zone of a timestamp without designator")
	cmd.Flags().StringVar(&to, "to", "", "Target zone")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newZonesCmd(a *app) *cobra.Command {
	var dynamic bool
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "List the registry entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tNAME\tLOCATION\tBIAS\tDST\tSTANDARD\tYEAR\tKIND")
			for _, e := range a.reg.Entries() {
				if dynamic && e.Builtin {
					continue
				}
				r := e.Rule
				dst, std := "-", "-"
				if r.HasDST() {
					dst = fmt.Sprintf("%s %+d", r.DST, r.DSTBias)
					std = r.Std.String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Context.Index(), r.Name, dash(r.Location), tzctx.FromMinutes(r.Bias),
					dst, std, dash(r.DynYear), r.Kind)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&dynamic, "dynamic", false, "List only entries added at runtime")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newVTimezoneCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vtimezone <zone>",
		Short: "Write the VTIMEZONE block of a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.zone(args[0])
			if err != nil {
				return err
			}
			year, err := yearFlag(cmd.Flags(), a)
			if err != nil {
				return err
			}
			block, err := a.codec.Emit(a.resolver.ResolveMeta(c), year)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), block)
			return nil
		},
	}
	cmd.Flags().Int("year", 0, "Year whose rules are written (default: current year)")
	return cmd
}

func newMatchCmd(a *app) *cobra.Command {
	var register bool
	cmd := &cobra.Command{
		Use:   "match <file>",
		Short: "Find the registry entries matching the VTIMEZONE blocks of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			blocks := vtimezone.Split(string(data))
			if len(blocks) == 0 {
				return fmt.Errorf("%s: no VTIMEZONE blocks", args[0])
			}
			out := cmd.OutOrStdout()
			for _, block := range blocks {
				rule, err := a.codec.Parse(block)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				if register {
					c, err := a.codec.Import(block)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %s (%s)\n", rule.Name, a.zoneName(c), c)
					continue
				}
				m, ok := a.reg.BestMatch(rule)
				if !ok {
					fmt.Fprintf(out, "%s: no match\n", rule.Name)
					continue
				}
				fmt.Fprintf(out, "%s: %s (%s) exact=%t rules=%t location=%t\n",
					rule.Name, a.zoneName(m.Context), m.Context, m.Exact, m.RuleMatch, m.LocationMatch)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&register, "import", false, "Register blocks without a rule match")
	return cmd
}

func newDaylightCmd(a *app) *cobra.Command {
	var at, read string
	cmd := &cobra.Command{
		Use:   "daylight <zone>",
		Short: "Write the TZ and DAYLIGHT values of a zone",
		Long: `Write the TZ and DAYLIGHT values of a zone. With --read, the zone is
the TZ value and the DAYLIGHT value given is resolved to a registry zone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.zone(args[0])
			if err != nil {
				return err
			}
			if read != "" {
				z, ok := a.codec.ParseTzDaylight(read, c, a.preferred)
				if !ok {
					return fmt.Errorf("cannot use DAYLIGHT value %q", read)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", a.zoneName(z), z)
				return nil
			}
			sample := lineartime.FromGoTime(a.now())
			if at != "" {
				if sample, _, err = parseTimestamp(at); err != nil {
					return err
				}
			}
			daylight, tz, err := a.codec.EmitTzDaylight(a.resolver.ResolveMeta(c), sample)
			if err != nil {
				return err
			}
			tzText, ok := iso8601.FormatOffset(tz, true)
			if !ok {
				tzText = tz.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "TZ:%s\nDAYLIGHT:%s\n", tzText, daylight)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Local time from which the next daylight period is written (default: now)")
	cmd.Flags().StringVar(&read, "read", "", "DAYLIGHT value to resolve")
	return cmd
}

func newHostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Show the host timezone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			c := a.resolver.ResolveMeta(tzctx.System)
			fmt.Fprintf(out, "context:  %s\n", c)
			if r, ok := a.reg.Get(c); ok {
				fmt.Fprintf(out, "name:     %s\n", r.Name)
				fmt.Fprintf(out, "location: %s\n", dash(r.Location))
			}
			now := lineartime.FromGoTime(a.now().UTC())
			if offset, ok := a.resolver.ResolveToOffset(c, now, true); ok {
				text, _ := iso8601.FormatOffset(offset, true)
				fmt.Fprintf(out, "offset:   %s\n", text)
			}
			return nil
		},
	}
}

func newDiffCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <zoneA> <zoneB>",
		Short: "Compare the rules of two zones",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := yearFlag(cmd.Flags(), a)
			if err != nil {
				return err
			}
			var rules [2]tzreg.Rule
			for i, name := range args {
				c, err := a.zone(name)
				if err != nil {
					return err
				}
				r, ok := a.reg.GetForYear(a.resolver.ResolveMeta(c), year)
				if !ok {
					return fmt.Errorf("%s: %w", name, tzreg.ErrNotFound)
				}
				rules[i] = r
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "same rules: %t\n", tzreg.SameRules(rules[0], rules[1]))
			if diff := cmp.Diff(rules[0], rules[1]); diff != "" {
				fmt.Fprintln(out, "zones are different: -A +B")
				fmt.Fprintln(out, diff)
			} else {
				fmt.Fprintln(out, "zones are identical")
			}
			return nil
		},
	}
	cmd.Flags().Int("year", 0, "Year whose variants are compared (default: current year)")
	return cmd
}
