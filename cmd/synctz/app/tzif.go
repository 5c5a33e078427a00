package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngrash/synctz/internal/posixtz"
	"github.com/ngrash/synctz/internal/tzif"
	"github.com/ngrash/synctz/tzc"
	"github.com/ngrash/synctz/tzreg"
)

func newCompileCmd(a *app) *cobra.Command {
	var (
		since, until int
		output       string
	)
	cmd := &cobra.Command{
		Use:   "compile <zone>",
		Short: "Write a registry zone as a zoneinfo (TZif) file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.zone(args[0])
			if err != nil {
				return err
			}
			data, err := tzc.Compile(a.reg, c, tzc.Options{Since: since, Until: until})
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write zoneinfo file: %w", err)
			}
			a.logger.Info("wrote zoneinfo file", "zone", a.zoneName(c), "path", output, "bytes", len(data))
			return nil
		},
	}
	cmd.Flags().IntVar(&since, "since", tzc.DefaultSince, "First year with explicit transitions")
	cmd.Flags().IntVar(&until, "until", tzc.DefaultUntil, "Last year with explicit transitions")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: standard output)")
	return cmd
}

func newTzifCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tzif <file>",
		Short: "Describe a zoneinfo (TZif) file and match it against the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open zoneinfo file: %w", err)
			}
			defer fh.Close()
			f, err := tzif.Decode(fh)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "version:", f.Version)
			fmt.Fprintln(out, "transitions:", len(f.Transitions))
			if all {
				for i, at := range f.Transitions {
					lt := f.LocalTimeTypes[f.Types[i]]
					fmt.Fprintf(out, "  %s %s\n", time.Unix(at, 0).UTC().Format(time.RFC3339), describeType(lt))
				}
			}
			fmt.Fprintln(out, "local time types:", len(f.LocalTimeTypes))
			for i, lt := range f.LocalTimeTypes {
				fmt.Fprintf(out, "  %d %s\n", i, describeType(lt))
			}
			fmt.Fprintln(out, "footer:", dash(f.TZString))
			if f.TZString == "" {
				return nil
			}

			rule, err := posixtz.Parse(f.TZString)
			if err != nil {
				if errors.Is(err, posixtz.ErrUnsupported) {
					fmt.Fprintln(out, "match: none, footer has no equivalent rule")
					return nil
				}
				return err
			}
			fmt.Fprintln(out, "rule:", describeRule(rule))
			m, ok := a.reg.BestMatch(rule)
			if !ok {
				fmt.Fprintln(out, "match: none")
				return nil
			}
			fmt.Fprintf(out, "match: %s (%s) exact=%t rules=%t\n", a.zoneName(m.Context), m.Context, m.Exact, m.RuleMatch)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "transitions", false, "List every transition")
	return cmd
}

func describeType(lt tzif.LocalTimeType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %s", lt.Abbrev, time.Duration(lt.UTOffset)*time.Second)
	if lt.IsDST {
		b.WriteString(" dst")
	}
	return b.String()
}

func describeRule(r tzreg.Rule) string {
	if !r.HasDST() {
		return fmt.Sprintf("%s %+d", r.StdName, r.Bias)
	}
	return fmt.Sprintf("%s %+d, %s %+d from %s to %s", r.StdName, r.Bias, r.DSTName, r.DSTBias, r.DST, r.Std)
}
