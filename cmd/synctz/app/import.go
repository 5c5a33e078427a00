package app

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ngrash/synctz/tzctx"
	"github.com/ngrash/synctz/tzsource"
)

// readSources parses IANA source files and the data files of a release
// archive into one File.
func readSources(paths []string, archive string) (tzsource.File, error) {
	var files []tzsource.File
	for _, path := range paths {
		fh, err := os.Open(path)
		if err != nil {
			return tzsource.File{}, fmt.Errorf("failed to open tzdata file: %w", err)
		}
		f, err := tzsource.Parse(fh)
		fh.Close()
		if err != nil {
			return tzsource.File{}, fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, f)
	}
	if archive != "" {
		fh, err := os.Open(archive)
		if err != nil {
			return tzsource.File{}, fmt.Errorf("failed to open tzdata archive: %w", err)
		}
		defer fh.Close()
		release, err := tzsource.ReadArchive(fh)
		if err != nil {
			return tzsource.File{}, fmt.Errorf("%s: %w", archive, err)
		}
		f, err := release.Parse()
		if err != nil {
			return tzsource.File{}, fmt.Errorf("%s: %w", archive, err)
		}
		files = append(files, f)
	}
	return tzsource.Merge(files...), nil
}

func newImportCmd(a *app) *cobra.Command {
	var (
		archive, baseURL string
		latest           bool
		since, until     int
		zones            []string
	)
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import IANA tzdata sources and list the zones created",
		Long: `Import IANA tzdata source files, a tzdata release archive (--archive) or
the latest release from IANA (--latest). Each zone becomes a group of
registry entries, one per run of years with the same rules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && archive == "" && !latest {
				return errors.New("nothing to import: name files, --archive or --latest")
			}
			f, err := readSources(args, archive)
			if err != nil {
				return err
			}
			if latest {
				client := &tzsource.Client{HTTPClient: a.httpClient, BaseURL: baseURL}
				release, _, err := client.Latest(cmd.Context(), "")
				if err != nil {
					return err
				}
				lf, err := release.Parse()
				if err != nil {
					return fmt.Errorf("tzdata %s: %w", release.Version, err)
				}
				a.logger.Info("downloaded tzdata release", "version", release.Version, "files", len(release.Files))
				f = tzsource.Merge(f, lf)
			}

			report, err := tzsource.Import(cmd.Context(), a.reg, f, tzsource.ImportOptions{
				Since:  since,
				Until:  until,
				Zones:  zones,
				Logger: a.logger,
				Now:    a.now,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range report.Added {
				c, _ := a.reg.Lookup(name)
				fmt.Fprintf(out, "added   %s (%s) from %s\n", name, c, strings.Join(a.groupYears(c), ", "))
			}
			for _, name := range report.Skipped {
				fmt.Fprintf(out, "skipped %s\n", name)
			}
			failed := make([]string, 0, len(report.Failed))
			for name := range report.Failed {
				failed = append(failed, name)
			}
			slices.Sort(failed)
			for _, name := range failed {
				fmt.Fprintf(out, "failed  %s: %v\n", name, report.Failed[name])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "tzdata release archive (.tar.gz)")
	cmd.Flags().BoolVar(&latest, "latest", false, "Download the latest tzdata release")
	cmd.Flags().StringVar(&baseURL, "base-url", tzsource.DefaultBaseURL, "Where --latest downloads from")
	cmd.Flags().IntVar(&since, "since", tzsource.DefaultSince, "First year imported")
	cmd.Flags().IntVar(&until, "until", 0, "Last year imported (default: next year)")
	cmd.Flags().StringSliceVar(&zones, "zone", nil, "Import only these zones and links")
	return cmd
}

// groupYears lists the first year of each variant in the group starting at
// c, "-" standing for the lead.
func (a *app) groupYears(c tzctx.Context) []string {
	var years []string
	lead, ok := a.reg.Entry(c)
	if !ok {
		return nil
	}
	for i := c.Index(); ; i++ {
		r, ok := a.reg.Entry(tzctx.FromIndex(i))
		if !ok || (i > c.Index() && (r.DynYear == "" || !strings.EqualFold(r.Name, lead.Name))) {
			break
		}
		years = append(years, dash(r.DynYear))
		if r.GroupEnd {
			break
		}
	}
	return years
}
