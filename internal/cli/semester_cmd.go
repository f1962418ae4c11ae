package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/pkg/config"
)

func newSemesterCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "semester",
		Short: "Inspect the configured academic calendar",
	}
	cmd.AddCommand(newSemesterStatusCmd(app))
	return cmd
}

func newSemesterStatusCmd(app *App) *cobra.Command {
	var (
		at     string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the semester phase, progress and next milestone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := app.resolveInstant(at)
			if err != nil {
				return err
			}
			status := app.Semester.StatusAt(now)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			return writeStatus(cmd.OutOrStdout(), status)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this date (YYYY-MM-DD) instead of now")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}

// resolveInstant parses an optional --at date in the semester time zone.
func (a *App) resolveInstant(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	loc := time.UTC
	if a.Config != nil && a.Config.Semester.Location != nil {
		loc = a.Config.Semester.Location
	}
	t, err := time.ParseInLocation(config.DateLayout, at, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q, want YYYY-MM-DD", at)
	}
	return t, nil
}

func writeStatus(out io.Writer, s models.SemesterStatus) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Phase:\t%s (%s)\n", s.PhaseName, s.Phase)
	fmt.Fprintf(tw, "Progress:\t%d%% (day %d of %d, week %d)\n", s.ProgressPercent, s.DaysElapsed, s.TotalDays, s.CurrentWeek)
	fmt.Fprintf(tw, "Days remaining:\t%d\n", s.DaysRemaining)
	fmt.Fprintf(tw, "Next milestone:\t%s in %d days\n", s.NextMilestoneName, s.DaysToMilestone)
	if !s.InSession {
		fmt.Fprintf(tw, "Note:\toutside the semester window\n")
	}
	return tw.Flush()
}
