package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

func newMaterialsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materials",
		Short: "Work with exam material catalogs",
	}
	cmd.AddCommand(newMaterialsRankCmd(app))
	return cmd
}

func newMaterialsRankCmd(app *App) *cobra.Command {
	var (
		file     string
		at       string
		query    models.MaterialQuery
		matType  string
		examType string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "rank --file catalog.json",
		Short: "Rank a catalog export the way the dashboard would for a given day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			materials, err := readCatalog(file)
			if err != nil {
				return err
			}
			now, err := app.resolveInstant(at)
			if err != nil {
				return err
			}
			query.Type = models.MaterialType(matType)
			query.ExamType = models.ExamType(examType)

			phase := app.Semester.StatusAt(now).Phase
			ranked := app.Ranker.Apply(materials, query, phase)
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
			return writeRanking(cmd.OutOrStdout(), phase, ranked)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of materials")
	cmd.Flags().StringVar(&at, "at", "", "rank as of this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&query.Search, "query", "q", "", "search name, description and topics")
	cmd.Flags().StringVar(&query.CourseCode, "course", "", "course code")
	cmd.Flags().StringVar(&matType, "type", "", "material type (CT, Notes, Slides, Suggestions, Syllabus, Other)")
	cmd.Flags().StringVar(&examType, "exam-type", "", "exam type (Midterm, Regular, All)")
	cmd.Flags().BoolVar(&query.RelevantNow, "relevant-now", false, "only materials relevant to the current phase")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n materials")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readCatalog(path string) ([]models.ExamMaterial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var materials []models.ExamMaterial
	if err := json.Unmarshal(data, &materials); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return materials, nil
}

func writeRanking(out io.Writer, phase models.PhaseKind, materials []models.ExamMaterial) error {
	fmt.Fprintf(out, "Phase: %s, %d materials\n", phase, len(materials))
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOURSE\tNAME\tTYPE\tEXAM\tSCORE\tPRIORITY")
	for i, m := range materials {
		priority := ""
		if m.IsHighPriority {
			priority = "HIGH"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n", i+1, m.CourseCode, strings.TrimSpace(m.Name), m.Type, m.ExamType, m.RelevanceScore, priority)
	}
	return tw.Flush()
}
