package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var (
	stLoad   loadFlags
	stFormat string
	stOutput string
	stCorr   bool
)

var statsCmd = &cobra.Command{
	Use:   "stats <file.csv>",
	Short: "Summarize a CSV: per-column statistics and correlations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, kinds, err := stLoad.load(args[0])
		if err != nil {
			return err
		}
		rep := analysis.Describe(t, kinds)
		if !stCorr {
			rep.Corr = nil
		}

		var text string
		switch stFormat {
		case "md", "markdown", "":
			text = rep.Markdown()
		case "json":
			b, err := utils.PrettyJSON(rep)
			if err != nil {
				return err
			}
			text = string(b) + "\n"
		case "table":
			text = statsTable(rep)
		default:
			return fmt.Errorf("unsupported --format: %s (use md|table|json)", stFormat)
		}

		if stOutput != "" {
			if err := utils.SafeWriteFile(stOutput, []byte(text)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(os.Stderr, "✓ Wrote statistics to %s\n", stOutput)
			return nil
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	},
}

func statsTable(rep *analysis.Report) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle(fmt.Sprintf("%s: %d rows, %d columns, %d missing", rep.Name, rep.Rows, rep.Cols, rep.Missing))
	tw.AppendHeader(table.Row{"column", "kind", "count", "missing", "min", "median", "max", "mean", "top / range"})
	for _, c := range rep.Columns {
		row := table.Row{c.Name, c.Kind, c.NonNull, c.Missing, "", "", "", "", ""}
		switch {
		case c.Numeric != nil:
			n := c.Numeric
			row[4], row[5], row[6], row[7] = fmt.Sprintf("%.4g", n.Min), fmt.Sprintf("%.4g", n.Median), fmt.Sprintf("%.4g", n.Max), fmt.Sprintf("%.4g", n.Mean)
		case c.First != nil && c.Last != nil:
			row[8] = c.First.Format("2006-01-02") + " to " + c.Last.Format("2006-01-02")
		case len(c.TopValues) > 0:
			row[8] = fmt.Sprintf("%s (%d)", c.TopValues[0].Value, c.TopValues[0].Count)
		}
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}

func init() {
	rootCmd.AddCommand(statsCmd)
	stLoad.register(statsCmd)
	statsCmd.Flags().StringVarP(&stFormat, "format", "f", "md", "output format: md|table|json")
	statsCmd.Flags().StringVarP(&stOutput, "output", "o", "", "optional path to write the summary")
	statsCmd.Flags().BoolVar(&stCorr, "correlations", true, "include Pearson correlations among numeric columns")
}
