package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var (
	clsLoad   loadFlags
	clsFormat string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file.csv>",
	Short: "Infer the role of every column in a CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, kinds, err := clsLoad.load(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch clsFormat {
		case "json":
			b, err := utils.PrettyJSON(map[string]any{
				"columns":  kinds,
				"defaults": analysis.SelectDefaults(kinds),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(b))
			return err
		case "table", "":
			renderKinds(out, t, kinds)
			return nil
		default:
			return fmt.Errorf("unsupported --format: %s (use table|json)", clsFormat)
		}
	},
}

func renderKinds(w io.Writer, t *analysis.Table, kinds analysis.ColumnKinds) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"column", "kind", "non-null", "missing", "example"})
	for _, k := range kinds {
		c, _ := t.Column(k.Name)
		tw.AppendRow(table.Row{k.Name, k.Kind, c.NonNull(), c.Len() - c.NonNull(), firstValue(c)})
	}
	tw.Render()

	d := analysis.SelectDefaults(kinds)
	_, _ = fmt.Fprintf(w, "(%d rows) default date column: %s, default value column: %s\n", t.Rows(), d.DateColumn, d.ValueColumn)
}

func firstValue(c *analysis.Column) string {
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			return c.String(i)
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	clsLoad.register(classifyCmd)
	classifyCmd.Flags().StringVarP(&clsFormat, "format", "f", "table", "output format: table|json")
}
