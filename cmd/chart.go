package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/export"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var (
	chLoad   loadFlags
	chReq    chartFlags
	chOutput string
	chWidth  int
	chHeight int
)

// chartFlags mirrors the chart request fields as command-line flags.
type chartFlags struct {
	kind, title                        string
	x, y, color, category, value, date string
	start, end, resample, groupBy, agg string
	aggCols, columns                   []string
}

func (f chartFlags) request() (chart.Request, error) {
	req := chart.Request{
		Kind:     chart.Kind(f.kind),
		Title:    f.title,
		X:        analysis.Ref(f.x),
		Y:        analysis.Ref(f.y),
		Color:    analysis.Ref(f.color),
		Category: analysis.Ref(f.category),
		Value:    analysis.Ref(f.value),
		Date:     analysis.Ref(f.date),
		Resample: chart.Frequency(f.resample),
		GroupBy:  analysis.Ref(f.groupBy),
		AggCols:  f.aggCols,
		AggFunc:  chart.AggFunc(f.agg),
		Columns:  f.columns,
	}
	var start, end time.Time
	for _, d := range []struct {
		flag, raw string
		dst       *time.Time
	}{{"start", f.start, &start}, {"end", f.end, &end}} {
		if d.raw == "" {
			continue
		}
		ts, ok := analysis.ParseTime(d.raw)
		if !ok {
			return req, fmt.Errorf("invalid --%s: %q is not a date", d.flag, d.raw)
		}
		*d.dst = ts
	}
	if !start.IsZero() || !end.IsZero() {
		req.Range = &chart.DateRange{Start: start, End: end}
	}
	return req, nil
}

var chartCmd = &cobra.Command{
	Use:   "chart <file.csv>",
	Short: "Validate a chart request and render it or export its data",
	Long: `Validate a chart request against a CSV and write the result.

The output format follows the --output extension:
  .png   rendered image (line, scatter, bar, histogram, pie, donut,
         time_series, aggregation)
  .csv   the rows behind the chart, after filtering and aggregation
  .xlsx  the same rows as a workbook
  .json  the chart figure (also printed to stdout when --output is omitted)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, kinds, err := chLoad.load(args[0])
		if err != nil {
			return err
		}
		req, err := chReq.request()
		if err != nil {
			return err
		}
		spec, err := chart.Validate(req, t, kinds)
		if err != nil {
			return err
		}
		logger.Debug("chart validated", "kind", spec.Kind, "rows", spec.Data.Rows(), "columns", spec.ColumnsUsed())

		if chOutput == "" {
			b, err := figureJSON(spec)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		}
		var buf bytes.Buffer
		switch ext := strings.ToLower(filepath.Ext(chOutput)); ext {
		case ".png":
			err = render.PNG(&buf, spec, chWidth, chHeight)
		case ".csv":
			err = export.Write(&buf, spec.ExportTable(), export.CSV)
		case ".xlsx":
			err = export.Write(&buf, spec.ExportTable(), export.XLSX)
		case ".json":
			var b []byte
			b, err = figureJSON(spec)
			buf.Write(b)
		default:
			return fmt.Errorf("unsupported output extension %q (use .png|.csv|.xlsx|.json)", ext)
		}
		if err != nil {
			return err
		}
		if err := utils.SafeWriteFile(chOutput, buf.Bytes()); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s chart to %s\n", spec.Kind, chOutput)
		return nil
	},
}

func figureJSON(spec *chart.Spec) ([]byte, error) {
	fig, err := render.NewFigure(spec)
	if err != nil {
		return nil, err
	}
	return utils.PrettyJSON(fig)
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chLoad.register(chartCmd)
	f := chartCmd.Flags()
	f.StringVarP(&chReq.kind, "type", "t", "", "chart type: "+strings.Join(kindNames(), "|"))
	f.StringVar(&chReq.title, "title", "", "chart title (default derived from the type)")
	f.StringVarP(&chReq.x, "x", "x", "", "x axis column")
	f.StringVarP(&chReq.y, "y", "y", "", "y axis column")
	f.StringVar(&chReq.color, "color", "", "column to group traces by")
	f.StringVar(&chReq.category, "category", "", "pie/donut category column")
	f.StringVar(&chReq.value, "value", "", "pie/donut value column (rows are counted if omitted)")
	f.StringVar(&chReq.date, "date", "", "date column for time series and date filtering")
	f.StringVar(&chReq.start, "start", "", "keep rows on or after this date")
	f.StringVar(&chReq.end, "end", "", "keep rows on or before this date")
	f.StringVar(&chReq.resample, "resample", "", "time series period: day|week|month|quarter|year")
	f.StringVar(&chReq.groupBy, "group-by", "", "aggregation group column")
	f.StringSliceVar(&chReq.aggCols, "agg-columns", nil, "aggregation value columns (comma-separated)")
	f.StringVar(&chReq.agg, "agg-func", "", "aggregate function: mean|sum|count|min|max")
	f.StringSliceVar(&chReq.columns, "columns", nil, "numeric columns for pair_plot/correlation_heatmap")
	f.StringVarP(&chOutput, "output", "o", "", "output file (.png|.csv|.xlsx|.json)")
	f.IntVar(&chWidth, "width", render.DefaultWidth, "PNG width in pixels")
	f.IntVar(&chHeight, "height", render.DefaultHeight, "PNG height in pixels")
	_ = chartCmd.MarkFlagRequired("type")
}

func kindNames() []string {
	out := make([]string, len(chart.Kinds))
	for i, k := range chart.Kinds {
		out[i] = string(k)
	}
	return out
}
