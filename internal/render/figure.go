// Package render turns validated chart specs into Plotly figures and PNG images.
package render

import (
	"fmt"
	"math"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
)

// Figure is a Plotly-compatible figure: a list of traces plus a layout.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one Plotly trace. Only the fields a trace type uses are set.
type Trace struct {
	Type        string      `json:"type"`
	Name        string      `json:"name,omitempty"`
	Mode        string      `json:"mode,omitempty"`
	X           []any       `json:"x,omitempty"`
	Y           []any       `json:"y,omitempty"`
	Z           [][]any     `json:"z,omitempty"`
	Labels      []any       `json:"labels,omitempty"`
	Values      []any       `json:"values,omitempty"`
	Hole        float64     `json:"hole,omitempty"`
	Dimensions  []Dimension `json:"dimensions,omitempty"`
	ZMin        *float64    `json:"zmin,omitempty"`
	ZMax        *float64    `json:"zmax,omitempty"`
	ColorScale  string      `json:"colorscale,omitempty"`
	BoxPoints   string      `json:"boxpoints,omitempty"`
	ShowLegend  *bool       `json:"showlegend,omitempty"`
	LegendGroup string      `json:"legendgroup,omitempty"`
}

// Dimension is one axis of a scatter-matrix trace.
type Dimension struct {
	Label  string `json:"label"`
	Values []any  `json:"values"`
}

// Layout carries the figure title and axis titles.
type Layout struct {
	Title   Text   `json:"title"`
	XAxis   *Axis  `json:"xaxis,omitempty"`
	YAxis   *Axis  `json:"yaxis,omitempty"`
	BarMode string `json:"barmode,omitempty"`
	BoxMode string `json:"boxmode,omitempty"`
}

// Axis is a Plotly axis description.
type Axis struct {
	Title Text   `json:"title"`
	Type  string `json:"type,omitempty"`
}

// Text is a Plotly title object.
type Text struct {
	Text string `json:"text"`
}

// NullGroup labels rows whose color value is missing.
const NullGroup = "(missing)"

// NewFigure builds the Plotly figure for a validated spec.
func NewFigure(spec *chart.Spec) (*Figure, error) {
	if spec == nil || spec.Data == nil {
		return nil, fmt.Errorf("render: empty spec")
	}
	fig := &Figure{Layout: Layout{Title: Text{Text: spec.Title}}}
	data := spec.Data
	switch spec.Kind {
	case chart.Line, chart.Scatter, chart.Bar:
		x, _ := data.Column(spec.X.Name())
		y, _ := data.Column(spec.Y.Name())
		for _, g := range groups(data, spec.Color) {
			tr := Trace{Type: "scatter", Name: g.name, X: values(x, g.rows), Y: values(y, g.rows)}
			switch spec.Kind {
			case chart.Line:
				tr.Mode = "lines"
			case chart.Scatter:
				tr.Mode = "markers"
			default:
				tr.Type = "bar"
			}
			fig.Data = append(fig.Data, tr)
		}
		fig.Layout.XAxis, fig.Layout.YAxis = axis(x), axis(y)
		if spec.Kind == chart.Bar && spec.Color.IsSet() {
			fig.Layout.BarMode = "group"
		}
	case chart.Histogram:
		x, _ := data.Column(spec.X.Name())
		for _, g := range groups(data, spec.Color) {
			fig.Data = append(fig.Data, Trace{Type: "histogram", Name: g.name, X: values(x, g.rows)})
		}
		fig.Layout.XAxis = axis(x)
		fig.Layout.YAxis = &Axis{Title: Text{Text: "count"}}
		if spec.Color.IsSet() {
			fig.Layout.BarMode = "overlay"
		}
	case chart.Box:
		y, _ := data.Column(spec.Y.Name())
		x, hasX := data.Column(spec.X.Name())
		for _, g := range groups(data, spec.Color) {
			tr := Trace{Type: "box", Name: g.name, Y: values(y, g.rows), BoxPoints: "outliers"}
			if hasX {
				tr.X = values(x, g.rows)
			}
			fig.Data = append(fig.Data, tr)
		}
		if hasX {
			fig.Layout.XAxis = axis(x)
		}
		fig.Layout.YAxis = axis(y)
		if spec.Color.IsSet() {
			fig.Layout.BoxMode = "group"
		}
	case chart.Pie, chart.Donut:
		d := spec.Derived
		labels, counts := d.Columns[0], d.Columns[1]
		tr := Trace{Type: "pie", Labels: values(labels, allRows(d)), Values: values(counts, allRows(d))}
		if spec.Kind == chart.Donut {
			tr.Hole = 0.4
		}
		fig.Data = append(fig.Data, tr)
	case chart.Heatmap:
		x, _ := data.Column(spec.X.Name())
		y, _ := data.Column(spec.Y.Name())
		rows := allRows(data)
		fig.Data = append(fig.Data, Trace{Type: "histogram2d", X: values(x, rows), Y: values(y, rows), ColorScale: "Viridis"})
		fig.Layout.XAxis, fig.Layout.YAxis = axis(x), axis(y)
	case chart.TimeSeries:
		src := spec.ExportTable()
		date, _ := src.Column(spec.Date.Name())
		cols := ValueColumns(spec)
		for _, g := range groups(src, spec.Color) {
			for _, name := range cols {
				v, _ := src.Column(name)
				tr := Trace{Type: "scatter", Mode: "lines", X: values(date, g.rows), Y: values(v, g.rows), Name: traceName(g.name, name, len(cols))}
				fig.Data = append(fig.Data, tr)
			}
		}
		fig.Layout.XAxis = axis(date)
		if len(cols) == 1 {
			fig.Layout.YAxis = &Axis{Title: Text{Text: cols[0]}}
		}
	case chart.PairPlot:
		for _, g := range groups(data, spec.Color) {
			tr := Trace{Type: "splom", Name: g.name}
			for _, name := range spec.Columns {
				c, _ := data.Column(name)
				tr.Dimensions = append(tr.Dimensions, Dimension{Label: name, Values: values(c, g.rows)})
			}
			fig.Data = append(fig.Data, tr)
		}
	case chart.Aggregation:
		d := spec.Derived
		key := d.Columns[0]
		for _, c := range d.Columns[1:] {
			fig.Data = append(fig.Data, Trace{Type: "bar", Name: c.Name, X: values(key, allRows(d)), Y: values(c, allRows(d))})
		}
		fig.Layout.XAxis = axis(key)
		fig.Layout.YAxis = &Axis{Title: Text{Text: string(spec.AggFunc)}}
		fig.Layout.BarMode = "group"
	case chart.CorrelationHeatmap:
		m := spec.Corr
		z := make([][]any, len(m.Values))
		for i, row := range m.Values {
			z[i] = make([]any, len(row))
			for j, v := range row {
				z[i][j] = finite(v)
			}
		}
		lo, hi := -1.0, 1.0
		names := make([]any, len(m.Columns))
		for i, n := range m.Columns {
			names[i] = n
		}
		fig.Data = append(fig.Data, Trace{Type: "heatmap", X: names, Y: names, Z: z, ZMin: &lo, ZMax: &hi, ColorScale: "RdBu"})
	default:
		return nil, fmt.Errorf("render: unsupported chart type %q", spec.Kind)
	}
	hideSingleLegend(fig)
	return fig, nil
}

// ValueColumns returns the numeric columns a time series plots: the
// resampled columns, the y axis, or every numeric column of the data.
func ValueColumns(spec *chart.Spec) []string {
	if len(spec.Columns) > 0 {
		return spec.Columns
	}
	if spec.Y.IsSet() {
		return []string{spec.Y.Name()}
	}
	var out []string
	for _, c := range spec.Data.Columns {
		if c.Kind == analysis.KindNumeric && c.Name != spec.Date.Name() {
			out = append(out, c.Name)
		}
	}
	return out
}

type group struct {
	name string
	rows []int
}

// groups splits rows by color value in first-seen order. Without a color
// column there is a single unnamed group.
func groups(t *analysis.Table, color analysis.ColumnRef) []group {
	c, ok := t.Column(color.Name())
	if !color.IsSet() || !ok {
		return []group{{rows: allRows(t)}}
	}
	var out []group
	index := map[string]int{}
	for i := 0; i < t.Rows(); i++ {
		name := NullGroup
		if !c.IsNull(i) {
			name = c.String(i)
		}
		g, seen := index[name]
		if !seen {
			g = len(out)
			index[name] = g
			out = append(out, group{name: name})
		}
		out[g].rows = append(out[g].rows, i)
	}
	return out
}

func allRows(t *analysis.Table) []int {
	rows := make([]int, t.Rows())
	for i := range rows {
		rows[i] = i
	}
	return rows
}

// values extracts cells as JSON-ready values. Nulls and non-finite numbers
// become nil and times are formatted like Column.String.
func values(c *analysis.Column, rows []int) []any {
	out := make([]any, len(rows))
	for j, i := range rows {
		switch v := c.Value(i).(type) {
		case float64:
			out[j] = finite(v)
		case time.Time:
			out[j] = c.String(i)
		default:
			out[j] = v
		}
	}
	return out
}

func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func axis(c *analysis.Column) *Axis {
	if c == nil {
		return nil
	}
	a := &Axis{Title: Text{Text: c.Name}}
	switch c.Storage {
	case analysis.StorageTime:
		a.Type = "date"
	case analysis.StorageText, analysis.StorageBool:
		a.Type = "category"
	}
	return a
}

func traceName(group, column string, ncols int) string {
	switch {
	case group == "":
		return column
	case ncols == 1:
		return group
	default:
		return group + " " + column
	}
}

func hideSingleLegend(fig *Figure) {
	if len(fig.Data) != 1 || fig.Data[0].Type == "pie" {
		return
	}
	off := false
	fig.Data[0].ShowLegend = &off
}
