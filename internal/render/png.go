package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
)

// ErrNoImage is returned for chart types without a raster rendering.
var ErrNoImage = errors.New("chart type has no image export")

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to plot")

const (
	DefaultWidth  = 1024
	DefaultHeight = 640
	histogramBins = 20
)

var palette = []drawing.Color{
	gochart.ColorBlue, gochart.ColorGreen, gochart.ColorRed, gochart.ColorOrange,
	gochart.ColorCyan, gochart.ColorAlternateGray, gochart.ColorYellow, gochart.ColorBlack,
}

// pointStyle draws markers without connecting lines.
func pointStyle(col drawing.Color) gochart.Style {
	return gochart.Style{StrokeWidth: gochart.Disabled, DotWidth: 4, DotColor: col}
}

func lineStyle(col drawing.Color) gochart.Style {
	return gochart.Style{StrokeWidth: 2, StrokeColor: col}
}

// PNG draws spec as a PNG image. Line, time series, scatter, bar,
// aggregation, histogram, pie and donut charts are supported; other kinds
// return ErrNoImage. Aggregation images draw the first aggregated column
// only; NewFigure carries all of them.
func PNG(w io.Writer, spec *chart.Spec, width, height int) error {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	src := spec.ExportTable()
	if src == nil || src.Rows() == 0 {
		return ErrNoData
	}

	var r interface {
		Render(gochart.RendererProvider, io.Writer) error
	}
	switch spec.Kind {
	case chart.Line, chart.Scatter:
		x, _ := src.Column(spec.X.Name())
		y, _ := src.Column(spec.Y.Name())
		series, xa, ya, err := xySeries(src, x, []*analysis.Column{y}, spec.Color, spec.Kind == chart.Scatter)
		if err != nil {
			return err
		}
		ya.Name = y.Name
		r = lineChart(spec.Title, width, height, xa, ya, series)
	case chart.TimeSeries:
		x, _ := src.Column(spec.Date.Name())
		var ys []*analysis.Column
		for _, name := range ValueColumns(spec) {
			c, _ := src.Column(name)
			ys = append(ys, c)
		}
		series, xa, ya, err := xySeries(src, x, ys, spec.Color, false)
		if err != nil {
			return err
		}
		r = lineChart(spec.Title, width, height, xa, ya, series)
	case chart.Bar:
		x, _ := src.Column(spec.X.Name())
		y, _ := src.Column(spec.Y.Name())
		bars := sumBars(x, y)
		if len(bars) == 0 {
			return ErrNoData
		}
		r = barChart(spec.Title, width, height, bars)
	case chart.Aggregation:
		bars := sumBars(src.Columns[0], src.Columns[1])
		if len(bars) == 0 {
			return ErrNoData
		}
		r = barChart(spec.Title, width, height, bars)
	case chart.Histogram:
		x, _ := src.Column(spec.X.Name())
		bars, err := histogram(x, histogramBins)
		if err != nil {
			return err
		}
		r = barChart(spec.Title, width, height, bars)
	case chart.Pie, chart.Donut:
		vals := pieValues(src)
		if len(vals) == 0 {
			return ErrNoData
		}
		if spec.Kind == chart.Donut {
			r = gochart.DonutChart{Title: spec.Title, Width: width, Height: height, Values: vals}
		} else {
			r = gochart.PieChart{Title: spec.Title, Width: width, Height: height, Values: vals}
		}
	default:
		return fmt.Errorf("%w: %s", ErrNoImage, spec.Kind)
	}
	if err := r.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("render %s png: %w", spec.Kind, err)
	}
	return nil
}

func lineChart(title string, width, height int, xa gochart.XAxis, ya gochart.YAxis, series []gochart.Series) *gochart.Chart {
	ch := &gochart.Chart{
		Title:      title,
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      xa,
		YAxis:      ya,
		Series:     series,
	}
	if len(series) > 1 {
		ch.Elements = []gochart.Renderable{gochart.Legend(ch)}
	}
	return ch
}

// xySeries builds one series per (color group, y column). Time x columns
// use time series; numeric x uses continuous series; categorical x is
// plotted against its row position with labelled ticks. Axes whose values
// span no range are padded so a single point can still be drawn.
func xySeries(t *analysis.Table, x *analysis.Column, ys []*analysis.Column, color analysis.ColumnRef, points bool) ([]gochart.Series, gochart.XAxis, gochart.YAxis, error) {
	xa := gochart.XAxis{Name: x.Name}
	var ya gochart.YAxis
	xb, yb := newBounds(), newBounds()
	var ticks []gochart.Tick
	var series []gochart.Series
	n := 0
	for _, g := range groups(t, color) {
		for _, y := range ys {
			name := traceName(g.name, y.Name, len(ys))
			col := palette[n%len(palette)]
			n++
			style := lineStyle(col)
			if points {
				style = pointStyle(col)
			}
			switch x.Storage {
			case analysis.StorageTime:
				s := gochart.TimeSeries{Name: name, Style: style}
				for _, i := range g.rows {
					xt, okX := x.Time(i)
					yv, okY := y.Float(i)
					if okX && okY && !math.IsInf(yv, 0) {
						s.XValues = append(s.XValues, xt)
						s.YValues = append(s.YValues, yv)
						xb.add(float64(xt.UnixNano()))
						yb.add(yv)
					}
				}
				if len(s.XValues) > 0 {
					series = append(series, s)
				}
				xa.ValueFormatter = gochart.TimeDateValueFormatter
			default:
				s := gochart.ContinuousSeries{Name: name, Style: style}
				for _, i := range g.rows {
					yv, okY := y.Float(i)
					if !okY || math.IsInf(yv, 0) {
						continue
					}
					xv, okX := x.Float(i)
					if x.Storage != analysis.StorageNumber {
						xv, okX = float64(i), !x.IsNull(i)
						if okX && len(ticks) < 30 {
							ticks = append(ticks, gochart.Tick{Value: xv, Label: x.String(i)})
						}
					}
					if okX && !math.IsInf(xv, 0) {
						s.XValues = append(s.XValues, xv)
						s.YValues = append(s.YValues, yv)
						xb.add(xv)
						yb.add(yv)
					}
				}
				if len(s.XValues) > 0 {
					series = append(series, s)
				}
			}
		}
	}
	if len(series) == 0 {
		return nil, xa, ya, ErrNoData
	}
	if len(ticks) > 1 {
		xa.Ticks = ticks
	}
	xPad := 1.0
	if x.Storage == analysis.StorageTime {
		xPad = float64(24 * time.Hour)
	}
	if xb.flat() {
		xa.Range = xb.padded(xPad)
	}
	if yb.flat() {
		ya.Range = yb.padded(1)
	}
	return series, xa, ya, nil
}

// bounds tracks the extent of plotted values on one axis.
type bounds struct{ lo, hi float64 }

func newBounds() *bounds { return &bounds{lo: math.Inf(1), hi: math.Inf(-1)} }

func (b *bounds) add(v float64) {
	b.lo, b.hi = math.Min(b.lo, v), math.Max(b.hi, v)
}

// flat reports whether every value seen was the same.
func (b *bounds) flat() bool { return b.lo == b.hi }

func (b *bounds) padded(pad float64) *gochart.ContinuousRange {
	return &gochart.ContinuousRange{Min: b.lo - pad, Max: b.hi + pad}
}

func barChart(title string, width, height int, bars []gochart.Value) gochart.BarChart {
	lo, hi := 0.0, 0.0
	for _, b := range bars {
		lo = math.Min(lo, b.Value)
		hi = math.Max(hi, b.Value)
	}
	if hi == lo {
		hi = lo + 1
	}
	barWidth := 40
	if bw := (width - 100) / len(bars) * 2 / 3; bw < barWidth {
		barWidth = max(bw, 2)
	}
	return gochart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		Background: gochart.Style{Padding: gochart.Box{Top: 40}},
		YAxis:      gochart.YAxis{Range: &gochart.ContinuousRange{Min: lo, Max: hi}},
		Bars:       bars,
	}
}

// sumBars totals y per distinct x label in first-seen order.
func sumBars(x, y *analysis.Column) []gochart.Value {
	var bars []gochart.Value
	index := map[string]int{}
	for i := 0; i < x.Len(); i++ {
		v, ok := y.Float(i)
		if x.IsNull(i) || !ok || math.IsInf(v, 0) {
			continue
		}
		label := x.String(i)
		j, seen := index[label]
		if !seen {
			j = len(bars)
			index[label] = j
			bars = append(bars, gochart.Value{Label: label})
		}
		bars[j].Value += v
	}
	return bars
}

// histogram counts numeric values into equal-width bins, or counts each
// label for non-numeric columns.
func histogram(c *analysis.Column, bins int) ([]gochart.Value, error) {
	if c.Storage != analysis.StorageNumber {
		var out []gochart.Value
		index := map[string]int{}
		for i := 0; i < c.Len(); i++ {
			if c.IsNull(i) {
				continue
			}
			label := c.String(i)
			j, seen := index[label]
			if !seen {
				j = len(out)
				index[label] = j
				out = append(out, gochart.Value{Label: label})
			}
			out[j].Value++
		}
		if len(out) == 0 {
			return nil, ErrNoData
		}
		return out, nil
	}

	var vals []float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Float(i); ok && !math.IsInf(v, 0) {
			vals = append(vals, v)
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if len(vals) == 0 {
		return nil, ErrNoData
	}
	if hi == lo {
		return []gochart.Value{{Label: binLabel(lo), Value: float64(len(vals))}}, nil
	}
	width := (hi - lo) / float64(bins)
	out := make([]gochart.Value, bins)
	for b := range out {
		out[b].Label = binLabel(lo + float64(b)*width)
	}
	for _, v := range vals {
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		out[b].Value++
	}
	return out, nil
}

func binLabel(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

// pieValues converts a category/total table into pie values, skipping
// non-positive totals.
func pieValues(t *analysis.Table) []gochart.Value {
	labels, totals := t.Columns[0], t.Columns[1]
	var out []gochart.Value
	for i := 0; i < t.Rows(); i++ {
		if v, ok := totals.Float(i); ok && v > 0 && !math.IsInf(v, 0) {
			out = append(out, gochart.Value{Label: labels.String(i), Value: v})
		}
	}
	return out
}
