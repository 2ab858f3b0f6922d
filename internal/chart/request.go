package chart

import (
	"strings"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// Kind is one of the fixed chart types.
type Kind string

const (
	Line               Kind = "line"
	Bar                Kind = "bar"
	Pie                Kind = "pie"
	Donut              Kind = "donut"
	Histogram          Kind = "histogram"
	Box                Kind = "box"
	Scatter            Kind = "scatter"
	Heatmap            Kind = "heatmap"
	TimeSeries         Kind = "time_series"
	PairPlot           Kind = "pair_plot"
	Aggregation        Kind = "aggregation"
	CorrelationHeatmap Kind = "correlation_heatmap"
)

// Kinds lists every chart type in display order.
var Kinds = []Kind{Line, Bar, Pie, Donut, Histogram, Box, Scatter, Heatmap, TimeSeries, PairPlot, Aggregation, CorrelationHeatmap}

// Frequency is a time-series resample bucket.
type Frequency string

const (
	FreqNone    Frequency = "none"
	FreqDay     Frequency = "day"
	FreqWeek    Frequency = "week"
	FreqMonth   Frequency = "month"
	FreqQuarter Frequency = "quarter"
	FreqYear    Frequency = "year"
)

var frequencies = []Frequency{FreqNone, FreqDay, FreqWeek, FreqMonth, FreqQuarter, FreqYear}

// AggFunc is an aggregate function for the aggregation chart.
type AggFunc string

const (
	AggMean  AggFunc = "mean"
	AggSum   AggFunc = "sum"
	AggCount AggFunc = "count"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

var aggFuncs = []AggFunc{AggMean, AggSum, AggCount, AggMin, AggMax}

// DateRange bounds a date filter. Both ends are inclusive; a zero end is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Request is a user chart selection before validation.
type Request struct {
	Kind     Kind               `json:"chart_type"`
	Title    string             `json:"title,omitempty"`
	X        analysis.ColumnRef `json:"x_axis"`
	Y        analysis.ColumnRef `json:"y_axis"`
	Color    analysis.ColumnRef `json:"color"`
	Category analysis.ColumnRef `json:"category"`
	Value    analysis.ColumnRef `json:"value"`
	Date     analysis.ColumnRef `json:"date_column"`
	Range    *DateRange         `json:"-"`
	Resample Frequency          `json:"resample,omitempty"`
	GroupBy  analysis.ColumnRef `json:"group_by"`
	AggCols  []string           `json:"agg_columns,omitempty"`
	AggFunc  AggFunc            `json:"agg_func,omitempty"`
	Columns  []string           `json:"columns,omitempty"`
}

// namedColumns lists every column reference in the request with its field name.
func (r Request) namedColumns() [][2]string {
	var out [][2]string
	for _, ref := range []struct {
		field string
		ref   analysis.ColumnRef
	}{
		{"x_axis", r.X}, {"y_axis", r.Y}, {"color", r.Color}, {"category", r.Category},
		{"value", r.Value}, {"date_column", r.Date}, {"group_by", r.GroupBy},
	} {
		if ref.ref.IsSet() {
			out = append(out, [2]string{ref.field, ref.ref.Name()})
		}
	}
	for _, c := range r.AggCols {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, [2]string{"agg_columns", c})
		}
	}
	for _, c := range r.Columns {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, [2]string{"columns", c})
		}
	}
	return out
}

func enumStrings[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

func parseEnum[T ~string](field, raw string, allowed []T, fallback T) (T, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return fallback, nil
	}
	for _, a := range allowed {
		if string(a) == v {
			return a, nil
		}
	}
	return "", &InvalidEnumValueError{Field: field, Value: raw, Allowed: enumStrings(allowed)}
}

// ParseKind resolves a chart type name.
func ParseKind(s string) (Kind, error) {
	if strings.TrimSpace(s) == "" {
		return "", &InvalidEnumValueError{Field: "chart_type", Value: s, Allowed: enumStrings(Kinds)}
	}
	return parseEnum("chart_type", s, Kinds, "")
}

// ParseFrequency resolves a resample frequency; blank means none.
func ParseFrequency(s string) (Frequency, error) {
	return parseEnum("resample", s, frequencies, FreqNone)
}

// ParseAggFunc resolves an aggregate function; blank means mean.
func ParseAggFunc(s string) (AggFunc, error) {
	return parseEnum("agg_func", s, aggFuncs, AggMean)
}
