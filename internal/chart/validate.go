package chart

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// Spec is a validated chart request with resolved columns and the rows to
// plot. Derived holds the aggregated, resampled or sliced table for kinds
// that need one; exporters should use ExportTable.
type Spec struct {
	Kind     Kind
	Title    string
	X        analysis.ColumnRef
	Y        analysis.ColumnRef
	Color    analysis.ColumnRef
	Category analysis.ColumnRef
	Value    analysis.ColumnRef
	Date     analysis.ColumnRef
	GroupBy  analysis.ColumnRef
	// Columns lists the numeric columns of pair_plot and correlation_heatmap,
	// or the value columns of aggregation and resampled time_series.
	Columns  []string
	Resample Frequency
	AggFunc  AggFunc
	// FilterApplied is true when the date range actually restricted rows.
	FilterApplied bool

	Data    *analysis.Table
	Derived *analysis.Table
	Corr    *analysis.CorrMatrix
}

// ExportTable returns the table a CSV or spreadsheet export should contain.
func (s *Spec) ExportTable() *analysis.Table {
	if s.Derived != nil {
		return s.Derived
	}
	return s.Data
}

// ColumnsUsed lists every column the chart reads, without duplicates.
func (s *Spec) ColumnsUsed() []string {
	var names []string
	for _, r := range []analysis.ColumnRef{s.X, s.Y, s.Color, s.Category, s.Value, s.Date, s.GroupBy} {
		if r.IsSet() {
			names = append(names, r.Name())
		}
	}
	return nonBlank(append(names, s.Columns...))
}

// Validate checks req against the dataset and resolves it into a Spec.
// Checks run in order: chart type, column existence, required roles, enum
// values, then kind-specific rules. The date range filter is applied before
// any aggregation and is ignored when the chosen date column is not datetime.
func Validate(req Request, t *analysis.Table, kinds analysis.ColumnKinds) (*Spec, error) {
	kind, err := ParseKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	for _, nc := range req.namedColumns() {
		if _, ok := t.Column(nc[1]); !ok {
			return nil, &ColumnNotFoundError{Field: nc[0], Column: nc[1]}
		}
	}

	r := rules[kind]
	for _, ro := range r.required {
		if !req.isSet(ro) {
			return nil, &MissingRequiredColumnError{Kind: kind, Field: string(ro)}
		}
	}
	if len(r.oneOf) > 0 {
		found := false
		for _, ro := range r.oneOf {
			found = found || req.isSet(ro)
		}
		if !found {
			return nil, &MissingRequiredColumnError{Kind: kind, Field: oneOfName(r.oneOf)}
		}
	}

	spec := &Spec{Kind: kind, Title: strings.TrimSpace(req.Title), Resample: FreqNone}
	if spec.Title == "" {
		spec.Title = defaultTitle(kind)
	}
	pick := func(ro role, ref analysis.ColumnRef) analysis.ColumnRef {
		if r.uses(ro) {
			return ref
		}
		return analysis.ColumnRef{}
	}
	spec.X = pick(roleX, req.X)
	spec.Y = pick(roleY, req.Y)
	spec.Color = pick(roleColor, req.Color)
	spec.Category = pick(roleCategory, req.Category)
	spec.Value = pick(roleValue, req.Value)
	spec.Date = pick(roleDate, req.Date)
	spec.GroupBy = pick(roleGroupBy, req.GroupBy)

	switch kind {
	case TimeSeries:
		if spec.Resample, err = ParseFrequency(string(req.Resample)); err != nil {
			return nil, err
		}
	case Aggregation:
		if spec.AggFunc, err = ParseAggFunc(string(req.AggFunc)); err != nil {
			return nil, err
		}
	}

	spec.Data, spec.FilterApplied = filterDates(req, t, kinds)

	switch kind {
	case Box:
		if !spec.Y.IsSet() {
			spec.X, spec.Y = analysis.ColumnRef{}, spec.X
		}
	case Heatmap:
		if err := wantKind(kinds, "y_axis", spec.Y, analysis.KindNumeric); err != nil {
			return nil, err
		}
	case Pie, Donut:
		if spec.Value.IsSet() {
			if err := wantKind(kinds, "value", spec.Value, analysis.KindNumeric); err != nil {
				return nil, err
			}
		}
		spec.Derived, err = pieSlices(spec.Data, spec.Category.Name(), spec.Value)
	case TimeSeries:
		if err := wantKind(kinds, "date_column", spec.Date, analysis.KindDateLike); err != nil {
			return nil, err
		}
		err = resolveTimeSeries(spec, kinds)
	case PairPlot, CorrelationHeatmap:
		spec.Columns = numericColumns(req.Columns, kinds)
		if len(spec.Columns) < r.minNumeric {
			return nil, &InsufficientColumnsError{Kind: kind, Need: r.minNumeric, Got: len(spec.Columns)}
		}
		if kind == CorrelationHeatmap {
			spec.Corr = analysis.Correlate(spec.Data, spec.Columns)
			spec.Derived, err = corrTable(spec.Corr)
		}
	case Aggregation:
		spec.Columns = nonBlank(req.AggCols)
		if spec.AggFunc != AggCount {
			for _, c := range spec.Columns {
				if err := wantKind(kinds, "agg_columns", analysis.Ref(c), analysis.KindNumeric); err != nil {
					return nil, err
				}
			}
		}
		if err := checkAggOutputs(spec.GroupBy.Name(), spec.Columns, spec.AggFunc); err != nil {
			return nil, err
		}
		spec.Derived, err = aggregate(spec.Data, spec.GroupBy.Name(), spec.Columns, spec.AggFunc)
	}
	if err != nil {
		return nil, fmt.Errorf("derive %s data: %w", kind, err)
	}
	return spec, nil
}

func defaultTitle(k Kind) string {
	words := strings.Split(string(k), "_")
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ") + " Chart"
}

func wantKind(kinds analysis.ColumnKinds, field string, ref analysis.ColumnRef, want analysis.Kind) error {
	if got := kinds.Of(ref.Name()); got != want {
		return &ColumnKindError{Field: field, Column: ref.Name(), Want: want, Got: got}
	}
	return nil
}

// numericColumns keeps the numeric names from requested, or every numeric
// column when none were requested.
func numericColumns(requested []string, kinds analysis.ColumnKinds) []string {
	requested = nonBlank(requested)
	if len(requested) == 0 {
		return kinds.Names(analysis.KindNumeric)
	}
	var out []string
	for _, n := range requested {
		if kinds.Of(n) == analysis.KindNumeric {
			out = append(out, n)
		}
	}
	return out
}

// filterDates restricts t to the requested date range. The chosen column is
// date_column, falling back to x_axis.
func filterDates(req Request, t *analysis.Table, kinds analysis.ColumnKinds) (*analysis.Table, bool) {
	if req.Range == nil {
		return t, false
	}
	ref := req.Date
	if !ref.IsSet() {
		ref = req.X
	}
	if !ref.IsSet() || kinds.Of(ref.Name()) != analysis.KindDateLike {
		return t, false
	}
	col, ok := t.Column(ref.Name())
	if !ok {
		return t, false
	}
	rows := make([]int, 0, t.Rows())
	for i := 0; i < t.Rows(); i++ {
		if ts, ok := col.Time(i); ok && req.Range.Contains(ts) {
			rows = append(rows, i)
		}
	}
	return t.Select(rows), true
}
