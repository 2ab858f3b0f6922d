package chart

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// pieSlices sums value per category in first-seen order, or counts rows when
// value is unset. Null categories are dropped.
func pieSlices(t *analysis.Table, category string, value analysis.ColumnRef) (*analysis.Table, error) {
	cat, _ := t.Column(category)
	var val *analysis.Column
	valueName := "count"
	if value.IsSet() {
		val, _ = t.Column(value.Name())
		valueName = value.Name()
	}
	if valueName == category {
		valueName += "_total"
	}

	var labels []string
	totals := map[string]float64{}
	for i := 0; i < t.Rows(); i++ {
		if cat.IsNull(i) {
			continue
		}
		key := cat.String(i)
		if _, seen := totals[key]; !seen {
			labels = append(labels, key)
			totals[key] = 0
		}
		if val == nil {
			totals[key]++
		} else if v, ok := val.Float(i); ok {
			totals[key] += v
		}
	}
	sums := make([]float64, len(labels))
	for i, l := range labels {
		sums[i] = totals[l]
	}
	labelCol := analysis.NewTextColumn(category, labels)
	labelCol.Kind = analysis.KindCategorical
	sumCol := analysis.NewNumberColumn(valueName, sums)
	sumCol.Kind = analysis.KindNumeric
	return analysis.NewTable(t.Name, labelCol, sumCol)
}

// aggregate groups t by groupBy and applies fn to each value column. Groups
// are sorted by key and rows with a null key are dropped.
func aggregate(t *analysis.Table, groupBy string, cols []string, fn AggFunc) (*analysis.Table, error) {
	key, _ := t.Column(groupBy)
	groups := map[string][]int{}
	var reps []int
	for i := 0; i < t.Rows(); i++ {
		if key.IsNull(i) {
			continue
		}
		k := key.String(i)
		if _, ok := groups[k]; !ok {
			reps = append(reps, i)
		}
		groups[k] = append(groups[k], i)
	}
	sort.SliceStable(reps, func(a, b int) bool { return lessCell(key, reps[a], reps[b]) })

	keyTable := t.Select(reps)
	keyCol, _ := keyTable.Column(groupBy)
	out := []*analysis.Column{keyCol}
	for _, name := range cols {
		col, _ := t.Column(name)
		vals := make([]float64, len(reps))
		for g, rep := range reps {
			vals[g] = reduce(col, groups[key.String(rep)], fn)
		}
		c := analysis.NewNumberColumn(aggOutputName(name, groupBy, fn), vals)
		c.Kind = analysis.KindNumeric
		out = append(out, c)
	}
	return analysis.NewTable(t.Name, out...)
}

// aggOutputName names the aggregated column for name. Aggregating the
// group key itself gets a _<func> suffix.
func aggOutputName(name, groupBy string, fn AggFunc) string {
	if name == groupBy {
		return fmt.Sprintf("%s_%s", name, fn)
	}
	return name
}

// checkAggOutputs rejects agg_columns whose output names collide with the
// group key or with each other.
func checkAggOutputs(groupBy string, cols []string, fn AggFunc) error {
	owner := map[string]string{groupBy: "group_by"}
	for _, name := range cols {
		out := aggOutputName(name, groupBy, fn)
		if prev, ok := owner[out]; ok {
			return &ColumnConflictError{Field: "agg_columns", Column: out, With: prev}
		}
		owner[out] = fmt.Sprintf("agg_columns %q", name)
	}
	return nil
}

// reduce applies fn to the non-null values of c at rows. Empty groups give
// NaN for mean, min and max, and 0 for sum and count.
func reduce(c *analysis.Column, rows []int, fn AggFunc) float64 {
	if fn == AggCount {
		n := 0
		for _, i := range rows {
			if !c.IsNull(i) {
				n++
			}
		}
		return float64(n)
	}
	var sum float64
	n := 0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range rows {
		v, ok := c.Float(i)
		if !ok {
			continue
		}
		n++
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	switch {
	case fn == AggSum:
		return sum
	case n == 0:
		return math.NaN()
	case fn == AggMin:
		return lo
	case fn == AggMax:
		return hi
	default:
		return sum / float64(n)
	}
}

// lessCell orders two non-null cells of c by their native values.
func lessCell(c *analysis.Column, a, b int) bool {
	switch c.Storage {
	case analysis.StorageNumber:
		x, _ := c.Float(a)
		y, _ := c.Float(b)
		return x < y
	case analysis.StorageTime:
		x, _ := c.Time(a)
		y, _ := c.Time(b)
		return x.Before(y)
	default:
		return c.String(a) < c.String(b)
	}
}

// resolveTimeSeries drops rows without a date, sorts by date and, when a
// resample frequency is set, averages the value columns per bucket.
func resolveTimeSeries(spec *Spec, kinds analysis.ColumnKinds) error {
	date, _ := spec.Data.Column(spec.Date.Name())
	rows := make([]int, 0, spec.Data.Rows())
	for i := 0; i < spec.Data.Rows(); i++ {
		if !date.IsNull(i) {
			rows = append(rows, i)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool { return lessCell(date, rows[a], rows[b]) })
	spec.Data = spec.Data.Select(rows)
	if spec.Resample == FreqNone {
		return nil
	}

	if spec.Y.IsSet() {
		if err := wantKind(kinds, "y_axis", spec.Y, analysis.KindNumeric); err != nil {
			return err
		}
		spec.Columns = []string{spec.Y.Name()}
	} else {
		for _, n := range kinds.Names(analysis.KindNumeric) {
			if n != spec.Date.Name() {
				spec.Columns = append(spec.Columns, n)
			}
		}
	}
	if spec.Color.IsSet() {
		switch color := spec.Color.Name(); {
		case color == spec.Date.Name():
			return &ColumnConflictError{Field: "color", Column: color, With: "date_column"}
		case spec.Y.IsSet() && color == spec.Y.Name():
			return &ColumnConflictError{Field: "color", Column: color, With: "y_axis"}
		default:
			spec.Columns = without(spec.Columns, color)
		}
	}
	if len(spec.Columns) == 0 {
		return &MissingRequiredColumnError{Kind: TimeSeries, Field: "y_axis", Reason: "resampling needs a numeric column"}
	}

	derived, err := resample(spec.Data, spec.Date.Name(), spec.Color, spec.Columns, spec.Resample)
	if err != nil {
		return err
	}
	spec.Derived = derived
	return nil
}

type bucketKey struct {
	start time.Time
	group string
}

func without(names []string, drop string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}

// resample averages cols per (period, color group). cols must not include
// the date or color column. Empty periods are not
// emitted. t must be sorted by date with no null dates.
func resample(t *analysis.Table, date string, color analysis.ColumnRef, cols []string, freq Frequency) (*analysis.Table, error) {
	dateCol, _ := t.Column(date)
	var colorCol *analysis.Column
	if color.IsSet() {
		colorCol, _ = t.Column(color.Name())
	}

	var keys []bucketKey
	members := map[bucketKey][]int{}
	for i := 0; i < t.Rows(); i++ {
		ts, _ := dateCol.Time(i)
		k := bucketKey{start: BucketStart(ts, freq)}
		if colorCol != nil {
			k.group = colorCol.String(i)
		}
		if _, ok := members[k]; !ok {
			keys = append(keys, k)
		}
		members[k] = append(members[k], i)
	}
	sort.SliceStable(keys, func(a, b int) bool {
		if !keys[a].start.Equal(keys[b].start) {
			return keys[a].start.Before(keys[b].start)
		}
		return keys[a].group < keys[b].group
	})

	starts := make([]time.Time, len(keys))
	groups := make([]string, len(keys))
	for i, k := range keys {
		starts[i] = k.start
		groups[i] = k.group
	}
	startCol := analysis.NewTimeColumn(date, starts)
	startCol.Kind = analysis.KindDateLike
	out := []*analysis.Column{startCol}
	if colorCol != nil {
		g := analysis.NewTextColumn(color.Name(), groups)
		g.Kind = analysis.KindCategorical
		out = append(out, g)
	}
	for _, name := range cols {
		col, _ := t.Column(name)
		vals := make([]float64, len(keys))
		for i, k := range keys {
			vals[i] = reduce(col, members[k], AggMean)
		}
		c := analysis.NewNumberColumn(name, vals)
		c.Kind = analysis.KindNumeric
		out = append(out, c)
	}
	return analysis.NewTable(t.Name, out...)
}

// BucketStart truncates t to the start of its resample period. Weeks start
// on Monday.
func BucketStart(t time.Time, freq Frequency) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch freq {
	case FreqWeek:
		back := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, loc)
	case FreqMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case FreqQuarter:
		return time.Date(y, ((m-1)/3)*3+1, 1, 0, 0, 0, 0, loc)
	case FreqYear:
		return time.Date(y, 1, 1, 0, 0, 0, 0, loc)
	case FreqDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	default:
		return t
	}
}

// BucketLabel formats a period start for display: 2024-01-15 for days and
// weeks, 2024-01 for months, 2024-Q1 for quarters and 2024 for years.
func BucketLabel(start time.Time, freq Frequency) string {
	switch freq {
	case FreqMonth:
		return start.Format("2006-01")
	case FreqQuarter:
		return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
	case FreqYear:
		return start.Format("2006")
	default:
		return start.Format("2006-01-02")
	}
}

// corrTable lays a correlation matrix out as rows: a "column" label column
// followed by one numeric column per variable.
func corrTable(m *analysis.CorrMatrix) (*analysis.Table, error) {
	labels := analysis.NewTextColumn("column", m.Columns)
	labels.Kind = analysis.KindCategorical
	cols := []*analysis.Column{labels}
	for j, name := range m.Columns {
		vals := make([]float64, len(m.Columns))
		for i := range m.Columns {
			vals[i] = m.Values[i][j]
		}
		c := analysis.NewNumberColumn(name, vals)
		c.Kind = analysis.KindNumeric
		cols = append(cols, c)
	}
	return analysis.NewTable("correlation", cols...)
}
