package chart

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

func load(t *testing.T, csv string) (*analysis.Table, analysis.ColumnKinds) {
	t.Helper()
	tbl, err := analysis.LoadCSV(strings.NewReader(csv), "test", analysis.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	return tbl, analysis.Classify(tbl, analysis.DefaultOptions())
}

const people = `name,age,income,city,joined
ann,31,52000,Oslo,2024-01-03
bob,45,61000,Bergen,2024-02-11
cid,28,48000,Oslo,2024-03-20
dee,52,75000,Tromso,2024-04-02
`

func TestValidateUnknownKind(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: "radar", X: analysis.Ref("age")}, tbl, kinds)
	var enum *InvalidEnumValueError
	if !errors.As(err, &enum) || enum.Field != "chart_type" {
		t.Fatalf("want chart_type enum error, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("IsValidation false for %v", err)
	}
}

func TestValidateColumnNotFound(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: Line, X: analysis.Ref("age"), Y: analysis.Ref("salary")}, tbl, kinds)
	var nf *ColumnNotFoundError
	if !errors.As(err, &nf) || nf.Column != "salary" || nf.Field != "y_axis" {
		t.Fatalf("want not-found for salary, got %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	tbl, kinds := load(t, people)
	cases := []Request{
		{Kind: Line, X: analysis.Ref("age")},
		{Kind: Scatter, Y: analysis.Ref("age")},
		{Kind: Pie, Value: analysis.Ref("income")},
		{Kind: Box},
		{Kind: TimeSeries, Y: analysis.Ref("income")},
		{Kind: Aggregation, GroupBy: analysis.Ref("city")},
	}
	for _, req := range cases {
		_, err := Validate(req, tbl, kinds)
		var miss *MissingRequiredColumnError
		if !errors.As(err, &miss) {
			t.Errorf("%s: want missing column error, got %v", req.Kind, err)
		}
	}
}

func TestHistogramIgnoresY(t *testing.T) {
	tbl, kinds := load(t, people)
	spec, err := Validate(Request{Kind: Histogram, X: analysis.Ref("age"), Y: analysis.Ref("income")}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.Y.IsSet() {
		t.Fatalf("histogram kept y axis %s", spec.Y)
	}
	if spec.X.Name() != "age" {
		t.Fatalf("x = %s", spec.X)
	}
}

func TestHistogramStillChecksIgnoredColumn(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: Histogram, X: analysis.Ref("age"), Y: analysis.Ref("nope")}, tbl, kinds)
	var nf *ColumnNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestBoxSingleAxisBecomesValue(t *testing.T) {
	tbl, kinds := load(t, people)
	spec, err := Validate(Request{Kind: Box, X: analysis.Ref("income")}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.X.IsSet() || spec.Y.Name() != "income" {
		t.Fatalf("box axes x=%s y=%s", spec.X, spec.Y)
	}
}

func TestPairPlotNeedsTwoNumeric(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: PairPlot, Columns: []string{"age"}}, tbl, kinds)
	var few *InsufficientColumnsError
	if !errors.As(err, &few) || few.Got != 1 || few.Need != 2 {
		t.Fatalf("want insufficient columns, got %v", err)
	}
	// Non-numeric names do not count.
	_, err = Validate(Request{Kind: PairPlot, Columns: []string{"age", "city"}}, tbl, kinds)
	if !errors.As(err, &few) {
		t.Fatalf("want insufficient columns with city, got %v", err)
	}
	spec, err := Validate(Request{Kind: PairPlot, Columns: []string{"age", "income"}}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(spec.Columns) != 2 {
		t.Fatalf("columns = %v", spec.Columns)
	}
}

func TestCorrelationDefaultsToAllNumeric(t *testing.T) {
	tbl, kinds := load(t, people)
	spec, err := Validate(Request{Kind: CorrelationHeatmap}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if strings.Join(spec.Columns, ",") != "age,income" {
		t.Fatalf("columns = %v", spec.Columns)
	}
	if spec.Corr == nil || spec.Corr.Values[0][1] < 0.9 {
		t.Fatalf("expected strong age/income correlation, got %+v", spec.Corr)
	}
	if spec.Derived.Rows() != 2 || spec.Derived.Cols() != 3 {
		t.Fatalf("corr table %dx%d", spec.Derived.Rows(), spec.Derived.Cols())
	}
}

func TestTimeSeriesMonthlyResample(t *testing.T) {
	tbl, kinds := load(t, "date,sales\n2024-01-01,10\n2024-01-02,20\n2024-02-01,5\n")
	if kinds.Of("date") != analysis.KindDateLike {
		t.Fatalf("date kind = %s", kinds.Of("date"))
	}
	spec, err := Validate(Request{Kind: TimeSeries, Date: analysis.Ref("date"), Y: analysis.Ref("sales"), Resample: FreqMonth}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	d := spec.Derived
	if d == nil || d.Rows() != 2 {
		t.Fatalf("want 2 buckets, got %v", d)
	}
	dates, _ := d.Column("date")
	sales, _ := d.Column("sales")
	want := map[string]float64{"2024-01": 15, "2024-02": 5}
	for i := 0; i < d.Rows(); i++ {
		ts, _ := dates.Time(i)
		v, _ := sales.Float(i)
		label := BucketLabel(ts, FreqMonth)
		if want[label] != v {
			t.Fatalf("bucket %s = %v, want %v", label, v, want[label])
		}
	}
	if spec.ExportTable() != d {
		t.Fatalf("export table should be the resampled table")
	}
}

func TestTimeSeriesRequiresDatetime(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: TimeSeries, Date: analysis.Ref("city"), Y: analysis.Ref("age")}, tbl, kinds)
	var ke *ColumnKindError
	if !errors.As(err, &ke) || ke.Want != analysis.KindDateLike {
		t.Fatalf("want kind error, got %v", err)
	}
}

func TestTimeSeriesSortsAndDropsNullDates(t *testing.T) {
	tbl, kinds := load(t, "when,v\n2024-03-01,3\n,9\n2024-01-01,1\n2024-02-01,2\n")
	spec, err := Validate(Request{Kind: TimeSeries, Date: analysis.Ref("when"), Y: analysis.Ref("v")}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.Data.Rows() != 3 || spec.Derived != nil {
		t.Fatalf("rows=%d derived=%v", spec.Data.Rows(), spec.Derived)
	}
	v, _ := spec.Data.Column("v")
	for i, want := range []float64{1, 2, 3} {
		if got, _ := v.Float(i); got != want {
			t.Fatalf("row %d = %v, want %v", i, got, want)
		}
	}
}

func TestInvalidResampleAndAggFunc(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: TimeSeries, Date: analysis.Ref("joined"), Resample: "hourly"}, tbl, kinds)
	var enum *InvalidEnumValueError
	if !errors.As(err, &enum) || enum.Field != "resample" {
		t.Fatalf("want resample enum error, got %v", err)
	}
	_, err = Validate(Request{Kind: Aggregation, GroupBy: analysis.Ref("city"), AggCols: []string{"age"}, AggFunc: "median"}, tbl, kinds)
	if !errors.As(err, &enum) || enum.Field != "agg_func" {
		t.Fatalf("want agg_func enum error, got %v", err)
	}
	// resample is only read by time_series
	if _, err := Validate(Request{Kind: Line, X: analysis.Ref("age"), Y: analysis.Ref("income"), Resample: "hourly"}, tbl, kinds); err != nil {
		t.Fatalf("line with stray resample: %v", err)
	}
}

func TestAggregationMean(t *testing.T) {
	tbl, kinds := load(t, "g,v\nB,4\nA,1\nB,6\nA,3\n")
	spec, err := Validate(Request{Kind: Aggregation, GroupBy: analysis.Ref("g"), AggCols: []string{"v"}}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.AggFunc != AggMean {
		t.Fatalf("default agg func = %s", spec.AggFunc)
	}
	d := spec.Derived
	g, _ := d.Column("g")
	v, _ := d.Column("v")
	got := map[string]float64{}
	for i := 0; i < d.Rows(); i++ {
		got[g.String(i)], _ = v.Float(i)
	}
	if d.Rows() != 2 || got["A"] != 2 || got["B"] != 5 {
		t.Fatalf("aggregates = %v", got)
	}
	if g.String(0) != "A" {
		t.Fatalf("groups not sorted: first = %s", g.String(0))
	}
}

func TestAggregationCountAcceptsText(t *testing.T) {
	tbl, kinds := load(t, people)
	spec, err := Validate(Request{Kind: Aggregation, GroupBy: analysis.Ref("city"), AggCols: []string{"name"}, AggFunc: "count"}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.Derived.Rows() != 3 {
		t.Fatalf("want 3 cities, got %d", spec.Derived.Rows())
	}
	_, err = Validate(Request{Kind: Aggregation, GroupBy: analysis.Ref("city"), AggCols: []string{"name"}, AggFunc: "sum"}, tbl, kinds)
	var ke *ColumnKindError
	if !errors.As(err, &ke) {
		t.Fatalf("sum over text: want kind error, got %v", err)
	}
}

func TestPieCountsWithoutValue(t *testing.T) {
	tbl, kinds := load(t, people)
	spec, err := Validate(Request{Kind: Donut, Category: analysis.Ref("city")}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	d := spec.Derived
	city, _ := d.Column("city")
	count, _ := d.Column("count")
	if d.Rows() != 3 || city.String(0) != "Oslo" {
		t.Fatalf("slices = %v", d.Records())
	}
	if n, _ := count.Float(0); n != 2 {
		t.Fatalf("Oslo count = %v", n)
	}
}

func TestDateRangeFilter(t *testing.T) {
	tbl, kinds := load(t, people)
	rng := &DateRange{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)}
	spec, err := Validate(Request{Kind: Line, X: analysis.Ref("joined"), Y: analysis.Ref("income"), Range: rng}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !spec.FilterApplied || spec.Data.Rows() != 2 {
		t.Fatalf("filter applied=%v rows=%d", spec.FilterApplied, spec.Data.Rows())
	}

	// Non-datetime x: range ignored.
	spec, err = Validate(Request{Kind: Line, X: analysis.Ref("age"), Y: analysis.Ref("income"), Range: rng}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.FilterApplied || spec.Data.Rows() != tbl.Rows() {
		t.Fatalf("range should be ignored for numeric x")
	}
}

func TestDefaultTitleAndColumnsUsed(t *testing.T) {
	tbl, kinds := load(t, people)
	spec, err := Validate(Request{Kind: Scatter, X: analysis.Ref("age"), Y: analysis.Ref("income"), Color: analysis.Ref("city"), Category: analysis.Ref("name")}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.Title != "Scatter Chart" {
		t.Fatalf("title = %q", spec.Title)
	}
	if got := strings.Join(spec.ColumnsUsed(), ","); got != "age,income,city" {
		t.Fatalf("columns used = %s", got)
	}
}

func TestBucketStart(t *testing.T) {
	ts := time.Date(2024, 5, 16, 13, 4, 0, 0, time.UTC) // Thursday
	cases := map[Frequency]string{
		FreqDay:     "2024-05-16",
		FreqWeek:    "2024-05-13",
		FreqMonth:   "2024-05",
		FreqQuarter: "2024-Q2",
		FreqYear:    "2024",
	}
	for f, want := range cases {
		if got := BucketLabel(BucketStart(ts, f), f); got != want {
			t.Errorf("%s: got %s want %s", f, got, want)
		}
	}
}

func TestResampleColorConflicts(t *testing.T) {
	tbl, kinds := load(t, "date,sales,units\n2024-01-01,10,1\n2024-01-02,20,2\n2024-02-01,5,3\n")
	cases := []struct {
		req  Request
		with string
	}{
		{Request{Kind: TimeSeries, Date: analysis.Ref("date"), Color: analysis.Ref("date"), Resample: FreqMonth}, "date_column"},
		{Request{Kind: TimeSeries, Date: analysis.Ref("date"), Y: analysis.Ref("sales"), Color: analysis.Ref("sales"), Resample: FreqMonth}, "y_axis"},
	}
	for _, c := range cases {
		_, err := Validate(c.req, tbl, kinds)
		var ce *ColumnConflictError
		if !errors.As(err, &ce) || ce.Field != "color" || ce.With != c.with {
			t.Fatalf("want color conflict with %s, got %v", c.with, err)
		}
		if !IsValidation(err) {
			t.Fatalf("IsValidation false for %v", err)
		}
	}

	// Without resampling the date column can still color the raw rows.
	if _, err := Validate(Request{Kind: TimeSeries, Date: analysis.Ref("date"), Color: analysis.Ref("date")}, tbl, kinds); err != nil {
		t.Fatalf("Validate without resample: %v", err)
	}
}

func TestResampleColorLeavesValueColumns(t *testing.T) {
	tbl, kinds := load(t, "date,sales,units\n2024-01-01,10,1\n2024-01-02,20,2\n2024-02-01,5,3\n")
	spec, err := Validate(Request{Kind: TimeSeries, Date: analysis.Ref("date"), Color: analysis.Ref("units"), Resample: FreqMonth}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if strings.Join(spec.Columns, ",") != "sales" {
		t.Fatalf("columns = %v", spec.Columns)
	}
	if got := strings.Join(spec.Derived.Names(), ","); got != "date,units,sales" {
		t.Fatalf("derived columns = %s", got)
	}
}

func TestAggregationOutputConflict(t *testing.T) {
	tbl, kinds := load(t, "a,a_mean\n1,2\n1,4\n2,6\n")
	_, err := Validate(Request{Kind: Aggregation, GroupBy: analysis.Ref("a"), AggCols: []string{"a", "a_mean"}}, tbl, kinds)
	var ce *ColumnConflictError
	if !errors.As(err, &ce) || ce.Column != "a_mean" || ce.Field != "agg_columns" {
		t.Fatalf("want agg output conflict, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("IsValidation false for %v", err)
	}

	spec, err := Validate(Request{Kind: Aggregation, GroupBy: analysis.Ref("a"), AggCols: []string{"a", "a_mean"}, AggFunc: AggSum}, tbl, kinds)
	if err != nil {
		t.Fatalf("Validate with sum: %v", err)
	}
	if got := strings.Join(spec.Derived.Names(), ","); got != "a,a_sum,a_mean" {
		t.Fatalf("derived columns = %s", got)
	}
}

func TestHeatmapNeedsNumericY(t *testing.T) {
	tbl, kinds := load(t, people)
	_, err := Validate(Request{Kind: Heatmap, X: analysis.Ref("age"), Y: analysis.Ref("city")}, tbl, kinds)
	var ke *ColumnKindError
	if !errors.As(err, &ke) || ke.Field != "y_axis" || ke.Want != analysis.KindNumeric {
		t.Fatalf("want y_axis kind error, got %v", err)
	}
	if _, err := Validate(Request{Kind: Heatmap, X: analysis.Ref("city"), Y: analysis.Ref("income")}, tbl, kinds); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
