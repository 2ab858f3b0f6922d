package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Report is a descriptive summary of a classified table.
type Report struct {
	Name               string          `json:"name"`
	Rows               int             `json:"rows"`
	Cols               int             `json:"columns"`
	Missing            int             `json:"total_missing"`
	NumericColumns     int             `json:"numeric_columns"`
	CategoricalColumns int             `json:"categorical_columns"`
	DateColumns        int             `json:"datetime_columns"`
	Columns            []ColumnSummary `json:"column_stats"`
	Corr               *CorrMatrix     `json:"correlations,omitempty"`
}

// ColumnSummary captures statistics for one column. Which fields are filled
// depends on Kind.
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	NonNull int    `json:"count"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique,omitempty"`
	// Numeric stats
	Numeric *NumericSummary `json:"numeric,omitempty"`
	// Categorical top values
	TopValues []CategoryCount `json:"top_values,omitempty"`
	// Datetime range
	First *time.Time `json:"first,omitempty"`
	Last  *time.Time `json:"last,omitempty"`
}

// NumericSummary mirrors a dataframe describe() row plus robust outlier counts.
type NumericSummary struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
	// Outliers (robust Z via MAD), only computed with at least 8 values.
	OutliersCount    int     `json:"outliers"`
	OutliersMaxAbsZ  float64 `json:"outliers_max_abs_z"`
	OutlierThreshold float64 `json:"outlier_threshold"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CorrMatrix holds a symmetric Pearson correlation matrix across numeric columns.
type CorrMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"` // row-major, Values[i][j]
}

const (
	topValuesLimit          = 10
	defaultOutlierThreshold = 3.5
)

// Describe summarizes a table. Kinds must come from Classify on the same table.
func Describe(t *Table, kinds ColumnKinds) *Report {
	rep := &Report{Name: t.Name, Rows: t.Rows(), Cols: t.Cols(), Missing: t.Missing()}
	for _, c := range t.Columns {
		kind := kinds.Of(c.Name)
		s := ColumnSummary{Name: c.Name, Kind: kind, NonNull: c.NonNull()}
		s.Missing = c.Len() - s.NonNull
		switch kind {
		case KindNumeric:
			rep.NumericColumns++
			s.Numeric = describeNumeric(c)
		case KindDateLike:
			rep.DateColumns++
			if first, last, ok := TimeRange(c); ok {
				s.First, s.Last = &first, &last
			}
		case KindCategorical:
			rep.CategoricalColumns++
			s.TopValues, s.Unique = topValues(c, topValuesLimit)
		}
		rep.Columns = append(rep.Columns, s)
	}
	if numeric := kinds.Names(KindNumeric); len(numeric) >= 2 {
		rep.Corr = Correlate(t, numeric)
	}
	return rep
}

func describeNumeric(c *Column) *NumericSummary {
	vals := numericValues(c)
	if len(vals) == 0 {
		return nil
	}
	s := &NumericSummary{}
	// Welford
	var n int
	var mean, m2 float64
	for _, x := range vals {
		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	s.Mean = mean
	if n > 1 {
		s.Std = math.Sqrt(m2 / float64(n-1))
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Q25 = quantile(sorted, 0.25)
	s.Median = quantile(sorted, 0.5)
	s.Q75 = quantile(sorted, 0.75)

	if len(vals) >= 8 {
		median, mad := medianMAD(vals)
		var cnt int
		maxAbsZ := 0.0
		if mad > 0 {
			for _, v := range vals {
				az := math.Abs(0.6745 * (v - median) / mad)
				if az > defaultOutlierThreshold {
					cnt++
				}
				if az > maxAbsZ {
					maxAbsZ = az
				}
			}
		}
		s.OutliersCount = cnt
		s.OutliersMaxAbsZ = maxAbsZ
		s.OutlierThreshold = defaultOutlierThreshold
	}
	return s
}

func numericValues(c *Column) []float64 {
	out := make([]float64, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if x, ok := c.Float(i); ok && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// TimeRange returns the earliest and latest non-null time in c.
func TimeRange(c *Column) (first, last time.Time, ok bool) {
	for i := 0; i < c.Len(); i++ {
		t, good := c.Time(i)
		if !good {
			continue
		}
		if !ok || t.Before(first) {
			first = t
		}
		if !ok || t.After(last) {
			last = t
		}
		ok = true
	}
	return first, last, ok
}

func topValues(c *Column, limit int) ([]CategoryCount, int) {
	counts := map[string]int{}
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			continue
		}
		counts[c.String(i)]++
	}
	tops := make([]CategoryCount, 0, len(counts))
	for k, v := range counts {
		tops = append(tops, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count == tops[j].Count {
			return tops[i].Value < tops[j].Value
		}
		return tops[i].Count > tops[j].Count
	})
	if len(tops) > limit {
		tops = tops[:limit]
	}
	return tops, len(counts)
}

// Correlate computes pairwise-complete Pearson correlations among the named
// numeric columns. Pairs with fewer than two shared rows or zero variance are 0.
func Correlate(t *Table, names []string) *CorrMatrix {
	cols := make([]*Column, 0, len(names))
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if c, ok := t.Column(name); ok && c.Storage == StorageNumber {
			cols = append(cols, c)
			kept = append(kept, name)
		}
	}
	n := len(cols)
	mat := make([][]float64, n)
	for i := range mat {
		mat[i] = make([]float64, n)
		mat[i][i] = 1
	}
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			r := pearson(cols[a], cols[b])
			mat[a][b] = r
			mat[b][a] = r
		}
	}
	return &CorrMatrix{Columns: kept, Values: mat}
}

func pearson(x, y *Column) float64 {
	var n, sumX, sumY, sumXX, sumYY, sumXY float64
	for i := 0; i < x.Len(); i++ {
		a, okA := x.Float(i)
		b, okB := y.Float(i)
		if !okA || !okB {
			continue
		}
		n++
		sumX += a
		sumY += b
		sumXX += a * a
		sumYY += b * b
		sumXY += a * b
	}
	if n < 2 {
		return 0
	}
	denom := math.Sqrt((n*sumXX - sumX*sumX) * (n*sumYY - sumY*sumY))
	if denom == 0 {
		return 0
	}
	r := (n*sumXY - sumX*sumY) / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Markdown renders a compact report for the terminal.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n", r.Cols))
	b.WriteString(fmt.Sprintf("Missing values: %d\n\n", r.Missing))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Columns {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			if n := c.Numeric; n != nil {
				b.WriteString(fmt.Sprintf(" - min %.4g, q25 %.4g, median %.4g, q75 %.4g, max %.4g, mean %.4g, std %.4g",
					n.Min, n.Q25, n.Median, n.Q75, n.Max, n.Mean, n.Std))
				if n.OutlierThreshold > 0 {
					b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", n.OutliersCount, n.OutlierThreshold))
				}
			}
		case KindDateLike:
			if c.First != nil && c.Last != nil {
				b.WriteString(fmt.Sprintf(" - %s to %s", c.First.Format("2006-01-02"), c.Last.Format("2006-01-02")))
			}
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(" - top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		}
		b.WriteString("\n")
	}
	if r.Corr != nil && len(r.Corr.Columns) >= 2 {
		b.WriteString("\n[CORRELATIONS]\n")
		type pr struct {
			A, B string
			R    float64
		}
		var pairs []pr
		n := len(r.Corr.Columns)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				pairs = append(pairs, pr{A: r.Corr.Columns[i], B: r.Corr.Columns[j], R: r.Corr.Values[i][j]})
			}
		}
		sort.Slice(pairs, func(i, j int) bool {
			ai := math.Abs(pairs[i].R)
			aj := math.Abs(pairs[j].R)
			if ai == aj {
				return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
			}
			return ai > aj
		})
		if len(pairs) > 10 {
			pairs = pairs[:10]
		}
		for _, p := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
