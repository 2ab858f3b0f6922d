package chart

import "strings"

type role string

const (
	roleX        role = "x_axis"
	roleY        role = "y_axis"
	roleColor    role = "color"
	roleCategory role = "category"
	roleValue    role = "value"
	roleDate     role = "date_column"
	roleGroupBy  role = "group_by"
	roleAggCols  role = "agg_columns"
)

// rule is the column contract of one chart kind.
type rule struct {
	required []role
	// oneOf needs at least one of its roles set.
	oneOf    []role
	optional []role
	// minNumeric > 0 means the chart plots a list of numeric columns.
	minNumeric int
}

// rules is the single source of truth for which roles each chart kind reads.
// Roles a kind does not list are dropped from the validated spec.
var rules = map[Kind]rule{
	Line:               {required: []role{roleX, roleY}, optional: []role{roleColor}},
	Bar:                {required: []role{roleX, roleY}, optional: []role{roleColor}},
	Scatter:            {required: []role{roleX, roleY}, optional: []role{roleColor}},
	Histogram:          {required: []role{roleX}, optional: []role{roleColor}},
	Box:                {oneOf: []role{roleX, roleY}, optional: []role{roleColor}},
	Pie:                {required: []role{roleCategory}, optional: []role{roleValue}},
	Donut:              {required: []role{roleCategory}, optional: []role{roleValue}},
	Heatmap:            {required: []role{roleX, roleY}},
	TimeSeries:         {required: []role{roleDate}, optional: []role{roleY, roleColor}},
	PairPlot:           {optional: []role{roleColor}, minNumeric: 2},
	Aggregation:        {required: []role{roleGroupBy, roleAggCols}},
	CorrelationHeatmap: {minNumeric: 2},
}

func (r rule) uses(ro role) bool {
	for _, set := range [][]role{r.required, r.oneOf, r.optional} {
		for _, x := range set {
			if x == ro {
				return true
			}
		}
	}
	return false
}

func (r Request) isSet(ro role) bool {
	switch ro {
	case roleX:
		return r.X.IsSet()
	case roleY:
		return r.Y.IsSet()
	case roleColor:
		return r.Color.IsSet()
	case roleCategory:
		return r.Category.IsSet()
	case roleValue:
		return r.Value.IsSet()
	case roleDate:
		return r.Date.IsSet()
	case roleGroupBy:
		return r.GroupBy.IsSet()
	case roleAggCols:
		return len(nonBlank(r.AggCols)) > 0
	}
	return false
}

func oneOfName(roles []role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}

// nonBlank trims names and drops blanks and duplicates, keeping order.
func nonBlank(names []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
