package analysis

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Kind is the inferred semantic role of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDateLike    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindUnknown     Kind = "unknown"
)

// ColumnKind pairs a column name with its inferred kind.
type ColumnKind struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// ColumnKinds is the classification result in table column order.
type ColumnKinds []ColumnKind

// Of returns the kind of the named column, or KindUnknown if absent.
func (ks ColumnKinds) Of(name string) Kind {
	for _, k := range ks {
		if k.Name == name {
			return k.Kind
		}
	}
	return KindUnknown
}

// Map returns the classification keyed by column name.
func (ks ColumnKinds) Map() map[string]Kind {
	out := make(map[string]Kind, len(ks))
	for _, k := range ks {
		out[k.Name] = k.Kind
	}
	return out
}

// Names returns the columns of the given kind, in table order.
func (ks ColumnKinds) Names(kind Kind) []string {
	var out []string
	for _, k := range ks {
		if k.Kind == kind {
			out = append(out, k.Name)
		}
	}
	return out
}

// Classify assigns exactly one kind to every column:
//   - time storage is datetime
//   - number storage is numeric and never tested for dates
//   - text storage is promoted to datetime when at least DateThreshold of its
//     non-null values parse as dates, and the column is rewritten in place to
//     time storage; otherwise it is categorical
//   - anything else (booleans) is unknown
//
// Classify never fails and running it again on the same table returns the
// same result.
func Classify(t *Table, opt Options) ColumnKinds {
	threshold := opt.DateThreshold
	if threshold <= 0 {
		threshold = DefaultDateThreshold
	}
	out := make(ColumnKinds, 0, t.Cols())
	for _, c := range t.Columns {
		switch c.Storage {
		case StorageTime:
			c.Kind = KindDateLike
		case StorageNumber:
			c.Kind = KindNumeric
		case StorageText:
			if promoteDates(c, threshold) {
				c.Kind = KindDateLike
			} else {
				c.Kind = KindCategorical
			}
		default:
			c.Kind = KindUnknown
		}
		out = append(out, ColumnKind{Name: c.Name, Kind: c.Kind})
	}
	return out
}

// promoteDates converts c to time storage when enough values parse.
// Values that fail to parse become null.
func promoteDates(c *Column, threshold float64) bool {
	parsed := make([]time.Time, c.Len())
	ok, nonNull := 0, 0
	for i := range parsed {
		if c.IsNull(i) {
			continue
		}
		nonNull++
		if t, good := ParseTime(c.text[i]); good {
			parsed[i] = t
			ok++
		}
	}
	if nonNull == 0 {
		return false
	}
	if float64(ok)/float64(nonNull) < threshold {
		return false
	}
	upgraded := NewTimeColumn(c.Name, parsed)
	c.Storage = StorageTime
	c.valid = upgraded.valid
	c.times = upgraded.times
	c.text = nil
	return true
}

// ColumnRef is an optional reference to a column by name. The zero value is unset.
type ColumnRef struct {
	name string
	set  bool
}

// Ref returns a reference to name; blank names yield an unset reference.
func Ref(name string) ColumnRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return ColumnRef{}
	}
	return ColumnRef{name: name, set: true}
}

// IsSet reports whether the reference names a column.
func (r ColumnRef) IsSet() bool { return r.set }

// Name returns the referenced column name, or "" when unset.
func (r ColumnRef) Name() string { return r.name }

func (r ColumnRef) String() string {
	if !r.set {
		return "<none>"
	}
	return r.name
}

// MarshalJSON encodes unset references as null.
func (r ColumnRef) MarshalJSON() ([]byte, error) {
	if !r.set {
		return []byte("null"), nil
	}
	return json.Marshal(r.name)
}

// UnmarshalJSON accepts a string or null.
func (r *ColumnRef) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = ColumnRef{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*r = Ref(s)
	return nil
}

// Defaults holds the auto-selected axes for a freshly loaded dataset.
type Defaults struct {
	DateColumn  ColumnRef `json:"date_column"`
	ValueColumn ColumnRef `json:"value_column"`
}

// SelectDefaults picks the first datetime column and the first numeric column
// in table order. Either may be unset.
func SelectDefaults(kinds ColumnKinds) Defaults {
	var d Defaults
	for _, k := range kinds {
		if k.Kind == KindDateLike && !d.DateColumn.IsSet() {
			d.DateColumn = Ref(k.Name)
		}
		if k.Kind == KindNumeric && !d.ValueColumn.IsSet() {
			d.ValueColumn = Ref(k.Name)
		}
	}
	return d
}
