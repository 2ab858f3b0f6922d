package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Storage is the physical representation a column was loaded with.
type Storage string

const (
	StorageText   Storage = "text"
	StorageNumber Storage = "number"
	StorageBool   Storage = "bool"
	StorageTime   Storage = "time"
)

// Column holds one named column of a Table. Values are stored in the slice
// matching Storage; valid marks non-null cells.
type Column struct {
	Name    string
	Storage Storage
	Kind    Kind

	valid []bool
	text  []string
	nums  []float64
	bools []bool
	times []time.Time
}

// NewTextColumn builds a text column. Null tokens ("", "NA", "null", ...) are null.
func NewTextColumn(name string, vals []string) *Column {
	c := &Column{Name: name, Storage: StorageText, Kind: KindUnknown, valid: make([]bool, len(vals)), text: make([]string, len(vals))}
	for i, v := range vals {
		if isNullToken(v) {
			continue
		}
		c.valid[i] = true
		c.text[i] = v
	}
	return c
}

// NewNumberColumn builds a numeric column. NaN values are null.
func NewNumberColumn(name string, vals []float64) *Column {
	c := &Column{Name: name, Storage: StorageNumber, Kind: KindUnknown, valid: make([]bool, len(vals)), nums: make([]float64, len(vals))}
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		c.valid[i] = true
		c.nums[i] = v
	}
	return c
}

// NewTimeColumn builds a datetime column. Zero times are null.
func NewTimeColumn(name string, vals []time.Time) *Column {
	c := &Column{Name: name, Storage: StorageTime, Kind: KindUnknown, valid: make([]bool, len(vals)), times: make([]time.Time, len(vals))}
	for i, v := range vals {
		if v.IsZero() {
			continue
		}
		c.valid[i] = true
		c.times[i] = v
	}
	return c
}

// Len returns the number of cells in the column.
func (c *Column) Len() int { return len(c.valid) }

// IsNull reports whether cell i holds no value.
func (c *Column) IsNull(i int) bool { return i < 0 || i >= len(c.valid) || !c.valid[i] }

// NonNull counts the cells holding a value.
func (c *Column) NonNull() int {
	n := 0
	for _, ok := range c.valid {
		if ok {
			n++
		}
	}
	return n
}

// Float returns cell i as a number. Only number storage yields values.
func (c *Column) Float(i int) (float64, bool) {
	if c.Storage != StorageNumber || c.IsNull(i) {
		return 0, false
	}
	return c.nums[i], true
}

// Time returns cell i as a time. Only time storage yields values.
func (c *Column) Time(i int) (time.Time, bool) {
	if c.Storage != StorageTime || c.IsNull(i) {
		return time.Time{}, false
	}
	return c.times[i], true
}

// Value returns cell i in its native Go type, or nil when null.
func (c *Column) Value(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch c.Storage {
	case StorageNumber:
		return c.nums[i]
	case StorageBool:
		return c.bools[i]
	case StorageTime:
		return c.times[i]
	default:
		return c.text[i]
	}
}

// String formats cell i for display and export. Nulls are empty.
func (c *Column) String(i int) string {
	if c.IsNull(i) {
		return ""
	}
	switch c.Storage {
	case StorageNumber:
		return strconv.FormatFloat(c.nums[i], 'f', -1, 64)
	case StorageBool:
		return strconv.FormatBool(c.bools[i])
	case StorageTime:
		t := c.times[i]
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format("2006-01-02 15:04:05")
	default:
		return c.text[i]
	}
}

// pick copies the given rows into a new column with the same storage and kind.
func (c *Column) pick(rows []int) *Column {
	out := &Column{Name: c.Name, Storage: c.Storage, Kind: c.Kind, valid: make([]bool, len(rows))}
	switch c.Storage {
	case StorageNumber:
		out.nums = make([]float64, len(rows))
	case StorageBool:
		out.bools = make([]bool, len(rows))
	case StorageTime:
		out.times = make([]time.Time, len(rows))
	default:
		out.text = make([]string, len(rows))
	}
	for j, i := range rows {
		if c.IsNull(i) {
			continue
		}
		out.valid[j] = true
		switch c.Storage {
		case StorageNumber:
			out.nums[j] = c.nums[i]
		case StorageBool:
			out.bools[j] = c.bools[i]
		case StorageTime:
			out.times[j] = c.times[i]
		default:
			out.text[j] = c.text[i]
		}
	}
	return out
}

// Table is an ordered set of equally long named columns.
type Table struct {
	Name    string
	Columns []*Column
}

// NewTable assembles a table. Columns must all have the same length.
func NewTable(name string, cols ...*Column) (*Table, error) {
	t := &Table{Name: name}
	seen := map[string]bool{}
	for _, c := range cols {
		if len(t.Columns) > 0 && c.Len() != t.Columns[0].Len() {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, c.Len(), t.Columns[0].Len())
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		t.Columns = append(t.Columns, c)
	}
	return t, nil
}

// Rows returns the row count.
func (t *Table) Rows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Cols returns the column count.
func (t *Table) Cols() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Names returns column names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Select returns a new table holding only the given rows, in order.
func (t *Table) Select(rows []int) *Table {
	out := &Table{Name: t.Name, Columns: make([]*Column, len(t.Columns))}
	for i, c := range t.Columns {
		out.Columns[i] = c.pick(rows)
	}
	return out
}

// Slice returns rows [offset, offset+limit) clamped to the table bounds.
func (t *Table) Slice(offset, limit int) *Table {
	n := t.Rows()
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit >= 0 && offset+limit < n {
		end = offset + limit
	}
	rows := make([]int, 0, end-offset)
	for i := offset; i < end; i++ {
		rows = append(rows, i)
	}
	return t.Select(rows)
}

// Records returns rows as name -> native value maps, nulls as nil.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, t.Rows())
	for i := range out {
		rec := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			rec[c.Name] = c.Value(i)
		}
		out[i] = rec
	}
	return out
}

// Missing counts null cells across the whole table.
func (t *Table) Missing() int {
	n := 0
	for _, c := range t.Columns {
		n += c.Len() - c.NonNull()
	}
	return n
}

// LoadCSV reads a header plus rows and types each column: all non-null values
// numeric yields number storage, all boolean literals yields bool storage,
// anything else stays text. Kinds are left unknown until Classify.
func LoadCSV(r io.Reader, name string, opt Options) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if opt.Delimiter != 0 {
		cr.Comma = opt.Delimiter
	}

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	header = normalizeHeader(header)
	ncol := len(header)
	raw := make([][]string, ncol)

	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = math.MaxInt
	}
	rows := 0
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		if rows >= maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrTooManyRows, maxRows)
		}
		rows++
		for j := 0; j < ncol; j++ {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			raw[j] = append(raw[j], v)
		}
	}

	t := &Table{Name: name, Columns: make([]*Column, ncol)}
	for j := range header {
		t.Columns[j] = typeColumn(header[j], raw[j], opt)
	}
	return t, nil
}

// typeColumn picks the narrowest storage that holds every non-null value.
func typeColumn(name string, vals []string, opt Options) *Column {
	nonNull := 0
	allNum, allBool := true, true
	nums := make([]float64, len(vals))
	bools := make([]bool, len(vals))
	for i, v := range vals {
		if isNullToken(v) {
			nums[i] = math.NaN()
			continue
		}
		nonNull++
		if allNum {
			if x, ok := parseNumeric(v, opt); ok {
				nums[i] = x
			} else {
				allNum = false
			}
		}
		if allBool {
			if b, ok := parseBool(v); ok {
				bools[i] = b
			} else {
				allBool = false
			}
		}
	}
	switch {
	case nonNull == 0:
		return NewTextColumn(name, vals)
	case allNum:
		return NewNumberColumn(name, nums)
	case allBool:
		c := NewTextColumn(name, vals)
		c.Storage = StorageBool
		c.bools = bools
		c.text = nil
		return c
	default:
		return NewTextColumn(name, vals)
	}
}

// normalizeHeader names blank headers "Unnamed: i" and suffixes duplicates.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		base := h
		for seen[h] > 0 {
			h = fmt.Sprintf("%s.%d", base, seen[base])
			seen[base]++
		}
		seen[h]++
		out[i] = h
	}
	return out
}
