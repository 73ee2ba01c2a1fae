package profile

import (
	"sort"
	"strings"
)

// Row maps column names to values. Absent keys read as missing.
type Row map[string]Value

// Dataset is an immutable, rectangular table snapshot.
type Dataset struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"-"`
}

// TypeCounts tallies inferred column types.
type TypeCounts struct {
	Numeric     int `json:"numeric" yaml:"numeric"`
	Categorical int `json:"categorical" yaml:"categorical"`
	DateTime    int `json:"datetime" yaml:"datetime"`
	Boolean     int `json:"boolean" yaml:"boolean"`
	Unknown     int `json:"unknown" yaml:"unknown"`
}

func (c *TypeCounts) add(t ColumnType) {
	switch t {
	case TypeNumeric:
		c.Numeric++
	case TypeCategorical:
		c.Categorical++
	case TypeDateTime:
		c.DateTime++
	case TypeBoolean:
		c.Boolean++
	default:
		c.Unknown++
	}
}

// DatasetProfile aggregates every column profile with dataset-level counts.
type DatasetProfile struct {
	TotalRows      int             `json:"total_rows" yaml:"total_rows"`
	TotalColumns   int             `json:"total_columns" yaml:"total_columns"`
	MissingCells   int             `json:"missing_cells" yaml:"missing_cells"`
	MissingPercent Percent         `json:"missing_percent" yaml:"missing_percent"`
	DuplicateRows  int             `json:"duplicate_rows" yaml:"duplicate_rows"`
	TypeCounts     TypeCounts      `json:"type_counts" yaml:"type_counts"`
	Fields         []ColumnProfile `json:"fields" yaml:"fields"`
}

// Field returns the profile for a column by name.
func (p *DatasetProfile) Field(name string) (ColumnProfile, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ColumnProfile{}, false
}

// Header returns the column names, falling back to row 0's keys in sorted
// order when no explicit header was supplied.
func (ds *Dataset) Header() []string {
	if ds == nil {
		return nil
	}
	if len(ds.Columns) > 0 || len(ds.Rows) == 0 {
		return ds.Columns
	}
	cols := make([]string, 0, len(ds.Rows[0]))
	for k := range ds.Rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// HasColumn reports whether name is part of the header.
func (ds *Dataset) HasColumn(name string) bool {
	for _, c := range ds.Header() {
		if c == name {
			return true
		}
	}
	return false
}

// Values returns one column in row order.
func (ds *Dataset) Values(column string) []Value {
	out := make([]Value, len(ds.Rows))
	for i, r := range ds.Rows {
		if v, ok := r[column]; ok {
			out[i] = v
		}
	}
	return out
}

// ProfileDataset infers and profiles every column. An empty dataset yields a
// zero profile with no fields; it is not an error.
func ProfileDataset(ds *Dataset) (*DatasetProfile, error) {
	if ds == nil {
		return nil, &ProfilingError{Op: "profile dataset", Err: ErrNilDataset}
	}
	out := &DatasetProfile{Fields: []ColumnProfile{}}
	if len(ds.Rows) == 0 {
		return out, nil
	}
	header := ds.Header()
	seen := make(map[string]struct{}, len(header))
	for _, c := range header {
		if _, dup := seen[c]; dup {
			return nil, &ProfilingError{Op: "profile dataset", Column: c, Err: ErrDuplicateColumn}
		}
		seen[c] = struct{}{}
	}

	out.TotalRows = len(ds.Rows)
	out.TotalColumns = len(header)
	out.Fields = make([]ColumnProfile, 0, len(header))
	for _, c := range header {
		values := ds.Values(c)
		p := ProfileValues(c, values, Infer(values))
		out.MissingCells += p.Missing
		out.TypeCounts.add(p.Type)
		out.Fields = append(out.Fields, p)
	}
	out.MissingPercent = PercentOf(out.MissingCells, out.TotalRows*out.TotalColumns)
	out.DuplicateRows = duplicateRows(ds, header)
	return out, nil
}

// ProfileColumn profiles a single named column.
func ProfileColumn(ds *Dataset, column string) (ColumnProfile, error) {
	if err := checkColumn(ds, column, "profile column"); err != nil {
		return ColumnProfile{}, err
	}
	values := ds.Values(column)
	return ProfileValues(column, values, Infer(values)), nil
}

// HistogramFor builds the histogram of a named column on demand.
func HistogramFor(ds *Dataset, column string) (Histogram, error) {
	if err := checkColumn(ds, column, "histogram"); err != nil {
		return Histogram{}, err
	}
	values := ds.Values(column)
	h := BuildHistogram(values, Infer(values))
	h.Column = column
	return h, nil
}

// RecommendationsFor returns advice for every field, keyed by column name.
func RecommendationsFor(p *DatasetProfile) map[string][]Recommendation {
	out := make(map[string][]Recommendation, len(p.Fields))
	for _, f := range p.Fields {
		out[f.Name] = Recommend(f)
	}
	return out
}

func checkColumn(ds *Dataset, column, op string) error {
	if ds == nil {
		return &ProfilingError{Op: op, Err: ErrNilDataset}
	}
	if !ds.HasColumn(column) {
		return &ProfilingError{Op: op, Column: column, Err: ErrUnknownColumn}
	}
	return nil
}

func duplicateRows(ds *Dataset, header []string) int {
	seen := make(map[string]struct{}, len(ds.Rows))
	dups := 0
	var b strings.Builder
	for _, r := range ds.Rows {
		b.Reset()
		for _, c := range header {
			v := r[c]
			b.WriteByte(byte('0' + v.Kind))
			b.WriteString(v.Raw)
			b.WriteByte(0x1f)
		}
		k := b.String()
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}
