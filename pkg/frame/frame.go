// Package frame wraps a gota DataFrame with the nullable, copy-on-write
// column access the cleaning rules need.
package frame

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// naToken is how gota marks a missing cell in a series built from strings
const naToken = "NaN"

// MissingTokens are raw cell values loaded as missing
var MissingTokens = []string{"", "NA", "NaN", "nan", "<nil>"}

// ErrColumnNotFound is returned when a column is referenced but absent
var ErrColumnNotFound = errors.New("column not found")

// Table is an immutable in-memory table. Every mutating method returns a
// new Table and leaves the receiver untouched.
type Table struct {
	df dataframe.DataFrame
}

func loadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(MissingTokens),
	}
}

// ReadCSV loads a delimited file with a header row. All columns are read as
// text; typing is left to the cleaning rules. A header-only file is an
// empty table.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return FromRecords(records)
}

// FromRecords builds a table from a header row followed by data rows
func FromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("records must contain a header row")
	}
	if len(records) == 1 {
		return empty(records[0]), nil
	}

	df := dataframe.LoadRecords(records, loadOptions()...)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to load records: %w", df.Err)
	}
	return &Table{df: df}, nil
}

func empty(headers []string) *Table {
	cols := make([]series.Series, len(headers))
	for i, h := range headers {
		cols[i] = series.New([]string{}, series.String, h)
	}
	return &Table{df: dataframe.New(cols...)}
}

// Nrow returns the number of rows
func (t *Table) Nrow() int {
	return t.df.Nrow()
}

// Names returns the column headers in order
func (t *Table) Names() []string {
	return t.df.Names()
}

// Has reports whether a column exists
func (t *Table) Has(col string) bool {
	if col == "" {
		return false
	}
	for _, name := range t.df.Names() {
		if name == col {
			return true
		}
	}
	return false
}

// Present filters cols down to those that exist in the table
func (t *Table) Present(cols ...string) []string {
	var present []string
	for _, c := range cols {
		if t.Has(c) {
			present = append(present, c)
		}
	}
	return present
}

// Strings returns a nullable view of a column. Returns nil if the column is absent.
func (t *Table) Strings(col string) []sql.NullString {
	if !t.Has(col) {
		return nil
	}

	s := t.df.Col(col)
	out := make([]sql.NullString, s.Len())
	for i := 0; i < s.Len(); i++ {
		el := s.Elem(i)
		if el.IsNA() {
			continue
		}
		out[i] = sql.NullString{String: el.String(), Valid: true}
	}
	return out
}

// Ints returns a nullable integer view of a column. Cells that are missing
// or not integers are returned as invalid.
func (t *Table) Ints(col string) []sql.NullInt64 {
	values := t.Strings(col)
	if values == nil {
		return nil
	}

	out := make([]sql.NullInt64, len(values))
	for i, v := range values {
		if !v.Valid {
			continue
		}
		n, err := strconv.ParseInt(v.String, 10, 64)
		if err != nil {
			continue
		}
		out[i] = sql.NullInt64{Int64: n, Valid: true}
	}
	return out
}

// WithStrings returns a copy of the table with col replaced (or appended)
func (t *Table) WithStrings(col string, values []sql.NullString) (*Table, error) {
	raw := make([]string, len(values))
	for i, v := range values {
		if v.Valid {
			raw[i] = v.String
		} else {
			raw[i] = naToken
		}
	}
	return t.mutate(series.New(raw, series.String, col))
}

// WithInts returns a copy of the table with col replaced (or appended) as an integer column
func (t *Table) WithInts(col string, values []sql.NullInt64) (*Table, error) {
	raw := make([]string, len(values))
	for i, v := range values {
		if v.Valid {
			raw[i] = strconv.FormatInt(v.Int64, 10)
		} else {
			raw[i] = naToken
		}
	}
	return t.mutate(series.New(raw, series.Int, col))
}

func (t *Table) mutate(s series.Series) (*Table, error) {
	if s.Len() != t.Nrow() {
		return nil, fmt.Errorf("column %s has %d values, table has %d rows", s.Name, s.Len(), t.Nrow())
	}
	if t.Nrow() == 0 {
		return t.mutateEmpty(s.Name), nil
	}

	df := t.df.Copy().Mutate(s)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to set column %s: %w", s.Name, df.Err)
	}
	return &Table{df: df}, nil
}

func (t *Table) mutateEmpty(col string) *Table {
	names := t.Names()
	if !t.Has(col) {
		names = append(names, col)
	}
	return empty(names)
}

// Drop returns a copy of the table without the given columns. Columns that
// do not exist are ignored; the dropped names are returned.
func (t *Table) Drop(cols ...string) (*Table, []string, error) {
	present := t.Present(cols...)
	if len(present) == 0 {
		return t, nil, nil
	}
	if len(present) == len(t.Names()) {
		return nil, nil, errors.New("refusing to drop every column")
	}

	df := t.df.Drop(present)
	if df.Err != nil {
		return nil, nil, fmt.Errorf("failed to drop columns: %w", df.Err)
	}
	return &Table{df: df}, present, nil
}

// Filter returns the rows for which keep returns true, in their original order
func (t *Table) Filter(keep func(row int) bool) (*Table, error) {
	var idx []int
	for i := 0; i < t.Nrow(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return empty(t.Names()), nil
	}
	if len(idx) == t.Nrow() {
		return t, nil
	}

	df := t.df.Subset(idx)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to filter rows: %w", df.Err)
	}
	return &Table{df: df}, nil
}

// Records returns the header followed by every row, missing cells as ""
func (t *Table) Records() [][]string {
	names := t.Names()
	cols := make([][]sql.NullString, len(names))
	for i, n := range names {
		cols[i] = t.Strings(n)
	}

	records := make([][]string, 0, t.Nrow()+1)
	records = append(records, append([]string(nil), names...))
	for r := 0; r < t.Nrow(); r++ {
		row := make([]string, len(names))
		for c := range names {
			if cols[c][r].Valid {
				row[c] = cols[c][r].String
			}
		}
		records = append(records, row)
	}
	return records
}

// WriteCSV writes the table with a header row; missing cells are written empty
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}
