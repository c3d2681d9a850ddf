// Package diagnostics profiles an incident table without changing it:
// duplicate record ids, missing values and distinct values per column, and
// numeric summaries.
package diagnostics

import (
	"math"
	"sort"
	"strconv"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
)

// Duplicate is a record id that appears more than once
type Duplicate struct {
	Key         string
	Occurrences int
	Rows        []int
}

// ColumnProfile is the missing and distinct value profile of one column
type ColumnProfile struct {
	Column         string
	Missing        int
	MissingPercent float64
	Distinct       int
}

// NumericSummary describes the present integer values of a column
type NumericSummary struct {
	Column  string
	Count   int
	Missing int
	Min     int64
	Max     int64
	Mean    float64
}

// Profile is the full diagnostic of a table
type Profile struct {
	Rows       int
	Duplicates []Duplicate
	Columns    []ColumnProfile
	Summaries  []NumericSummary // integer columns worth describing, if any
}

// FindDuplicates returns record ids that occur more than once, in order of
// first occurrence. Rows with a missing id are ignored. The table is never
// modified: duplicates are reported, not resolved.
func FindDuplicates(t *frame.Table, keyColumn string) []Duplicate {
	keys := t.Strings(keyColumn)
	if keys == nil {
		return nil
	}

	index := make(map[string]int)
	var all []Duplicate
	for row, k := range keys {
		if !k.Valid {
			continue
		}
		i, seen := index[k.String]
		if !seen {
			i = len(all)
			index[k.String] = i
			all = append(all, Duplicate{Key: k.String})
		}
		all[i].Occurrences++
		all[i].Rows = append(all[i].Rows, row)
	}

	var dups []Duplicate
	for _, d := range all {
		if d.Occurrences > 1 {
			dups = append(dups, d)
		}
	}
	return dups
}

// ProfileColumns counts missing and distinct values per column. Columns are
// sorted by missing count descending, ties in table order.
func ProfileColumns(t *frame.Table) []ColumnProfile {
	rows := t.Nrow()
	profiles := make([]ColumnProfile, 0, len(t.Names()))
	for _, name := range t.Names() {
		p := ColumnProfile{Column: name}
		distinct := make(map[string]struct{})
		for _, v := range t.Strings(name) {
			if !v.Valid {
				p.Missing++
				continue
			}
			distinct[v.String] = struct{}{}
		}
		p.Distinct = len(distinct)
		if rows > 0 {
			p.MissingPercent = math.Round(float64(p.Missing)/float64(rows)*10000) / 100
		}
		profiles = append(profiles, p)
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Missing > profiles[j].Missing
	})
	return profiles
}

// ByDistinct returns a copy of profiles sorted by distinct count descending
func ByDistinct(profiles []ColumnProfile) []ColumnProfile {
	sorted := append([]ColumnProfile(nil), profiles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distinct > sorted[j].Distinct
	})
	return sorted
}

// Summarize describes the integer values of a column. ok is false when the
// column is absent.
func Summarize(t *frame.Table, col string) (NumericSummary, bool) {
	values := t.Strings(col)
	if values == nil {
		return NumericSummary{}, false
	}

	s := NumericSummary{Column: col}
	var sum float64
	for _, v := range values {
		if !v.Valid {
			s.Missing++
			continue
		}
		f, err := strconv.ParseFloat(v.String, 64)
		if err != nil {
			s.Missing++
			continue
		}
		n := int64(f)
		if s.Count == 0 || n < s.Min {
			s.Min = n
		}
		if s.Count == 0 || n > s.Max {
			s.Max = n
		}
		s.Count++
		sum += f
	}
	if s.Count > 0 {
		s.Mean = sum / float64(s.Count)
	}
	return s, true
}

// Run builds the full profile of t, summarising each numeric column that
// is present
func Run(t *frame.Table, keyColumn string, numeric ...string) Profile {
	p := Profile{
		Rows:       t.Nrow(),
		Duplicates: FindDuplicates(t, keyColumn),
		Columns:    ProfileColumns(t),
	}
	for _, col := range numeric {
		if s, ok := Summarize(t, col); ok {
			p.Summaries = append(p.Summaries, s)
		}
	}
	return p
}
