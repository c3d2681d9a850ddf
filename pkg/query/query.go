// Package query answers the descriptive questions asked of the cleaned
// incident table. Every query has the same shape: filter, group by a key,
// count, sort by count descending.
package query

import (
	"fmt"
	"sort"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// Aggregate names
const (
	NameValidAge        = "valid_age_crimes"
	NameCrimesByAge     = "crimes_by_age_group"
	NameCrimesByWeapon  = "crimes_by_weapon"
	NameCrimesByArea    = "crimes_by_area"
	validAgeCountKeyRow = "crimes with a valid victim age"
)

// RowFilter decides whether a row takes part in a query
type RowFilter func(row int) bool

// CountBy groups the rows of t kept by keep on key, counts them and sorts
// by count descending. Ties keep the order in which keys were first seen.
// Rows with a missing key are never counted.
func CountBy(t *frame.Table, key string, keep RowFilter) ([]model.CountRow, error) {
	if !t.Has(key) {
		return nil, fmt.Errorf("%w: %s", frame.ErrColumnNotFound, key)
	}
	if keep == nil {
		keep = func(int) bool { return true }
	}

	keys := t.Strings(key)
	filtered, err := t.Filter(func(row int) bool {
		return keys[row].Valid && keep(row)
	})
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var rows []model.CountRow
	for _, v := range filtered.Strings(key) {
		i, seen := index[v.String]
		if !seen {
			i = len(rows)
			index[v.String] = i
			rows = append(rows, model.CountRow{Key: v.String})
		}
		rows[i].Count++
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Count > rows[j].Count
	})
	return rows, nil
}

// validAge keeps rows whose victim age is present and greater than zero
func validAge(t *frame.Table, s model.Schema) (RowFilter, error) {
	if !t.Has(s.VictimAge) {
		return nil, fmt.Errorf("%w: %s", frame.ErrColumnNotFound, s.VictimAge)
	}
	ages := t.Ints(s.VictimAge)
	return func(row int) bool {
		return ages[row].Valid && ages[row].Int64 > 0
	}, nil
}

// ValidAgeCount counts crimes with a present, positive victim age
func ValidAgeCount(t *frame.Table, s model.Schema) (int, error) {
	keep, err := validAge(t, s)
	if err != nil {
		return 0, err
	}

	count := 0
	for row := 0; row < t.Nrow(); row++ {
		if keep(row) {
			count++
		}
	}
	return count, nil
}

// CrimesPerAgeGroup counts valid-age crimes by age group
func CrimesPerAgeGroup(t *frame.Table, s model.Schema) ([]model.CountRow, error) {
	keep, err := validAge(t, s)
	if err != nil {
		return nil, err
	}
	return CountBy(t, s.VictimAgeGroup, keep)
}

// CrimesPerWeapon counts crimes where a weapon was used, by weapon description
func CrimesPerWeapon(t *frame.Table, s model.Schema) ([]model.CountRow, error) {
	descs := t.Strings(s.WeaponDescription)
	return CountBy(t, s.WeaponDescription, func(row int) bool {
		return descs[row].Valid && descs[row].String != model.NoWeaponLabel
	})
}

// CrimesPerArea counts crimes by area
func CrimesPerArea(t *frame.Table, s model.Schema) ([]model.CountRow, error) {
	return CountBy(t, s.Area, nil)
}

// RunAll answers every query. A query whose columns are absent is returned
// in the missing list instead of failing the others.
func RunAll(t *frame.Table, s model.Schema) ([]model.Aggregate, map[string]error) {
	var results []model.Aggregate
	missing := make(map[string]error)

	if n, err := ValidAgeCount(t, s); err != nil {
		missing[NameValidAge] = err
	} else {
		results = append(results, model.Aggregate{
			Name: NameValidAge,
			Key:  s.VictimAge,
			Rows: []model.CountRow{{Key: validAgeCountKeyRow, Count: n}},
		})
	}

	queries := []struct {
		name string
		key  string
		run  func(*frame.Table, model.Schema) ([]model.CountRow, error)
	}{
		{NameCrimesByAge, s.VictimAgeGroup, CrimesPerAgeGroup},
		{NameCrimesByWeapon, s.WeaponDescription, CrimesPerWeapon},
		{NameCrimesByArea, s.Area, CrimesPerArea},
	}
	for _, q := range queries {
		rows, err := q.run(t, s)
		if err != nil {
			missing[q.name] = err
			continue
		}
		results = append(results, model.Aggregate{Name: q.name, Key: q.key, Rows: rows})
	}

	return results, missing
}
