package model

// CountRow is one (key, count) line of an aggregate result
type CountRow struct {
	Key   string `db:"group_key" json:"key"`
	Count int    `db:"crime_count" json:"count"`
}

// Aggregate is a named, ordered aggregate result
type Aggregate struct {
	Name string     `json:"name"`
	Key  string     `json:"key"`
	Rows []CountRow `json:"rows"`
}

// Total returns the sum of all counts
func (a Aggregate) Total() int {
	total := 0
	for _, r := range a.Rows {
		total += r.Count
	}
	return total
}
