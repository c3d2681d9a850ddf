package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
)

func sample(t *testing.T) *frame.Table {
	t.Helper()
	tbl, err := frame.FromRecords([][]string{
		{"DR_NO", "Vict Age", "Cross Street"},
		{"10", "34", ""},
		{"11", "-2", ""},
		{"10", "", "MAIN"},
		{"", "50", ""},
		{"11", "abc", ""},
	})
	require.NoError(t, err)
	return tbl
}

func TestFindDuplicates(t *testing.T) {
	tbl := sample(t)
	dups := FindDuplicates(tbl, "DR_NO")

	assert.Equal(t, []Duplicate{
		{Key: "10", Occurrences: 2, Rows: []int{0, 2}},
		{Key: "11", Occurrences: 2, Rows: []int{1, 4}},
	}, dups)
	assert.Equal(t, 5, tbl.Nrow(), "detection must not drop rows")

	assert.Nil(t, FindDuplicates(tbl, "absent"))
}

func TestProfileColumns(t *testing.T) {
	profiles := ProfileColumns(sample(t))
	require.Len(t, profiles, 3)

	assert.Equal(t, ColumnProfile{Column: "Cross Street", Missing: 4, MissingPercent: 80, Distinct: 1}, profiles[0])
	assert.Equal(t, ColumnProfile{Column: "DR_NO", Missing: 1, MissingPercent: 20, Distinct: 2}, profiles[1])
	assert.Equal(t, ColumnProfile{Column: "Vict Age", Missing: 1, MissingPercent: 20, Distinct: 4}, profiles[2])

	byDistinct := ByDistinct(profiles)
	assert.Equal(t, "Vict Age", byDistinct[0].Column)
	assert.Equal(t, "Cross Street", profiles[0].Column, "input must not be reordered")
}

func TestSummarize(t *testing.T) {
	s, ok := Summarize(sample(t), "Vict Age")
	require.True(t, ok)
	assert.Equal(t, NumericSummary{Column: "Vict Age", Count: 3, Missing: 2, Min: -2, Max: 50, Mean: 82.0 / 3}, s)

	_, ok = Summarize(sample(t), "absent")
	assert.False(t, ok)
}

func TestRun(t *testing.T) {
	p := Run(sample(t), "DR_NO")
	assert.Equal(t, 5, p.Rows)
	assert.Len(t, p.Duplicates, 2)
	assert.Len(t, p.Columns, 3)
}

func TestRunSummarisesPresentNumericColumns(t *testing.T) {
	p := Run(sample(t), "DR_NO", "Vict Age", "absent")

	assert.Equal(t, 5, p.Rows)
	assert.Len(t, p.Duplicates, 2)
	require.Len(t, p.Summaries, 1)
	assert.Equal(t, "Vict Age", p.Summaries[0].Column)
	assert.Equal(t, int64(50), p.Summaries[0].Max)
}
