package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/crime-normalizer/pkg/cleaner"
	"github.com/David-Botos/crime-normalizer/pkg/diagnostics"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

func sampleAggregates() []model.Aggregate {
	return []model.Aggregate{
		{Name: "crimes_by_area", Key: "AREA NAME", Rows: []model.CountRow{
			{Key: "Central", Count: 3},
			{Key: "Hollywood", Count: 1},
		}},
		{Name: "crimes_by_weapon", Key: "Weapon Desc", Rows: []model.CountRow{
			{Key: "KNIFE", Count: 2},
		}},
	}
}

func sampleProfile() diagnostics.Profile {
	return diagnostics.Profile{
		Rows:       5,
		Duplicates: []diagnostics.Duplicate{{Key: "10", Occurrences: 2, Rows: []int{0, 3}}},
		Columns: []diagnostics.ColumnProfile{
			{Column: "Cross Street", Missing: 4, MissingPercent: 80, Distinct: 1},
			{Column: "DR_NO", Missing: 0, MissingPercent: 0, Distinct: 4},
		},
	}
}

func TestRenderTableAlignsWideCharacters(t *testing.T) {
	lines := RenderTable([]string{"area", "count"}, [][]string{
		{"東京", "2"},
		{"LA", "10"},
	})

	require.Len(t, lines, 4)
	assert.Equal(t, "| area | count |", lines[0])
	assert.Equal(t, "| ---- | ----- |", lines[1])
	assert.Equal(t, "| LA   | 10    |", lines[3])
	for _, l := range lines {
		assert.Equal(t, runewidth.StringWidth(lines[0]), runewidth.StringWidth(l), l)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	lines := RenderTable([]string{"a", "b"}, [][]string{{"x"}})
	require.Len(t, lines, 3)
	assert.Equal(t, "| x   |     |", lines[2])
}

func TestWriteAggregates(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAggregates(&buf, sampleAggregates()))

	out := buf.String()
	assert.Contains(t, out, "crimes_by_area (4)")
	assert.Contains(t, out, "| Central   | 3     |")
	assert.Contains(t, out, "crimes_by_weapon (2)")
	assert.Less(t, strings.Index(out, "Central"), strings.Index(out, "Hollywood"))
}

func TestWriteProfile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteProfile(&buf, "raw", sampleProfile()))

	out := buf.String()
	assert.Contains(t, out, "raw: 5 rows, 1 duplicated keys")
	assert.Contains(t, out, "80.00")
	assert.Contains(t, out, "duplicated keys")
	assert.NotContains(t, out, "numeric summaries")
}

func TestWriteProfileNumericSummaries(t *testing.T) {
	p := sampleProfile()
	p.Summaries = []diagnostics.NumericSummary{
		{Column: "Vict Age", Count: 5, Min: 30, Max: 40, Mean: 35},
		{Column: "Reporting Delay (days)", Count: 3, Missing: 2, Min: 0, Max: 4, Mean: 5.0 / 3},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteProfile(&buf, "cleaned table", p))

	out := buf.String()
	assert.Contains(t, out, "numeric summaries")
	assert.Contains(t, out, "| Vict Age               | 5     | 0       | 30  | 40  | 35.00 |")
	assert.Contains(t, out, "1.67")
}

func TestWriteCleaning(t *testing.T) {
	r := &cleaner.Report{
		Rows: 3,
		Rules: []cleaner.RuleResult{
			{Rule: "victim_age", Policy: cleaner.PolicyRangeMedian, Changed: 2,
				Reasons: map[string]int{"out_of_range": 1, "missing_value": 1}, Statistic: "median=35"},
			{Rule: "cross_street", Policy: cleaner.PolicyDropColumns, Skipped: true, Reasons: map[string]int{}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCleaning(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "cleaning: 3 rows, 2 cells repaired")
	assert.Contains(t, out, "missing_value=1 out_of_range=1")
	assert.Contains(t, out, "median=35")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "repairs by reason")
	assert.Contains(t, out, "| out_of_range  | 1     |")
}

func TestWorkbookBuild(t *testing.T) {
	wb := Workbook{
		Aggregates: sampleAggregates(),
		Profiles:   []ProfileSheet{{Name: "profile_raw", Profile: sampleProfile()}},
		Cleaning:   &cleaner.Report{Rows: 1},
	}

	f, err := wb.Build()
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"crimes_by_area", "crimes_by_weapon", "profile_raw", "cleaning"}, f.GetSheetList())

	rows, err := f.GetRows("crimes_by_area")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"AREA NAME", "count"},
		{"Central", "3"},
		{"Hollywood", "1"},
	}, rows)

	profile, err := f.GetRows("profile_raw")
	require.NoError(t, err)
	require.Len(t, profile, 3)
	assert.Equal(t, "Cross Street", profile[1][0])
}

func TestWorkbookBuildNumericSheet(t *testing.T) {
	p := sampleProfile()
	p.Summaries = []diagnostics.NumericSummary{{Column: "Vict Age", Count: 2, Min: 30, Max: 40, Mean: 35}}
	wb := Workbook{Profiles: []ProfileSheet{{Name: "profile_clean", Profile: p}}}

	f, err := wb.Build()
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"profile_clean", "profile_clean_numeric"}, f.GetSheetList())
	rows, err := f.GetRows("profile_clean_numeric")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"column", "count", "missing", "min", "max", "mean"},
		{"Vict Age", "2", "0", "30", "40", "35"},
	}, rows)
}

func TestWorkbookSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aggregates.xlsx")
	require.NoError(t, Workbook{Aggregates: sampleAggregates()}.Save(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("crimes_by_weapon")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Weapon Desc", "count"}, {"KNIFE", "2"}}, rows)
}

func TestWorkbookWriteTo(t *testing.T) {
	var buf bytes.Buffer
	n, err := Workbook{Aggregates: sampleAggregates()}.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.NotContains(t, f.GetSheetList(), "Sheet1")
}
