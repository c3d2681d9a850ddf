package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

var header = []string{
	"DR_NO", "Date Rptd", "DATE OCC", "AREA NAME", "Crm Cd 1", "Crm Cd 2", "Cross Street",
	"Weapon Used Cd", "Weapon Desc", "Mocodes", "Vict Sex", "Vict Descent", "Vict Age",
	"Premis Cd", "Premis Desc", "Status",
}

func rawTable(t *testing.T, rows ...[]string) *frame.Table {
	t.Helper()
	records := append([][]string{header}, rows...)
	tbl, err := frame.FromRecords(records)
	require.NoError(t, err)
	return tbl
}

func newTestEngine(t *testing.T, record bool) *Engine {
	t.Helper()
	schema := model.DefaultSchema()
	e, err := NewEngine(schema, DefaultRules(schema), zap.NewNop(), Options{RecordOperations: record, RunID: "test"})
	require.NoError(t, err)
	return e
}

func column(t *testing.T, tbl *frame.Table, name string) []string {
	t.Helper()
	require.True(t, tbl.Has(name), "missing column %s", name)
	out := make([]string, 0, tbl.Nrow())
	for _, v := range tbl.Strings(name) {
		if v.Valid {
			out = append(out, v.String)
		} else {
			out = append(out, "<missing>")
		}
	}
	return out
}

func sampleRows() [][]string {
	return [][]string{
		{"1", "03/01/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "Central", "624", "", "", "", "", "  0416   0334 ", "F", "H", "-5", "101", "STREET", "AA"},
		{"2", "03/05/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "Central", "624", "", "MAIN", "400", "STRONG-ARM", "nan", "X", "X", "30", "", "-", "IC"},
		{"3", "02/27/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "Newton", "330", "", "", "", "", "", "M", "", "40", "502.0", "", "IC"},
		{"4", "not a date", "03/01/2020 12:00:00 AM", "Newton", "330", "", "", "102", "HAND GUN", "1822", "", "W", "abc", "101", "STREET", ""},
		{"5", "03/02/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "", "330", "", "", "", "", "None", "M", "B", "150", "101", "STREET", "IC"},
	}
}

func TestApply_DropsStructuralColumns(t *testing.T) {
	cleaned, report, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	for _, col := range []string{"Crm Cd 1", "Crm Cd 2", "Cross Street"} {
		assert.False(t, cleaned.Has(col), "column %s should be dropped", col)
	}
	assert.Equal(t, 5, cleaned.Nrow())

	res, ok := report.Result("classification_codes")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"Crm Cd 1", "Crm Cd 2"}, res.Columns)
	assert.ElementsMatch(t, []string{"Crm Cd 3", "Crm Cd 4"}, res.Absent)
	assert.False(t, res.Skipped)
}

func TestApply_WeaponFill(t *testing.T) {
	cleaned, _, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	codes := column(t, cleaned, "Weapon Used Cd")
	descs := column(t, cleaned, "Weapon Desc")
	assert.Equal(t, []string{"0", "400", "0", "102", "0"}, codes)
	assert.Equal(t, []string{"No weapon", "STRONG-ARM", "No weapon", "HAND GUN", "No weapon"}, descs)

	for i := range codes {
		assert.Equal(t, codes[i] == "0", descs[i] == model.NoWeaponLabel, "row %d", i)
	}
}

func TestWeaponPair_InconsistentCells(t *testing.T) {
	tbl, err := frame.FromRecords([][]string{
		{"Weapon Used Cd", "Weapon Desc"},
		{"", "KNIFE"},
		{"500", "No weapon"},
		{"0", "KNIFE"},
		{"abc", ""},
	})
	require.NoError(t, err)

	rule := DefaultRules(model.DefaultSchema())[2]
	require.Equal(t, PolicyWeaponPair, rule.Policy.Kind)

	updates := weaponPair(tbl, rule)
	require.Len(t, updates, 2)

	var codes, descs []string
	for i := range updates[0].values {
		codes = append(codes, updates[0].values[i].String)
		descs = append(descs, updates[1].values[i].String)
	}
	assert.Equal(t, []string{"-1", "0", "-1", "0"}, codes)
	assert.Equal(t, []string{"KNIFE", "No weapon", "KNIFE", "No weapon"}, descs)
	assert.Equal(t, ReasonInconsistent, updates[0].reasons[1])
	assert.Equal(t, ReasonNotNumeric, updates[0].reasons[3])
}

func TestApply_ModusOperandi(t *testing.T) {
	cleaned, _, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	assert.Equal(t, []string{"0416 0334", "None", "None", "1822", "None"}, column(t, cleaned, "Mocodes"))
}

func TestApply_VictimSexAndDescent(t *testing.T) {
	cleaned, _, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	assert.Equal(t, []string{"F", "Unknown", "M", "Unknown", "M"}, column(t, cleaned, "Vict Sex"))
	assert.Equal(t, []string{"H", "Unknown", "Unknown", "W", "B"}, column(t, cleaned, "Vict Descent"))
}

func TestApply_DescentKeepsHispanicCode(t *testing.T) {
	row := sampleRows()[0]
	row[10], row[11] = "H", "H"
	cleaned, _, err := newTestEngine(t, false).Apply(rawTable(t, row))
	require.NoError(t, err)

	assert.Equal(t, []string{"Unknown"}, column(t, cleaned, "Vict Sex"))
	assert.Equal(t, []string{"H"}, column(t, cleaned, "Vict Descent"))
}

func TestApply_OverflowingCodeIsFilled(t *testing.T) {
	rows := sampleRows()
	rows[0][13] = "9999999999999999999"
	rows[1][7] = "99999999999999999999"
	cleaned, _, err := newTestEngine(t, false).Apply(rawTable(t, rows...))
	require.NoError(t, err)

	assert.Equal(t, "-1", column(t, cleaned, "Premis Cd")[0])
	// description STRONG-ARM is kept, the unreadable code becomes unknown
	assert.Equal(t, "-1", column(t, cleaned, "Weapon Used Cd")[1])
	assert.Equal(t, "STRONG-ARM", column(t, cleaned, "Weapon Desc")[1])
}

func TestApply_VictimAgeMedian(t *testing.T) {
	cleaned, report, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	// valid ages are 30 and 40, so the median is 35
	assert.Equal(t, []string{"35", "30", "40", "35", "35"}, column(t, cleaned, "Vict Age"))

	res, ok := report.Result("victim_age")
	require.True(t, ok)
	assert.Equal(t, "median=35", res.Statistic)
	assert.Equal(t, 2, res.Reasons[ReasonOutOfRange])
	assert.Equal(t, 1, res.Reasons[ReasonNotNumeric])

	for _, v := range cleaned.Ints("Vict Age") {
		require.True(t, v.Valid)
		assert.GreaterOrEqual(t, v.Int64, int64(model.MinVictimAge))
		assert.LessOrEqual(t, v.Int64, int64(model.MaxVictimAge))
	}
}

func TestApply_PremiseAndStatus(t *testing.T) {
	cleaned, report, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	assert.Equal(t, []string{"101", "-1", "502", "101", "101"}, column(t, cleaned, "Premis Cd"))
	assert.Equal(t, []string{"STREET", "NO DESC", "NO DESC", "STREET", "STREET"}, column(t, cleaned, "Premis Desc"))
	assert.Equal(t, []string{"AA", "IC", "IC", "IC", "IC"}, column(t, cleaned, "Status"))

	res, ok := report.Result("status")
	require.True(t, ok)
	assert.Equal(t, "mode=IC", res.Statistic)
}

func TestApply_DerivedColumns(t *testing.T) {
	cleaned, report, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	assert.Equal(t, []string{"Adult", "Young Adult", "Adult", "Adult", "Adult"}, column(t, cleaned, "Vict Age Group"))
	assert.Equal(t, []string{"0", "4", "<missing>", "<missing>", "1"}, column(t, cleaned, "Reporting Delay (days)"))
	assert.Equal(t, []string{"2020-03-01 00:00:00", "2020-03-05 00:00:00", "2020-02-27 00:00:00", "<missing>", "2020-03-02 00:00:00"},
		column(t, cleaned, "Date Rptd"))

	for _, v := range cleaned.Ints("Reporting Delay (days)") {
		if v.Valid {
			assert.GreaterOrEqual(t, v.Int64, int64(0))
		}
	}

	res, ok := report.Result("reporting_delay_days")
	require.True(t, ok)
	assert.Equal(t, 1, res.Reasons[ReasonNegativeDelay])
}

func TestApply_NoNullsInRepairedColumns(t *testing.T) {
	cleaned, _, err := newTestEngine(t, false).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	for _, col := range []string{"Weapon Used Cd", "Weapon Desc", "Mocodes", "Vict Sex", "Vict Descent",
		"Vict Age", "Premis Cd", "Premis Desc", "Status", "Vict Age Group"} {
		for i, v := range cleaned.Strings(col) {
			assert.True(t, v.Valid, "%s row %d is missing", col, i)
		}
	}
}

func TestApply_Idempotent(t *testing.T) {
	engine := newTestEngine(t, false)
	once, _, err := engine.Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)

	twice, report, err := engine.Apply(once)
	require.NoError(t, err)

	assert.Equal(t, once.Records(), twice.Records())
	assert.Zero(t, report.TotalChanged())
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	input := rawTable(t, sampleRows()...)
	before := input.Records()

	_, _, err := newTestEngine(t, false).Apply(input)
	require.NoError(t, err)

	assert.Equal(t, before, input.Records())
}

func TestApply_SchemaDriftSkipsRules(t *testing.T) {
	tbl, err := frame.FromRecords([][]string{
		{"DR_NO", "Vict Age"},
		{"1", "20"},
		{"2", ""},
		{"3", "40"},
	})
	require.NoError(t, err)

	cleaned, report, err := newTestEngine(t, false).Apply(tbl)
	require.NoError(t, err)

	assert.Equal(t, []string{"20", "30", "40"}, column(t, cleaned, "Vict Age"))
	assert.Contains(t, report.SkippedRules(), "weapon")
	assert.Contains(t, report.SkippedRules(), "status")
	assert.Contains(t, report.SkippedRules(), "reporting_delay_days")
	assert.False(t, cleaned.Has("Reporting Delay (days)"))
}

func TestApply_RecordsOperations(t *testing.T) {
	_, report, err := newTestEngine(t, true).Apply(rawTable(t, sampleRows()...))
	require.NoError(t, err)
	require.NotEmpty(t, report.Operations)

	var found bool
	for _, op := range report.Operations {
		assert.Equal(t, "test", op.RunID)
		if op.ColumnName == "Vict Age" && op.RowIdentifier == "1" {
			found = true
			assert.Equal(t, "-5", op.OriginalValue)
			assert.Equal(t, "35", op.NewValue)
			assert.Equal(t, ReasonOutOfRange, op.CleaningReason)
			assert.Equal(t, string(opImputeMedian), op.CleaningOperation)
		}
	}
	assert.True(t, found)
	assert.Len(t, report.Operations, report.TotalChanged())
}

func TestNewEngine_RejectsInvalidRules(t *testing.T) {
	_, err := NewEngine(model.DefaultSchema(), []Rule{{Name: "x", Columns: []string{"a"}, Policy: Policy{Kind: "bogus"}}},
		zap.NewNop(), Options{})
	assert.ErrorIs(t, err, ErrRuleUnknownPolicy)

	_, err = NewEngine(model.DefaultSchema(), nil, nil, Options{})
	assert.Error(t, err)
}
