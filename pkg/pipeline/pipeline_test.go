package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
	"github.com/David-Botos/crime-normalizer/pkg/query"
)

var header = []string{
	"DR_NO", "Date Rptd", "DATE OCC", "AREA NAME", "Crm Cd 1", "Crm Cd 2", "Cross Street",
	"Weapon Used Cd", "Weapon Desc", "Mocodes", "Vict Sex", "Vict Descent", "Vict Age",
	"Premis Cd", "Premis Desc", "Status",
}

func sampleRecords() [][]string {
	return [][]string{
		header,
		{"1", "03/01/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "Central", "624", "", "", "", "", "  0416   0334 ", "F", "H", "-5", "101", "STREET", "AA"},
		{"2", "03/05/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "Central", "624", "", "MAIN", "400", "STRONG-ARM", "nan", "X", "X", "30", "", "-", "IC"},
		{"3", "02/27/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "Newton", "330", "", "", "", "", "", "M", "", "40", "502.0", "", "IC"},
		{"4", "not a date", "03/01/2020 12:00:00 AM", "Newton", "330", "", "", "102", "HAND GUN", "1822", "", "W", "abc", "101", "STREET", ""},
		{"5", "03/02/2020 12:00:00 AM", "03/01/2020 12:00:00 AM", "", "330", "", "", "", "", "None", "M", "B", "150", "101", "STREET", "IC"},
	}
}

func writeInput(t *testing.T, dir string, records [][]string) string {
	t.Helper()
	path := filepath.Join(dir, "raw.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(records))
	require.NoError(t, f.Close())
	return path
}

type fakePersister struct {
	ensured     bool
	saved       *model.TableMetadata
	savedRows   int
	operations  int
	auditSchema string
	aggregates  []model.Aggregate
	runID       string
	saveErr     error
	countDelta  int64
}

func (p *fakePersister) EnsureTables(context.Context) error {
	p.ensured = true
	return nil
}

func (p *fakePersister) SaveCleanedTable(_ context.Context, t *frame.Table, meta *model.TableMetadata) (int64, error) {
	if p.saveErr != nil {
		return 0, p.saveErr
	}
	p.saved = meta
	p.savedRows = t.Nrow()
	return int64(t.Nrow()), nil
}

func (p *fakePersister) RecordCleaningOperations(_ context.Context, schema string, ops []model.CleaningOperation) error {
	p.auditSchema = schema
	p.operations = len(ops)
	return nil
}

func (p *fakePersister) SaveAggregates(_ context.Context, runID string, aggs []model.Aggregate) (int64, error) {
	p.runID = runID
	p.aggregates = aggs
	return int64(len(aggs)), nil
}

func (p *fakePersister) VerifyRowCount(_ context.Context, _, _ string, expected int64) (bool, int64, error) {
	actual := int64(p.savedRows) + p.countDelta
	return actual == expected, actual, nil
}

type fakeSource struct {
	records [][]string
	err     error
}

func (s fakeSource) LoadTable(context.Context, int) ([][]string, error) {
	return s.records, s.err
}

func aggregate(t *testing.T, aggs []model.Aggregate, name string) model.Aggregate {
	t.Helper()
	for _, a := range aggs {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("aggregate %s not found", name)
	return model.Aggregate{}
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	opts := Options{
		InputPath:        writeInput(t, dir, sampleRecords()),
		OutputPath:       filepath.Join(dir, "out", "clean.csv"),
		ExcelPath:        filepath.Join(dir, "aggregates.xlsx"),
		RecordOperations: true,
		Console:          &console,
	}
	sink := &fakePersister{}
	runner := NewRunner(opts, zap.NewNop()).WithSink(sink, "crime")

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	// cleaned file
	f, err := os.Open(opts.OutputPath)
	require.NoError(t, err)
	defer f.Close()
	written, err := frame.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, 5, written.Nrow())
	assert.False(t, written.Has("Cross Street"))
	assert.True(t, written.Has("Vict Age Group"))
	assert.True(t, written.Has("Reporting Delay (days)"))

	_, err = os.Stat(opts.ExcelPath)
	assert.NoError(t, err)

	// aggregates
	assert.Len(t, res.Aggregates, 4)
	assert.Empty(t, res.QueryErrors)
	area := aggregate(t, res.Aggregates, query.NameCrimesByArea)
	assert.Equal(t, []model.CountRow{{Key: "Central", Count: 2}, {Key: "Newton", Count: 2}}, area.Rows)
	valid := aggregate(t, res.Aggregates, query.NameValidAge)
	assert.Equal(t, 5, valid.Total())

	// issues
	summary := res.Errors.GetErrorSummary()
	assert.Equal(t, 1, summary[ErrorCategoryLogicalImpossibility])
	assert.Positive(t, summary[ErrorCategoryValueDomain])
	assert.Positive(t, summary[ErrorCategorySchemaDrift])
	assert.Zero(t, summary[ErrorCategoryDiagnostic])
	assert.False(t, res.Errors.HasFatal())

	// metrics
	assert.Equal(t, 5, res.Metrics.RowsRead)
	assert.Equal(t, 5, res.Metrics.RowsWritten)
	assert.Equal(t, int64(5), res.Metrics.RowsPersisted)
	assert.Equal(t, 5, res.AgeSummary.Count)
	assert.Equal(t, int64(30), res.AgeSummary.Min)
	assert.Equal(t, int64(40), res.AgeSummary.Max)
	assert.InDelta(t, 35.0, res.AgeSummary.Mean, 1e-9)
	assert.Equal(t, "Reporting Delay (days)", res.DelaySummary.Column)
	assert.Equal(t, 3, res.DelaySummary.Count)
	assert.Equal(t, 2, res.DelaySummary.Missing)
	assert.Equal(t, int64(0), res.DelaySummary.Min)
	assert.Equal(t, int64(4), res.DelaySummary.Max)
	assert.Contains(t, console.String(), "numeric summaries")
	assert.Contains(t, console.String(), "repairs by reason")
	assert.Contains(t, res.Metrics.GenerateMetricsReport(), res.RunID)

	// persistence
	assert.True(t, sink.ensured)
	require.NotNil(t, sink.saved)
	assert.Equal(t, "crime", sink.saved.Schema)
	assert.Equal(t, "crime_incidents", sink.saved.Table)
	assert.Equal(t, "crime", sink.auditSchema)
	assert.Positive(t, sink.operations)
	assert.Equal(t, res.RunID, sink.runID)
	assert.Equal(t, runner.RunID(), res.RunID)
	assert.Len(t, sink.aggregates, 4)

	// console
	out := console.String()
	assert.Contains(t, out, "crimes_by_area")
	assert.Contains(t, out, "raw input: 5 rows")
	assert.Contains(t, out, "Run Metrics Report")
}

func TestRunReportsDuplicatesWithoutDroppingRows(t *testing.T) {
	records := sampleRecords()
	dup := append([]string(nil), records[1]...)
	records = append(records, dup)

	dir := t.TempDir()
	runner := NewRunner(Options{
		InputPath:  writeInput(t, dir, records),
		OutputPath: filepath.Join(dir, "clean.csv"),
	}, zap.NewNop())

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, res.Cleaned.Nrow())
	require.Len(t, res.RawProfile.Duplicates, 1)
	assert.Equal(t, "1", res.RawProfile.Duplicates[0].Key)
	assert.Equal(t, 1, res.Errors.GetErrorSummary()[ErrorCategoryDiagnostic])
	assert.Equal(t, 1, res.Metrics.DuplicateKeys)
}

func TestRunFromRecordSource(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(Options{OutputPath: filepath.Join(dir, "clean.csv")}, zap.NewNop()).
		WithSource(fakeSource{records: sampleRecords()})

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Metrics.RowsRead)
	assert.Nil(t, res.Cleaning.Operations)
}

func TestRunSourceFailureIsFatal(t *testing.T) {
	runner := NewRunner(Options{OutputPath: filepath.Join(t.TempDir(), "clean.csv")}, zap.NewNop()).
		WithSource(fakeSource{err: errors.New("warehouse suspended")})

	res, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse suspended")
	assert.True(t, res.Errors.HasFatal())
	assert.Equal(t, 1, res.Errors.GetErrorSummary()[ErrorCategoryIO])
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(Options{
		InputPath:  filepath.Join(dir, "absent.csv"),
		OutputPath: filepath.Join(dir, "clean.csv"),
	}, zap.NewNop())

	res, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, res.Errors.HasFatal())
	_, statErr := os.Stat(filepath.Join(dir, "clean.csv"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = NewRunner(Options{}, zap.NewNop()).Run(context.Background())
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestRunSinkFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	sink := &fakePersister{saveErr: errors.New("connection refused")}
	runner := NewRunner(Options{
		InputPath:  writeInput(t, dir, sampleRecords()),
		OutputPath: filepath.Join(dir, "clean.csv"),
	}, zap.NewNop()).WithSink(sink, "public")

	res, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Errors.GetErrorSummary()[ErrorCategorySink])

	// the cleaned file is written before persistence
	_, statErr := os.Stat(filepath.Join(dir, "clean.csv"))
	assert.NoError(t, statErr)
}

func TestRunRowCountMismatch(t *testing.T) {
	dir := t.TempDir()
	sink := &fakePersister{countDelta: -1}
	runner := NewRunner(Options{
		InputPath:  writeInput(t, dir, sampleRecords()),
		OutputPath: filepath.Join(dir, "clean.csv"),
	}, zap.NewNop()).WithSink(sink, "public")

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisted 4 rows, expected 5")
}

func TestRunWithRulesFile(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`
rules:
  - name: cross_street
    columns: ["Cross Street"]
    class: "n/a"
    policy:
      kind: drop_columns
`), 0o644))

	runner := NewRunner(Options{
		InputPath:  writeInput(t, dir, sampleRecords()),
		OutputPath: filepath.Join(dir, "clean.csv"),
		RulesPath:  rules,
	}, zap.NewNop())

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Cleaned.Has("Cross Street"))
	assert.True(t, res.Cleaned.Has("Crm Cd 1"))
	require.Len(t, res.Cleaning.Rules, 1)
}

func TestRunWithBrokenRulesFile(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(Options{
		InputPath:  writeInput(t, dir, sampleRecords()),
		OutputPath: filepath.Join(dir, "clean.csv"),
		RulesPath:  filepath.Join(dir, "missing.yaml"),
	}, zap.NewNop())

	res, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.True(t, res.Errors.HasFatal())
}

func TestRunHeaderOnlyInput(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		InputPath:  writeInput(t, dir, [][]string{{"DR_NO", "Vict Age", "Status", "AREA NAME"}}),
		OutputPath: filepath.Join(dir, "clean.csv"),
		ExcelPath:  filepath.Join(dir, "aggregates.xlsx"),
	}
	sink := &fakePersister{}

	res, err := NewRunner(opts, zap.NewNop()).WithSink(sink, "public").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Cleaned.Nrow())
	assert.True(t, res.Cleaned.Has("Vict Age Group"))
	assert.True(t, sink.ensured)
	assert.Equal(t, 0, sink.savedRows)
	require.NotEmpty(t, res.Aggregates)
	for _, a := range res.Aggregates {
		assert.Zero(t, a.Total(), a.Name)
	}

	data, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "DR_NO,Vict Age,Status,AREA NAME,Vict Age Group\n", string(data))
}
