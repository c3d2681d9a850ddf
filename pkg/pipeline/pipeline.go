package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/cleaner"
	"github.com/David-Botos/crime-normalizer/pkg/diagnostics"
	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
	"github.com/David-Botos/crime-normalizer/pkg/query"
	"github.com/David-Botos/crime-normalizer/pkg/report"
)

// ErrNoInput is returned when neither an input file nor a record source is set
var ErrNoInput = errors.New("no input file or record source configured")

// Options configures a pipeline run
type Options struct {
	InputPath        string
	OutputPath       string
	ExcelPath        string // empty disables the workbook export
	RulesPath        string // empty uses the built-in rules
	TableName        string
	RecordOperations bool
	BatchSize        int
	Console          io.Writer // text reports are rendered here when set
}

// RecordSource supplies raw records, header first
type RecordSource interface {
	LoadTable(ctx context.Context, batchSize int) ([][]string, error)
}

// Persister writes run results to a database
type Persister interface {
	EnsureTables(ctx context.Context) error
	SaveCleanedTable(ctx context.Context, t *frame.Table, meta *model.TableMetadata) (int64, error)
	RecordCleaningOperations(ctx context.Context, schemaName string, operations []model.CleaningOperation) error
	SaveAggregates(ctx context.Context, runID string, aggregates []model.Aggregate) (int64, error)
	VerifyRowCount(ctx context.Context, schema, table string, expected int64) (bool, int64, error)
}

// Result holds everything a run produced
type Result struct {
	RunID        string
	Schema       model.Schema
	Cleaned      *frame.Table
	Cleaning     *cleaner.Report
	RawProfile   diagnostics.Profile
	CleanProfile diagnostics.Profile
	AgeSummary   diagnostics.NumericSummary
	DelaySummary diagnostics.NumericSummary
	Aggregates   []model.Aggregate
	QueryErrors  map[string]error
	Metrics      *RunMetrics
	Errors       *ErrorHandler
}

// Runner executes load, diagnose, clean, query, write, export and persist
type Runner struct {
	opts       Options
	logger     *zap.Logger
	source     RecordSource
	sink       Persister
	sinkSchema string
	runID      string
}

// NewRunner creates a runner with a fresh run id
func NewRunner(opts Options, logger *zap.Logger) *Runner {
	if opts.TableName == "" {
		opts.TableName = "crime_incidents"
	}
	runID := uuid.NewString()
	return &Runner{
		opts:   opts,
		logger: logger.Named("pipeline").With(zap.String("run_id", runID)),
		runID:  runID,
	}
}

// WithSource reads raw records from src instead of the input file
func (r *Runner) WithSource(src RecordSource) *Runner {
	r.source = src
	return r
}

// WithSink persists results through p into schema
func (r *Runner) WithSink(p Persister, schema string) *Runner {
	r.sink = p
	r.sinkSchema = schema
	return r
}

// RunID returns the id stamped on every output of this runner
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the pipeline. Data issues are recorded and never stop the
// run; input, output and database failures do.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:   r.runID,
		Metrics: NewRunMetrics(r.runID, r.logger),
		Errors:  NewErrorHandler(r.logger),
	}
	defer func() {
		res.Metrics.RecordErrors(res.Errors.GetErrorSummary())
		res.Metrics.Complete()
	}()

	schema, rules, err := r.loadRules()
	if err != nil {
		return res, r.fail(res, StageLoad, ErrorCategoryIO, err)
	}
	res.Schema = schema

	// Load
	res.Metrics.StartStage(StageLoad)
	raw, err := r.load(ctx)
	res.Metrics.EndStage(StageLoad, err)
	if err != nil {
		return res, r.fail(res, StageLoad, ErrorCategoryIO, err)
	}
	res.Metrics.RowsRead = raw.Nrow()

	// Diagnose the raw input
	res.Metrics.StartStage(StageDiagnose)
	res.RawProfile = diagnostics.Run(raw, schema.RecordID)
	res.Errors.RecordDuplicates(schema.RecordID, res.RawProfile.Duplicates)
	res.Metrics.DuplicateKeys = len(res.RawProfile.Duplicates)
	res.Metrics.EndStage(StageDiagnose, nil)

	// Clean and derive
	res.Metrics.StartStage(StageClean)
	engine, err := cleaner.NewEngine(schema, rules, r.logger, cleaner.Options{
		RecordOperations: r.opts.RecordOperations,
		RunID:            r.runID,
		TableName:        r.opts.TableName,
	})
	if err != nil {
		res.Metrics.EndStage(StageClean, err)
		return res, WrapError(err, "failed to build cleaning engine")
	}
	cleaned, cleaning, err := engine.Apply(raw)
	res.Metrics.EndStage(StageClean, err)
	if err != nil {
		return res, WrapError(err, "cleaning failed")
	}
	res.Cleaned = cleaned
	res.Cleaning = cleaning
	res.Errors.RecordCleaning(cleaning)
	res.Metrics.RecordCleaning(cleaning)

	res.CleanProfile = diagnostics.Run(cleaned, schema.RecordID, schema.VictimAge, schema.ReportingDelayDays)
	for _, s := range res.CleanProfile.Summaries {
		switch s.Column {
		case schema.VictimAge:
			res.AgeSummary = s
		case schema.ReportingDelayDays:
			res.DelaySummary = s
		}
	}

	// Query
	res.Metrics.StartStage(StageQuery)
	res.Aggregates, res.QueryErrors = query.RunAll(cleaned, schema)
	for name, qerr := range res.QueryErrors {
		res.Errors.RecordError(NewErrorRecord(qerr, ErrorCategorySchemaDrift).WithStage(StageQuery).WithRule(name, ""))
	}
	res.Metrics.AggregateQueries = len(res.Aggregates)
	res.Metrics.EndStage(StageQuery, nil)

	// Write the cleaned table
	res.Metrics.StartStage(StageWrite)
	err = writeCSV(r.opts.OutputPath, cleaned)
	res.Metrics.EndStage(StageWrite, err)
	if err != nil {
		return res, r.fail(res, StageWrite, ErrorCategoryIO, err)
	}
	res.Metrics.RowsWritten = cleaned.Nrow()

	// Export the workbook
	if r.opts.ExcelPath != "" {
		res.Metrics.StartStage(StageExport)
		err = r.workbook(res).Save(r.opts.ExcelPath)
		res.Metrics.EndStage(StageExport, err)
		if err != nil {
			return res, r.fail(res, StageExport, ErrorCategoryIO, err)
		}
	}

	if r.opts.Console != nil {
		if err := r.render(r.opts.Console, res); err != nil {
			return res, r.fail(res, StageExport, ErrorCategoryIO, err)
		}
	}

	// Persist
	if r.sink != nil {
		res.Metrics.StartStage(StagePersist)
		err = r.persist(ctx, res)
		res.Metrics.EndStage(StagePersist, err)
		if err != nil {
			return res, r.fail(res, StagePersist, ErrorCategorySink, err)
		}
	}

	r.logger.Info("Pipeline finished",
		zap.Int("rows", cleaned.Nrow()),
		zap.Int("repaired_cells", cleaning.TotalChanged()),
		zap.Strings("skipped_rules", cleaning.SkippedRules()),
		zap.Int("duplicate_keys", len(res.RawProfile.Duplicates)))
	return res, nil
}

func (r *Runner) fail(res *Result, stage string, category ErrorCategory, err error) error {
	res.Errors.HandleError(NewErrorRecord(err, category).WithStage(stage))
	return WrapError(err, fmt.Sprintf("%s stage failed", stage))
}

func (r *Runner) loadRules() (model.Schema, []cleaner.Rule, error) {
	if r.opts.RulesPath == "" {
		schema := model.DefaultSchema()
		return schema, cleaner.DefaultRules(schema), nil
	}
	schema, rules, err := cleaner.LoadRuleSet(r.opts.RulesPath)
	if err != nil {
		return model.Schema{}, nil, err
	}
	r.logger.Info("Loaded rules file",
		zap.String("path", r.opts.RulesPath),
		zap.Int("rules", len(rules)))
	return schema, rules, nil
}

func (r *Runner) load(ctx context.Context) (*frame.Table, error) {
	if r.source != nil {
		records, err := r.source.LoadTable(ctx, r.opts.BatchSize)
		if err != nil {
			return nil, err
		}
		return frame.FromRecords(records)
	}

	if r.opts.InputPath == "" {
		return nil, ErrNoInput
	}
	f, err := os.Open(r.opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	t, err := frame.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.opts.InputPath, err)
	}
	r.logger.Info("Loaded input",
		zap.String("path", r.opts.InputPath),
		zap.Int("rows", t.Nrow()),
		zap.Int("columns", len(t.Names())))
	return t, nil
}

// writeCSV writes to a temporary file and renames it into place
func writeCSV(path string, t *frame.Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cleaned-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.WriteCSV(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cleaned table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

func (r *Runner) workbook(res *Result) report.Workbook {
	return report.Workbook{
		Aggregates: res.Aggregates,
		Profiles: []report.ProfileSheet{
			{Name: "profile_raw", Profile: res.RawProfile},
			{Name: "profile_clean", Profile: res.CleanProfile},
		},
		Cleaning: res.Cleaning,
	}
}

func (r *Runner) render(w io.Writer, res *Result) error {
	if err := report.WriteProfile(w, "raw input", res.RawProfile); err != nil {
		return err
	}
	if err := report.WriteCleaning(w, res.Cleaning); err != nil {
		return err
	}
	if err := report.WriteProfile(w, "cleaned table", res.CleanProfile); err != nil {
		return err
	}
	if err := report.WriteAggregates(w, res.Aggregates); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, res.Metrics.GenerateMetricsReport())
	return err
}

func (r *Runner) persist(ctx context.Context, res *Result) error {
	if err := r.sink.EnsureTables(ctx); err != nil {
		return err
	}

	meta := model.DescribeCleanedTable(r.sinkSchema, r.opts.TableName, res.Cleaned.Names(), res.Schema)
	inserted, err := r.sink.SaveCleanedTable(ctx, res.Cleaned, meta)
	if err != nil {
		return err
	}
	res.Metrics.RowsPersisted = inserted

	if len(res.Cleaning.Operations) > 0 {
		if err := r.sink.RecordCleaningOperations(ctx, r.sinkSchema, res.Cleaning.Operations); err != nil {
			return err
		}
	}

	if _, err := r.sink.SaveAggregates(ctx, r.runID, res.Aggregates); err != nil {
		return err
	}

	ok, actual, err := r.sink.VerifyRowCount(ctx, r.sinkSchema, r.opts.TableName, int64(res.Cleaned.Nrow()))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("persisted %d rows, expected %d", actual, res.Cleaned.Nrow())
	}
	return nil
}
