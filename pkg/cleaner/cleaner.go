package cleaner

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// Reasons attached to repaired cells
const (
	ReasonMissingValue    = "missing_value"
	ReasonSentinelValue   = "sentinel_value"
	ReasonMissingToken    = "missing_token"
	ReasonWhitespace      = "whitespace_normalized"
	ReasonNotNumeric      = "not_numeric"
	ReasonOutOfRange      = "out_of_range"
	ReasonNumberFormat    = "number_format"
	ReasonInconsistent    = "inconsistent_pair"
	ReasonUnparseableDate = "unparseable_date"
	ReasonDateFormat      = "date_format"
	ReasonNegativeDelay   = "negative_delay"
	ReasonDerived         = "derived"
)

// Options tune what the engine records
type Options struct {
	// RecordOperations keeps a CleaningOperation for every repaired cell
	RecordOperations bool
	// RunID and TableName are stamped on recorded operations
	RunID     string
	TableName string
}

// RuleResult summarises one rule application
type RuleResult struct {
	Rule      string
	Policy    PolicyKind
	Class     model.MissingnessClass
	Columns   []string       // columns the rule touched
	Absent    []string       // referenced columns missing from the input
	Skipped   bool           // true when every referenced column was absent
	Changed   int            // repaired cells
	Reasons   map[string]int // repaired cells by reason
	Statistic string         // computed fill statistic, if any
}

func newRuleResult(r Rule) RuleResult {
	return RuleResult{
		Rule:    r.Name,
		Policy:  r.Policy.Kind,
		Class:   r.Class,
		Reasons: make(map[string]int),
	}
}

// Report describes everything the engine changed
type Report struct {
	Rows       int
	Rules      []RuleResult
	Derived    []RuleResult
	Operations []model.CleaningOperation
}

// SkippedRules returns the names of rules skipped because of schema drift
func (r *Report) SkippedRules() []string {
	var skipped []string
	for _, res := range append(append([]RuleResult(nil), r.Rules...), r.Derived...) {
		if res.Skipped {
			skipped = append(skipped, res.Rule)
		}
	}
	return skipped
}

// ReasonCounts totals repaired cells by reason across rules and derivations
func (r *Report) ReasonCounts() map[string]int {
	counts := make(map[string]int)
	for _, res := range append(append([]RuleResult(nil), r.Rules...), r.Derived...) {
		for reason, n := range res.Reasons {
			counts[reason] += n
		}
	}
	return counts
}

// TotalChanged returns the number of repaired cells
func (r *Report) TotalChanged() int {
	total := 0
	for _, res := range r.Rules {
		total += res.Changed
	}
	for _, res := range r.Derived {
		total += res.Changed
	}
	return total
}

// Result returns the result for a rule by name
func (r *Report) Result(name string) (RuleResult, bool) {
	for _, res := range append(append([]RuleResult(nil), r.Rules...), r.Derived...) {
		if res.Rule == name {
			return res, true
		}
	}
	return RuleResult{}, false
}

// Engine applies an ordered list of column repair rules, then derives the
// age group and reporting delay columns
type Engine struct {
	schema model.Schema
	rules  []Rule
	opts   Options
	logger *zap.Logger
}

// NewEngine validates the rules and creates an engine
func NewEngine(schema model.Schema, rules []Rule, logger *zap.Logger, opts Options) (*Engine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.TableName == "" {
		opts.TableName = "crime_incidents"
	}

	return &Engine{
		schema: schema,
		rules:  rules,
		opts:   opts,
		logger: logger,
	}, nil
}

// Apply runs every rule and derivation over t and returns the cleaned table.
// The input table is not modified. Only internal table errors are returned;
// data problems are repaired and reported.
func (e *Engine) Apply(t *frame.Table) (*frame.Table, *Report, error) {
	report := &Report{Rows: t.Nrow()}
	rowIDs := e.rowIdentifiers(t)

	current := t
	for _, rule := range e.rules {
		next, result, err := e.applyRule(current, rule, rowIDs, report)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		current = next
		report.Rules = append(report.Rules, result)

		if result.Skipped {
			e.logger.Warn("Skipping rule, columns absent from input",
				zap.String("rule", rule.Name),
				zap.Strings("columns", result.Absent))
			continue
		}
		e.logger.Debug("Applied rule",
			zap.String("rule", rule.Name),
			zap.String("policy", string(rule.Policy.Kind)),
			zap.Int("changed", result.Changed),
			zap.String("statistic", result.Statistic))
	}

	derived, results, err := e.derive(current, rowIDs, report)
	if err != nil {
		return nil, nil, err
	}
	report.Derived = results

	e.logger.Info("Cleaned incident table",
		zap.Int("rows", report.Rows),
		zap.Int("changed_cells", report.TotalChanged()),
		zap.Strings("skipped_rules", report.SkippedRules()))

	return derived, report, nil
}

func (e *Engine) applyRule(t *frame.Table, rule Rule, rowIDs []string, report *Report) (*frame.Table, RuleResult, error) {
	result := newRuleResult(rule)
	cols := nonEmpty(rule.Columns)
	for _, c := range cols {
		if !t.Has(c) {
			result.Absent = append(result.Absent, c)
		}
	}
	result.Columns = t.Present(cols...)
	if len(result.Columns) == 0 {
		result.Skipped = true
		return t, result, nil
	}

	if rule.Policy.Kind == PolicyDropColumns {
		next, dropped, err := t.Drop(result.Columns...)
		if err != nil {
			return nil, result, err
		}
		result.Columns = dropped
		return next, result, nil
	}

	updates, stat := runPolicy(t, rule)
	result.Statistic = stat

	next := t
	for _, u := range updates {
		original := t.Strings(u.name)
		e.track(&result, report, u, original, rowIDs)

		var err error
		next, err = writeColumn(next, u)
		if err != nil {
			return nil, result, err
		}
	}
	return next, result, nil
}

// track counts and optionally records every cell whose value changed
func (e *Engine) track(result *RuleResult, report *Report, u columnUpdate, original []sql.NullString, rowIDs []string) {
	for i, v := range u.values {
		var before sql.NullString
		if original != nil {
			before = original[i]
		}
		reason := u.reasons[i]
		if before == v {
			// Anomalies that leave the cell missing are still counted
			if reason == ReasonNegativeDelay {
				result.Reasons[reason]++
			}
			continue
		}

		if reason == "" {
			reason = ReasonDerived
		}
		result.Changed++
		result.Reasons[reason]++

		if !e.opts.RecordOperations {
			continue
		}
		var originalValue interface{}
		if before.Valid {
			originalValue = before.String
		}
		report.Operations = append(report.Operations, model.CleaningOperation{
			RunID:             e.opts.RunID,
			TableName:         e.opts.TableName,
			ColumnName:        u.name,
			OriginalValue:     originalValue,
			NewValue:          v.String,
			RowIdentifier:     rowIDs[i],
			CleaningOperation: string(u.operation),
			CleaningReason:    reason,
		})
	}
}

// rowIdentifiers uses the record id column when present, the row index otherwise
func (e *Engine) rowIdentifiers(t *frame.Table) []string {
	ids := make([]string, t.Nrow())
	keys := t.Strings(e.schema.RecordID)
	for i := range ids {
		if keys != nil && keys[i].Valid {
			ids[i] = keys[i].String
			continue
		}
		ids[i] = "row:" + strconv.Itoa(i)
	}
	return ids
}

func writeColumn(t *frame.Table, u columnUpdate) (*frame.Table, error) {
	if !u.integer {
		return t.WithStrings(u.name, u.values)
	}

	ints := make([]sql.NullInt64, len(u.values))
	for i, v := range u.values {
		if !v.Valid {
			continue
		}
		n, err := strconv.ParseInt(v.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s row %d: %w", u.name, i, err)
		}
		ints[i] = sql.NullInt64{Int64: n, Valid: true}
	}
	return t.WithInts(u.name, ints)
}
