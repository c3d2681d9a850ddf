package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/cleaner"
	"github.com/David-Botos/crime-normalizer/pkg/diagnostics"
)

// Action defines the recommended action after an error
type Action int

const (
	// ActionContinue indicates processing should continue despite the error
	ActionContinue Action = iota
	// ActionAbort indicates the run should stop
	ActionAbort
)

// ErrorCategory defines categories of issues found during a run
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	// A rule references a column absent from the input
	ErrorCategorySchemaDrift
	// A value lies outside its column's expected domain
	ErrorCategoryValueDomain
	// A derived value violates a domain invariant, such as a negative delay
	ErrorCategoryLogicalImpossibility
	// A data quality finding that is reported and not acted on
	ErrorCategoryDiagnostic
	// Reading the source or writing an output file failed
	ErrorCategoryIO
	// Writing to the database failed
	ErrorCategorySink
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategorySchemaDrift:
		return "SchemaDrift"
	case ErrorCategoryValueDomain:
		return "ValueDomain"
	case ErrorCategoryLogicalImpossibility:
		return "LogicalImpossibility"
	case ErrorCategoryDiagnostic:
		return "Diagnostic"
	case ErrorCategoryIO:
		return "IO"
	case ErrorCategorySink:
		return "Sink"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// MarshalText lets categories key JSON maps by name
func (ec ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(ec.String()), nil
}

// Fatal reports whether issues of this category stop the run
func (ec ErrorCategory) Fatal() bool {
	return ec == ErrorCategoryIO || ec == ErrorCategorySink
}

// CategoryForReason maps a repair reason to the category it evidences.
// Routine repairs such as filling a missing value are not issues.
func CategoryForReason(reason string) ErrorCategory {
	switch reason {
	case cleaner.ReasonSentinelValue, cleaner.ReasonNotNumeric, cleaner.ReasonOutOfRange,
		cleaner.ReasonInconsistent, cleaner.ReasonUnparseableDate:
		return ErrorCategoryValueDomain
	case cleaner.ReasonNegativeDelay:
		return ErrorCategoryLogicalImpossibility
	default:
		return ErrorCategoryNone
	}
}

// ErrorRecord represents one issue, or a group of identical issues, found during a run
type ErrorRecord struct {
	Category   ErrorCategory
	Stage      string
	Rule       string
	ColumnName string
	Count      int
	Error      error
	Message    string // Derived from Error but stored for serialization
	Timestamp  time.Time
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Count:     1,
		Error:     err,
		Timestamp: time.Now(),
	}

	if err != nil {
		record.Message = err.Error()
	}

	return record
}

// WithStage adds the pipeline stage to the error record
func (r ErrorRecord) WithStage(stage string) ErrorRecord {
	r.Stage = stage
	return r
}

// WithRule adds the rule and column to the error record
func (r ErrorRecord) WithRule(rule, column string) ErrorRecord {
	r.Rule = rule
	r.ColumnName = column
	return r
}

// WithCount sets how many occurrences the record stands for
func (r ErrorRecord) WithCount(count int) ErrorRecord {
	r.Count = count
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.Stage != "" {
		sb.WriteString(fmt.Sprintf("Stage: %s ", r.Stage))
	}

	if r.Rule != "" {
		sb.WriteString(fmt.Sprintf("Rule: %s ", r.Rule))
	}

	if r.ColumnName != "" {
		sb.WriteString(fmt.Sprintf("Column: %s ", r.ColumnName))
	}

	if r.Count > 1 {
		sb.WriteString(fmt.Sprintf("Count: %d ", r.Count))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	return strings.TrimSpace(sb.String())
}

// ErrorHandler collects the issues of a run
type ErrorHandler struct {
	logger       *zap.Logger
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	mu           sync.Mutex
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		maxSamples:   5, // Store up to 5 sample errors per category
	}
}

// HandleError records an issue and determines the action
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	if record.Category.Fatal() {
		if eh.logger != nil {
			eh.logger.Error("Fatal error during run",
				zap.String("category", record.Category.String()),
				zap.String("stage", record.Stage),
				zap.String("error", record.Message))
		}
		return ActionAbort
	}
	return ActionContinue
}

// RecordError saves an issue occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	count := record.Count
	if count <= 0 {
		count = 1
	}
	eh.errorCounts[record.Category] += count

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if eh.logger != nil {
		logLevel := zap.InfoLevel
		switch record.Category {
		case ErrorCategorySchemaDrift, ErrorCategoryLogicalImpossibility:
			logLevel = zap.WarnLevel
		case ErrorCategoryIO, ErrorCategorySink:
			logLevel = zap.ErrorLevel
		}

		eh.logger.Log(logLevel, "Run issue",
			zap.String("category", record.Category.String()),
			zap.String("stage", record.Stage),
			zap.String("rule", record.Rule),
			zap.String("column", record.ColumnName),
			zap.Int("count", count),
			zap.String("error", record.Message))
	}
}

// RecordCleaning turns a cleaning report into categorised records: skipped
// rules become schema drift, domain repairs become value-domain or
// logical-impossibility records with their counts.
func (eh *ErrorHandler) RecordCleaning(report *cleaner.Report) {
	results := append(append([]cleaner.RuleResult{}, report.Rules...), report.Derived...)
	for _, res := range results {
		if len(res.Absent) > 0 {
			category := ErrorCategorySchemaDrift
			msg := fmt.Sprintf("columns absent from input: %s", strings.Join(res.Absent, ", "))
			if res.Skipped {
				msg = "rule skipped, " + msg
			}
			eh.RecordError(ErrorRecord{
				Category: category, Stage: StageClean, Rule: res.Rule,
				Count: 1, Message: msg, Timestamp: time.Now(),
			})
		}

		reasons := make([]string, 0, len(res.Reasons))
		for reason := range res.Reasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		for _, reason := range reasons {
			category := CategoryForReason(reason)
			if category == ErrorCategoryNone || res.Reasons[reason] == 0 {
				continue
			}
			eh.RecordError(ErrorRecord{
				Category:   category,
				Stage:      StageClean,
				Rule:       res.Rule,
				ColumnName: strings.Join(res.Columns, ","),
				Count:      res.Reasons[reason],
				Message:    reason,
				Timestamp:  time.Now(),
			})
		}
	}
}

// RecordDuplicates reports duplicated record ids without acting on them
func (eh *ErrorHandler) RecordDuplicates(column string, duplicates []diagnostics.Duplicate) {
	for _, d := range duplicates {
		eh.RecordError(ErrorRecord{
			Category:   ErrorCategoryDiagnostic,
			Stage:      StageDiagnose,
			ColumnName: column,
			Count:      1,
			Message:    fmt.Sprintf("record id %s appears %d times", d.Key, d.Occurrences),
			Timestamp:  time.Now(),
		})
	}
}

// GetErrorSummary returns issue counts by category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int)
	for category, count := range eh.errorCounts {
		summary[category] = count
	}

	return summary
}

// GetErrorSamples returns sample issues for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord)
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}

	return samples
}

// HasFatal reports whether any fatal issue was recorded
func (eh *ErrorHandler) HasFatal() bool {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	return eh.errorCounts[ErrorCategoryIO] > 0 || eh.errorCounts[ErrorCategorySink] > 0
}

// WrapError creates a new error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
