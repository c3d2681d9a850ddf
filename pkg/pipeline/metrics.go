package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/cleaner"
)

// Pipeline stages
const (
	StageLoad     = "load"
	StageDiagnose = "diagnose"
	StageClean    = "clean"
	StageQuery    = "query"
	StageWrite    = "write"
	StageExport   = "export"
	StagePersist  = "persist"
)

// StageMetrics tracks the timing of one stage
type StageMetrics struct {
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Err       string
}

// Duration returns how long the stage ran
func (sm *StageMetrics) Duration() time.Duration {
	if sm.EndTime.IsZero() {
		return time.Since(sm.StartTime)
	}
	return sm.EndTime.Sub(sm.StartTime)
}

// RunMetrics tracks metrics for one pipeline run
type RunMetrics struct {
	mu               sync.Mutex
	logger           *zap.Logger
	RunID            string
	StartTime        time.Time
	EndTime          time.Time
	Stages           []*StageMetrics
	RowsRead         int
	RowsWritten      int
	RowsPersisted    int64
	DuplicateKeys    int
	RepairedByRule   map[string]int
	SkippedRules     []string
	CleaningOps      int
	AggregateQueries int
	ErrorCounts      map[ErrorCategory]int
}

// NewRunMetrics creates a new RunMetrics instance
func NewRunMetrics(runID string, logger *zap.Logger) *RunMetrics {
	return &RunMetrics{
		logger:         logger,
		RunID:          runID,
		StartTime:      time.Now(),
		RepairedByRule: make(map[string]int),
		ErrorCounts:    make(map[ErrorCategory]int),
	}
}

// StartStage begins timing a stage
func (rm *RunMetrics) StartStage(name string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.Stages = append(rm.Stages, &StageMetrics{Name: name, StartTime: time.Now()})
	if rm.logger != nil {
		rm.logger.Debug("Started stage", zap.String("stage", name))
	}
}

// EndStage completes timing of the most recent stage with that name
func (rm *RunMetrics) EndStage(name string, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for i := len(rm.Stages) - 1; i >= 0; i-- {
		sm := rm.Stages[i]
		if sm.Name != name || !sm.EndTime.IsZero() {
			continue
		}
		sm.EndTime = time.Now()
		if err != nil {
			sm.Err = err.Error()
		}
		if rm.logger != nil {
			rm.logger.Info("Completed stage",
				zap.String("stage", name),
				zap.Duration("duration", sm.Duration()),
				zap.Bool("failed", err != nil))
		}
		return
	}
}

// RecordCleaning copies per-rule repair counts from a cleaning report
func (rm *RunMetrics) RecordCleaning(report *cleaner.Report) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, res := range append(append([]cleaner.RuleResult{}, report.Rules...), report.Derived...) {
		rm.RepairedByRule[res.Rule] += res.Changed
	}
	rm.SkippedRules = append(rm.SkippedRules, report.SkippedRules()...)
	rm.CleaningOps += len(report.Operations)
}

// RecordErrors copies the error summary
func (rm *RunMetrics) RecordErrors(summary map[ErrorCategory]int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for category, count := range summary {
		rm.ErrorCounts[category] = count
	}
}

// Complete marks the run as complete
func (rm *RunMetrics) Complete() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.EndTime = time.Now()

	if rm.logger != nil {
		rm.logger.Info("Run completed",
			zap.String("run_id", rm.RunID),
			zap.Duration("totalDuration", rm.EndTime.Sub(rm.StartTime)),
			zap.Int("rowsRead", rm.RowsRead),
			zap.Int("rowsWritten", rm.RowsWritten),
			zap.Int("repairedCells", rm.totalRepaired()),
			zap.Int64("rowsPersisted", rm.RowsPersisted))
	}
}

// Duration returns the total duration of the run
func (rm *RunMetrics) Duration() time.Duration {
	if rm.EndTime.IsZero() {
		return time.Since(rm.StartTime)
	}
	return rm.EndTime.Sub(rm.StartTime)
}

func (rm *RunMetrics) totalRepaired() int {
	total := 0
	for _, n := range rm.RepairedByRule {
		total += n
	}
	return total
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// GenerateMetricsReport creates a text metrics report
func (rm *RunMetrics) GenerateMetricsReport() string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`
Run Metrics Report
==================
Run ID:                  %s
Duration:                %s

Data Summary
------------
Rows Read:               %d
Rows Written:            %d
Rows Persisted:          %d
Duplicated Keys:         %d
Repaired Cells:          %d
Cleaning Ops Recorded:   %d
Aggregate Queries:       %d
`,
		rm.RunID,
		formatDuration(rm.Duration()),
		rm.RowsRead,
		rm.RowsWritten,
		rm.RowsPersisted,
		rm.DuplicateKeys,
		rm.totalRepaired(),
		rm.CleaningOps,
		rm.AggregateQueries,
	))

	sb.WriteString("\nStages\n------\n")
	for _, sm := range rm.Stages {
		status := "ok"
		if sm.Err != "" {
			status = "failed: " + sm.Err
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (%s)\n", sm.Name, formatDuration(sm.Duration()), status))
	}

	sb.WriteString("\nRepairs By Rule\n---------------\n")
	rules := make([]string, 0, len(rm.RepairedByRule))
	for rule := range rm.RepairedByRule {
		rules = append(rules, rule)
	}
	sort.Strings(rules)
	for _, rule := range rules {
		sb.WriteString(fmt.Sprintf("- %s: %d\n", rule, rm.RepairedByRule[rule]))
	}
	if len(rm.SkippedRules) > 0 {
		sb.WriteString(fmt.Sprintf("Skipped: %s\n", strings.Join(rm.SkippedRules, ", ")))
	}

	if len(rm.ErrorCounts) > 0 {
		sb.WriteString("\nIssue Distribution\n------------------\n")
		categories := make([]ErrorCategory, 0, len(rm.ErrorCounts))
		for category := range rm.ErrorCounts {
			categories = append(categories, category)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
		for _, category := range categories {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", category, rm.ErrorCounts[category]))
		}
	}

	return sb.String()
}

// ToJSON serializes metrics to JSON
func (rm *RunMetrics) ToJSON() ([]byte, error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	stages := make(map[string]string, len(rm.Stages))
	for _, sm := range rm.Stages {
		stages[sm.Name] = sm.Duration().String()
	}

	return json.Marshal(struct {
		RunID          string                `json:"runId"`
		Duration       string                `json:"duration"`
		Stages         map[string]string     `json:"stages"`
		RowsRead       int                   `json:"rowsRead"`
		RowsWritten    int                   `json:"rowsWritten"`
		RowsPersisted  int64                 `json:"rowsPersisted"`
		DuplicateKeys  int                   `json:"duplicateKeys"`
		RepairedByRule map[string]int        `json:"repairedByRule"`
		SkippedRules   []string              `json:"skippedRules"`
		ErrorCounts    map[ErrorCategory]int `json:"errorCounts"`
	}{
		RunID:          rm.RunID,
		Duration:       rm.Duration().String(),
		Stages:         stages,
		RowsRead:       rm.RowsRead,
		RowsWritten:    rm.RowsWritten,
		RowsPersisted:  rm.RowsPersisted,
		DuplicateKeys:  rm.DuplicateKeys,
		RepairedByRule: rm.RepairedByRule,
		SkippedRules:   rm.SkippedRules,
		ErrorCounts:    rm.ErrorCounts,
	})
}
