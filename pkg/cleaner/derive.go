package cleaner

import (
	"database/sql"
	"strconv"

	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// AgeBin is one bucket of the victim age grouping; the upper bound is inclusive
type AgeBin struct {
	Label string
	Upper int
}

// AgeBins are ordered and cover [0, 100]. The lower bound of the first bin
// is inclusive, every other lower bound is exclusive.
var AgeBins = []AgeBin{
	{Label: "Child", Upper: 12},
	{Label: "Teen", Upper: 18},
	{Label: "Young Adult", Upper: 30},
	{Label: "Adult", Upper: 50},
	{Label: "Middle Age", Upper: 70},
	{Label: "Senior", Upper: 100},
}

// AgeGroup returns the bucket label for an age. ok is false outside [0, 100].
func AgeGroup(age int64) (string, bool) {
	if age < model.MinVictimAge {
		return "", false
	}
	for _, bin := range AgeBins {
		if age <= int64(bin.Upper) {
			return bin.Label, true
		}
	}
	return "", false
}

// derive runs after every rule: it needs the imputed victim age
func (e *Engine) derive(t *frame.Table, rowIDs []string, report *Report) (*frame.Table, []RuleResult, error) {
	var results []RuleResult

	next, res, err := e.deriveAgeGroup(t, rowIDs, report)
	if err != nil {
		return nil, nil, err
	}
	results = append(results, res)

	next, dateResults, err := e.deriveReportingDelay(next, rowIDs, report)
	if err != nil {
		return nil, nil, err
	}
	results = append(results, dateResults...)

	return next, results, nil
}

func (e *Engine) deriveAgeGroup(t *frame.Table, rowIDs []string, report *Report) (*frame.Table, RuleResult, error) {
	s := e.schema
	result := RuleResult{
		Rule:    "victim_age_group",
		Class:   model.MissingNotApplicable,
		Reasons: make(map[string]int),
	}
	if !t.Has(s.VictimAge) || s.VictimAgeGroup == "" {
		result.Skipped = true
		result.Absent = []string{s.VictimAge}
		return t, result, nil
	}
	result.Columns = []string{s.VictimAgeGroup}

	ages := t.Ints(s.VictimAge)
	u := newUpdate(s.VictimAgeGroup, len(ages), opDerive)
	for i, age := range ages {
		if !age.Valid {
			u.setMissing(i, ReasonMissingValue)
			continue
		}
		label, ok := AgeGroup(age.Int64)
		if !ok {
			u.setMissing(i, ReasonOutOfRange)
			continue
		}
		u.set(i, label, ReasonDerived)
	}

	e.track(&result, report, u, t.Strings(s.VictimAgeGroup), rowIDs)
	next, err := writeColumn(t, u)
	return next, result, err
}

// deriveReportingDelay rewrites both date columns in the canonical layout
// (unparseable cells become missing) and derives the delay in days.
// A negative delay is set to missing, never clamped.
func (e *Engine) deriveReportingDelay(t *frame.Table, rowIDs []string, report *Report) (*frame.Table, []RuleResult, error) {
	s := e.schema
	var results []RuleResult

	parsed := make(map[string][]sql.NullTime)
	next := t
	for _, col := range []string{s.DateOccurred, s.DateReported} {
		result := RuleResult{Rule: "parse_" + col, Class: model.MissingNotApplicable, Reasons: make(map[string]int)}
		if !next.Has(col) {
			result.Skipped = true
			result.Absent = []string{col}
			results = append(results, result)
			continue
		}
		result.Columns = []string{col}

		values := next.Strings(col)
		times := make([]sql.NullTime, len(values))
		u := newUpdate(col, len(values), opParseDate)
		for i, v := range values {
			if !v.Valid {
				u.setMissing(i, ReasonMissingValue)
				continue
			}
			ts, ok := ParseIncidentTime(v.String)
			if !ok {
				u.setMissing(i, ReasonUnparseableDate)
				continue
			}
			times[i] = sql.NullTime{Time: ts, Valid: true}
			formatted := ts.Format(CanonicalDateLayout)
			reason := ""
			if formatted != v.String {
				reason = ReasonDateFormat
			}
			u.set(i, formatted, reason)
		}
		parsed[col] = times

		e.track(&result, report, u, values, rowIDs)
		var err error
		if next, err = writeColumn(next, u); err != nil {
			return nil, nil, err
		}
		results = append(results, result)
	}

	delay := RuleResult{Rule: "reporting_delay_days", Class: model.MissingNotApplicable, Reasons: make(map[string]int)}
	occurred, okOcc := parsed[s.DateOccurred]
	reported, okRep := parsed[s.DateReported]
	if !okOcc || !okRep || s.ReportingDelayDays == "" {
		delay.Skipped = true
		for _, col := range []string{s.DateOccurred, s.DateReported} {
			if !next.Has(col) {
				delay.Absent = append(delay.Absent, col)
			}
		}
		return next, append(results, delay), nil
	}
	delay.Columns = []string{s.ReportingDelayDays}

	u := newUpdate(s.ReportingDelayDays, next.Nrow(), opDerive)
	u.integer = true
	for i := range occurred {
		if !occurred[i].Valid || !reported[i].Valid {
			u.setMissing(i, ReasonMissingValue)
			continue
		}
		days, ok := DelayDays(occurred[i].Time, reported[i].Time)
		if !ok {
			u.setMissing(i, ReasonNegativeDelay)
			continue
		}
		u.set(i, strconv.FormatInt(days, 10), ReasonDerived)
	}

	e.track(&delay, report, u, next.Strings(s.ReportingDelayDays), rowIDs)
	next, err := writeColumn(next, u)
	if err != nil {
		return nil, nil, err
	}
	return next, append(results, delay), nil
}
