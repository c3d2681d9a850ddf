package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/David-Botos/crime-normalizer/pkg/cleaner"
	"github.com/David-Botos/crime-normalizer/pkg/diagnostics"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// RenderTable lays out rows as a pipe table padded to display width, so
// wide characters in area or weapon names stay aligned.
func RenderTable(headers []string, rows [][]string) []string {
	colCount := len(headers)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	widths := make([]int, colCount)
	measure := func(row []string) {
		for i := 0; i < len(row) && i < colCount; i++ {
			if w := runewidth.StringWidth(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}
	measure(headers)
	for _, row := range rows {
		measure(row)
	}
	for i := range widths {
		if widths[i] < 3 {
			widths[i] = 3
		}
	}

	line := func(row []string) string {
		var sb strings.Builder
		sb.WriteString("|")
		for j := 0; j < colCount; j++ {
			content := ""
			if j < len(row) {
				content = row[j]
			}
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(content, widths[j]))
			sb.WriteString(" |")
		}
		return sb.String()
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, line(headers))

	var sep strings.Builder
	sep.WriteString("|")
	for _, w := range widths {
		sep.WriteString(" " + strings.Repeat("-", w) + " |")
	}
	lines = append(lines, sep.String())

	for _, row := range rows {
		lines = append(lines, line(row))
	}
	return lines
}

func writeTable(w io.Writer, title string, headers []string, rows [][]string) error {
	if _, err := fmt.Fprintf(w, "\n%s\n", title); err != nil {
		return err
	}
	for _, l := range RenderTable(headers, rows) {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteAggregates prints every aggregate as its own table.
func WriteAggregates(w io.Writer, aggregates []model.Aggregate) error {
	for _, agg := range aggregates {
		rows := make([][]string, 0, len(agg.Rows))
		for _, r := range agg.Rows {
			rows = append(rows, []string{r.Key, strconv.Itoa(r.Count)})
		}
		title := fmt.Sprintf("%s (%d)", agg.Name, agg.Total())
		if err := writeTable(w, title, []string{agg.Key, "count"}, rows); err != nil {
			return fmt.Errorf("failed to write aggregate %s: %w", agg.Name, err)
		}
	}
	return nil
}

var summaryHeaders = []string{"column", "count", "missing", "min", "max", "mean"}

// WriteProfile prints the missing-value profile and any duplicated keys.
func WriteProfile(w io.Writer, title string, p diagnostics.Profile) error {
	rows := make([][]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		rows = append(rows, []string{
			c.Column,
			strconv.Itoa(c.Missing),
			strconv.FormatFloat(c.MissingPercent, 'f', 2, 64),
			strconv.Itoa(c.Distinct),
		})
	}
	heading := fmt.Sprintf("%s: %d rows, %d duplicated keys", title, p.Rows, len(p.Duplicates))
	if err := writeTable(w, heading, []string{"column", "missing", "missing %", "distinct"}, rows); err != nil {
		return err
	}

	if len(p.Summaries) > 0 {
		sumRows := make([][]string, 0, len(p.Summaries))
		for _, s := range p.Summaries {
			sumRows = append(sumRows, []string{
				s.Column,
				strconv.Itoa(s.Count),
				strconv.Itoa(s.Missing),
				strconv.FormatInt(s.Min, 10),
				strconv.FormatInt(s.Max, 10),
				strconv.FormatFloat(s.Mean, 'f', 2, 64),
			})
		}
		if err := writeTable(w, "numeric summaries", summaryHeaders, sumRows); err != nil {
			return err
		}
	}

	if len(p.Duplicates) == 0 {
		return nil
	}
	dupRows := make([][]string, 0, len(p.Duplicates))
	for _, d := range p.Duplicates {
		dupRows = append(dupRows, []string{d.Key, strconv.Itoa(d.Occurrences)})
	}
	return writeTable(w, "duplicated keys", []string{"key", "occurrences"}, dupRows)
}

// WriteCleaning prints one line per rule with the repaired cell count.
func WriteCleaning(w io.Writer, r *cleaner.Report) error {
	results := make([]cleaner.RuleResult, 0, len(r.Rules)+len(r.Derived))
	results = append(results, r.Rules...)
	results = append(results, r.Derived...)

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		status := "applied"
		if res.Skipped {
			status = "skipped"
		}
		rows = append(rows, []string{
			res.Rule,
			string(res.Policy),
			status,
			strconv.Itoa(res.Changed),
			formatReasons(res.Reasons),
			res.Statistic,
		})
	}
	title := fmt.Sprintf("cleaning: %d rows, %d cells repaired", r.Rows, r.TotalChanged())
	if err := writeTable(w, title, []string{"rule", "policy", "status", "changed", "reasons", "statistic"}, rows); err != nil {
		return err
	}

	counts := r.ReasonCounts()
	if len(counts) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(counts))
	for k := range counts {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	reasonRows := make([][]string, 0, len(reasons))
	for _, k := range reasons {
		reasonRows = append(reasonRows, []string{k, strconv.Itoa(counts[k])})
	}
	return writeTable(w, "repairs by reason", []string{"reason", "cells"}, reasonRows)
}

func formatReasons(reasons map[string]int) string {
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, reasons[k]))
	}
	return strings.Join(parts, " ")
}
