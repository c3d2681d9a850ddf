package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/David-Botos/crime-normalizer/pkg/cleaner"
	"github.com/David-Botos/crime-normalizer/pkg/diagnostics"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

const defaultSheet = "Sheet1"

// excel caps sheet names at 31 characters
const maxSheetName = 31

// ProfileSheet names a diagnostics profile for export.
type ProfileSheet struct {
	Name    string
	Profile diagnostics.Profile
}

// Workbook collects everything exported to a single xlsx file.
type Workbook struct {
	Aggregates []model.Aggregate
	Profiles   []ProfileSheet
	Cleaning   *cleaner.Report
}

// Build renders the workbook: one sheet per aggregate, one per profile and
// an optional cleaning summary sheet.
func (wb Workbook) Build() (*excelize.File, error) {
	f := excelize.NewFile()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for _, agg := range wb.Aggregates {
		rows := make([][]interface{}, 0, len(agg.Rows))
		for _, r := range agg.Rows {
			rows = append(rows, []interface{}{r.Key, r.Count})
		}
		if err := writeSheet(f, agg.Name, []interface{}{agg.Key, "count"}, rows, bold); err != nil {
			f.Close()
			return nil, err
		}
	}

	for _, ps := range wb.Profiles {
		rows := make([][]interface{}, 0, len(ps.Profile.Columns))
		for _, c := range ps.Profile.Columns {
			rows = append(rows, []interface{}{c.Column, c.Missing, c.MissingPercent, c.Distinct})
		}
		headers := []interface{}{"column", "missing", "missing_percent", "distinct"}
		if err := writeSheet(f, ps.Name, headers, rows, bold); err != nil {
			f.Close()
			return nil, err
		}

		if len(ps.Profile.Summaries) == 0 {
			continue
		}
		sumRows := make([][]interface{}, 0, len(ps.Profile.Summaries))
		for _, s := range ps.Profile.Summaries {
			sumRows = append(sumRows, []interface{}{s.Column, s.Count, s.Missing, s.Min, s.Max, s.Mean})
		}
		sumHeaders := make([]interface{}, len(summaryHeaders))
		for i, h := range summaryHeaders {
			sumHeaders[i] = h
		}
		if err := writeSheet(f, ps.Name+"_numeric", sumHeaders, sumRows, bold); err != nil {
			f.Close()
			return nil, err
		}
	}

	if wb.Cleaning != nil {
		results := append(append([]cleaner.RuleResult{}, wb.Cleaning.Rules...), wb.Cleaning.Derived...)
		rows := make([][]interface{}, 0, len(results))
		for _, res := range results {
			rows = append(rows, []interface{}{
				res.Rule, string(res.Policy), string(res.Class), res.Skipped,
				res.Changed, formatReasons(res.Reasons), res.Statistic,
			})
		}
		headers := []interface{}{"rule", "policy", "class", "skipped", "changed", "reasons", "statistic"}
		if err := writeSheet(f, "cleaning", headers, rows, bold); err != nil {
			f.Close()
			return nil, err
		}
	}

	if len(f.GetSheetList()) > 1 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to remove default sheet: %w", err)
		}
		f.SetActiveSheet(0)
	}

	return f, nil
}

// Save builds the workbook and writes it to path.
func (wb Workbook) Save(path string) error {
	f, err := wb.Build()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// WriteTo builds the workbook and streams it to w.
func (wb Workbook) WriteTo(w io.Writer) (int64, error) {
	f, err := wb.Build()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return f.WriteTo(w)
}

func writeSheet(f *excelize.File, name string, headers []interface{}, rows [][]interface{}, headerStyle int) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}

	if err := f.SetSheetRow(name, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header of %s: %w", name, err)
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, name, err)
		}
	}
	return nil
}
