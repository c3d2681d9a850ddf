package model

import (
	"time"
)

// MissingnessClass classifies why values of a column are absent
type MissingnessClass string

const (
	MissingNotApplicable       MissingnessClass = "n/a"
	MissingCompletelyAtRandom  MissingnessClass = "MCAR"
	MissingAtRandom            MissingnessClass = "MAR"
	MissingNotAtRandom         MissingnessClass = "MNAR"
	MissingInformative         MissingnessClass = "informative"
	MissingLowVolume           MissingnessClass = "low-volume"
	MissingClericalGap         MissingnessClass = "clerical-gap"
	MissingOutOfDomain         MissingnessClass = "MCAR+out-of-domain"
)

// CleaningOperation represents a single repaired cell
type CleaningOperation struct {
	RunID             string      // Identifies the pipeline run
	TableName         string      // Logical table name
	ColumnName        string      // Column that was cleaned
	OriginalValue     interface{} // Original value (nil when missing)
	NewValue          string      // New value after cleaning ("" when set to missing)
	RowIdentifier     string      // Record id of the row, or its index when the id is absent
	CleaningOperation string      // e.g. "fill_text", "impute_median"
	CleaningReason    string      // e.g. "missing_value", "out_of_range"
	CleanedAt         time.Time   // When the cleaning occurred (set by database)
}
