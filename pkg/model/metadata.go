package model

// ColumnKind is the storage kind of a cleaned column
type ColumnKind string

const (
	KindText      ColumnKind = "text"
	KindInteger   ColumnKind = "integer"
	KindTimestamp ColumnKind = "timestamp"
)

// TableMetadata contains the structure information for the cleaned table
type TableMetadata struct {
	Schema      string   // Schema name
	Table       string   // Table name
	Columns     []Column // Column definitions
	PrimaryKeys []string // List of primary key column names
}

// Column represents metadata about a cleaned column
type Column struct {
	Name         string     // Header in the cleaned table
	Kind         ColumnKind // Storage kind
	Nullable     bool       // Whether column allows NULL values
	IsPrimaryKey bool       // Whether column is part of primary key
}

// DescribeCleanedTable builds metadata for a cleaned table with the given
// headers. Known integer and date columns of the schema get typed kinds,
// everything else is text.
func DescribeCleanedTable(schemaName, table string, headers []string, s Schema) *TableMetadata {
	kinds := map[string]ColumnKind{
		s.WeaponCode:         KindInteger,
		s.VictimAge:          KindInteger,
		s.PremiseCode:        KindInteger,
		s.ReportingDelayDays: KindInteger,
		s.DateOccurred:       KindTimestamp,
		s.DateReported:       KindTimestamp,
	}

	meta := &TableMetadata{Schema: schemaName, Table: table}
	for _, h := range headers {
		kind, ok := kinds[h]
		if !ok || h == "" {
			kind = KindText
		}
		col := Column{Name: h, Kind: kind, Nullable: true}
		// Duplicate record ids are reported, not resolved, so no primary key is declared
		meta.Columns = append(meta.Columns, col)
	}
	return meta
}
