package converter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/model"
)

var nonIdentifierChars = regexp.MustCompile(`[^a-z0-9]+`)

// TypeConverter handles mapping of cleaned columns to PostgreSQL types and values
type TypeConverter struct {
	logger   *zap.Logger
	config   TypeConverterConfig
	location *time.Location
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Timezone applied to timestamps that carry no offset
	DefaultTimezone string
	// Whether to treat empty strings as NULL
	EmptyStringAsNull bool
	// Layouts tried in order when parsing timestamp cells
	TimestampLayouts []string
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		DefaultTimezone:   "UTC",
		EmptyStringAsNull: true,
		TimestampLayouts: []string{
			"2006-01-02 15:04:05",
			"01/02/2006 03:04:05 PM",
			time.RFC3339,
			"2006-01-02",
		},
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	tc, _ := NewTypeConverterWithConfig(logger, DefaultConfig())
	return tc
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration.
// An unknown timezone falls back to UTC with an error.
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) (*TypeConverter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tc := &TypeConverter{logger: logger, config: config, location: time.UTC}

	if config.DefaultTimezone != "" {
		loc, err := time.LoadLocation(config.DefaultTimezone)
		if err != nil {
			return tc, fmt.Errorf("unknown timezone %s: %w", config.DefaultTimezone, err)
		}
		tc.location = loc
	}
	return tc, nil
}

// PostgresType maps a column kind to its PostgreSQL type
func PostgresType(kind model.ColumnKind) string {
	switch kind {
	case model.KindInteger:
		return "BIGINT"
	case model.KindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// ColumnIdentifier turns a source header such as "Reporting Delay (days)"
// into a lower snake case identifier ("reporting_delay_days").
func ColumnIdentifier(header string) string {
	id := nonIdentifierChars.ReplaceAllString(strings.ToLower(header), "_")
	id = strings.Trim(id, "_")
	if id == "" {
		return "column"
	}
	if id[0] >= '0' && id[0] <= '9' {
		id = "c_" + id
	}
	return id
}

// GenerateColumnDefinitions creates PostgreSQL column definitions
func (c *TypeConverter) GenerateColumnDefinitions(metadata *model.TableMetadata) ([]string, error) {
	definitions := make([]string, 0, len(metadata.Columns))
	seen := make(map[string]string, len(metadata.Columns))

	for _, col := range metadata.Columns {
		id := ColumnIdentifier(col.Name)
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("columns %q and %q map to the same identifier %s", prev, col.Name, id)
		}
		seen[id] = col.Name

		nullability := "NULL"
		if col.IsPrimaryKey || !col.Nullable {
			nullability = "NOT NULL"
		}

		definitions = append(definitions, fmt.Sprintf("%s %s %s",
			pq.QuoteIdentifier(id),
			PostgresType(col.Kind),
			nullability))
	}

	return definitions, nil
}

// QuotedColumnNames returns the quoted identifiers of every column in order
func QuotedColumnNames(metadata *model.TableMetadata) []string {
	names := make([]string, len(metadata.Columns))
	for i, col := range metadata.Columns {
		names[i] = pq.QuoteIdentifier(ColumnIdentifier(col.Name))
	}
	return names
}

// QualifiedTable returns schema.table with both parts quoted
func QualifiedTable(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}
