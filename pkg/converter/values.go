package converter

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// ConvertValueForPostgres converts a cleaned cell to a driver value for the column kind
func (c *TypeConverter) ConvertValueForPostgres(value sql.NullString, col model.Column) (interface{}, error) {
	if !value.Valid {
		return nil, nil
	}

	switch col.Kind {
	case model.KindInteger:
		return c.convertToInteger(value.String)
	case model.KindTimestamp:
		return c.convertToTimestamp(value.String)
	default:
		if value.String == "" && c.config.EmptyStringAsNull {
			return nil, nil
		}
		return value.String, nil
	}
}

// ConvertRow converts one row of cells in column order. Cells that fail to
// convert are stored as NULL; the number of such cells is returned.
func (c *TypeConverter) ConvertRow(metadata *model.TableMetadata, row []sql.NullString) ([]interface{}, int) {
	values := make([]interface{}, len(metadata.Columns))
	failures := 0

	for i, col := range metadata.Columns {
		if i >= len(row) {
			continue
		}
		v, err := c.ConvertValueForPostgres(row[i], col)
		if err != nil {
			failures++
			c.logger.Debug("Cell conversion failed, storing NULL",
				zap.String("column", col.Name),
				zap.Error(err))
			continue
		}
		values[i] = v
	}

	return values, failures
}

func (c *TypeConverter) convertToInteger(v string) (interface{}, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}

	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}

	// Whole floats such as "400.0" come back from some extracts
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("cannot convert string '%s' to integer", v)
	}
	return int64(f), nil
}

func (c *TypeConverter) convertToTimestamp(v string) (interface{}, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}

	for _, layout := range c.config.TimestampLayouts {
		if t, err := time.ParseInLocation(layout, v, c.location); err == nil {
			return t, nil
		}
	}

	return nil, fmt.Errorf("cannot parse '%s' as timestamp", v)
}
