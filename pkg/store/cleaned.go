package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/converter"
	"github.com/David-Botos/crime-normalizer/pkg/frame"
	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// SaveCleanedTable replaces the contents of the cleaned table with t in a
// single transaction.
// Cells that cannot be converted to their column type are stored as NULL.
func (s *Store) SaveCleanedTable(ctx context.Context, t *frame.Table, meta *model.TableMetadata) (int64, error) {
	defs, err := s.conv.GenerateColumnDefinitions(meta)
	if err != nil {
		return 0, fmt.Errorf("failed to generate column definitions: %w", err)
	}

	if err := s.sink.CreateTableIfNotExists(ctx, meta.Schema, meta.Table, defs, ""); err != nil {
		return 0, err
	}

	rows, failures := s.convertRows(t, meta)
	if failures > 0 {
		s.logger.Warn("Stored unconvertible cells as NULL",
			zap.String("table", meta.Table),
			zap.Int("cells", failures))
	}

	inserted, err := s.sink.ReplaceTable(ctx, meta.Schema, meta.Table,
		converter.QuotedColumnNames(meta), rows, s.batchSize)
	if err != nil {
		return inserted, fmt.Errorf("failed to save %s.%s: %w", meta.Schema, meta.Table, err)
	}

	s.logger.Info("Saved cleaned table",
		zap.String("schema", meta.Schema),
		zap.String("table", meta.Table),
		zap.Int64("rows", inserted))
	return inserted, nil
}

// convertRows turns the table's columns into driver value rows in metadata order
func (s *Store) convertRows(t *frame.Table, meta *model.TableMetadata) ([][]interface{}, int) {
	columns := make([][]sql.NullString, len(meta.Columns))
	for i, col := range meta.Columns {
		columns[i] = t.Strings(col.Name)
	}

	rows := make([][]interface{}, t.Nrow())
	failures := 0
	cells := make([]sql.NullString, len(meta.Columns))
	for r := range rows {
		for c := range columns {
			if columns[c] == nil {
				cells[c] = sql.NullString{}
				continue
			}
			cells[c] = columns[c][r]
		}
		values, n := s.conv.ConvertRow(meta, cells)
		rows[r] = values
		failures += n
	}
	return rows, failures
}
