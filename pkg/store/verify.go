package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/converter"
)

// VerifyRowCount checks that a persisted table holds the expected number of rows
func (s *Store) VerifyRowCount(ctx context.Context, schema, table string, expected int64) (bool, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var actual int64
	query := "SELECT COUNT(*) FROM " + converter.QualifiedTable(schema, table)
	if err := s.db.GetContext(ctx, &actual, query); err != nil {
		return false, 0, fmt.Errorf("failed to count rows of %s.%s: %w", schema, table, err)
	}

	matches := actual == expected
	if matches {
		s.logger.Info("Row count verification successful",
			zap.String("table", table),
			zap.Int64("count", actual))
	} else {
		s.logger.Warn("Row count mismatch",
			zap.String("table", table),
			zap.Int64("expected", expected),
			zap.Int64("actual", actual),
			zap.Int64("difference", expected-actual))
	}
	return matches, actual, nil
}
