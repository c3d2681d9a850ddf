package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// RecordCleaningOperations batch inserts cleaning operations into the tracking table
func (s *Store) RecordCleaningOperations(ctx context.Context, schemaName string, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO public.cleaned_on_ingress
		(run_id, schema_name, table_name, column_name, original_value, new_value,
		 row_identifier, cleaning_operation, cleaning_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range operations {
		if _, err = stmt.ExecContext(ctx, auditArgs(schemaName, op)...); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}

func auditArgs(schemaName string, op model.CleaningOperation) []interface{} {
	return []interface{}{
		op.RunID,
		schemaName,
		op.TableName,
		op.ColumnName,
		toNullableString(op.OriginalValue),
		op.NewValue,
		op.RowIdentifier,
		op.CleaningOperation,
		op.CleaningReason,
	}
}

func toNullableString(v interface{}) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprintf("%v", v)
	return &s
}
