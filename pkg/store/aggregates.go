package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/model"
)

// aggregateRecord is one persisted aggregate row
type aggregateRecord struct {
	RunID       string `db:"run_id"`
	QueryName   string `db:"query_name"`
	GroupColumn string `db:"group_column"`
	GroupKey    string `db:"group_key"`
	CrimeCount  int64  `db:"crime_count"`
	Rank        int    `db:"rank"`
}

const insertAggregateSQL = `
	INSERT INTO public.crime_aggregates
	(run_id, query_name, group_column, group_key, crime_count, rank)
	VALUES (:run_id, :query_name, :group_column, :group_key, :crime_count, :rank)
`

// six bind parameters per row
const aggregateBatchLimit = 65535 / 6

// SaveAggregates stores every aggregate row of a run, ranked by position
func (s *Store) SaveAggregates(ctx context.Context, runID string, aggregates []model.Aggregate) (int64, error) {
	records := aggregateRecords(runID, aggregates)
	if len(records) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch := s.batchSize
	if batch > aggregateBatchLimit {
		batch = aggregateBatchLimit
	}

	var inserted int64
	for i := 0; i < len(records); i += batch {
		end := i + batch
		if end > len(records) {
			end = len(records)
		}
		result, err := s.db.NamedExecContext(ctx, insertAggregateSQL, records[i:end])
		if err != nil {
			return inserted, fmt.Errorf("failed to insert aggregates: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += n
		}
	}

	s.logger.Info("Saved aggregates",
		zap.String("run_id", runID),
		zap.Int("queries", len(aggregates)),
		zap.Int64("rows", inserted))
	return inserted, nil
}

func aggregateRecords(runID string, aggregates []model.Aggregate) []aggregateRecord {
	var records []aggregateRecord
	for _, agg := range aggregates {
		for i, row := range agg.Rows {
			records = append(records, aggregateRecord{
				RunID:       runID,
				QueryName:   agg.Name,
				GroupColumn: agg.Key,
				GroupKey:    row.Key,
				CrimeCount:  int64(row.Count),
				Rank:        i + 1,
			})
		}
	}
	return records
}
