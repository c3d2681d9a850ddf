package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/converter"
)

const (
	auditTable     = "cleaned_on_ingress"
	aggregateTable = "crime_aggregates"
	auditSchema    = "public"
)

// Sink is the part of the PostgreSQL connector the store writes through
type Sink interface {
	DB() *sql.DB
	Schema() string
	CreateTableIfNotExists(ctx context.Context, schema, table string, columnDefs []string, primaryKey string) error
	ReplaceTable(ctx context.Context, schema, table string, columns []string, valueRows [][]interface{}, batchSize int) (int64, error)
}

// Store persists cleaned tables, the cleaning audit trail and aggregates
type Store struct {
	sink      Sink
	db        *sqlx.DB
	conv      *converter.TypeConverter
	logger    *zap.Logger
	batchSize int
	timeout   time.Duration
}

// New creates a store writing through sink. The pgx driver name selects
// dollar placeholders for sqlx named queries.
func New(sink Sink, logger *zap.Logger, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Store{
		sink:      sink,
		db:        sqlx.NewDb(sink.DB(), "pgx"),
		conv:      converter.NewTypeConverter(logger),
		logger:    logger.Named("store"),
		batchSize: batchSize,
		timeout:   30 * time.Second,
	}
}

// EnsureTables creates the audit and aggregate tables if needed
func (s *Store) EnsureTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	for _, stmt := range []string{createAuditTableSQL, addAuditRunIDSQL, createAggregateTableSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tracking tables: %w", err)
		}
	}

	s.logger.Info("Ensured tracking tables exist",
		zap.String("audit", auditSchema+"."+auditTable),
		zap.String("aggregates", auditSchema+"."+aggregateTable))
	return nil
}

const createAuditTableSQL = `
	CREATE TABLE IF NOT EXISTS public.cleaned_on_ingress (
		id SERIAL PRIMARY KEY,
		schema_name TEXT NOT NULL,
		table_name TEXT NOT NULL,
		column_name TEXT NOT NULL,
		original_value TEXT,
		new_value TEXT NOT NULL,
		row_identifier TEXT NOT NULL,
		cleaning_operation TEXT NOT NULL,
		cleaning_reason TEXT NOT NULL,
		cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)
`

// Tables created before run ids were tracked lack the column
const addAuditRunIDSQL = `ALTER TABLE public.cleaned_on_ingress ADD COLUMN IF NOT EXISTS run_id TEXT`

const createAggregateTableSQL = `
	CREATE TABLE IF NOT EXISTS public.crime_aggregates (
		id SERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		query_name TEXT NOT NULL,
		group_column TEXT NOT NULL,
		group_key TEXT NOT NULL,
		crime_count BIGINT NOT NULL,
		rank INTEGER NOT NULL,
		computed_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)
`
