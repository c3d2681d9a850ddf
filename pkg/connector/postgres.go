package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/config"
	"github.com/David-Botos/crime-normalizer/pkg/converter"
)

// PostgreSQL caps bind parameters per statement
const maxBindParameters = 65535

// PostgresConnector implements the DatabaseConnector interface for PostgreSQL
type PostgresConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig) (*PostgresConnector, error) {
	logger := zap.L().Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	connStr := cfg.ConnectionString()
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	// Verify connection
	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	connector := &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the PostgreSQL connection and required permissions
func (c *PostgresConnector) Validate() error {
	// Check database version
	var version string
	err := c.db.QueryRow("SELECT version()").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	// Check permissions by creating a temp table
	_, err = c.db.Exec(`
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, test text);
			INSERT INTO _permission_check (test) VALUES ('test');
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	// The audit trail lives in public, the cleaned table in the configured schema
	requiredSchemas := []string{"public"}
	if c.cfg.Schema != "" && c.cfg.Schema != "public" {
		requiredSchemas = append(requiredSchemas, c.cfg.Schema)
	}
	for _, schema := range requiredSchemas {
		if err := c.ensureSchema(schema); err != nil {
			return fmt.Errorf("failed to create/verify schema %s: %w", schema, err)
		}
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", c.cfg.Database),
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port))

	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// Schema returns the configured target schema
func (c *PostgresConnector) Schema() string {
	if c.cfg.Schema == "" {
		return "public"
	}
	return c.cfg.Schema
}

// ensureSchema creates a schema if it doesn't exist
func (c *PostgresConnector) ensureSchema(schema string) error {
	_, err := c.db.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(schema))
	return err
}

// ExecWithTimeout executes a query with a timeout
func (c *PostgresConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}

// QueryWithTimeout executes a query with a timeout
func (c *PostgresConnector) QueryWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (*sql.Rows, error) {
	return queryWithDeadline(ctx, c.db, query, timeout, args...)
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ReplaceTable truncates a table and inserts valueRows in one transaction,
// so a failed insert leaves the previous contents in place. Columns must
// already be quoted identifiers.
func (c *PostgresConnector) ReplaceTable(
	ctx context.Context,
	schema string,
	table string,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (inserted int64, err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	fullTableName := converter.QualifiedTable(schema, table)
	inserted, err = replaceRows(ctx, tx, fullTableName, columns, valueRows, batchSize)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", fullTableName, err)
	}

	c.logger.Debug("Replaced table contents",
		zap.String("table", fullTableName),
		zap.Int64("rows", inserted))
	return inserted, nil
}

// replaceRows truncates fullTableName and bulk inserts the rows through ex
func replaceRows(
	ctx context.Context,
	ex execer,
	fullTableName string,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (int64, error) {
	if _, err := ex.ExecContext(ctx, "TRUNCATE TABLE "+fullTableName); err != nil {
		return 0, fmt.Errorf("failed to truncate %s: %w", fullTableName, err)
	}
	if len(valueRows) == 0 || len(columns) == 0 {
		return 0, nil
	}

	batchSize = effectiveBatchSize(batchSize, len(columns))
	var total int64
	for i := 0; i < len(valueRows); i += batchSize {
		end := i + batchSize
		if end > len(valueRows) {
			end = len(valueRows)
		}

		query, args, err := buildInsert(fullTableName, columns, valueRows[i:end])
		if err != nil {
			return total, err
		}
		result, err := ex.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("batch insert failed: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			total += n
		} else {
			total += int64(end - i)
		}
	}
	return total, nil
}

// effectiveBatchSize keeps one statement under the bind parameter limit
func effectiveBatchSize(batchSize, columnCount int) int {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if limit := maxBindParameters / columnCount; batchSize > limit {
		batchSize = limit
	}
	return batchSize
}

// buildInsert renders a multi-row INSERT with positional placeholders
func buildInsert(fullTableName string, columns []string, rows [][]interface{}) (string, []interface{}, error) {
	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))

	for j, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values for %d columns", j, len(row), len(columns))
		}
		rowPlaceholders := make([]string, len(columns))
		for k, val := range row {
			rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
			args = append(args, val)
		}
		placeholders[j] = fmt.Sprintf("(%s)", strings.Join(rowPlaceholders, ", "))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		fullTableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	return query, args, nil
}

// CreateTableIfNotExists creates a table with the specified schema if it doesn't exist
func (c *PostgresConnector) CreateTableIfNotExists(
	ctx context.Context,
	schema string,
	table string,
	columnDefs []string,
	primaryKey string,
) error {
	fullTableName := converter.QualifiedTable(schema, table)

	// Check if table exists
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables 
			WHERE table_schema = $1 AND table_name = $2
		)
	`

	err := c.db.QueryRowContext(ctx, query, schema, table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	if exists {
		c.logger.Debug("Table already exists", zap.String("table", fullTableName))
		return nil
	}

	// Build CREATE TABLE statement
	createSQL := fmt.Sprintf(
		"CREATE TABLE %s (\n\t%s",
		fullTableName,
		strings.Join(columnDefs, ",\n\t"),
	)

	// Add primary key if specified
	if primaryKey != "" {
		createSQL += fmt.Sprintf(",\n\tPRIMARY KEY (%s)", pq.QuoteIdentifier(primaryKey))
	}
	createSQL += "\n)"

	// Execute CREATE TABLE
	_, err = c.ExecWithTimeout(ctx, createSQL, 30*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", fullTableName, err)
	}

	c.logger.Info("Created table", zap.String("table", fullTableName))
	return nil
}
