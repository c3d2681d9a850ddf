package connector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/config"
)

// SnowflakeConnector implements the DatabaseConnector interface for Snowflake
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig) (*SnowflakeConnector, error) {
	logger := zap.L().Named("snowflake-connector")

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Schema:        cfg.Schema,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if cfg.QueryTimeout > 0 {
		_, err = db.ExecContext(
			ctx,
			fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d",
				int(cfg.QueryTimeout.Seconds())),
		)
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	connector := &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the Snowflake session and that the source table exists
func (c *SnowflakeConnector) Validate() error {
	var role, database, warehouse sql.NullString
	err := c.db.QueryRow("SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	if database.String != ResolveSnowflakeIdentifier(c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	var count int
	err = c.db.QueryRow(
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?",
		ResolveSnowflakeIdentifier(c.cfg.Schema), ResolveSnowflakeIdentifier(c.cfg.Table),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to look up source table: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("source table %s.%s not found", c.cfg.Schema, c.cfg.Table)
	}

	return nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// SourceTable returns the fully qualified, quoted source table name
func (c *SnowflakeConnector) SourceTable() string {
	return SnowflakeTableName(c.cfg.Database, c.cfg.Schema, c.cfg.Table)
}

var unquotedIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ResolveSnowflakeIdentifier returns the name Snowflake stores for an
// identifier: names valid unquoted are upper-cased, anything else is kept
// as written.
func ResolveSnowflakeIdentifier(name string) string {
	if unquotedIdentifier.MatchString(name) {
		return strings.ToUpper(name)
	}
	return name
}

// SnowflakeTableName resolves and quotes each non-empty part and joins them
// with dots
func SnowflakeTableName(parts ...string) string {
	name := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if name != "" {
			name += "."
		}
		name += pq.QuoteIdentifier(ResolveSnowflakeIdentifier(p))
	}
	return name
}

// LoadTable reads the whole source table as text records, header first.
// Rows are fetched in batches ordered by the first column.
func (c *SnowflakeConnector) LoadTable(ctx context.Context, batchSize int) ([][]string, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY 1", c.SourceTable())

	var records [][]string
	width := 0
	err := c.BatchQuery(ctx, query, batchSize, func(rows *sql.Rows) error {
		if records == nil {
			columns, err := rows.Columns()
			if err != nil {
				return fmt.Errorf("failed to read result columns: %w", err)
			}
			width = len(columns)
			records = append(records, columns)
		}
		record, err := ScanRow(rows, width)
		if err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", c.SourceTable(), err)
	}

	if records == nil {
		// Empty table: fetch the header alone
		rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", c.SourceTable()))
		if err != nil {
			return nil, fmt.Errorf("failed to read header of %s: %w", c.SourceTable(), err)
		}
		defer rows.Close()
		return ScanRecords(rows)
	}

	c.logger.Info("Loaded source table",
		zap.String("table", c.SourceTable()),
		zap.Int("rows", len(records)-1))
	return records, nil
}

// QueryWithTimeout executes a query with a timeout
func (c *SnowflakeConnector) QueryWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (*sql.Rows, error) {
	return queryWithDeadline(ctx, c.db, query, timeout, args...)
}

// ExecWithTimeout executes a statement with a timeout
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.ExecContext(queryCtx, query, args...)
}

// BatchQuery fetches data in batches to handle large result sets
func (c *SnowflakeConnector) BatchQuery(
	ctx context.Context,
	query string,
	batchSize int,
	processor func(*sql.Rows) error,
) error {
	if batchSize <= 0 {
		batchSize = 10000
	}

	offset := 0
	for {
		rowCount, err := c.queryBatch(ctx, fmt.Sprintf("%s LIMIT %d OFFSET %d", query, batchSize, offset), processor)
		if err != nil {
			return fmt.Errorf("batch at offset %d: %w", offset, err)
		}

		c.logger.Debug("Fetched batch",
			zap.Int("offset", offset),
			zap.Int("rows", rowCount))

		// If fewer rows than batch size were returned, we're done
		if rowCount < batchSize {
			return nil
		}
		offset += batchSize
	}
}

func (c *SnowflakeConnector) queryBatch(ctx context.Context, query string, processor func(*sql.Rows) error) (int, error) {
	timeout := c.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, query)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	rowCount := 0
	for rows.Next() {
		rowCount++
		if err := processor(rows); err != nil {
			return rowCount, fmt.Errorf("row processing failed: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return rowCount, fmt.Errorf("error iterating rows: %w", err)
	}
	return rowCount, nil
}
