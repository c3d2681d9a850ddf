package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/crime-normalizer/pkg/config"
)

var (
	ErrSnowflakeNotConfigured = errors.New("snowflake is not configured")
	ErrPostgresNotConfigured  = errors.New("postgres is not configured")
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnowflakeConnector creates a new Snowflake connector
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, ErrSnowflakeNotConfigured
	}
	f.logger.Info("Creating Snowflake connector")

	connector, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake)
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}

	return connector, nil
}

// CreatePostgresConnector creates a new PostgreSQL connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	if f.cfg.Postgres == nil {
		return nil, ErrPostgresNotConfigured
	}
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// CreateConfiguredConnectors creates the connectors the configuration asks
// for. Either return value may be nil when that database is not configured.
func (f *ConnectorFactory) CreateConfiguredConnectors(ctx context.Context) (*SnowflakeConnector, *PostgresConnector, error) {
	var snowConn *SnowflakeConnector
	if f.cfg.Source == config.SourceSnowflake {
		var err error
		snowConn, err = f.CreateSnowflakeConnector(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	if !f.cfg.PersistenceEnabled() {
		return snowConn, nil, nil
	}

	pgConn, err := f.CreatePostgresConnector(ctx)
	if err != nil {
		if snowConn != nil {
			snowConn.Close() // Clean up the Snowflake connection if PostgreSQL fails
		}
		return nil, nil, err
	}

	return snowConn, pgConn, nil
}
