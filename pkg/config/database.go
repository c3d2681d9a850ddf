package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Schema        string
	Table         string // Source table holding the raw incident extract
	Role          string
	Authenticator gosnowflake.AuthType

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	QueryTimeout time.Duration
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string // Target schema for the cleaned table and audit trail
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	StatementTimeout time.Duration
}

var authenticators = map[string]gosnowflake.AuthType{
	"snowflake":             gosnowflake.AuthTypeSnowflake,
	"oauth":                 gosnowflake.AuthTypeOAuth,
	"externalbrowser":       gosnowflake.AuthTypeExternalBrowser,
	"username_password_mfa": gosnowflake.AuthTypeUsernamePasswordMFA,
	"jwt":                   gosnowflake.AuthTypeJwt,
	"token":                 gosnowflake.AuthTypeTokenAccessor,
	"okta":                  gosnowflake.AuthTypeOkta,
}

// requireEnv returns the values of keys in order, failing on the first unset one
func requireEnv(keys ...string) ([]string, error) {
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = os.Getenv(key)
		if values[i] == "" {
			return nil, fmt.Errorf("%s environment variable is required", key)
		}
	}
	return values, nil
}

func seconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}

// LoadSnowflakeConfig reads the source warehouse settings. User, password,
// account and warehouse are required.
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	required, err := requireEnv("SNOWFLAKE_USER", "SNOWFLAKE_PASSWORD", "SNOWFLAKE_ACCOUNT", "SNOWFLAKE_WAREHOUSE")
	if err != nil {
		return nil, err
	}

	// Unknown authenticators fall back to password auth
	authenticator, ok := authenticators[strings.ToLower(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake"))]
	if !ok {
		authenticator = gosnowflake.AuthTypeSnowflake
	}

	return &SnowflakeConfig{
		User:          required[0],
		Password:      required[1],
		Account:       required[2],
		Warehouse:     required[3],
		Database:      getEnv("SNOWFLAKE_DATABASE", "CRIME"),
		Schema:        getEnv("SNOWFLAKE_SCHEMA", "PUBLIC"),
		Table:         getEnv("SNOWFLAKE_TABLE", "CRIME_DATA_FROM_2020_TO_PRESENT"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: authenticator,

		MaxOpenConns:    getEnvAsInt("SNOWFLAKE_MAX_OPEN_CONNS", 4),
		MaxIdleConns:    getEnvAsInt("SNOWFLAKE_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: seconds("SNOWFLAKE_CONN_MAX_LIFETIME_SECONDS", 600),
		ConnMaxIdleTime: seconds("SNOWFLAKE_CONN_MAX_IDLE_TIME_SECONDS", 300),
		QueryTimeout:    seconds("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 300),
	}, nil
}

// LoadPostgresConfig reads the sink settings. User, password and database
// are required.
func LoadPostgresConfig() (*PostgresConfig, error) {
	required, err := requireEnv("POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB")
	if err != nil {
		return nil, err
	}

	return &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", getEnvAsInt("TUNNEL_PORT", 5432)),
		User:     required[0],
		Password: required[1],
		Database: required[2],
		Schema:   getEnv("POSTGRES_SCHEMA", "public"),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 4),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  seconds("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800),
		ConnMaxIdleTime:  seconds("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600),
		StatementTimeout: seconds("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300),
	}, nil
}

// ConnectionString returns a formatted Snowflake DSN
func (c *SnowflakeConfig) ConnectionString() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s?warehouse=%s&authenticator=%s",
		c.User,
		c.Password,
		c.Account,
		c.Database,
		c.Warehouse,
		c.Authenticator,
	)

	if c.Schema != "" {
		dsn += "&schema=" + c.Schema
	}
	if c.Role != "" {
		dsn += "&role=" + c.Role
	}

	return dsn
}

// ConnectionString returns a keyword/value PostgreSQL connection string. The
// statement timeout is sent as a runtime parameter so every pooled
// connection gets it.
func (c *PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	if c.StatementTimeout > 0 {
		dsn += fmt.Sprintf(" statement_timeout=%d", c.StatementTimeout.Milliseconds())
	}
	return dsn
}
