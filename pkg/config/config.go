package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Source kinds
const (
	SourceCSV       = "csv"
	SourceSnowflake = "snowflake"
)

// Configuration validation errors
var (
	ErrInvalidSource      = errors.New("SOURCE must be 'csv' or 'snowflake'")
	ErrMissingInputPath   = errors.New("INPUT_PATH is required for csv source")
	ErrMissingSnowflake   = errors.New("snowflake configuration is required for snowflake source")
	ErrMissingOutputPath  = errors.New("OUTPUT_PATH is required")
	ErrInvalidBatchSize   = errors.New("BATCH_SIZE must be positive")
	ErrInvalidLogLevel    = errors.New("LOG_LEVEL must be one of: debug, info, warn, error")
	ErrInvalidLogFormat   = errors.New("LOG_FORMAT must be 'json' or 'console'")
	ErrMissingTargetTable = errors.New("TABLE_NAME is required")
)

// Config represents the application configuration
type Config struct {
	// Input
	Source    string
	InputPath string
	RulesPath string

	// Outputs
	OutputPath string
	ExcelPath  string

	// Cleaning
	RecordOperations bool
	TableName        string

	// Optional database connections
	Snowflake *SnowflakeConfig
	Postgres  *PostgresConfig
	BatchSize int

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads variables from an env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Source:           strings.ToLower(getEnv("SOURCE", SourceCSV)),
		InputPath:        getEnv("INPUT_PATH", "Crime_Data_from_2020_to_Present.csv"),
		RulesPath:        getEnv("RULES_FILE", ""),
		OutputPath:       getEnv("OUTPUT_PATH", "crime_clean.csv"),
		ExcelPath:        getEnv("EXCEL_PATH", ""),
		RecordOperations: getEnvAsBool("RECORD_OPERATIONS", false),
		TableName:        getEnv("TABLE_NAME", "crime_incidents"),
		BatchSize:        getEnvAsInt("BATCH_SIZE", 1000),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if cfg.Source == SourceSnowflake {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
		}
		cfg.Snowflake = snowConfig
	}

	// The PostgreSQL sink is enabled by setting POSTGRES_USER
	if os.Getenv("POSTGRES_USER") != "" {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load PostgreSQL configuration: %w", err)
		}
		cfg.Postgres = pgConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Source {
	case SourceCSV:
		if c.InputPath == "" {
			return ErrMissingInputPath
		}
	case SourceSnowflake:
		if c.Snowflake == nil {
			return ErrMissingSnowflake
		}
	default:
		return ErrInvalidSource
	}

	if c.OutputPath == "" {
		return ErrMissingOutputPath
	}

	if c.TableName == "" {
		return ErrMissingTargetTable
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.LogFormat != "json" && c.LogFormat != "console" {
		return ErrInvalidLogFormat
	}

	return nil
}

// PersistenceEnabled reports whether cleaned data is written to PostgreSQL
func (c *Config) PersistenceEnabled() bool {
	return c.Postgres != nil
}

// String returns a string representation of the config without credentials
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Source: %s, Input: %s, Output: %s, Excel: %s, Postgres: %t}",
		c.Source,
		c.InputPath,
		c.OutputPath,
		c.ExcelPath,
		c.PersistenceEnabled(),
	)
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
