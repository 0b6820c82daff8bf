package factory

import (
	"context"
	"fmt"

	"github.com/hsdfat8/fieldops/internal/adapters/sqlstore"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
)

// DatabaseAdapterFactory creates structured backend adapters based on configuration
type DatabaseAdapterFactory struct{}

// NewDatabaseAdapterFactory creates a new database adapter factory
func NewDatabaseAdapterFactory() *DatabaseAdapterFactory {
	return &DatabaseAdapterFactory{}
}

// CreateAdapter validates the configuration and creates an unconnected adapter
func (f *DatabaseAdapterFactory) CreateAdapter(config *ports.DatabaseConfig) (*sqlstore.Adapter, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}
	return sqlstore.NewAdapter(*config), nil
}

// CreateAndConnectAdapter creates and connects a structured backend adapter
func (f *DatabaseAdapterFactory) CreateAndConnectAdapter(ctx context.Context, config *ports.DatabaseConfig) (*sqlstore.Adapter, error) {
	adapter, err := f.CreateAdapter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	if err := adapter.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return adapter, nil
}

// ValidateConfig validates the database configuration
func (f *DatabaseAdapterFactory) ValidateConfig(config *ports.DatabaseConfig) error {
	if config == nil {
		return fmt.Errorf("database configuration is nil")
	}

	switch config.Type {
	case ports.DatabaseTypeSQLite:
		return f.validateSQLiteConfig(config.SQLiteConfig)
	case ports.DatabaseTypePostgreSQL:
		return f.validatePostgresConfig(config.PostgresConfig)
	default:
		return fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

func (f *DatabaseAdapterFactory) validateSQLiteConfig(config *ports.SQLiteConfig) error {
	if config == nil {
		return fmt.Errorf("sqlite configuration is nil")
	}

	if config.Path == "" {
		return fmt.Errorf("sqlite path is required")
	}

	if config.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout cannot be negative")
	}

	if config.MaxOpenConns < 0 {
		return fmt.Errorf("max_open_conns cannot be negative")
	}

	return nil
}

func (f *DatabaseAdapterFactory) validatePostgresConfig(config *ports.PostgresConfig) error {
	if config == nil {
		return fmt.Errorf("postgres configuration is nil")
	}

	if config.Host == "" {
		return fmt.Errorf("postgres host is required")
	}

	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("postgres port must be between 1 and 65535")
	}

	if config.User == "" {
		return fmt.Errorf("postgres user is required")
	}

	if config.Database == "" {
		return fmt.Errorf("postgres database name is required")
	}

	if config.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be greater than 0")
	}

	if config.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be greater than 0")
	}

	if config.MaxIdleConns > config.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot be greater than max_open_conns")
	}

	return nil
}

// GetDefaultSQLiteConfig returns a default SQLite configuration
func GetDefaultSQLiteConfig() *ports.SQLiteConfig {
	return &ports.SQLiteConfig{
		Path:         "data/fieldops.db",
		BusyTimeout:  5000, // 5 seconds
		MaxOpenConns: 1,
	}
}

// GetDefaultPostgresConfig returns a default PostgreSQL configuration
func GetDefaultPostgresConfig() *ports.PostgresConfig {
	return &ports.PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "fieldops",
		Password:        "",
		Database:        "fieldops",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 300, // 5 minutes
		ConnMaxIdleTime: 600, // 10 minutes
	}
}

// CreateDefaultConfig creates a default database configuration for the specified type
func CreateDefaultConfig(dbType ports.DatabaseType) *ports.DatabaseConfig {
	config := &ports.DatabaseConfig{
		Type: dbType,
	}

	switch dbType {
	case ports.DatabaseTypeSQLite:
		config.SQLiteConfig = GetDefaultSQLiteConfig()
	case ports.DatabaseTypePostgreSQL:
		config.PostgresConfig = GetDefaultPostgresConfig()
	}

	return config
}
