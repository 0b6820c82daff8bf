package ports

import (
	"context"
	"errors"
)

// DatabaseType represents the type of structured backend
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgres"
)

var (
	ErrNotConnected  = errors.New("database not connected")
	ErrProbeMismatch = errors.New("round-trip probe read back a different value")
)

// DatabaseAdapter defines the connection lifecycle of the structured backend
type DatabaseAdapter interface {
	// Connect establishes a connection to the database and applies the schema
	Connect(ctx context.Context) error

	// Disconnect closes the database connection
	Disconnect(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// GetType returns the database type
	GetType() DatabaseType

	// Health and maintenance
	HealthCheck(ctx context.Context) error
	GetConnectionStats() ConnectionStats
}

// ConnectionStats provides database connection statistics
type ConnectionStats struct {
	OpenConnections  int    `json:"open_connections"`
	IdleConnections  int    `json:"idle_connections"`
	MaxConnections   int    `json:"max_connections"`
	DatabaseType     string `json:"database_type"`
	ConnectionString string `json:"connection_string"` // Sanitized, without credentials
	Healthy          bool   `json:"healthy"`
}

// DatabaseInfo summarizes the contents of the structured backend
type DatabaseInfo struct {
	DatabaseType  string                    `json:"database_type"`
	Location      string                    `json:"location"`
	TableCounts   map[string]int64          `json:"table_counts"`
	StatusSummary map[string]map[string]int `json:"status_summary"`
}

// DatabaseConfig holds structured backend configuration
type DatabaseConfig struct {
	Type           DatabaseType    `yaml:"type" json:"type"`
	SQLiteConfig   *SQLiteConfig   `yaml:"sqlite,omitempty" json:"sqlite,omitempty"`
	PostgresConfig *PostgresConfig `yaml:"postgres,omitempty" json:"postgres,omitempty"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path         string `yaml:"path" json:"path"`
	BusyTimeout  int    `yaml:"busy_timeout" json:"busy_timeout"` // in milliseconds
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port"`
	User            string `yaml:"user" json:"user"`
	Password        string `yaml:"password" json:"password"`
	Database        string `yaml:"database" json:"database"`
	SSLMode         string `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`   // in seconds
	ConnMaxIdleTime int    `yaml:"conn_max_idle_time" json:"conn_max_idle_time"` // in seconds
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int64  `json:"version"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
	AppliedAt   string `json:"applied_at,omitempty"`
}
