package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/simulator"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Documents DocumentsConfig
	Catalog   CatalogConfig
	Simulator SimulatorConfig
	MQTT      MQTTConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds structured backend configuration
type DatabaseConfig struct {
	Type     string // "sqlite", "postgres", "none"
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path         string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DocumentsConfig holds document backend configuration
type DocumentsConfig struct {
	Dir string
}

// CatalogConfig holds location catalog configuration
type CatalogConfig struct {
	Path             string
	NearestCacheSize int
}

// SimulatorConfig holds connectivity simulator configuration
type SimulatorConfig struct {
	InitialMode    string
	InitialPower   string
	SampleInterval time.Duration
	JoinTimeout    time.Duration
	Duration       time.Duration // 0 samples until shutdown
	AutoStart      bool
}

// MQTTConfig holds mode-change publisher configuration
type MQTTConfig struct {
	Enabled        bool
	Broker         string
	ClientID       string
	Topic          string
	Username       string
	Password       string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DatabaseTypeNone disables the structured backend
const DatabaseTypeNone = "none"

// Load loads configuration from file and environment variables. A .env file
// in the working directory, when present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fieldops")
	}

	// Read environment variables
	v.SetEnvPrefix("FIELDOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.idleTimeout", "120s")

	// Database defaults
	v.SetDefault("database.type", string(ports.DatabaseTypeSQLite))
	v.SetDefault("database.sqlite.path", "data/fieldops.db")
	v.SetDefault("database.sqlite.busyTimeout", "5s")
	v.SetDefault("database.sqlite.maxOpenConns", 1)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "fieldops")
	v.SetDefault("database.postgres.password", "fieldops")
	v.SetDefault("database.postgres.database", "fieldops")
	v.SetDefault("database.postgres.sslMode", "disable")
	v.SetDefault("database.postgres.maxOpenConns", 25)
	v.SetDefault("database.postgres.maxIdleConns", 5)
	v.SetDefault("database.postgres.connMaxLifetime", "5m")
	v.SetDefault("database.postgres.connMaxIdleTime", "10m")

	// Document backend and catalog defaults
	v.SetDefault("documents.dir", "data/json")
	v.SetDefault("catalog.path", "data/locations.json")
	v.SetDefault("catalog.nearestCacheSize", 256)

	// Simulator defaults
	v.SetDefault("simulator.initialMode", string(simulator.ModeOnline))
	v.SetDefault("simulator.initialPower", string(simulator.PowerNormal))
	v.SetDefault("simulator.sampleInterval", simulator.DefaultSampleInterval.String())
	v.SetDefault("simulator.joinTimeout", simulator.DefaultJoinTimeout.String())
	v.SetDefault("simulator.duration", "0s")
	v.SetDefault("simulator.autoStart", false)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientID", "fieldops")
	v.SetDefault("mqtt.topic", "fieldops/connectivity")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retained", true)
	v.SetDefault("mqtt.connectTimeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Database.Type {
	case string(ports.DatabaseTypeSQLite), string(ports.DatabaseTypePostgreSQL), DatabaseTypeNone:
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Documents.Dir == "" {
		return fmt.Errorf("documents.dir is required")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if _, err := simulator.Mode(c.Simulator.InitialMode).Params(); err != nil {
		return fmt.Errorf("simulator.initialMode: %w", err)
	}
	if _, err := simulator.PowerMode(c.Simulator.InitialPower).Params(); err != nil {
		return fmt.Errorf("simulator.initialPower: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	return nil
}

// StructuredEnabled reports whether a structured backend is configured
func (c *Config) StructuredEnabled() bool {
	return c.Database.Type != DatabaseTypeNone
}

// DatabasePortsConfig converts the database section into adapter configuration
func (c *Config) DatabasePortsConfig() *ports.DatabaseConfig {
	out := &ports.DatabaseConfig{Type: ports.DatabaseType(c.Database.Type)}
	switch out.Type {
	case ports.DatabaseTypeSQLite:
		out.SQLiteConfig = &ports.SQLiteConfig{
			Path:         c.Database.SQLite.Path,
			BusyTimeout:  int(c.Database.SQLite.BusyTimeout / time.Millisecond),
			MaxOpenConns: c.Database.SQLite.MaxOpenConns,
		}
	case ports.DatabaseTypePostgreSQL:
		pg := c.Database.Postgres
		out.PostgresConfig = &ports.PostgresConfig{
			Host:            pg.Host,
			Port:            pg.Port,
			User:            pg.User,
			Password:        pg.Password,
			Database:        pg.Database,
			SSLMode:         pg.SSLMode,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: int(pg.ConnMaxLifetime / time.Second),
			ConnMaxIdleTime: int(pg.ConnMaxIdleTime / time.Second),
		}
	}
	return out
}

// SimulatorSettings converts the simulator section into simulator settings
func (c *Config) SimulatorSettings() simulator.Config {
	return simulator.Config{
		InitialMode:    simulator.Mode(c.Simulator.InitialMode),
		InitialPower:   simulator.PowerMode(c.Simulator.InitialPower),
		SampleInterval: c.Simulator.SampleInterval,
		JoinTimeout:    c.Simulator.JoinTimeout,
	}
}
