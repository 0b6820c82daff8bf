package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "data/fieldops.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 1, cfg.Database.SQLite.MaxOpenConns)
	assert.Equal(t, "data/json", cfg.Documents.Dir)
	assert.Equal(t, 256, cfg.Catalog.NearestCacheSize)
	assert.Equal(t, "online", cfg.Simulator.InitialMode)
	assert.Equal(t, simulator.DefaultSampleInterval, cfg.Simulator.SampleInterval)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.True(t, cfg.StructuredEnabled())
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  type: postgres
  postgres:
    host: db.internal
    connMaxLifetime: 90s
simulator:
  initialMode: intermittent
  initialPower: critical
mqtt:
  enabled: true
  broker: tcp://broker:1883
`)
	t.Setenv("FIELDOPS_DATABASE_POSTGRES_USER", "ops")
	t.Setenv("FIELDOPS_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "ops", cfg.Database.Postgres.User)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.MQTT.Enabled)

	db := cfg.DatabasePortsConfig()
	assert.Equal(t, ports.DatabaseTypePostgreSQL, db.Type)
	require.NotNil(t, db.PostgresConfig)
	assert.Nil(t, db.SQLiteConfig)
	assert.Equal(t, 90, db.PostgresConfig.ConnMaxLifetime)
	assert.Equal(t, 5432, db.PostgresConfig.Port)

	sim := cfg.SimulatorSettings()
	assert.Equal(t, simulator.ModeIntermittent, sim.InitialMode)
	assert.Equal(t, simulator.PowerCritical, sim.InitialPower)
}

func TestLoad_SQLitePortsConfig(t *testing.T) {
	path := writeConfig(t, `
database:
  sqlite:
    path: /var/lib/fieldops/ops.db
    busyTimeout: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	db := cfg.DatabasePortsConfig()
	require.NotNil(t, db.SQLiteConfig)
	assert.Equal(t, "/var/lib/fieldops/ops.db", db.SQLiteConfig.Path)
	assert.Equal(t, 2000, db.SQLiteConfig.BusyTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown database", "database:\n  type: mongodb\n"},
		{"unknown mode", "simulator:\n  initialMode: satellite\n"},
		{"unknown power mode", "simulator:\n  initialPower: turbo\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n  broker: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_NoStructuredBackend(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  type: none\n"))
	require.NoError(t, err)
	assert.False(t, cfg.StructuredEnabled())
}
