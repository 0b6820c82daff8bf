package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/hsdfat8/fieldops/internal/observability"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver, registered as "sqlite"
)

// Adapter is the structured backend. It implements ports.DatabaseAdapter and
// ports.StructuredBackend over SQLite or PostgreSQL.
type Adapter struct {
	mu     sync.Mutex
	db     *sqlx.DB
	config ports.DatabaseConfig
	logger observability.Logger
}

// NewAdapter creates a new structured backend adapter; Connect is called lazily when needed
func NewAdapter(config ports.DatabaseConfig) *Adapter {
	return &Adapter{
		config: config,
		logger: observability.New("sqlstore", ""),
	}
}

// NewAdapterWithDB wraps an already open connection. The schema is not applied.
func NewAdapterWithDB(db *sqlx.DB, dbType ports.DatabaseType) *Adapter {
	return &Adapter{
		db:     db,
		config: ports.DatabaseConfig{Type: dbType},
		logger: observability.New("sqlstore", ""),
	}
}

// Connect establishes a connection to the database and applies the schema
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.connectLocked(ctx)
	return err
}

func (a *Adapter) connectLocked(ctx context.Context) (*sqlx.DB, error) {
	if a.db != nil {
		return a.db, nil
	}

	var (
		db  *sqlx.DB
		err error
	)
	switch a.config.Type {
	case ports.DatabaseTypeSQLite, "":
		db, err = a.connectSQLite(ctx)
	case ports.DatabaseTypePostgreSQL:
		db, err = a.connectPostgres(ctx)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", a.config.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := NewMigrator(db, a.GetType()).Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	a.db = db
	a.logger.Infow("Connected to structured backend", "type", a.GetType(), "location", a.location())
	return db, nil
}

func (a *Adapter) connectSQLite(ctx context.Context) (*sqlx.DB, error) {
	cfg := a.config.SQLiteConfig
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path not configured")
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", cfg.Path, busy)

	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	return db, nil
}

func (a *Adapter) connectPostgres(ctx context.Context) (*sqlx.DB, error) {
	cfg := a.config.PostgresConfig
	if cfg == nil {
		return nil, fmt.Errorf("postgres config not provided")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	return db, nil
}

// Disconnect closes the database connection; a later call reconnects
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// conn returns the open connection, connecting first if necessary
func (a *Adapter) conn(ctx context.Context) (*sqlx.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	db, err := a.connectLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrNotConnected, err)
	}
	return db, nil
}

// Ping checks if the database connection is alive
func (a *Adapter) Ping(ctx context.Context) error {
	a.mu.Lock()
	db := a.db
	a.mu.Unlock()
	if db == nil {
		return ports.ErrNotConnected
	}
	return db.PingContext(ctx)
}

// GetType returns the database type
func (a *Adapter) GetType() ports.DatabaseType {
	if a.config.Type == "" {
		return ports.DatabaseTypeSQLite
	}
	return a.config.Type
}

// Type identifies the backend to the record store
func (a *Adapter) Type() ports.BackendType {
	return ports.BackendStructured
}

// HealthCheck performs a health check on the database
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if err := a.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	db, err := a.conn(ctx)
	if err != nil {
		return err
	}

	var result int
	if err := db.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// Probe creates a temporary table on a dedicated connection, writes a
// value, reads it back and compares. Any failure means the backend is unusable.
func (a *Adapter) Probe(ctx context.Context) error {
	db, err := a.conn(ctx)
	if err != nil {
		return err
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS fieldops_probe (id INTEGER, token TEXT)`); err != nil {
		return fmt.Errorf("failed to create probe table: %w", err)
	}
	defer conn.ExecContext(context.Background(), `DROP TABLE IF EXISTS fieldops_probe`)

	if _, err := conn.ExecContext(ctx, `DELETE FROM fieldops_probe`); err != nil {
		return fmt.Errorf("failed to clear probe table: %w", err)
	}

	token := fmt.Sprintf("probe-%d", time.Now().UnixNano())
	if _, err := conn.ExecContext(ctx, conn.Rebind(`INSERT INTO fieldops_probe (id, token) VALUES (?, ?)`), 1, token); err != nil {
		return fmt.Errorf("failed to write probe row: %w", err)
	}

	var got string
	if err := conn.GetContext(ctx, &got, conn.Rebind(`SELECT token FROM fieldops_probe WHERE id = ?`), 1); err != nil {
		return fmt.Errorf("failed to read probe row: %w", err)
	}
	if got != token {
		return fmt.Errorf("%w: wrote %q, read %q", ports.ErrProbeMismatch, token, got)
	}
	return nil
}

// GetConnectionStats returns database connection statistics
func (a *Adapter) GetConnectionStats() ports.ConnectionStats {
	a.mu.Lock()
	db := a.db
	a.mu.Unlock()

	stats := ports.ConnectionStats{
		DatabaseType:     string(a.GetType()),
		ConnectionString: a.location(),
	}
	if db == nil {
		return stats
	}

	dbStats := db.Stats()
	stats.OpenConnections = dbStats.OpenConnections
	stats.IdleConnections = dbStats.Idle
	stats.MaxConnections = dbStats.MaxOpenConnections
	stats.Healthy = db.PingContext(context.Background()) == nil
	return stats
}

// location describes the database without credentials
func (a *Adapter) location() string {
	switch {
	case a.config.PostgresConfig != nil && a.GetType() == ports.DatabaseTypePostgreSQL:
		c := a.config.PostgresConfig
		return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Database)
	case a.config.SQLiteConfig != nil:
		return a.config.SQLiteConfig.Path
	}
	return ""
}

// RunInTransaction runs fn against a transactional repository, committing
// only when fn succeeds
func (a *Adapter) RunInTransaction(ctx context.Context, fn func(tx ports.RecordBackend) error) error {
	db, err := a.conn(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(NewRecordRepository(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.logger.Errorw("Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (a *Adapter) repo(ctx context.Context) (ports.RecordBackend, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}
	return NewRecordRepository(db), nil
}

func (a *Adapter) NextID(ctx context.Context, collection models.Collection) (string, error) {
	r, err := a.repo(ctx)
	if err != nil {
		return "", err
	}
	return r.NextID(ctx, collection)
}

func (a *Adapter) Insert(ctx context.Context, record models.Record) error {
	r, err := a.repo(ctx)
	if err != nil {
		return err
	}
	return r.Insert(ctx, record)
}

func (a *Adapter) Select(ctx context.Context, collection models.Collection, filter models.Filter, dest any) error {
	r, err := a.repo(ctx)
	if err != nil {
		return err
	}
	return r.Select(ctx, collection, filter, dest)
}

func (a *Adapter) Get(ctx context.Context, collection models.Collection, id string, dest any) error {
	r, err := a.repo(ctx)
	if err != nil {
		return err
	}
	return r.Get(ctx, collection, id, dest)
}

func (a *Adapter) Update(ctx context.Context, collection models.Collection, id string, changes models.Changes) error {
	r, err := a.repo(ctx)
	if err != nil {
		return err
	}
	return r.Update(ctx, collection, id, changes)
}

func (a *Adapter) UpdateWhere(ctx context.Context, collection models.Collection, filter models.Filter, changes models.Changes) (int64, error) {
	r, err := a.repo(ctx)
	if err != nil {
		return 0, err
	}
	return r.UpdateWhere(ctx, collection, filter, changes)
}

func (a *Adapter) Delete(ctx context.Context, collection models.Collection, id string) error {
	r, err := a.repo(ctx)
	if err != nil {
		return err
	}
	return r.Delete(ctx, collection, id)
}

// DatabaseInfo counts rows per collection and summarizes status columns
func (a *Adapter) DatabaseInfo(ctx context.Context) (*ports.DatabaseInfo, error) {
	db, err := a.conn(ctx)
	if err != nil {
		return nil, err
	}

	info := &ports.DatabaseInfo{
		DatabaseType:  string(a.GetType()),
		Location:      a.location(),
		TableCounts:   make(map[string]int64),
		StatusSummary: make(map[string]map[string]int),
	}

	for _, c := range models.AllCollections() {
		spec, _ := c.Spec()

		var count int64
		if err := db.GetContext(ctx, &count, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, spec.Table)); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", spec.Table, err)
		}
		info.TableCounts[spec.Table] = count

		if !spec.HasStatus {
			continue
		}

		var rows []struct {
			Status string `db:"status"`
			Count  int    `db:"count"`
		}
		query := fmt.Sprintf(`SELECT status, COUNT(*) AS count FROM %s GROUP BY status ORDER BY status`, spec.Table)
		if err := db.SelectContext(ctx, &rows, query); err != nil {
			return nil, fmt.Errorf("failed to summarize %s: %w", spec.Table, err)
		}
		summary := make(map[string]int, len(rows))
		for _, r := range rows {
			summary[r.Status] = r.Count
		}
		info.StatusSummary[string(c)] = summary
	}

	return info, nil
}

var _ ports.StructuredBackend = (*Adapter)(nil)
var _ ports.DatabaseAdapter = (*Adapter)(nil)
