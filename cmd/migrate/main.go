package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hsdfat8/fieldops/internal/adapters/sqlstore"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
)

func main() {
	var (
		dbType      = flag.String("type", "sqlite", "Database type (sqlite, postgres)")
		sqlitePath  = flag.String("path", "data/fieldops.db", "SQLite database file")
		databaseURL = flag.String("database-url", "", "PostgreSQL connection string (overrides individual flags)")
		host        = flag.String("host", "localhost", "Database host")
		port        = flag.Int("port", 5432, "Database port")
		user        = flag.String("user", "fieldops", "Database user")
		password    = flag.String("password", "fieldops", "Database password")
		dbname      = flag.String("dbname", "fieldops", "Database name")
		sslmode     = flag.String("sslmode", "disable", "SSL mode (disable, require, verify-ca, verify-full)")
		verify      = flag.Bool("verify", false, "Verify schema after migration")
		status      = flag.Bool("status", false, "Show migration status")
	)

	flag.Parse()

	dialect := ports.DatabaseType(*dbType)
	var driver, dsn string
	switch dialect {
	case ports.DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(*sqlitePath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create database directory: %v\n", err)
			os.Exit(1)
		}
		driver, dsn = "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", *sqlitePath)
	case ports.DatabaseTypePostgreSQL:
		driver = "postgres"
		if *databaseURL != "" {
			dsn = *databaseURL
		} else {
			dsn = fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				*host, *port, *user, *password, *dbname, *sslmode,
			)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unsupported database type: %s\n", *dbType)
		os.Exit(2)
	}

	fmt.Printf("Connecting to %s database...\n", dialect)
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if dialect == ports.DatabaseTypeSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to ping database: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Successfully connected to database!")

	migrator := sqlstore.NewMigrator(db, dialect)

	if *status {
		if err := showMigrationStatus(ctx, migrator); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get migration status: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := migrator.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	if *verify {
		if err := migrator.VerifySchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Schema verification failed: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("\nAll operations completed successfully")
}

func showMigrationStatus(ctx context.Context, migrator *sqlstore.Migrator) error {
	fmt.Println("\nMigration Status:")
	fmt.Println("================")

	migrations, err := migrator.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}

	if len(migrations) == 0 {
		fmt.Println("No migrations have been applied yet.")
		return nil
	}

	for _, m := range migrations {
		fmt.Printf("\n%d. %s\n", m.Version, m.Description)
		fmt.Printf("  Applied at:  %s\n", m.AppliedAt)
	}

	return nil
}
