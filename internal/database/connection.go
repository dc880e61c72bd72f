// Package database provides connection management and cross-driver SQL
// portability helpers. MySQL, PostgreSQL and SQLite are supported; SQLite
// backs the test suite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens a database connection for the given driver and DSN, applies
// pool settings and verifies the connection with a bounded ping.
func Open(driver, dsn string) (*sql.DB, error) {
	driver = normalizeDriver(driver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	SetDriver(driver)
	return db, nil
}

// OpenX opens a connection wrapped for sqlx struct scanning. The snapshot
// provider uses this; the repositories stay on database/sql.
func OpenX(driver, dsn string) (*sqlx.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, normalizeDriver(driver)), nil
}

func normalizeDriver(driver string) string {
	switch driver {
	case "", "mariadb":
		return "mysql"
	case "postgresql", "pgx":
		return "postgres"
	case "sqlite":
		return "sqlite3"
	default:
		return driver
	}
}
