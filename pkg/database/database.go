// Package database opens the relational store used for users, loan products
// and loan applications. SQLite (pure Go, modernc.org/sqlite) is the default;
// Postgres is available through lib/pq.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver       string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DSN          string `envconfig:"DATABASE_DSN" default:"file:data/loan_assistant.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"`
	MaxOpenConns int    `envconfig:"DATABASE_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns int    `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"2"`
}

// Open creates the pool and verifies connectivity.
func (c *Config) Open(ctx context.Context) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	switch driver {
	case DriverSQLite:
		if err := ensureSQLiteDir(c.DSN); err != nil {
			return nil, err
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	db, err := sql.Open(driver, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	maxOpen := c.MaxOpenConns
	if driver == DriverSQLite && maxOpen > 1 && strings.Contains(c.DSN, ":memory:") {
		// every connection to :memory: is a separate database
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// ensureSQLiteDir creates the parent directory of a file-backed DSN.
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}
