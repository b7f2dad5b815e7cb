// Package database opens pooled connections for every supported SQL dialect.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
)

type Dialect string

const (
	DialectMSSQL    Dialect = "mssql"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

func ParseDialect(raw string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(raw)))
	switch d {
	case DialectMSSQL, DialectPostgres, DialectMySQL, DialectSQLite, DialectDuckDB:
		return d, nil
	case "sqlserver", "tsql":
		return DialectMSSQL, nil
	case "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectMSSQL:
		return "sqlserver"
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite3"
	case DialectDuckDB:
		return "duckdb"
	default:
		return ""
	}
}

type Config struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	driver := cfg.Dialect.DriverName()
	if driver == "" {
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}
	dsn := normalizeDSN(cfg.Dialect, cfg.DSN)
	if dsn == "" && cfg.Dialect != DialectDuckDB {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Dialect, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Dialect, err)
	}
	return db, nil
}

// normalizeDSN accepts URL-style mysql DSNs, which the mysql driver does not.
func normalizeDSN(d Dialect, dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if d == DialectMySQL {
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}
	return dsn
}
