package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect selects driver-specific DDL. Queries themselves are portable.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// Open connects to the store and tunes the pool for the dialect.
// The caller owns the returned *sql.DB.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case MySQL:
		dsn, err = normalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	case SQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// A single writer avoids SQLITE_BUSY between concurrent uploads.
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return db, nil
}

// normalizeMySQLDSN forces the settings the repository relies on:
// DATETIME columns scanned into time.Time, in UTC.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func sqliteDSN(dsn string) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", "foreign_keys(1)")
	pragmas.Add("_pragma", "busy_timeout(5000)")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + pragmas.Encode()
}

var schema = map[Dialect][]string{
	MySQL: {
		`CREATE TABLE IF NOT EXISTS files (
			id          VARCHAR(36)  NOT NULL PRIMARY KEY,
			filename    VARCHAR(255) NOT NULL,
			storage_key VARCHAR(255) NOT NULL,
			size_bytes  BIGINT       NOT NULL CHECK (size_bytes > 0),
			owner_id    VARCHAR(128) NULL,
			media_type  VARCHAR(255) NOT NULL DEFAULT '',
			uploaded_at DATETIME(6)  NOT NULL,
			INDEX idx_files_uploaded (uploaded_at, id),
			INDEX idx_files_owner (owner_id)
		)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id           VARCHAR(36)  NOT NULL PRIMARY KEY,
			file_id      VARCHAR(36)  NOT NULL,
			status       VARCHAR(16)  NOT NULL,
			virus_name   VARCHAR(255) NULL,
			scan_log     MEDIUMTEXT   NOT NULL,
			scan_version VARCHAR(255) NOT NULL DEFAULT '',
			scanned_at   DATETIME(6)  NOT NULL,
			INDEX idx_scans_file (file_id, scanned_at),
			CONSTRAINT fk_scans_file FOREIGN KEY (file_id) REFERENCES files (id)
		)`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS files (
			id          TEXT     NOT NULL PRIMARY KEY,
			filename    TEXT     NOT NULL,
			storage_key TEXT     NOT NULL,
			size_bytes  INTEGER  NOT NULL CHECK (size_bytes > 0),
			owner_id    TEXT     NULL,
			media_type  TEXT     NOT NULL DEFAULT '',
			uploaded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_uploaded ON files (uploaded_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_files_owner ON files (owner_id)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id           TEXT     NOT NULL PRIMARY KEY,
			file_id      TEXT     NOT NULL REFERENCES files (id),
			status       TEXT     NOT NULL,
			virus_name   TEXT     NULL,
			scan_log     TEXT     NOT NULL,
			scan_version TEXT     NOT NULL DEFAULT '',
			scanned_at   DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_file ON scans (file_id, scanned_at)`,
	},
}

// Migrate creates the files and scans relations if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts, ok := schema[dialect]
	if !ok {
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
