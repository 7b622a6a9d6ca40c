package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scans (
  id UUID PRIMARY KEY,
  package_url TEXT NULL,
  git_url TEXT NULL,
  revision TEXT NOT NULL,
  package_folder TEXT NULL,
  commit_hash VARCHAR(64) NULL,
  finished BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS scan_results (
  scan_id UUID NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
  language VARCHAR(32) NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  ended_at TIMESTAMPTZ NOT NULL,
  lines_scanned INTEGER NOT NULL DEFAULT 0,
  files_scanned INTEGER NOT NULL DEFAULT 0,
  bom TEXT NULL,
  PRIMARY KEY (scan_id, language)
)`,
	`CREATE TABLE IF NOT EXISTS cboms (
  id UUID PRIMARY KEY,
  project_identifier TEXT NOT NULL UNIQUE,
  repository_url TEXT NOT NULL,
  revision TEXT NOT NULL,
  folder TEXT NULL,
  commit_hash VARCHAR(64) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  bom JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_cboms_created ON cboms (created_at DESC)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
