package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
  id CHAR(36) NOT NULL PRIMARY KEY,
  package_url VARCHAR(1024) NULL,
  git_url VARCHAR(1024) NULL,
  revision VARCHAR(255) NOT NULL,
  package_folder VARCHAR(1024) NULL,
  commit_hash VARCHAR(64) NULL,
  finished BOOLEAN NOT NULL DEFAULT FALSE,
  updated_at DATETIME(6) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS scan_results (
  scan_id CHAR(36) NOT NULL,
  language VARCHAR(32) NOT NULL,
  started_at DATETIME(6) NOT NULL,
  ended_at DATETIME(6) NOT NULL,
  lines_scanned INT NOT NULL DEFAULT 0,
  files_scanned INT NOT NULL DEFAULT 0,
  bom LONGTEXT NULL,
  PRIMARY KEY (scan_id, language),
  CONSTRAINT fk_scan_results_scan FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS cboms (
  id CHAR(36) NOT NULL PRIMARY KEY,
  project_identifier VARCHAR(768) NOT NULL,
  repository_url VARCHAR(1024) NOT NULL,
  revision VARCHAR(255) NOT NULL,
  folder VARCHAR(1024) NULL,
  commit_hash VARCHAR(64) NOT NULL,
  created_at DATETIME(6) NOT NULL,
  bom LONGTEXT NOT NULL,
  UNIQUE KEY uq_cboms_project (project_identifier),
  KEY idx_cboms_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
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
