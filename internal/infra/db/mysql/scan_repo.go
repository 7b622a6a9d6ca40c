package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// ScanRepository is the write side store of scan aggregates.
type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Save upserts the scan row and replaces its language results.
func (r *ScanRepository) Save(ctx context.Context, a *domain.ScanAggregate) error {
	s := a.Snapshot()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = `
INSERT INTO scans (id, package_url, git_url, revision, package_folder, commit_hash, finished, updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 package_url=VALUES(package_url), git_url=VALUES(git_url), revision=VALUES(revision),
 package_folder=VALUES(package_folder), commit_hash=VALUES(commit_hash),
 finished=VALUES(finished), updated_at=VALUES(updated_at);
`
	if _, err := tx.ExecContext(ctx, upsert,
		s.ID.String(), nullString(s.PackageURL), nullString(s.GitURL), s.Revision,
		nullString(s.Folder), nullString(s.Commit), s.Finished, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("save scan %s: %w", s.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_results WHERE scan_id=?`, s.ID.String()); err != nil {
		return fmt.Errorf("save scan %s results: %w", s.ID, err)
	}
	const insertResult = `
INSERT INTO scan_results (scan_id, language, started_at, ended_at, lines_scanned, files_scanned, bom)
VALUES (?,?,?,?,?,?,?);
`
	for _, ls := range s.Results {
		bom, err := encodeBOM(ls.CBOM)
		if err != nil {
			return fmt.Errorf("save scan %s: %w", s.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insertResult,
			s.ID.String(), string(ls.Language), ls.Metadata.StartedAt.UTC(), ls.Metadata.EndedAt.UTC(),
			ls.Metadata.LinesScanned, ls.Metadata.FilesScanned, bom,
		); err != nil {
			return fmt.Errorf("save scan %s result %s: %w", s.ID, ls.Language, err)
		}
	}
	return tx.Commit()
}

func (r *ScanRepository) Read(ctx context.Context, id domain.ScanID) (*domain.ScanAggregate, error) {
	const q = `
SELECT package_url, git_url, revision, package_folder, commit_hash, finished
FROM scans WHERE id=? LIMIT 1;
`
	var (
		purl, gitURL, folder, commit sql.NullString
		s                            = domain.Snapshot{ID: id}
	)
	err := r.db.QueryRowContext(ctx, q, id.String()).Scan(&purl, &gitURL, &s.Revision, &folder, &commit, &s.Finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read scan %s: %w", id, err)
	}
	s.PackageURL, s.GitURL, s.Folder, s.Commit = purl.String, gitURL.String, folder.String, commit.String

	rows, err := r.db.QueryContext(ctx, `
SELECT language, started_at, ended_at, lines_scanned, files_scanned, bom
FROM scan_results WHERE scan_id=? ORDER BY language;
`, id.String())
	if err != nil {
		return nil, fmt.Errorf("read scan %s results: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ls  domain.LanguageScan
			bom sql.NullString
		)
		if err := rows.Scan(&ls.Language, &ls.Metadata.StartedAt, &ls.Metadata.EndedAt,
			&ls.Metadata.LinesScanned, &ls.Metadata.FilesScanned, &bom); err != nil {
			return nil, err
		}
		if ls.CBOM, err = decodeBOM(bom); err != nil {
			return nil, fmt.Errorf("read scan %s result %s: %w", id, ls.Language, err)
		}
		s.Results = append(s.Results, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.Restore(s), nil
}

func (r *ScanRepository) Delete(ctx context.Context, id domain.ScanID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_results WHERE scan_id=?`, id.String()); err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE id=?`, id.String()); err != nil {
		return fmt.Errorf("delete scan %s: %w", id, err)
	}
	return tx.Commit()
}

func encodeBOM(c *cbom.CBOM) (sql.NullString, error) {
	if c == nil {
		return sql.NullString{}, nil
	}
	b, err := c.JSON()
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeBOM(s sql.NullString) (*cbom.CBOM, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	return cbom.FromJSON([]byte(s.String))
}
