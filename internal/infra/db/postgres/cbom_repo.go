package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

// CBOMRepository stores read models, one per project identifier.
type CBOMRepository struct {
	db *sql.DB
}

func NewCBOMRepository(db *sql.DB) *CBOMRepository {
	return &CBOMRepository{db: db}
}

const cbomColumns = `id, project_identifier, repository_url, revision, folder, commit_hash, created_at, bom`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReadModel(row rowScanner) (*domain.ReadModel, error) {
	var (
		m      domain.ReadModel
		id     string
		folder sql.NullString
		bom    string
	)
	if err := row.Scan(&id, &m.ProjectIdentifier, &m.RepositoryURL, &m.Revision, &folder, &m.Commit, &m.CreatedAt, &bom); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("cbom id %q: %w", id, err)
	}
	m.ID = parsed
	m.Folder = folder.String
	m.Bom = []byte(bom)
	return &m, nil
}

func (r *CBOMRepository) FindByProjectIdentifier(ctx context.Context, projectIdentifier string) (*domain.ReadModel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cbomColumns+` FROM cboms WHERE project_identifier=$1 LIMIT 1;`, projectIdentifier)
	m, err := scanReadModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", projectIdentifier, domain.ErrNotFound)
	}
	return m, err
}

func (r *CBOMRepository) Save(ctx context.Context, m *domain.ReadModel) error {
	const q = `
INSERT INTO cboms (` + cbomColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);
`
	_, err := r.db.ExecContext(ctx, q,
		m.ID.String(), m.ProjectIdentifier, m.RepositoryURL, m.Revision,
		nullString(m.Folder), m.Commit, m.CreatedAt.UTC(), string(m.Bom),
	)
	if err != nil {
		return fmt.Errorf("save cbom %s: %w", m.ProjectIdentifier, err)
	}
	return nil
}

func (r *CBOMRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cboms WHERE id=$1`, id.String())
	if err != nil {
		return fmt.Errorf("delete cbom %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent newest first
func (r *CBOMRepository) ListRecent(ctx context.Context, limit int) ([]*domain.ReadModel, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+cbomColumns+` FROM cboms ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ReadModel
	for rows.Next() {
		m, err := scanReadModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
