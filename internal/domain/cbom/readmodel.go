package cbom

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no read model exists for a lookup.
var ErrNotFound = errors.New("cbom not found")

// ReadModel is the query side summary of a finished scan. At most one exists
// per project identifier.
type ReadModel struct {
	ID                uuid.UUID       `json:"id"`
	ProjectIdentifier string          `json:"projectIdentifier"`
	RepositoryURL     string          `json:"gitUrl"`
	Revision          string          `json:"branch"`
	Folder            string          `json:"subfolder,omitempty"`
	Commit            string          `json:"commit"`
	CreatedAt         time.Time       `json:"createdAt"`
	Bom               json.RawMessage `json:"bom"`
}

// Artifact decodes the stored payload.
func (m *ReadModel) Artifact() (*CBOM, error) {
	return FromJSON(m.Bom)
}

// ReadRepository port for read models.
type ReadRepository interface {
	FindByProjectIdentifier(ctx context.Context, projectIdentifier string) (*ReadModel, error)
	Save(ctx context.Context, m *ReadModel) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListRecent(ctx context.Context, limit int) ([]*ReadModel, error)
}
