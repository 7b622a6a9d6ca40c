package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

type CBOMRepository struct {
	mu     sync.RWMutex
	models map[uuid.UUID]cbom.ReadModel
}

func NewCBOMRepository() *CBOMRepository {
	return &CBOMRepository{models: map[uuid.UUID]cbom.ReadModel{}}
}

func (r *CBOMRepository) FindByProjectIdentifier(_ context.Context, projectIdentifier string) (*cbom.ReadModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.models {
		if m.ProjectIdentifier == projectIdentifier {
			m := m
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", projectIdentifier, cbom.ErrNotFound)
}

// Save rejects a second model for the same project, like the unique index of the sql stores.
func (r *CBOMRepository) Save(_ context.Context, m *cbom.ReadModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.models {
		if id != m.ID && other.ProjectIdentifier == m.ProjectIdentifier {
			return fmt.Errorf("cbom for %s already exists", m.ProjectIdentifier)
		}
	}
	r.models[m.ID] = *m
	return nil
}

func (r *CBOMRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[id]; !ok {
		return fmt.Errorf("%s: %w", id, cbom.ErrNotFound)
	}
	delete(r.models, id)
	return nil
}

func (r *CBOMRepository) ListRecent(_ context.Context, limit int) ([]*cbom.ReadModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*cbom.ReadModel, 0, len(r.models))
	for _, m := range r.models {
		m := m
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
