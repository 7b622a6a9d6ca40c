package cboms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/cbomkit/internal/application"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

// MaxListLimit caps ListRecent.
const MaxListLimit = 100

var (
	ErrInvalidLimit              = errors.New("limit must be between 1 and 100")
	ErrProjectIdentifierRequired = errors.New("project identifier required")
	ErrInvalidCBOM               = errors.New("invalid cbom")
)

// Service implements the read side use cases for stored CBOMs.
type Service struct {
	Repo  domain.ReadRepository
	Clock application.Clock
}

func (s *Service) Get(ctx context.Context, projectIdentifier string) (*domain.ReadModel, error) {
	return s.Repo.FindByProjectIdentifier(ctx, strings.TrimSpace(projectIdentifier))
}

func (s *Service) ListRecent(ctx context.Context, limit int) ([]*domain.ReadModel, error) {
	if limit < 1 || limit > MaxListLimit {
		return nil, ErrInvalidLimit
	}
	return s.Repo.ListRecent(ctx, limit)
}

// Store saves an uploaded CBOM as the read model of projectIdentifier,
// replacing any previous one. Repository coordinates come from the CBOM metadata.
func (s *Service) Store(ctx context.Context, projectIdentifier string, payload []byte) (*domain.ReadModel, error) {
	projectIdentifier = strings.TrimSpace(projectIdentifier)
	if projectIdentifier == "" {
		return nil, ErrProjectIdentifierRequired
	}
	bom, err := domain.FromJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCBOM, err)
	}
	normalized, err := bom.JSON()
	if err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, projectIdentifier); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	props := bom.Properties()
	model := &domain.ReadModel{
		ID:                uuid.New(),
		ProjectIdentifier: projectIdentifier,
		RepositoryURL:     props[domain.PropertyGitURL],
		Revision:          props[domain.PropertyRevision],
		Folder:            props[domain.PropertyFolder],
		Commit:            props[domain.PropertyCommit],
		CreatedAt:         s.clock().Now().UTC(),
		Bom:               normalized,
	}
	if err := s.Repo.Save(ctx, model); err != nil {
		return nil, fmt.Errorf("store cbom of %s: %w", projectIdentifier, err)
	}
	return model, nil
}

func (s *Service) Delete(ctx context.Context, projectIdentifier string) error {
	existing, err := s.Get(ctx, projectIdentifier)
	if err != nil {
		return err
	}
	return s.Repo.Delete(ctx, existing.ID)
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}
