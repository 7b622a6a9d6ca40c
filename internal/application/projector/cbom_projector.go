package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/application"
	"github.com/bryanwahyu/cbomkit/internal/application/eventbus"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// CBOMProjector rebuilds the read model of a project whenever one of its scans finishes.
type CBOMProjector struct {
	Scans  scanning.Repository
	CBOMs  cbom.ReadRepository
	Clock  application.Clock
	Logger hclog.Logger

	mu    sync.Mutex
	locks map[string]*projectLock
}

type projectLock struct {
	sync.Mutex
	refs int
}

func (p *CBOMProjector) HandleEvent(ctx context.Context, e eventbus.Event) error {
	finished, ok := e.(scanning.ScanFinishedEvent)
	if !ok {
		return nil
	}
	return p.Project(ctx, finished.ScanID)
}

// Project replaces the read model of the scan's project with one built from
// the scan's merged language results.
func (p *CBOMProjector) Project(ctx context.Context, id scanning.ScanID) error {
	agg, err := p.Scans.Read(ctx, id)
	if err != nil {
		return fmt.Errorf("project scan %s: %w", id, err)
	}
	projectID, err := agg.ProjectIdentifier()
	if err != nil {
		return fmt.Errorf("project scan %s: %w", id, err)
	}

	var merged *cbom.CBOM
	for _, ls := range agg.LanguageScans() {
		if ls.CBOM != nil {
			merged = cbom.Merge(merged, ls.CBOM)
		}
	}
	if merged == nil {
		return fmt.Errorf("project scan %s: %w", id, scanning.ErrNoCBOM)
	}
	gitURL, ok := agg.GitURL()
	if !ok {
		return fmt.Errorf("project scan %s: %w", id, scanning.ErrMissingCoordinates)
	}
	payload, err := merged.JSON()
	if err != nil {
		return fmt.Errorf("project scan %s: %w: %v", id, scanning.ErrCBOMSerialization, err)
	}

	// find, delete and save must not interleave for one project
	unlock := p.lock(projectID)
	defer unlock()

	existing, err := p.CBOMs.FindByProjectIdentifier(ctx, projectID)
	switch {
	case err == nil:
		if err := p.CBOMs.Delete(ctx, existing.ID); err != nil {
			return fmt.Errorf("delete previous cbom of %s: %w", projectID, err)
		}
	case !errors.Is(err, cbom.ErrNotFound):
		return fmt.Errorf("lookup cbom of %s: %w", projectID, err)
	}

	folder, _ := agg.PackageFolder()
	commit, _ := agg.Commit()
	model := &cbom.ReadModel{
		ID:                uuid.New(),
		ProjectIdentifier: projectID,
		RepositoryURL:     gitURL,
		Revision:          agg.Revision(),
		Folder:            folder,
		Commit:            commit,
		CreatedAt:         p.now(),
		Bom:               payload,
	}
	if err := p.CBOMs.Save(ctx, model); err != nil {
		return fmt.Errorf("save cbom of %s: %w", projectID, err)
	}
	p.logger().Info("cbom projected", "scan", id, "project", projectID, "components", len(merged.Components()))
	return nil
}

func (p *CBOMProjector) lock(projectID string) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = map[string]*projectLock{}
	}
	l := p.locks[projectID]
	if l == nil {
		l = &projectLock{}
		p.locks[projectID] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(p.locks, projectID)
		}
		p.mu.Unlock()
	}
}

func (p *CBOMProjector) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock.Now().UTC()
}

func (p *CBOMProjector) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}
