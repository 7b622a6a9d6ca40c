// Package memory holds process-local repositories used by the CLI and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

type ScanRepository struct {
	mu    sync.RWMutex
	scans map[scanning.ScanID]scanning.Snapshot
}

func NewScanRepository() *ScanRepository {
	return &ScanRepository{scans: map[scanning.ScanID]scanning.Snapshot{}}
}

func (r *ScanRepository) Read(_ context.Context, id scanning.ScanID) (*scanning.ScanAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scans[id]
	if !ok {
		return nil, fmt.Errorf("scan %s: %w", id, scanning.ErrEntityNotFound)
	}
	s.Results = append([]scanning.LanguageScan(nil), s.Results...)
	return scanning.Restore(s), nil
}

func (r *ScanRepository) Save(_ context.Context, a *scanning.ScanAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans[a.ID()] = a.Snapshot()
	return nil
}

func (r *ScanRepository) Delete(_ context.Context, id scanning.ScanID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scans, id)
	return nil
}

// Len is the number of stored scans.
func (r *ScanRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scans)
}
