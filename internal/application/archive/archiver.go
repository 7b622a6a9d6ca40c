// Package archive keeps a copy of the consolidated CBOM of every finished scan
// in object storage.
package archive

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/application/eventbus"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// ObjectStore uploads a blob. Implementations may compress and suffix the key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Archiver struct {
	Scans  scanning.Repository
	Store  ObjectStore
	Logger hclog.Logger
}

// Key is the object key of a scan's archived CBOM, before compression suffixes.
func Key(id scanning.ScanID) string {
	return "cbom/" + id.String() + ".json"
}

func (a *Archiver) HandleEvent(ctx context.Context, e eventbus.Event) error {
	finished, ok := e.(scanning.ScanFinishedEvent)
	if !ok {
		return nil
	}
	agg, err := a.Scans.Read(ctx, finished.ScanID)
	if err != nil {
		return fmt.Errorf("archive scan %s: %w", finished.ScanID, err)
	}
	var merged *cbom.CBOM
	for _, ls := range agg.LanguageScans() {
		if ls.CBOM != nil {
			merged = cbom.Merge(merged, ls.CBOM)
		}
	}
	if merged == nil {
		return fmt.Errorf("archive scan %s: %w", finished.ScanID, scanning.ErrNoCBOM)
	}
	payload, err := merged.JSON()
	if err != nil {
		return fmt.Errorf("archive scan %s: %w", finished.ScanID, err)
	}
	url, err := a.Store.Put(ctx, Key(finished.ScanID), payload, "application/json")
	if err != nil {
		return fmt.Errorf("archive scan %s: %w", finished.ScanID, err)
	}
	if a.Logger != nil {
		a.Logger.Info("cbom archived", "scan", finished.ScanID.String(), "url", url)
	}
	return nil
}
