package scanning

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/application/commandbus"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// RequestHandler creates the aggregate for a StartScan command and hands the
// scan to its saga. One instance serves every scan.
type RequestHandler struct {
	Bus    *commandbus.Bus
	Scans  domain.Repository
	Logger hclog.Logger
	// Failed is told when a scan cannot be requested so its saga can compensate.
	Failed func(id domain.ScanID, err error)
}

func (h *RequestHandler) Handle(ctx context.Context, cmd commandbus.Command) error {
	start, ok := cmd.(StartScan)
	if !ok {
		return fmt.Errorf("unexpected command %s", cmd.Kind())
	}
	if err := h.request(ctx, start); err != nil {
		if h.Failed != nil {
			h.Failed(start.ScanID, err)
		}
		return err
	}
	return nil
}

func (h *RequestHandler) request(ctx context.Context, start StartScan) error {
	agg, err := domain.RequestScan(start.ScanID, start.Request)
	if err != nil {
		return fmt.Errorf("request scan %s: %w", start.ScanID, err)
	}
	if err := h.Scans.Save(ctx, agg); err != nil {
		return fmt.Errorf("save scan %s: %w", start.ScanID, err)
	}
	if h.Logger != nil {
		h.Logger.Info("scan requested", "scan", start.ScanID, "url", start.Request.URL, "revision", agg.Revision())
	}
	h.Bus.Send(ctx, ResolveCoordinates{ScanID: start.ScanID, Credentials: start.Credentials})
	return nil
}
