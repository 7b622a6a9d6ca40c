package scanning

import (
	"context"
	"strings"
	"sync"

	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// StartRequest is what a client submits to scan a repository or package.
type StartRequest struct {
	ScanURL     string              `json:"scanUrl"`
	Branch      string              `json:"branch,omitempty"`
	Subfolder   string              `json:"subfolder,omitempty"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
}

// Service implements the scan use cases. Safe for concurrent use.
type Service struct {
	deps Dependencies

	mu     sync.Mutex
	active map[domain.ScanID]*Saga
}

// NewService registers the process wide StartScan handler on deps.Bus.
func NewService(deps Dependencies) *Service {
	s := &Service{deps: deps, active: map[domain.ScanID]*Saga{}}
	deps.Bus.Register(&RequestHandler{
		Bus:    deps.Bus,
		Scans:  deps.Scans,
		Logger: deps.Logger,
		Failed: s.fail,
	}, KindStartScan)
	return s
}

// Start creates a saga for a new scan and dispatches its start command. The
// scan runs in the background; progress goes to progress.
func (s *Service) Start(ctx context.Context, req StartRequest, progress domain.ProgressDispatcher) (*Saga, error) {
	if strings.TrimSpace(req.ScanURL) == "" {
		return nil, domain.ErrMissingCoordinates
	}
	id := domain.NewScanID()
	saga := NewSaga(id, s.deps, progress)
	saga.release = func() { s.forget(id) }
	s.mu.Lock()
	s.active[id] = saga
	s.mu.Unlock()
	s.deps.Bus.Register(saga, StepKinds...)

	if s.deps.Observer != nil {
		s.deps.Observer.ScanStarted()
	}
	saga.label(domain.LabelStarting)
	s.deps.Bus.Send(ctx, StartScan{
		ScanID: id,
		Request: domain.ScanRequest{
			URL:      req.ScanURL,
			Revision: req.Branch,
			Folder:   req.Subfolder,
		},
		Credentials: req.Credentials,
	})
	return saga, nil
}

// Status returns the stored state of a scan.
func (s *Service) Status(ctx context.Context, id domain.ScanID) (*domain.ScanAggregate, error) {
	return s.deps.Scans.Read(ctx, id)
}

// Running is the number of sagas that have not terminated.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// fail compensates the saga of a scan whose start command failed.
func (s *Service) fail(id domain.ScanID, err error) {
	s.mu.Lock()
	saga := s.active[id]
	s.mu.Unlock()
	if saga != nil {
		saga.compensate(err)
	}
}

func (s *Service) forget(id domain.ScanID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
