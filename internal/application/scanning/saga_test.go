package scanning

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	cyclonedx "github.com/CycloneDX/cyclonedx-go"
	"github.com/hashicorp/go-hclog"
	packageurl "github.com/package-url/packageurl-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cbomkit/internal/application/commandbus"
	"github.com/bryanwahyu/cbomkit/internal/application/eventbus"
	"github.com/bryanwahyu/cbomkit/internal/application/projector"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
	"github.com/bryanwahyu/cbomkit/internal/infra/db/memory"
)

type recordingProgress struct {
	mu   sync.Mutex
	msgs []domain.ProgressMessage
}

func (p *recordingProgress) Send(m domain.ProgressMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *recordingProgress) all() []domain.ProgressMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ProgressMessage(nil), p.msgs...)
}

func (p *recordingProgress) ofType(t domain.ProgressType) []string {
	var out []string
	for _, m := range p.all() {
		if m.Type == t {
			out = append(out, m.Message)
		}
	}
	return out
}

type disconnected struct{}

func (disconnected) Send(domain.ProgressMessage) error { return domain.ErrClientDisconnected }

type fakeResolver struct {
	res domain.Resolution
	err error
}

func (r *fakeResolver) Resolve(context.Context, packageurl.PackageURL) (domain.Resolution, error) {
	return r.res, r.err
}

type fakeCloner struct {
	mu     sync.Mutex
	base   string
	commit string
	failOn map[string]bool
	calls  []string
}

func (c *fakeCloner) Clone(_ context.Context, req domain.CloneRequest) (domain.CloneResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req.Revision)
	c.mu.Unlock()
	if c.failOn[req.Revision] {
		return domain.CloneResult{}, fmt.Errorf("%w: revision %s not found", domain.ErrGitCloneFailed, req.Revision)
	}
	dir := filepath.Join(c.base, req.ScanID.Compact())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.CloneResult{}, err
	}
	if req.Progress != nil {
		fmt.Fprint(req.Progress, "Counting objects: 100% (3/3), done.\n")
	}
	commit := req.Commit
	if commit == "" {
		commit = c.commit
	}
	return domain.CloneResult{Commit: commit, Directory: dir}, nil
}

func (c *fakeCloner) revisions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeFinder struct {
	dir   string
	found bool
}

func (f *fakeFinder) Find(packageurl.PackageURL, string) (string, bool, error) {
	return f.dir, f.found, nil
}

type fakeIndexer struct{ modules []domain.Module }

func (i *fakeIndexer) Index(context.Context, string, string) ([]domain.Module, error) {
	return i.modules, nil
}

type fakeScanner struct {
	refs []string
}

func (s *fakeScanner) Scan(_ context.Context, _ string, modules []domain.Module) (domain.ScanResult, error) {
	now := time.Now()
	res := domain.ScanResult{StartedAt: now, EndedAt: now, LinesScanned: 10 * len(modules), FilesScanned: len(modules)}
	if s.refs == nil {
		return res, nil
	}
	bom := cyclonedx.NewBOM()
	comps := []cyclonedx.Component{}
	for _, r := range s.refs {
		comps = append(comps, cyclonedx.Component{BOMRef: r, Name: r, Type: cyclonedx.ComponentTypeLibrary})
	}
	bom.Components = &comps
	res.CBOM = cbom.New(bom)
	return res, nil
}

// finishedCheck asserts the aggregate is already saved as finished when the event arrives.
type finishedCheck struct {
	scans domain.Repository
	mu    sync.Mutex
	seen  []bool
}

func (f *finishedCheck) HandleEvent(ctx context.Context, e eventbus.Event) error {
	ev, ok := e.(domain.ScanFinishedEvent)
	if !ok {
		return nil
	}
	agg, err := f.scans.Read(ctx, ev.ScanID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, err == nil && agg.IsFinished())
	return nil
}

type harness struct {
	bus      *commandbus.Bus
	scans    *memory.ScanRepository
	cboms    *memory.CBOMRepository
	cloner   *fakeCloner
	finder   *fakeFinder
	scanner  *fakeScanner
	check    *finishedCheck
	service  *Service
	progress *recordingProgress
	github   *fakeResolver
	depsdev  *fakeResolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		bus:      commandbus.New(8, hclog.NewNullLogger()),
		scans:    memory.NewScanRepository(),
		cboms:    memory.NewCBOMRepository(),
		cloner:   &fakeCloner{base: t.TempDir(), commit: "1a2b3c4", failOn: map[string]bool{}},
		finder:   &fakeFinder{},
		scanner:  &fakeScanner{refs: []string{"crypto/algorithm/aes-256-gcm@2.16.840.1.101.3.4.1.46"}},
		progress: &recordingProgress{},
		github:   &fakeResolver{},
		depsdev:  &fakeResolver{res: domain.Resolution{RepositoryURL: "https://github.com/bcgit/bc-java"}},
	}
	events := eventbus.New(nil)
	events.Subscribe(&projector.CBOMProjector{Scans: h.scans, CBOMs: h.cboms})
	h.check = &finishedCheck{scans: h.scans}
	events.Subscribe(h.check)

	h.service = NewService(Dependencies{
		Bus:             h.bus,
		Scans:           h.scans,
		Events:          events,
		Resolvers:       map[string]domain.Resolver{packageurl.TypeGithub: h.github},
		DefaultResolver: h.depsdev,
		Cloner:          h.cloner,
		Finders:         map[string]domain.PackageFinder{packageurl.TypeMaven: h.finder},
		Languages: []domain.LanguageSupport{{
			Language: domain.LanguageJava,
			Indexer:  &fakeIndexer{modules: []domain.Module{{Name: "core", Dir: ".", Files: []string{"A.java"}}}},
			Scanner:  h.scanner,
		}},
	})
	return h
}

func (h *harness) run(t *testing.T, req StartRequest) *Saga {
	t.Helper()
	saga, err := h.service.Start(context.Background(), req, h.progress)
	require.NoError(t, err)
	select {
	case <-saga.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("saga did not terminate")
	}
	h.bus.Wait()
	return saga
}

func (h *harness) assertUnregistered(t *testing.T) {
	t.Helper()
	for _, k := range StepKinds {
		assert.Equal(t, 0, h.bus.Handlers(k), "kind %s", k)
	}
}

func TestScanFromPackageURL(t *testing.T) {
	h := newHarness(t)
	purl := "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78"

	saga := h.run(t, StartRequest{ScanURL: purl})
	require.NoError(t, saga.Err())

	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	assert.True(t, agg.IsFinished())
	gitURL, _ := agg.GitURL()
	assert.Equal(t, "https://github.com/bcgit/bc-java", gitURL)
	_, hasFolder := agg.PackageFolder()
	assert.False(t, hasFolder)
	require.Len(t, agg.LanguageScans(), 1)

	model, err := h.cboms.FindByProjectIdentifier(context.Background(), purl)
	require.NoError(t, err)
	assert.Equal(t, "1a2b3c4", model.Commit)
	bom, err := model.Artifact()
	require.NoError(t, err)
	require.Len(t, bom.Components(), 1)
	assert.Equal(t, "https://github.com/bcgit/bc-java", bom.Properties()[cbom.PropertyGitURL])

	msgs := h.progress.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, domain.ProgressMessage{Type: domain.ProgressLabel, Message: domain.LabelStarting}, msgs[0])
	assert.Equal(t, domain.ProgressMessage{Type: domain.ProgressLabel, Message: domain.LabelFinished}, msgs[len(msgs)-1])
	assert.Equal(t, []string{"1a2b3c4"}, h.progress.ofType(domain.ProgressRevisionHash))
	assert.Equal(t, []string{"1"}, h.progress.ofType(domain.ProgressFileCount))
	assert.Equal(t, []string{"10"}, h.progress.ofType(domain.ProgressLineCount))
	assert.Len(t, h.progress.ofType(domain.ProgressCBOM), 1)
	assert.Empty(t, h.progress.ofType(domain.ProgressError))

	assert.Equal(t, []bool{true}, h.check.seen)
	h.assertUnregistered(t)
	entries, err := os.ReadDir(h.cloner.base)
	require.NoError(t, err)
	assert.Empty(t, entries, "clone dir should be removed")
}

func TestScanFromGithubPackageURLUsesCommitAndSubpath(t *testing.T) {
	h := newHarness(t)
	h.github.res = domain.Resolution{RepositoryURL: "https://github.com/acme/crypto", Commit: "9f8e7d6", Folder: "lib/core"}
	h.finder.found, h.finder.dir = true, "elsewhere"

	saga := h.run(t, StartRequest{ScanURL: "pkg:github/acme/crypto@9f8e7d6#lib/core"})
	require.NoError(t, saga.Err())

	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	commit, _ := agg.Commit()
	folder, _ := agg.PackageFolder()
	assert.Equal(t, "9f8e7d6", commit)
	assert.Equal(t, "lib/core", folder)
	assert.Equal(t, []string{"lib/core"}, h.progress.ofType(domain.ProgressFolder))
}

func TestScanLocatesPackageFolder(t *testing.T) {
	h := newHarness(t)
	h.finder.found, h.finder.dir = true, "prov"

	saga := h.run(t, StartRequest{ScanURL: "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78"})
	require.NoError(t, saga.Err())

	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	folder, _ := agg.PackageFolder()
	assert.Equal(t, "prov", folder)
}

func TestCloneFailureOnMainRetriesWithMaster(t *testing.T) {
	h := newHarness(t)
	h.cloner.failOn[domain.RevisionMain] = true

	saga := h.run(t, StartRequest{ScanURL: "https://github.com/keycloak/keycloak"})
	require.NoError(t, saga.Err())

	assert.Equal(t, []string{domain.RevisionMain, domain.RevisionMaster}, h.cloner.revisions())
	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.RevisionMaster, agg.Revision())
	assert.True(t, agg.IsFinished())
	assert.Empty(t, h.progress.ofType(domain.ProgressError))

	_, err = h.cboms.FindByProjectIdentifier(context.Background(), "https://github.com/keycloak/keycloak")
	assert.NoError(t, err)
	h.assertUnregistered(t)
}

func TestCloneFailureOnMasterIsNotRetriedAgain(t *testing.T) {
	h := newHarness(t)
	h.cloner.failOn[domain.RevisionMain] = true
	h.cloner.failOn[domain.RevisionMaster] = true

	saga := h.run(t, StartRequest{ScanURL: "https://github.com/keycloak/keycloak"})
	assert.ErrorIs(t, saga.Err(), domain.ErrGitCloneFailed)
	assert.Equal(t, []string{domain.RevisionMain, domain.RevisionMaster}, h.cloner.revisions())
	assert.Len(t, h.progress.ofType(domain.ProgressError), 1)
	h.assertUnregistered(t)
}

func TestCloneFailureOnOtherBranchCompensates(t *testing.T) {
	h := newHarness(t)
	h.cloner.failOn["develop"] = true

	saga := h.run(t, StartRequest{ScanURL: "https://github.com/keycloak/keycloak", Branch: "develop"})
	assert.ErrorIs(t, saga.Err(), domain.ErrGitCloneFailed)
	assert.Equal(t, []string{"develop"}, h.cloner.revisions())

	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	assert.False(t, agg.IsFinished())
	h.assertUnregistered(t)
}

func TestMalformedPackageURLNeverClones(t *testing.T) {
	h := newHarness(t)

	saga := h.run(t, StartRequest{ScanURL: "pkg:maven"})
	assert.ErrorIs(t, saga.Err(), domain.ErrInvalidPackageURL)

	assert.Empty(t, h.cloner.revisions())
	entries, err := os.ReadDir(h.cloner.base)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, h.progress.ofType(domain.ProgressError), 1)

	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	assert.False(t, agg.IsFinished())
	h.assertUnregistered(t)
}

func TestResolverFailureCompensates(t *testing.T) {
	h := newHarness(t)
	h.depsdev.err = fmt.Errorf("%w: not found", domain.ErrResolutionFailed)

	saga := h.run(t, StartRequest{ScanURL: "pkg:pypi/cryptography@42.0.0"})
	assert.ErrorIs(t, saga.Err(), domain.ErrResolutionFailed)
	assert.Empty(t, h.cloner.revisions())
}

func TestScanWithoutArtifactFails(t *testing.T) {
	h := newHarness(t)
	h.scanner.refs = nil

	saga := h.run(t, StartRequest{ScanURL: "https://github.com/a/b"})
	assert.ErrorIs(t, saga.Err(), domain.ErrCBOMSerialization)
	assert.ErrorIs(t, saga.Err(), domain.ErrNoCBOM)

	agg, err := h.scans.Read(context.Background(), saga.ID())
	require.NoError(t, err)
	assert.False(t, agg.IsFinished())
	list, err := h.cboms.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStartRejectsEmptyURL(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Start(context.Background(), StartRequest{}, h.progress)
	assert.ErrorIs(t, err, domain.ErrMissingCoordinates)
	h.assertUnregistered(t)
}

func TestSagaIgnoresOtherScans(t *testing.T) {
	h := newHarness(t)
	saga := NewSaga(domain.NewScanID(), Dependencies{Bus: h.bus, Scans: h.scans}, h.progress)
	h.bus.Register(saga, StepKinds...)

	ok := h.bus.SendSync(context.Background(), LocatePackage{ScanID: domain.NewScanID()})
	assert.True(t, ok)
	select {
	case <-saga.Done():
		t.Fatal("saga reacted to a foreign command")
	default:
	}
	assert.Empty(t, h.progress.all())
}

func TestDisconnectedClientDoesNotAbortScan(t *testing.T) {
	h := newHarness(t)
	saga, err := h.service.Start(context.Background(), StartRequest{ScanURL: "https://github.com/a/b"}, disconnected{})
	require.NoError(t, err)
	<-saga.Done()
	h.bus.Wait()
	assert.NoError(t, saga.Err())
}

func TestConcurrentScansDoNotInterfere(t *testing.T) {
	h := newHarness(t)
	const n = 6
	sagas := make([]*Saga, n)
	for i := range sagas {
		saga, err := h.service.Start(context.Background(), StartRequest{ScanURL: fmt.Sprintf("https://github.com/acme/repo-%d", i)}, h.progress)
		require.NoError(t, err)
		sagas[i] = saga
	}
	for _, s := range sagas {
		select {
		case <-s.Done():
		case <-time.After(10 * time.Second):
			t.Fatal("saga did not terminate")
		}
		assert.NoError(t, s.Err())
	}
	h.bus.Wait()

	list, err := h.cboms.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, n)
	assert.Equal(t, n, h.scans.Len())
	h.assertUnregistered(t)
}

// failingSaves rejects saves of aggregates on the given revision; "" rejects all.
type failingSaves struct {
	*memory.ScanRepository
	revision string
}

func (r failingSaves) Save(ctx context.Context, a *domain.ScanAggregate) error {
	if r.revision == "" || a.Revision() == r.revision {
		return fmt.Errorf("db down")
	}
	return r.ScanRepository.Save(ctx, a)
}

// newFailingService runs on its own bus so the harness's request handler stays out.
func newFailingService(h *harness, scans domain.Repository) (*Service, *commandbus.Bus) {
	bus := commandbus.New(8, hclog.NewNullLogger())
	return NewService(Dependencies{
		Bus:       bus,
		Scans:     scans,
		Cloner:    h.cloner,
		Resolvers: map[string]domain.Resolver{packageurl.TypeGithub: h.github},
		Languages: []domain.LanguageSupport{{
			Language: domain.LanguageJava,
			Indexer:  &fakeIndexer{},
			Scanner:  h.scanner,
		}},
	}), bus
}

func waitDone(t *testing.T, saga *Saga) {
	t.Helper()
	select {
	case <-saga.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("saga did not terminate")
	}
}

func TestFailedRequestCompensates(t *testing.T) {
	h := newHarness(t)
	svc, bus := newFailingService(h, failingSaves{ScanRepository: memory.NewScanRepository()})

	saga, err := svc.Start(context.Background(), StartRequest{ScanURL: "https://github.com/a/b"}, h.progress)
	require.NoError(t, err)
	waitDone(t, saga)
	bus.Wait()

	require.Error(t, saga.Err())
	assert.Contains(t, saga.Err().Error(), "db down")
	assert.NotEmpty(t, h.progress.ofType(domain.ProgressError))
	for _, k := range StepKinds {
		assert.Equal(t, 0, bus.Handlers(k), "kind %s", k)
	}
	assert.Equal(t, 0, svc.Running())
}

func TestFailedRetryOnMasterCompensates(t *testing.T) {
	h := newHarness(t)
	h.cloner.failOn[domain.RevisionMain] = true
	svc, bus := newFailingService(h, failingSaves{ScanRepository: memory.NewScanRepository(), revision: domain.RevisionMaster})

	saga, err := svc.Start(context.Background(), StartRequest{ScanURL: "https://github.com/a/b"}, h.progress)
	require.NoError(t, err)
	waitDone(t, saga)
	bus.Wait()

	require.Error(t, saga.Err())
	assert.Equal(t, []string{domain.RevisionMain}, h.cloner.revisions())
	for _, k := range StepKinds {
		assert.Equal(t, 0, bus.Handlers(k), "kind %s", k)
	}
	assert.Equal(t, 0, svc.Running())
}
