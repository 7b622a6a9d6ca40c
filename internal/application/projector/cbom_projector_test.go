package projector

import (
	"context"
	"sync"
	"testing"
	"time"

	cyclonedx "github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cbomkit/internal/application"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
	"github.com/bryanwahyu/cbomkit/internal/infra/db/memory"
)

func artifact(refs ...string) *cbom.CBOM {
	bom := cyclonedx.NewBOM()
	comps := []cyclonedx.Component{}
	for _, r := range refs {
		comps = append(comps, cyclonedx.Component{BOMRef: r, Name: r, Type: cyclonedx.ComponentTypeLibrary})
	}
	bom.Components = &comps
	return cbom.New(bom)
}

func finishedScan(t *testing.T, repo scanning.Repository, url string, results ...scanning.LanguageScan) scanning.ScanID {
	t.Helper()
	agg, err := scanning.RequestScan(scanning.NewScanID(), scanning.ScanRequest{URL: url})
	require.NoError(t, err)
	if _, ok := agg.GitURL(); !ok {
		require.NoError(t, agg.SetResolvedGitURL("https://github.com/bcgit/bc-java"))
	}
	require.NoError(t, agg.SetCommitHash("1a2b3c4"))
	for _, r := range results {
		require.NoError(t, agg.ReportScanResults(r))
	}
	if len(results) > 0 {
		require.NoError(t, agg.ScanFinished(time.Now()))
	}
	require.NoError(t, repo.Save(context.Background(), agg))
	return agg.ID()
}

func newProjector() (*CBOMProjector, *memory.ScanRepository, *memory.CBOMRepository) {
	scans := memory.NewScanRepository()
	cboms := memory.NewCBOMRepository()
	return &CBOMProjector{Scans: scans, CBOMs: cboms, Clock: application.SystemClock{}}, scans, cboms
}

func TestProjectMergesLanguages(t *testing.T) {
	ctx := context.Background()
	p, scans, cboms := newProjector()
	id := finishedScan(t, scans, "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78",
		scanning.LanguageScan{Language: scanning.LanguageJava, CBOM: artifact("aes")},
		scanning.LanguageScan{Language: scanning.LanguagePython, CBOM: artifact("sha-256")},
	)

	require.NoError(t, p.HandleEvent(ctx, scanning.ScanFinishedEvent{ScanID: id}))

	model, err := cboms.FindByProjectIdentifier(ctx, "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/bcgit/bc-java", model.RepositoryURL)
	assert.Equal(t, scanning.RevisionMain, model.Revision)
	assert.Equal(t, "1a2b3c4", model.Commit)

	bom, err := model.Artifact()
	require.NoError(t, err)
	assert.Len(t, bom.Components(), 2)
}

func TestProjectTwiceKeepsLatest(t *testing.T) {
	ctx := context.Background()
	p, scans, cboms := newProjector()
	url := "https://github.com/keycloak/keycloak"

	first := finishedScan(t, scans, url, scanning.LanguageScan{Language: scanning.LanguageJava, CBOM: artifact("old")})
	second := finishedScan(t, scans, url, scanning.LanguageScan{Language: scanning.LanguageJava, CBOM: artifact("new")})

	require.NoError(t, p.Project(ctx, first))
	require.NoError(t, p.Project(ctx, second))
	require.NoError(t, p.Project(ctx, second))

	all, err := cboms.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	bom, err := all[0].Artifact()
	require.NoError(t, err)
	require.Len(t, bom.Components(), 1)
	assert.Equal(t, "new", bom.Components()[0].BOMRef)
}

func TestConcurrentProjectionsOfOneProject(t *testing.T) {
	ctx := context.Background()
	p, scans, cboms := newProjector()
	url := "https://github.com/keycloak/keycloak"

	const n = 8
	ids := make([]scanning.ScanID, n)
	for i := range ids {
		ids[i] = finishedScan(t, scans, url, scanning.LanguageScan{Language: scanning.LanguageJava, CBOM: artifact("aes")})
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.Project(ctx, id)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	all, err := cboms.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Empty(t, p.locks)
}

func TestProjectFailures(t *testing.T) {
	ctx := context.Background()
	p, scans, cboms := newProjector()

	err := p.Project(ctx, scanning.NewScanID())
	assert.ErrorIs(t, err, scanning.ErrEntityNotFound)

	empty := finishedScan(t, scans, "https://github.com/a/b")
	assert.ErrorIs(t, p.Project(ctx, empty), scanning.ErrNoCBOM)

	list, err := cboms.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHandleEventIgnoresOtherEvents(t *testing.T) {
	p, _, _ := newProjector()
	assert.NoError(t, p.HandleEvent(context.Background(), otherEvent{}))
}

type otherEvent struct{}

func (otherEvent) EventName() string { return "other" }
