package scanning

import (
	"testing"
	"time"

	cyclonedx "github.com/CycloneDX/cyclonedx-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

func javaScan() LanguageScan {
	return LanguageScan{Language: LanguageJava, CBOM: cbom.New(cyclonedx.NewBOM())}
}

func TestRequestScan(t *testing.T) {
	tests := []struct {
		name         string
		req          ScanRequest
		wantRevision string
		wantPurl     bool
		wantGit      bool
		wantErr      error
	}{
		{name: "empty revision defaults to main", req: ScanRequest{URL: "https://github.com/keycloak/keycloak"}, wantRevision: RevisionMain, wantGit: true},
		{name: "explicit revision kept", req: ScanRequest{URL: "https://github.com/keycloak/keycloak", Revision: "develop"}, wantRevision: "develop", wantGit: true},
		{name: "package url", req: ScanRequest{URL: "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78"}, wantRevision: RevisionMain, wantPurl: true},
		{name: "blank url", req: ScanRequest{URL: "   "}, wantErr: ErrMissingCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := RequestScan(NewScanID(), tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRevision, a.Revision())
			_, hasPurl := a.PackageURL()
			_, hasGit := a.GitURL()
			assert.Equal(t, tt.wantPurl, hasPurl)
			assert.Equal(t, tt.wantGit, hasGit)
			assert.False(t, a.IsFinished())
		})
	}
}

func TestReportScanResultsRejectsDuplicateLanguage(t *testing.T) {
	a, err := RequestScan(NewScanID(), ScanRequest{URL: "https://github.com/a/b"})
	require.NoError(t, err)

	require.NoError(t, a.ReportScanResults(javaScan()))
	require.NoError(t, a.ReportScanResults(LanguageScan{Language: LanguagePython}))
	assert.ErrorIs(t, a.ReportScanResults(javaScan()), ErrLanguageAlreadyReported)
	assert.Len(t, a.LanguageScans(), 2)
}

func TestScanFinished(t *testing.T) {
	a, err := RequestScan(NewScanID(), ScanRequest{URL: "https://github.com/a/b"})
	require.NoError(t, err)

	assert.ErrorIs(t, a.ScanFinished(time.Now()), ErrNoLanguageResults)
	assert.False(t, a.IsFinished())
	assert.Empty(t, a.PullEvents())

	require.NoError(t, a.ReportScanResults(javaScan()))
	require.NoError(t, a.ScanFinished(time.Now()))
	assert.True(t, a.IsFinished())

	events := a.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, a.ID(), events[0].(ScanFinishedEvent).ScanID)
	assert.Empty(t, a.PullEvents())

	assert.ErrorIs(t, a.ScanFinished(time.Now()), ErrScanFinished)
	assert.ErrorIs(t, a.SetCommitHash("abc1234"), ErrScanFinished)
	assert.ErrorIs(t, a.ReportScanResults(LanguageScan{Language: LanguagePython}), ErrScanFinished)
}

func TestProjectIdentifier(t *testing.T) {
	t.Run("package url only", func(t *testing.T) {
		a, err := RequestScan(NewScanID(), ScanRequest{URL: "pkg:github/Keycloak/keycloak-client@abc"})
		require.NoError(t, err)
		id, err := a.ProjectIdentifier()
		require.NoError(t, err)
		p, err := ParsePackageURL("pkg:github/Keycloak/keycloak-client@abc")
		require.NoError(t, err)
		assert.Equal(t, p.String(), id)
	})

	t.Run("repository url only", func(t *testing.T) {
		a, err := RequestScan(NewScanID(), ScanRequest{URL: "https://github.com/keycloak/keycloak"})
		require.NoError(t, err)
		id, err := a.ProjectIdentifier()
		require.NoError(t, err)
		assert.Equal(t, "https://github.com/keycloak/keycloak", id)
	})

	t.Run("package url wins over resolved repository url", func(t *testing.T) {
		a, err := RequestScan(NewScanID(), ScanRequest{URL: "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78"})
		require.NoError(t, err)
		require.NoError(t, a.SetResolvedGitURL("https://github.com/bcgit/bc-java"))
		id, err := a.ProjectIdentifier()
		require.NoError(t, err)
		assert.Equal(t, "pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78", id)
	})

	t.Run("malformed package url", func(t *testing.T) {
		a, err := RequestScan(NewScanID(), ScanRequest{URL: "pkg:"})
		require.NoError(t, err)
		_, err = a.ProjectIdentifier()
		assert.ErrorIs(t, err, ErrNoProjectIdentifier)
	})
}

func TestSnapshotRestore(t *testing.T) {
	a, err := RequestScan(NewScanID(), ScanRequest{URL: "https://github.com/a/b", Folder: "/sub/dir/"})
	require.NoError(t, err)
	require.NoError(t, a.SetCommitHash("1a2b3c4"))
	require.NoError(t, a.ReportScanResults(javaScan()))

	restored := Restore(a.Snapshot())
	assert.Equal(t, a.Snapshot(), restored.Snapshot())
	folder, ok := restored.PackageFolder()
	assert.True(t, ok)
	assert.Equal(t, "sub/dir", folder)
}

func TestCredentialsBasicAuth(t *testing.T) {
	user, pass, ok := (&Credentials{Token: "ghp_x"}).BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "ghp_x", user)
	assert.Empty(t, pass)

	user, pass, ok = (&Credentials{Username: "u", Password: "p"}).BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	var none *Credentials
	_, _, ok = none.BasicAuth()
	assert.False(t, ok)
}
