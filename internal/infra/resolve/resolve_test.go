package resolve

import (
	"context"
	"errors"
	"testing"

	depsdevpb "deps.dev/api/v3"
	packageurl "github.com/package-url/packageurl-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

func mustParse(t *testing.T, raw string) packageurl.PackageURL {
	t.Helper()
	p, err := packageurl.FromString(raw)
	require.NoError(t, err)
	return p
}

func TestGitHubResolve(t *testing.T) {
	res, err := GitHub{}.Resolve(context.Background(), mustParse(t, "pkg:github/mastercard/client-encryption-java@1b27c1d#lib/core"))
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/mastercard/client-encryption-java", res.RepositoryURL)
	assert.Equal(t, "1b27c1d", res.Commit)
	assert.Equal(t, "lib/core", res.Folder)

	res, err = GitHub{}.Resolve(context.Background(), mustParse(t, "pkg:github/owner/repo"))
	require.NoError(t, err)
	assert.Empty(t, res.Commit)
	assert.Empty(t, res.Folder)
}

func TestGitHubResolveRejectsOtherTypes(t *testing.T) {
	_, err := GitHub{}.Resolve(context.Background(), mustParse(t, "pkg:maven/io.quarkus/quarkus-fs-util@0.0.10"))
	assert.ErrorIs(t, err, scanning.ErrResolutionFailed)
}

type fakeInsights struct {
	depsdevpb.InsightsClient

	versions     []*depsdevpb.Package_Version
	requested    *depsdevpb.VersionKey
	requestedPkg *depsdevpb.PackageKey
}

func (f *fakeInsights) GetPackage(_ context.Context, in *depsdevpb.GetPackageRequest, _ ...grpc.CallOption) (*depsdevpb.Package, error) {
	f.requestedPkg = in.GetPackageKey()
	return &depsdevpb.Package{Versions: f.versions}, nil
}

func (f *fakeInsights) GetVersion(_ context.Context, in *depsdevpb.GetVersionRequest, _ ...grpc.CallOption) (*depsdevpb.Version, error) {
	f.requested = in.GetVersionKey()
	return nil, errors.New("not found")
}

func TestDepsDevRequestsVersion(t *testing.T) {
	fake := &fakeInsights{}
	d := &DepsDev{Client: fake}

	_, err := d.Resolve(context.Background(), mustParse(t, "pkg:maven/io.quarkus/quarkus-fs-util@0.0.10"))
	assert.ErrorIs(t, err, scanning.ErrResolutionFailed)
	require.NotNil(t, fake.requested)
	assert.Equal(t, depsdevpb.System_MAVEN, fake.requested.GetSystem())
	assert.Equal(t, "io.quarkus:quarkus-fs-util", fake.requested.GetName())
	assert.Equal(t, "0.0.10", fake.requested.GetVersion())
}

func TestDepsDevUsesDefaultVersion(t *testing.T) {
	fake := &fakeInsights{versions: []*depsdevpb.Package_Version{
		{VersionKey: &depsdevpb.VersionKey{Version: "1.0.0"}},
		{VersionKey: &depsdevpb.VersionKey{Version: "1.2.0"}, IsDefault: true},
		{VersionKey: &depsdevpb.VersionKey{Version: "2.0.0rc1"}},
	}}
	d := &DepsDev{Client: fake}

	_, err := d.Resolve(context.Background(), mustParse(t, "pkg:pypi/Requests"))
	assert.Error(t, err)
	assert.Equal(t, "requests", fake.requestedPkg.GetName())
	assert.Equal(t, "1.2.0", fake.requested.GetVersion())
}

func TestDepsDevUnsupportedType(t *testing.T) {
	d := &DepsDev{Client: &fakeInsights{}}
	_, err := d.Resolve(context.Background(), mustParse(t, "pkg:deb/debian/curl@7.50.3-1"))
	assert.ErrorIs(t, err, scanning.ErrResolutionFailed)
}

func TestPackageName(t *testing.T) {
	tests := []struct {
		purl string
		want string
	}{
		{"pkg:maven/org.bouncycastle/bcprov-jdk18on@1.78", "org.bouncycastle:bcprov-jdk18on"},
		{"pkg:npm/left-pad@1.3.0", "left-pad"},
		{"pkg:golang/golang.org/x/crypto@v0.21.0", "golang.org/x/crypto"},
		{"pkg:pypi/Django@5.0", "django"},
		{"pkg:cargo/ring@0.17.8", "ring"},
	}
	for _, tt := range tests {
		t.Run(tt.purl, func(t *testing.T) {
			assert.Equal(t, tt.want, packageName(mustParse(t, tt.purl)))
		})
	}
}

func TestNormalizeRepositoryURL(t *testing.T) {
	assert.Equal(t, "https://github.com/quarkusio/quarkus-fs-util", normalizeRepositoryURL("github.com/quarkusio/quarkus-fs-util"))
	assert.Equal(t, "https://github.com/psf/requests", normalizeRepositoryURL("git+https://github.com/psf/requests.git"))
	assert.Equal(t, "https://example.org/scm/project", normalizeRepositoryURL("https://example.org/scm/project/"))
}
