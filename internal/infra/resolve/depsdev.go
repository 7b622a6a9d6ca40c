package resolve

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"

	depsdevpb "deps.dev/api/v3"
	"github.com/gitsight/go-vcsurl"
	"github.com/hashicorp/go-hclog"
	packageurl "github.com/package-url/packageurl-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// DepsDevAPI is the default address of the deps.dev gRPC API.
const DepsDevAPI = "api.deps.dev:443"

const sourceRepoLabel = "SOURCE_REPO"

// System maps package url types to deps.dev systems.
var System = map[string]depsdevpb.System{
	packageurl.TypeMaven:  depsdevpb.System_MAVEN,
	packageurl.TypePyPi:   depsdevpb.System_PYPI,
	packageurl.TypeNPM:    depsdevpb.System_NPM,
	packageurl.TypeGolang: depsdevpb.System_GO,
	packageurl.TypeCargo:  depsdevpb.System_CARGO,
	packageurl.TypeNuget:  depsdevpb.System_NUGET,
}

// DepsDev looks up the source repository of a package version on deps.dev.
type DepsDev struct {
	Client depsdevpb.InsightsClient
	Logger hclog.Logger
}

// NewDepsDev dials addr over TLS using the system cert pool.
func NewDepsDev(addr string, logger hclog.Logger) (*DepsDev, error) {
	if addr == "" {
		addr = DepsDevAPI
	}
	certPool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("getting system cert pool: %w", err)
	}
	creds := credentials.NewClientTLSFromCert(certPool, "")
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dialling %q: %w", addr, err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DepsDev{Client: depsdevpb.NewInsightsClient(conn), Logger: logger}, nil
}

func (d *DepsDev) Resolve(ctx context.Context, purl packageurl.PackageURL) (scanning.Resolution, error) {
	system, ok := System[purl.Type]
	if !ok {
		return scanning.Resolution{}, fmt.Errorf("%w: unsupported package type %q", scanning.ErrResolutionFailed, purl.Type)
	}
	name := packageName(purl)

	version := purl.Version
	if version == "" {
		v, err := d.defaultVersion(ctx, system, name)
		if err != nil {
			return scanning.Resolution{}, err
		}
		version = v
	}
	if system == depsdevpb.System_GO && !strings.HasPrefix(version, "v") {
		version = "v" + version
	}

	resp, err := d.Client.GetVersion(ctx, &depsdevpb.GetVersionRequest{
		VersionKey: &depsdevpb.VersionKey{System: system, Name: name, Version: version},
	})
	if err != nil {
		return scanning.Resolution{}, fmt.Errorf("%w: deps.dev version %s@%s: %v", scanning.ErrResolutionFailed, name, version, err)
	}

	repo := sourceRepository(resp)
	if repo == "" {
		return scanning.Resolution{}, fmt.Errorf("%w: no source repository for %s@%s", scanning.ErrResolutionFailed, name, version)
	}
	d.logger().Debug("resolved package url", "purl", purl.ToString(), "repository", repo)
	return scanning.Resolution{RepositoryURL: repo}, nil
}

func (d *DepsDev) defaultVersion(ctx context.Context, system depsdevpb.System, name string) (string, error) {
	resp, err := d.Client.GetPackage(ctx, &depsdevpb.GetPackageRequest{
		PackageKey: &depsdevpb.PackageKey{System: system, Name: name},
	})
	if err != nil {
		return "", fmt.Errorf("%w: deps.dev package %s: %v", scanning.ErrResolutionFailed, name, err)
	}
	versions := resp.GetVersions()
	for _, v := range versions {
		if v.GetIsDefault() {
			return v.GetVersionKey().GetVersion(), nil
		}
	}
	if len(versions) > 0 {
		return versions[len(versions)-1].GetVersionKey().GetVersion(), nil
	}
	return "", fmt.Errorf("%w: %s has no versions", scanning.ErrResolutionFailed, name)
}

func (d *DepsDev) logger() hclog.Logger {
	if d.Logger == nil {
		return hclog.NewNullLogger()
	}
	return d.Logger
}

// packageName renders the package name the way deps.dev keys it.
func packageName(purl packageurl.PackageURL) string {
	switch purl.Type {
	case packageurl.TypeMaven:
		return purl.Namespace + ":" + purl.Name
	case packageurl.TypeNPM, packageurl.TypeGolang:
		if purl.Namespace != "" {
			return purl.Namespace + "/" + purl.Name
		}
		return purl.Name
	case packageurl.TypePyPi:
		return strings.ToLower(purl.Name)
	default:
		return purl.Name
	}
}

func sourceRepository(v *depsdevpb.Version) string {
	for _, rp := range v.GetRelatedProjects() {
		if rp.GetRelationType() == depsdevpb.ProjectRelationType_SOURCE_REPO {
			if id := rp.GetProjectKey().GetId(); id != "" {
				return normalizeRepositoryURL(id)
			}
		}
	}
	for _, l := range v.GetLinks() {
		if l.GetLabel() == sourceRepoLabel && l.GetUrl() != "" {
			return normalizeRepositoryURL(l.GetUrl())
		}
	}
	return ""
}

// normalizeRepositoryURL turns project ids (github.com/o/r) and scm links
// (git+https://..., .git suffixes) into a clonable https URL.
func normalizeRepositoryURL(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "git+")
	if info, err := vcsurl.Parse(raw); err == nil && info.FullName != "" {
		return fmt.Sprintf("https://%s/%s", info.Host, info.FullName)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return strings.TrimSuffix(strings.TrimSuffix(raw, "/"), ".git")
}
