package resolve

import (
	"context"
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// GitHub resolves pkg:github/<owner>/<repo>@<commit>#<subpath> without a remote call.
type GitHub struct{}

func (GitHub) Resolve(_ context.Context, purl packageurl.PackageURL) (scanning.Resolution, error) {
	if purl.Type != packageurl.TypeGithub {
		return scanning.Resolution{}, fmt.Errorf("%w: github resolver got %s", scanning.ErrResolutionFailed, purl.Type)
	}
	if purl.Namespace == "" || purl.Name == "" {
		return scanning.Resolution{}, fmt.Errorf("%w: %s has no owner", scanning.ErrResolutionFailed, purl.ToString())
	}
	return scanning.Resolution{
		RepositoryURL: "https://github.com/" + purl.Namespace + "/" + purl.Name,
		Commit:        purl.Version,
		Folder:        strings.Trim(purl.Subpath, "/"),
	}, nil
}
