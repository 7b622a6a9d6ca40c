package scanning

import (
	"context"
	"io"
	"time"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

// Repository port untuk write model.
type Repository interface {
	Read(ctx context.Context, id ScanID) (*ScanAggregate, error)
	Save(ctx context.Context, a *ScanAggregate) error
	Delete(ctx context.Context, id ScanID) error
}

// Resolution of a package url to source coordinates. Commit and Folder are
// only set by schemes that carry them.
type Resolution struct {
	RepositoryURL string
	Commit        string
	Folder        string
}

// Resolver maps a package url to its source repository.
type Resolver interface {
	Resolve(ctx context.Context, purl packageurl.PackageURL) (Resolution, error)
}

type CloneRequest struct {
	ScanID      ScanID
	URL         string
	Revision    string
	Commit      string
	Credentials *Credentials
	Progress    io.Writer
}

type CloneResult struct {
	Commit    string
	Directory string
}

// Cloner fetches a repository into a local directory.
type Cloner interface {
	Clone(ctx context.Context, req CloneRequest) (CloneResult, error)
}

// PackageFinder searches a cloned tree for the directory that declares purl.
// Returns the path relative to root, or false when nothing matches.
type PackageFinder interface {
	Find(purl packageurl.PackageURL, root string) (string, bool, error)
}

// Module is one buildable unit found by an indexer. Paths are relative to the clone root.
type Module struct {
	Name  string   `json:"name"`
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
}

// Indexer lists the modules of one language below root (optionally below folder).
type Indexer interface {
	Index(ctx context.Context, root, folder string) ([]Module, error)
}

type ScanResult struct {
	CBOM         *cbom.CBOM
	StartedAt    time.Time
	EndedAt      time.Time
	LinesScanned int
	FilesScanned int
}

// Scanner detects cryptographic assets in a set of modules.
type Scanner interface {
	Scan(ctx context.Context, root string, modules []Module) (ScanResult, error)
}

// LanguageSupport pairs the indexer and scanner of one language.
type LanguageSupport struct {
	Language Language
	Indexer  Indexer
	Scanner  Scanner
}
