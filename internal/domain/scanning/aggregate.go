package scanning

import (
	"fmt"
	"sort"
	"strings"
	"time"

	packageurl "github.com/package-url/packageurl-go"
)

// ScanRequest coordinates supplied by the caller. URL is either a package url
// (pkg:...) or a repository url.
type ScanRequest struct {
	URL      string
	Revision string
	Folder   string
}

// ScanAggregate is the write model of one scan.
type ScanAggregate struct {
	id         ScanID
	packageURL string
	gitURL     string
	revision   string
	folder     string
	commit     string
	results    map[Language]LanguageScan
	finished   bool
	events     []DomainEvent
}

// RequestScan creates the aggregate. Revision defaults to main.
func RequestScan(id ScanID, req ScanRequest) (*ScanAggregate, error) {
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return nil, ErrMissingCoordinates
	}
	a := &ScanAggregate{
		id:       id,
		revision: strings.TrimSpace(req.Revision),
		folder:   cleanFolder(req.Folder),
		results:  map[Language]LanguageScan{},
	}
	if a.revision == "" {
		a.revision = RevisionMain
	}
	if IsPackageURL(raw) {
		a.packageURL = raw
	} else {
		a.gitURL = raw
	}
	return a, nil
}

// IsPackageURL reports whether s uses the pkg scheme.
func IsPackageURL(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "pkg:")
}

// ParsePackageURL parses and validates a package url.
func ParsePackageURL(s string) (packageurl.PackageURL, error) {
	p, err := packageurl.FromString(strings.TrimSpace(s))
	if err != nil {
		return packageurl.PackageURL{}, fmt.Errorf("%w: %s: %v", ErrInvalidPackageURL, s, err)
	}
	if p.Type == "" || p.Name == "" {
		return packageurl.PackageURL{}, fmt.Errorf("%w: %s", ErrInvalidPackageURL, s)
	}
	return p, nil
}

func (a *ScanAggregate) ID() ScanID { return a.id }

// PackageURL returns the raw package url as requested.
func (a *ScanAggregate) PackageURL() (string, bool) { return a.packageURL, a.packageURL != "" }

func (a *ScanAggregate) GitURL() (string, bool) { return a.gitURL, a.gitURL != "" }

func (a *ScanAggregate) Revision() string { return a.revision }

func (a *ScanAggregate) PackageFolder() (string, bool) { return a.folder, a.folder != "" }

func (a *ScanAggregate) Commit() (string, bool) { return a.commit, a.commit != "" }

func (a *ScanAggregate) IsFinished() bool { return a.finished }

// LanguageScans returns the reported results ordered by language.
func (a *ScanAggregate) LanguageScans() []LanguageScan {
	out := make([]LanguageScan, 0, len(a.results))
	for _, r := range a.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// ProjectIdentifier is the canonical package url when present, else the repository url.
func (a *ScanAggregate) ProjectIdentifier() (string, error) {
	if a.packageURL != "" {
		p, err := ParsePackageURL(a.packageURL)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNoProjectIdentifier, err)
		}
		return p.String(), nil
	}
	if a.gitURL != "" {
		return a.gitURL, nil
	}
	return "", ErrNoProjectIdentifier
}

func (a *ScanAggregate) SetResolvedGitURL(url string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrMissingCoordinates
	}
	a.gitURL = url
	return nil
}

func (a *ScanAggregate) SetCommitHash(commit string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	commit = strings.TrimSpace(commit)
	if commit == "" {
		return ErrNoCommit
	}
	a.commit = commit
	return nil
}

func (a *ScanAggregate) SetPackageFolder(folder string) error {
	if err := a.mutable(); err != nil {
		return err
	}
	a.folder = cleanFolder(folder)
	return nil
}

// ReportScanResults adds the result of one language. A language can only be reported once.
func (a *ScanAggregate) ReportScanResults(ls LanguageScan) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if _, ok := a.results[ls.Language]; ok {
		return fmt.Errorf("%w: %s", ErrLanguageAlreadyReported, ls.Language)
	}
	a.results[ls.Language] = ls
	return nil
}

// ScanFinished moves the aggregate to its terminal state and raises ScanFinishedEvent.
func (a *ScanAggregate) ScanFinished(at time.Time) error {
	if err := a.mutable(); err != nil {
		return err
	}
	if len(a.results) == 0 {
		return ErrNoLanguageResults
	}
	a.finished = true
	a.events = append(a.events, ScanFinishedEvent{ScanID: a.id, OccurredAt: at})
	return nil
}

// PullEvents returns pending events and clears them.
func (a *ScanAggregate) PullEvents() []DomainEvent {
	out := a.events
	a.events = nil
	return out
}

func (a *ScanAggregate) mutable() error {
	if a.finished {
		return ErrScanFinished
	}
	return nil
}

func cleanFolder(f string) string {
	return strings.Trim(strings.TrimSpace(f), "/")
}

// Snapshot is the persisted shape of the aggregate.
type Snapshot struct {
	ID         ScanID         `json:"id"`
	PackageURL string         `json:"packageUrl,omitempty"`
	GitURL     string         `json:"gitUrl,omitempty"`
	Revision   string         `json:"revision"`
	Folder     string         `json:"folder,omitempty"`
	Commit     string         `json:"commit,omitempty"`
	Finished   bool           `json:"finished"`
	Results    []LanguageScan `json:"results"`
}

func (a *ScanAggregate) Snapshot() Snapshot {
	return Snapshot{
		ID:         a.id,
		PackageURL: a.packageURL,
		GitURL:     a.gitURL,
		Revision:   a.revision,
		Folder:     a.folder,
		Commit:     a.commit,
		Finished:   a.finished,
		Results:    a.LanguageScans(),
	}
}

// Restore rebuilds an aggregate loaded from storage.
func Restore(s Snapshot) *ScanAggregate {
	a := &ScanAggregate{
		id:         s.ID,
		packageURL: s.PackageURL,
		gitURL:     s.GitURL,
		revision:   s.Revision,
		folder:     s.Folder,
		commit:     s.Commit,
		finished:   s.Finished,
		results:    make(map[Language]LanguageScan, len(s.Results)),
	}
	if a.revision == "" {
		a.revision = RevisionMain
	}
	for _, r := range s.Results {
		a.results[r.Language] = r
	}
	return a
}
