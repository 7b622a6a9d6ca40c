package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitsight/go-vcsurl"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

const abbrevLength = 7

var errRevisionNotFound = errors.New("revision not found")

// Cloner clones repositories below a base directory, one directory per scan.
type Cloner struct {
	baseDir         string
	insecureSkipTLS bool
	logger          hclog.Logger
}

func NewCloner(baseDir string, insecureSkipTLS bool, logger hclog.Logger) *Cloner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cloner{baseDir: baseDir, insecureSkipTLS: insecureSkipTLS, logger: logger}
}

// Clone fetches req.URL into <baseDir>/<scan id> and checks out the known
// commit, or the commit the revision points at.
func (c *Cloner) Clone(ctx context.Context, req scanning.CloneRequest) (scanning.CloneResult, error) {
	targetFolder := filepath.Join(c.baseDir, req.ScanID.Compact())
	repository := req.URL
	if info, err := vcsurl.Parse(req.URL); err == nil {
		repository = info.ID
	}

	c.logger.Debug("starting repository clone", "repository", repository, "revision", req.Revision, "commit", req.Commit, "targetFolder", targetFolder)
	repo, err := git.PlainCloneContext(ctx, targetFolder, false, &git.CloneOptions{
		URL:             req.URL,
		Auth:            authFor(req.Credentials),
		Progress:        req.Progress,
		Tags:            git.AllTags,
		InsecureSkipTLS: c.insecureSkipTLS,
	})
	if err != nil {
		c.cleanup(targetFolder)
		c.logger.Error("error occurred during clone", "repository", repository, "error", err)
		return scanning.CloneResult{}, fmt.Errorf("%w: %s: %v", scanning.ErrGitCloneFailed, req.URL, err)
	}

	var hash plumbing.Hash
	if req.Commit != "" {
		h, err := repo.ResolveRevision(plumbing.Revision(req.Commit))
		if err != nil {
			c.cleanup(targetFolder)
			return scanning.CloneResult{}, fmt.Errorf("%w: commit %s: %v", scanning.ErrGitCloneFailed, req.Commit, err)
		}
		hash = *h
	} else {
		hash, err = resolveRevision(repo, req.Revision)
		if err != nil {
			c.cleanup(targetFolder)
			return scanning.CloneResult{}, fmt.Errorf("%w: %s: %v", scanning.ErrGitCloneFailed, req.URL, err)
		}
	}

	if err := checkout(repo, hash); err != nil {
		c.cleanup(targetFolder)
		return scanning.CloneResult{}, fmt.Errorf("%w: %v", scanning.ErrGitCloneFailed, err)
	}

	c.logger.Info("repository cloned", "repository", repository, "revision", req.Revision, "commit", abbreviate(hash), "targetFolder", targetFolder)
	return scanning.CloneResult{Commit: abbreviate(hash), Directory: targetFolder}, nil
}

func (c *Cloner) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("failed to remove clone directory", "targetFolder", dir, "error", err)
	}
}

// resolveRevision looks for a tag named revision (or ending in "/"+revision),
// then for a local or remote branch of that name. Annotated tags resolve to
// their target.
func resolveRevision(repo *git.Repository, revision string) (plumbing.Hash, error) {
	tags, err := repo.Tags()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("list tags: %w", err)
	}
	var tagged *plumbing.Reference
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		if name := ref.Name().Short(); name == revision || strings.HasSuffix(name, "/"+revision) {
			tagged = ref
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("iterate tags: %w", err)
	}
	if tagged != nil {
		return peel(repo, tagged), nil
	}

	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(revision),
		plumbing.NewRemoteReferenceName("origin", revision),
	} {
		ref, err := repo.Reference(name, true)
		if err == nil {
			return ref.Hash(), nil
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("lookup %s: %w", name, err)
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("%w: %s", errRevisionNotFound, revision)
}

func peel(repo *git.Repository, ref *plumbing.Reference) plumbing.Hash {
	tag, err := repo.TagObject(ref.Hash())
	if err != nil {
		// lightweight tag
		return ref.Hash()
	}
	return tag.Target
}

func checkout(repo *git.Repository, hash plumbing.Hash) error {
	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("error accessing worktree: %w", err)
	}
	if err := w.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("error occurred during checkout of %s: %w", hash, err)
	}
	return nil
}

func abbreviate(h plumbing.Hash) string {
	return h.String()[:abbrevLength]
}

func authFor(creds *scanning.Credentials) transport.AuthMethod {
	user, pass, ok := creds.BasicAuth()
	if !ok {
		return nil
	}
	return &githttp.BasicAuth{Username: user, Password: pass}
}
