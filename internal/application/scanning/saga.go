package scanning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/bryanwahyu/cbomkit/internal/application"
	"github.com/bryanwahyu/cbomkit/internal/application/commandbus"
	"github.com/bryanwahyu/cbomkit/internal/application/eventbus"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

// EventPublisher receives domain events once the aggregate raising them is saved.
type EventPublisher interface {
	Publish(ctx context.Context, e eventbus.Event) error
}

// Observer is told about scan outcomes. Used for metrics.
type Observer interface {
	ScanStarted()
	ScanFinished()
	ScanFailed()
}

// Dependencies shared by every saga.
type Dependencies struct {
	Bus    *commandbus.Bus
	Scans  domain.Repository
	Events EventPublisher

	// Resolvers by package url type; DefaultResolver serves every other type.
	Resolvers       map[string]domain.Resolver
	DefaultResolver domain.Resolver
	Cloner          domain.Cloner
	// Finders by package url type.
	Finders   map[string]domain.PackageFinder
	Languages []domain.LanguageSupport

	Clock    application.Clock
	Observer Observer
	Logger   hclog.Logger
}

type step func(ctx context.Context, cmd Command) error

// Saga drives one scan through resolve, clone, locate, index and scan. It
// registers itself for the step kinds and ignores commands of other scans.
type Saga struct {
	id       domain.ScanID
	deps     Dependencies
	progress domain.ProgressDispatcher
	logger   hclog.Logger
	steps    map[commandbus.Kind]step

	// transient, never persisted
	projectDir string
	index      map[domain.Language][]domain.Module

	doneOnce sync.Once
	done     chan struct{}
	err      error
	release  func()
}

func NewSaga(id domain.ScanID, deps Dependencies, progress domain.ProgressDispatcher) *Saga {
	if deps.Clock == nil {
		deps.Clock = application.SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Saga{
		id:       id,
		deps:     deps,
		progress: progress,
		logger:   logger.With("scan", id.String()),
		done:     make(chan struct{}),
	}
	s.steps = map[commandbus.Kind]step{
		KindResolveCoordinates: s.resolveCoordinates,
		KindCloneRepository:    s.cloneRepository,
		KindLocatePackage:      s.locatePackage,
		KindIndexModules:       s.indexModules,
		KindRunScan:            s.runScan,
	}
	return s
}

func (s *Saga) ID() domain.ScanID { return s.id }

// Done is closed when the saga reaches Finished or has compensated.
func (s *Saga) Done() <-chan struct{} { return s.done }

// Err is the failure that ended the saga, nil after success. Valid once Done is closed.
func (s *Saga) Err() error {
	<-s.done
	return s.err
}

func (s *Saga) Handle(ctx context.Context, cmd commandbus.Command) error {
	c, ok := cmd.(Command)
	if !ok || c.Scan() != s.id {
		return nil
	}
	run, ok := s.steps[cmd.Kind()]
	if !ok {
		return nil
	}
	if err := run(ctx, c); err != nil {
		s.compensate(err)
		return err
	}
	return nil
}

func (s *Saga) resolveCoordinates(ctx context.Context, cmd Command) error {
	agg, err := s.read(ctx)
	if err != nil {
		return err
	}
	if raw, ok := agg.PackageURL(); ok {
		purl, err := domain.ParsePackageURL(raw)
		if err != nil {
			return err
		}
		resolver := s.deps.Resolvers[purl.Type]
		if resolver == nil {
			resolver = s.deps.DefaultResolver
		}
		if resolver == nil {
			return fmt.Errorf("%w: no resolver for %s", domain.ErrResolutionFailed, purl.Type)
		}
		s.label("Resolving package url " + raw)
		res, err := resolver.Resolve(ctx, purl)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", raw, err)
		}
		if err := agg.SetResolvedGitURL(res.RepositoryURL); err != nil {
			return err
		}
		if res.Commit != "" {
			if err := agg.SetCommitHash(res.Commit); err != nil {
				return err
			}
		}
		if res.Folder != "" {
			if err := agg.SetPackageFolder(res.Folder); err != nil {
				return err
			}
		}
		if err := s.deps.Scans.Save(ctx, agg); err != nil {
			return err
		}
	}
	gitURL, ok := agg.GitURL()
	if !ok {
		return domain.ErrMissingCoordinates
	}
	s.emit(domain.ProgressGitURL, gitURL)

	var creds *domain.Credentials
	if rc, ok := cmd.(ResolveCoordinates); ok {
		creds = rc.Credentials
	}
	s.next(ctx, CloneRepository{ScanID: s.id, Credentials: creds})
	return nil
}

func (s *Saga) cloneRepository(ctx context.Context, cmd Command) error {
	agg, err := s.read(ctx)
	if err != nil {
		return err
	}
	gitURL, ok := agg.GitURL()
	if !ok {
		return domain.ErrMissingCoordinates
	}
	var creds *domain.Credentials
	if cc, ok := cmd.(CloneRepository); ok {
		creds = cc.Credentials
	}
	knownCommit, hasCommit := agg.Commit()

	s.label("Cloning " + gitURL)
	res, err := s.deps.Cloner.Clone(ctx, domain.CloneRequest{
		ScanID:      s.id,
		URL:         gitURL,
		Revision:    agg.Revision(),
		Commit:      knownCommit,
		Credentials: creds,
		Progress:    progressWriter{saga: s},
	})
	if err != nil {
		if agg.Revision() == domain.RevisionMain {
			return s.retryWithMaster(ctx, agg, creds, err)
		}
		return err
	}
	s.projectDir = res.Directory

	if !hasCommit {
		if err := agg.SetCommitHash(res.Commit); err != nil {
			return err
		}
		if err := s.deps.Scans.Save(ctx, agg); err != nil {
			return err
		}
	}
	commit, _ := agg.Commit()
	s.emit(domain.ProgressGitURL, gitURL)
	s.emit(domain.ProgressBranch, agg.Revision())
	s.emit(domain.ProgressRevisionHash, commit)

	s.next(ctx, LocatePackage{ScanID: s.id})
	return nil
}

// retryWithMaster restarts the scan on the master branch. Only reached from main,
// so a failure on master takes the normal failure path.
func (s *Saga) retryWithMaster(ctx context.Context, agg *domain.ScanAggregate, creds *domain.Credentials, cause error) error {
	s.logger.Warn("clone failed on main, retrying with master", "error", cause)
	url, ok := agg.PackageURL()
	if !ok {
		url, _ = agg.GitURL()
	}
	folder, _ := agg.PackageFolder()
	if err := s.deps.Scans.Delete(ctx, s.id); err != nil {
		return fmt.Errorf("discard scan before retry: %w", err)
	}
	s.label("Branch main not found, trying master")
	s.next(ctx, StartScan{
		ScanID:      s.id,
		Request:     domain.ScanRequest{URL: url, Revision: domain.RevisionMaster, Folder: folder},
		Credentials: creds,
	})
	return nil
}

func (s *Saga) locatePackage(ctx context.Context, _ Command) error {
	agg, err := s.read(ctx)
	if err != nil {
		return err
	}
	if s.projectDir == "" {
		return domain.ErrNoProjectDirectory
	}
	raw, hasPurl := agg.PackageURL()
	_, hasFolder := agg.PackageFolder()
	if hasPurl && !hasFolder {
		purl, err := domain.ParsePackageURL(raw)
		if err != nil {
			return err
		}
		if finder := s.deps.Finders[purl.Type]; finder != nil {
			dir, found, err := finder.Find(purl, s.projectDir)
			if err != nil {
				return fmt.Errorf("locate %s: %w", raw, err)
			}
			if found && dir != "" && dir != "." {
				if err := agg.SetPackageFolder(dir); err != nil {
					return err
				}
				if err := s.deps.Scans.Save(ctx, agg); err != nil {
					return err
				}
			}
		}
	}
	if folder, ok := agg.PackageFolder(); ok {
		s.emit(domain.ProgressFolder, folder)
	}
	s.next(ctx, IndexModules{ScanID: s.id})
	return nil
}

func (s *Saga) indexModules(ctx context.Context, _ Command) error {
	agg, err := s.read(ctx)
	if err != nil {
		return err
	}
	if s.projectDir == "" {
		return domain.ErrNoProjectDirectory
	}
	folder, _ := agg.PackageFolder()
	index := make(map[domain.Language][]domain.Module, len(s.deps.Languages))
	for _, lang := range s.deps.Languages {
		modules, err := lang.Indexer.Index(ctx, s.projectDir, folder)
		if err != nil {
			return fmt.Errorf("index %s modules: %w", lang.Language, err)
		}
		index[lang.Language] = modules
		s.label(fmt.Sprintf("Found %d %s module(s)", len(modules), lang.Language))
	}
	s.index = index
	s.next(ctx, RunScan{ScanID: s.id})
	return nil
}

func (s *Saga) runScan(ctx context.Context, _ Command) error {
	agg, err := s.read(ctx)
	if err != nil {
		return err
	}
	if s.projectDir == "" {
		return domain.ErrNoProjectDirectory
	}
	commit, ok := agg.Commit()
	if !ok {
		return domain.ErrNoCommit
	}
	gitURL, _ := agg.GitURL()
	folder, _ := agg.PackageFolder()

	started := s.deps.Clock.Now()
	var (
		merged       *cbom.CBOM
		lines, files int
	)
	for _, lang := range s.deps.Languages {
		modules, ok := s.index[lang.Language]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNoIndexForLanguage, lang.Language)
		}
		if len(modules) == 0 {
			continue
		}
		s.label(fmt.Sprintf("Scanning %s", lang.Language))
		res, err := lang.Scanner.Scan(ctx, s.projectDir, modules)
		if err != nil {
			return fmt.Errorf("scan %s: %w", lang.Language, err)
		}
		lines += res.LinesScanned
		files += res.FilesScanned
		if res.CBOM == nil {
			continue
		}
		res.CBOM.AddMetadata(gitURL, agg.Revision(), commit, folder)
		if err := agg.ReportScanResults(domain.LanguageScan{
			Language: lang.Language,
			Metadata: domain.ScanMetadata{
				StartedAt:    res.StartedAt,
				EndedAt:      res.EndedAt,
				LinesScanned: res.LinesScanned,
				FilesScanned: res.FilesScanned,
			},
			CBOM: res.CBOM,
		}); err != nil {
			return err
		}
		merged = cbom.Merge(merged, res.CBOM)
	}
	if merged == nil {
		return fmt.Errorf("%w: %w", domain.ErrCBOMSerialization, domain.ErrNoCBOM)
	}
	payload, err := merged.JSON()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCBOMSerialization, err)
	}

	if err := agg.ScanFinished(s.deps.Clock.Now()); err != nil {
		return err
	}
	if err := s.saveAndPublish(ctx, agg); err != nil {
		return err
	}

	elapsed := s.deps.Clock.Now().Sub(started)
	s.emit(domain.ProgressDuration, strconv.FormatInt(int64(elapsed/time.Second), 10))
	s.emit(domain.ProgressFileCount, strconv.Itoa(files))
	s.emit(domain.ProgressLineCount, strconv.Itoa(lines))
	s.emit(domain.ProgressCBOM, string(payload))
	s.label(domain.LabelFinished)

	s.logger.Info("scan finished", "files", files, "lines", lines, "elapsed", elapsed)
	s.finish(nil)
	return nil
}

// saveAndPublish persists agg and publishes its events only if the save succeeded.
func (s *Saga) saveAndPublish(ctx context.Context, agg *domain.ScanAggregate) error {
	if err := s.deps.Scans.Save(ctx, agg); err != nil {
		return err
	}
	if s.deps.Events == nil {
		agg.PullEvents()
		return nil
	}
	for _, e := range agg.PullEvents() {
		if err := s.deps.Events.Publish(ctx, e); err != nil {
			s.logger.Warn("publish event", "event", e.EventName(), "error", err)
		}
	}
	return nil
}

func (s *Saga) compensate(cause error) {
	s.logger.Error("scan failed", "error", cause)
	s.emit(domain.ProgressError, cause.Error())
	s.finish(cause)
}

// finish unregisters the saga and drops the clone. Runs once.
func (s *Saga) finish(cause error) {
	s.doneOnce.Do(func() {
		s.deps.Bus.Unregister(s, StepKinds...)
		if s.release != nil {
			s.release()
		}
		if s.projectDir != "" {
			if err := os.RemoveAll(s.projectDir); err != nil {
				s.logger.Debug("remove clone dir", "dir", s.projectDir, "error", err)
			}
		}
		if s.deps.Observer != nil {
			if cause != nil {
				s.deps.Observer.ScanFailed()
			} else {
				s.deps.Observer.ScanFinished()
			}
		}
		s.err = cause
		close(s.done)
	})
}

func (s *Saga) read(ctx context.Context) (*domain.ScanAggregate, error) {
	agg, err := s.deps.Scans.Read(ctx, s.id)
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read scan %s: %w", s.id, err)
	}
	return agg, nil
}

func (s *Saga) next(ctx context.Context, cmd commandbus.Command) {
	s.deps.Bus.Send(ctx, cmd)
}

func (s *Saga) label(msg string) { s.emit(domain.ProgressLabel, msg) }

// emit never fails the pipeline; undeliverable progress is dropped.
func (s *Saga) emit(t domain.ProgressType, msg string) {
	if s.progress == nil {
		return
	}
	if err := s.progress.Send(domain.ProgressMessage{Type: t, Message: msg}); err != nil {
		s.logger.Trace("progress dropped", "type", t, "error", err)
	}
}

// progressWriter forwards clone progress as labels.
type progressWriter struct{ saga *Saga }

func (w progressWriter) Write(p []byte) (int, error) {
	for _, line := range strings.FieldsFunc(string(p), func(r rune) bool { return r == '\n' || r == '\r' }) {
		if line = strings.TrimSpace(line); line != "" {
			w.saga.label(line)
		}
	}
	return len(p), nil
}
