// Package wiring assembles the scanning stack from configuration. Both the
// API server and the CLI build through here.
package wiring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	packageurl "github.com/package-url/packageurl-go"

	"github.com/bryanwahyu/cbomkit/internal/application"
	"github.com/bryanwahyu/cbomkit/internal/application/archive"
	"github.com/bryanwahyu/cbomkit/internal/application/cboms"
	"github.com/bryanwahyu/cbomkit/internal/application/commandbus"
	"github.com/bryanwahyu/cbomkit/internal/application/compliance"
	"github.com/bryanwahyu/cbomkit/internal/application/eventbus"
	"github.com/bryanwahyu/cbomkit/internal/application/projector"
	"github.com/bryanwahyu/cbomkit/internal/application/scanning"
	"github.com/bryanwahyu/cbomkit/internal/config"
	"github.com/bryanwahyu/cbomkit/internal/domain/ai"
	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
	"github.com/bryanwahyu/cbomkit/internal/infra/ai/openai"
	"github.com/bryanwahyu/cbomkit/internal/infra/db/memory"
	"github.com/bryanwahyu/cbomkit/internal/infra/db/mysql"
	"github.com/bryanwahyu/cbomkit/internal/infra/db/postgres"
	"github.com/bryanwahyu/cbomkit/internal/infra/git"
	"github.com/bryanwahyu/cbomkit/internal/infra/indexer"
	"github.com/bryanwahyu/cbomkit/internal/infra/pkgfinder"
	"github.com/bryanwahyu/cbomkit/internal/infra/resolve"
	"github.com/bryanwahyu/cbomkit/internal/infra/scanner"
	"github.com/bryanwahyu/cbomkit/internal/infra/storage"
)

// Stack is everything a binary needs to run scans and serve their results.
type Stack struct {
	DB         *sql.DB // nil with the memory driver
	Commands   *commandbus.Bus
	Events     *eventbus.Bus
	Scans      domain.Repository
	CBOMs      cbom.ReadRepository
	Scanning   *scanning.Service
	Queries    *cboms.Service
	Compliance *compliance.Service
}

// Close waits for in-flight commands and releases the database.
func (s *Stack) Close() error {
	s.Commands.Wait()
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Build connects storage, registers event subscribers and creates the
// scanning service. observer may be nil.
func Build(ctx context.Context, cfg *config.Config, logger hclog.Logger, observer scanning.Observer) (*Stack, error) {
	clock := application.SystemClock{}
	st := &Stack{}

	if err := st.openRepositories(ctx, cfg); err != nil {
		return nil, err
	}

	st.Commands = commandbus.New(cfg.Scanning.Workers, logger.Named("commandbus"))
	st.Events = eventbus.New(logger.Named("eventbus"))
	st.Events.Subscribe(&projector.CBOMProjector{
		Scans:  st.Scans,
		CBOMs:  st.CBOMs,
		Clock:  clock,
		Logger: logger.Named("projector"),
	})
	if cfg.Minio.Enabled {
		store, err := storage.New(ctx, cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.BucketName,
			cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			st.closeDB()
			return nil, fmt.Errorf("minio: %w", err)
		}
		st.Events.Subscribe(&archive.Archiver{Scans: st.Scans, Store: store, Logger: logger.Named("archive")})
	}

	deps, err := Dependencies(cfg, logger)
	if err != nil {
		st.closeDB()
		return nil, err
	}
	deps.Bus = st.Commands
	deps.Scans = st.Scans
	deps.Events = st.Events
	deps.Clock = clock
	deps.Observer = observer
	st.Scanning = scanning.NewService(deps)

	st.Queries = &cboms.Service{Repo: st.CBOMs, Clock: clock}
	var advisor ai.Client
	if cfg.OpenAI.APIKey != "" {
		advisor = openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}
	st.Compliance = &compliance.Service{CBOMs: st.CBOMs, Advisor: advisor, Logger: logger.Named("compliance")}
	return st, nil
}

func (st *Stack) openRepositories(ctx context.Context, cfg *config.Config) error {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysql.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		if err := mysql.Migrate(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("mysql migrate: %w", err)
		}
		st.DB, st.Scans, st.CBOMs = db, mysql.NewScanRepository(db), mysql.NewCBOMRepository(db)
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return fmt.Errorf("postgres migrate: %w", err)
		}
		st.DB, st.Scans, st.CBOMs = db, postgres.NewScanRepository(db), postgres.NewCBOMRepository(db)
	default:
		st.Scans, st.CBOMs = memory.NewScanRepository(), memory.NewCBOMRepository()
	}
	return nil
}

func (st *Stack) closeDB() {
	if st.DB != nil {
		st.DB.Close()
	}
}

// Dependencies builds the saga collaborators: resolvers, cloner, package
// finders and one indexer/scanner pair per configured language. Bus, Scans,
// Events, Clock and Observer are left for the caller.
func Dependencies(cfg *config.Config, logger hclog.Logger) (scanning.Dependencies, error) {
	if err := os.MkdirAll(cfg.Scanning.CloneDir, 0o755); err != nil {
		return scanning.Dependencies{}, fmt.Errorf("clone dir: %w", err)
	}

	deps := scanning.Dependencies{
		Resolvers: map[string]domain.Resolver{
			packageurl.TypeGithub: resolve.GitHub{},
		},
		Cloner: git.NewCloner(cfg.Scanning.CloneDir, cfg.Scanning.InsecureSkipTLS, logger.Named("git")),
		Finders: map[string]domain.PackageFinder{
			packageurl.TypeMaven: pkgfinder.Maven{},
			packageurl.TypePyPi:  pkgfinder.PyPI{},
		},
		Logger: logger.Named("saga"),
	}
	if !cfg.Resolver.Disabled {
		depsdev, err := resolve.NewDepsDev(cfg.Resolver.DepsDevAddress, logger.Named("depsdev"))
		if err != nil {
			return scanning.Dependencies{}, fmt.Errorf("deps.dev: %w", err)
		}
		deps.DefaultResolver = depsdev
	}

	for _, l := range cfg.Scanning.Languages {
		if len(l.Command) == 0 {
			logger.Warn("no scanner command configured, language skipped", "language", l.Name)
			continue
		}
		lang := domain.Language(l.Name)
		deps.Languages = append(deps.Languages, domain.LanguageSupport{
			Language: lang,
			Indexer:  indexer.New(indexer.Spec{Language: lang, BuildFiles: l.BuildFiles, Extensions: l.Extensions}),
			Scanner: &scanner.Exec{
				Language: lang,
				Command:  l.Command,
				Timeout:  l.Timeout,
				Logger:   logger.Named("scanner"),
			},
		})
	}
	if len(deps.Languages) == 0 {
		return scanning.Dependencies{}, ErrNoLanguages
	}
	return deps, nil
}

// ErrNoLanguages means no configured language has a scanner command.
var ErrNoLanguages = errors.New("no scanning language has a scanner command")
