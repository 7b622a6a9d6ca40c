package scanning

import (
	"github.com/bryanwahyu/cbomkit/internal/application/commandbus"
	domain "github.com/bryanwahyu/cbomkit/internal/domain/scanning"
)

const (
	KindStartScan          commandbus.Kind = "scan.start"
	KindResolveCoordinates commandbus.Kind = "scan.resolve"
	KindCloneRepository    commandbus.Kind = "scan.clone"
	KindLocatePackage      commandbus.Kind = "scan.locate"
	KindIndexModules       commandbus.Kind = "scan.index"
	KindRunScan            commandbus.Kind = "scan.run"
)

// StepKinds are the commands a Saga handles.
var StepKinds = []commandbus.Kind{
	KindResolveCoordinates,
	KindCloneRepository,
	KindLocatePackage,
	KindIndexModules,
	KindRunScan,
}

// Command is a pipeline command addressed to one scan.
type Command interface {
	commandbus.Command
	Scan() domain.ScanID
}

type StartScan struct {
	ScanID      domain.ScanID
	Request     domain.ScanRequest
	Credentials *domain.Credentials
}

type ResolveCoordinates struct {
	ScanID      domain.ScanID
	Credentials *domain.Credentials
}

type CloneRepository struct {
	ScanID      domain.ScanID
	Credentials *domain.Credentials
}

type LocatePackage struct{ ScanID domain.ScanID }

type IndexModules struct{ ScanID domain.ScanID }

type RunScan struct{ ScanID domain.ScanID }

func (StartScan) Kind() commandbus.Kind          { return KindStartScan }
func (ResolveCoordinates) Kind() commandbus.Kind { return KindResolveCoordinates }
func (CloneRepository) Kind() commandbus.Kind    { return KindCloneRepository }
func (LocatePackage) Kind() commandbus.Kind      { return KindLocatePackage }
func (IndexModules) Kind() commandbus.Kind       { return KindIndexModules }
func (RunScan) Kind() commandbus.Kind            { return KindRunScan }

func (c StartScan) Scan() domain.ScanID          { return c.ScanID }
func (c ResolveCoordinates) Scan() domain.ScanID { return c.ScanID }
func (c CloneRepository) Scan() domain.ScanID    { return c.ScanID }
func (c LocatePackage) Scan() domain.ScanID      { return c.ScanID }
func (c IndexModules) Scan() domain.ScanID       { return c.ScanID }
func (c RunScan) Scan() domain.ScanID            { return c.ScanID }
