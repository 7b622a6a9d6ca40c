package scanning

import (
	"time"

	"github.com/bryanwahyu/cbomkit/internal/domain/cbom"
)

// ScanMetadata counters of one language scan.
type ScanMetadata struct {
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	LinesScanned int       `json:"linesScanned"`
	FilesScanned int       `json:"filesScanned"`
}

func (m ScanMetadata) Duration() time.Duration { return m.EndedAt.Sub(m.StartedAt) }

// LanguageScan is the result for a single language.
type LanguageScan struct {
	Language Language     `json:"language"`
	Metadata ScanMetadata `json:"metadata"`
	CBOM     *cbom.CBOM   `json:"-"`
}
