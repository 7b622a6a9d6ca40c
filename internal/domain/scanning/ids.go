package scanning

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ScanID identifies one scan. Assigned at request time and never reused.
type ScanID uuid.UUID

func NewScanID() ScanID { return ScanID(uuid.New()) }

// ParseScanID accepts the canonical uuid form and the dashless form used for clone dirs.
func ParseScanID(s string) (ScanID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ScanID{}, fmt.Errorf("parse scan id %q: %w", s, err)
	}
	return ScanID(id), nil
}

func (id ScanID) String() string { return uuid.UUID(id).String() }

// Compact is the id without dashes.
func (id ScanID) Compact() string { return strings.ReplaceAll(id.String(), "-", "") }

func (id ScanID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ScanID) UnmarshalText(b []byte) error {
	parsed, err := ParseScanID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Language tag of a scanner/indexer pair.
type Language string

const (
	LanguageJava   Language = "java"
	LanguagePython Language = "python"
)

const (
	RevisionMain   = "main"
	RevisionMaster = "master"
)
