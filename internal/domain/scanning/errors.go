package scanning

import "errors"

// Error kinds that terminate a scan attempt.
var (
	ErrMissingCoordinates      = errors.New("neither package url nor repository url provided")
	ErrInvalidPackageURL       = errors.New("invalid package url")
	ErrNoCommit                = errors.New("no commit hash available")
	ErrNoProjectDirectory      = errors.New("no local project directory available")
	ErrNoIndexForLanguage      = errors.New("no module index for language")
	ErrLanguageAlreadyReported = errors.New("scan result for language already reported")
	ErrEntityNotFound          = errors.New("entity not found")
	ErrGitCloneFailed          = errors.New("git clone failed")
	ErrClientDisconnected      = errors.New("progress client disconnected")
	ErrCBOMSerialization       = errors.New("cbom serialization failed")
	ErrNoCBOM                  = errors.New("no cbom available for scan")
	ErrNoLanguageResults       = errors.New("no language results reported")
	ErrScanFinished            = errors.New("scan already finished")
	ErrNoProjectIdentifier     = errors.New("no valid project identifier")
	ErrResolutionFailed        = errors.New("package url resolution failed")
)
