package scanning

// ProgressType tags a progress message.
type ProgressType string

const (
	ProgressLabel        ProgressType = "LABEL"
	ProgressError        ProgressType = "ERROR"
	ProgressGitURL       ProgressType = "GITURL"
	ProgressBranch       ProgressType = "BRANCH"
	ProgressRevisionHash ProgressType = "REVISION_HASH"
	ProgressFolder       ProgressType = "FOLDER"
	ProgressDuration     ProgressType = "SCANNED_DURATION"
	ProgressFileCount    ProgressType = "SCANNED_FILE_COUNT"
	ProgressLineCount    ProgressType = "SCANNED_NUMBER_OF_LINES"
	ProgressCBOM         ProgressType = "CBOM"
)

// Labels sent at the start and end of a scan.
const (
	LabelStarting = "Starting..."
	LabelFinished = "Finished"
)

type ProgressMessage struct {
	Type    ProgressType `json:"type"`
	Message string       `json:"message"`
}

// ProgressDispatcher delivers progress to the client that requested a scan.
// Delivery is best effort; implementations return ErrClientDisconnected when
// the client is gone.
type ProgressDispatcher interface {
	Send(msg ProgressMessage) error
}
